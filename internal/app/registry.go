package app

import (
	"sort"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/app/negotiation"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

// PeerStatus is a point-in-time view of one registered peer.
type PeerStatus struct {
	ID       domain.PeerID `json:"id"`
	Role     string        `json:"role"`
	State    string        `json:"state"`
	Pending  int           `json:"pending"`
	Attached bool          `json:"media_attached"`
	Stable   bool          `json:"stable"`
}

// Registry maps peer ids to their negotiation. One entry per id.
type Registry struct {
	mu      sync.RWMutex
	peers   map[domain.PeerID]*negotiation.Peer
	metrics *metrics.Metrics
}

func NewRegistry(m *metrics.Metrics) *Registry {
	return &Registry{
		peers:   make(map[domain.PeerID]*negotiation.Peer),
		metrics: m,
	}
}

// Add registers p and returns the entry it displaced, if any. The caller is
// responsible for closing the displaced peer.
func (r *Registry) Add(p *negotiation.Peer) *negotiation.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	stale := r.peers[p.ID()]
	r.peers[p.ID()] = p
	r.metrics.SetPeers(len(r.peers))
	ev := log.Info().Str("module", "app.registry").Str("peer", string(p.ID())).Str("role", p.Role().String())
	if stale != nil {
		ev = ev.Bool("replaced", true)
	}
	ev.Msg("added peer")
	return stale
}

func (r *Registry) Get(id domain.PeerID) (*negotiation.Peer, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.peers[id]
	return p, ok
}

// Live reports whether id still maps to p and p has not been closed.
func (r *Registry) Live(id domain.PeerID, p *negotiation.Peer) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	cur, ok := r.peers[id]
	return ok && cur == p && !p.Closed()
}

func (r *Registry) Remove(id domain.PeerID) (*negotiation.Peer, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, ok := r.peers[id]
	if !ok {
		return nil, false
	}
	delete(r.peers, id)
	r.metrics.SetPeers(len(r.peers))
	log.Info().Str("module", "app.registry").Str("peer", string(id)).Msg("removed peer")
	return p, true
}

// Drain empties the registry and returns what it held.
func (r *Registry) Drain() []*negotiation.Peer {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*negotiation.Peer, 0, len(r.peers))
	for _, p := range r.peers {
		out = append(out, p)
	}
	clear(r.peers)
	r.metrics.SetPeers(0)
	if len(out) > 0 {
		log.Info().Str("module", "app.registry").Int("count", len(out)).Msg("drained peers")
	}
	return out
}

func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.peers)
}

// Snapshot lists every peer ordered by id.
func (r *Registry) Snapshot() []PeerStatus {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]PeerStatus, 0, len(r.peers))
	for id, p := range r.peers {
		out = append(out, PeerStatus{
			ID:       id,
			Role:     p.Role().String(),
			State:    p.State().String(),
			Pending:  p.Pending(),
			Attached: p.Remote() != nil,
			Stable:   p.Stable(),
		})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}
