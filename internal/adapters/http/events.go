package http

import (
	"errors"
	"io"
	"sync"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/adapters/rtc"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

const (
	EventMediaAttached = "media_attached"
	EventMediaDetached = "media_detached"
	EventMuteLabel     = "mute_label"
	EventPeerFailed    = "peer_failed"
)

const subscriberBuffer = 64

var ErrNotPlaying = errors.New("no remote media playing for peer")

// playout is remote media that can feed local playback sinks.
type playout interface {
	AddSink(name string, kind domain.MediaKind, s rtc.Sink)
	MuteSink(name string, muted bool)
}

var playoutKinds = []domain.MediaKind{domain.MediaKindAudio, domain.MediaKindVideo}

func playoutSink(kind domain.MediaKind) string { return "playout-" + string(kind) }

// Event is one renderer notification as sent to the browser.
type Event struct {
	Kind   string             `json:"kind"`
	Peer   domain.PeerID      `json:"peer,omitempty"`
	Stream string             `json:"stream,omitempty"`
	Media  []domain.MediaKind `json:"media,omitempty"`
	Video  bool               `json:"video,omitempty"`
	Muted  bool               `json:"muted,omitempty"`
	Label  string             `json:"label,omitempty"`
	Error  string             `json:"error,omitempty"`
}

// Hub fans renderer events out to every connected event stream and plays
// the remote media it is handed.
type Hub struct {
	mu      sync.Mutex
	subs    map[chan Event]struct{}
	playing map[domain.PeerID]playout
	metrics *metrics.Metrics
}

var _ core.Renderer = (*Hub)(nil)

func NewHub() *Hub {
	return &Hub{
		subs:    make(map[chan Event]struct{}),
		playing: make(map[domain.PeerID]playout),
	}
}

// WithMetrics records played remote packets into m.
func (h *Hub) WithMetrics(m *metrics.Metrics) *Hub {
	h.metrics = m
	return h
}

// Subscribe returns a channel of events and a func that ends the
// subscription.
func (h *Hub) Subscribe() (<-chan Event, func()) {
	ch := make(chan Event, subscriberBuffer)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, ch)
			h.mu.Unlock()
			close(ch)
		})
	}
}

func (h *Hub) Subscribers() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

// publish never blocks the controller loop; a full subscriber misses the event.
func (h *Hub) publish(e Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- e:
		default:
			log.Warn().Str("module", "adapters.http").Str("event", e.Kind).Msg("event subscriber is slow, dropping event")
		}
	}
}

func (h *Hub) RemoteMediaAttached(peer domain.PeerID, m core.RemoteMedia, opts core.RenderOptions) {
	if p, ok := m.(playout); ok {
		for _, kind := range playoutKinds {
			p.AddSink(playoutSink(kind), kind, rtc.NewMeter(kind, h.metrics))
			p.MuteSink(playoutSink(kind), opts.Muted)
		}
		h.mu.Lock()
		h.playing[peer] = p
		h.mu.Unlock()
	}
	h.publish(Event{
		Kind:   EventMediaAttached,
		Peer:   peer,
		Stream: m.ID(),
		Media:  m.Kinds(),
		Video:  opts.Video,
		Muted:  opts.Muted,
	})
}

func (h *Hub) RemoteMediaDetached(peer domain.PeerID) {
	h.mu.Lock()
	delete(h.playing, peer)
	h.mu.Unlock()
	h.publish(Event{Kind: EventMediaDetached, Peer: peer})
}

// MutePeer pauses or resumes playback of peer's remote media.
func (h *Hub) MutePeer(peer domain.PeerID, muted bool) error {
	h.mu.Lock()
	p, ok := h.playing[peer]
	h.mu.Unlock()
	if !ok {
		return ErrNotPlaying
	}
	for _, kind := range playoutKinds {
		p.MuteSink(playoutSink(kind), muted)
	}
	log.Info().Str("module", "adapters.http").Str("peer", string(peer)).Bool("muted", muted).Msg("remote playback changed")
	return nil
}

func (h *Hub) MuteLabelChanged(label string) {
	h.publish(Event{Kind: EventMuteLabel, Label: label})
}

func (h *Hub) PeerFailed(peer domain.PeerID, err error) {
	e := Event{Kind: EventPeerFailed, Peer: peer}
	if err != nil {
		e.Error = err.Error()
	}
	h.publish(e)
}

// serve streams events as server-sent events until the client goes away.
func (h *Hub) serve(c *gin.Context) {
	events, cancel := h.Subscribe()
	defer cancel()

	c.Header("Cache-Control", "no-cache")
	c.Header("X-Accel-Buffering", "no")
	c.SSEvent("ready", gin.H{"client": c.GetString("client_token")})
	c.Writer.Flush()

	c.Stream(func(_ io.Writer) bool {
		select {
		case e, ok := <-events:
			if !ok {
				return false
			}
			c.SSEvent(e.Kind, e)
			return true
		case <-c.Request.Context().Done():
			return false
		}
	})
}
