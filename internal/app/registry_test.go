package app

import (
	"math/rand"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceChat/internal/app/negotiation"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/core/coretest"
	"github.com/dkeye/VoiceChat/internal/domain"
)

const (
	timeout = time.Second
	tick    = 5 * time.Millisecond
)

func newPeer(id domain.PeerID) *negotiation.Peer {
	return negotiation.New(id, domain.RoleAnswerer, &coretest.Conn{})
}

func TestRegistryAddReplacesAndReturnsStale(t *testing.T) {
	r := NewRegistry(nil)
	first := newPeer("a")
	assert.Nil(t, r.Add(first))

	second := newPeer("a")
	assert.Same(t, first, r.Add(second))
	assert.Equal(t, 1, r.Len())

	got, ok := r.Get("a")
	require.True(t, ok)
	assert.Same(t, second, got)
}

func TestRegistryRemoveAbsentIsNoop(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(newPeer("a"))

	p, ok := r.Remove("missing")
	assert.False(t, ok)
	assert.Nil(t, p)
	assert.Equal(t, 1, r.Len())
}

func TestRegistryNeverHoldsTwoEntriesPerID(t *testing.T) {
	r := NewRegistry(nil)
	ids := []domain.PeerID{"a", "b", "c"}
	model := map[domain.PeerID]bool{}
	rnd := rand.New(rand.NewSource(7))

	for i := 0; i < 500; i++ {
		id := ids[rnd.Intn(len(ids))]
		if rnd.Intn(2) == 0 {
			r.Add(newPeer(id))
			model[id] = true
		} else {
			r.Remove(id)
			delete(model, id)
		}
		require.Equal(t, len(model), r.Len())
	}

	seen := map[domain.PeerID]int{}
	for _, s := range r.Snapshot() {
		seen[s.ID]++
	}
	for id, n := range seen {
		assert.Equal(t, 1, n, id)
	}
}

func TestRegistryLive(t *testing.T) {
	r := NewRegistry(nil)
	p := newPeer("a")
	r.Add(p)
	assert.True(t, r.Live("a", p))

	replacement := newPeer("a")
	r.Add(replacement)
	assert.False(t, r.Live("a", p), "replaced peer is stale")

	_, _ = replacement.Close()
	assert.False(t, r.Live("a", replacement), "closed peer is stale")
}

func TestRegistryDrainAndSnapshot(t *testing.T) {
	r := NewRegistry(nil)
	r.Add(newPeer("b"))
	r.Add(negotiation.New("a", domain.RoleOfferer, &coretest.Conn{}))

	snap := r.Snapshot()
	require.Len(t, snap, 2)
	assert.Equal(t, domain.PeerID("a"), snap[0].ID)
	assert.Equal(t, "offerer", snap[0].Role)
	assert.Equal(t, "new", snap[1].State)

	drained := r.Drain()
	assert.Len(t, drained, 2)
	assert.Zero(t, r.Len())
}

func TestSimplePolicy(t *testing.T) {
	var p Policy = SimplePolicy{}
	assert.Equal(t, ReportPeer, p.OnStall("a", domain.StateHaveLocalOffer))
	assert.Equal(t, ClosePeer, p.OnTransport("a", core.TransportFailed))
	assert.Equal(t, NoAction, p.OnTransport("a", core.TransportDisconnected))
	assert.Equal(t, "close", ClosePeer.String())
}
