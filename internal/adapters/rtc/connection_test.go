package rtc

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceChat/internal/adapters/capture"
	"github.com/dkeye/VoiceChat/internal/app/negotiation"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

// side is one end of a loopback call. Pion callbacks run on their own
// goroutines, so every Peer call goes through mu.
type side struct {
	mu     sync.Mutex
	peer   *negotiation.Peer
	other  *side
	remote chan core.RemoteMedia
	up     chan struct{}
	once   sync.Once
}

func newSide(t *testing.T, f *Factory, id domain.PeerID, role domain.Role) *side {
	t.Helper()
	conn, err := f.NewConnection()
	require.NoError(t, err)
	s := &side{
		peer:   negotiation.New(id, role, conn),
		remote: make(chan core.RemoteMedia, 1),
		up:     make(chan struct{}),
	}
	conn.OnRemoteMedia(func(m core.RemoteMedia) { s.remote <- m })
	conn.OnTransportState(func(st core.TransportState) {
		if st == core.TransportConnected {
			s.once.Do(func() { close(s.up) })
		}
	})
	conn.OnLocalCandidate(func(c domain.Candidate) {
		s.other.mu.Lock()
		defer s.other.mu.Unlock()
		_, err := s.other.peer.AddRemoteCandidate(c)
		assert.NoError(t, err)
	})
	return s
}

func (s *side) deliver(t *testing.T, d *domain.SessionDescription) {
	if d == nil {
		return
	}
	s.other.mu.Lock()
	res, err := s.other.peer.ApplyRemoteDescription(*d)
	s.other.mu.Unlock()
	require.NoError(t, err)
	s.other.deliver(t, res.Outbound)
}

func TestLoopbackCall(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real sockets")
	}
	f, err := NewFactory(Config{IncludeLoopback: true})
	require.NoError(t, err)

	offerer := newSide(t, f, "answerer-id", domain.RoleOfferer)
	answerer := newSide(t, f, "offerer-id", domain.RoleAnswerer)
	offerer.other, answerer.other = answerer, offerer
	defer func() {
		_, _ = offerer.peer.Close()
		_, _ = answerer.peer.Close()
	}()

	capturer := capture.New(0)
	local, err := capturer.Capture(context.Background(), domain.Constraints{Audio: true})
	require.NoError(t, err)
	defer local.Tracks()[0].Stop()
	remoteLocal, err := capturer.Capture(context.Background(), domain.Constraints{Audio: true})
	require.NoError(t, err)
	defer remoteLocal.Tracks()[0].Stop()

	answerer.mu.Lock()
	_, err = answerer.peer.Start(remoteLocal)
	answerer.mu.Unlock()
	require.NoError(t, err)

	offerer.mu.Lock()
	res, err := offerer.peer.Start(local)
	offerer.mu.Unlock()
	require.NoError(t, err)
	require.NotNil(t, res.Outbound)
	assert.Equal(t, domain.SDPTypeOffer, res.Outbound.Type)

	offerer.deliver(t, res.Outbound)

	offerer.mu.Lock()
	assert.True(t, offerer.peer.Stable())
	offerer.mu.Unlock()
	answerer.mu.Lock()
	assert.True(t, answerer.peer.Stable())
	answerer.mu.Unlock()

	for _, s := range []*side{offerer, answerer} {
		select {
		case <-s.up:
		case <-time.After(10 * time.Second):
			t.Fatal("transport never connected")
		}
	}

	select {
	case m := <-answerer.remote:
		assert.Equal(t, local.ID(), m.ID())
		assert.Contains(t, m.Kinds(), domain.MediaKindAudio)
		rs := m.(*RemoteStream)
		require.Eventually(t, func() bool { return rs.Packets() > 0 }, 5*time.Second, 20*time.Millisecond)
	case <-time.After(10 * time.Second):
		t.Fatal("no remote media")
	}
}

func TestAddLocalStreamRejectsForeignTracks(t *testing.T) {
	f, err := NewFactory(Config{})
	require.NoError(t, err)
	conn, err := f.NewConnection()
	require.NoError(t, err)
	defer conn.Close()

	err = conn.AddLocalStream(foreignStream{})
	require.ErrorIs(t, err, errNotSendable)
}

func TestCloseIsIdempotent(t *testing.T) {
	f, err := NewFactory(Config{})
	require.NoError(t, err)
	conn, err := f.NewConnection()
	require.NoError(t, err)

	require.NoError(t, conn.Close())
	require.NoError(t, conn.Close())
}

func TestOfferWithoutTracksAsksForAudio(t *testing.T) {
	f, err := NewFactory(Config{})
	require.NoError(t, err)
	conn, err := f.NewConnection()
	require.NoError(t, err)
	defer conn.Close()

	offer, err := conn.CreateOffer()
	require.NoError(t, err)
	assert.Equal(t, domain.SDPTypeOffer, offer.Type)
	assert.Contains(t, offer.SDP, "m=audio")
	assert.Contains(t, offer.SDP, "a=recvonly")

	// Empty candidates mark end of gathering and are skipped.
	require.NoError(t, conn.AddICECandidate(domain.Candidate{}))
}

type foreignTrack struct{}

func (foreignTrack) ID() string             { return "foreign" }
func (foreignTrack) Kind() domain.MediaKind { return domain.MediaKindAudio }
func (foreignTrack) Enabled() bool          { return true }
func (foreignTrack) SetEnabled(bool)        {}
func (foreignTrack) Stop()                  {}

type foreignStream struct{}

func (foreignStream) ID() string           { return "foreign" }
func (foreignStream) Tracks() []core.Track { return []core.Track{foreignTrack{}} }
