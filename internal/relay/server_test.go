package relay

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceChat/internal/adapters/signal"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

type wsMember struct {
	t     *testing.T
	ws    *websocket.Conn
	codec signal.Codec
}

func startRelay(t *testing.T, codec signal.Codec) (*Server, string) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	s := NewServer(Options{Codec: codec})
	srv := httptest.NewServer(s.Router(ctx, "test"))
	t.Cleanup(srv.Close)
	return s, "ws" + strings.TrimPrefix(srv.URL, "http") + "/ConnectionHub"
}

func dial(t *testing.T, url string, codec signal.Codec) *wsMember {
	t.Helper()
	ws, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = ws.Close() })
	return &wsMember{t: t, ws: ws, codec: codec}
}

func (m *wsMember) send(event string, args ...any) {
	data, err := m.codec.Encode(event, args)
	require.NoError(m.t, err)
	require.NoError(m.t, m.ws.WriteMessage(m.codec.FrameType(), data))
}

func (m *wsMember) next() (string, core.Args) {
	m.t.Helper()
	require.NoError(m.t, m.ws.SetReadDeadline(time.Now().Add(2*time.Second)))
	_, data, err := m.ws.ReadMessage()
	require.NoError(m.t, err)
	event, args, err := m.codec.Decode(data)
	require.NoError(m.t, err)
	return event, args
}

// expect reads the next message and returns its peer id argument.
func (m *wsMember) expect(event string) (SessionID, core.Args) {
	m.t.Helper()
	got, args := m.next()
	require.Equal(m.t, event, got)
	var id SessionID
	require.NoError(m.t, args.Decode(0, &id))
	return id, args
}

// pair joins a then b to chat and returns their session ids. b joins only
// once the relay has a in the room.
func pair(t *testing.T, s *Server, a, b *wsMember, chat string) (SessionID, SessionID) {
	t.Helper()
	a.send(core.EventJoinChat, chat)
	require.Eventually(t, func() bool { return len(s.Rooms().Members(domain.ChatName(chat))) == 1 },
		2*time.Second, 5*time.Millisecond)
	b.send(core.EventJoinChat, chat)

	bID, args := a.expect(core.EventAddToCall)
	var initiate bool
	require.NoError(t, args.Decode(1, &initiate))
	assert.False(t, initiate, "the member already present answers")

	aID, args := b.expect(core.EventAddToCall)
	require.NoError(t, args.Decode(1, &initiate))
	assert.True(t, initiate, "the joining member offers")
	return aID, bID
}

func TestJoinAndRelay(t *testing.T) {
	for _, codec := range []signal.Codec{signal.JSONCodec{}, signal.MsgpackCodec{}} {
		t.Run(codec.Name(), func(t *testing.T) {
			s, url := startRelay(t, codec)
			a, b := dial(t, url, codec), dial(t, url, codec)
			aID, bID := pair(t, s, a, b, "lobby")
			assert.Equal(t, []RoomInfo{{Name: "lobby", MemberCount: 2}}, s.Rooms().List())

			offer := domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0"}
			b.send(core.EventRelaySessionDescription, "lobby", aID, offer)
			from, args := a.expect(core.EventSessionDescription)
			assert.Equal(t, bID, from)
			var desc domain.SessionDescription
			require.NoError(t, args.Decode(1, &desc))
			assert.Equal(t, offer, desc)

			idx := uint16(0)
			cand := domain.Candidate{Candidate: "candidate:1 1 udp 1 10.0.0.1 5000 typ host", SDPMLineIndex: &idx}
			a.send(core.EventRelayIceCandidate, "lobby", bID, cand)
			from, args = b.expect(core.EventIceCandidate)
			assert.Equal(t, aID, from)
			var got domain.Candidate
			require.NoError(t, args.Decode(1, &got))
			assert.Equal(t, cand, got)
		})
	}
}

func TestLeaveNotifiesBothSides(t *testing.T) {
	s, url := startRelay(t, signal.JSONCodec{})
	a, b := dial(t, url, signal.JSONCodec{}), dial(t, url, signal.JSONCodec{})
	aID, bID := pair(t, s, a, b, "lobby")

	b.send(core.EventLeaveChat, "lobby")
	gone, _ := a.expect(core.EventRemoveFromCall)
	assert.Equal(t, bID, gone)
	gone, _ = b.expect(core.EventRemoveFromCall)
	assert.Equal(t, aID, gone)
	assert.Equal(t, []SessionID{aID}, s.Rooms().Members("lobby"))
}

func TestDisconnectLeavesEveryChat(t *testing.T) {
	s, url := startRelay(t, signal.JSONCodec{})
	a, b := dial(t, url, signal.JSONCodec{}), dial(t, url, signal.JSONCodec{})
	_, bID := pair(t, s, a, b, "lobby")

	require.NoError(t, b.ws.Close())
	gone, _ := a.expect(core.EventRemoveFromCall)
	assert.Equal(t, bID, gone)
	assert.Eventually(t, func() bool { return len(s.Rooms().Members("lobby")) == 1 }, time.Second, 10*time.Millisecond)
}

func TestForwardRequiresSharedChat(t *testing.T) {
	s, url := startRelay(t, signal.JSONCodec{})
	a, b := dial(t, url, signal.JSONCodec{}), dial(t, url, signal.JSONCodec{})
	outsider := dial(t, url, signal.JSONCodec{})
	aID, bID := pair(t, s, a, b, "lobby")

	desc := domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0"}
	outsider.send(core.EventRelaySessionDescription, "lobby", aID, desc)
	// Malformed and invalid messages are dropped too.
	b.send(core.EventRelaySessionDescription, "lobby", aID, domain.SessionDescription{Type: "pranswer", SDP: "v=0"})
	b.send(core.EventRelaySessionDescription, "lobby")
	b.send(core.EventJoinChat, "")

	b.send(core.EventRelaySessionDescription, "lobby", aID, desc)
	from, _ := a.expect(core.EventSessionDescription)
	assert.Equal(t, bID, from)
}

func TestRooms(t *testing.T) {
	rooms := NewRooms()
	a := &member{id: "a"}
	b := &member{id: "b"}

	others, ok := rooms.Join("lobby", a)
	require.True(t, ok)
	assert.Empty(t, others)
	_, ok = rooms.Join("lobby", a)
	assert.False(t, ok)

	others, ok = rooms.Join("lobby", b)
	require.True(t, ok)
	assert.Equal(t, []*member{a}, others)

	_, ok = rooms.Member("kitchen", "a", "b")
	assert.False(t, ok)
	got, ok := rooms.Member("lobby", "a", "b")
	require.True(t, ok)
	assert.Same(t, b, got)
	_, ok = rooms.Member("lobby", "c", "b")
	assert.False(t, ok)

	others, ok = rooms.Leave("lobby", "a")
	require.True(t, ok)
	assert.Equal(t, []*member{b}, others)
	_, ok = rooms.Leave("lobby", "a")
	assert.False(t, ok)

	_, ok = rooms.Leave("lobby", "b")
	require.True(t, ok)
	assert.Empty(t, rooms.List())
}
