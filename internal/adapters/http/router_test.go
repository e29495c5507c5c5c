package http

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceChat/internal/adapters/rtc"
	"github.com/dkeye/VoiceChat/internal/app/orch"
	"github.com/dkeye/VoiceChat/internal/config"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/core/coretest"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type fakeVoice struct {
	mu       sync.Mutex
	running  bool
	chats    []domain.ChatName
	muted    bool
	startErr error
	peers    map[domain.PeerID]bool
	retried  []domain.PeerID
}

func (f *fakeVoice) Start(_ context.Context, chat domain.ChatName) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return f.startErr
	}
	if err := domain.ValidateChatName(chat); err != nil {
		return err
	}
	if f.running {
		return domain.ErrAlreadyRunning
	}
	f.running = true
	f.chats = append(f.chats, chat)
	return nil
}

func (f *fakeVoice) Stop(context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return domain.ErrNotRunning
	}
	f.running = false
	return nil
}

func (f *fakeVoice) MuteToggle(context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.running {
		return "", domain.ErrNotRunning
	}
	f.muted = !f.muted
	return orch.MuteLabel(f.muted), nil
}

func (f *fakeVoice) Snapshot(context.Context) (orch.Status, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	st := orch.Status{State: orch.SessionIdle.String(), Muted: f.muted}
	if f.running {
		st.State = orch.SessionActive.String()
		st.Chat = f.chats[len(f.chats)-1]
	}
	return st, nil
}

func (f *fakeVoice) RetryOffer(_ context.Context, id domain.PeerID) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	offerer, ok := f.peers[id]
	if !ok {
		return domain.NewPeerError("retry offer", id, domain.ErrUnknownPeer, nil)
	}
	if !offerer {
		return domain.NewPeerError("retry offer", id, domain.ErrUnexpectedDescription, nil)
	}
	f.retried = append(f.retried, id)
	return nil
}

// playoutRemote is remote media that records its playback sinks.
type playoutRemote struct {
	*coretest.Remote
	mu    sync.Mutex
	sinks map[string]domain.MediaKind
	muted map[string]bool
}

func newPlayoutRemote(id string) *playoutRemote {
	return &playoutRemote{
		Remote: coretest.NewRemote(id),
		sinks:  make(map[string]domain.MediaKind),
		muted:  make(map[string]bool),
	}
}

func (r *playoutRemote) AddSink(name string, kind domain.MediaKind, _ rtc.Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = kind
}

func (r *playoutRemote) MuteSink(name string, muted bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.muted[name] = muted
}

func (r *playoutRemote) isMuted(kind domain.MediaKind) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.muted[playoutSink(kind)]
}

func newTestRouter(t *testing.T, voice Voice) (*gin.Engine, *Hub) {
	t.Helper()
	cfg := &config.Config{Mode: "test", StaticPath: t.TempDir(), Secret: "test-secret"}
	hub := NewHub()
	return SetupRouter(cfg, voice, hub, metrics.New()), hub
}

func do(r http.Handler, method, path, body string, cookies ...*http.Cookie) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for _, c := range cookies {
		req.AddCookie(c)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestStartStop(t *testing.T) {
	voice := &fakeVoice{}
	r, _ := newTestRouter(t, voice)

	w := do(r, http.MethodPost, "/api/voice/start", `{"room":"lobby"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []domain.ChatName{"lobby"}, voice.chats)

	w = do(r, http.MethodPost, "/api/voice/start", `{"room":"lobby"}`)
	assert.Equal(t, http.StatusConflict, w.Code)

	w = do(r, http.MethodGet, "/api/voice/state", "")
	require.Equal(t, http.StatusOK, w.Code)
	var st orch.Status
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &st))
	assert.Equal(t, "active", st.State)
	assert.Equal(t, domain.ChatName("lobby"), st.Chat)

	w = do(r, http.MethodPost, "/api/voice/stop", "")
	assert.Equal(t, http.StatusNoContent, w.Code)
	w = do(r, http.MethodPost, "/api/voice/stop", "")
	assert.Equal(t, http.StatusConflict, w.Code)
}

func TestStartRemembersRoom(t *testing.T) {
	voice := &fakeVoice{}
	r, _ := newTestRouter(t, voice)

	w := do(r, http.MethodPost, "/api/voice/start", "")
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/voice/start", `{"room":"kitchen"}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	cookies := w.Result().Cookies()
	require.NotEmpty(t, cookies)

	require.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/voice/stop", "").Code)

	w = do(r, http.MethodPost, "/api/voice/start", "", cookies...)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, []domain.ChatName{"kitchen", "kitchen"}, voice.chats)
}

func TestStartErrors(t *testing.T) {
	r, _ := newTestRouter(t, &fakeVoice{startErr: domain.ErrMediaAccessDenied})
	w := do(r, http.MethodPost, "/api/voice/start", `{"room":"lobby"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.Contains(t, w.Body.String(), "media access denied")

	r, _ = newTestRouter(t, &fakeVoice{})
	w = do(r, http.MethodPost, "/api/voice/start", `{"room":`)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = do(r, http.MethodPost, "/api/voice/start", `{"room":"`+strings.Repeat("x", 300)+`"}`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestMute(t *testing.T) {
	r, _ := newTestRouter(t, &fakeVoice{})
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/voice/mute", "").Code)

	require.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/voice/start", `{"room":"lobby"}`).Code)
	w := do(r, http.MethodPost, "/api/voice/mute", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"label":"Unmute"}`, w.Body.String())

	w = do(r, http.MethodPost, "/api/voice/mute", "")
	assert.JSONEq(t, `{"label":"Mute"}`, w.Body.String())
}

func TestClientTokenCookie(t *testing.T) {
	r, _ := newTestRouter(t, &fakeVoice{})
	w := do(r, http.MethodGet, "/api/voice/state", "")
	var token string
	for _, c := range w.Result().Cookies() {
		if c.Name == "ct" {
			token = c.Value
		}
	}
	assert.Len(t, token, 36)

	w = do(r, http.MethodGet, "/api/voice/state", "", &http.Cookie{Name: "ct", Value: token})
	for _, c := range w.Result().Cookies() {
		assert.NotEqual(t, "ct", c.Name, "token is issued once")
	}
}

func TestMetricsEndpoint(t *testing.T) {
	r, _ := newTestRouter(t, &fakeVoice{})
	w := do(r, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "go_goroutines")
}

func TestRetryOffer(t *testing.T) {
	voice := &fakeVoice{peers: map[domain.PeerID]bool{"X": true, "Y": false}}
	r, _ := newTestRouter(t, voice)

	assert.Equal(t, http.StatusNoContent, do(r, http.MethodPost, "/api/voice/peers/X/retry", "").Code)
	assert.Equal(t, http.StatusConflict, do(r, http.MethodPost, "/api/voice/peers/Y/retry", "").Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPost, "/api/voice/peers/Z/retry", "").Code)
	assert.Equal(t, []domain.PeerID{"X"}, voice.retried)
}

func TestMutePeerPlayback(t *testing.T) {
	r, hub := newTestRouter(t, &fakeVoice{})
	remote := newPlayoutRemote("s1")
	hub.RemoteMediaAttached("X", remote, core.RenderOptions{Muted: true})
	assert.Equal(t, map[string]domain.MediaKind{
		"playout-audio": domain.MediaKindAudio,
		"playout-video": domain.MediaKindVideo,
	}, remote.sinks)
	assert.True(t, remote.isMuted(domain.MediaKindAudio))

	w := do(r, http.MethodPut, "/api/voice/peers/X/muted", `{"muted":false}`)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.False(t, remote.isMuted(domain.MediaKindAudio))
	assert.False(t, remote.isMuted(domain.MediaKindVideo))

	assert.Equal(t, http.StatusBadRequest, do(r, http.MethodPut, "/api/voice/peers/X/muted", `{}`).Code)
	assert.Equal(t, http.StatusNotFound, do(r, http.MethodPut, "/api/voice/peers/Y/muted", `{"muted":true}`).Code)

	hub.RemoteMediaDetached("X")
	assert.ErrorIs(t, hub.MutePeer("X", true), ErrNotPlaying)
}

func TestStatusFor(t *testing.T) {
	assert.Equal(t, http.StatusServiceUnavailable, statusFor(orch.ErrStopped))
	assert.Equal(t, http.StatusBadGateway, statusFor(domain.NewPeerError("create offer", "X", domain.ErrOfferCreation, nil)))
	assert.Equal(t, http.StatusConflict, statusFor(orch.ErrJoinCanceled))
	assert.Equal(t, http.StatusInternalServerError, statusFor(assert.AnError))
}

func TestEventStream(t *testing.T) {
	r, hub := newTestRouter(t, &fakeVoice{})
	srv := httptest.NewServer(r)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/api/voice/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Contains(t, resp.Header.Get("Content-Type"), "text/event-stream")

	lines := bufio.NewScanner(resp.Body)
	next := func(prefix string) string {
		for lines.Scan() {
			if after, ok := strings.CutPrefix(lines.Text(), prefix); ok {
				return after
			}
		}
		t.Fatalf("stream ended before %q", prefix)
		return ""
	}

	require.Equal(t, "ready", next("event:"))
	require.Equal(t, 1, hub.Subscribers())

	hub.RemoteMediaAttached("peer-b", coretest.NewRemote("stream-b"), core.RenderOptions{Muted: true})
	hub.MuteLabelChanged("Unmute")
	hub.PeerFailed("peer-b", domain.ErrNegotiationStalled)

	require.Equal(t, EventMediaAttached, next("event:"))
	var e Event
	require.NoError(t, json.Unmarshal([]byte(next("data:")), &e))
	assert.Equal(t, domain.PeerID("peer-b"), e.Peer)
	assert.Equal(t, "stream-b", e.Stream)
	assert.True(t, e.Muted)

	require.Equal(t, EventMuteLabel, next("event:"))
	require.Equal(t, EventPeerFailed, next("event:"))
	require.NoError(t, json.Unmarshal([]byte(next("data:")), &e))
	assert.Equal(t, "negotiation stalled", e.Error)

	cancel()
	assert.Eventually(t, func() bool { return hub.Subscribers() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestHubDropsForSlowSubscriber(t *testing.T) {
	hub := NewHub()
	events, stop := hub.Subscribe()
	for range subscriberBuffer + 10 {
		hub.RemoteMediaDetached("peer")
	}
	assert.Len(t, events, subscriberBuffer)
	stop()
	stop()
	assert.Equal(t, 0, hub.Subscribers())
}
