package relay_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dkeye/VoiceChat/internal/adapters/capture"
	"github.com/dkeye/VoiceChat/internal/adapters/rtc"
	"github.com/dkeye/VoiceChat/internal/adapters/signal"
	"github.com/dkeye/VoiceChat/internal/app"
	"github.com/dkeye/VoiceChat/internal/app/orch"
	"github.com/dkeye/VoiceChat/internal/core/coretest"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/relay"
)

type participant struct {
	ctl      *orch.Controller
	client   *signal.Client
	renderer *coretest.Renderer
}

func join(t *testing.T, ctx context.Context, url string) *participant {
	t.Helper()
	factory, err := rtc.NewFactory(rtc.Config{IncludeLoopback: true})
	require.NoError(t, err)

	p := &participant{
		client:   signal.NewClient(signal.Options{URL: url}),
		renderer: &coretest.Renderer{},
	}
	p.ctl = orch.New(orch.Deps{
		Signaler: p.client,
		Media:    app.NewLocalMedia(capture.New(0), app.DefaultMediaRetries),
		Factory:  factory,
		Renderer: p.renderer,
	}, orch.Options{Constraints: domain.Constraints{Audio: true}, StallTimeout: orch.DefaultStallTimeout})

	go func() { _ = p.ctl.Run(ctx) }()
	go func() { _ = p.client.Run(ctx) }()
	require.Eventually(t, p.client.Connected, 5*time.Second, 10*time.Millisecond)
	return p
}

func (p *participant) peers(t *testing.T) []app.PeerStatus {
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	st, err := p.ctl.Snapshot(ctx)
	require.NoError(t, err)
	return st.Peers
}

func connected(peers []app.PeerStatus) bool {
	return len(peers) == 1 && peers[0].Stable && peers[0].Attached
}

func TestTwoParticipantCall(t *testing.T) {
	if testing.Short() {
		t.Skip("opens real sockets")
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	s := relay.NewServer(relay.Options{})
	srv := httptest.NewServer(s.Router(ctx, "test"))
	defer srv.Close()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ConnectionHub"

	a := join(t, ctx, url)
	b := join(t, ctx, url)

	require.NoError(t, a.ctl.Start(ctx, "lobby"))
	require.Eventually(t, func() bool { return len(s.Rooms().Members("lobby")) == 1 }, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, b.ctl.Start(ctx, "lobby"))

	require.Eventually(t, func() bool { return connected(a.peers(t)) && connected(b.peers(t)) },
		20*time.Second, 50*time.Millisecond)
	assert.Equal(t, domain.RoleAnswerer.String(), a.peers(t)[0].Role)
	assert.Equal(t, domain.RoleOfferer.String(), b.peers(t)[0].Role)
	assert.Equal(t, 1, a.renderer.Count("attached"))
	assert.Equal(t, 1, b.renderer.Count("attached"))

	require.NoError(t, b.ctl.Stop(ctx))
	require.Eventually(t, func() bool { return len(a.peers(t)) == 0 }, 5*time.Second, 20*time.Millisecond)
	assert.Equal(t, 1, a.renderer.Count("detached"))
}
