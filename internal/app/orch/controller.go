// Package orch runs a room session: it owns the local stream, the peer
// registry and every negotiation, and serializes all of it on one loop.
package orch

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/app"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

var (
	ErrStopped      = errors.New("controller stopped")
	ErrJoinCanceled = errors.New("join canceled")
)

const DefaultStallTimeout = 15 * time.Second

type SessionState int

const (
	SessionIdle SessionState = iota
	SessionJoining
	SessionActive
)

func (s SessionState) String() string {
	switch s {
	case SessionJoining:
		return "joining"
	case SessionActive:
		return "active"
	default:
		return "idle"
	}
}

// Options tune a session.
type Options struct {
	Constraints domain.Constraints
	// MuteByDefault marks remote media as muted when it is announced.
	MuteByDefault bool
	// StallTimeout bounds how long a peer may take to reach stable.
	// Zero disables the watchdog.
	StallTimeout time.Duration
}

// Deps are the collaborators a Controller drives. Peers, Policy and Metrics
// may be left nil.
type Deps struct {
	Signaler core.Signaler
	Media    *app.LocalMedia
	Peers    *app.Registry
	Factory  core.ConnectionFactory
	Renderer core.Renderer
	Policy   app.Policy
	Metrics  *metrics.Metrics
}

// Status is what Snapshot reports.
type Status struct {
	State string           `json:"state"`
	Chat  domain.ChatName  `json:"chat"`
	Muted bool             `json:"muted"`
	Peers []app.PeerStatus `json:"peers"`
}

// Controller owns one voice session and every peer in it. All of its state
// is touched from the Run loop only.
type Controller struct {
	sig      core.Signaler
	media    *app.LocalMedia
	peers    *app.Registry
	factory  core.ConnectionFactory
	renderer core.Renderer
	policy   app.Policy
	metrics  *metrics.Metrics

	box  *mailbox
	done chan struct{}

	// Owned by the loop.
	runCtx  context.Context
	opts    Options
	state   SessionState
	chat    domain.ChatName
	stream  core.LocalStream
	muted   bool
	joining *join
}

// New wires a controller and registers its relay handlers on d.Signaler.
func New(d Deps, opts Options) *Controller {
	if d.Policy == nil {
		d.Policy = app.SimplePolicy{}
	}
	if d.Renderer == nil {
		d.Renderer = nopRenderer{}
	}
	if d.Peers == nil {
		d.Peers = app.NewRegistry(d.Metrics)
	}
	c := &Controller{
		sig:      d.Signaler,
		media:    d.Media,
		peers:    d.Peers,
		factory:  d.Factory,
		renderer: d.Renderer,
		policy:   d.Policy,
		metrics:  d.Metrics,
		box:      newMailbox(),
		done:     make(chan struct{}),
		opts:     opts,
	}
	c.bindRelay()
	return c
}

// Run executes posted work until ctx is done, then stops the session.
func (c *Controller) Run(ctx context.Context) error {
	defer close(c.done)
	defer c.box.close()
	c.runCtx = ctx
	log.Info().Str("module", "orch").Msg("controller loop started")

	for {
		select {
		case <-ctx.Done():
			if c.state != SessionIdle {
				_ = c.stop()
			}
			log.Info().Str("module", "orch").Msg("controller loop stopped")
			return nil
		case <-c.box.wake:
			for _, fn := range c.box.take() {
				fn()
			}
		}
	}
}

func (c *Controller) post(fn func()) {
	if !c.box.post(fn) {
		log.Debug().Str("module", "orch").Msg("dropped event after shutdown")
	}
}

// call runs fn on the loop and waits for its result.
func (c *Controller) call(ctx context.Context, fn func() error) error {
	res := make(chan error, 1)
	if !c.box.post(func() { res <- fn() }) {
		return ErrStopped
	}
	select {
	case err := <-res:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		select {
		case err := <-res:
			return err
		default:
			return ErrStopped
		}
	}
}

// Flush returns once everything posted before it has run.
func (c *Controller) Flush(ctx context.Context) error {
	return c.call(ctx, func() error { return nil })
}

func (c *Controller) Snapshot(ctx context.Context) (Status, error) {
	var st Status
	err := c.call(ctx, func() error {
		st = Status{
			State: c.state.String(),
			Chat:  c.chat,
			Muted: c.muted,
			Peers: c.peers.Snapshot(),
		}
		return nil
	})
	return st, err
}

// SetMuteByDefault changes how later remote media is announced.
func (c *Controller) SetMuteByDefault(v bool) {
	c.post(func() { c.opts.MuteByDefault = v })
}

func (c *Controller) renderOptions() core.RenderOptions {
	return core.RenderOptions{Video: c.opts.Constraints.Video, Muted: c.opts.MuteByDefault}
}

func (c *Controller) send(event string, args ...any) {
	c.metrics.Signal(metrics.DirOut, event)
	if err := c.sig.Send(event, args...); err != nil {
		log.Warn().Str("module", "orch").Str("event", event).Err(err).Msg("relay send failed")
	}
}

type nopRenderer struct{}

func (nopRenderer) RemoteMediaAttached(domain.PeerID, core.RemoteMedia, core.RenderOptions) {}
func (nopRenderer) RemoteMediaDetached(domain.PeerID)                                       {}
func (nopRenderer) MuteLabelChanged(string)                                                 {}
func (nopRenderer) PeerFailed(domain.PeerID, error)                                         {}
