package orch

import (
	"context"
	"errors"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/app"
	"github.com/dkeye/VoiceChat/internal/app/negotiation"
	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

func (c *Controller) addPeer(id domain.PeerID, initiate bool) {
	if c.state != SessionActive {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Msg("AddToCall outside a session ignored")
		return
	}
	// The stale peer goes first, even if the replacement cannot be built.
	if stale, ok := c.peers.Remove(id); ok {
		log.Warn().Str("module", "orch").Str("peer", string(id)).Msg("already connected to peer, replacing")
		c.teardown(stale)
	}

	conn, err := c.factory.NewConnection()
	if err != nil {
		c.report(id, fmt.Errorf("new connection [peer %s]: %w", id, err))
		return
	}
	p := negotiation.New(id, domain.RoleFor(initiate), conn)
	c.peers.Add(p)
	c.bindConnection(p, conn)
	p.ArmStallTimer(c.opts.StallTimeout, func() {
		c.post(func() { c.stalled(p) })
	})
	log.Info().Str("module", "orch").Str("peer", string(id)).Str("role", p.Role().String()).Msg("signaling server said to add peer")

	res, err := p.Start(c.stream)
	c.apply(p, res, err)
}

// bindConnection routes the connection's callbacks onto the loop. Each one
// re-checks that p is still the live entry for its id.
func (c *Controller) bindConnection(p *negotiation.Peer, conn core.MediaConnection) {
	id := p.ID()
	conn.OnLocalCandidate(func(cand domain.Candidate) {
		c.post(func() {
			if !c.peers.Live(id, p) {
				return
			}
			c.send(core.EventRelayIceCandidate, c.chat, id, cand)
		})
	})
	conn.OnRemoteMedia(func(m core.RemoteMedia) {
		c.post(func() {
			if !c.peers.Live(id, p) {
				m.Detach()
				return
			}
			if p.Remote() == m {
				return
			}
			if prev := p.AttachRemote(m); prev != nil {
				prev.Detach()
			}
			log.Info().Str("module", "orch").Str("peer", string(id)).Str("stream", m.ID()).Msg("remote media attached")
			c.renderer.RemoteMediaAttached(id, m, c.renderOptions())
		})
	})
	conn.OnTransportState(func(s core.TransportState) {
		c.post(func() {
			if !c.peers.Live(id, p) {
				return
			}
			c.transportChanged(p, s)
		})
	})
}

// RetryOffer re-runs offer creation for an offerer whose first attempt
// failed. The peer keeps its connection and buffered candidates.
func (c *Controller) RetryOffer(ctx context.Context, id domain.PeerID) error {
	return c.call(ctx, func() error { return c.retryOffer(id) })
}

func (c *Controller) retryOffer(id domain.PeerID) error {
	p, ok := c.peers.Get(id)
	if !ok {
		return domain.NewPeerError("retry offer", id, domain.ErrUnknownPeer, nil)
	}
	log.Info().Str("module", "orch").Str("peer", string(id)).Msg("retrying offer")
	res, err := p.RetryOffer()
	c.apply(p, res, err)
	return err
}

func (c *Controller) removePeer(id domain.PeerID) {
	p, ok := c.peers.Remove(id)
	if !ok {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Msg("RemoveFromCall for unknown peer ignored")
		return
	}
	log.Info().Str("module", "orch").Str("peer", string(id)).Msg("signaling server said to remove peer")
	c.teardown(p)
}

func (c *Controller) sessionDescription(id domain.PeerID, d domain.SessionDescription) {
	p, ok := c.peers.Get(id)
	if !ok {
		c.report(id, domain.NewPeerError("set remote description", id, domain.ErrUnknownPeer, nil))
		return
	}
	res, err := p.ApplyRemoteDescription(d)
	c.apply(p, res, err)
}

func (c *Controller) iceCandidate(id domain.PeerID, cand domain.Candidate) {
	p, ok := c.peers.Get(id)
	if !ok {
		c.report(id, domain.NewPeerError("add candidate", id, domain.ErrUnknownPeer, nil))
		return
	}
	res, err := p.AddRemoteCandidate(cand)
	if res.Buffered {
		log.Debug().Str("module", "orch").Str("peer", string(id)).Int("pending", p.Pending()).Msg("candidate buffered")
	}
	c.apply(p, res, err)
}

// apply relays what a transition produced and reports its failure.
func (c *Controller) apply(p *negotiation.Peer, res negotiation.Result, err error) {
	if res.Changed() {
		c.metrics.Transition(p.Role().String(), res.To.String())
		log.Debug().Str("module", "orch").Str("peer", string(p.ID())).
			Str("from", res.From.String()).Str("to", res.To.String()).Msg("negotiation advanced")
	}
	if res.Flushed > 0 {
		log.Debug().Str("module", "orch").Str("peer", string(p.ID())).Int("flushed", res.Flushed).Msg("flushed buffered candidates")
	}
	if res.Outbound != nil {
		c.send(core.EventRelaySessionDescription, c.chat, p.ID(), *res.Outbound)
	}
	if p.Stable() {
		p.Disarm()
	}
	if err != nil {
		c.report(p.ID(), err)
	}
}

func (c *Controller) stalled(p *negotiation.Peer) {
	id := p.ID()
	if !c.peers.Live(id, p) || p.Stable() {
		return
	}
	c.metrics.Stall()
	err := domain.NewPeerError("negotiate", id, domain.ErrNegotiationStalled, fmt.Errorf("stuck in %s", p.State()))
	switch c.policy.OnStall(id, p.State()) {
	case app.ClosePeer:
		c.report(id, err)
		c.dropPeer(p)
	case app.ReportPeer:
		c.report(id, err)
	case app.NoAction:
	}
}

func (c *Controller) transportChanged(p *negotiation.Peer, s core.TransportState) {
	id := p.ID()
	log.Info().Str("module", "orch").Str("peer", string(id)).Str("transport", s.String()).Msg("transport state changed")
	switch c.policy.OnTransport(id, s) {
	case app.ClosePeer:
		if s == core.TransportFailed {
			c.report(id, domain.NewPeerError("transport", id, domain.ErrPeerClosed, errors.New("transport failed")))
		}
		c.dropPeer(p)
	case app.ReportPeer:
		c.report(id, fmt.Errorf("transport %s [peer %s]", s, id))
	case app.NoAction:
	}
}

func (c *Controller) dropPeer(p *negotiation.Peer) {
	if cur, ok := c.peers.Get(p.ID()); ok && cur == p {
		c.peers.Remove(p.ID())
	}
	c.teardown(p)
}

// teardown closes p and tells the renderer its media is gone.
func (c *Controller) teardown(p *negotiation.Peer) {
	remote, err := p.Close()
	if remote != nil {
		c.renderer.RemoteMediaDetached(p.ID())
	}
	if err != nil {
		log.Warn().Str("module", "orch").Str("peer", string(p.ID())).Err(err).Msg("close peer")
	}
}

func (c *Controller) closeAll() {
	for _, p := range c.peers.Drain() {
		c.teardown(p)
	}
}

func (c *Controller) report(id domain.PeerID, err error) {
	op := "unknown"
	var pe *domain.PeerError
	if errors.As(err, &pe) {
		op = pe.Op
	}
	c.metrics.PeerError(op)
	log.Error().Str("module", "orch").Str("peer", string(id)).Bool("retryable", domain.IsRetryable(err)).Err(err).Msg("peer failure")
	c.renderer.PeerFailed(id, err)
}
