package orch

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

// bindRelay registers the relay event handlers. They decode on the
// signaling goroutine and hand the result to the loop.
func (c *Controller) bindRelay() {
	c.on(core.EventAddToCall, func(a core.Args) error {
		var (
			id       domain.PeerID
			initiate bool
		)
		if err := decodeArgs(a, &id, &initiate); err != nil {
			return err
		}
		c.post(func() { c.addPeer(id, initiate) })
		return nil
	})
	c.on(core.EventRemoveFromCall, func(a core.Args) error {
		var id domain.PeerID
		if err := decodeArgs(a, &id); err != nil {
			return err
		}
		c.post(func() { c.removePeer(id) })
		return nil
	})
	c.on(core.EventSessionDescription, func(a core.Args) error {
		var (
			id domain.PeerID
			d  domain.SessionDescription
		)
		if err := decodeArgs(a, &id, &d); err != nil {
			return err
		}
		c.post(func() { c.sessionDescription(id, d) })
		return nil
	})
	c.on(core.EventIceCandidate, func(a core.Args) error {
		var (
			id   domain.PeerID
			cand domain.Candidate
		)
		if err := decodeArgs(a, &id, &cand); err != nil {
			return err
		}
		c.post(func() { c.iceCandidate(id, cand) })
		return nil
	})

	c.sig.On(core.EventConnected, func(core.Args) {
		log.Info().Str("module", "orch").Msg("connected to signaling server")
	})
	c.sig.On(core.EventDisconnected, func(core.Args) {
		log.Warn().Str("module", "orch").Msg("disconnected from signaling server")
	})
	c.sig.On(core.EventReconnected, func(core.Args) {
		c.metrics.Reconnect()
		c.post(c.rejoin)
	})
}

func (c *Controller) on(event string, h func(core.Args) error) {
	c.sig.On(event, func(a core.Args) {
		c.metrics.Signal(metrics.DirIn, event)
		if err := h(a); err != nil {
			log.Warn().Str("module", "orch").Str("event", event).Err(err).Msg("malformed relay message")
		}
	})
}

func decodeArgs(a core.Args, vs ...any) error {
	if a.Len() < len(vs) {
		return fmt.Errorf("want %d args, got %d", len(vs), a.Len())
	}
	for i, v := range vs {
		if err := a.Decode(i, v); err != nil {
			return fmt.Errorf("arg %d: %w", i, err)
		}
	}
	return nil
}
