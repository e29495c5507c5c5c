package orch

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

// join tracks one in-flight media acquisition.
type join struct {
	chat   domain.ChatName
	cancel context.CancelFunc
	result chan error
}

// Start acquires local media and joins chat. It returns once the relay has
// been asked to join, or with the reason it was not.
func (c *Controller) Start(ctx context.Context, chat domain.ChatName) error {
	if err := domain.ValidateChatName(chat); err != nil {
		return err
	}
	var j *join
	if err := c.call(ctx, func() (err error) {
		j, err = c.start(chat)
		return err
	}); err != nil {
		return err
	}
	select {
	case err := <-j.result:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.done:
		return ErrStopped
	}
}

func (c *Controller) start(chat domain.ChatName) (*join, error) {
	if c.state != SessionIdle {
		log.Warn().Str("module", "orch").Str("chat", string(c.chat)).Msg("voice chat is already running")
		return nil, domain.ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(c.runCtx)
	j := &join{chat: chat, cancel: cancel, result: make(chan error, 1)}
	c.state = SessionJoining
	c.chat = chat
	c.joining = j
	log.Info().Str("module", "orch").Str("chat", string(chat)).Msg("requesting access to local audio/video")

	constraints := c.opts.Constraints
	go func() {
		stream, err := c.media.Acquire(ctx, constraints)
		c.post(func() { c.joined(j, stream, err) })
	}()
	return j, nil
}

func (c *Controller) joined(j *join, stream core.LocalStream, err error) {
	if c.joining != j {
		// Stop already answered this join and released media.
		return
	}
	c.joining = nil
	j.cancel()
	if err != nil {
		c.state = SessionIdle
		c.chat = ""
		log.Error().Str("module", "orch").Str("chat", string(j.chat)).Err(err).Msg("could not start voice chat")
		j.result <- err
		return
	}
	c.state = SessionActive
	c.stream = stream
	c.muted = false
	c.send(core.EventJoinChat, c.chat)
	log.Info().Str("module", "orch").Str("chat", string(c.chat)).Msg("joined chat")
	j.result <- nil
}

// Stop leaves the chat, tears down every peer and releases local media.
func (c *Controller) Stop(ctx context.Context) error {
	return c.call(ctx, c.stop)
}

func (c *Controller) stop() error {
	switch c.state {
	case SessionIdle:
		log.Warn().Str("module", "orch").Msg("voice chat must be running in order to be stopped")
		return domain.ErrNotRunning
	case SessionJoining:
		j := c.joining
		c.joining = nil
		j.cancel()
		j.result <- fmt.Errorf("%w: stopped while acquiring media", ErrJoinCanceled)
	case SessionActive:
		c.send(core.EventLeaveChat, c.chat)
		c.closeAll()
	}
	c.media.Release()
	log.Info().Str("module", "orch").Str("chat", string(c.chat)).Msg("left chat")
	c.state = SessionIdle
	c.chat = ""
	c.stream = nil
	c.muted = false
	return nil
}

// MuteToggle flips every local track and returns the new button label.
func (c *Controller) MuteToggle(ctx context.Context) (string, error) {
	var label string
	err := c.call(ctx, func() (err error) {
		label, err = c.muteToggle()
		return err
	})
	return label, err
}

func (c *Controller) muteToggle() (string, error) {
	if c.state != SessionActive {
		log.Warn().Str("module", "orch").Msg("voice chat must be running in order to be mute/unmute")
		return "", domain.ErrNotRunning
	}
	for _, t := range c.stream.Tracks() {
		t.SetEnabled(!t.Enabled())
	}
	c.muted = !c.muted
	label := MuteLabel(c.muted)
	c.renderer.MuteLabelChanged(label)
	log.Info().Str("module", "orch").Bool("muted", c.muted).Msg("toggled mute")
	return label, nil
}

// MuteLabel is the text of the mute button for the given state.
func MuteLabel(muted bool) string {
	if muted {
		return "Unmute"
	}
	return "Mute"
}

// rejoin renegotiates everything after the relay connection came back: the
// relay forgot our membership, so every peer is stale.
func (c *Controller) rejoin() {
	if c.state != SessionActive {
		return
	}
	log.Info().Str("module", "orch").Str("chat", string(c.chat)).Int("peers", c.peers.Len()).Msg("relay reconnected, rejoining")
	c.closeAll()
	c.send(core.EventJoinChat, c.chat)
}
