// Package capture provides local media tracks backed by pion sample tracks.
// There is no device access: each enabled track emits one synthetic frame
// per interval.
package capture

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	"github.com/pion/webrtc/v4/pkg/media"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

const DefaultFrameInterval = 20 * time.Millisecond

var errNoKinds = errors.New("no media kind requested")

var (
	// Opus TOC byte for a 20ms silent CELT frame.
	opusSilence = []byte{0xf8, 0xff, 0xfe}
	// Minimal VP8 inter frame header.
	vp8Blank = []byte{0x01, 0x00, 0x00}
)

type Capturer struct {
	interval time.Duration
	granted  atomic.Bool
}

func New(interval time.Duration) *Capturer {
	if interval <= 0 {
		interval = DefaultFrameInterval
	}
	c := &Capturer{interval: interval}
	c.granted.Store(true)
	return c
}

// SetPermission models the user's answer to the capture prompt.
func (c *Capturer) SetPermission(granted bool) { c.granted.Store(granted) }

func (c *Capturer) Capture(ctx context.Context, cons domain.Constraints) (core.LocalStream, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !c.granted.Load() {
		return nil, domain.ErrMediaAccessDenied
	}
	kinds := cons.Kinds()
	if len(kinds) == 0 {
		return nil, errNoKinds
	}

	s := &Stream{id: uuid.NewString()}
	for _, k := range kinds {
		t, err := newTrack(s.id, k, c.interval)
		if err != nil {
			for _, prev := range s.tracks {
				prev.Stop()
			}
			return nil, err
		}
		s.tracks = append(s.tracks, t)
	}
	log.Debug().Str("module", "capture").Str("stream", s.id).Int("tracks", len(s.tracks)).Msg("captured local stream")
	return s, nil
}

type Stream struct {
	id     string
	tracks []*Track
}

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []core.Track {
	out := make([]core.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

type Track struct {
	local   *webrtc.TrackLocalStaticSample
	kind    domain.MediaKind
	enabled atomic.Bool
	frames  atomic.Uint64

	stop chan struct{}
	once sync.Once
	done chan struct{}
}

func newTrack(streamID string, kind domain.MediaKind, interval time.Duration) (*Track, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2}
	frame := opusSilence
	if kind == domain.MediaKindVideo {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8, ClockRate: 90000}
		frame = vp8Blank
	}
	local, err := webrtc.NewTrackLocalStaticSample(capability, string(kind)+"-"+uuid.NewString(), streamID)
	if err != nil {
		return nil, fmt.Errorf("new %s track: %w", kind, err)
	}
	t := &Track{local: local, kind: kind, stop: make(chan struct{}), done: make(chan struct{})}
	t.enabled.Store(true)
	go t.run(frame, interval)
	return t, nil
}

func (t *Track) run(frame []byte, interval time.Duration) {
	defer close(t.done)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-t.stop:
			return
		case <-ticker.C:
			if !t.enabled.Load() {
				continue
			}
			// Fails only while no peer is bound; keep ticking.
			if err := t.local.WriteSample(media.Sample{Data: frame, Duration: interval}); err == nil {
				t.frames.Add(1)
			}
		}
	}
}

func (t *Track) ID() string                    { return t.local.ID() }
func (t *Track) Kind() domain.MediaKind        { return t.kind }
func (t *Track) Enabled() bool                 { return t.enabled.Load() }
func (t *Track) SetEnabled(v bool)             { t.enabled.Store(v) }
func (t *Track) TrackLocal() webrtc.TrackLocal { return t.local }

// Frames counts the samples written so far.
func (t *Track) Frames() uint64 { return t.frames.Load() }

func (t *Track) Stop() {
	t.once.Do(func() { close(t.stop) })
	<-t.done
}
