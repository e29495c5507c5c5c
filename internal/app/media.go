package app

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
	"github.com/dkeye/VoiceChat/internal/metrics"
)

// DefaultMediaRetries is how many extra capture attempts follow a denial.
const DefaultMediaRetries = 2

// LocalMedia holds the one local stream shared by every peer connection.
type LocalMedia struct {
	capturer core.Capturer
	retries  int
	metrics  *metrics.Metrics

	mu     sync.Mutex
	stream core.LocalStream
}

func NewLocalMedia(capturer core.Capturer, retries int) *LocalMedia {
	if retries < 0 {
		retries = 0
	}
	return &LocalMedia{capturer: capturer, retries: retries}
}

// WithMetrics records every capture attempt into m.
func (lm *LocalMedia) WithMetrics(m *metrics.Metrics) *LocalMedia {
	lm.metrics = m
	return lm
}

// Acquire returns the held stream, or captures one. A denial is retried up to
// the configured count; any other failure aborts at once. If ctx is done when
// the capture completes, the fresh stream is stopped instead of held.
func (lm *LocalMedia) Acquire(ctx context.Context, c domain.Constraints) (core.LocalStream, error) {
	if s := lm.Stream(); s != nil {
		return s, nil
	}

	var lastErr error
	for attempt := 1; attempt <= 1+lm.retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		s, err := lm.capturer.Capture(ctx, c)
		if err == nil {
			lm.metrics.MediaAttempt(metrics.MediaGranted)
			return lm.hold(ctx, s)
		}
		lastErr = err
		if !errors.Is(err, domain.ErrMediaAccessDenied) {
			lm.metrics.MediaAttempt(metrics.MediaFailed)
			log.Error().Str("module", "app.media").Err(err).Msg("capture failed")
			return nil, err
		}
		lm.metrics.MediaAttempt(metrics.MediaDenied)
		log.Warn().Str("module", "app.media").Int("attempt", attempt).Msg("access denied for audio/video")
	}
	return nil, fmt.Errorf("after %d attempts: %w", 1+lm.retries, lastErr)
}

func (lm *LocalMedia) hold(ctx context.Context, s core.LocalStream) (core.LocalStream, error) {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	if err := ctx.Err(); err != nil {
		stopTracks(s)
		return nil, err
	}
	if lm.stream != nil {
		stopTracks(s)
		return lm.stream, nil
	}
	lm.stream = s
	log.Info().Str("module", "app.media").Str("stream", s.ID()).Int("tracks", len(s.Tracks())).Msg("access granted to audio/video")
	return s, nil
}

// Release stops every held track once. Later calls do nothing.
func (lm *LocalMedia) Release() {
	lm.mu.Lock()
	s := lm.stream
	lm.stream = nil
	lm.mu.Unlock()
	if s == nil {
		return
	}
	stopTracks(s)
	log.Info().Str("module", "app.media").Str("stream", s.ID()).Msg("released local media")
}

func (lm *LocalMedia) Stream() core.LocalStream {
	lm.mu.Lock()
	defer lm.mu.Unlock()
	return lm.stream
}

func (lm *LocalMedia) Held() bool { return lm.Stream() != nil }

func stopTracks(s core.LocalStream) {
	for _, t := range s.Tracks() {
		t.Stop()
	}
}
