package rtc

import (
	"context"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/pion/rtp"
	"github.com/rs/zerolog"

	"github.com/dkeye/VoiceChat/internal/domain"
)

// Sink receives the RTP packets of a remote stream.
type Sink interface {
	WriteRTP(*rtp.Packet) error
}

type SinkState int32

const (
	SinkOk SinkState = iota
	SinkMuted
	SinkDelete
)

type sinkEntry struct {
	sink  Sink
	kind  domain.MediaKind
	state atomic.Int32
}

func (e *sinkEntry) State() SinkState { return SinkState(e.state.Load()) }
func (e *sinkEntry) mark(s SinkState) { e.state.Store(int32(s)) }

// RemoteStream is the media received from one peer under one stream id.
// It pumps each track's packets to the attached sinks.
type RemoteStream struct {
	id     string
	ctx    context.Context
	cancel context.CancelFunc
	logger zerolog.Logger

	mu    sync.RWMutex
	kinds []domain.MediaKind
	sinks map[string]*sinkEntry

	packets  atomic.Uint64
	detached atomic.Bool
}

func newRemoteStream(parent context.Context, id string, logger zerolog.Logger) *RemoteStream {
	ctx, cancel := context.WithCancel(parent)
	return &RemoteStream{
		id:     id,
		ctx:    ctx,
		cancel: cancel,
		logger: logger.With().Str("stream_id", id).Logger(),
		sinks:  make(map[string]*sinkEntry),
	}
}

func (r *RemoteStream) ID() string { return r.id }

func (r *RemoteStream) Kinds() []domain.MediaKind {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]domain.MediaKind(nil), r.kinds...)
}

// Packets counts the packets read from every track so far.
func (r *RemoteStream) Packets() uint64 { return r.packets.Load() }

// AddSink starts forwarding packets of kind to s under name.
func (r *RemoteStream) AddSink(name string, kind domain.MediaKind, s Sink) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sinks[name] = &sinkEntry{sink: s, kind: kind}
}

// MuteSink pauses or resumes forwarding to the named sink.
func (r *RemoteStream) MuteSink(name string, muted bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	e, ok := r.sinks[name]
	if !ok || e.State() == SinkDelete {
		return
	}
	if muted {
		e.mark(SinkMuted)
	} else {
		e.mark(SinkOk)
	}
}

func (r *RemoteStream) Detach() {
	if r.detached.Swap(true) {
		return
	}
	r.cancel()
	r.markAllDelete()
	r.logger.Info().Uint64("packets", r.Packets()).Msg("remote stream detached")
}

func (r *RemoteStream) addTrack(kind domain.MediaKind, read func() (*rtp.Packet, error)) {
	r.mu.Lock()
	r.kinds = append(r.kinds, kind)
	r.mu.Unlock()
	go r.loop(kind, read)
}

// loop reads packets of one track and forwards them until the stream is
// detached or the track ends.
func (r *RemoteStream) loop(kind domain.MediaKind, read func() (*rtp.Packet, error)) {
	for {
		select {
		case <-r.ctx.Done():
			return
		default:
		}
		pkt, err := read()
		if err != nil {
			r.logger.Debug().Err(err).Str("kind", string(kind)).Msg("remote track ended")
			return
		}
		r.packets.Add(1)
		r.forward(kind, pkt)
	}
}

func (r *RemoteStream) forward(kind domain.MediaKind, pkt *rtp.Packet) {
	r.mu.RLock()
	snapshot := maps.Clone(r.sinks)
	r.mu.RUnlock()

	var dirty []string
	for name, e := range snapshot {
		if e.kind != kind {
			continue
		}
		switch e.State() {
		case SinkDelete:
			dirty = append(dirty, name)
		case SinkMuted:
		case SinkOk:
			if err := e.sink.WriteRTP(pkt); err != nil {
				r.logger.Error().Err(err).Str("sink", name).Msg("sink write error, removing sink")
				e.mark(SinkDelete)
				dirty = append(dirty, name)
			}
		}
	}
	if len(dirty) > 0 {
		r.cleanupDeleted(dirty)
	}
}

func (r *RemoteStream) cleanupDeleted(dirty []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, name := range dirty {
		if e, ok := r.sinks[name]; ok && e.State() == SinkDelete {
			delete(r.sinks, name)
		}
	}
}

func (r *RemoteStream) markAllDelete() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.sinks {
		e.mark(SinkDelete)
	}
}
