// Package coretest provides in-memory implementations of the core
// collaborators for tests.
package coretest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/dkeye/VoiceChat/internal/core"
	"github.com/dkeye/VoiceChat/internal/domain"
)

type Track struct {
	id      string
	kind    domain.MediaKind
	enabled atomic.Bool
	stops   atomic.Int32
}

func NewTrack(id string, kind domain.MediaKind) *Track {
	t := &Track{id: id, kind: kind}
	t.enabled.Store(true)
	return t
}

func (t *Track) ID() string             { return t.id }
func (t *Track) Kind() domain.MediaKind { return t.kind }
func (t *Track) Enabled() bool          { return t.enabled.Load() }
func (t *Track) SetEnabled(v bool)      { t.enabled.Store(v) }
func (t *Track) Stop()                  { t.stops.Add(1) }
func (t *Track) Stops() int             { return int(t.stops.Load()) }

type Stream struct {
	id     string
	tracks []*Track
}

func NewStream(id string, tracks ...*Track) *Stream { return &Stream{id: id, tracks: tracks} }

func (s *Stream) ID() string { return s.id }

func (s *Stream) Tracks() []core.Track {
	out := make([]core.Track, len(s.tracks))
	for i, t := range s.tracks {
		out[i] = t
	}
	return out
}

// Capturer fails with the queued errors first, then hands out fresh streams.
type Capturer struct {
	mu      sync.Mutex
	errs    []error
	calls   int
	streams []*Stream
	gate    chan struct{}
}

func (c *Capturer) FailWith(errs ...error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.errs = append(c.errs, errs...)
}

// Block makes Capture wait until the returned func is called.
func (c *Capturer) Block() (release func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gate = make(chan struct{})
	gate := c.gate
	var once sync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (c *Capturer) Capture(ctx context.Context, cons domain.Constraints) (core.LocalStream, error) {
	c.mu.Lock()
	c.calls++
	gate := c.gate
	var err error
	if len(c.errs) > 0 {
		err, c.errs = c.errs[0], c.errs[1:]
	}
	n := c.calls
	c.mu.Unlock()

	if gate != nil {
		<-gate
	}
	if err != nil {
		return nil, err
	}
	var tracks []*Track
	for _, k := range cons.Kinds() {
		tracks = append(tracks, NewTrack(fmt.Sprintf("%s-%d", k, n), k))
	}
	s := NewStream(fmt.Sprintf("local-%d", n), tracks...)
	c.mu.Lock()
	c.streams = append(c.streams, s)
	c.mu.Unlock()
	return s, nil
}

func (c *Capturer) Calls() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func (c *Capturer) Streams() []*Stream {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]*Stream(nil), c.streams...)
}

type Remote struct {
	id       string
	detaches atomic.Int32
}

func NewRemote(id string) *Remote { return &Remote{id: id} }

func (r *Remote) ID() string                { return r.id }
func (r *Remote) Kinds() []domain.MediaKind { return []domain.MediaKind{domain.MediaKindAudio} }
func (r *Remote) Detach()                   { r.detaches.Add(1) }
func (r *Remote) Detaches() int             { return int(r.detaches.Load()) }

// Conn is a scripted core.MediaConnection. Emit* methods play the role of
// the real-time subsystem's goroutines.
type Conn struct {
	mu sync.Mutex

	OfferErr, AnswerErr, RemoteErr error

	local      []domain.SessionDescription
	remote     []domain.SessionDescription
	candidates []domain.Candidate
	streams    []core.LocalStream
	closed     int

	onCandidate func(domain.Candidate)
	onRemote    func(core.RemoteMedia)
	onState     func(core.TransportState)
}

func (c *Conn) CreateOffer() (domain.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.OfferErr != nil {
		return domain.SessionDescription{}, c.OfferErr
	}
	return domain.SessionDescription{Type: domain.SDPTypeOffer, SDP: "v=0 offer"}, nil
}

func (c *Conn) CreateAnswer() (domain.SessionDescription, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.AnswerErr != nil {
		return domain.SessionDescription{}, c.AnswerErr
	}
	return domain.SessionDescription{Type: domain.SDPTypeAnswer, SDP: "v=0 answer"}, nil
}

func (c *Conn) SetLocalDescription(d domain.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.local = append(c.local, d)
	return nil
}

func (c *Conn) SetRemoteDescription(d domain.SessionDescription) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.RemoteErr != nil {
		return c.RemoteErr
	}
	c.remote = append(c.remote, d)
	return nil
}

func (c *Conn) AddICECandidate(cand domain.Candidate) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.candidates = append(c.candidates, cand)
	return nil
}

func (c *Conn) AddLocalStream(s core.LocalStream) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.streams = append(c.streams, s)
	return nil
}

func (c *Conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closed++
	return nil
}

func (c *Conn) OnLocalCandidate(f func(domain.Candidate)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onCandidate = f
}

func (c *Conn) OnRemoteMedia(f func(core.RemoteMedia)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onRemote = f
}

func (c *Conn) OnTransportState(f func(core.TransportState)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.onState = f
}

func (c *Conn) EmitCandidate(cand domain.Candidate) {
	c.mu.Lock()
	f := c.onCandidate
	c.mu.Unlock()
	if f != nil {
		f(cand)
	}
}

func (c *Conn) EmitRemote(m core.RemoteMedia) {
	c.mu.Lock()
	f := c.onRemote
	c.mu.Unlock()
	if f != nil {
		f(m)
	}
}

func (c *Conn) EmitTransport(s core.TransportState) {
	c.mu.Lock()
	f := c.onState
	c.mu.Unlock()
	if f != nil {
		f(s)
	}
}

func (c *Conn) Local() []domain.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SessionDescription(nil), c.local...)
}

func (c *Conn) Remote() []domain.SessionDescription {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.SessionDescription(nil), c.remote...)
}

func (c *Conn) Candidates() []domain.Candidate {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]domain.Candidate(nil), c.candidates...)
}

func (c *Conn) Streams() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.streams)
}

func (c *Conn) Closed() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Factory records every connection it builds.
type Factory struct {
	mu    sync.Mutex
	conns []*Conn
	Err   error
	// Prepare, when set, configures each new connection before it is returned.
	Prepare func(*Conn)
}

func (f *Factory) NewConnection() (core.MediaConnection, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return nil, f.Err
	}
	c := &Conn{}
	if f.Prepare != nil {
		f.Prepare(c)
	}
	f.conns = append(f.conns, c)
	return c, nil
}

// Fail makes every later NewConnection return err.
func (f *Factory) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.Err = err
}

func (f *Factory) Conns() []*Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*Conn(nil), f.conns...)
}

func (f *Factory) Last() *Conn {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.conns) == 0 {
		return nil
	}
	return f.conns[len(f.conns)-1]
}

// Event is one renderer notification.
type Event struct {
	Kind  string
	Peer  domain.PeerID
	Opts  core.RenderOptions
	Label string
	Err   error
}

// Renderer records what it is told.
type Renderer struct {
	mu     sync.Mutex
	events []Event
}

func (r *Renderer) add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *Renderer) RemoteMediaAttached(peer domain.PeerID, _ core.RemoteMedia, opts core.RenderOptions) {
	r.add(Event{Kind: "attached", Peer: peer, Opts: opts})
}

func (r *Renderer) RemoteMediaDetached(peer domain.PeerID) {
	r.add(Event{Kind: "detached", Peer: peer})
}

func (r *Renderer) MuteLabelChanged(label string) {
	r.add(Event{Kind: "label", Label: label})
}

func (r *Renderer) PeerFailed(peer domain.PeerID, err error) {
	r.add(Event{Kind: "failed", Peer: peer, Err: err})
}

func (r *Renderer) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// Count returns how many events of kind were recorded.
func (r *Renderer) Count(kind string) int {
	n := 0
	for _, e := range r.Events() {
		if e.Kind == kind {
			n++
		}
	}
	return n
}
