package coretest

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/dkeye/VoiceChat/internal/core"
)

// Message is one relay message as sent by the client.
type Message struct {
	Event string
	Args  []any
}

// Signal is an in-memory core.Signaler. Deliver plays the relay.
type Signal struct {
	mu       sync.Mutex
	handlers map[string][]core.Handler
	sent     []Message
	err      error
}

func NewSignal() *Signal {
	return &Signal{handlers: make(map[string][]core.Handler)}
}

func (s *Signal) Send(event string, args ...any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	s.sent = append(s.sent, Message{Event: event, Args: args})
	return nil
}

func (s *Signal) On(event string, h core.Handler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handlers[event] = append(s.handlers[event], h)
}

// FailSends makes every Send return err until called with nil.
func (s *Signal) FailSends(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.err = err
}

// Deliver runs the handlers of event with args encoded the way the relay
// would put them on the wire.
func (s *Signal) Deliver(event string, args ...any) {
	a, err := EncodeArgs(args...)
	if err != nil {
		panic(err)
	}
	s.mu.Lock()
	hs := append([]core.Handler(nil), s.handlers[event]...)
	s.mu.Unlock()
	for _, h := range hs {
		h(a)
	}
}

// Sent returns the messages sent for event, or all of them when event is "".
func (s *Signal) Sent(event string) []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Message
	for _, m := range s.sent {
		if event == "" || m.Event == event {
			out = append(out, m)
		}
	}
	return out
}

// Take returns and forgets everything sent so far.
func (s *Signal) Take() []Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := s.sent
	s.sent = nil
	return out
}

// Args is a JSON-backed core.Args.
type Args []json.RawMessage

func EncodeArgs(args ...any) (Args, error) {
	out := make(Args, len(args))
	for i, v := range args {
		b, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("arg %d: %w", i, err)
		}
		out[i] = b
	}
	return out, nil
}

func (a Args) Len() int { return len(a) }

func (a Args) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("arg %d out of range (%d args)", i, len(a))
	}
	return json.Unmarshal(a[i], v)
}
