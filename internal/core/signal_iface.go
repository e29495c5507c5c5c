package core

//go:generate mockgen -source=signal_iface.go -destination=mock/signaler_mock.go -package=mock

// Args gives positional access to the arguments of a relay message.
type Args interface {
	Len() int
	// Decode unmarshals argument i into v.
	Decode(i int, v any) error
}

// Handler receives the arguments of one relay event.
type Handler func(Args)

// Signaler abstracts the bidirectional relay connection.
// Owned by the adapter; handlers may run on the adapter's read goroutine.
type Signaler interface {
	Send(event string, args ...any) error
	On(event string, h Handler)
}
