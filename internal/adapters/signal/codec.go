package signal

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/dkeye/VoiceChat/internal/core"
)

// Codec turns relay messages into websocket frames and back. Every message
// is an envelope {"event": name, "args": [...]} with positional args.
type Codec interface {
	Name() string
	// FrameType is the websocket message type the codec writes.
	FrameType() int
	Encode(event string, args []any) ([]byte, error)
	Decode(data []byte) (string, core.Args, error)
}

const (
	CodecJSON    = "json"
	CodecMsgpack = "msgpack"
)

func CodecByName(name string) (Codec, error) {
	switch name {
	case "", CodecJSON:
		return JSONCodec{}, nil
	case CodecMsgpack:
		return MsgpackCodec{}, nil
	default:
		return nil, fmt.Errorf("unknown signal codec %q", name)
	}
}

var errNoEvent = errors.New("envelope without event")

type envelope struct {
	Event string `json:"event"`
	Args  []any  `json:"args"`
}

type JSONCodec struct{}

func (JSONCodec) Name() string   { return CodecJSON }
func (JSONCodec) FrameType() int { return websocket.TextMessage }

func (JSONCodec) Encode(event string, args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	return json.Marshal(envelope{Event: event, Args: args})
}

func (JSONCodec) Decode(data []byte) (string, core.Args, error) {
	var env struct {
		Event string            `json:"event"`
		Args  []json.RawMessage `json:"args"`
	}
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, fmt.Errorf("bad json envelope: %w", err)
	}
	if env.Event == "" {
		return "", nil, errNoEvent
	}
	return env.Event, jsonArgs(env.Args), nil
}

type jsonArgs []json.RawMessage

func (a jsonArgs) Len() int { return len(a) }

func (a jsonArgs) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("arg %d out of range (%d args)", i, len(a))
	}
	return json.Unmarshal(a[i], v)
}

// MsgpackCodec writes binary frames. Structs keep their json field names so
// both codecs put the same keys on the wire.
type MsgpackCodec struct{}

func (MsgpackCodec) Name() string   { return CodecMsgpack }
func (MsgpackCodec) FrameType() int { return websocket.BinaryMessage }

func (MsgpackCodec) Encode(event string, args []any) ([]byte, error) {
	if args == nil {
		args = []any{}
	}
	var buf bytes.Buffer
	enc := msgpack.NewEncoder(&buf)
	enc.SetCustomStructTag("json")
	if err := enc.Encode(envelope{Event: event, Args: args}); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (MsgpackCodec) Decode(data []byte) (string, core.Args, error) {
	var env struct {
		Event string               `json:"event"`
		Args  []msgpack.RawMessage `json:"args"`
	}
	dec := msgpack.NewDecoder(bytes.NewReader(data))
	dec.SetCustomStructTag("json")
	if err := dec.Decode(&env); err != nil {
		return "", nil, fmt.Errorf("bad msgpack envelope: %w", err)
	}
	if env.Event == "" {
		return "", nil, errNoEvent
	}
	return env.Event, msgpackArgs(env.Args), nil
}

type msgpackArgs []msgpack.RawMessage

func (a msgpackArgs) Len() int { return len(a) }

func (a msgpackArgs) Decode(i int, v any) error {
	if i < 0 || i >= len(a) {
		return fmt.Errorf("arg %d out of range (%d args)", i, len(a))
	}
	dec := msgpack.NewDecoder(bytes.NewReader(a[i]))
	dec.SetCustomStructTag("json")
	return dec.Decode(v)
}

type noArgs struct{}

func (noArgs) Len() int { return 0 }

func (noArgs) Decode(i int, _ any) error {
	return fmt.Errorf("arg %d out of range (0 args)", i)
}
