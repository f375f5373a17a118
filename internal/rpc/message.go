// Package rpc implements the request/response and event protocol spoken
// between the editor and the site preview embedded in it.
//
// The transport underneath only moves untyped messages tagged with the
// sender's origin. A Channel adds id-correlated calls, fire-and-forget events
// and a command dispatch table on top, and drops anything that does not come
// from the origin it was initialized with.
package rpc

import (
	"encoding/json"
	"errors"
	"fmt"
)

// MessageType discriminates the three kinds of wire message.
type MessageType string

const (
	TypeRequest  MessageType = "brxm:request"
	TypeResponse MessageType = "brxm:response"
	TypeEvent    MessageType = "brxm:event"
)

// State is the outcome carried by a response.
type State string

const (
	StateFulfilled State = "fulfilled"
	StateRejected  State = "rejected"
)

// Message is the envelope for every message on the channel.
type Message struct {
	Type    MessageType     `json:"type"`
	ID      string          `json:"id,omitempty"`
	Command string          `json:"command,omitempty"`
	Event   string          `json:"event,omitempty"`
	Payload json.RawMessage `json:"payload,omitempty"`
	State   State           `json:"state,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
}

// valid reports whether m is well-formed enough to act on.
func (m Message) valid() bool {
	switch m.Type {
	case TypeRequest:
		return m.ID != "" && m.Command != ""
	case TypeResponse:
		return m.ID != ""
	case TypeEvent:
		return m.Event != ""
	default:
		return false
	}
}

// args decodes a request payload into positional arguments.
func (m Message) args() ([]json.RawMessage, error) {
	if len(m.Payload) == 0 || string(m.Payload) == "null" {
		return nil, nil
	}
	var args []json.RawMessage
	if err := json.Unmarshal(m.Payload, &args); err != nil {
		return nil, fmt.Errorf("request payload is not an argument list: %w", err)
	}
	return args, nil
}

func encodeArgs(args []any) (json.RawMessage, error) {
	if args == nil {
		args = []any{}
	}
	b, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("encoding arguments: %w", err)
	}
	return b, nil
}

var (
	ErrHandlerExists    = errors.New("rpc: handler already registered")
	ErrNotInitialized   = errors.New("rpc: channel not initialized")
	ErrChannelDestroyed = errors.New("rpc: channel destroyed")
	ErrUnknownCommand   = errors.New("rpc: unknown command")
)

// RemoteError is returned by Call when the peer rejected the request.
// Result holds the rejection value exactly as the peer sent it.
type RemoteError struct {
	Command string
	Result  json.RawMessage
}

func (e *RemoteError) Error() string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(e.Result, &body) == nil && body.Message != "" {
		return fmt.Sprintf("rpc: %s rejected: %s", e.Command, body.Message)
	}
	return fmt.Sprintf("rpc: %s rejected: %s", e.Command, e.Result)
}

// Decode unmarshals the rejection value into v.
func (e *RemoteError) Decode(v any) error {
	return json.Unmarshal(e.Result, v)
}

// Rejection lets a handler reject with an arbitrary value instead of an
// error message. The value is sent as the response result unchanged.
type Rejection struct {
	Value any
}

// Reject wraps v in a Rejection.
func Reject(v any) error { return &Rejection{Value: v} }

func (r *Rejection) Error() string { return fmt.Sprintf("rejected: %v", r.Value) }

// rejectionResult encodes a handler error as a response result.
func rejectionResult(err error) json.RawMessage {
	var rej *Rejection
	var remote *RemoteError
	switch {
	case errors.As(err, &rej):
		if b, mErr := json.Marshal(rej.Value); mErr == nil {
			return b
		}
	case errors.As(err, &remote):
		return remote.Result
	}
	if m, ok := err.(json.Marshaler); ok {
		if b, mErr := m.MarshalJSON(); mErr == nil {
			return b
		}
	}
	b, _ := json.Marshal(map[string]string{"message": err.Error()})
	return b
}
