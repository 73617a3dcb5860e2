// ABOUTME: Frame codec for the gateway wire protocol (req/res/event tagged JSON).
// ABOUTME: Two-phase decoding distinguishes unknown frame types from malformed JSON.

package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Frame type discriminators.
const (
	FrameTypeRequest  = "req"
	FrameTypeResponse = "res"
	FrameTypeEvent    = "event"
)

// ErrUnknownFrameType reports a structurally valid frame whose "type"
// discriminator is not one of req/res/event. Callers typically skip such
// frames instead of tearing down the connection.
var ErrUnknownFrameType = errors.New("unknown frame type")

// Frame is one discrete message on the wire: a RequestFrame, ResponseFrame
// or EventFrame.
type Frame interface {
	frameType() string
}

// RequestFrame invokes an RPC method. IDs are client-generated and unique
// for the lifetime of the pending call.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

func (RequestFrame) frameType() string { return FrameTypeRequest }

// ResponseFrame answers a request by id. Exactly one of Payload (ok=true)
// or Error (ok=false) is meaningful.
type ResponseFrame struct {
	Type    string          `json:"type"`
	ID      string          `json:"id"`
	OK      bool            `json:"ok"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Error   *ErrorShape     `json:"error,omitempty"`
}

func (ResponseFrame) frameType() string { return FrameTypeResponse }

// EventFrame is pushed by the server without a preceding request.
type EventFrame struct {
	Type    string          `json:"type"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload,omitempty"`
	Seq     int64           `json:"seq,omitempty"`
}

func (EventFrame) frameType() string { return FrameTypeEvent }

// ErrorShape is the error detail carried on a failed response.
type ErrorShape struct {
	Code         string `json:"code"`
	Message      string `json:"message"`
	Details      Value  `json:"details,omitzero"`
	Retryable    bool   `json:"retryable,omitempty"`
	RetryAfterMs int    `json:"retryAfterMs,omitempty"`
}

// NewRequest builds a request frame with marshalled params. Nil params are
// omitted from the wire.
func NewRequest(id, method string, params any) (RequestFrame, error) {
	f := RequestFrame{Type: FrameTypeRequest, ID: id, Method: method}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return RequestFrame{}, fmt.Errorf("marshaling %s params: %w", method, err)
		}
		f.Params = raw
	}
	return f, nil
}

// EncodeFrame serializes a frame for the wire.
func EncodeFrame(f Frame) ([]byte, error) {
	switch fr := f.(type) {
	case RequestFrame:
		fr.Type = FrameTypeRequest
		return json.Marshal(fr)
	case *RequestFrame:
		fr.Type = FrameTypeRequest
		return json.Marshal(fr)
	case ResponseFrame:
		fr.Type = FrameTypeResponse
		return json.Marshal(fr)
	case *ResponseFrame:
		fr.Type = FrameTypeResponse
		return json.Marshal(fr)
	case EventFrame:
		fr.Type = FrameTypeEvent
		return json.Marshal(fr)
	case *EventFrame:
		fr.Type = FrameTypeEvent
		return json.Marshal(fr)
	default:
		return nil, fmt.Errorf("unencodable frame %T", f)
	}
}

// DecodeFrame parses one wire message. The discriminator is probed first so
// that an unrecognized type yields ErrUnknownFrameType (wrapped with the
// offending type) while malformed JSON yields a generic decode error.
func DecodeFrame(data []byte) (Frame, error) {
	var probe struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &probe); err != nil {
		return nil, fmt.Errorf("decoding frame: %w", err)
	}

	switch probe.Type {
	case FrameTypeRequest:
		var f RequestFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding request frame: %w", err)
		}
		return f, nil
	case FrameTypeResponse:
		var f ResponseFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding response frame: %w", err)
		}
		return f, nil
	case FrameTypeEvent:
		var f EventFrame
		if err := json.Unmarshal(data, &f); err != nil {
			return nil, fmt.Errorf("decoding event frame: %w", err)
		}
		return f, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownFrameType, probe.Type)
	}
}
