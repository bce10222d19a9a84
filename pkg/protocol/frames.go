package protocol

import "encoding/json"

// ProtocolVersion is the wire-protocol version this core speaks, reported by
// the version/doctor CLI subcommands and the serve startup log.
const ProtocolVersion = 1

// Frame type tags for the websocket JSON-RPC-ish envelope.
const (
	FrameTypeRequest  = "request"
	FrameTypeResponse = "response"
	FrameTypeEvent    = "event"
)

// RequestFrame is sent client -> gateway to invoke an RPC method.
type RequestFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`
}

// ResponseFrame is the gateway's reply to a RequestFrame with the same ID.
type ResponseFrame struct {
	Type   string          `json:"type"`
	ID     string          `json:"id"`
	OK     bool            `json:"ok"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *ErrorPayload   `json:"error,omitempty"`
}

// EventFrame is an unsolicited push from the gateway (see events.go for
// the Name values).
type EventFrame struct {
	Type    string          `json:"type"`
	Name    string          `json:"name"`
	Payload json.RawMessage `json:"payload,omitempty"`
}

// ErrorPayload is the structured error body of a failed ResponseFrame.
type ErrorPayload struct {
	Code    string `json:"code,omitempty"`
	Message string `json:"message"`
}
