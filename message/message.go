// Package message defines the JSON-RPC 2.0 envelope exchanged between client and server.
//
// Envelope is the single wire unit for requests, notifications and responses. It gets
// serialized by the codec layer and carried as the body of an HTTP POST (request) or of
// the HTTP reply (response).
package message

import (
	"encoding/json"
	"fmt"
)

// Version is the only protocol version tag accepted on the wire.
const Version = "2.0"

// Envelope carries one JSON-RPC message.
//
//   - Request:      Method is set, ID is set, Params optional.
//   - Notification: Method is set, ID is absent. Never answered.
//   - Response:     ID echoes the request, exactly one of Result / Error is set.
type Envelope struct {
	Version string          `json:"jsonrpc"`
	Method  string          `json:"method,omitempty"`
	Params  json.RawMessage `json:"params,omitempty"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *Error          `json:"error,omitempty"`
}

// NewRequest builds a correlated request envelope. An empty id yields a notification.
func NewRequest(id string, method string, params any) (*Envelope, error) {
	env := &Envelope{
		Version: Version,
		Method:  method,
	}
	if id != "" {
		raw, err := json.Marshal(id)
		if err != nil {
			return nil, err
		}
		env.ID = raw
	}
	if params != nil {
		raw, err := json.Marshal(params)
		if err != nil {
			return nil, fmt.Errorf("encode params for %s: %w", method, err)
		}
		env.Params = raw
	}
	return env, nil
}

// IsNotification reports whether the envelope is a request that expects no reply.
func (e *Envelope) IsNotification() bool {
	return e.Method != "" && !e.HasID()
}

// IsResponse reports whether the envelope carries a result or an error.
func (e *Envelope) IsResponse() bool {
	return e.Method == "" && (e.HasResult() || e.Error != nil)
}

// HasID reports whether an id is present. A JSON null id counts as absent.
func (e *Envelope) HasID() bool {
	return len(e.ID) > 0 && string(e.ID) != "null"
}

// HasResult reports whether the result member was present on the wire, including
// an explicit null.
func (e *Envelope) HasResult() bool {
	return len(e.Result) > 0
}

// StringID returns the id as a string. Numeric ids are returned in their literal form.
func (e *Envelope) StringID() (string, error) {
	if !e.HasID() {
		return "", fmt.Errorf("envelope has no id")
	}
	var s string
	if err := json.Unmarshal(e.ID, &s); err == nil {
		return s, nil
	}
	var n json.Number
	if err := json.Unmarshal(e.ID, &n); err != nil {
		return "", fmt.Errorf("unsupported id %s: %w", e.ID, err)
	}
	return n.String(), nil
}

// NewResult builds a success response for the given request id. A nil value is
// encoded as an explicit JSON null so the caller still sees a reply.
func NewResult(id json.RawMessage, value any) (*Envelope, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, err
	}
	return &Envelope{
		Version: Version,
		ID:      id,
		Result:  raw,
	}, nil
}

// NewErrorResponse builds an error response. A nil id is omitted from the wire.
func NewErrorResponse(id json.RawMessage, e *Error) *Envelope {
	return &Envelope{
		Version: Version,
		ID:      id,
		Error:   e,
	}
}
