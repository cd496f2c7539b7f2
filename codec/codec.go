// Package codec turns envelopes into HTTP bodies and back.
//
// Decode classifies failures the way the server needs to answer them: text that is not
// JSON at all is a *ParseError, JSON that is not a 2.0 envelope is an *InvalidRequestError.
package codec

import (
	"errors"

	"github.com/iamfat/http-jsonrpc/message"
)

// Codec encodes and decodes envelopes.
type Codec interface {
	Encode(env *message.Envelope) ([]byte, error)
	Decode(data []byte) (*message.Envelope, error)
	ContentType() string
}

// Default is the codec used by client and server unless overridden.
var Default Codec = &JSONCodec{}

// ParseError reports a body that is not valid JSON.
type ParseError struct {
	Err error
}

func (e *ParseError) Error() string {
	if e.Err == nil {
		return "parse error"
	}
	return "parse error: " + e.Err.Error()
}

func (e *ParseError) Unwrap() error { return e.Err }

// InvalidRequestError reports valid JSON that is not a usable envelope.
type InvalidRequestError struct {
	Reason string
}

func (e *InvalidRequestError) Error() string {
	return "invalid request: " + e.Reason
}

// AsRPCError maps a Decode failure to the JSON-RPC error the peer should receive.
// It returns nil for errors that did not come from Decode.
func AsRPCError(err error) *message.Error {
	var pe *ParseError
	if errors.As(err, &pe) {
		return message.ErrParse
	}
	var ie *InvalidRequestError
	if errors.As(err, &ie) {
		return message.ErrInvalidRequest
	}
	return nil
}
