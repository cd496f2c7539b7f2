package codec

import (
	"encoding/json"
	"fmt"

	"github.com/iamfat/http-jsonrpc/message"
)

// JSONCodec uses Go's standard library encoding/json for serialization.
type JSONCodec struct{}

// Encode stamps the protocol version and marshals the envelope.
func (c *JSONCodec) Encode(env *message.Envelope) ([]byte, error) {
	if env.Version == "" {
		env.Version = message.Version
	}
	return json.Marshal(env)
}

func (c *JSONCodec) Decode(data []byte) (*message.Envelope, error) {
	if !json.Valid(data) {
		// Unmarshal gives the precise syntax error.
		var v any
		return nil, &ParseError{Err: json.Unmarshal(data, &v)}
	}
	var env message.Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, &InvalidRequestError{Reason: err.Error()}
	}
	if env.Version != message.Version {
		return nil, &InvalidRequestError{Reason: fmt.Sprintf("unsupported version %q", env.Version)}
	}
	return &env, nil
}

func (c *JSONCodec) ContentType() string {
	return "application/json"
}
