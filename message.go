package slidesync

import (
	"encoding/json"
	"errors"
	"fmt"
)

// DefaultDiscriminator is the message field that marks a typed message.
const DefaultDiscriminator = "type"

// Message is a decoded inbound frame: an arbitrary JSON object.
type Message map[string]any

// UpdateFunc receives legacy slide-state updates (messages without a
// discriminator field).
type UpdateFunc func(update Message)

// StringField returns the string value of key, or "" if absent or not a string.
func (m Message) StringField(key string) string {
	s, _ := m[key].(string)
	return s
}

// Decode re-encodes the message and unmarshals it into v.
func (m Message) Decode(v any) error {
	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("encode message: %w", err)
	}
	return json.Unmarshal(data, v)
}

// hasField reports whether the message carries field with a non-null value.
func (m Message) hasField(field string) bool {
	v, ok := m[field]
	return ok && v != nil
}

var errNotObject = errors.New("frame is not a JSON object")

// parseMessage decodes a text frame into a Message. Only JSON objects are
// accepted; arrays, scalars and null are rejected.
func parseMessage(data []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, fmt.Errorf("parse frame: %w", err)
	}
	if msg == nil {
		return nil, errNotObject
	}
	return msg, nil
}

// encodePayload serializes an outbound payload.
func encodePayload(payload any) ([]byte, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode payload: %w", err)
	}
	return data, nil
}
