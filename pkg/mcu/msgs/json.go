package msgs

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/golang/protobuf/jsonpb"
)

// Envelope is the JSON form of a Message. Payload uses the schema field
// names.
type Envelope struct {
	Kind      string          `json:"kind"`
	Version   Version         `json:"version,omitempty"`
	AckNumber uint32          `json:"ack_number,omitempty"`
	Payload   json.RawMessage `json:"payload,omitempty"`
}

var jsonMarshaler = jsonpb.Marshaler{OrigName: true}

// MarshalPayloadJSON encodes a payload as JSON.
func MarshalPayloadJSON(p Payload) ([]byte, error) {
	var buf bytes.Buffer
	if err := jsonMarshaler.Marshal(&buf, p); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// UnmarshalPayloadJSON decodes a payload of kind from JSON. Empty data
// gives an empty payload.
func UnmarshalPayloadJSON(kind Kind, data []byte) (Payload, error) {
	p, err := NewPayload(kind)
	if err != nil {
		return nil, err
	}
	if len(bytes.TrimSpace(data)) == 0 {
		return p, nil
	}
	if err := jsonpb.Unmarshal(bytes.NewReader(data), p); err != nil {
		return nil, fmt.Errorf("%s: %w", kind, err)
	}
	return p, nil
}

// MarshalJSON implements json.Marshaler.
func (m *Message) MarshalJSON() ([]byte, error) {
	if m.Payload == nil {
		return nil, ErrNoPayload
	}
	payload, err := MarshalPayloadJSON(m.Payload)
	if err != nil {
		return nil, err
	}
	return json.Marshal(&Envelope{
		Kind:      m.Kind().String(),
		Version:   m.Version,
		AckNumber: m.AckNumber,
		Payload:   payload,
	})
}

// UnmarshalJSON implements json.Unmarshaler.
func (m *Message) UnmarshalJSON(data []byte) error {
	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return err
	}
	kind, ok := KindByName(env.Kind)
	if !ok {
		return fmt.Errorf("unknown kind %q", env.Kind)
	}
	payload, err := UnmarshalPayloadJSON(kind, env.Payload)
	if err != nil {
		return err
	}
	*m = Message{Version: env.Version, AckNumber: env.AckNumber, Payload: payload}
	return nil
}
