package msgs

import (
	"errors"
	"fmt"

	"github.com/golang/protobuf/proto"
)

// Version is the schema version carried in the header.
type Version uint32

// Schema versions.
const (
	Version0 Version = 0

	CurrentVersion = Version0
)

// Kind selects the payload variant. Its value is the wire field number.
type Kind uint32

// Payload kinds.
const (
	KindAck                       Kind = 3
	KindVersions                  Kind = 4
	KindPowerButton               Kind = 5
	KindBatteryVoltage            Kind = 6
	KindTemperature               Kind = 7
	KindFatalError                Kind = 8
	KindLog                       Kind = 9
	KindUserLedsPattern           Kind = 10
	KindUserLedsBrightness        Kind = 11
	KindDistributorLedsBrightness Kind = 12
	KindShutdown                  Kind = 13
	KindHeartbeat                 Kind = 14
	KindFanSpeed                  Kind = 15
)

var kindNames = map[Kind]string{
	KindAck:                       "ack",
	KindVersions:                  "versions",
	KindPowerButton:               "power_button",
	KindBatteryVoltage:            "battery_voltage",
	KindTemperature:               "temperature",
	KindFatalError:                "fatal_error",
	KindLog:                       "log",
	KindUserLedsPattern:           "user_leds_pattern",
	KindUserLedsBrightness:        "user_leds_brightness",
	KindDistributorLedsBrightness: "distributor_leds_brightness",
	KindShutdown:                  "shutdown",
	KindHeartbeat:                 "heartbeat",
	KindFanSpeed:                  "fan_speed",
}

// String returns the schema name of the kind.
func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("kind(%d)", uint32(k))
}

// IsKnown tells if the kind belongs to the schema.
func (k Kind) IsKnown() bool {
	_, ok := PayloadTypes[k]
	return ok
}

// IsCommand tells if the kind is sent by the host to the MCU.
func (k Kind) IsCommand() bool {
	return k >= KindUserLedsPattern && k.IsKnown()
}

// IsEvent tells if the kind is sent by the MCU to the host.
func (k Kind) IsEvent() bool {
	return k < KindUserLedsPattern && k.IsKnown()
}

// KindByName finds a kind from its schema name.
func KindByName(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name {
			return k, true
		}
	}
	return 0, false
}

// Payload is one variant of the message union.
type Payload interface {
	proto.Message
	// Kind returns the variant tag.
	Kind() Kind
	// NewPayload creates an empty payload of the same kind.
	NewPayload() Payload
	// Validate checks declared bounds of the fields.
	Validate() error
}

// PayloadTypes maps kinds to payload prototypes.
var PayloadTypes = map[Kind]Payload{
	KindAck:                       (*Ack)(nil),
	KindVersions:                  (*Versions)(nil),
	KindPowerButton:               (*PowerButton)(nil),
	KindBatteryVoltage:            (*BatteryVoltage)(nil),
	KindTemperature:               (*Temperature)(nil),
	KindFatalError:                (*FatalError)(nil),
	KindLog:                       (*Log)(nil),
	KindUserLedsPattern:           (*UserLedsPattern)(nil),
	KindUserLedsBrightness:        (*UserLedsBrightness)(nil),
	KindDistributorLedsBrightness: (*DistributorLedsBrightness)(nil),
	KindShutdown:                  (*Shutdown)(nil),
	KindHeartbeat:                 (*Heartbeat)(nil),
	KindFanSpeed:                  (*FanSpeed)(nil),
}

// NewPayload creates an empty payload for kind.
func NewPayload(kind Kind) (Payload, error) {
	p, ok := PayloadTypes[kind]
	if !ok {
		return nil, &ErrUnknownKind{Kind: kind}
	}
	return p.NewPayload(), nil
}

// Message is a complete logical message.
type Message struct {
	Version   Version
	AckNumber uint32
	Payload   Payload
}

// New creates a message of the current schema version.
func New(payload Payload) *Message {
	return &Message{Version: CurrentVersion, Payload: payload}
}

// NewWithAck creates a message carrying an ack number.
func NewWithAck(payload Payload, ackNumber uint32) *Message {
	return &Message{Version: CurrentVersion, AckNumber: ackNumber, Payload: payload}
}

// Kind returns the kind of the payload, 0 when there is none.
func (m *Message) Kind() Kind {
	if m.Payload == nil {
		return 0
	}
	return m.Payload.Kind()
}

// Validate checks that exactly one known payload is set and within bounds.
func (m *Message) Validate() error {
	if m.Payload == nil {
		return ErrNoPayload
	}
	if !m.Payload.Kind().IsKnown() {
		return &ErrUnknownKind{Kind: m.Payload.Kind()}
	}
	return m.Payload.Validate()
}

// String implements fmt.Stringer.
func (m *Message) String() string {
	if m.Payload == nil {
		return fmt.Sprintf("v%d ack=%d <none>", m.Version, m.AckNumber)
	}
	return fmt.Sprintf("v%d ack=%d %s{%s}", m.Version, m.AckNumber, m.Payload.Kind(), m.Payload.String())
}

var (
	// ErrNoPayload indicates a message without payload.
	ErrNoPayload = errors.New("message has no payload")
)

// ErrUnknownKind indicates a kind outside the schema.
type ErrUnknownKind struct {
	Kind Kind
}

// Error implements error.
func (e *ErrUnknownKind) Error() string {
	return fmt.Sprintf("unknown kind: %d", uint32(e.Kind))
}

// ErrOutOfRange indicates a field exceeds its declared bound.
type ErrOutOfRange struct {
	Field string
	Value int64
	Max   int64
}

// Error implements error.
func (e *ErrOutOfRange) Error() string {
	return fmt.Sprintf("%s: %d exceeds %d", e.Field, e.Value, e.Max)
}

func checkMax(field string, value, max int64) error {
	if value > max || value < -max {
		return &ErrOutOfRange{Field: field, Value: value, Max: max}
	}
	return nil
}
