package msgs

import (
	"strconv"

	"github.com/golang/protobuf/proto"
)

// Field bounds of the schema. They keep the worst-case encoding of every
// kind within a single CAN-FD frame.
const (
	MaxLogLength       = 40
	MaxBrightness      = 255
	MaxColorComponent  = 255
	MaxAngle           = 360
	MaxShutdownDelayS  = 30
	MaxHeartbeatS      = 3600
	MaxFanPercentage   = 100
	MaxCellMillivolts  = 65535
	MaxVersionNumber   = 255
	MaxTemperatureC    = 200
	MaxEnumValue       = 15
	MaxAckErrorValue   = AckErrorOperationNotSupported
	MaxLedsPatternEnum = LedsPatternPulsingRGB
)

// AckError is the result code carried by Ack.
type AckError uint32

// Ack result codes.
const (
	AckErrorSuccess AckError = iota
	AckErrorVersion
	AckErrorRange
	AckErrorInProgress
	AckErrorFail
	AckErrorOverTemperature
	AckErrorOperationNotSupported
)

// LedsPattern enumerates user LED patterns.
type LedsPattern uint32

// User LED patterns.
const (
	LedsPatternOff LedsPattern = iota
	LedsPatternAllWhite
	LedsPatternAllWhiteNoCenter
	LedsPatternRandomRainbow
	LedsPatternAllWhiteOnlyCenter
	LedsPatternAllRed
	LedsPatternAllGreen
	LedsPatternAllBlue
	LedsPatternPulsingWhite
	LedsPatternRGB
	LedsPatternPulsingRGB
)

// Ack acknowledges a command identified by its ack number.
type Ack struct {
	AckNumber uint32   `protobuf:"varint,1,opt,name=ack_number,proto3" json:"ack_number,omitempty"`
	Error     AckError `protobuf:"varint,2,opt,name=error,proto3" json:"error,omitempty"`
}

func (m *Ack) Kind() Kind          { return KindAck }
func (m *Ack) NewPayload() Payload { return &Ack{} }
func (m *Ack) ProtoMessage()       {}
func (m *Ack) Reset()              { *m = Ack{} }
func (m *Ack) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *Ack) Validate() error {
	return checkMax("ack.error", int64(m.Error), int64(MaxAckErrorValue))
}

// FirmwareVersion identifies one firmware image.
type FirmwareVersion struct {
	Major      uint32 `protobuf:"varint,1,opt,name=major,proto3" json:"major,omitempty"`
	Minor      uint32 `protobuf:"varint,2,opt,name=minor,proto3" json:"minor,omitempty"`
	Patch      uint32 `protobuf:"varint,3,opt,name=patch,proto3" json:"patch,omitempty"`
	CommitHash uint32 `protobuf:"fixed32,4,opt,name=commit_hash,proto3" json:"commit_hash,omitempty"`
}

func (m *FirmwareVersion) ProtoMessage()  {}
func (m *FirmwareVersion) Reset()         { *m = FirmwareVersion{} }
func (m *FirmwareVersion) String() string { return proto.CompactTextString(m) }

func (m *FirmwareVersion) validate(field string) error {
	if m == nil {
		return nil
	}
	for _, err := range []error{
		checkMax(field+".major", int64(m.Major), MaxVersionNumber),
		checkMax(field+".minor", int64(m.Minor), MaxVersionNumber),
		checkMax(field+".patch", int64(m.Patch), MaxVersionNumber),
	} {
		if err != nil {
			return err
		}
	}
	return nil
}

// Versions reports the firmware images present on the MCU.
type Versions struct {
	Primary   *FirmwareVersion `protobuf:"bytes,1,opt,name=primary,proto3" json:"primary,omitempty"`
	Secondary *FirmwareVersion `protobuf:"bytes,2,opt,name=secondary,proto3" json:"secondary,omitempty"`
}

func (m *Versions) Kind() Kind          { return KindVersions }
func (m *Versions) NewPayload() Payload { return &Versions{} }
func (m *Versions) ProtoMessage()       {}
func (m *Versions) Reset()              { *m = Versions{} }
func (m *Versions) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *Versions) Validate() error {
	if err := m.Primary.validate("versions.primary"); err != nil {
		return err
	}
	return m.Secondary.validate("versions.secondary")
}

// PowerButton reports the power button state.
type PowerButton struct {
	Pressed bool `protobuf:"varint,1,opt,name=pressed,proto3" json:"pressed,omitempty"`
}

func (m *PowerButton) Kind() Kind          { return KindPowerButton }
func (m *PowerButton) NewPayload() Payload { return &PowerButton{} }
func (m *PowerButton) ProtoMessage()       {}
func (m *PowerButton) Reset()              { *m = PowerButton{} }
func (m *PowerButton) String() string      { return proto.CompactTextString(m) }
func (m *PowerButton) Validate() error     { return nil }

// BatteryVoltage reports per-cell voltages in millivolts.
type BatteryVoltage struct {
	Cell1Mv uint32 `protobuf:"varint,1,opt,name=battery_cell1_mv,proto3" json:"battery_cell1_mv,omitempty"`
	Cell2Mv uint32 `protobuf:"varint,2,opt,name=battery_cell2_mv,proto3" json:"battery_cell2_mv,omitempty"`
	Cell3Mv uint32 `protobuf:"varint,3,opt,name=battery_cell3_mv,proto3" json:"battery_cell3_mv,omitempty"`
	Cell4Mv uint32 `protobuf:"varint,4,opt,name=battery_cell4_mv,proto3" json:"battery_cell4_mv,omitempty"`
}

func (m *BatteryVoltage) Kind() Kind          { return KindBatteryVoltage }
func (m *BatteryVoltage) NewPayload() Payload { return &BatteryVoltage{} }
func (m *BatteryVoltage) ProtoMessage()       {}
func (m *BatteryVoltage) Reset()              { *m = BatteryVoltage{} }
func (m *BatteryVoltage) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *BatteryVoltage) Validate() error {
	for i, mv := range []uint32{m.Cell1Mv, m.Cell2Mv, m.Cell3Mv, m.Cell4Mv} {
		if mv > MaxCellMillivolts {
			return &ErrOutOfRange{Field: "battery_voltage.cell" + strconv.Itoa(i+1), Value: int64(mv), Max: MaxCellMillivolts}
		}
	}
	return nil
}

// Temperature reports a sensor reading in degrees Celsius.
type Temperature struct {
	Source  uint32 `protobuf:"varint,1,opt,name=source,proto3" json:"source,omitempty"`
	Celsius int32  `protobuf:"zigzag32,2,opt,name=temperature_c,proto3" json:"temperature_c,omitempty"`
}

func (m *Temperature) Kind() Kind          { return KindTemperature }
func (m *Temperature) NewPayload() Payload { return &Temperature{} }
func (m *Temperature) ProtoMessage()       {}
func (m *Temperature) Reset()              { *m = Temperature{} }
func (m *Temperature) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *Temperature) Validate() error {
	if err := checkMax("temperature.source", int64(m.Source), MaxEnumValue); err != nil {
		return err
	}
	return checkMax("temperature.temperature_c", int64(m.Celsius), MaxTemperatureC)
}

// FatalError is sent by the MCU before it resets.
type FatalError struct {
	Reason uint32 `protobuf:"varint,1,opt,name=reason,proto3" json:"reason,omitempty"`
}

func (m *FatalError) Kind() Kind          { return KindFatalError }
func (m *FatalError) NewPayload() Payload { return &FatalError{} }
func (m *FatalError) ProtoMessage()       {}
func (m *FatalError) Reset()              { *m = FatalError{} }
func (m *FatalError) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *FatalError) Validate() error {
	return checkMax("fatal_error.reason", int64(m.Reason), MaxEnumValue)
}

// Log carries a short log line from the MCU.
type Log struct {
	Log string `protobuf:"bytes,1,opt,name=log,proto3" json:"log,omitempty"`
}

func (m *Log) Kind() Kind          { return KindLog }
func (m *Log) NewPayload() Payload { return &Log{} }
func (m *Log) ProtoMessage()       {}
func (m *Log) Reset()              { *m = Log{} }
func (m *Log) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *Log) Validate() error {
	return checkMax("log.log", int64(len(m.Log)), MaxLogLength)
}

// RgbColor is a custom LED color.
type RgbColor struct {
	Red   uint32 `protobuf:"varint,1,opt,name=red,proto3" json:"red,omitempty"`
	Green uint32 `protobuf:"varint,2,opt,name=green,proto3" json:"green,omitempty"`
	Blue  uint32 `protobuf:"varint,3,opt,name=blue,proto3" json:"blue,omitempty"`
}

func (m *RgbColor) ProtoMessage()  {}
func (m *RgbColor) Reset()         { *m = RgbColor{} }
func (m *RgbColor) String() string { return proto.CompactTextString(m) }

// UserLedsPattern sets the pattern of the user LED ring.
type UserLedsPattern struct {
	Pattern     LedsPattern `protobuf:"varint,1,opt,name=pattern,proto3" json:"pattern,omitempty"`
	StartAngle  uint32      `protobuf:"varint,2,opt,name=start_angle,proto3" json:"start_angle,omitempty"`
	AngleLength int32       `protobuf:"zigzag32,3,opt,name=angle_length,proto3" json:"angle_length,omitempty"`
	CustomColor *RgbColor   `protobuf:"bytes,4,opt,name=custom_color,proto3" json:"custom_color,omitempty"`
}

func (m *UserLedsPattern) Kind() Kind          { return KindUserLedsPattern }
func (m *UserLedsPattern) NewPayload() Payload { return &UserLedsPattern{} }
func (m *UserLedsPattern) ProtoMessage()       {}
func (m *UserLedsPattern) Reset()              { *m = UserLedsPattern{} }
func (m *UserLedsPattern) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *UserLedsPattern) Validate() error {
	checks := []error{
		checkMax("user_leds_pattern.pattern", int64(m.Pattern), int64(MaxLedsPatternEnum)),
		checkMax("user_leds_pattern.start_angle", int64(m.StartAngle), MaxAngle),
		checkMax("user_leds_pattern.angle_length", int64(m.AngleLength), MaxAngle),
	}
	if c := m.CustomColor; c != nil {
		checks = append(checks,
			checkMax("user_leds_pattern.custom_color.red", int64(c.Red), MaxColorComponent),
			checkMax("user_leds_pattern.custom_color.green", int64(c.Green), MaxColorComponent),
			checkMax("user_leds_pattern.custom_color.blue", int64(c.Blue), MaxColorComponent))
	}
	for _, err := range checks {
		if err != nil {
			return err
		}
	}
	return nil
}

// UserLedsBrightness sets the brightness of the user LED ring.
type UserLedsBrightness struct {
	Brightness uint32 `protobuf:"varint,1,opt,name=brightness,proto3" json:"brightness,omitempty"`
}

func (m *UserLedsBrightness) Kind() Kind          { return KindUserLedsBrightness }
func (m *UserLedsBrightness) NewPayload() Payload { return &UserLedsBrightness{} }
func (m *UserLedsBrightness) ProtoMessage()       {}
func (m *UserLedsBrightness) Reset()              { *m = UserLedsBrightness{} }
func (m *UserLedsBrightness) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *UserLedsBrightness) Validate() error {
	return checkMax("user_leds_brightness.brightness", int64(m.Brightness), MaxBrightness)
}

// DistributorLedsBrightness sets the brightness of the distributor LEDs.
type DistributorLedsBrightness struct {
	Brightness uint32 `protobuf:"varint,1,opt,name=brightness,proto3" json:"brightness,omitempty"`
}

func (m *DistributorLedsBrightness) Kind() Kind          { return KindDistributorLedsBrightness }
func (m *DistributorLedsBrightness) NewPayload() Payload { return &DistributorLedsBrightness{} }
func (m *DistributorLedsBrightness) ProtoMessage()       {}
func (m *DistributorLedsBrightness) Reset()              { *m = DistributorLedsBrightness{} }
func (m *DistributorLedsBrightness) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *DistributorLedsBrightness) Validate() error {
	return checkMax("distributor_leds_brightness.brightness", int64(m.Brightness), MaxBrightness)
}

// Shutdown requests a power-off after a delay.
type Shutdown struct {
	DelayS uint32 `protobuf:"varint,1,opt,name=delay_s,proto3" json:"delay_s,omitempty"`
}

func (m *Shutdown) Kind() Kind          { return KindShutdown }
func (m *Shutdown) NewPayload() Payload { return &Shutdown{} }
func (m *Shutdown) ProtoMessage()       {}
func (m *Shutdown) Reset()              { *m = Shutdown{} }
func (m *Shutdown) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *Shutdown) Validate() error {
	return checkMax("shutdown.delay_s", int64(m.DelayS), MaxShutdownDelayS)
}

// Heartbeat keeps the MCU from powering the host off.
type Heartbeat struct {
	TimeoutSeconds uint32 `protobuf:"varint,1,opt,name=timeout_seconds,proto3" json:"timeout_seconds,omitempty"`
}

func (m *Heartbeat) Kind() Kind          { return KindHeartbeat }
func (m *Heartbeat) NewPayload() Payload { return &Heartbeat{} }
func (m *Heartbeat) ProtoMessage()       {}
func (m *Heartbeat) Reset()              { *m = Heartbeat{} }
func (m *Heartbeat) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *Heartbeat) Validate() error {
	return checkMax("heartbeat.timeout_seconds", int64(m.TimeoutSeconds), MaxHeartbeatS)
}

// FanSpeed sets the fan duty cycle.
type FanSpeed struct {
	Percentage uint32 `protobuf:"varint,1,opt,name=percentage,proto3" json:"percentage,omitempty"`
}

func (m *FanSpeed) Kind() Kind          { return KindFanSpeed }
func (m *FanSpeed) NewPayload() Payload { return &FanSpeed{} }
func (m *FanSpeed) ProtoMessage()       {}
func (m *FanSpeed) Reset()              { *m = FanSpeed{} }
func (m *FanSpeed) String() string      { return proto.CompactTextString(m) }

// Validate implements Payload.
func (m *FanSpeed) Validate() error {
	return checkMax("fan_speed.percentage", int64(m.Percentage), MaxFanPercentage)
}
