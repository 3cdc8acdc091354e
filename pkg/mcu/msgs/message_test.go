package msgs

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPayloadTypes(t *testing.T) {
	for kind, proto := range PayloadTypes {
		p, err := NewPayload(kind)
		require.NoError(t, err)
		require.Equal(t, kind, p.Kind())
		require.IsType(t, proto, p)
		require.NotEqual(t, kind.IsCommand(), kind.IsEvent(), kind.String())
		k, ok := KindByName(kind.String())
		require.True(t, ok)
		require.Equal(t, kind, k)
	}
	_, err := NewPayload(Kind(42))
	require.Error(t, err)
	require.False(t, Kind(42).IsCommand())
	require.False(t, Kind(42).IsEvent())
	require.Equal(t, "kind(42)", Kind(42).String())
}

func TestKindDirection(t *testing.T) {
	require.True(t, KindPowerButton.IsEvent())
	require.True(t, KindAck.IsEvent())
	require.True(t, KindShutdown.IsCommand())
	require.True(t, KindUserLedsPattern.IsCommand())
}

func TestMessageValidate(t *testing.T) {
	testCases := []struct {
		name  string
		msg   *Message
		valid bool
	}{
		{"no payload", &Message{}, false},
		{"brightness ok", New(&UserLedsBrightness{Brightness: 255}), true},
		{"brightness too high", New(&UserLedsBrightness{Brightness: 256}), false},
		{"log at limit", New(&Log{Log: strings.Repeat("x", MaxLogLength)}), true},
		{"log too long", New(&Log{Log: strings.Repeat("x", MaxLogLength+1)}), false},
		{"angle negative ok", New(&UserLedsPattern{AngleLength: -360}), true},
		{"angle negative too far", New(&UserLedsPattern{AngleLength: -361}), false},
		{"color out of range", New(&UserLedsPattern{CustomColor: &RgbColor{Blue: 300}}), false},
		{"version out of range", New(&Versions{Secondary: &FirmwareVersion{Patch: 256}}), false},
		{"nil versions ok", New(&Versions{}), true},
		{"battery cell", New(&BatteryVoltage{Cell3Mv: 70000}), false},
		{"shutdown delay", New(&Shutdown{DelayS: 31}), false},
		{"fan", New(&FanSpeed{Percentage: 100}), true},
		{"temperature", New(&Temperature{Celsius: -40}), true},
		{"ack error", New(&Ack{Error: MaxAckErrorValue + 1}), false},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.msg.Validate()
			if tc.valid {
				require.NoError(t, err)
			} else {
				require.Error(t, err)
			}
		})
	}
}

func TestMessageString(t *testing.T) {
	m := NewWithAck(&Shutdown{DelayS: 5}, 7)
	require.Equal(t, KindShutdown, m.Kind())
	require.Contains(t, m.String(), "shutdown")
	require.Contains(t, m.String(), "ack=7")
	require.Equal(t, Kind(0), (&Message{}).Kind())
}
