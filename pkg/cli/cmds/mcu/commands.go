package mcu

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/orb.go/pkg/cli/sh"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

var ledsPatterns = map[string]msgs.LedsPattern{
	"off":               msgs.LedsPatternOff,
	"white":             msgs.LedsPatternAllWhite,
	"white-no-center":   msgs.LedsPatternAllWhiteNoCenter,
	"rainbow":           msgs.LedsPatternRandomRainbow,
	"white-only-center": msgs.LedsPatternAllWhiteOnlyCenter,
	"red":               msgs.LedsPatternAllRed,
	"green":             msgs.LedsPatternAllGreen,
	"blue":              msgs.LedsPatternAllBlue,
	"pulsing-white":     msgs.LedsPatternPulsingWhite,
	"rgb":               msgs.LedsPatternRGB,
	"pulsing-rgb":       msgs.LedsPatternPulsingRGB,
}

// ParseLedsPattern parses PATTERN [START_ANGLE ANGLE_LENGTH [R G B]].
// PATTERN is a name or its number.
func ParseLedsPattern(args []string) (*msgs.UserLedsPattern, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("pattern expected")
	}
	p := &msgs.UserLedsPattern{AngleLength: msgs.MaxAngle}
	if pattern, ok := ledsPatterns[strings.ToLower(args[0])]; ok {
		p.Pattern = pattern
	} else if n, err := strconv.ParseUint(args[0], 10, 32); err == nil {
		p.Pattern = msgs.LedsPattern(n)
	} else {
		return nil, fmt.Errorf("unknown pattern %q", args[0])
	}
	nums := make([]int64, len(args)-1)
	for i, arg := range args[1:] {
		n, err := strconv.ParseInt(arg, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("invalid number %q", arg)
		}
		nums[i] = n
	}
	switch len(nums) {
	case 0:
	case 2, 5:
		p.StartAngle, p.AngleLength = uint32(nums[0]), int32(nums[1])
		if len(nums) == 5 {
			p.CustomColor = &msgs.RgbColor{Red: uint32(nums[2]), Green: uint32(nums[3]), Blue: uint32(nums[4])}
		}
	default:
		return nil, fmt.Errorf("expect START_ANGLE ANGLE_LENGTH [R G B]")
	}
	return p, p.Validate()
}

func parseUint(args []string, name string) (uint32, error) {
	if len(args) != 1 {
		return 0, fmt.Errorf("%s expected", name)
	}
	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q", name, args[0])
	}
	return uint32(n), nil
}

func uintCmd(name, alias, arg, help string, build func(uint32) msgs.Payload) ishell.Cmd {
	return ishell.Cmd{
		Name:     name,
		Aliases:  []string{alias},
		Help:     arg,
		LongHelp: help,
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			n, err := parseUint(c.Args, arg)
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoCommand(c, build(n))
		}),
	}
}

var (
	// FanCmd sets the fan speed.
	FanCmd = uintCmd("fan", "f", "PERCENTAGE", "Set the fan duty cycle (0-100).", func(n uint32) msgs.Payload {
		return &msgs.FanSpeed{Percentage: n}
	})

	// BrightnessCmd sets the user LED brightness.
	BrightnessCmd = uintCmd("brightness", "b", "BRIGHTNESS", "Set the user LED brightness (0-255).", func(n uint32) msgs.Payload {
		return &msgs.UserLedsBrightness{Brightness: n}
	})

	// DistributorBrightnessCmd sets the distributor LED brightness.
	DistributorBrightnessCmd = uintCmd("dist-brightness", "db", "BRIGHTNESS", "Set the distributor LED brightness (0-255).", func(n uint32) msgs.Payload {
		return &msgs.DistributorLedsBrightness{Brightness: n}
	})

	// ShutdownCmd requests a delayed power off.
	ShutdownCmd = uintCmd("shutdown", "halt", "DELAY_S", "Power off after the delay (0-30s).", func(n uint32) msgs.Payload {
		return &msgs.Shutdown{DelayS: n}
	})

	// HeartbeatCmd sends a heartbeat.
	HeartbeatCmd = uintCmd("heartbeat", "hb", "TIMEOUT_S", "Send a heartbeat expecting the next one within the timeout.", func(n uint32) msgs.Payload {
		return &msgs.Heartbeat{TimeoutSeconds: n}
	})

	// LedsCmd sets the user LED pattern.
	LedsCmd = ishell.Cmd{
		Name:    "leds",
		Aliases: []string{"l"},
		Help:    "PATTERN [START_ANGLE ANGLE_LENGTH [R G B]]",
		Func: sh.MustBeConnected(func(c *ishell.Context) {
			p, err := ParseLedsPattern(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			sh.DoCommand(c, p)
		}),
	}
)

func init() {
	sh.AddCmds(
		&FanCmd,
		&BrightnessCmd,
		&DistributorBrightnessCmd,
		&ShutdownCmd,
		&HeartbeatCmd,
		&LedsCmd,
	)
}
