// Package sim simulates the MCU end of the transport on an in-memory bus.
package sim

import (
	"flag"
	"time"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/transport"
)

// Config defines the behavior of the simulated MCU.
type Config struct {
	TelemetryInterval time.Duration
	CellMillivolts    uint
	Celsius           int
	Version           msgs.FirmwareVersion
}

// Defaults
const (
	DefaultTelemetryInterval = 5 * time.Second
	DefaultCellMillivolts    = 3900
	DefaultCelsius           = 35
)

var defaultConfig = Config{
	TelemetryInterval: DefaultTelemetryInterval,
	CellMillivolts:    DefaultCellMillivolts,
	Celsius:           DefaultCelsius,
	Version:           msgs.FirmwareVersion{Major: 1},
}

// SetupFlags sets command line flags.
func SetupFlags() {
	flag.DurationVar(&defaultConfig.TelemetryInterval, "sim-telemetry", defaultConfig.TelemetryInterval, "Interval of simulated battery and temperature reports.")
	flag.UintVar(&defaultConfig.CellMillivolts, "sim-cell-mv", defaultConfig.CellMillivolts, "Simulated battery cell voltage (mV).")
	flag.IntVar(&defaultConfig.Celsius, "sim-temp", defaultConfig.Celsius, "Simulated temperature (C).")
}

// Default gets default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates the default configuration.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// MirrorConfig derives the MCU side transport configuration from the host
// one: node ids and plain addresses are swapped.
func MirrorConfig(host transport.Config) transport.Config {
	cfg := host
	cfg.Local, cfg.Remote = host.Remote, host.Local
	cfg.PlainTxAddr, cfg.PlainRxAddr = host.PlainRxAddr, host.PlainTxAddr
	cfg.ExtraRxFilters = nil
	return cfg
}
