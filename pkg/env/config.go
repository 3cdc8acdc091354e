// Package env builds a node from command line flags and environment
// variables.
package env

import (
	"flag"
	"fmt"
	"os"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/can/socketcan"
	"github.com/robotalks/orb.go/pkg/transport"
)

// DriverSim runs a simulated MCU on an in-memory bus.
const DriverSim = "sim"

// Config provides common options to build a node.
type Config struct {
	Interface string
	Driver    string
	// Node names the node in MQTT topics, defaults to one derived from the
	// machine ID.
	Node string
	// MQTTURL is the broker URL, e.g. mqtt://host:port/topic-prefix.
	// Empty disables the MQTT bridge.
	MQTTURL string
	// WebsocketAddr is the listen address of the websocket hub. Empty
	// disables it.
	WebsocketAddr string

	Transport  transport.Config
	PlainMode  bool
	LocalNode  uint
	RemoteNode uint
}

var defaultConfig = Config{
	Interface:  "can0",
	Driver:     socketcan.DriverFD,
	MQTTURL:    "mqtt://localhost:1883/orb/",
	Transport:  transport.DefaultConfig(),
	LocalNode:  uint(transport.DefaultLocalNode),
	RemoteNode: uint(transport.DefaultRemoteNode),
}

func init() {
	if val := os.Getenv("ORB_CAN_IF"); val != "" {
		defaultConfig.Interface = val
	}
	if val := os.Getenv("ORB_CAN_DRIVER"); val != "" {
		defaultConfig.Driver = val
	}
	if val, ok := os.LookupEnv("ORB_MQTT_URL"); ok {
		defaultConfig.MQTTURL = val
	}
	if val := os.Getenv("ORB_NODE"); val != "" {
		defaultConfig.Node = val
	}
	if val := os.Getenv("ORB_WS_ADDR"); val != "" {
		defaultConfig.WebsocketAddr = val
	}
}

// SetupFlags sets up command line flags.
func SetupFlags() {
	c := &defaultConfig
	flag.StringVar(&c.Interface, "can-if", c.Interface, "CAN interface.")
	flag.StringVar(&c.Driver, "can-driver", c.Driver, "CAN driver: fd, raw, classic or sim.")
	flag.StringVar(&c.Node, "node", c.Node, "Node name in MQTT topics, default derived from machine id.")
	flag.StringVar(&c.MQTTURL, "mqtt", c.MQTTURL, "MQTT broker URL, empty to disable.")
	flag.StringVar(&c.WebsocketAddr, "ws", c.WebsocketAddr, "Websocket listen address, empty to disable.")
	flag.UintVar(&c.LocalNode, "local-node", c.LocalNode, "Local node id (0-15).")
	flag.UintVar(&c.RemoteNode, "remote-node", c.RemoteNode, "Default remote node id (0-15).")
	flag.BoolVar(&c.PlainMode, "plain", c.PlainMode, "Use plain extended addresses instead of node ids.")
	flag.IntVar(&c.Transport.TxQueueSize, "tx-queue", c.Transport.TxQueueSize, "TX queue capacity.")
	flag.IntVar(&c.Transport.RxQueueSize, "rx-queue", c.Transport.RxQueueSize, "RX queue capacity.")
	flag.DurationVar(&c.Transport.CompletionTimeout, "tx-timeout", c.Transport.CompletionTimeout, "Transmit completion timeout before the bus is considered stuck.")
}

// Default gets the default config.
func Default() *Config {
	return &defaultConfig
}

// NewConfig creates a Config with default configurations.
func NewConfig() *Config {
	conf := defaultConfig
	return &conf
}

// NodeName returns Node or the default node name.
func (c *Config) NodeName() string {
	if c.Node != "" {
		return c.Node
	}
	return DefaultNodeName()
}

// TransportConfig returns the transport configuration with flag values
// applied.
func (c *Config) TransportConfig() (transport.Config, error) {
	cfg := c.Transport
	if max := uint(can.MaxNodeID); c.LocalNode > max || c.RemoteNode > max {
		return cfg, fmt.Errorf("node id out of range: local %d remote %d", c.LocalNode, c.RemoteNode)
	}
	cfg.Local, cfg.Remote = can.NodeID(c.LocalNode), can.NodeID(c.RemoteNode)
	cfg.ISOTP = !c.PlainMode
	return cfg, cfg.Validate()
}
