package env

import (
	"context"
	"fmt"
	"io"

	"github.com/golang/glog"

	mqttbridge "github.com/robotalks/orb.go/pkg/bridge/mqtt"
	wsbridge "github.com/robotalks/orb.go/pkg/bridge/websocket"
	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/can/socketcan"
	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/sim"
	"github.com/robotalks/orb.go/pkg/transport"
)

// Stack is a host node: the transport, a command client and the optional
// bridges, all receiving every message.
type Stack struct {
	Transport *transport.Context
	Client    *transport.Client
	MQTT      *mqttbridge.Bridge
	Websocket *wsbridge.Hub
	Sim       *sim.MCU

	handlers  transport.Handlers
	runnables []framework.Runnable
}

// newLoopbackBus creates the bus of the simulated MCU.
var newLoopbackBus = can.NewLoopbackBus

// OpenDevice opens the configured CAN device. With DriverSim a simulated
// MCU is attached to an in-memory bus and returned as well. The closer
// releases everything opened when the device is never run.
func (c *Config) OpenDevice(cfg transport.Config, fatal framework.FatalHandler) (can.Device, *sim.MCU, io.Closer, error) {
	if c.Driver != DriverSim {
		dev, err := socketcan.Open(c.Driver, c.Interface)
		if err != nil {
			return nil, nil, nil, err
		}
		closer, ok := dev.(io.Closer)
		if !ok {
			closer = io.NopCloser(nil)
		}
		return dev, nil, closer, nil
	}
	bus := newLoopbackBus()
	mcu, err := sim.New(bus.Open(can.MaxFDLen), sim.MirrorConfig(cfg), *sim.Default(), fatal)
	if err != nil {
		bus.Close()
		return nil, nil, nil, err
	}
	glog.Info("using simulated MCU")
	return bus.Open(can.MaxFDLen), mcu, bus, nil
}

// NewStack builds the stack. Bridges are created when configured.
func (c *Config) NewStack(fatal framework.FatalHandler) (*Stack, error) {
	cfg, err := c.TransportConfig()
	if err != nil {
		return nil, err
	}
	dev, mcu, closer, err := c.OpenDevice(cfg, fatal)
	if err != nil {
		return nil, fmt.Errorf("open %s %s: %w", c.Driver, c.Interface, err)
	}
	s, err := c.newStack(dev, mcu, cfg, fatal)
	if err != nil {
		if cerr := closer.Close(); cerr != nil {
			glog.Warningf("close %s %s: %v", c.Driver, c.Interface, cerr)
		}
		return nil, err
	}
	return s, nil
}

func (c *Config) newStack(dev can.Device, mcu *sim.MCU, cfg transport.Config, fatal framework.FatalHandler) (*Stack, error) {
	t, err := transport.New(dev, cfg, fatal)
	if err != nil {
		return nil, err
	}
	s := &Stack{Transport: t, Client: transport.NewClient(t), Sim: mcu}
	s.Client.Next = &s.handlers
	if mcu != nil {
		s.runnables = append(s.runnables, mcu)
	}
	if c.MQTTURL != "" {
		if s.MQTT, err = mqttbridge.NewBridge(c.MQTTURL, c.NodeName(), t); err != nil {
			return nil, err
		}
		s.AddHandler(s.MQTT)
		s.runnables = append(s.runnables, s.MQTT)
	}
	if c.WebsocketAddr != "" {
		s.Websocket = wsbridge.NewHub(c.WebsocketAddr, t)
		s.AddHandler(s.Websocket)
		s.runnables = append(s.runnables, s.Websocket)
	}
	if err := t.RegisterRxHandler(s.Client); err != nil {
		return nil, err
	}
	return s, nil
}

// AddHandler adds a handler of received messages other than acks. It must
// be called before Run.
func (s *Stack) AddHandler(h transport.Handler) {
	s.handlers = append(s.handlers, h)
}

// Name implements framework.Named.
func (s *Stack) Name() string {
	return "stack"
}

// Run implements framework.Runnable.
func (s *Stack) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	r := framework.NewRunnerWith(ctx)
	for _, runnable := range append([]framework.Runnable{s.Transport}, s.runnables...) {
		r.Go(framework.CancelOnExit(runnable, cancel))
	}
	return r.Wait()
}
