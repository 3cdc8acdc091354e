package sim

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/transport"
)

// State is the commanded state of the simulated MCU.
type State struct {
	LedsPattern               msgs.UserLedsPattern
	UserLedsBrightness        uint32
	DistributorLedsBrightness uint32
	FanPercentage             uint32
	ShutdownRequested         bool
	ShutdownDelay             time.Duration
	HeartbeatTimeout          time.Duration
	LastHeartbeat             time.Time
}

// MCU simulates the MCU end of the transport. It applies and acks commands
// and reports telemetry periodically.
type MCU struct {
	Transport *transport.Context
	Config    Config

	lock  sync.Mutex
	state State
}

// New creates a simulated MCU on dev. tc is the MCU side transport
// configuration, see MirrorConfig.
func New(dev can.Device, tc transport.Config, cfg Config, fatal framework.FatalHandler) (*MCU, error) {
	t, err := transport.New(dev, tc, fatal)
	if err != nil {
		return nil, err
	}
	m := &MCU{Transport: t, Config: cfg}
	if err := t.RegisterRxHandler(m); err != nil {
		return nil, err
	}
	return m, nil
}

// Name implements framework.Named.
func (m *MCU) Name() string {
	return "sim-mcu"
}

// State returns a copy of the current state.
func (m *MCU) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// PressButton reports a power button event.
func (m *MCU) PressButton(pressed bool) error {
	return m.Transport.EnqueueTx(msgs.New(&msgs.PowerButton{Pressed: pressed}))
}

// HandleMessage implements transport.Handler.
func (m *MCU) HandleMessage(_ context.Context, msg *msgs.Message) {
	if !msg.Kind().IsCommand() {
		glog.Warningf("sim: unexpected %s", msg.Kind())
		return
	}
	code := m.apply(msg)
	glog.V(2).Infof("sim: %s -> %d", msg, code)
	if msg.AckNumber == 0 {
		return
	}
	ack := &msgs.Ack{AckNumber: msg.AckNumber, Error: code}
	if err := m.Transport.EnqueueTx(msgs.New(ack)); err != nil {
		glog.Warningf("sim: ack %d: %v", msg.AckNumber, err)
	}
}

func (m *MCU) apply(msg *msgs.Message) msgs.AckError {
	if msg.Version != msgs.CurrentVersion {
		return msgs.AckErrorVersion
	}
	if err := msg.Payload.Validate(); err != nil {
		return msgs.AckErrorRange
	}
	m.lock.Lock()
	defer m.lock.Unlock()
	switch p := msg.Payload.(type) {
	case *msgs.UserLedsPattern:
		m.state.LedsPattern = *p
	case *msgs.UserLedsBrightness:
		m.state.UserLedsBrightness = p.Brightness
	case *msgs.DistributorLedsBrightness:
		m.state.DistributorLedsBrightness = p.Brightness
	case *msgs.FanSpeed:
		m.state.FanPercentage = p.Percentage
	case *msgs.Shutdown:
		if m.state.ShutdownRequested {
			return msgs.AckErrorInProgress
		}
		m.state.ShutdownRequested = true
		m.state.ShutdownDelay = time.Duration(p.DelayS) * time.Second
	case *msgs.Heartbeat:
		m.state.HeartbeatTimeout = time.Duration(p.TimeoutSeconds) * time.Second
		m.state.LastHeartbeat = time.Now()
	default:
		return msgs.AckErrorOperationNotSupported
	}
	return msgs.AckErrorSuccess
}

// Run implements framework.Runnable.
func (m *MCU) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	return framework.NewRunnerWith(ctx).Go(
		framework.CancelOnExit(m.Transport, cancel),
		framework.CancelOnExit(framework.NamedRun("sim-telemetry", framework.RunFunc(m.runTelemetry)), cancel),
	).Wait()
}

func (m *MCU) runTelemetry(ctx context.Context) error {
	version := m.Config.Version
	m.send(&msgs.Versions{Primary: &version})
	interval := m.Config.TelemetryInterval
	if interval <= 0 {
		interval = DefaultTelemetryInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
			m.report()
		}
	}
}

func (m *MCU) report() {
	mv := uint32(m.Config.CellMillivolts)
	m.send(&msgs.BatteryVoltage{Cell1Mv: mv, Cell2Mv: mv, Cell3Mv: mv, Cell4Mv: mv})
	m.send(&msgs.Temperature{Celsius: int32(m.Config.Celsius)})

	m.lock.Lock()
	expired := m.state.HeartbeatTimeout > 0 && time.Since(m.state.LastHeartbeat) > m.state.HeartbeatTimeout
	if expired {
		m.state.HeartbeatTimeout = 0
	}
	m.lock.Unlock()
	if expired {
		m.send(&msgs.Log{Log: "heartbeat timeout"})
	}
}

func (m *MCU) send(p msgs.Payload) {
	if err := m.Transport.EnqueueTx(msgs.New(p)); err != nil {
		glog.Warningf("sim: %s: %v", p.Kind(), err)
	}
}

// String implements fmt.Stringer.
func (s State) String() string {
	return fmt.Sprintf("leds=%d/%d dist=%d fan=%d%% shutdown=%v heartbeat=%v",
		s.LedsPattern.Pattern, s.UserLedsBrightness, s.DistributorLedsBrightness,
		s.FanPercentage, s.ShutdownRequested, s.HeartbeatTimeout)
}
