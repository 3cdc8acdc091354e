package sim

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/transport"
)

const waitTimeout = 2 * time.Second

type events chan *msgs.Message

func (e events) HandleMessage(_ context.Context, msg *msgs.Message) {
	select {
	case e <- msg:
	default:
	}
}

func (e events) next(t *testing.T, kind msgs.Kind) *msgs.Message {
	deadline := time.After(waitTimeout)
	for {
		select {
		case msg := <-e:
			if msg.Kind() == kind {
				return msg
			}
		case <-deadline:
			t.Fatalf("%s not received", kind)
			return nil
		}
	}
}

type testEnv struct {
	mcu    *MCU
	client *transport.Client
	events events
}

func newTestEnv(t *testing.T, hostCfg transport.Config) *testEnv {
	bus := can.NewLoopbackBus()
	t.Cleanup(func() { bus.Close() })
	fatal := framework.FatalFunc(func(err error) { t.Errorf("fatal: %v", err) })

	cfg := NewConfig()
	cfg.TelemetryInterval = 50 * time.Millisecond
	mcu, err := New(bus.Open(can.MaxFDLen), MirrorConfig(hostCfg), *cfg, fatal)
	require.NoError(t, err)

	host, err := transport.New(bus.Open(can.MaxFDLen), hostCfg, fatal)
	require.NoError(t, err)
	e := &testEnv{mcu: mcu, client: transport.NewClient(host), events: make(events, 64)}
	e.client.Next = e.events
	require.NoError(t, host.RegisterRxHandler(e.client))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{}, 2)
	for _, r := range []framework.Runnable{mcu, host} {
		go func(r framework.Runnable) {
			r.Run(ctx)
			done <- struct{}{}
		}(r)
	}
	t.Cleanup(func() {
		cancel()
		<-done
		<-done
	})
	return e
}

func (e *testEnv) do(t *testing.T, p msgs.Payload) transport.Result {
	ctx, cancel := context.WithTimeout(context.Background(), waitTimeout)
	defer cancel()
	return e.client.Do(p).Wait(ctx)
}

func TestMirrorConfig(t *testing.T) {
	host := transport.DefaultConfig()
	host.ExtraRxFilters = []can.Filter{can.PlainFilter(0x10)}
	cfg := MirrorConfig(host)
	require.Equal(t, host.Remote, cfg.Local)
	require.Equal(t, host.Local, cfg.Remote)
	require.Equal(t, host.PlainTxAddr, cfg.PlainRxAddr)
	require.Equal(t, host.PlainRxAddr, cfg.PlainTxAddr)
	require.Empty(t, cfg.ExtraRxFilters)
}

func TestCommandsAcked(t *testing.T) {
	e := newTestEnv(t, transport.DefaultConfig())

	r := e.do(t, &msgs.FanSpeed{Percentage: 60})
	require.NoError(t, r.Err)
	require.NotNil(t, r.Ack)
	r = e.do(t, &msgs.UserLedsBrightness{Brightness: 128})
	require.NoError(t, r.Err)
	r = e.do(t, &msgs.UserLedsPattern{Pattern: msgs.LedsPatternAllBlue})
	require.NoError(t, r.Err)
	r = e.do(t, &msgs.Heartbeat{TimeoutSeconds: 60})
	require.NoError(t, r.Err)

	state := e.mcu.State()
	require.Equal(t, uint32(60), state.FanPercentage)
	require.Equal(t, uint32(128), state.UserLedsBrightness)
	require.Equal(t, msgs.LedsPatternAllBlue, state.LedsPattern.Pattern)
	require.Equal(t, time.Minute, state.HeartbeatTimeout)
}

func TestShutdownInProgress(t *testing.T) {
	e := newTestEnv(t, transport.DefaultConfig())
	require.NoError(t, e.do(t, &msgs.Shutdown{DelayS: 3}).Err)
	r := e.do(t, &msgs.Shutdown{DelayS: 3})
	var ackErr *transport.AckError
	require.True(t, errors.As(r.Err, &ackErr))
	require.Equal(t, msgs.AckErrorInProgress, ackErr.Code)
	require.True(t, e.mcu.State().ShutdownRequested)
	require.Equal(t, 3*time.Second, e.mcu.State().ShutdownDelay)
}

func TestTelemetry(t *testing.T) {
	e := newTestEnv(t, transport.DefaultConfig())
	versions := e.events.next(t, msgs.KindVersions)
	require.Equal(t, uint32(1), versions.Payload.(*msgs.Versions).Primary.Major)
	battery := e.events.next(t, msgs.KindBatteryVoltage)
	require.Equal(t, uint32(DefaultCellMillivolts), battery.Payload.(*msgs.BatteryVoltage).Cell4Mv)
	temp := e.events.next(t, msgs.KindTemperature)
	require.Equal(t, int32(DefaultCelsius), temp.Payload.(*msgs.Temperature).Celsius)

	require.NoError(t, e.mcu.PressButton(true))
	button := e.events.next(t, msgs.KindPowerButton)
	require.True(t, button.Payload.(*msgs.PowerButton).Pressed)
}

func TestHeartbeatTimeout(t *testing.T) {
	e := newTestEnv(t, transport.DefaultConfig())
	e.mcu.lock.Lock()
	e.mcu.state.HeartbeatTimeout = time.Millisecond
	e.mcu.state.LastHeartbeat = time.Now().Add(-time.Second)
	e.mcu.lock.Unlock()
	msg := e.events.next(t, msgs.KindLog)
	require.Equal(t, "heartbeat timeout", msg.Payload.(*msgs.Log).Log)
	require.Zero(t, e.mcu.State().HeartbeatTimeout)
}

func TestPlainAddressing(t *testing.T) {
	cfg := transport.DefaultConfig()
	cfg.ISOTP = false
	e := newTestEnv(t, cfg)
	require.NoError(t, e.do(t, &msgs.DistributorLedsBrightness{Brightness: 9}).Err)
	require.Equal(t, uint32(9), e.mcu.State().DistributorLedsBrightness)
}

func TestApply(t *testing.T) {
	m := &MCU{}
	require.Equal(t, msgs.AckErrorVersion, m.apply(&msgs.Message{Version: 1, Payload: &msgs.FanSpeed{}}))
	require.Equal(t, msgs.AckErrorRange, m.apply(msgs.New(&msgs.FanSpeed{Percentage: 101})))
	require.Equal(t, msgs.AckErrorOperationNotSupported, m.apply(msgs.New(&msgs.Log{})))
	require.Equal(t, msgs.AckErrorSuccess, m.apply(msgs.New(&msgs.FanSpeed{Percentage: 100})))
}
