package transport

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

const waitTimeout = 2 * time.Second

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.TxPopTimeout = 50 * time.Millisecond
	cfg.CompletionTimeout = time.Second
	cfg.BlockingTimeout = 100 * time.Millisecond
	cfg.MonitorInterval = 20 * time.Millisecond
	cfg.MonitorErrorInterval = 10 * time.Millisecond
	cfg.RecoveryDelay = time.Millisecond
	cfg.RecoverTimeout = 50 * time.Millisecond
	return cfg
}

type fatalRecorder struct {
	lock sync.Mutex
	errs []error
	ch   chan error
}

func newFatalRecorder() *fatalRecorder {
	return &fatalRecorder{ch: make(chan error, 8)}
}

func (f *fatalRecorder) Fatal(err error) {
	f.lock.Lock()
	f.errs = append(f.errs, err)
	f.lock.Unlock()
	f.ch <- err
}

func (f *fatalRecorder) count() int {
	f.lock.Lock()
	defer f.lock.Unlock()
	return len(f.errs)
}

func (f *fatalRecorder) wait(t *testing.T) error {
	select {
	case err := <-f.ch:
		return err
	case <-time.After(waitTimeout):
		t.Fatal("fatal handler not invoked")
		return nil
	}
}

type collector struct {
	ch chan *msgs.Message
}

func newCollector() *collector {
	return &collector{ch: make(chan *msgs.Message, 16)}
}

func (c *collector) HandleMessage(ctx context.Context, msg *msgs.Message) {
	c.ch <- msg
}

func (c *collector) next(t *testing.T) *msgs.Message {
	select {
	case msg := <-c.ch:
		return msg
	case <-time.After(waitTimeout):
		t.Fatal("message not received")
		return nil
	}
}

func (c *collector) none(t *testing.T, d time.Duration) {
	select {
	case msg := <-c.ch:
		t.Fatalf("unexpected message %s", msg)
	case <-time.After(d):
	}
}

type running struct {
	cancel context.CancelFunc
	done   chan struct{}
	err    error
}

func start(t *testing.T, c *Context) *running {
	ctx, cancel := context.WithCancel(context.Background())
	r := &running{cancel: cancel, done: make(chan struct{})}
	go func() {
		r.err = c.Run(ctx)
		close(r.done)
	}()
	t.Cleanup(r.stop)
	return r
}

func (r *running) stop() {
	r.cancel()
	<-r.done
}

func (r *running) wait(t *testing.T) error {
	select {
	case <-r.done:
		return r.err
	case <-time.After(waitTimeout):
		t.Fatal("Run not returned")
		return nil
	}
}

// testEnv connects a MCU node and a host node on a loopback bus.
type testEnv struct {
	bus     *can.LoopbackBus
	mcuDev  *can.LoopbackDevice
	hostDev *can.LoopbackDevice
	mcu     *Context
	host    *Context
	fatal   *fatalRecorder
	hostRx  *collector
}

func newTestEnv(t *testing.T, configure func(*Config)) *testEnv {
	return newTestEnvOn(t, can.MaxFDLen, configure)
}

// newTestEnvOn opens both nodes on controllers sending maxLen bytes.
// configure applies to the MCU node, the host mirrors it.
func newTestEnvOn(t *testing.T, maxLen int, configure func(*Config)) *testEnv {
	bus := can.NewLoopbackBus()
	t.Cleanup(func() { bus.Close() })
	e := &testEnv{
		bus:     bus,
		mcuDev:  bus.Open(maxLen),
		hostDev: bus.Open(maxLen),
		fatal:   newFatalRecorder(),
		hostRx:  newCollector(),
	}
	mcuCfg := testConfig()
	if configure != nil {
		configure(&mcuCfg)
	}
	hostCfg := testConfig()
	hostCfg.Local, hostCfg.Remote = mcuCfg.Remote, mcuCfg.Local
	hostCfg.ISOTP = mcuCfg.ISOTP
	hostCfg.PlainTxAddr, hostCfg.PlainRxAddr = mcuCfg.PlainRxAddr, mcuCfg.PlainTxAddr

	var err error
	e.mcu, err = New(e.mcuDev, mcuCfg, e.fatal)
	require.NoError(t, err)
	e.host, err = New(e.hostDev, hostCfg, newFatalRecorder())
	require.NoError(t, err)
	require.NoError(t, e.host.RegisterRxHandler(e.hostRx))
	return e
}
