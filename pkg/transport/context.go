package transport

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/can"
	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/queue"
)

// TxState is the state of the TX loop.
type TxState int32

// TX loop states.
const (
	Idle TxState = iota
	AwaitingCompletion
)

// String implements fmt.Stringer.
func (s TxState) String() string {
	if s == AwaitingCompletion {
		return "awaiting-completion"
	}
	return "idle"
}

// Stats are transport counters.
type Stats struct {
	TxSent           uint64
	TxFailed         uint64
	TxDropped        uint64
	RxDelivered      uint64
	RxDropped        uint64
	Resets           uint64
	BusOffRecoveries uint64
}

type stats struct {
	txSent           atomic.Uint64
	txFailed         atomic.Uint64
	txDropped        atomic.Uint64
	rxDelivered      atomic.Uint64
	rxDropped        atomic.Uint64
	resets           atomic.Uint64
	busOffRecoveries atomic.Uint64
}

// Context is a transport instance bound to one device.
type Context struct {
	cfg     Config
	dev     can.Device
	fatalFn framework.FatalHandler
	filters []can.Filter
	remote  Address

	txQueue    *queue.Bounded[outbound]
	rxQueue    *queue.Bounded[can.Frame]
	completion *completion
	handler    atomic.Pointer[handlerSlot]
	state      atomic.Int32
	running    atomic.Bool
	suspended  atomic.Bool
	resetCh    chan struct{}
	wakeCh     chan struct{}
	fatalOnce  sync.Once
	stats      stats

	// ISO-TP state: flow control for the sender side, and reassembly
	// per source node, owned by the RX loop.
	segLock  sync.Mutex
	fcCh     chan pdu
	sessions map[can.NodeID]*reassembly
}

// New creates a Context on dev, installs the receive filters and starts
// the device. A nil fatal handler defaults to framework.ExitOnFatal.
func New(dev can.Device, cfg Config, fatal framework.FatalHandler) (*Context, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if !dev.Ready() {
		return nil, ErrNotReady
	}
	if fatal == nil {
		fatal = framework.ExitOnFatal
	}
	c := &Context{
		cfg:        cfg,
		dev:        dev,
		fatalFn:    fatal,
		filters:    cfg.RxFilters(),
		remote:     cfg.DefaultRemote(),
		txQueue:    queue.NewBounded[outbound](cfg.TxQueueSize),
		rxQueue:    queue.NewBounded[can.Frame](cfg.RxQueueSize),
		completion: newCompletion(),
		resetCh:    make(chan struct{}, 1),
		wakeCh:     make(chan struct{}, 1),
		fcCh:       make(chan pdu, 1),
		sessions:   make(map[can.NodeID]*reassembly),
	}
	for _, f := range c.filters {
		if err := dev.AddRxFilter(f, c.rxQueue); err != nil {
			return nil, err
		}
		glog.V(2).Infof("transport: rx filter %s", f)
	}
	if err := dev.Start(); err != nil && !errors.Is(err, can.ErrAlready) {
		return nil, err
	}
	return c, nil
}

// Name implements framework.Named.
func (c *Context) Name() string {
	return "transport"
}

// Config returns the configuration.
func (c *Context) Config() Config {
	return c.cfg
}

// Device returns the underlying device.
func (c *Context) Device() can.Device {
	return c.dev
}

// State returns the state of the TX loop.
func (c *Context) State() TxState {
	return TxState(c.state.Load())
}

func (c *Context) setState(s TxState) {
	c.state.Store(int32(s))
}

// Suspended tells if the bus is suspended.
func (c *Context) Suspended() bool {
	return c.suspended.Load()
}

// TxPending returns the number of queued outbound messages.
func (c *Context) TxPending() int {
	return c.txQueue.Len()
}

// Stats returns a snapshot of the counters.
func (c *Context) Stats() Stats {
	return Stats{
		TxSent:           c.stats.txSent.Load(),
		TxFailed:         c.stats.txFailed.Load(),
		TxDropped:        c.stats.txDropped.Load(),
		RxDelivered:      c.stats.rxDelivered.Load(),
		RxDropped:        c.stats.rxDropped.Load(),
		Resets:           c.stats.resets.Load(),
		BusOffRecoveries: c.stats.busOffRecoveries.Load(),
	}
}

// RegisterRxHandler sets the single handler of received messages.
func (c *Context) RegisterRxHandler(h Handler) error {
	if !c.handler.CompareAndSwap(nil, &handlerSlot{Handler: h}) {
		return ErrHandlerRegistered
	}
	return nil
}

// fatal invokes the fatal handler, at most once per Context.
func (c *Context) fatal(err error) {
	c.fatalOnce.Do(func() {
		glog.Errorf("transport: fatal: %v", err)
		c.fatalFn.Fatal(err)
	})
}

// Run runs the TX, RX, reset and monitor loops, plus the device when it
// is a framework.Runnable. Any loop failing stops the others.
func (c *Context) Run(ctx context.Context) error {
	if !c.running.CompareAndSwap(false, true) {
		return ErrRunning
	}
	defer c.running.Store(false)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	stopOnError := func(name string, fn framework.RunFunc) framework.Runnable {
		return framework.NamedRun(name, framework.RunFunc(func(ctx context.Context) error {
			err := fn(ctx)
			if err != nil && !errors.Is(err, context.Canceled) {
				cancel()
			}
			return err
		}))
	}

	r := framework.NewRunnerWith(ctx)
	if runnable, ok := c.dev.(framework.Runnable); ok {
		r.Go(stopOnError("device", runnable.Run))
	}
	r.Go(
		stopOnError("tx", c.runTx),
		stopOnError("rx", c.runRx),
		stopOnError("reset", c.runReset),
	)
	if reporter, ok := c.dev.(can.StateReporter); ok {
		r.Go(stopOnError("monitor", func(ctx context.Context) error {
			return c.runMonitor(ctx, reporter)
		}))
	}
	return r.Wait()
}
