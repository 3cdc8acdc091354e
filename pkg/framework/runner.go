package framework

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"strconv"
	"sync"
	"syscall"

	"github.com/golang/glog"
)

// ErrForcedExit is returned by Runner.Wait after a second stop signal.
var ErrForcedExit = errors.New("forced exit")

type namedRunnable struct {
	Runnable
	name string
}

func (r *namedRunnable) Name() string {
	return r.name
}

// NamedRun attaches a name to runnable.
func NamedRun(name string, runnable Runnable) Runnable {
	return &namedRunnable{name: name, Runnable: runnable}
}

// NameOf returns the name of a Named runnable, or fallback.
func NameOf(runnable Runnable, fallback string) string {
	if named, ok := runnable.(Named); ok {
		return named.Name()
	}
	return fallback
}

type exit struct {
	name string
	err  error
}

// Runner supervises the long-lived components of a node.
type Runner struct {
	Context context.Context

	started int
	exitCh  chan exit
	forceCh chan struct{}
}

// NewRunner creates a Runner on the background context.
func NewRunner() *Runner {
	return NewRunnerWith(context.Background())
}

// NewRunnerWith creates a Runner whose components stop when ctx is done.
func NewRunnerWith(ctx context.Context) *Runner {
	return &Runner{
		Context: ctx,
		exitCh:  make(chan exit),
		forceCh: make(chan struct{}),
	}
}

// HandleSignals cancels the components on SIGINT or SIGTERM. A second
// signal abandons Wait.
func (r *Runner) HandleSignals() *Runner {
	ctx, cancel := context.WithCancel(r.Context)
	r.Context = ctx
	sigCh := make(chan os.Signal, 2)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		glog.Infof("%v: stopping", sig)
		cancel()
		sig = <-sigCh
		glog.Errorf("%v: stopping again, giving up", sig)
		close(r.forceCh)
	}()
	return r
}

// Go starts components on the Runner's context.
func (r *Runner) Go(components ...Runnable) *Runner {
	for _, c := range components {
		name := NameOf(c, "#"+strconv.Itoa(r.started))
		r.started++
		go func(c Runnable) {
			glog.V(4).Infof("%s: running", name)
			err := c.Run(r.Context)
			glog.V(4).Infof("%s: exited: %v", name, err)
			r.exitCh <- exit{name: name, err: err}
		}(c)
	}
	return r
}

// Wait blocks until every component has exited. Failures are returned as
// ComponentErrors in an AggregatedError, cancellation is not a failure.
func (r *Runner) Wait() error {
	var errs AggregatedError
	for ; r.started > 0; r.started-- {
		select {
		case <-r.forceCh:
			return ErrForcedExit
		case e := <-r.exitCh:
			if e.err != nil && !errors.Is(e.err, context.Canceled) {
				errs.Add(&ComponentError{Name: e.name, Err: e.err})
			}
		}
	}
	return errs.Aggregate()
}

// RunWithContextCancel adapts a blocking fn without context support.
// When ctx is done, onCancel must make fn return, and ctx.Err() is
// returned after it does.
func RunWithContextCancel(ctx context.Context, onCancel func(), fn func() error) error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	select {
	case err := <-done:
		return err
	case <-ctx.Done():
	}
	if onCancel != nil {
		onCancel()
	}
	<-done
	return ctx.Err()
}

// RunWithContextCloser runs fn until it returns or ctx is done, and
// closes closer exactly once in either case.
func RunWithContextCloser(ctx context.Context, closer io.Closer, fn func() error) error {
	var once sync.Once
	closeOnce := func() { once.Do(func() { closer.Close() }) }
	defer closeOnce()
	return RunWithContextCancel(ctx, closeOnce, fn)
}

// CancelOnExit makes a component take its siblings down with it: cancel
// is called whenever runnable returns. The name is kept.
func CancelOnExit(runnable Runnable, cancel context.CancelFunc) Runnable {
	return NamedRun(NameOf(runnable, "anonymous"), RunFunc(func(ctx context.Context) error {
		defer cancel()
		return runnable.Run(ctx)
	}))
}
