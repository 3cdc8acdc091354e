package framework

import (
	"context"

	"github.com/golang/glog"
)

// Named is an abstraction for things with a name.
type Named interface {
	Name() string
}

// Runnable defines a generic interface for background runners.
type Runnable interface {
	Run(context.Context) error
}

// RunFunc is the func form of Runnable.
type RunFunc func(context.Context) error

// Run implements Runnable.
func (f RunFunc) Run(ctx context.Context) error {
	return f(ctx)
}

// FatalHandler is invoked when the node can't safely continue.
// Implementations are expected to reset the node and not return.
type FatalHandler interface {
	Fatal(error)
}

// FatalFunc is the func form of FatalHandler.
type FatalFunc func(error)

// Fatal implements FatalHandler.
func (f FatalFunc) Fatal(err error) {
	f(err)
}

// ExitOnFatal is the default fatal path: the process exits and the
// supervisor restarts it, which is the host equivalent of a node reset.
var ExitOnFatal FatalHandler = FatalFunc(func(err error) {
	glog.Fatalf("fatal: %v", err)
})
