package main

//go-build: CGO_ENABLED=0

import (
	"flag"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/env"
	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/sim"
)

func init() {
	env.SetupFlags()
	sim.SetupFlags()
}

func main() {
	flag.Parse()
	defer glog.Flush()

	stack, err := env.Default().NewStack(framework.ExitOnFatal)
	if err != nil {
		glog.Exitf("init: %v", err)
	}
	if err := framework.NewRunner().HandleSignals().Go(stack).Wait(); err != nil {
		glog.Exit(err)
	}
}
