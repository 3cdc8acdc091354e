package main

import (
	"github.com/robotalks/orb.go/pkg/cli/sh"
	"github.com/robotalks/orb.go/pkg/env"
	"github.com/robotalks/orb.go/pkg/sim"

	_ "github.com/robotalks/orb.go/pkg/cli/cmds/mcu"
)

//go-build: CGO_ENABLED=0

func init() {
	env.SetupFlags()
	sim.SetupFlags()
	// the shell talks to the bus directly, bridges stay off unless asked
	env.Default().MQTTURL = ""
}

func main() {
	sh.Main()
}
