package sh

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/orb.go/pkg/mcu/msgs"
)

// ParseCommand parses KIND [JSON] into a command payload.
func ParseCommand(args []string) (msgs.Payload, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("command kind expected")
	}
	kind, ok := msgs.KindByName(args[0])
	if !ok {
		return nil, fmt.Errorf("unknown kind %q", args[0])
	}
	if !kind.IsCommand() {
		return nil, fmt.Errorf("%s is not a command", kind)
	}
	return msgs.UnmarshalPayloadJSON(kind, []byte(strings.Join(args[1:], " ")))
}

var (
	// ConnectCmd opens the configured device.
	ConnectCmd = ishell.Cmd{
		Name:    "connect",
		Aliases: []string{"c"},
		Help:    "[DRIVER [INTERFACE]]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			if len(c.Args) > 0 {
				s.Config.Driver = c.Args[0]
			}
			if len(c.Args) > 1 {
				s.Config.Interface = c.Args[1]
			}
			if err := s.Connect(); err != nil {
				c.Err(err)
			}
		},
	}

	// DisconnectCmd closes the device.
	DisconnectCmd = ishell.Cmd{
		Name:    "disconnect",
		Aliases: []string{"d"},
		Func: func(c *ishell.Context) {
			ShellFrom(c).Disconnect()
		},
	}

	// WatchCmd toggles printing of received messages.
	WatchCmd = ishell.Cmd{
		Name:    "watch",
		Aliases: []string{"w"},
		Help:    "[on|off]",
		Func: func(c *ishell.Context) {
			s := ShellFrom(c)
			on := !s.watching.Load()
			if len(c.Args) > 0 {
				on = c.Args[0] == "on"
			}
			s.watching.Store(on)
			c.Printf("watch %v\n", on)
		},
	}

	// StatsCmd prints transport counters.
	StatsCmd = ishell.Cmd{
		Name: "stats",
		Func: MustBeConnected(func(c *ishell.Context) {
			s := ShellFrom(c)
			t := s.Conn.Stack.Transport
			stats := t.Stats()
			if s.OutputJSON {
				out, err := json.Marshal(&stats)
				if err != nil {
					c.Err(err)
					return
				}
				c.Println(string(out))
				return
			}
			c.Printf("state %s suspended %v pending %d commands %d\n",
				t.State(), t.Suspended(), t.TxPending(), s.Conn.Stack.Client.Pending())
			c.Printf("tx sent %d failed %d dropped %d\n", stats.TxSent, stats.TxFailed, stats.TxDropped)
			c.Printf("rx delivered %d dropped %d\n", stats.RxDelivered, stats.RxDropped)
			c.Printf("resets %d bus-off recoveries %d\n", stats.Resets, stats.BusOffRecoveries)
		}),
	}

	// SuspendCmd stops the bus.
	SuspendCmd = ishell.Cmd{
		Name: "suspend",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Conn.Stack.Transport.Suspend(); err != nil {
				c.Err(err)
			}
		}),
	}

	// ResumeCmd restarts the bus.
	ResumeCmd = ishell.Cmd{
		Name: "resume",
		Func: MustBeConnected(func(c *ishell.Context) {
			if err := ShellFrom(c).Conn.Stack.Transport.Resume(); err != nil {
				c.Err(err)
			}
		}),
	}

	// SendCmd sends any command as JSON.
	SendCmd = ishell.Cmd{
		Name:    "send",
		Aliases: []string{"s"},
		Help:    `KIND [JSON], e.g. send fan_speed {"percentage":50}`,
		Func: MustBeConnected(func(c *ishell.Context) {
			payload, err := ParseCommand(c.Args)
			if err != nil {
				c.Err(err)
				return
			}
			DoCommand(c, payload)
		}),
	}
)
