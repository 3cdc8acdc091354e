package sh

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"sync/atomic"
	"time"

	"github.com/abiosoft/ishell"

	"github.com/robotalks/orb.go/pkg/env"
	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/transport"
)

// ErrNotConnected is reported by commands needing a running stack.
var ErrNotConnected = errors.New("not connected")

// Shell drives an orb stack from ishell commands.
type Shell struct {
	Interactive bool
	OutputJSON  bool
	AutoConnect bool
	Timeout     time.Duration

	Shell  *ishell.Shell
	Config *env.Config
	Conn   *Conn

	watching atomic.Bool
}

// Conn is a stack running in the background until Cancel.
type Conn struct {
	Ctx    context.Context
	Cancel func()
	Stack  *env.Stack
	Done   chan struct{}
	Err    error
}

const (
	shellKey      = "orb.shell"
	offlinePrompt = "orb(offline)> "
)

var (
	evalOnly       bool
	outputJSON     bool
	commandTimeout = 2 * time.Second

	commands = []*ishell.Cmd{
		&ConnectCmd,
		&DisconnectCmd,
		&WatchCmd,
		&StatsCmd,
		&SuspendCmd,
		&ResumeCmd,
		&SendCmd,
	}
)

func init() {
	flag.BoolVar(&evalOnly, "e", evalOnly, "Evaluation only, no interactive shell.")
	flag.BoolVar(&outputJSON, "json", outputJSON, "Print output in JSON.")
	flag.DurationVar(&commandTimeout, "cmd-timeout", commandTimeout, "Timeout waiting for command acks.")
}

// AddCmds registers extra commands. Call it from init.
func AddCmds(cmds ...*ishell.Cmd) {
	commands = append(commands, cmds...)
}

// New creates a shell for the stack described by conf.
func New(conf *env.Config) *Shell {
	s := &Shell{
		Interactive: !evalOnly,
		OutputJSON:  outputJSON,
		Timeout:     commandTimeout,

		Shell:  ishell.New(),
		Config: conf,
	}
	s.Shell.Set(shellKey, s)
	s.Shell.SetPrompt(offlinePrompt)
	for _, cmd := range commands {
		s.Shell.AddCmd(cmd)
	}
	return s
}

// ShellFrom returns the Shell owning an ishell context.
func ShellFrom(c *ishell.Context) *Shell {
	s, _ := c.Get(shellKey).(*Shell)
	return s
}

// MustBeConnected guards a command that needs a running stack.
func MustBeConnected(fn func(c *ishell.Context)) func(c *ishell.Context) {
	return func(c *ishell.Context) {
		if s := ShellFrom(c); s == nil || s.Conn == nil {
			c.Err(ErrNotConnected)
			return
		}
		fn(c)
	}
}

// FormatResult formats the result of a command for display.
func FormatResult(res transport.Result, asJSON bool) (string, error) {
	if asJSON {
		out := map[string]interface{}{"ok": res.Err == nil}
		if res.Err != nil {
			out["error"] = res.Err.Error()
		}
		if res.Ack != nil {
			out["ack_number"] = res.Ack.AckNumber
			out["code"] = res.Ack.Error
		}
		data, err := json.Marshal(out)
		return string(data), err
	}
	if res.Err != nil {
		return "", res.Err
	}
	return "OK", nil
}

// FormatMessage formats a received message for display.
func FormatMessage(msg *msgs.Message, asJSON bool) string {
	if asJSON {
		if data, err := json.Marshal(msg); err == nil {
			return string(data)
		}
	}
	return msg.String()
}

// DoCommand sends a command and waits for its ack.
func DoCommand(c *ishell.Context, payload msgs.Payload) error {
	s := ShellFrom(c)
	if s == nil || s.Conn == nil {
		c.Err(ErrNotConnected)
		return ErrNotConnected
	}
	if err := payload.Validate(); err != nil {
		c.Err(err)
		return err
	}
	ctx, cancel := context.WithTimeout(s.Conn.Ctx, s.Timeout)
	defer cancel()
	res := s.Conn.Stack.Client.Do(payload).Wait(ctx)
	out, err := FormatResult(res, s.OutputJSON)
	if err != nil {
		c.Err(err)
		return err
	}
	c.Println(out)
	return res.Err
}

// WithAutoConnect sets AutoConnect.
func (s *Shell) WithAutoConnect(en bool) *Shell {
	s.AutoConnect = en
	return s
}

// HandleMessage implements transport.Handler, printing messages while
// watching.
func (s *Shell) HandleMessage(_ context.Context, msg *msgs.Message) {
	if s.watching.Load() {
		s.Shell.Println(FormatMessage(msg, s.OutputJSON))
	}
}

// Connect builds and runs the stack from Config.
func (s *Shell) Connect() error {
	conn := &Conn{Done: make(chan struct{})}
	conn.Ctx, conn.Cancel = context.WithCancel(context.Background())
	stack, err := s.Config.NewStack(framework.FatalFunc(func(err error) {
		s.Shell.Printf("transport failed: %v\n", err)
		conn.Cancel()
	}))
	if err != nil {
		conn.Cancel()
		return err
	}
	stack.AddHandler(s)
	conn.Stack = stack
	s.Disconnect()
	s.Conn = conn
	go func() {
		conn.Err = stack.Run(conn.Ctx)
		close(conn.Done)
	}()
	s.Shell.SetPrompt(fmt.Sprintf("orb(%s)> ", s.Config.NodeName()))
	return nil
}

// Disconnect stops the running stack.
func (s *Shell) Disconnect() {
	if conn := s.Conn; conn != nil {
		conn.Cancel()
		<-conn.Done
		s.Conn = nil
		s.Shell.SetPrompt(offlinePrompt)
	}
}

// Run evaluates args as one command, or starts the interactive loop when
// there are none.
func (s *Shell) Run(args ...string) error {
	if s.AutoConnect {
		if s.Interactive {
			s.Shell.Printf("Opening %s on %s (%s) ...\n", s.Config.NodeName(), s.Config.Interface, s.Config.Driver)
		}
		if err := s.Connect(); err != nil {
			return fmt.Errorf("connect: %w", err)
		}
		defer s.Disconnect()
	}
	switch {
	case len(args) > 0:
		return s.Shell.Process(args...)
	case s.Interactive:
		s.Shell.Run()
		return nil
	}
	return errors.New("no command given")
}

// Main parses flags and runs the shell on the default config.
func Main() {
	flag.Parse()
	if err := New(env.Default()).WithAutoConnect(true).Run(flag.Args()...); err != nil {
		log.Fatalln(err)
	}
}
