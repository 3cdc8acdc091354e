// Package websocket streams transport messages to websocket clients.
//
// Each client receives every message from the MCU, as JSON text frames by
// default or wire encoded binary frames when connected with ?format=wire.
// A client sends commands the same way: a frame starting with { is a JSON
// envelope, anything else is wire encoded.
package websocket

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"sync"

	"github.com/golang/glog"
	"golang.org/x/net/websocket"

	"github.com/robotalks/orb.go/pkg/framework"
	"github.com/robotalks/orb.go/pkg/mcu/codec"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/transport"
)

// DefaultClientBuffer is the number of messages buffered per client before
// messages to it are dropped.
const DefaultClientBuffer = 16

// Formats selected by the format query parameter.
const (
	FormatJSON = "json"
	FormatWire = "wire"
)

// Hub fans out messages to connected clients.
type Hub struct {
	Addr         string
	Sender       transport.Sender
	ClientBuffer int

	clientsLock sync.Mutex
	clients     map[*client]struct{}
}

type client struct {
	conn   *websocket.Conn
	wire   bool
	sendCh chan []byte
}

// NewHub creates a Hub listening on addr when run.
func NewHub(addr string, sender transport.Sender) *Hub {
	return &Hub{Addr: addr, Sender: sender, ClientBuffer: DefaultClientBuffer}
}

// Name implements framework.Named.
func (h *Hub) Name() string {
	return "websocket-hub"
}

// Clients returns the number of connected clients.
func (h *Hub) Clients() int {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	return len(h.clients)
}

// Handler returns the websocket handler serving a client.
func (h *Hub) Handler() http.Handler {
	return websocket.Handler(h.serve)
}

// HandleMessage implements transport.Handler.
func (h *Hub) HandleMessage(_ context.Context, msg *msgs.Message) {
	var wire, text []byte
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	for c := range h.clients {
		data, err := h.encodeFor(c, msg, &wire, &text)
		if err != nil {
			glog.Errorf("websocket: encode %s: %v", msg, err)
			return
		}
		select {
		case c.sendCh <- data:
		default:
			glog.Warningf("websocket: client %s slow, drop %s", c.conn.RemoteAddr(), msg.Kind())
		}
	}
}

func (h *Hub) encodeFor(c *client, msg *msgs.Message, wire, text *[]byte) (data []byte, err error) {
	if c.wire {
		if *wire == nil {
			*wire, err = codec.Marshal(msg)
		}
		return *wire, err
	}
	if *text == nil {
		*text, err = json.Marshal(msg)
	}
	return *text, err
}

// Run implements framework.Runnable.
func (h *Hub) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", h.Addr)
	if err != nil {
		return err
	}
	glog.Infof("websocket: listening on %s", ln.Addr())
	mux := http.NewServeMux()
	mux.Handle("/", h.Handler())
	srv := &http.Server{Handler: mux}
	err = framework.RunWithContextCancel(ctx, func() {
		srv.Close()
		h.closeClients()
	}, func() error {
		return srv.Serve(ln)
	})
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

func (h *Hub) serve(conn *websocket.Conn) {
	size := h.ClientBuffer
	if size <= 0 {
		size = DefaultClientBuffer
	}
	c := &client{
		conn:   conn,
		wire:   conn.Request().URL.Query().Get("format") == FormatWire,
		sendCh: make(chan []byte, size),
	}
	h.clientsLock.Lock()
	if h.clients == nil {
		h.clients = make(map[*client]struct{})
	}
	h.clients[c] = struct{}{}
	h.clientsLock.Unlock()
	glog.Infof("websocket: client %s connected", conn.RemoteAddr())

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.writeLoop()
	}()
	c.readLoop(h.Sender)

	h.clientsLock.Lock()
	delete(h.clients, c)
	h.clientsLock.Unlock()
	close(c.sendCh)
	<-done
	glog.Infof("websocket: client %s disconnected", conn.RemoteAddr())
}

func (h *Hub) closeClients() {
	h.clientsLock.Lock()
	defer h.clientsLock.Unlock()
	for c := range h.clients {
		c.conn.Close()
	}
}

func (c *client) writeLoop() {
	for data := range c.sendCh {
		var err error
		if c.wire {
			err = websocket.Message.Send(c.conn, data)
		} else {
			err = websocket.Message.Send(c.conn, string(data))
		}
		if err != nil {
			glog.V(2).Infof("websocket: send to %s: %v", c.conn.RemoteAddr(), err)
			c.conn.Close()
		}
	}
}

func (c *client) readLoop(sender transport.Sender) {
	for {
		var data []byte
		if err := websocket.Message.Receive(c.conn, &data); err != nil {
			return
		}
		msg, err := decodeCommand(data)
		if err != nil {
			glog.Warningf("websocket: drop command from %s: %v", c.conn.RemoteAddr(), err)
			continue
		}
		if err := sender.EnqueueTx(msg); err != nil {
			glog.Warningf("websocket: enqueue %s: %v", msg.Kind(), err)
		}
	}
}

// ErrNotCommand is returned when a client sends an event kind.
var ErrNotCommand = errors.New("not a command")

func decodeCommand(data []byte) (*msgs.Message, error) {
	var msg *msgs.Message
	if len(data) > 0 && data[0] == '{' {
		msg = &msgs.Message{}
		if err := json.Unmarshal(data, msg); err != nil {
			return nil, err
		}
	} else {
		var err error
		if msg, err = codec.Decode(data); err != nil {
			return nil, err
		}
	}
	if !msg.Kind().IsCommand() {
		return nil, ErrNotCommand
	}
	return msg, nil
}
