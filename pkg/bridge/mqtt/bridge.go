package mqtt

import (
	"context"
	"encoding/json"
	"path"
	"time"

	"github.com/golang/glog"

	"github.com/robotalks/orb.go/pkg/mcu/codec"
	"github.com/robotalks/orb.go/pkg/mcu/msgs"
	"github.com/robotalks/orb.go/pkg/transport"
)

// Status payloads.
const (
	StatusOnline  = "online"
	StatusOffline = "offline"
)

// DefaultConnectTimeout bounds the initial broker connection.
const DefaultConnectTimeout = 30 * time.Second

// Bridge publishes received messages and forwards commands to a Sender.
type Bridge struct {
	Queue          *Queue
	Node           string
	Sender         transport.Sender
	PublishJSON    bool
	ConnectTimeout time.Duration
}

// NewBridge creates a bridge from a broker URL. The retained status topic
// is set as the last will.
func NewBridge(brokerURL, node string, sender transport.Sender) (*Bridge, error) {
	opts, err := ParseURL(brokerURL)
	if err != nil {
		return nil, err
	}
	b := &Bridge{Node: node, Sender: sender, PublishJSON: true}
	opts.Client.SetBinaryWill(opts.TopicPrefix+b.StatusTopic(), []byte(StatusOffline), 1, true)
	if opts.Client.ClientID == "" {
		opts.Client.SetClientID("orb:" + node)
	}
	b.Queue = NewQueue(opts)
	b.Queue.OnConnect = func(q *Queue) {
		q.PubWith(b.StatusTopic(), []byte(StatusOnline), 1, true)
	}
	return b, nil
}

// Name implements framework.Named.
func (b *Bridge) Name() string {
	return "mqtt-bridge"
}

// MsgTopic is the topic of wire encoded messages of kind.
func (b *Bridge) MsgTopic(kind msgs.Kind) string {
	return path.Join(b.Node, "msg", kind.String())
}

// JSONTopic is the topic of JSON messages of kind.
func (b *Bridge) JSONTopic(kind msgs.Kind) string {
	return path.Join(b.Node, "json", kind.String())
}

// CmdTopic is the topic of wire encoded commands.
func (b *Bridge) CmdTopic() string {
	return path.Join(b.Node, "cmd")
}

// StatusTopic is the retained status topic.
func (b *Bridge) StatusTopic() string {
	return path.Join(b.Node, "status")
}

// HandleMessage implements transport.Handler.
func (b *Bridge) HandleMessage(_ context.Context, msg *msgs.Message) {
	data, err := codec.Marshal(msg)
	if err != nil {
		glog.Errorf("mqtt-bridge: encode %s: %v", msg, err)
		return
	}
	b.Queue.Pub(b.MsgTopic(msg.Kind()), data)
	if !b.PublishJSON {
		return
	}
	if data, err = json.Marshal(msg); err != nil {
		glog.Errorf("mqtt-bridge: json %s: %v", msg, err)
		return
	}
	b.Queue.Pub(b.JSONTopic(msg.Kind()), data)
}

// Run implements framework.Runnable.
func (b *Bridge) Run(ctx context.Context) error {
	timeout := b.ConnectTimeout
	if timeout <= 0 {
		timeout = DefaultConnectTimeout
	}
	token := b.Queue.Connect()
	if !token.WaitTimeout(timeout) {
		return context.DeadlineExceeded
	}
	if err := token.Error(); err != nil {
		return err
	}
	glog.Infof("mqtt-bridge: node %q", b.Node)

	subs := []*Subscription{
		b.Queue.Sub(b.CmdTopic(), b.handleWireCmd),
		b.Queue.Sub(b.CmdTopic()+"/+", b.handleJSONCmd),
	}
	<-ctx.Done()
	for _, sub := range subs {
		sub.Close()
	}
	b.Queue.PubWith(b.StatusTopic(), []byte(StatusOffline), 1, true).WaitTimeout(time.Second)
	b.Queue.Close()
	return ctx.Err()
}

func (b *Bridge) handleWireCmd(_ string, payload []byte) {
	msg, err := codec.Decode(payload)
	if err != nil {
		glog.Warningf("mqtt-bridge: drop command: %v", err)
		return
	}
	b.enqueue(msg)
}

func (b *Bridge) handleJSONCmd(topic string, payload []byte) {
	name := path.Base(topic)
	kind, ok := msgs.KindByName(name)
	if !ok {
		glog.Warningf("mqtt-bridge: drop command: unknown kind %q", name)
		return
	}
	p, err := msgs.UnmarshalPayloadJSON(kind, payload)
	if err != nil {
		glog.Warningf("mqtt-bridge: drop command: %v", err)
		return
	}
	b.enqueue(msgs.New(p))
}

func (b *Bridge) enqueue(msg *msgs.Message) {
	if !msg.Kind().IsCommand() {
		glog.Warningf("mqtt-bridge: drop %s: not a command", msg.Kind())
		return
	}
	if err := b.Sender.EnqueueTx(msg); err != nil {
		glog.Warningf("mqtt-bridge: enqueue %s: %v", msg.Kind(), err)
	}
}
