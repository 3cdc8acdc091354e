package mqtt

import (
	"strings"
	"sync"

	paho "github.com/eclipse/paho.mqtt.golang"
)

type published struct {
	topic   string
	payload []byte
	qos     byte
	retain  bool
}

// fakeClient records publishes and delivers them to subscribed handlers,
// acting as its own broker.
type fakeClient struct {
	paho.Client

	lock     sync.Mutex
	subs     map[string]paho.MessageHandler
	unsubs   []string
	pubs     []published
	connects int
}

func newFakeClient() *fakeClient {
	return &fakeClient{subs: make(map[string]paho.MessageHandler)}
}

func (c *fakeClient) Connect() paho.Token {
	c.lock.Lock()
	c.connects++
	c.lock.Unlock()
	return &paho.DummyToken{}
}

func (c *fakeClient) Disconnect(uint) {}

func (c *fakeClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	c.subs[topic] = cb
	return &paho.DummyToken{}
}

func (c *fakeClient) SubscribeMultiple(filters map[string]byte, cb paho.MessageHandler) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	for topic := range filters {
		c.subs[topic] = cb
	}
	return &paho.DummyToken{}
}

func (c *fakeClient) Unsubscribe(topics ...string) paho.Token {
	c.lock.Lock()
	defer c.lock.Unlock()
	for _, topic := range topics {
		delete(c.subs, topic)
		c.unsubs = append(c.unsubs, topic)
	}
	return &paho.DummyToken{}
}

func (c *fakeClient) Publish(topic string, qos byte, retain bool, payload interface{}) paho.Token {
	data := payload.([]byte)
	c.lock.Lock()
	c.pubs = append(c.pubs, published{topic: topic, payload: data, qos: qos, retain: retain})
	var handlers []paho.MessageHandler
	for pattern, cb := range c.subs {
		if MatchTopic(topic, pattern) {
			handlers = append(handlers, cb)
		}
	}
	c.lock.Unlock()
	for _, cb := range handlers {
		cb(c, &fakeMessage{topic: topic, payload: data})
	}
	return &paho.DummyToken{}
}

func (c *fakeClient) subscribed() []string {
	c.lock.Lock()
	defer c.lock.Unlock()
	var topics []string
	for topic := range c.subs {
		topics = append(topics, topic)
	}
	return topics
}

func (c *fakeClient) published(prefix string) []published {
	c.lock.Lock()
	defer c.lock.Unlock()
	var res []published
	for _, p := range c.pubs {
		if strings.HasPrefix(p.topic, prefix) {
			res = append(res, p)
		}
	}
	return res
}

type fakeMessage struct {
	paho.Message
	topic   string
	payload []byte
}

func (m *fakeMessage) Topic() string   { return m.topic }
func (m *fakeMessage) Payload() []byte { return m.payload }

func newTestQueue(prefix string) (*Queue, *fakeClient) {
	client := newFakeClient()
	q := &Queue{Client: client, TopicPrefix: prefix}
	return q, client
}
