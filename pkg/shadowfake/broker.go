// Package shadowfake provides an in-memory shadow.Transport for unit tests.
// It stands in for a real MQTT broker: Publish records what was sent and
// Deliver injects an inbound message as if the broker had pushed it down to
// the subscriber, so tests can exercise the shadow engine's correlator and
// dispatcher without a network or a real broker.
//
// The matching here is a flat map rather than the trie pkg/mqtt's ServeMux
// uses, because the shadow engine only ever subscribes to exact topics --
// none of the eleven shadow topics contain MQTT wildcards.
package shadowfake

import (
	"context"
	"fmt"
	"sync"

	"github.com/bce-iot/shadow-go/pkg/shadow"
)

var _ shadow.Transport = (*Broker)(nil)

// Published is one message handed to Broker.Publish.
type Published struct {
	Topic   string
	QoS     byte
	Payload []byte
}

// Broker is a fake broker connection implementing shadow.Transport.
type Broker struct {
	mu sync.Mutex

	connected   bool
	subs        map[string]bool
	published   []Published
	msgHandler  func(topic string, payload []byte)
	lostHandler func(error)

	// FailConnect, when set, is returned by Connect instead of succeeding.
	FailConnect error
	// FailSubscribe, when set, is returned by Subscribe instead of succeeding.
	FailSubscribe error
	// FailPublish, when set, is returned by every Publish call; the message
	// is still recorded, matching a real broker that may reject after
	// accepting bytes on the wire.
	FailPublish error
}

// NewBroker returns an unconnected fake broker.
func NewBroker() *Broker {
	return &Broker{subs: make(map[string]bool)}
}

func (b *Broker) SetMessageHandler(h func(topic string, payload []byte)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.msgHandler = h
}

func (b *Broker) SetConnectionLostHandler(h func(err error)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.lostHandler = h
}

func (b *Broker) Connect(ctx context.Context) error {
	if b.FailConnect != nil {
		return b.FailConnect
	}
	b.mu.Lock()
	b.connected = true
	b.mu.Unlock()
	return nil
}

func (b *Broker) Subscribe(ctx context.Context, topics []string, qos byte) error {
	if b.FailSubscribe != nil {
		return b.FailSubscribe
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, t := range topics {
		b.subs[t] = true
	}
	return nil
}

func (b *Broker) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	b.mu.Lock()
	b.published = append(b.published, Published{Topic: topic, QoS: qos, Payload: append([]byte(nil), payload...)})
	b.mu.Unlock()
	return b.FailPublish
}

func (b *Broker) Close() error {
	b.mu.Lock()
	b.connected = false
	b.mu.Unlock()
	return nil
}

// Published returns a snapshot of every message handed to Publish, in
// order.
func (b *Broker) Published() []Published {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]Published, len(b.published))
	copy(out, b.published)
	return out
}

// LastPublished returns the most recent publish to topic, if any.
func (b *Broker) LastPublished(topic string) (Published, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for i := len(b.published) - 1; i >= 0; i-- {
		if b.published[i].Topic == topic {
			return b.published[i], true
		}
	}
	return Published{}, false
}

// Deliver injects an inbound message on topic as if the broker had
// delivered it, failing if the fake was never subscribed to that topic --
// a real broker would never deliver an unsubscribed topic either.
func (b *Broker) Deliver(topic string, payload []byte) error {
	b.mu.Lock()
	subscribed := b.subs[topic]
	h := b.msgHandler
	b.mu.Unlock()

	if !subscribed {
		return fmt.Errorf("shadowfake: not subscribed to %s", topic)
	}
	if h != nil {
		h(topic, payload)
	}
	return nil
}

// SimulateConnectionLost invokes the registered connection-lost handler, as
// a real transport would on an unexpected disconnect.
func (b *Broker) SimulateConnectionLost(err error) {
	b.mu.Lock()
	b.connected = false
	h := b.lostHandler
	b.mu.Unlock()
	if h != nil {
		h(err)
	}
}

// IsSubscribed reports whether topic is in the fake's subscription set.
func (b *Broker) IsSubscribed(topic string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.subs[topic]
}
