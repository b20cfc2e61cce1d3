// Package shadowmqtt is the production shadow.Transport, built on
// github.com/eclipse/paho.golang/autopaho. A Transport is configured with
// functional Option values, owns the live autopaho.ConnectionManager, and
// resubscribes on every reconnect.
package shadowmqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/url"
	"sync"
	"time"

	"github.com/eclipse/paho.golang/autopaho"
	"github.com/eclipse/paho.golang/paho"

	"github.com/bce-iot/shadow-go/pkg/shadow"
)

var _ shadow.Transport = (*Transport)(nil)

const (
	defaultConnectTimeout   = 10 * time.Second
	defaultSubscribeTimeout = 10 * time.Second
)

// Transport is a shadow.Transport backed by a real MQTT broker connection.
type Transport struct {
	addr     string
	clientID string
	username string
	password string
	keepAlive uint16
	connectTimeout   time.Duration
	subscribeTimeout time.Duration
	tlsConfig *tls.Config
	logger    *slog.Logger

	mu sync.RWMutex
	cm *autopaho.ConnectionManager

	msgHandler  func(topic string, payload []byte)
	lostHandler func(error)

	subMu sync.Mutex
	subs  []string // topics to resubscribe to on every reconnect
	qos   byte
}

// Option configures a Transport at construction time.
type Option func(*Transport)

// WithClientID sets the MQTT client identifier (default: "shadow-" followed
// by the current time in Unix nanoseconds).
func WithClientID(id string) Option {
	return func(t *Transport) { t.clientID = id }
}

// WithCredentials sets the username/password used on every (re)connect.
func WithCredentials(username, password string) Option {
	return func(t *Transport) { t.username = username; t.password = password }
}

// WithKeepAlive sets the MQTT keep-alive interval in seconds (default 20s).
func WithKeepAlive(seconds uint16) Option {
	return func(t *Transport) { t.keepAlive = seconds }
}

// WithConnectTimeout bounds how long Connect waits for the broker (default 10s).
func WithConnectTimeout(d time.Duration) Option {
	return func(t *Transport) { t.connectTimeout = d }
}

// WithSubscribeTimeout bounds how long Subscribe, and each automatic
// resubscribe issued after a reconnect, waits for the broker to ack
// (default 10s, spec's SUBSCRIBE_TIMEOUT).
func WithSubscribeTimeout(d time.Duration) Option {
	return func(t *Transport) { t.subscribeTimeout = d }
}

// WithTLSConfig sets the TLS configuration used for tls:// / mqtts:// addresses.
func WithTLSConfig(cfg *tls.Config) Option {
	return func(t *Transport) { t.tlsConfig = cfg }
}

// WithLogger overrides the transport's logger (default slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(t *Transport) { t.logger = l }
}

// New returns a Transport for the broker at addr (e.g. "tcp://host:1883" or
// "tls://host:8883"). It does not connect; call Connect to do so.
func New(addr string, opts ...Option) *Transport {
	t := &Transport{
		addr:             addr,
		keepAlive:        20,
		connectTimeout:   defaultConnectTimeout,
		subscribeTimeout: defaultSubscribeTimeout,
		logger:           slog.Default(),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

func (t *Transport) SetMessageHandler(h func(topic string, payload []byte)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.msgHandler = h
}

func (t *Transport) SetConnectionLostHandler(h func(err error)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lostHandler = h
}

// Connect dials the broker and blocks until the connection is up.
// Auto-reconnect and resubscription on every reconnect are handled
// internally by autopaho's ConnectionManager plus our OnConnectionUp hook.
func (t *Transport) Connect(ctx context.Context) error {
	addru, err := url.Parse(t.addr)
	if err != nil {
		return fmt.Errorf("shadowmqtt: parse broker address: %w", err)
	}

	clientID := t.clientID
	if clientID == "" {
		clientID = fmt.Sprintf("shadow-%d", time.Now().UnixNano())
	}

	cfg := autopaho.ClientConfig{
		ServerUrls:                    []*url.URL{addru},
		KeepAlive:                     t.keepAlive,
		ConnectTimeout:                t.connectTimeout,
		CleanStartOnInitialConnection: true,
		TlsCfg:                        t.tlsConfig,
		OnConnectionUp: func(cm *autopaho.ConnectionManager, _ *paho.Connack) {
			t.logger.Info("shadowmqtt connected")
			t.resubscribe()
		},
		OnConnectError: func(err error) {
			t.logger.Warn("shadowmqtt connect attempt failed", "error", err)
		},
		ConnectPacketBuilder: func(pc *paho.Connect, uri *url.URL) (*paho.Connect, error) {
			if t.username != "" {
				pc.UsernameFlag = true
				pc.Username = t.username
				pc.PasswordFlag = true
				pc.Password = []byte(t.password)
			}
			return pc, nil
		},
		ClientConfig: paho.ClientConfig{
			ClientID: clientID,
			OnPublishReceived: []func(paho.PublishReceived) (bool, error){
				t.onPublishReceived,
			},
			OnClientError: func(err error) {
				t.invokeLost(err)
			},
			OnServerDisconnect: func(d *paho.Disconnect) {
				t.invokeLost(fmt.Errorf("shadowmqtt: server disconnect: reason %d", d.ReasonCode))
			},
		},
	}

	cm, err := autopaho.NewConnection(ctx, cfg)
	if err != nil {
		return fmt.Errorf("shadowmqtt: connect: %w", err)
	}
	if err := cm.AwaitConnection(ctx); err != nil {
		return fmt.Errorf("shadowmqtt: await connection: %w", err)
	}

	t.mu.Lock()
	t.cm = cm
	t.mu.Unlock()
	return nil
}

func (t *Transport) onPublishReceived(pr paho.PublishReceived) (bool, error) {
	t.mu.RLock()
	h := t.msgHandler
	t.mu.RUnlock()
	if h != nil {
		h(pr.Packet.Topic, pr.Packet.Payload)
	}
	return true, nil
}

func (t *Transport) invokeLost(err error) {
	t.mu.RLock()
	h := t.lostHandler
	t.mu.RUnlock()
	if h != nil {
		h(err)
	}
}

// resubscribe re-issues every subscription recorded by Subscribe. autopaho
// reconnects the TCP session transparently, but MQTT subscriptions are
// per-session and must be re-established. The shadow engine transitions to
// READY only after the Subscribe issued by its own Connect, and falls back
// to DOWN on every connection-lost notification; an automatic reconnect
// followed by this resubscribe does not return it to READY.
func (t *Transport) resubscribe() {
	t.subMu.Lock()
	topics := append([]string(nil), t.subs...)
	qos := t.qos
	t.subMu.Unlock()

	if len(topics) == 0 {
		return
	}
	t.mu.RLock()
	cm := t.cm
	t.mu.RUnlock()
	if cm == nil {
		return
	}

	sub := &paho.Subscribe{Subscriptions: make([]paho.SubscribeOptions, len(topics))}
	for i, topic := range topics {
		sub.Subscriptions[i] = paho.SubscribeOptions{Topic: topic, QoS: qos}
	}
	ctx, cancel := context.WithTimeout(context.Background(), t.subscribeTimeout)
	defer cancel()
	if _, err := cm.Subscribe(ctx, sub); err != nil {
		t.logger.Error("shadowmqtt resubscribe failed", "error", err)
	}
}

// Subscribe subscribes to topics at qos and remembers them for
// resubscription on future reconnects.
func (t *Transport) Subscribe(ctx context.Context, topics []string, qos byte) error {
	t.mu.RLock()
	cm := t.cm
	t.mu.RUnlock()
	if cm == nil {
		return errors.New("shadowmqtt: not connected")
	}

	sub := &paho.Subscribe{Subscriptions: make([]paho.SubscribeOptions, len(topics))}
	for i, topic := range topics {
		sub.Subscriptions[i] = paho.SubscribeOptions{Topic: topic, QoS: qos}
	}
	subCtx, cancel := context.WithTimeout(ctx, t.subscribeTimeout)
	defer cancel()
	if _, err := cm.Subscribe(subCtx, sub); err != nil {
		return fmt.Errorf("shadowmqtt: subscribe: %w", err)
	}

	t.subMu.Lock()
	t.subs = append(t.subs, topics...)
	t.qos = qos
	t.subMu.Unlock()
	return nil
}

// Publish publishes payload to topic at qos.
func (t *Transport) Publish(ctx context.Context, topic string, qos byte, payload []byte) error {
	t.mu.RLock()
	cm := t.cm
	t.mu.RUnlock()
	if cm == nil {
		return errors.New("shadowmqtt: not connected")
	}
	_, err := cm.Publish(ctx, &paho.Publish{
		Topic:   topic,
		QoS:     qos,
		Payload: payload,
	})
	if err != nil {
		return fmt.Errorf("shadowmqtt: publish %s: %w", topic, err)
	}
	return nil
}

// Close disconnects from the broker.
func (t *Transport) Close() error {
	t.mu.RLock()
	cm := t.cm
	t.mu.RUnlock()
	if cm == nil {
		return nil
	}
	return cm.Disconnect(context.Background())
}
