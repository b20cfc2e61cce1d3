package shadow

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	defaultMaxInFlight      = 64
	defaultMaxDeltaHandlers = 32
	defaultMaxClients       = 1024
	defaultQoS              = 1
	defaultSubscribeTimeout = 10 * time.Second
)

// connState is the dispatcher state machine from spec 4.6.
type connState int

const (
	stateDown connState = iota
	stateConnecting
	stateSubscribing
	stateReady
)

func (s connState) String() string {
	switch s {
	case stateDown:
		return "DOWN"
	case stateConnecting:
		return "CONNECTING"
	case stateSubscribing:
		return "SUBSCRIBING"
	case stateReady:
		return "READY"
	default:
		return "UNKNOWN"
	}
}

var (
	defaultRegistry = NewRegistry(defaultMaxClients)

	reapersMu sync.Mutex
	reapers   = map[*Registry]*Reaper{}
)

// ensureReaperRunning starts one background reaper for r the first time a
// client registered in r becomes READY.
func ensureReaperRunning(r *Registry) {
	reapersMu.Lock()
	defer reapersMu.Unlock()
	if _, ok := reapers[r]; ok {
		return
	}
	rp := NewReaper(r, reapTick)
	reapers[r] = rp
	go rp.Run()
}

// Client is the public shadow engine surface: the process-wide registry,
// in-flight table, and delta registry for one device, multiplexed over one
// injected Transport.
type Client struct {
	name      string
	transport Transport
	topics    *Topics
	inflight  *InFlightTable
	deltas    *DeltaRegistry
	registry  *Registry
	qos       byte
	logger    *slog.Logger

	subscribeTimeout time.Duration

	mu      sync.Mutex
	state   connState
	lastErr error
}

// Option configures a Client at construction time.
type Option func(*Client)

// WithLogger overrides the client's logger (default: slog.Default()).
func WithLogger(l *slog.Logger) Option {
	return func(c *Client) { c.logger = l }
}

// WithMaxInFlight overrides the in-flight table capacity (default 64).
func WithMaxInFlight(n int) Option {
	return func(c *Client) { c.inflight = NewInFlightTable(n) }
}

// WithMaxDeltaHandlers overrides the delta registry capacity (default 32).
func WithMaxDeltaHandlers(n int) Option {
	return func(c *Client) { c.deltas = NewDeltaRegistry(n) }
}

// WithQoS overrides the QoS used for both subscriptions and publishes
// (default 1, per spec).
func WithQoS(qos byte) Option {
	return func(c *Client) { c.qos = qos }
}

// WithRegistry overrides the process-wide client registry the reaper walks.
// Intended for tests that want isolation from the package-level default.
func WithRegistry(r *Registry) Option {
	return func(c *Client) { c.registry = r }
}

// WithSubscribeTimeout bounds how long the initial subscribe (spec's
// SUBSCRIBE_TIMEOUT) is allowed to take, independent of any deadline on the
// ctx passed to Connect (default 10s).
func WithSubscribeTimeout(d time.Duration) Option {
	return func(c *Client) { c.subscribeTimeout = d }
}

// New constructs a shadow Client for deviceName over transport. The
// transport is not yet connected; call Connect to bring it up. Credentials
// and broker addressing are the transport's concern (see pkg/shadowmqtt),
// matching the "transport abstraction" redesign called for in spec's design
// notes.
func New(transport Transport, deviceName string, opts ...Option) *Client {
	c := &Client{
		name:      deviceName,
		transport: transport,
		topics:    NewTopics(deviceName),
		inflight:  NewInFlightTable(defaultMaxInFlight),
		deltas:    NewDeltaRegistry(defaultMaxDeltaHandlers),
		registry:  defaultRegistry,
		qos:       defaultQoS,
		logger:    slog.Default(),
		state:     stateDown,

		subscribeTimeout: defaultSubscribeTimeout,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Topics returns the device's derived topic contract.
func (c *Client) Topics() *Topics { return c.topics }

// State reports the current connection state, mostly useful for tests and
// diagnostics.
func (c *Client) State() connState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// LastError returns the last recorded transport error, if any.
func (c *Client) LastError() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastErr
}

func (c *Client) setState(s connState) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *Client) recordErr(err error) {
	c.mu.Lock()
	c.lastErr = err
	c.mu.Unlock()
}

func (c *Client) isReady() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state == stateReady
}

// Connect initiates the connection and blocks until the client is READY
// (connected and subscribed to all seven inbound topics) or a transport
// error is observed.
func (c *Client) Connect(ctx context.Context) error {
	c.transport.SetMessageHandler(c.handleMessage)
	c.transport.SetConnectionLostHandler(c.handleConnectionLost)

	c.setState(stateConnecting)
	if err := c.transport.Connect(ctx); err != nil {
		c.setState(stateDown)
		c.recordErr(err)
		return wrapErr("connect", CodeFailure, err)
	}

	c.setState(stateSubscribing)
	subCtx, cancel := context.WithTimeout(ctx, c.subscribeTimeout)
	err := c.transport.Subscribe(subCtx, c.topics.Subscriptions(), c.qos)
	cancel()
	if err != nil {
		c.setState(stateDown)
		c.recordErr(err)
		return wrapErr("connect", CodeFailure, err)
	}

	if err := c.registry.Add(c); err != nil {
		c.setState(stateDown)
		c.recordErr(err)
		return err
	}

	c.setState(stateReady)
	ensureReaperRunning(c.registry)
	c.logger.Info("shadow client ready", "device", c.name)
	return nil
}

// handleConnectionLost records the transport error and drops the client
// back to DOWN. In-flight requests are left untouched: they will time out
// naturally, and late replies delivered after a reconnect are still
// honored (spec 4.6).
func (c *Client) handleConnectionLost(err error) {
	c.recordErr(err)
	c.setState(stateDown)
	c.logger.Warn("shadow transport connection lost", "device", c.name, "error", err)
}

// Destroy removes the client from the registry, disconnects the transport,
// and releases its resources. In-flight callbacks are NOT synthesized on
// destroy -- callers must not rely on callbacks firing after Destroy
// returns.
func (c *Client) Destroy() error {
	c.registry.Remove(c)
	c.setState(stateDown)
	return c.transport.Close()
}

// Update publishes reported state. cb fires exactly once with the result:
// accepted (full response document), rejected (code/message), or timeout.
func (c *Client) Update(ctx context.Context, reported map[string]any, cb Callback, cbCtx any, timeoutSec uint8) error {
	if reported == nil {
		return newErr("update", CodeNullPointer)
	}
	return c.publishRequest(ctx, ActionUpdate, map[string]any{"reported": reported}, cb, cbCtx, timeoutSec)
}

// Get fetches the full shadow document. cb receives the document on accept.
func (c *Client) Get(ctx context.Context, cb Callback, cbCtx any, timeoutSec uint8) error {
	return c.publishRequest(ctx, ActionGet, nil, cb, cbCtx, timeoutSec)
}

// Delete deletes the shadow.
func (c *Client) Delete(ctx context.Context, cb Callback, cbCtx any, timeoutSec uint8) error {
	return c.publishRequest(ctx, ActionDelete, nil, cb, cbCtx, timeoutSec)
}

func (c *Client) publishRequest(ctx context.Context, action Action, extra map[string]any, cb Callback, cbCtx any, timeoutSec uint8) error {
	if cb == nil {
		return newErr(action.String(), CodeNullPointer)
	}
	if !c.isReady() {
		return newErr(action.String(), CodeNotConnected)
	}

	requestID := uuid.NewString()

	body := make(map[string]any, len(extra)+1)
	for k, v := range extra {
		body[k] = v
	}
	body["requestId"] = requestID

	payload, err := json.Marshal(body)
	if err != nil {
		return wrapErr(action.String(), CodeBadArgument, err)
	}

	// Insert before publishing: if the broker replies faster than our own
	// publish call returns, the reply must already find its slot. If
	// insertion fails we perform no publish at all.
	if err := c.inflight.Insert(requestID, action, cb, cbCtx, timeoutSec); err != nil {
		return err
	}

	if err := c.transport.Publish(ctx, c.topics.OutboundTopic(action), c.qos, payload); err != nil {
		// The slot is left in place; it will be reaped on timeout rather
		// than rolled back, which would race a reply the broker may have
		// already dispatched concurrently with our failed publish attempt.
		c.logger.Error("shadow publish failed", "device", c.name, "action", action, "request_id", requestID, "error", err)
	}
	return nil
}

// RegisterDelta appends a handler to the delta registry. An empty key
// receives the whole desired object on every delta; a non-empty key
// receives only that sub-object, when present. Requires the client be
// connected and subscribed (READY).
func (c *Client) RegisterDelta(key string, cb DeltaCallback) error {
	if cb == nil {
		return newErr("registerDelta", CodeNullPointer)
	}
	if !c.isReady() {
		return newErr("registerDelta", CodeNotConnected)
	}
	return c.deltas.Register(key, cb)
}

func (c *Client) publishDeltaRejected(ctx context.Context, requestID, code, message string) {
	payload, err := json.Marshal(map[string]string{
		"requestId": requestID,
		"code":      code,
		"message":   message,
	})
	if err != nil {
		c.logger.Error("shadow marshal delta/rejected failed", "device", c.name, "error", err)
		return
	}
	if err := c.transport.Publish(ctx, c.topics.DeltaRejected, c.qos, payload); err != nil {
		c.logger.Error("shadow publish delta/rejected failed", "device", c.name, "error", err)
	}
}

// String implements fmt.Stringer for log-friendly identification.
func (c *Client) String() string {
	return fmt.Sprintf("shadow.Client{device=%s}", c.name)
}
