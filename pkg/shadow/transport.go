package shadow

import "context"

// Transport is the injected MQTT collaborator. The shadow engine never
// speaks MQTT itself -- it only needs a connection that can subscribe,
// publish, and deliver inbound messages and connection-lost notifications.
// See pkg/shadowmqtt for a production implementation and pkg/shadowfake for
// an in-memory one used by this package's own tests.
type Transport interface {
	// SetMessageHandler registers the callback invoked for every inbound
	// message on a subscribed topic. Must be called before Connect.
	SetMessageHandler(h func(topic string, payload []byte))

	// SetConnectionLostHandler registers the callback invoked when the
	// connection drops. Auto-reconnect, if any, happens below this
	// interface; the engine only needs to know a disconnect happened so it
	// can record the last transport error.
	SetConnectionLostHandler(h func(err error))

	// Connect establishes the connection, blocking until connected or ctx is
	// done / an error occurs.
	Connect(ctx context.Context) error

	// Subscribe subscribes to topics at the given QoS. Used once at connect
	// time for the seven inbound shadow topics.
	Subscribe(ctx context.Context, topics []string, qos byte) error

	// Publish publishes payload to topic at the given QoS, returning once
	// the broker has accepted (or rejected) the publish.
	Publish(ctx context.Context, topic string, qos byte, payload []byte) error

	// Close disconnects the transport. Idempotent.
	Close() error
}
