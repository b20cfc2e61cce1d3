// Package shadow implements a client for a cloud IoT device-shadow service
// carried over MQTT. A shadow is a server-hosted JSON document describing a
// device's reported and desired state; a Client publishes reported state,
// fetches or deletes the shadow, and reacts to deltas (desired - reported)
// pushed by the cloud.
//
// Every operation is an asynchronous request/response exchange over a fixed
// family of MQTT topics (see Topics), correlated by a client-generated
// request ID. The MQTT transport itself is injected (see Transport) so this
// package has no knowledge of any particular broker client library.
package shadow
