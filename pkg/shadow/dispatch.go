package shadow

import (
	"context"
	"encoding/json"
)

// handleMessage is the Transport's message-arrived callback: it classifies
// an inbound message by topic and routes it to either the in-flight table
// or the delta registry. Anything other than the seven subscribed inbound
// topics is logged and dropped -- malformed inbound data never reaches a
// caller.
func (c *Client) handleMessage(topic string, payload []byte) {
	if len(payload) < 3 {
		c.logger.Warn("shadow dropping undersized payload", "device", c.name, "topic", topic, "len", len(payload))
		return
	}

	var body map[string]any
	if err := json.Unmarshal(payload, &body); err != nil {
		c.logger.Warn("shadow dropping unparsable payload", "device", c.name, "topic", topic, "error", err)
		return
	}

	route, ok := c.topics.route(topic)
	if !ok {
		c.logger.Warn("shadow dropping message on unknown topic", "device", c.name, "topic", topic)
		return
	}

	if route.isDelta {
		c.handleDelta(body)
		return
	}
	c.handleReply(route, body)
}

func (c *Client) handleReply(route topicRoute, body map[string]any) {
	requestID, _ := body["requestId"].(string)
	if requestID == "" {
		c.logger.Warn("shadow reply missing requestId", "device", c.name, "action", route.action)
		return
	}

	var ack Ack
	switch route.status {
	case statusAccepted:
		ack = Ack{Status: StatusAccepted, Document: body}
	case statusRejected:
		code, _ := body["code"].(string)
		message, _ := body["message"].(string)
		ack = Ack{Status: StatusRejected, Code: code, Message: message}
	}

	if !c.inflight.Complete(requestID, ack) {
		c.logger.Warn("shadow reply matched no in-flight request", "device", c.name, "request_id", requestID, "action", route.action)
	}
}

func (c *Client) handleDelta(body map[string]any) {
	requestID, _ := body["requestId"].(string)

	desired, _ := body["desired"].(map[string]any)
	if desired == nil {
		desired = map[string]any{}
	}

	result := c.deltas.Dispatch(desired)
	if result.Rejected {
		c.publishDeltaRejected(context.Background(), requestID, result.Code, result.Message)
	}
}
