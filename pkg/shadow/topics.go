package shadow

import (
	"fmt"
	"strings"
)

// topicPrefix is the fixed MQTT topic family root all shadow topics descend
// from: baidu/iot/shadow/<deviceName>/<verb>[/accepted|/rejected].
const topicPrefix = "baidu/iot/shadow"

// Action identifies which shadow verb a request or reply belongs to.
type Action int

const (
	ActionUpdate Action = iota
	ActionGet
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionUpdate:
		return "UPDATE"
	case ActionGet:
		return "GET"
	case ActionDelete:
		return "DELETE"
	default:
		return "UNKNOWN"
	}
}

// replyStatus classifies an inbound reply topic.
type replyStatus int

const (
	statusAccepted replyStatus = iota
	statusRejected
)

// topicRoute is what a known inbound topic resolves to: either a correlated
// reply for an action, or a delta.
type topicRoute struct {
	isDelta bool
	action  Action
	status  replyStatus
}

// Topics is the immutable set of eleven MQTT topics derived from a device
// name. Constructing it once and memoizing the strings avoids per-message
// allocation and gives the dispatcher O(1) topic classification via a map
// lookup instead of repeated string building or prefix scans.
type Topics struct {
	deviceName string

	Update         string
	UpdateAccepted string
	UpdateRejected string
	Get            string
	GetAccepted    string
	GetRejected    string
	Delete         string
	DeleteAccepted string
	DeleteRejected string
	Delta          string
	DeltaRejected  string

	routes map[string]topicRoute
}

// NewTopics derives the eleven shadow topics for deviceName.
func NewTopics(deviceName string) *Topics {
	base := fmt.Sprintf("%s/%s", topicPrefix, deviceName)
	t := &Topics{
		deviceName:     deviceName,
		Update:         base + "/update",
		UpdateAccepted: base + "/update/accepted",
		UpdateRejected: base + "/update/rejected",
		Get:            base + "/get",
		GetAccepted:    base + "/get/accepted",
		GetRejected:    base + "/get/rejected",
		Delete:         base + "/delete",
		DeleteAccepted: base + "/delete/accepted",
		DeleteRejected: base + "/delete/rejected",
		Delta:          base + "/delta",
		DeltaRejected:  base + "/delta/rejected",
	}
	t.routes = map[string]topicRoute{
		strings.ToLower(t.UpdateAccepted): {action: ActionUpdate, status: statusAccepted},
		strings.ToLower(t.UpdateRejected): {action: ActionUpdate, status: statusRejected},
		strings.ToLower(t.GetAccepted):    {action: ActionGet, status: statusAccepted},
		strings.ToLower(t.GetRejected):    {action: ActionGet, status: statusRejected},
		strings.ToLower(t.DeleteAccepted): {action: ActionDelete, status: statusAccepted},
		strings.ToLower(t.DeleteRejected): {action: ActionDelete, status: statusRejected},
		strings.ToLower(t.Delta):          {isDelta: true},
	}
	return t
}

// DeviceName returns the device name the topics were derived from.
func (t *Topics) DeviceName() string { return t.deviceName }

// Subscriptions returns the seven inbound topics subscribed to at connect
// time: all six accepted/rejected topics plus delta. A conforming
// implementation subscribes to every one of them -- unlike the C SDK this
// client descends from, which subscribed to get/accepted and get/rejected
// twice, silently shadowing the delete/accepted and delete/rejected slots.
func (t *Topics) Subscriptions() []string {
	return []string{
		t.UpdateAccepted,
		t.UpdateRejected,
		t.GetAccepted,
		t.GetRejected,
		t.DeleteAccepted,
		t.DeleteRejected,
		t.Delta,
	}
}

// route classifies an inbound topic, matching case-insensitively as spec
// requires. ok is false for anything other than the seven subscribed
// inbound topics, including the outbound and delta/rejected topics
// (callers should warn and drop).
func (t *Topics) route(topic string) (topicRoute, bool) {
	r, ok := t.routes[strings.ToLower(topic)]
	return r, ok
}

// OutboundTopic returns the publish topic for a given action.
func (t *Topics) OutboundTopic(a Action) string {
	switch a {
	case ActionUpdate:
		return t.Update
	case ActionGet:
		return t.Get
	case ActionDelete:
		return t.Delete
	default:
		return ""
	}
}
