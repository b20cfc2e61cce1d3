package shadow

import "testing"

func TestNewTopicsDerivesAllEleven(t *testing.T) {
	topics := NewTopics("lamp-01")

	want := map[string]string{
		"Update":         "baidu/iot/shadow/lamp-01/update",
		"UpdateAccepted": "baidu/iot/shadow/lamp-01/update/accepted",
		"UpdateRejected": "baidu/iot/shadow/lamp-01/update/rejected",
		"Get":            "baidu/iot/shadow/lamp-01/get",
		"GetAccepted":    "baidu/iot/shadow/lamp-01/get/accepted",
		"GetRejected":    "baidu/iot/shadow/lamp-01/get/rejected",
		"Delete":         "baidu/iot/shadow/lamp-01/delete",
		"DeleteAccepted": "baidu/iot/shadow/lamp-01/delete/accepted",
		"DeleteRejected": "baidu/iot/shadow/lamp-01/delete/rejected",
		"Delta":          "baidu/iot/shadow/lamp-01/delta",
		"DeltaRejected":  "baidu/iot/shadow/lamp-01/delta/rejected",
	}
	got := map[string]string{
		"Update":         topics.Update,
		"UpdateAccepted": topics.UpdateAccepted,
		"UpdateRejected": topics.UpdateRejected,
		"Get":            topics.Get,
		"GetAccepted":    topics.GetAccepted,
		"GetRejected":    topics.GetRejected,
		"Delete":         topics.Delete,
		"DeleteAccepted": topics.DeleteAccepted,
		"DeleteRejected": topics.DeleteRejected,
		"Delta":          topics.Delta,
		"DeltaRejected":  topics.DeltaRejected,
	}
	for k, want := range want {
		if got[k] != want {
			t.Errorf("%s = %q, want %q", k, got[k], want)
		}
	}
}

func TestSubscriptionsCoversAllSevenDistinctTopics(t *testing.T) {
	topics := NewTopics("lamp-01")
	subs := topics.Subscriptions()
	if len(subs) != 7 {
		t.Fatalf("Subscriptions() returned %d topics, want 7", len(subs))
	}

	seen := make(map[string]bool, len(subs))
	for _, s := range subs {
		if seen[s] {
			t.Errorf("duplicate subscription topic %q", s)
		}
		seen[s] = true
	}
	for _, want := range []string{
		topics.UpdateAccepted, topics.UpdateRejected,
		topics.GetAccepted, topics.GetRejected,
		topics.DeleteAccepted, topics.DeleteRejected,
		topics.Delta,
	} {
		if !seen[want] {
			t.Errorf("Subscriptions() missing %q", want)
		}
	}
}

func TestRouteIsCaseInsensitive(t *testing.T) {
	topics := NewTopics("lamp-01")

	r, ok := topics.route("BAIDU/IOT/SHADOW/lamp-01/Update/Accepted")
	if !ok {
		t.Fatal("route() did not match uppercased topic")
	}
	if r.action != ActionUpdate || r.status != statusAccepted {
		t.Errorf("route() = %+v, want update/accepted", r)
	}
}

func TestRouteUnknownTopic(t *testing.T) {
	topics := NewTopics("lamp-01")
	if _, ok := topics.route("baidu/iot/shadow/lamp-01/nonsense"); ok {
		t.Error("route() matched an unknown topic")
	}
}

func TestOutboundTopic(t *testing.T) {
	topics := NewTopics("lamp-01")
	cases := []struct {
		action Action
		want   string
	}{
		{ActionUpdate, topics.Update},
		{ActionGet, topics.Get},
		{ActionDelete, topics.Delete},
	}
	for _, c := range cases {
		if got := topics.OutboundTopic(c.action); got != c.want {
			t.Errorf("OutboundTopic(%v) = %q, want %q", c.action, got, c.want)
		}
	}
}
