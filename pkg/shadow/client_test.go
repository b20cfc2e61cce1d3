package shadow_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/bce-iot/shadow-go/pkg/shadow"
	"github.com/bce-iot/shadow-go/pkg/shadowfake"
)

func connectedClient(t *testing.T, opts ...shadow.Option) (*shadow.Client, *shadowfake.Broker) {
	t.Helper()
	broker := shadowfake.NewBroker()
	client := shadow.New(broker, "lamp-01", opts...)
	if err := client.Connect(context.Background()); err != nil {
		t.Fatalf("Connect failed: %v", err)
	}
	t.Cleanup(func() { client.Destroy() })
	return client, broker
}

func lastRequestID(t *testing.T, broker *shadowfake.Broker, topic string) string {
	t.Helper()
	msg, ok := broker.LastPublished(topic)
	if !ok {
		t.Fatalf("nothing published on %s", topic)
	}
	var body map[string]any
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		t.Fatalf("unmarshal published body: %v", err)
	}
	rid, _ := body["requestId"].(string)
	if rid == "" {
		t.Fatalf("published body on %s has no requestId: %s", topic, msg.Payload)
	}
	return rid
}

func TestConnectSubscribesAllSevenTopics(t *testing.T) {
	_, broker := connectedClient(t)
	topics := shadow.NewTopics("lamp-01")
	for _, topic := range topics.Subscriptions() {
		if !broker.IsSubscribed(topic) {
			t.Errorf("not subscribed to %s", topic)
		}
	}
}

func TestUpdateAccepted(t *testing.T) {
	client, broker := connectedClient(t)
	topics := client.Topics()

	type result struct {
		ack shadow.Ack
	}
	done := make(chan result, 1)
	err := client.Update(context.Background(), map[string]any{"on": true}, func(action shadow.Action, ack shadow.Ack, ctx any) {
		done <- result{ack}
	}, nil, 5)
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}

	rid := lastRequestID(t, broker, topics.Update)
	reply, _ := json.Marshal(map[string]any{
		"requestId": rid,
		"reported":  map[string]any{"on": true},
	})
	if err := broker.Deliver(topics.UpdateAccepted, reply); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	select {
	case r := <-done:
		if r.ack.Status != shadow.StatusAccepted {
			t.Errorf("ack.Status = %v, want StatusAccepted", r.ack.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was never invoked")
	}
}

func TestGetRejected(t *testing.T) {
	client, broker := connectedClient(t)
	topics := client.Topics()

	done := make(chan shadow.Ack, 1)
	if err := client.Get(context.Background(), func(action shadow.Action, ack shadow.Ack, ctx any) {
		done <- ack
	}, nil, 5); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	rid := lastRequestID(t, broker, topics.Get)
	reply, _ := json.Marshal(map[string]any{
		"requestId": rid,
		"code":      "NOT_FOUND",
		"message":   "no shadow document",
	})
	if err := broker.Deliver(topics.GetRejected, reply); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	select {
	case ack := <-done:
		if ack.Status != shadow.StatusRejected || ack.Code != "NOT_FOUND" {
			t.Errorf("ack = %+v, want rejected/NOT_FOUND", ack)
		}
	case <-time.After(time.Second):
		t.Fatal("callback was never invoked")
	}
}

func TestRequestTimesOutWhenNoReplyArrives(t *testing.T) {
	client, _ := connectedClient(t)

	done := make(chan shadow.Status, 1)
	if err := client.Delete(context.Background(), func(action shadow.Action, ack shadow.Ack, ctx any) {
		done <- ack.Status
	}, nil, 1); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	select {
	case status := <-done:
		if status != shadow.StatusTimeout {
			t.Errorf("ack.Status = %v, want StatusTimeout", status)
		}
	case <-time.After(4 * time.Second):
		t.Fatal("request was never reaped")
	}
}

func TestUpdateOverCapacityFailsWithoutPublishing(t *testing.T) {
	client, broker := connectedClient(t, shadow.WithMaxInFlight(1))

	blocker := make(chan struct{})
	if err := client.Get(context.Background(), func(shadow.Action, shadow.Ack, any) { <-blocker }, nil, 30); err != nil {
		t.Fatalf("first Get failed: %v", err)
	}
	close(blocker)

	before := len(broker.Published())
	err := client.Update(context.Background(), map[string]any{"on": true}, func(shadow.Action, shadow.Ack, any) {}, nil, 30)
	if !shadow.HasCode(err, shadow.CodeTooManyInFlight) {
		t.Fatalf("Update over capacity = %v, want CodeTooManyInFlight", err)
	}
	if len(broker.Published()) != before {
		t.Error("a rejected insert still resulted in a publish")
	}
}

func TestRegisterDeltaRequiresReadyClient(t *testing.T) {
	broker := shadowfake.NewBroker()
	client := shadow.New(broker, "lamp-01")
	err := client.RegisterDelta("brightness", func(string, any) (string, string) { return "", "" })
	if !shadow.HasCode(err, shadow.CodeNotConnected) {
		t.Fatalf("RegisterDelta before Connect = %v, want CodeNotConnected", err)
	}
}

func TestDeltaKeyedHandlerAndRejectPublishesDeltaRejected(t *testing.T) {
	client, broker := connectedClient(t)
	topics := client.Topics()

	var gotValue any
	if err := client.RegisterDelta("brightness", func(key string, value any) (string, string) {
		gotValue = value
		return "OUT_OF_RANGE", "brightness must be 0-100"
	}); err != nil {
		t.Fatalf("RegisterDelta failed: %v", err)
	}

	payload, _ := json.Marshal(map[string]any{
		"requestId": "delta-1",
		"desired":   map[string]any{"brightness": float64(200)},
	})
	if err := broker.Deliver(topics.Delta, payload); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}

	if gotValue != float64(200) {
		t.Errorf("handler saw value %v, want 200", gotValue)
	}

	msg, ok := broker.LastPublished(topics.DeltaRejected)
	if !ok {
		t.Fatal("nothing published on delta/rejected")
	}
	var body map[string]string
	if err := json.Unmarshal(msg.Payload, &body); err != nil {
		t.Fatalf("unmarshal delta/rejected body: %v", err)
	}
	if body["code"] != "OUT_OF_RANGE" {
		t.Errorf("delta/rejected code = %q, want OUT_OF_RANGE", body["code"])
	}
}

func TestConnectionLostRecordsErrorWithoutClearingInFlight(t *testing.T) {
	client, broker := connectedClient(t)

	done := make(chan shadow.Ack, 1)
	if err := client.Get(context.Background(), func(_ shadow.Action, ack shadow.Ack, _ any) {
		done <- ack
	}, nil, 30); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	broker.SimulateConnectionLost(context.DeadlineExceeded)

	if client.State().String() != "DOWN" {
		t.Errorf("state = %v, want DOWN after connection lost", client.State())
	}
	if client.LastError() == nil {
		t.Error("LastError() is nil after connection lost")
	}

	// The pending Get must still be in flight: a late reply completes it.
	rid := lastRequestID(t, broker, client.Topics().Get)
	reply, _ := json.Marshal(map[string]any{"requestId": rid})
	if err := broker.Deliver(client.Topics().GetAccepted, reply); err != nil {
		t.Fatalf("Deliver failed: %v", err)
	}
	select {
	case ack := <-done:
		if ack.Status != shadow.StatusAccepted {
			t.Errorf("ack.Status = %v, want StatusAccepted", ack.Status)
		}
	case <-time.After(time.Second):
		t.Fatal("late reply found no in-flight request after connection lost")
	}
}
