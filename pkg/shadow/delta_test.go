package shadow

import "testing"

func TestDeltaDispatchKeyedHandlerOnlyFiresWhenPresent(t *testing.T) {
	reg := NewDeltaRegistry(8)
	fired := false
	if err := reg.Register("brightness", func(key string, value any) (string, string) {
		fired = true
		if key != "brightness" || value != float64(80) {
			t.Errorf("handler got key=%q value=%v", key, value)
		}
		return "", ""
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result := reg.Dispatch(map[string]any{"color": "red"})
	if fired {
		t.Error("keyed handler fired for a desired object missing its key")
	}
	if result.Rejected {
		t.Errorf("Dispatch() = %+v, want not rejected", result)
	}

	fired = false
	reg.Dispatch(map[string]any{"brightness": float64(80)})
	if !fired {
		t.Error("keyed handler did not fire when its key was present")
	}
}

func TestDeltaDispatchWholeObjectHandler(t *testing.T) {
	reg := NewDeltaRegistry(8)
	var seen map[string]any
	if err := reg.Register("", func(key string, value any) (string, string) {
		seen, _ = value.(map[string]any)
		return "", ""
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	desired := map[string]any{"brightness": float64(10), "color": "blue"}
	reg.Dispatch(desired)
	if len(seen) != 2 {
		t.Errorf("whole-object handler saw %v, want the full desired map", seen)
	}
}

func TestDeltaDispatchOrderAndShortCircuit(t *testing.T) {
	reg := NewDeltaRegistry(8)
	var order []string

	if err := reg.Register("", func(string, any) (string, string) {
		order = append(order, "first")
		return "BAD_REQUEST", "rejected by first handler"
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register("", func(string, any) (string, string) {
		order = append(order, "second")
		return "", ""
	}); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	result := reg.Dispatch(map[string]any{})
	if !result.Rejected || result.Code != "BAD_REQUEST" {
		t.Fatalf("Dispatch() = %+v, want rejected with BAD_REQUEST", result)
	}
	if len(order) != 1 || order[0] != "first" {
		t.Errorf("handler invocation order = %v, want short-circuit after first", order)
	}
}

func TestDeltaRegisterRejectsOverCapacity(t *testing.T) {
	reg := NewDeltaRegistry(1)
	noop := func(string, any) (string, string) { return "", "" }

	if err := reg.Register("a", noop); err != nil {
		t.Fatalf("Register 1 failed: %v", err)
	}
	err := reg.Register("b", noop)
	if !HasCode(err, CodeTooManyDeltaHandlers) {
		t.Fatalf("Register over capacity = %v, want CodeTooManyDeltaHandlers", err)
	}
	if n := reg.Len(); n != 1 {
		t.Errorf("Len() = %d, want 1 after rejected register", n)
	}
}
