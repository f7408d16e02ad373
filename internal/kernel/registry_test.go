package kernel

import (
	"errors"
	"sync"
	"testing"

	"ex-tgbot/pkg/tgbot"
)

func TestHandlerRegistryRegisterKeepsOrder(t *testing.T) {
	t.Parallel()

	registry := NewHandlerRegistry()
	for _, handler := range []*stubHandler{
		{name: "p5", priority: 5},
		{name: "p1", priority: 1},
		{name: "p3", priority: 3},
		{name: "p3b", priority: 3},
	} {
		if err := registry.Register(handler); err != nil {
			t.Fatalf("register %s failed: %v", handler.name, err)
		}
	}

	got := handlerNames(registry.Snapshot())
	want := []string{"p1", "p3", "p3b", "p5"}
	if !equalStrings(got, want) {
		t.Fatalf("snapshot = %v, want %v", got, want)
	}
	if registry.Len() != 4 {
		t.Fatalf("len = %d, want 4", registry.Len())
	}
}

func TestHandlerRegistryRejectsNil(t *testing.T) {
	t.Parallel()

	registry := NewHandlerRegistry()
	err := registry.Register(nil)
	if !errors.Is(err, tgbot.ErrNilHandler) {
		t.Fatalf("register nil error = %v, want %v", err, tgbot.ErrNilHandler)
	}
	if registry.Len() != 0 {
		t.Fatalf("len = %d, want 0", registry.Len())
	}
}

func TestHandlerRegistryUnregisterByIdentity(t *testing.T) {
	t.Parallel()

	registry := NewHandlerRegistry()
	first := tgbot.NewHandler(1, nil)
	second := tgbot.NewHandler(1, nil)
	for _, handler := range []tgbot.Handler{first, second} {
		if err := registry.Register(handler); err != nil {
			t.Fatalf("register failed: %v", err)
		}
	}

	if !registry.Unregister(second) {
		t.Fatal("unregister second = false, want true")
	}
	snapshot := registry.Snapshot()
	if len(snapshot) != 1 || snapshot[0] != tgbot.Handler(first) {
		t.Fatalf("snapshot = %v, want only first handler", snapshot)
	}
	if registry.Unregister(second) {
		t.Fatal("second unregister = true, want false")
	}
	if registry.Unregister(tgbot.NewHandler(1, nil)) {
		t.Fatal("unregister of unknown handler = true, want false")
	}
}

func TestHandlerRegistrySnapshotIsStable(t *testing.T) {
	t.Parallel()

	registry := NewHandlerRegistry()
	if err := registry.Register(&stubHandler{name: "a", priority: 2}); err != nil {
		t.Fatalf("register failed: %v", err)
	}
	before := registry.Snapshot()

	if err := registry.Register(&stubHandler{name: "b", priority: 1}); err != nil {
		t.Fatalf("register failed: %v", err)
	}

	if got := handlerNames(before); !equalStrings(got, []string{"a"}) {
		t.Fatalf("old snapshot = %v, want [a]", got)
	}
	if got := handlerNames(registry.Snapshot()); !equalStrings(got, []string{"b", "a"}) {
		t.Fatalf("new snapshot = %v, want [b a]", got)
	}
}

func TestHandlerRegistryConcurrentRegister(t *testing.T) {
	t.Parallel()

	registry := NewHandlerRegistry()
	var wg sync.WaitGroup
	for worker := 0; worker < 8; worker++ {
		wg.Add(1)
		go func(worker int) {
			defer wg.Done()
			for idx := 0; idx < 25; idx++ {
				if err := registry.Register(&stubHandler{priority: (worker*31 + idx*7) % 13}); err != nil {
					t.Errorf("register failed: %v", err)
				}
				_ = registry.Snapshot()
			}
		}(worker)
	}
	wg.Wait()

	snapshot := registry.Snapshot()
	if len(snapshot) != 200 {
		t.Fatalf("len = %d, want 200", len(snapshot))
	}
	for idx := 1; idx < len(snapshot); idx++ {
		if snapshot[idx-1].Priority() > snapshot[idx].Priority() {
			t.Fatalf("snapshot unsorted at %d: %d > %d", idx, snapshot[idx-1].Priority(), snapshot[idx].Priority())
		}
	}
}
