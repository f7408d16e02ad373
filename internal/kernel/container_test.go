package kernel

import (
	"context"
	"errors"
	"sync"
	"testing"

	"ex-tgbot/pkg/tgbot"
)

type trackedHandler struct {
	stubHandler
	closeLog *callLog
	closeErr error
}

func (h *trackedHandler) Close(context.Context) error {
	h.closeLog.add(h.name)

	return h.closeErr
}

func TestContainerResolveScope(t *testing.T) {
	t.Parallel()

	singleton := &stubHandler{name: "singleton", priority: 1}
	closeLog := &callLog{}
	var (
		mu      sync.Mutex
		created int
	)

	container := NewContainer()
	if err := container.AddSingleton("singleton", singleton); err != nil {
		t.Fatalf("add singleton failed: %v", err)
	}
	for _, name := range []string{"first", "second"} {
		name := name
		if err := container.AddScoped(name, func(context.Context) (tgbot.Handler, error) {
			mu.Lock()
			created++
			mu.Unlock()
			return &trackedHandler{stubHandler: stubHandler{name: name, priority: 2}, closeLog: closeLog}, nil
		}); err != nil {
			t.Fatalf("add scoped %s failed: %v", name, err)
		}
	}

	first, err := container.ResolveScope(context.Background())
	if err != nil {
		t.Fatalf("resolve first scope failed: %v", err)
	}
	second, err := container.ResolveScope(context.Background())
	if err != nil {
		t.Fatalf("resolve second scope failed: %v", err)
	}

	if first.Handlers()[0] != tgbot.Handler(singleton) || second.Handlers()[0] != tgbot.Handler(singleton) {
		t.Fatal("singleton differs between scopes")
	}
	if first.Handlers()[1] == second.Handlers()[1] {
		t.Fatal("scoped instance shared between scopes")
	}
	if created != 4 {
		t.Fatalf("created = %d, want 4", created)
	}

	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("close failed: %v", err)
	}
	if err := first.Close(context.Background()); err != nil {
		t.Fatalf("second close failed: %v", err)
	}
	if got := closeLog.snapshot(); !equalStrings(got, []string{"second", "first"}) {
		t.Fatalf("close order = %v, want [second first]", got)
	}
	if err := second.Close(context.Background()); err != nil {
		t.Fatalf("close second scope failed: %v", err)
	}
}

func TestContainerRegistrationErrors(t *testing.T) {
	t.Parallel()

	container := NewContainer()
	if err := container.AddSingleton("h", &stubHandler{}); err != nil {
		t.Fatalf("add singleton failed: %v", err)
	}

	tests := []struct {
		name    string
		add     func() error
		wantErr error
	}{
		{
			name:    "duplicate name",
			add:     func() error { return container.AddSingleton("h", &stubHandler{}) },
			wantErr: tgbot.ErrHandlerAlreadyRegistered,
		},
		{
			name:    "nil singleton",
			add:     func() error { return container.AddSingleton("nil", nil) },
			wantErr: tgbot.ErrNilHandler,
		},
		{
			name: "empty name",
			add:  func() error { return container.AddSingleton("", &stubHandler{}) },
		},
		{
			name: "nil factory",
			add:  func() error { return container.AddScoped("factory", nil) },
		},
	}

	for _, testCase := range tests {
		err := testCase.add()
		if err == nil {
			t.Fatalf("%s: expected error", testCase.name)
		}
		if testCase.wantErr != nil && !errors.Is(err, testCase.wantErr) {
			t.Fatalf("%s: error = %v, want %v", testCase.name, err, testCase.wantErr)
		}
	}
	if container.Len() != 1 {
		t.Fatalf("len = %d, want 1", container.Len())
	}
}

func TestContainerFactoryFailureClosesBuiltInstances(t *testing.T) {
	t.Parallel()

	closeLog := &callLog{}
	errFactory := errors.New("factory failed")

	container := NewContainer()
	if err := container.AddScoped("ok", func(context.Context) (tgbot.Handler, error) {
		return &trackedHandler{stubHandler: stubHandler{name: "ok"}, closeLog: closeLog}, nil
	}); err != nil {
		t.Fatalf("add scoped failed: %v", err)
	}
	if err := container.AddScoped("broken", func(context.Context) (tgbot.Handler, error) {
		return nil, errFactory
	}); err != nil {
		t.Fatalf("add scoped failed: %v", err)
	}

	scope, err := container.ResolveScope(context.Background())
	if !errors.Is(err, errFactory) {
		t.Fatalf("resolve error = %v, want %v", err, errFactory)
	}
	if scope != nil {
		t.Fatalf("scope = %v, want nil", scope)
	}
	if got := closeLog.snapshot(); !equalStrings(got, []string{"ok"}) {
		t.Fatalf("closed = %v, want [ok]", got)
	}
}

func TestContainerScopeCloseJoinsErrors(t *testing.T) {
	t.Parallel()

	closeLog := &callLog{}
	errClose := errors.New("close failed")

	container := NewContainer()
	if err := container.AddScoped("a", func(context.Context) (tgbot.Handler, error) {
		return &trackedHandler{stubHandler: stubHandler{name: "a"}, closeLog: closeLog, closeErr: errClose}, nil
	}); err != nil {
		t.Fatalf("add scoped failed: %v", err)
	}
	if err := container.AddScoped("b", func(context.Context) (tgbot.Handler, error) {
		return &trackedHandler{stubHandler: stubHandler{name: "b"}, closeLog: closeLog}, nil
	}); err != nil {
		t.Fatalf("add scoped failed: %v", err)
	}

	scope, err := container.ResolveScope(context.Background())
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	err = scope.Close(context.Background())
	if !errors.Is(err, errClose) {
		t.Fatalf("close error = %v, want %v", err, errClose)
	}
	if got := closeLog.snapshot(); !equalStrings(got, []string{"b", "a"}) {
		t.Fatalf("close order = %v, want [b a]", got)
	}
}
