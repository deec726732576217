// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/ManuGH/clubsync/internal/log"
	"github.com/rs/zerolog"
	"go.uber.org/goleak"
)

type fakeRunner struct {
	mu      sync.Mutex
	started int
	closed  int
	onClose func()
}

func (f *fakeRunner) Start(context.Context) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.started++
}

func (f *fakeRunner) Close() error {
	f.mu.Lock()
	f.closed++
	cb := f.onClose
	f.mu.Unlock()
	if cb != nil {
		cb()
	}
	return nil
}

func (f *fakeRunner) counts() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.started, f.closed
}

func reserveListenAddr(t *testing.T) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("failed to reserve listen addr: %v", err)
	}
	addr := ln.Addr().String()
	_ = ln.Close()
	return addr
}

func waitForListen(addr string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		conn, err := net.DialTimeout("tcp", addr, 50*time.Millisecond)
		if err == nil {
			_ = conn.Close()
			return nil
		}
		time.Sleep(10 * time.Millisecond)
	}
	return errors.New("listen timeout")
}

func testDeps(runner Runner) Deps {
	return Deps{
		Logger:       log.WithComponent("test"),
		APIHandler:   http.NotFoundHandler(),
		Orchestrator: runner,
	}
}

func TestNewManager_ValidatesDeps(t *testing.T) {
	tests := []struct {
		name string
		deps Deps
		want string
	}{
		{"missing logger", Deps{Logger: zerolog.Nop(), APIHandler: http.NotFoundHandler(), Orchestrator: &fakeRunner{}}, "logger is required"},
		{"missing handler", Deps{Logger: log.WithComponent("test"), Orchestrator: &fakeRunner{}}, "API handler is required"},
		{"missing orchestrator", Deps{Logger: log.WithComponent("test"), APIHandler: http.NotFoundHandler()}, "orchestrator is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewManager(DefaultServerConfig("127.0.0.1:0"), tt.deps)
			if err == nil || !strings.Contains(err.Error(), tt.want) {
				t.Fatalf("NewManager() error = %v, want %q", err, tt.want)
			}
		})
	}

	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), testDeps(&fakeRunner{}))
	if err != nil || mgr == nil {
		t.Fatalf("NewManager() = %v, %v", mgr, err)
	}
}

func TestManager_StartStop_OK(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	addr := reserveListenAddr(t)
	runner := &fakeRunner{}
	mgr, err := NewManager(DefaultServerConfig(addr), testDeps(runner))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()

	if err := waitForListen(addr, 2*time.Second); err != nil {
		t.Fatalf("server did not start listening: %v", err)
	}
	resp, err := http.Get("http://" + addr + "/anything")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	_ = resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 from handler, got %d", resp.StatusCode)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Start() returned error after cancel: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Start() did not return after cancel")
	}

	started, closed := runner.counts()
	if started != 1 || closed != 1 {
		t.Errorf("runner started=%d closed=%d, want 1/1", started, closed)
	}
	http.DefaultClient.CloseIdleConnections()
}

func TestManager_ShutdownHooksRunLIFO(t *testing.T) {
	addr := reserveListenAddr(t)
	var mu sync.Mutex
	var order []string
	record := func(name string) {
		mu.Lock()
		defer mu.Unlock()
		order = append(order, name)
	}

	runner := &fakeRunner{onClose: func() { record("orchestrator") }}
	mgr, err := NewManager(DefaultServerConfig(addr), testDeps(runner))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	mgr.RegisterShutdownHook("telemetry", func(context.Context) error { record("telemetry"); return nil })
	mgr.RegisterShutdownHook("deadletter", func(context.Context) error { record("deadletter"); return nil })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	if err := waitForListen(addr, 2*time.Second); err != nil {
		t.Fatalf("server did not start listening: %v", err)
	}
	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	want := []string{"orchestrator", "deadletter", "telemetry"}
	mu.Lock()
	defer mu.Unlock()
	if strings.Join(order, ",") != strings.Join(want, ",") {
		t.Errorf("hook order = %v, want %v", order, want)
	}
}

func TestManager_HookErrorsAreJoined(t *testing.T) {
	addr := reserveListenAddr(t)
	mgr, err := NewManager(DefaultServerConfig(addr), testDeps(&fakeRunner{}))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	boom := errors.New("boom")
	mgr.RegisterShutdownHook("broken", func(context.Context) error { return boom })

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- mgr.Start(ctx) }()
	if err := waitForListen(addr, 2*time.Second); err != nil {
		t.Fatalf("server did not start listening: %v", err)
	}
	cancel()

	err = <-done
	if !errors.Is(err, boom) {
		t.Fatalf("Start() error = %v, want wrapped boom", err)
	}
	if !strings.Contains(err.Error(), "hook broken") {
		t.Errorf("error %q does not name the hook", err)
	}
}

func TestManager_StartFailsOnBusyAddress(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer func() { _ = ln.Close() }()

	runner := &fakeRunner{}
	mgr, err := NewManager(DefaultServerConfig(ln.Addr().String()), testDeps(runner))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := mgr.Start(context.Background()); err == nil {
		t.Fatal("Start() expected error for busy address")
	}
	if _, closed := runner.counts(); closed != 1 {
		t.Errorf("orchestrator not closed after failed start")
	}
}

func TestManager_ShutdownBeforeStart(t *testing.T) {
	mgr, err := NewManager(DefaultServerConfig("127.0.0.1:0"), testDeps(&fakeRunner{}))
	if err != nil {
		t.Fatalf("NewManager() error = %v", err)
	}
	if err := mgr.Shutdown(context.Background()); !errors.Is(err, ErrManagerNotStarted) {
		t.Fatalf("Shutdown() error = %v, want ErrManagerNotStarted", err)
	}
}
