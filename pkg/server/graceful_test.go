package server

import (
	"context"
	"io"
	"net"
	"net/http"
	"testing"
	"time"
)

func startServer(t *testing.T, handler http.Handler) (*GracefulServer, string, context.CancelFunc, chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Failed to listen: %v", err)
	}

	gs := NewGracefulServer(ln.Addr().String(), handler, nil)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- gs.Serve(ctx, ln) }()

	return gs, "http://" + ln.Addr().String(), cancel, done
}

// TestGracefulServerServesAndStops tests the context-driven lifecycle
func TestGracefulServerServesAndStops(t *testing.T) {
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		io.WriteString(w, "ok")
	})
	gs, url, cancel, done := startServer(t, handler)

	resp, err := http.Get(url + "/")
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if string(body) != "ok" {
		t.Errorf("Expected body ok, got %q", body)
	}

	if gs.IsShuttingDown() {
		t.Error("Server should not be shutting down yet")
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Serve returned error: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancellation")
	}

	if !gs.IsShuttingDown() {
		t.Error("Server should report shutting down")
	}
}

// TestGracefulServerDrainsInFlight tests that a running request completes
func TestGracefulServerDrainsInFlight(t *testing.T) {
	started := make(chan struct{})
	handler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		time.Sleep(200 * time.Millisecond)
		io.WriteString(w, "done")
	})
	_, url, cancel, done := startServer(t, handler)

	result := make(chan string, 1)
	go func() {
		resp, err := http.Get(url + "/slow")
		if err != nil {
			result <- "error: " + err.Error()
			return
		}
		defer resp.Body.Close()
		body, _ := io.ReadAll(resp.Body)
		result <- string(body)
	}()

	<-started
	cancel()

	if got := <-result; got != "done" {
		t.Errorf("Expected in-flight request to finish, got %q", got)
	}
	<-done
}

// TestShutdownIdempotent tests that Shutdown may be called more than once
func TestShutdownIdempotent(t *testing.T) {
	gs := NewGracefulServer("127.0.0.1:0", http.NotFoundHandler(), nil)
	if err := gs.Shutdown(time.Second); err != nil {
		t.Errorf("First shutdown failed: %v", err)
	}
	if err := gs.Shutdown(time.Second); err != nil {
		t.Errorf("Second shutdown failed: %v", err)
	}
	if !gs.IsShuttingDown() {
		t.Error("Server should report shutting down")
	}
}
