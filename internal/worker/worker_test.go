package worker

import (
	"context"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/segmentio/kafka-go"

	"github.com/joao-fontenele/orderplaced-pipeline/internal/domain"
	"github.com/joao-fontenele/orderplaced-pipeline/internal/messaging"
)

type idleReader struct{}

func (idleReader) FetchMessage(ctx context.Context) (kafka.Message, error) {
	<-ctx.Done()
	return kafka.Message{}, ctx.Err()
}

func (idleReader) CommitMessages(context.Context, ...kafka.Message) error { return nil }

func (idleReader) Close() error { return nil }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func newTestRunner() *messaging.Runner {
	noop := messaging.EventHandlerFunc(func(context.Context, domain.OrderPlacedEvent) error { return nil })
	return messaging.NewRunner(idleReader{}, messaging.RunnerConfig{Group: "test-group", Topic: "order.placed"}, noop, testLogger())
}

func waitForState(t *testing.T, runner *messaging.Runner, want messaging.State) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)
	for runner.State() != want {
		if time.Now().After(deadline) {
			t.Fatalf("runner never reached %s, stuck in %s", want, runner.State())
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestNewMux(t *testing.T) {
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("orders_consumer_records_total 0\n"))
	})

	t.Run("healthz follows the runner", func(t *testing.T) {
		runner := newTestRunner()
		mux := NewMux(runner, metrics)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusServiceUnavailable || rec.Body.String() != "stopped" {
			t.Fatalf("expected 503 stopped, got %d %q", rec.Code, rec.Body.String())
		}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- runner.Run(ctx) }()
		waitForState(t, runner, messaging.StatePolling)

		rec = httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
		if rec.Code != http.StatusOK || rec.Body.String() != "polling" {
			t.Fatalf("expected 200 polling, got %d %q", rec.Code, rec.Body.String())
		}

		cancel()
		if err := <-done; err != nil {
			t.Fatalf("unexpected run error: %v", err)
		}
	})

	t.Run("serves metrics", func(t *testing.T) {
		mux := NewMux(newTestRunner(), metrics)

		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		if !strings.Contains(rec.Body.String(), "orders_consumer_records_total") {
			t.Errorf("unexpected metrics body: %q", rec.Body.String())
		}
	})
}

func TestServe(t *testing.T) {
	t.Run("stops cleanly on cancellation", func(t *testing.T) {
		runner := newTestRunner()
		server := &http.Server{Addr: "127.0.0.1:0", Handler: NewMux(runner, nil)}

		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- Serve(ctx, runner, server, testLogger()) }()

		waitForState(t, runner, messaging.StatePolling)
		cancel()

		select {
		case err := <-done:
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not return")
		}

		if runner.State() != messaging.StateStopped {
			t.Errorf("expected runner stopped, got %s", runner.State())
		}
	})

	t.Run("stops the runner when the server cannot start", func(t *testing.T) {
		ln, err := net.Listen("tcp", "127.0.0.1:0")
		if err != nil {
			t.Fatalf("listen: %v", err)
		}
		defer func() { _ = ln.Close() }()

		runner := newTestRunner()
		server := &http.Server{Addr: ln.Addr().String(), Handler: NewMux(runner, nil)}

		done := make(chan error, 1)
		go func() { done <- Serve(context.Background(), runner, server, testLogger()) }()

		select {
		case err := <-done:
			if err == nil {
				t.Fatal("expected a metrics server error")
			}
		case <-time.After(5 * time.Second):
			t.Fatal("serve did not return")
		}
	})
}
