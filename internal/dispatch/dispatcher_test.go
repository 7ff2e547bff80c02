package dispatch

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/athebyme/gomarket-platform/import-service/internal/domain/models"
	"github.com/athebyme/gomarket-platform/import-service/pkg/interfaces"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type nopLogger struct{}

func (nopLogger) Debug(string, ...interface{})                              {}
func (nopLogger) Info(string, ...interface{})                               {}
func (nopLogger) Warn(string, ...interface{})                               {}
func (nopLogger) Error(string, ...interface{})                              {}
func (nopLogger) Fatal(string, ...interface{})                              {}
func (nopLogger) DebugWithContext(context.Context, string, ...interface{})  {}
func (nopLogger) InfoWithContext(context.Context, string, ...interface{})   {}
func (nopLogger) WarnWithContext(context.Context, string, ...interface{})   {}
func (nopLogger) ErrorWithContext(context.Context, string, ...interface{})  {}
func (n nopLogger) WithFields(...interfaces.LogField) interfaces.LoggerPort { return n }
func (n nopLogger) WithField(string, interface{}) interfaces.LoggerPort     { return n }
func (nopLogger) Sync() error                                               { return nil }

type receivedDelivery struct {
	body  []byte
	event string
}

func testDelivery(url, payload string) *Delivery {
	return &Delivery{
		Webhook: &models.Webhook{
			ID:        "wh-1",
			URL:       url,
			EventType: models.ProductCreatedEvent,
			Enabled:   true,
		},
		EventType: models.ProductCreatedEvent,
		Payload:   []byte(payload),
	}
}

func TestDispatcher_Delivers(t *testing.T) {
	received := make(chan receivedDelivery, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- receivedDelivery{body: body, event: r.Header.Get("X-Webhook-Event")}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(Options{Workers: 2, QueueSize: 8}, nopLogger{})
	d.Start(ctx)
	defer d.Stop()

	d.Enqueue(testDelivery(server.URL, `{"event_type":"product_created"}`))

	select {
	case got := <-received:
		assert.JSONEq(t, `{"event_type":"product_created"}`, string(got.body))
		assert.Equal(t, models.ProductCreatedEvent, got.event)
	case <-time.After(3 * time.Second):
		t.Fatal("delivery did not arrive")
	}
}

func TestDispatcher_RetriesOnServerError(t *testing.T) {
	var attempts int32
	done := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) == 1 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
		close(done)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	d := NewDispatcher(Options{
		Workers:      1,
		QueueSize:    4,
		MaxAttempts:  3,
		RetryBackoff: 10 * time.Millisecond,
	}, nopLogger{})
	d.Start(ctx)
	defer d.Stop()

	d.Enqueue(testDelivery(server.URL, `{}`))

	select {
	case <-done:
		assert.EqualValues(t, 2, atomic.LoadInt32(&attempts))
	case <-time.After(3 * time.Second):
		t.Fatal("delivery was not retried")
	}
}

func TestDispatcher_DropsOldestWhenFull(t *testing.T) {
	received := make(chan receivedDelivery, 4)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		received <- receivedDelivery{body: body}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Воркеры еще не запущены: очередь глубиной 1 заполняется,
	// второе задание вытесняет первое
	d := NewDispatcher(Options{Workers: 1, QueueSize: 1}, nopLogger{})
	d.Enqueue(testDelivery(server.URL, `{"n":1}`))
	d.Enqueue(testDelivery(server.URL, `{"n":2}`))

	d.Start(ctx)
	defer d.Stop()

	select {
	case got := <-received:
		assert.JSONEq(t, `{"n":2}`, string(got.body), "выжить должно самое свежее задание")
	case <-time.After(3 * time.Second):
		t.Fatal("delivery did not arrive")
	}

	select {
	case extra := <-received:
		t.Fatalf("unexpected extra delivery: %s", extra.body)
	case <-time.After(200 * time.Millisecond):
	}
}

func TestDispatcher_StopDrainsWorkers(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	d := NewDispatcher(Options{Workers: 4, QueueSize: 16}, nopLogger{})
	d.Start(context.Background())

	for i := 0; i < 8; i++ {
		d.Enqueue(testDelivery(server.URL, `{}`))
	}

	doneCh := make(chan struct{})
	go func() {
		d.Stop()
		close(doneCh)
	}()

	select {
	case <-doneCh:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return")
	}
	require.Empty(t, d.queue)
}
