package publisher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
)

func TestHealthWithoutSinks(t *testing.T) {
	status := NewHealthChecker(nil).Check()
	want := HealthStatus{Healthy: true, Sinks: map[string]bool{}, Errors: []string{}}
	if diff := cmp.Diff(want, status); diff != "" {
		t.Fatalf("health mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthReportsCountersAndConnectivity(t *testing.T) {
	good := NewFakePublisher()
	bad := NewFakePublisher()
	bad.SetPublishError(errors.New("broker unavailable"))
	d := NewDispatcher(DefaultDispatcherConfig(), map[string]EventPublisher{
		"mqtt": good,
		"nats": bad,
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		d.Run(ctx)
		close(done)
	}()
	defer func() {
		cancel()
		<-done
	}()

	d.Enqueue(NewEvent("scoreboard_update", []byte(`{}`), time.Now()))
	waitForEvent(t, good)

	checker := NewHealthChecker(d)
	deadline := time.Now().Add(2 * time.Second)
	var status HealthStatus
	for time.Now().Before(deadline) {
		status = checker.Check()
		if status.EventsFailed == 1 && status.EventsPublished == 1 {
			break
		}
		time.Sleep(5 * time.Millisecond)
	}

	if !status.Healthy || !status.Running {
		t.Fatalf("expected healthy running dispatcher, got %+v", status)
	}
	if status.EventsPublished != 1 || status.EventsFailed != 1 {
		t.Fatalf("unexpected counters %+v", status)
	}
	if status.LastPublishTime == nil {
		t.Fatal("expected last publish time")
	}

	good.SetConnected(false)
	rec := httptest.NewRecorder()
	checker.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health/sinks", nil))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503, got %d", rec.Code)
	}
	var body HealthStatus
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if diff := cmp.Diff(map[string]bool{"mqtt": false, "nats": true}, body.Sinks); diff != "" {
		t.Fatalf("sink connectivity mismatch (-want +got):\n%s", diff)
	}
}

func TestHealthUnhealthyWhenDispatcherStopped(t *testing.T) {
	d := NewDispatcher(DefaultDispatcherConfig(), map[string]EventPublisher{"mqtt": NewFakePublisher()})
	if status := NewHealthChecker(d).Check(); status.Healthy {
		t.Fatalf("expected unhealthy status before Run, got %+v", status)
	}
}

func TestDispatcherCountsDrops(t *testing.T) {
	d := NewDispatcher(DispatcherConfig{QueueSize: 1}, map[string]EventPublisher{})
	d.Enqueue(NewEvent("a", nil, time.Now()))
	d.Enqueue(NewEvent("b", nil, time.Now()))

	stats := d.Stats()
	if stats.Dropped != 1 || stats.QueueDepth != 1 {
		t.Fatalf("unexpected stats %+v", stats)
	}
}
