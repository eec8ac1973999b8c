package publisher

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/rs/zerolog/log"
)

// Connectivity is implemented by sinks that hold a broker connection.
type Connectivity interface {
	IsConnected() bool
}

// HealthStatus reports the state of the outbound sinks.
type HealthStatus struct {
	Healthy         bool            `json:"healthy"`
	Running         bool            `json:"running"`
	EventsPublished uint64          `json:"eventsPublished"`
	EventsFailed    uint64          `json:"eventsFailed"`
	EventsDropped   uint64          `json:"eventsDropped"`
	QueueDepth      int             `json:"queueDepth"`
	LastPublishTime *time.Time      `json:"lastPublishTime,omitempty"`
	Sinks           map[string]bool `json:"sinks"`
	Errors          []string        `json:"errors"`
}

// HealthChecker inspects a dispatcher and its sinks. A nil dispatcher means
// no sinks are configured, which is healthy.
type HealthChecker struct {
	dispatcher *Dispatcher
	// queue depth above which the sinks are reported as falling behind
	backlogThreshold int
}

func NewHealthChecker(d *Dispatcher) *HealthChecker {
	threshold := DefaultDispatcherConfig().QueueSize / 2
	if d != nil {
		threshold = d.config.QueueSize / 2
	}
	return &HealthChecker{dispatcher: d, backlogThreshold: threshold}
}

func (h *HealthChecker) Check() HealthStatus {
	status := HealthStatus{
		Healthy: true,
		Sinks:   map[string]bool{},
		Errors:  []string{},
	}
	if h.dispatcher == nil {
		return status
	}

	stats := h.dispatcher.Stats()
	status.Running = stats.Running
	status.EventsPublished = stats.Published
	status.EventsFailed = stats.Failed
	status.EventsDropped = stats.Dropped
	status.QueueDepth = stats.QueueDepth
	if !stats.LastPublish.IsZero() {
		status.LastPublishTime = &stats.LastPublish
	}

	if !stats.Running {
		status.Healthy = false
		status.Errors = append(status.Errors, "dispatcher not running")
	}

	names := make([]string, 0, len(h.dispatcher.publishers))
	for name := range h.dispatcher.publishers {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		connected := true
		if c, ok := h.dispatcher.publishers[name].(Connectivity); ok {
			connected = c.IsConnected()
		}
		status.Sinks[name] = connected
		if !connected {
			status.Healthy = false
			status.Errors = append(status.Errors, fmt.Sprintf("%s disconnected", name))
		}
	}

	if stats.QueueDepth > h.backlogThreshold {
		status.Errors = append(status.Errors, fmt.Sprintf("high sink queue depth: %d", stats.QueueDepth))
	}

	return status
}

// ServeHTTP answers 200 when healthy and 503 otherwise.
func (h *HealthChecker) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	status := h.Check()

	w.Header().Set("Content-Type", "application/json")
	if !status.Healthy {
		w.WriteHeader(http.StatusServiceUnavailable)
	}
	if err := json.NewEncoder(w).Encode(status); err != nil {
		log.Warn().Err(err).Msg("failed to encode sink health")
	}
}
