package gateway

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/mcdev12/scoreboard/go/internal/match"
	"github.com/mcdev12/scoreboard/go/internal/publisher"
	"github.com/mcdev12/scoreboard/go/internal/sysstatus"
)

var testEpoch = time.Date(2024, time.June, 1, 18, 0, 0, 0, time.UTC)

var errTransportClosed = errors.New("transport closed")

// fakeTransport stands in for a *websocket.Conn.
type fakeTransport struct {
	mu          sync.Mutex
	pings       int
	closeFrames int
	failWrites  bool
	pongHandler func(string) error

	inbound   chan []byte
	writes    chan []byte
	closed    chan struct{}
	closeOnce sync.Once
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		inbound: make(chan []byte, 16),
		writes:  make(chan []byte, 128),
		closed:  make(chan struct{}),
	}
}

func (f *fakeTransport) ReadMessage() (int, []byte, error) {
	select {
	case msg := <-f.inbound:
		return websocket.TextMessage, msg, nil
	case <-f.closed:
		return 0, nil, errTransportClosed
	}
}

func (f *fakeTransport) WriteMessage(_ int, data []byte) error {
	if f.isClosed() {
		return errTransportClosed
	}
	f.mu.Lock()
	fail := f.failWrites
	f.mu.Unlock()
	if fail {
		return errors.New("broken pipe")
	}
	select {
	case f.writes <- data:
	default:
	}
	return nil
}

func (f *fakeTransport) WriteControl(messageType int, _ []byte, _ time.Time) error {
	if f.isClosed() {
		return errTransportClosed
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	switch messageType {
	case websocket.PingMessage:
		f.pings++
	case websocket.CloseMessage:
		f.closeFrames++
	}
	return nil
}

func (f *fakeTransport) SetWriteDeadline(time.Time) error { return nil }

func (f *fakeTransport) SetReadLimit(int64) {}

func (f *fakeTransport) SetPongHandler(h func(string) error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pongHandler = h
}

func (f *fakeTransport) Close() error {
	f.closeOnce.Do(func() { close(f.closed) })
	return nil
}

func (f *fakeTransport) isClosed() bool {
	select {
	case <-f.closed:
		return true
	default:
		return false
	}
}

func (f *fakeTransport) pingCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pings
}

func (f *fakeTransport) closeFrameCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.closeFrames
}

func (f *fakeTransport) hasPongHandler() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.pongHandler != nil
}

// pong simulates the client answering a ping.
func (f *fakeTransport) pong() {
	f.mu.Lock()
	h := f.pongHandler
	f.mu.Unlock()
	if h != nil {
		_ = h("")
	}
}

func (f *fakeTransport) setFailWrites(fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failWrites = fail
}

type fakeSink struct {
	mu     sync.Mutex
	events []publisher.Event
}

func (s *fakeSink) Enqueue(event publisher.Event) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return true
}

func (s *fakeSink) snapshot() []publisher.Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]publisher.Event(nil), s.events...)
}

type staticStatus struct {
	status sysstatus.Status
}

func (s staticStatus) Status() sysstatus.Status { return s.status }

// decodedEnvelope mirrors Envelope with the payload left raw.
type decodedEnvelope struct {
	Type       EventType              `json:"type"`
	Data       json.RawMessage        `json:"data"`
	Message    string                 `json:"message"`
	Violations match.ValidationErrors `json:"violations"`
	Timestamp  int64                  `json:"timestamp"`
}

func (e decodedEnvelope) snapshot(t *testing.T) match.Snapshot {
	t.Helper()
	var s match.Snapshot
	if err := json.Unmarshal(e.Data, &s); err != nil {
		t.Fatalf("decode %s data: %v", e.Type, err)
	}
	return s
}

func decodeEnvelope(t *testing.T, raw []byte) decodedEnvelope {
	t.Helper()
	var e decodedEnvelope
	if err := json.Unmarshal(raw, &e); err != nil {
		t.Fatalf("decode envelope %q: %v", raw, err)
	}
	return e
}

func testConnectionConfig() ConnectionConfig {
	cfg := DefaultConnectionConfig()
	cfg.SendBufferSize = 16
	cfg.WriteTimeout = time.Second
	return cfg
}

func newTestConnection(role Role, cfg ConnectionConfig) (*Connection, *fakeTransport) {
	tr := newFakeTransport()
	return NewConnection(uuid.NewString(), tr, role, "192.0.2.1:5000", cfg), tr
}

// queued drains every message waiting in c's send buffer. The write pump
// must not be running.
func queued(t *testing.T, c *Connection) []decodedEnvelope {
	t.Helper()
	var out []decodedEnvelope
	for {
		select {
		case raw := <-c.send:
			out = append(out, decodeEnvelope(t, raw))
		default:
			return out
		}
	}
}

func expectQueued(t *testing.T, c *Connection, want EventType) decodedEnvelope {
	t.Helper()
	msgs := queued(t, c)
	if len(msgs) != 1 {
		t.Fatalf("expected exactly one %s message on %s, got %d: %+v", want, c.ID, len(msgs), msgs)
	}
	if msgs[0].Type != want {
		t.Fatalf("expected %s on %s, got %s (%q)", want, c.ID, msgs[0].Type, msgs[0].Message)
	}
	return msgs[0]
}

func expectNothingQueued(t *testing.T, c *Connection) {
	t.Helper()
	if msgs := queued(t, c); len(msgs) != 0 {
		t.Fatalf("expected no messages on %s, got %+v", c.ID, msgs)
	}
}

func eventually(t *testing.T, timeout time.Duration, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timed out: %s", msg)
}

type testService struct {
	*Service
	store *match.Store
	clock *clockwork.FakeClock
	sink  *fakeSink
}

func newTestService(t *testing.T, cfg ConnectionConfig) testService {
	t.Helper()
	clock := clockwork.NewFakeClockAt(testEpoch)
	store := match.NewStore(clock)
	sink := &fakeSink{}
	status := staticStatus{status: sysstatus.Status{Online: true, LastUpdate: testEpoch, Uptime: 42}}
	svc := NewService(Config{ConnectionConfig: cfg}, store, status, sink, clock)
	return testService{Service: svc, store: store, clock: clock, sink: sink}
}

// connect registers a pump-less connection and discards its initial_state.
func (s testService) connect(t *testing.T, role Role) (*Connection, *fakeTransport) {
	t.Helper()
	c, tr := newTestConnection(role, s.connectionManager.config)
	if err := s.connectionManager.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	expectQueued(t, c, EventTypeInitialState)
	return c, tr
}

func (s testService) send(c *Connection, raw string) {
	s.messages.HandleMessage(c, []byte(raw))
}

func newTestServer(t *testing.T, handler http.Handler) *httptest.Server {
	t.Helper()
	listener, err := net.Listen("tcp4", "127.0.0.1:0")
	if err != nil {
		t.Skipf("skipping test; listen unavailable: %v", err)
	}
	ts := &httptest.Server{
		Listener: listener,
		Config:   &http.Server{Handler: handler},
	}
	ts.Start()
	t.Cleanup(ts.Close)
	return ts
}
