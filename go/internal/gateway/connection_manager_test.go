package gateway

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/mcdev12/scoreboard/go/internal/match"
)

func TestRegisterSendsInitialStateToNewConnectionOnly(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	existing, _ := s.connect(t, RoleDisplay)

	fresh, _ := newTestConnection(RoleAdmin, testConnectionConfig())
	if err := s.connectionManager.Register(fresh); err != nil {
		t.Fatalf("register: %v", err)
	}

	env := expectQueued(t, fresh, EventTypeInitialState)
	if env.Timestamp != testEpoch.UnixMilli() {
		t.Fatalf("expected timestamp %d, got %d", testEpoch.UnixMilli(), env.Timestamp)
	}
	if snap := env.snapshot(t); snap.TeamA != "Team A" || snap.Time != "00:00" {
		t.Fatalf("unexpected initial snapshot: %+v", snap)
	}
	expectNothingQueued(t, existing)
}

// updateDuringSnapshot applies an update on another goroutine right after
// reading the state, so the update lands between the initial_state snapshot
// and the registration completing.
type updateDuringSnapshot struct {
	s    testService
	done chan struct{}
}

func (u updateDuringSnapshot) Snapshot() match.Snapshot {
	before := u.s.store.Snapshot()
	go func() {
		defer close(u.done)
		_, _, _ = u.s.Update([]byte(`{"scoreA":7}`))
	}()
	deadline := time.Now().Add(5 * time.Second)
	for u.s.store.Snapshot().ScoreA != 7 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}
	return before
}

func TestRegisterQueuesInitialStateBeforeConcurrentUpdate(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	done := make(chan struct{})
	s.connectionManager.snapshots = updateDuringSnapshot{s: s, done: done}

	c, _ := newTestConnection(RoleDisplay, testConnectionConfig())
	if err := s.connectionManager.Register(c); err != nil {
		t.Fatalf("register: %v", err)
	}
	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("update did not complete")
	}

	msgs := queued(t, c)
	if len(msgs) != 2 {
		t.Fatalf("expected initial_state and scoreboard_update, got %+v", msgs)
	}
	if msgs[0].Type != EventTypeInitialState || msgs[0].snapshot(t).ScoreA != 0 {
		t.Fatalf("first message = %s %+v, want initial_state with scoreA 0", msgs[0].Type, msgs[0].snapshot(t))
	}
	last := msgs[1]
	if last.Type != EventTypeScoreboardUpdate {
		t.Fatalf("last message = %s, want scoreboard_update", last.Type)
	}
	if got, want := last.snapshot(t).ScoreA, s.store.Snapshot().ScoreA; got != want {
		t.Fatalf("last delivered scoreA = %d, store has %d", got, want)
	}
}

func TestRegisterClosesConnectionWhenInitialStateCannotQueue(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	c, _ := newTestConnection(RoleDisplay, testConnectionConfig())
	_ = c.Close()

	if err := s.connectionManager.Register(c); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("register err = %v, want ErrConnectionClosed", err)
	}
	if s.connectionManager.Contains(c) {
		t.Fatal("failed registration should not be tracked")
	}
}

func TestUnregisterIsIdempotent(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	c, tr := s.connect(t, RoleDisplay)

	s.connectionManager.Unregister(c)
	s.connectionManager.Unregister(c)

	if s.connectionManager.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", s.connectionManager.Count())
	}
	if !tr.isClosed() || !c.Closed() {
		t.Fatal("expected connection to be closed")
	}
	if err := c.Enqueue([]byte("{}")); !errors.Is(err, ErrConnectionClosed) {
		t.Fatalf("expected ErrConnectionClosed, got %v", err)
	}
}

func TestHeartbeatTerminatesSilentConnectionBeforeThirdPing(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	cm := s.connectionManager

	silent, silentTr := s.connect(t, RoleDisplay)
	responsive, responsiveTr := s.connect(t, RoleDisplay)
	noop := func(*Connection, []byte) {}
	silent.Start(noop)
	responsive.Start(noop)
	eventually(t, time.Second, responsiveTr.hasPongHandler, "pong handler installed")

	for cycle := 1; cycle <= 3; cycle++ {
		cm.heartbeat()
		if cm.Contains(responsive) {
			want := cycle
			eventually(t, time.Second, func() bool { return responsiveTr.pingCount() == want }, "responsive ping sent")
			responsiveTr.pong()
		}
		if cycle == 1 {
			eventually(t, time.Second, func() bool { return silentTr.pingCount() == 1 }, "silent ping sent")
		}
	}

	if cm.Contains(silent) {
		t.Fatal("expected silent connection to be unregistered")
	}
	if !silentTr.isClosed() {
		t.Fatal("expected silent transport to be closed")
	}
	if got := silentTr.pingCount(); got >= 3 {
		t.Fatalf("expected removal before a third ping, got %d pings", got)
	}
	if !cm.Contains(responsive) {
		t.Fatal("expected responsive connection to survive")
	}
}

func TestHeartbeatDoesNotBlockOnPendingPing(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	c, _ := s.connect(t, RoleDisplay)

	// no write pump: the ping slot stays occupied
	s.connectionManager.heartbeat()
	c.markAlive()
	s.connectionManager.heartbeat()

	if len(c.pingDue) != 1 {
		t.Fatalf("expected a single pending ping, got %d", len(c.pingDue))
	}
	if !s.connectionManager.Contains(c) {
		t.Fatal("expected connection to remain registered")
	}
}

func TestRunDrivesHeartbeatFromClock(t *testing.T) {
	cfg := testConnectionConfig()
	s := newTestService(t, cfg)
	c, tr := s.connect(t, RoleDisplay)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		s.connectionManager.Run(ctx)
		close(done)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	waitCtx, waitCancel := context.WithTimeout(ctx, time.Second)
	defer waitCancel()
	if err := s.clock.BlockUntilContext(waitCtx, 1); err != nil {
		t.Fatalf("heartbeat ticker not started: %v", err)
	}

	s.clock.Advance(cfg.HeartbeatInterval)
	eventually(t, time.Second, func() bool { return !c.Alive() }, "liveness cleared by first heartbeat")

	s.clock.Advance(cfg.HeartbeatInterval)
	eventually(t, time.Second, func() bool { return s.connectionManager.Count() == 0 }, "silent connection removed")
	if !tr.isClosed() {
		t.Fatal("expected transport to be closed")
	}
}

func TestRunClosesConnectionsOnShutdown(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	_, tr1 := s.connect(t, RoleAdmin)
	_, tr2 := s.connect(t, RoleDisplay)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	s.connectionManager.Run(ctx)

	if s.connectionManager.Count() != 0 {
		t.Fatalf("expected empty registry, got %d", s.connectionManager.Count())
	}
	for _, tr := range []*fakeTransport{tr1, tr2} {
		if tr.closeFrameCount() != 1 || !tr.isClosed() {
			t.Fatalf("expected close frame and closed transport, got frames=%d closed=%v", tr.closeFrameCount(), tr.isClosed())
		}
	}
}

func TestForEachLivePrunesClosedConnections(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	live, _ := s.connect(t, RoleDisplay)
	dead, _ := s.connect(t, RoleDisplay)
	_ = dead.Close()

	var visited []*Connection
	s.connectionManager.ForEachLive(func(c *Connection) {
		visited = append(visited, c)
	})

	if len(visited) != 1 || visited[0] != live {
		t.Fatalf("expected only the live connection, got %d", len(visited))
	}
	if s.connectionManager.Contains(dead) {
		t.Fatal("expected closed connection to be pruned")
	}
}

func TestStatsCountsRoles(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	s.connect(t, RoleAdmin)
	s.connect(t, RoleDisplay)
	s.connect(t, RoleDisplay)

	stats := s.connectionManager.Stats()
	if stats.Total != 3 || stats.Admins != 1 || stats.Displays != 2 {
		t.Fatalf("unexpected stats: %+v", stats)
	}
}

func TestWritePumpFailureUnregisters(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	c, tr := s.connect(t, RoleDisplay)
	tr.setFailWrites(true)
	c.Start(func(*Connection, []byte) {})

	if err := c.Enqueue([]byte(`{"type":"pong"}`)); err != nil {
		t.Fatalf("enqueue: %v", err)
	}
	eventually(t, time.Second, func() bool { return !s.connectionManager.Contains(c) }, "connection removed after write failure")
}

func TestConnectionCloseStopsReadPump(t *testing.T) {
	s := newTestService(t, testConnectionConfig())
	c, tr := s.connect(t, RoleDisplay)

	received := make(chan []byte, 1)
	c.Start(func(_ *Connection, raw []byte) { received <- raw })

	tr.inbound <- []byte(`{"type":"ping"}`)
	select {
	case raw := <-received:
		if string(raw) != `{"type":"ping"}` {
			t.Fatalf("unexpected frame %q", raw)
		}
	case <-time.After(time.Second):
		t.Fatal("read pump did not deliver frame")
	}

	c.closeWithReason(websocket.CloseNormalClosure, "bye")
	eventually(t, time.Second, func() bool { return !s.connectionManager.Contains(c) }, "connection removed after close")
}
