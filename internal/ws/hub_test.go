package ws

import (
	"errors"
	"sync"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/chatstack/routing-service/internal/config"
)

// memTransport records frames written to one connection.
type memTransport struct {
	mu     sync.Mutex
	frames []Frame
	fail   int // number of writes to fail before succeeding
	closed bool
}

func (t *memTransport) WriteJSON(v any) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.fail > 0 {
		t.fail--
		return errors.New("write failed")
	}
	t.frames = append(t.frames, v.(Frame))
	return nil
}

func (t *memTransport) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.closed = true
	return nil
}

func (t *memTransport) snapshot() []Frame {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Frame(nil), t.frames...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never met")
}

func newTestHub() *Hub {
	return NewHub(config.GatewayConfig{SendRetries: 2, SendBackoffMS: 5}, zap.NewNop())
}

func TestGroupFanOutPreservesOrder(t *testing.T) {
	hub := newTestHub()
	first := &memTransport{}
	second := &memTransport{}
	a := hub.Register(first)
	b := hub.Register(second)
	hub.Join(a, QueueGroup("q1"))
	hub.Join(b, QueueGroup("q1"))

	for i := 0; i < 5; i++ {
		hub.SendGroup(QueueGroup("q1"), Notify("rooms.update", map[string]any{"seq": i}))
	}

	for _, tr := range []*memTransport{first, second} {
		waitFor(t, func() bool { return len(tr.snapshot()) == 5 })
		frames := tr.snapshot()
		for i, frame := range frames {
			content := frame.Content.(map[string]any)
			if content["seq"] != i {
				t.Fatalf("frame %d carries seq %v", i, content["seq"])
			}
		}
	}
}

func TestSendGroupExceptSkipsOrigin(t *testing.T) {
	hub := newTestHub()
	older := &memTransport{}
	newer := &memTransport{}
	a := hub.Register(older)
	b := hub.Register(newer)
	group := PermissionGroup("p1")
	hub.Join(a, group)
	hub.Join(b, group)

	hub.SendGroupExcept(group, b.ID, Notify(ActionConnectionCheck, map[string]any{"connection_id": b.ID}))

	waitFor(t, func() bool { return len(older.snapshot()) == 1 })
	if frames := newer.snapshot(); len(frames) != 0 {
		t.Fatalf("probe origin received %d frames", len(frames))
	}
	if got := older.snapshot()[0].Action; got != ActionConnectionCheck {
		t.Fatalf("action = %s", got)
	}
}

func TestSendClientTargetsOneConnection(t *testing.T) {
	hub := newTestHub()
	tr := &memTransport{}
	c := hub.Register(tr)

	if !hub.SendClient(c.ID, Notify(ActionMultipleConnections, nil)) {
		t.Fatal("send to registered client failed")
	}
	waitFor(t, func() bool { return len(tr.snapshot()) == 1 })

	if hub.SendClient("unknown", Notify(ActionMultipleConnections, nil)) {
		t.Fatal("send to unknown client reported success")
	}
}

func TestUnregisterLeavesOtherMembersDelivering(t *testing.T) {
	hub := newTestHub()
	leaving := &memTransport{}
	staying := &memTransport{}
	a := hub.Register(leaving)
	b := hub.Register(staying)
	group := QueueGroup("q1")
	hub.Join(a, group)
	hub.Join(b, group)

	hub.Unregister(a)
	if !leaving.closed {
		t.Fatal("transport not closed on unregister")
	}
	if hub.GroupSize(group) != 1 {
		t.Fatalf("group size = %d, want 1", hub.GroupSize(group))
	}

	hub.SendGroup(group, Notify("rooms.update", nil))
	waitFor(t, func() bool { return len(staying.snapshot()) == 1 })
	if frames := leaving.snapshot(); len(frames) != 0 {
		t.Fatalf("unregistered client received %d frames", len(frames))
	}
	if hub.SendClient(a.ID, Notify("rooms.update", nil)) {
		t.Fatal("unregistered client still addressable")
	}
}

func TestDeliveryRetriesTransientWriteFailure(t *testing.T) {
	hub := newTestHub()
	flaky := &memTransport{fail: 2}
	c := hub.Register(flaky)
	hub.Join(c, RoomGroup("r1"))

	hub.SendGroup(RoomGroup("r1"), Notify("msg.create", map[string]any{"uuid": "m1"}))

	waitFor(t, func() bool { return len(flaky.snapshot()) == 1 })
}

func TestDeliveryGivesUpPastRetryBudget(t *testing.T) {
	hub := newTestHub()
	broken := &memTransport{fail: 10}
	healthy := &memTransport{}
	a := hub.Register(broken)
	b := hub.Register(healthy)
	group := RoomGroup("r1")
	hub.Join(a, group)
	hub.Join(b, group)

	hub.SendGroup(group, Notify("msg.create", nil))

	waitFor(t, func() bool { return len(healthy.snapshot()) == 1 })
	// Give the failing writer time to exhaust its retries; the frame must
	// not land afterwards.
	time.Sleep(50 * time.Millisecond)
	if frames := broken.snapshot(); len(frames) != 0 {
		t.Fatalf("frame delivered past the retry budget: %d", len(frames))
	}
}
