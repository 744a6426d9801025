package microocpp

import (
	"context"
	"sync"
	"time"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/fsadapter"
	"github.com/microocpp-go/engine/internal/interfaces"
)

// MockConnection is an in-memory loopback Connection for tests and
// cmd/microocpp-demo: SendText records the frame instead of putting it on
// a wire, and Deliver lets a test or a simulated server push an inbound
// frame through the receive callback, mirroring the teacher's MockBackend
// (a fake collaborator that tracks calls for assertions instead of doing
// real I/O).
type MockConnection struct {
	mu        sync.Mutex
	connected bool
	lastMs    int64
	sent      []string
	cb        func(msg string)
}

// NewMockConnection creates a MockConnection. It starts connected.
func NewMockConnection() *MockConnection {
	return &MockConnection{connected: true}
}

// SendText implements Connection.
func (m *MockConnection) SendText(_ context.Context, msg string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, msg)
	return nil
}

// SetOnReceiveText implements Connection.
func (m *MockConnection) SetOnReceiveText(cb func(msg string)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cb = cb
}

// IsConnected implements Connection.
func (m *MockConnection) IsConnected() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.connected
}

// LastConnectedMs implements Connection.
func (m *MockConnection) LastConnectedMs() int64 {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lastMs
}

// SetConnected flips the simulated link state, for exercising offline/
// online transitions (§4.8's "Offline" queue-freeze behavior) without a
// real socket.
func (m *MockConnection) SetConnected(connected bool, nowMs int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.connected = connected
	m.lastMs = nowMs
}

// Deliver invokes the registered receive callback with msg, as if it had
// arrived from the wire. It is the test's job to shape msg as a valid
// OCPP-J frame.
func (m *MockConnection) Deliver(msg string) {
	m.mu.Lock()
	cb := m.cb
	m.mu.Unlock()
	if cb != nil {
		cb(msg)
	}
}

// Sent returns every frame passed to SendText so far, in order.
func (m *MockConnection) Sent() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.sent))
	copy(out, m.sent)
	return out
}

// NewMockFileSystem returns a fresh in-memory FileSystem (C1), backed by
// internal/fsadapter.Memory — the same adapter Start/Recover round-trips
// against in the real engine, just without anything durable behind it.
func NewMockFileSystem() interfaces.FileSystem {
	return fsadapter.NewMemory()
}

// NewMockClock creates a Clock (C2) whose wall-clock reading is pinned to
// start until advanced through the returned *time.Time, matching
// internal/clock's own test fixture: mutate the pointer directly rather
// than calling a setter, so a test can freely jump the clock backward or
// forward between Tick calls.
func NewMockClock(start time.Time) (*clock.Clock, *time.Time) {
	now := start
	c := clock.New(clock.Config{NowFn: func() time.Time { return now }})
	return c, &now
}
