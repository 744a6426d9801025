package queue

import (
	"github.com/microocpp-go/engine/internal/constants"
	"github.com/microocpp-go/engine/internal/rpc"
)

// Manager arbitrates across every registered Queue to find the single
// next Request to send, honoring opNr priority with registration order as
// the tiebreaker (§4.3: "lowest opNr wins, ties broken by registration
// order"). Manager itself never blocks; FetchNext is called once per Loop
// tick.
type Manager struct {
	queues []Queue
}

// NewManager creates an empty Manager.
func NewManager() *Manager {
	return &Manager{}
}

// Register adds q to the arbitration set. Registration order matters as a
// tiebreaker, so callers should register pre-boot, then volatile, then
// per-connector transaction queues, matching their natural opNr ordering
// (though Manager doesn't require queues be registered in opNr order).
func (m *Manager) Register(q Queue) {
	m.queues = append(m.queues, q)
}

// Queues returns every registered queue, in registration order.
func (m *Manager) Queues() []Queue {
	return m.queues
}

// FetchNext pops and returns the highest-priority (lowest opNr) pending
// Request across all registered queues, or nil if every queue is empty.
func (m *Manager) FetchNext() *rpc.Request {
	q := m.frontQueue()
	if q == nil {
		return nil
	}
	return q.FetchFront()
}

// PeekNext reports the highest-priority pending Request without removing
// it, or nil if every queue is empty.
func (m *Manager) PeekNext() *rpc.Request {
	q := m.frontQueue()
	if q == nil {
		return nil
	}
	return q.Peek()
}

// frontQueue finds the queue holding the next Request to send. Queues are
// scanned in registration order and the first with the lowest observed
// opNr wins ties, since a later queue sharing that opNr was registered
// after it.
func (m *Manager) frontQueue() Queue {
	var best Queue
	bestOpNr := constants.NoOperation
	for _, q := range m.queues {
		opNr := q.FrontOpNr()
		if opNr == constants.NoOperation {
			continue
		}
		if opNr < bestOpNr {
			bestOpNr = opNr
			best = q
		}
	}
	return best
}

// Depths returns each registered queue's current length, keyed by name,
// for Observer.ObserveQueueDepth reporting.
func (m *Manager) Depths() map[string]int {
	depths := make(map[string]int, len(m.queues))
	for _, q := range m.queues {
		depths[q.Name()] += q.Len()
	}
	return depths
}
