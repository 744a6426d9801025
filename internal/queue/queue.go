// Package queue implements the Request Queues component (C7): FIFO
// Request queues distinguished by an opNr priority band, and a Manager
// that arbitrates across all registered queues to find the single next
// Request the Message Service may send. Grounded in the teacher's
// queue.Runner (one queue per hardware ring, each independently fed) but
// simplified to plain FIFO slices since this engine drives everything from
// one cooperative Loop rather than per-queue goroutines (§5).
package queue

import (
	"sync"

	"github.com/microocpp-go/engine/internal/constants"
	"github.com/microocpp-go/engine/internal/rpc"
)

// Queue is a single priority band's FIFO of pending Requests.
type Queue interface {
	// OpNr is this queue's priority; lower sends first.
	OpNr() uint32
	// Name identifies the queue for logging/metrics.
	Name() string
	// Len reports the number of Requests waiting.
	Len() int
	// Enqueue appends req to the back of the queue.
	Enqueue(req *rpc.Request)
	// FrontOpNr returns OpNr() if non-empty, constants.NoOperation otherwise.
	FrontOpNr() uint32
	// FetchFront removes and returns the Request at the front, or nil if
	// empty.
	FetchFront() *rpc.Request
	// Peek returns the front Request without removing it, or nil if empty.
	Peek() *rpc.Request
}

// FIFOQueue is the default Queue implementation: a plain slice-backed FIFO
// guarded by a mutex, since Enqueue can be called from a Connector or
// Operation callback that isn't necessarily on the Loop goroutine (e.g. a
// host's physical-input interrupt handler), while FetchFront/Peek/Len are
// only ever called from Loop.
type FIFOQueue struct {
	mu    sync.Mutex
	opNr  uint32
	name  string
	items []*rpc.Request
}

// New creates an empty FIFOQueue at the given opNr.
func New(name string, opNr uint32) *FIFOQueue {
	return &FIFOQueue{name: name, opNr: opNr}
}

func (q *FIFOQueue) OpNr() uint32 { return q.opNr }
func (q *FIFOQueue) Name() string { return q.name }

func (q *FIFOQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

func (q *FIFOQueue) Enqueue(req *rpc.Request) {
	q.mu.Lock()
	defer q.mu.Unlock()
	q.items = append(q.items, req)
}

func (q *FIFOQueue) FrontOpNr() uint32 {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return constants.NoOperation
	}
	return q.opNr
}

func (q *FIFOQueue) FetchFront() *rpc.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	req := q.items[0]
	q.items = q.items[1:]
	return req
}

func (q *FIFOQueue) Peek() *rpc.Request {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return nil
	}
	return q.items[0]
}

// NewPreBootQueue creates the single queue that strictly precedes all
// others (§4.3, opNr=0) — BootNotification's own Request lives here.
func NewPreBootQueue() *FIFOQueue {
	return New("pre-boot", constants.OpNrPreBoot)
}

// NewVolatileQueue creates the default, non-transaction queue (opNr=1) —
// StatusNotification, Heartbeat, Authorize and server-initiated Operations
// not tied to a transaction all flow through here.
func NewVolatileQueue() *FIFOQueue {
	return New("volatile", constants.OpNrVolatile)
}

// NewTransactionQueue creates a per-EVSE transaction queue. connectorID
// offsets OpNrTxBase so each connector's queue has a distinct, stable
// opNr and ties between connectors are never possible.
func NewTransactionQueue(connectorID uint32) *FIFOQueue {
	return New("tx", constants.OpNrTxBase+connectorID)
}
