package rpc

import (
	"time"

	"github.com/google/uuid"
)

// DefaultTimeout is the period a Request waits for a reply before being
// considered timed out, absent an Operation-specific override (§3 Request).
const DefaultTimeout = 40 * time.Second

// ResponseListener is notified once a Request settles, successfully or not.
// Queues/Message Service register these to drive retry/persistence without
// the Operation itself needing to know about Queue internals.
type ResponseListener func(req *Request, err error)

// Request wraps a single Operation instance with the bookkeeping the
// Message Service and Queues need to drive it through at most one
// in-flight send at a time.
type Request struct {
	MessageID     string
	Operation     Operation
	TimeoutPeriod time.Duration

	// TxNr/ConnectorID identify the Transaction this Request concerns, 0
	// when it doesn't concern one (handle-style reference, not a pointer —
	// see package txstore).
	ConnectorID uint32
	TxNr        uint32

	// OpNr is the opNr of the Queue this Request was enqueued onto, set by
	// the caller alongside ConnectorID/TxNr. The Message Service uses it to
	// key this Request's write-ahead log slot (internal/wal), if any.
	OpNr uint32

	timedOut    bool
	requestSent bool
	listeners   []ResponseListener
}

// NewRequest creates a Request for op with a freshly generated messageId.
func NewRequest(op Operation) *Request {
	return &Request{
		MessageID:     uuid.NewString(),
		Operation:     op,
		TimeoutPeriod: DefaultTimeout,
	}
}

// MarkSent records that this Request's Call frame has been written to the
// Connection. The Message Service enforces at most one Request across all
// Queues may be in this state at a time.
func (r *Request) MarkSent() { r.requestSent = true }

// Sent reports whether MarkSent has been called.
func (r *Request) Sent() bool { return r.requestSent }

// MarkTimedOut records that TimeoutPeriod elapsed with no reply.
func (r *Request) MarkTimedOut() { r.timedOut = true }

// TimedOut reports whether MarkTimedOut has been called.
func (r *Request) TimedOut() bool { return r.timedOut }

// OnResponse registers a listener invoked once this Request settles.
func (r *Request) OnResponse(l ResponseListener) {
	r.listeners = append(r.listeners, l)
}

// Settle notifies every registered listener that this Request has
// completed (err is nil on success, a timeout or CallError otherwise).
func (r *Request) Settle(err error) {
	for _, l := range r.listeners {
		l(r, err)
	}
}
