// Package message implements the Message Service (C12): arbitration of
// every Request Queue, OCPP-J frame (de)serialization, and the send/recv
// state machine driven by one Loop tick per call. Grounded in the
// teacher's queue.Runner COMMIT_AND_FETCH loop (one in-flight unit of
// work, tracked to completion before the next is started) generalized
// from "one kernel I/O per tag" to "one Request across all Queues".
package message

import (
	"encoding/json"
	"fmt"

	"github.com/microocpp-go/engine/internal/rpc"
)

// Factory constructs a fresh Operation instance to handle one inbound
// Call.
type Factory func() rpc.Operation

// FuncHandler is the raw-callback registration form spec.md §4.8 names
// ("a second form accepting raw callbacks") without specifying a
// signature: the closure receives the inbound Call payload and returns
// either a reply payload or an error, which the Service maps to
// GenericError (§4.10 of SPEC_FULL.md) since a vendor extension has no
// occasion to pick a more specific ErrorKind through this simpler path.
type FuncHandler func(payload json.RawMessage) (json.RawMessage, error)

// Registry maps OCPP action names to the factory that builds the
// Operation handling that action when this side receives a Call.
type Registry struct {
	factories map[string]Factory
	funcs     map[string]FuncHandler
}

// NewRegistry creates an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		factories: make(map[string]Factory),
		funcs:     make(map[string]FuncHandler),
	}
}

// RegisterOperation registers factory to build the Operation that handles
// inbound Calls with the given operationType.
func (r *Registry) RegisterOperation(operationType string, factory Factory) {
	r.factories[operationType] = factory
}

// RegisterFunc registers a raw-callback handler for operationType, for
// vendor extensions that don't want to implement the full Operation
// interface.
func (r *Registry) RegisterFunc(operationType string, handler FuncHandler) {
	r.funcs[operationType] = handler
}

// Resolve builds the Operation instance to handle operationType, or nil
// with ok=false if no factory form is registered (§7: unknown action ->
// CallError NotImplemented).
func (r *Registry) Resolve(operationType string) (rpc.Operation, bool) {
	factory, ok := r.factories[operationType]
	if !ok {
		return nil, false
	}
	return factory(), true
}

// ResolveFunc looks up a raw-callback handler for operationType.
func (r *Registry) ResolveFunc(operationType string) (FuncHandler, bool) {
	h, ok := r.funcs[operationType]
	return h, ok
}

// funcOperation adapts a FuncHandler into an rpc.Operation so the Service
// can drive both registration forms through one code path.
type funcOperation struct {
	operationType string
	handler       FuncHandler
	reply         json.RawMessage
	failErr       error
}

func (f *funcOperation) Type() string                           { return f.operationType }
func (f *funcOperation) CreateRequest() (json.RawMessage, error) {
	return nil, fmt.Errorf("message: %s is never sent by this side", f.operationType)
}
func (f *funcOperation) ProcessResponse(payload json.RawMessage) error {
	return fmt.Errorf("message: %s is never sent by this side", f.operationType)
}

func (f *funcOperation) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	reply, err := f.handler(payload)
	if err != nil {
		f.failErr = err
		kind := rpc.GenericError
		return &kind
	}
	f.reply = reply
	return nil
}

func (f *funcOperation) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	if f.reply == nil {
		f.reply = json.RawMessage("{}")
	}
	return f.reply, rpc.ResultSuccess
}

var _ rpc.Operation = (*funcOperation)(nil)
