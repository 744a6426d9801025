package rpc

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

type stubOperation struct{ typ string }

func (s *stubOperation) Type() string                                    { return s.typ }
func (s *stubOperation) CreateRequest() (json.RawMessage, error)          { return json.RawMessage(`{}`), nil }
func (s *stubOperation) ProcessResponse(payload json.RawMessage) error    { return nil }
func (s *stubOperation) ProcessRequest(payload json.RawMessage) *ErrorKind { return nil }
func (s *stubOperation) CreateResponse() (json.RawMessage, CreateResult) {
	return json.RawMessage(`{}`), ResultSuccess
}

func TestNewRequestGeneratesUniqueMessageIDs(t *testing.T) {
	a := NewRequest(&stubOperation{typ: "Heartbeat"})
	b := NewRequest(&stubOperation{typ: "Heartbeat"})
	require.NotEqual(t, a.MessageID, b.MessageID)
	require.Equal(t, DefaultTimeout, a.TimeoutPeriod)
}

func TestRequestSentAndTimedOutFlags(t *testing.T) {
	r := NewRequest(&stubOperation{typ: "Heartbeat"})
	require.False(t, r.Sent())
	r.MarkSent()
	require.True(t, r.Sent())

	require.False(t, r.TimedOut())
	r.MarkTimedOut()
	require.True(t, r.TimedOut())
}

func TestRequestSettleNotifiesListeners(t *testing.T) {
	r := NewRequest(&stubOperation{typ: "Heartbeat"})

	var gotErr error
	called := false
	r.OnResponse(func(req *Request, err error) {
		called = true
		gotErr = err
	})

	sentinel := errors.New("boom")
	r.Settle(sentinel)

	require.True(t, called)
	require.ErrorIs(t, gotErr, sentinel)
}

func TestRequestSettleMultipleListeners(t *testing.T) {
	r := NewRequest(&stubOperation{typ: "Heartbeat"})
	count := 0
	r.OnResponse(func(req *Request, err error) { count++ })
	r.OnResponse(func(req *Request, err error) { count++ })
	r.Settle(nil)
	require.Equal(t, 2, count)
}
