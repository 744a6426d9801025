package rpc

import (
	"encoding/json"
	"fmt"
)

// MessageType discriminates the three OCPP-J frame shapes.
type MessageType int

const (
	TypeCall       MessageType = 2
	TypeCallResult MessageType = 3
	TypeCallError  MessageType = 4
)

// CallFrame is the outbound/inbound shape of [2, messageId, action, payload].
type CallFrame struct {
	MessageID string
	Action    string
	Payload   json.RawMessage
}

// CallResultFrame is [3, messageId, payload].
type CallResultFrame struct {
	MessageID string
	Payload   json.RawMessage
}

// CallErrorFrame is [4, messageId, errorCode, errorDescription, errorDetails].
type CallErrorFrame struct {
	MessageID   string
	Code        ErrorKind
	Description string
	Details     json.RawMessage
}

// EncodeCall marshals a Call frame.
func EncodeCall(f CallFrame) ([]byte, error) {
	payload := f.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{TypeCall, f.MessageID, f.Action, payload})
}

// EncodeCallResult marshals a CallResult frame.
func EncodeCallResult(f CallResultFrame) ([]byte, error) {
	payload := f.Payload
	if payload == nil {
		payload = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{TypeCallResult, f.MessageID, payload})
}

// EncodeCallError marshals a CallError frame.
func EncodeCallError(f CallErrorFrame) ([]byte, error) {
	details := f.Details
	if details == nil {
		details = json.RawMessage("{}")
	}
	return json.Marshal([]interface{}{TypeCallError, f.MessageID, string(f.Code), f.Description, details})
}

// Decode parses any of the three frame shapes out of a raw wire message,
// returning exactly one of the *Frame results non-nil.
func Decode(raw []byte) (call *CallFrame, result *CallResultFrame, callErr *CallErrorFrame, err error) {
	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err != nil {
		return nil, nil, nil, fmt.Errorf("rpc: malformed frame: %w", err)
	}
	if len(arr) < 3 {
		return nil, nil, nil, fmt.Errorf("rpc: frame too short (%d elements)", len(arr))
	}

	var msgType int
	if err := json.Unmarshal(arr[0], &msgType); err != nil {
		return nil, nil, nil, fmt.Errorf("rpc: malformed message type: %w", err)
	}

	var messageID string
	if err := json.Unmarshal(arr[1], &messageID); err != nil {
		return nil, nil, nil, fmt.Errorf("rpc: malformed messageId: %w", err)
	}

	switch MessageType(msgType) {
	case TypeCall:
		if len(arr) < 4 {
			return nil, nil, nil, fmt.Errorf("rpc: Call frame too short")
		}
		var action string
		if err := json.Unmarshal(arr[2], &action); err != nil {
			return nil, nil, nil, fmt.Errorf("rpc: malformed action: %w", err)
		}
		return &CallFrame{MessageID: messageID, Action: action, Payload: arr[3]}, nil, nil, nil

	case TypeCallResult:
		return nil, &CallResultFrame{MessageID: messageID, Payload: arr[2]}, nil, nil

	case TypeCallError:
		if len(arr) < 4 {
			return nil, nil, nil, fmt.Errorf("rpc: CallError frame too short")
		}
		var code string
		if err := json.Unmarshal(arr[2], &code); err != nil {
			return nil, nil, nil, fmt.Errorf("rpc: malformed errorCode: %w", err)
		}
		var desc string
		if err := json.Unmarshal(arr[3], &desc); err != nil {
			return nil, nil, nil, fmt.Errorf("rpc: malformed errorDescription: %w", err)
		}
		var details json.RawMessage
		if len(arr) > 4 {
			details = arr[4]
		}
		return nil, nil, &CallErrorFrame{MessageID: messageID, Code: ErrorKind(code), Description: desc, Details: details}, nil

	default:
		return nil, nil, nil, fmt.Errorf("rpc: unknown message type %d", msgType)
	}
}
