// Package operations implements the concrete Operations the engine
// exchanges (C11, C15, plus the added Status Notification, Heartbeat,
// RemoteStartTransaction/RemoteStopTransaction/TriggerMessage operations).
// Each type implements rpc.Operation (and, for the transaction-critical
// two, rpc.WriteAheadOperation), grounded field-by-field in
// original_source's Operations/*.cpp behavior and in the OCPP reference
// shapes from other_examples/.
package operations

import (
	"encoding/json"
	"fmt"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/rpc"
)

// RegistrationStatus is BootNotification.conf's status field.
type RegistrationStatus string

const (
	StatusAccepted RegistrationStatus = "Accepted"
	StatusPending  RegistrationStatus = "Pending"
	StatusRejected RegistrationStatus = "Rejected"
)

// BootNotification is the first message sent after startup; its outcome
// gates every other queue (C13, §4.9).
type BootNotification struct {
	ChargePointVendor       string
	ChargePointModel        string
	ChargePointSerialNumber string
	FirmwareVersion         string

	// Result fields, populated once ProcessResponse runs.
	Status          RegistrationStatus
	Interval        int
	CurrentTime     string
	ResponseErr     error
}

func (b *BootNotification) Type() string { return "BootNotification" }

func (b *BootNotification) CreateRequest() (json.RawMessage, error) {
	return marshalCompact(struct {
		ChargePointVendor       string `json:"chargePointVendor"`
		ChargePointModel        string `json:"chargePointModel"`
		ChargePointSerialNumber string `json:"chargePointSerialNumber,omitempty"`
		FirmwareVersion         string `json:"firmwareVersion,omitempty"`
	}{b.ChargePointVendor, b.ChargePointModel, b.ChargePointSerialNumber, b.FirmwareVersion})
}

func (b *BootNotification) ProcessResponse(payload json.RawMessage) error {
	var resp struct {
		Status      string `json:"status"`
		Interval    int    `json:"interval"`
		CurrentTime string `json:"currentTime"`
	}
	if err := json.Unmarshal(payload, &resp); err != nil {
		b.ResponseErr = fmt.Errorf("operations: BootNotification.conf: %w", err)
		return b.ResponseErr
	}
	b.Status = RegistrationStatus(resp.Status)
	b.Interval = resp.Interval
	b.CurrentTime = resp.CurrentTime
	return nil
}

// ProcessRequest is never called: BootNotification is only ever sent by
// this side, never received.
func (b *BootNotification) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	kind := rpc.NotSupported
	return &kind
}

func (b *BootNotification) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}

var _ rpc.Operation = (*BootNotification)(nil)

// ParseCurrentTime is a convenience wrapper so boot.Service doesn't need
// to import internal/clock's parser directly when anchoring off a
// BootNotification.conf's currentTime.
func (b *BootNotification) ParseCurrentTime() bool {
	if b.CurrentTime == "" {
		return false
	}
	_, err := clock.ParseISO8601(b.CurrentTime)
	return err == nil
}
