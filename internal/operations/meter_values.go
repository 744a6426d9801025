package operations

import (
	"encoding/json"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/meterstore"
	"github.com/microocpp-go/engine/internal/rpc"
)

// MeterValues reports sampled meter data out-of-band from a transaction's
// start/stop (§4.6). Unlike StartTransaction/StopTransaction it carries no
// write-ahead log: "never carries state that must be preserved across a
// reboot — they're dropped on power-loss". The samples it reports have
// already been durably appended to the Meter Value Store by the time this
// Operation is created; losing the in-flight Call on a reboot only means
// the server sees the sample one StopTransaction.transactionData entry
// later, not that the sample itself is lost.
type MeterValues struct {
	ConnectorID   uint32
	TransactionID int // 0 if not tied to an active transaction
	Records       []meterstore.MeterValueRecord
}

func (m *MeterValues) Type() string { return "MeterValues" }

type meterValuesEntry struct {
	Timestamp    string         `json:"timestamp"`
	SampledValue []wireSampled  `json:"sampledValue"`
}

type wireSampled struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Format    string `json:"format,omitempty"`
	Context   string `json:"context,omitempty"`
}

func (m *MeterValues) CreateRequest() (json.RawMessage, error) {
	entries := make([]meterValuesEntry, 0, len(m.Records))
	for _, rec := range m.Records {
		entry := meterValuesEntry{Timestamp: clock.ToJSONString(rec.Timestamp)}
		for _, sv := range rec.SampledValues {
			entry.SampledValue = append(entry.SampledValue, wireSampled{
				Value: sv.Value, Measurand: sv.Measurand, Phase: sv.Phase,
				Location: sv.Location, Unit: sv.Unit, Format: sv.Format,
				Context: string(sv.Context),
			})
		}
		entries = append(entries, entry)
	}

	type reqBody struct {
		ConnectorID   uint32              `json:"connectorId"`
		TransactionID int                 `json:"transactionId,omitempty"`
		MeterValue    []meterValuesEntry  `json:"meterValue"`
	}
	return marshalCompact(reqBody{
		ConnectorID:   m.ConnectorID,
		TransactionID: m.TransactionID,
		MeterValue:    entries,
	})
}

// ProcessResponse is a no-op: MeterValues.conf's body is always {}.
func (m *MeterValues) ProcessResponse(payload json.RawMessage) error {
	return nil
}

func (m *MeterValues) ProcessRequest(payload json.RawMessage) *rpc.ErrorKind {
	kind := rpc.NotSupported
	return &kind
}

func (m *MeterValues) CreateResponse() (json.RawMessage, rpc.CreateResult) {
	return nil, rpc.ResultFailure
}

var _ rpc.Operation = (*MeterValues)(nil)

// BuildMeterValueRecord is a small convenience constructor the metering
// service uses when a sample clock tick fires, bundling the context tag
// with the SampledValue slice it's paired with (§3 MeterValueRecord).
func BuildMeterValueRecord(ts clock.Timestamp, context meterstore.Context, values []meterstore.SampledValue) meterstore.MeterValueRecord {
	for i := range values {
		if values[i].Context == "" {
			values[i].Context = context
		}
	}
	return meterstore.MeterValueRecord{Timestamp: ts, Context: context, SampledValues: values}
}
