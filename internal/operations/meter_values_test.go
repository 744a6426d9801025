package operations

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/meterstore"
)

func TestMeterValuesCreateRequestEncodesSamples(t *testing.T) {
	rec := BuildMeterValueRecord(
		interfaces.RawTimestamp{Seconds: 100, Anchored: true},
		meterstore.ContextSamplePeriodic,
		[]meterstore.SampledValue{{Value: "42", Measurand: "Energy.Active.Import.Register", Unit: "Wh"}},
	)
	mv := &MeterValues{ConnectorID: 1, TransactionID: 7, Records: []meterstore.MeterValueRecord{rec}}

	payload, err := mv.CreateRequest()
	require.NoError(t, err)

	var decoded struct {
		ConnectorID   uint32 `json:"connectorId"`
		TransactionID int    `json:"transactionId"`
		MeterValue    []struct {
			SampledValue []struct {
				Value string `json:"value"`
				Unit  string `json:"unit"`
			} `json:"sampledValue"`
		} `json:"meterValue"`
	}
	require.NoError(t, json.Unmarshal(payload, &decoded))
	require.Equal(t, uint32(1), decoded.ConnectorID)
	require.Equal(t, 7, decoded.TransactionID)
	require.Len(t, decoded.MeterValue, 1)
	require.Equal(t, "42", decoded.MeterValue[0].SampledValue[0].Value)
	require.Equal(t, "Wh", decoded.MeterValue[0].SampledValue[0].Unit)
}

func TestMeterValuesProcessRequestUnsupported(t *testing.T) {
	mv := &MeterValues{}
	kind := mv.ProcessRequest(json.RawMessage(`{}`))
	require.NotNil(t, kind)
}
