package microocpp

import "github.com/microocpp-go/engine/internal/interfaces"

// txSink fans a Connector's TxNotificationEvent out to the host-supplied
// sink (if any) and to Metrics' paired-transaction counter, so a host
// doesn't have to remember to call TransactionCompleted itself.
type txSink struct {
	host    interfaces.TxNotificationSink
	metrics *Metrics
}

func (s *txSink) OnTxNotification(connectorID uint32, event interfaces.TxNotificationEvent, detail string) {
	if event == interfaces.EventStopTx && s.metrics != nil {
		s.metrics.TransactionCompleted()
	}
	if s.host != nil {
		s.host.OnTxNotification(connectorID, event, detail)
	}
}

var _ interfaces.TxNotificationSink = (*txSink)(nil)
