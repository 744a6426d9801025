// Command microocpp-demo drives a single-connector ChargePoint against an
// in-memory Connection and Filesystem, simulating an EV plug-in/swipe/
// unplug session one tick at a time. It never opens a real socket —
// mirrors the teacher's cmd/ublk-mem, which serves a real in-memory block
// device instead of a real disk.
package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/microocpp-go/engine"
	"github.com/microocpp-go/engine/internal/connector"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
)

func main() {
	var (
		verbose       = flag.Bool("v", false, "Verbose output")
		numConnectors = flag.Uint("connectors", 1, "Number of simulated connectors")
		tickInterval  = flag.Duration("tick", 250*time.Millisecond, "Simulated loop tick interval")
	)
	flag.Parse()

	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	fs := microocpp.NewMockFileSystem()
	conn := microocpp.NewMockConnection()
	metrics := microocpp.NewMetrics(nil)

	cp, err := microocpp.New(microocpp.Params{
		FS:                      fs,
		Connection:              conn,
		ChargePointVendor:       "microocpp-go",
		ChargePointModel:        "demo",
		ChargePointSerialNumber: "DEMO-0001",
		FirmwareVersion:         "0.1.0-demo",
		CurrentVersion:          "0.1.0-demo",
		NumConnectors:           uint32(*numConnectors),
		Sink:                    demoSink{log: logger},
		Metrics:                 metrics,
	})
	if err != nil {
		logger.Error("failed to build charge point", "error", err)
		os.Exit(1)
	}

	if err := cp.Start(); err != nil {
		logger.Error("failed to start charge point", "error", err)
		os.Exit(1)
	}
	defer func() {
		if err := cp.Close(); err != nil {
			logger.Warn("error closing charge point", "error", err)
		}
	}()

	logger.Info("microocpp-demo started", "connectors", *numConnectors)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sim := newSession(cp, logger)

	ticker := time.NewTicker(*tickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-sigCh:
			logger.Info("received shutdown signal")
			return
		case <-ticker.C:
			if err := cp.Loop(ctx); err != nil {
				logger.Error("loop error", "error", err)
			}
			sim.tick(cp.NowMs())
		}
	}
}

// demoSink prints transaction lifecycle events to the log instead of
// forwarding to a real UI/telemetry backend.
type demoSink struct{ log *logging.Logger }

func (s demoSink) OnTxNotification(connectorID uint32, event interfaces.TxNotificationEvent, detail string) {
	s.log.Info("tx notification", "connector", connectorID, "event", string(event), "detail", detail)
}

// session drives connector 1 through a scripted swipe/plug-in/unplug
// sequence without requiring real hardware or operator input. The script
// only advances once BootNotification is Accepted; the in-memory
// Connection above never answers a Call, so in this demo the engine sends
// BootNotification and the script stays at its first step. The unplug step
// does not end the transaction, so the script itself never causes a
// StopTransaction.
type session struct {
	cp       *microocpp.ChargePoint
	log      *logging.Logger
	state    int
	deadline int64
}

func newSession(cp *microocpp.ChargePoint, log *logging.Logger) *session {
	return &session{cp: cp, log: log}
}

func (s *session) tick(nowMs int64) {
	c, ok := s.cp.Connector(1)
	if !ok {
		return
	}
	switch s.state {
	case 0:
		if s.cp.BootAccepted() {
			s.log.Info("simulating card swipe", "connector", 1, "idTag", "DEMOTAG1")
			s.cp.Swipe(1, "DEMOTAG1")
			s.state = 1
			s.deadline = nowMs + 2000
		}
	case 1:
		c.Tick(connector.Inputs{Plugged: true, EVReady: true, EVSEReady: true, Operative: true}, nowMs)
		if nowMs >= s.deadline {
			s.state = 2
			s.deadline = nowMs + 5000
		}
	case 2:
		c.Tick(connector.Inputs{Plugged: true, EVReady: true, EVSEReady: true, Operative: true}, nowMs)
		if nowMs >= s.deadline {
			s.log.Info("simulating unplug", "connector", 1)
			s.state = 3
		}
	default:
		c.Tick(connector.Inputs{Operative: true}, nowMs)
	}
}
