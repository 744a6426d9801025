// Package boot implements the Boot Service (C13): the BootNotification
// loop that gates every other queue, the on-disk BootStats record, and
// the >3-attempt auto-recovery wipe. Grounded in the teacher's
// ctrl.Controller ADD_DEV/SET_PARAMS/START_DEV control-plane sequencing
// (a fixed ordered handshake that must succeed before I/O starts) and in
// original_source's BootService.cpp for the retry/backoff and boot-stats
// semantics (§4.9).
package boot

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/microocpp-go/engine/internal/clock"
	"github.com/microocpp-go/engine/internal/constants"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
	"github.com/microocpp-go/engine/internal/operations"
	"github.com/microocpp-go/engine/internal/queue"
	"github.com/microocpp-go/engine/internal/rpc"
)

const bootStatsFile = "bootstats.jsn"

// Stats is the on-disk BootStats record (§3, §6).
type Stats struct {
	BootNr           uint16 `json:"bootNr"`
	Attempts         uint16 `json:"attempts"`
	MicroOcppVersion string `json:"MicroOcppVersion"`
}

// GateController is the narrow surface Service needs from
// internal/message.Service: clearing pre-boot gating once Accepted.
type GateController interface {
	SetBootGated(gated bool)
}

// Service drives BootNotification and the boot-stats lifecycle.
type Service struct {
	fs      interfaces.FileSystem
	clock   *clock.Clock
	preBoot *queue.FIFOQueue
	gate    GateController
	log     *logging.Logger

	vendor, model, serial, firmware string
	currentVersion                  string

	stats Stats

	status          operations.RegistrationStatus
	retryIntervalMs int64
	nextAttemptMs   int64
	inFlight        bool
	acceptedAtMs    int64
	success         bool
}

// Config configures a new Service.
type Config struct {
	FS      interfaces.FileSystem
	Clock   *clock.Clock
	PreBoot *queue.FIFOQueue
	Gate    GateController

	ChargePointVendor string
	ChargePointModel  string
	SerialNumber      string
	FirmwareVersion   string
	// CurrentVersion is this binary's own version string, compared
	// against the persisted one to trigger the §4.9 version-migration
	// purge.
	CurrentVersion string
	// RetryInterval overrides the default retry period between
	// BootNotification attempts until the server supplies its own
	// Interval. Zero uses constants.DefaultBootRetryInterval.
	RetryInterval time.Duration
}

// New creates a Service. Call Load before the first Tick to recover
// boot-stats state from disk.
func New(config Config) *Service {
	retryInterval := config.RetryInterval
	if retryInterval <= 0 {
		retryInterval = constants.DefaultBootRetryInterval
	}
	return &Service{
		fs:              config.FS,
		clock:           config.Clock,
		preBoot:         config.PreBoot,
		gate:            config.Gate,
		log:             logging.Default(),
		vendor:          config.ChargePointVendor,
		model:           config.ChargePointModel,
		serial:          config.SerialNumber,
		firmware:        config.FirmwareVersion,
		currentVersion:  config.CurrentVersion,
		retryIntervalMs: retryInterval.Milliseconds(),
	}
}

// Load reads bootstats.jsn (creating a fresh record if absent), bumps the
// attempt counter, and persists it back before the first BootNotification
// is sent. Returns the list of file-name prefixes that must be wiped —
// either because of boot-loop auto-recovery (>3 attempts) or a version
// mismatch (§4.9) — for the caller to pass to a Filesystem purge before
// other components' Recover() runs.
func (s *Service) Load() (wipePrefixes []string, err error) {
	s.stats = Stats{MicroOcppVersion: s.currentVersion}
	if s.fs != nil {
		if f, err := s.fs.Open(bootStatsFile, os.O_RDONLY); err == nil {
			dec := json.NewDecoder(f)
			var stats Stats
			if decErr := dec.Decode(&stats); decErr == nil {
				s.stats = stats
			}
			f.Close()
		}
	}

	versionMismatch := s.stats.MicroOcppVersion != "" && s.stats.MicroOcppVersion != s.currentVersion
	s.stats.BootNr++
	s.stats.Attempts++

	if s.stats.Attempts > constants.MaxBootAttempts {
		wipePrefixes = append(wipePrefixes, "sd-", "tx-", "sc-", "reservation", "client-state")
		s.stats.Attempts = 0
		s.log.Warnf("boot: %d boot attempts without success, wiping volatile state", constants.MaxBootAttempts+1)
	}
	if versionMismatch {
		wipePrefixes = append(wipePrefixes, "op-", "sd-", "tx-")
		s.log.Warnf("boot: MicroOcppVersion changed (%s -> %s), wiping persisted ops/tx/sd state", s.stats.MicroOcppVersion, s.currentVersion)
	}
	s.stats.MicroOcppVersion = s.currentVersion

	if err := s.persist(); err != nil {
		return wipePrefixes, err
	}
	return wipePrefixes, nil
}

func (s *Service) persist() error {
	if s.fs == nil {
		return nil
	}
	b, err := json.Marshal(s.stats)
	if err != nil {
		return err
	}
	f, err := s.fs.Open(bootStatsFile, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("boot: open %s: %w", bootStatsFile, err)
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

// Stats returns the current in-memory BootStats.
func (s *Service) Stats() Stats { return s.stats }

// Accepted reports whether BootNotification has last been Accepted.
func (s *Service) Accepted() bool { return s.status == operations.StatusAccepted }

// Tick drives the boot loop: sends a fresh BootNotification if none is in
// flight and the retry interval has elapsed, and — once Accepted for
// BootStatsLongtimeDuration — resets the attempt counter (§4.9
// "setBootSuccess").
func (s *Service) Tick(nowMs int64) {
	if s.Accepted() {
		if !s.success && s.acceptedAtMs != 0 && nowMs-s.acceptedAtMs >= constants.BootStatsLongtimeDuration.Milliseconds() {
			s.stats.Attempts = 0
			s.success = true
			_ = s.persist()
			s.log.Infof("boot: sustained accepted uptime reached, boot attempt counter reset")
		}
		return
	}

	if s.inFlight {
		return
	}
	if nowMs < s.nextAttemptMs {
		return
	}

	s.inFlight = true
	op := &operations.BootNotification{
		ChargePointVendor:       s.vendor,
		ChargePointModel:        s.model,
		ChargePointSerialNumber: s.serial,
		FirmwareVersion:         s.firmware,
	}
	req := rpc.NewRequest(op)
	req.OnResponse(func(_ *rpc.Request, err error) {
		s.inFlight = false
		s.onResponse(op, err, nowMs)
	})
	s.preBoot.Enqueue(req)
}

func (s *Service) onResponse(op *operations.BootNotification, err error, nowMs int64) {
	if err != nil || op.ResponseErr != nil {
		s.status = operations.StatusRejected
		s.nextAttemptMs = nowMs + s.retryIntervalMs
		return
	}

	s.status = op.Status
	switch op.Status {
	case operations.StatusAccepted:
		if op.Interval > 0 {
			s.retryIntervalMs = int64(op.Interval) * 1000
		}
		if op.CurrentTime != "" && s.clock != nil {
			s.clock.SetTime(op.CurrentTime)
		}
		s.acceptedAtMs = nowMs
		s.success = false
		if s.gate != nil {
			s.gate.SetBootGated(false)
		}
		s.log.Infof("boot: BootNotification Accepted, interval=%ds", op.Interval)
	case operations.StatusPending:
		if op.Interval > 0 {
			s.retryIntervalMs = int64(op.Interval) * 1000
		}
		s.nextAttemptMs = nowMs + s.retryIntervalMs
	default: // Rejected
		s.nextAttemptMs = nowMs + s.retryIntervalMs
	}
}

// HeartbeatInterval returns the interval (seconds) the last Accepted or
// Pending response carried, or the boot retry interval if none carried a
// positive one, for the caller to schedule Heartbeat operations against.
func (s *Service) HeartbeatInterval() int64 { return s.retryIntervalMs / 1000 }
