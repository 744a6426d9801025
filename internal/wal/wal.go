// Package wal implements the Operation Engine's write-ahead log: a slim
// op-<opNr>.jsn record written once a write-ahead Operation (StartTransaction,
// StopTransaction) reaches the front of its Queue, so a reboot mid-exchange
// can reconstruct and re-enqueue the same Call instead of silently losing it
// (spec.md §4.4: "op-<opNr>.jsn — {rpc:{operationType:str},
// payload:{connectorId:u32,txNr:u32}}"). Grounded in internal/txstore's own
// ring-slot persistence pattern — a small wire struct, Open/Write/Sync
// through the Filesystem Adapter, and a prefix Walk to recover every slot
// at startup.
package wal

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
)

// Record is a reconstructed op slot: the Operation type name plus the
// Transaction handle (connectorId, txNr) it concerns.
type Record struct {
	OperationType string
	ConnectorID   uint32
	TxNr          uint32
}

type wireRecord struct {
	RPC struct {
		OperationType string `json:"operationType"`
	} `json:"rpc"`
	Payload struct {
		ConnectorID uint32 `json:"connectorId"`
		TxNr        uint32 `json:"txNr"`
	} `json:"payload"`
}

// Store persists one op slot per opNr, keyed by filename op-<opNr>.jsn —
// opNr uniquely identifies the Queue (and so, at most, the one transaction)
// a pending write-ahead Request belongs to.
type Store struct {
	fs  interfaces.FileSystem
	log *logging.Logger
}

// NewStore creates a Store backed by fs. fs may be nil for purely
// in-memory use (tests with no persistence).
func NewStore(fs interfaces.FileSystem) *Store {
	return &Store{fs: fs, log: logging.Default()}
}

func slotFilename(opNr uint32) string {
	return fmt.Sprintf("op-%d.jsn", opNr)
}

// Write persists operationType and payload (an Operation's
// WriteAheadPayload, {connectorId,txNr}) to opNr's slot, overwriting
// whatever was there — a Queue carries at most one in-flight write-ahead
// Request at a time, so the previous occupant, if any, has already settled.
func (s *Store) Write(opNr uint32, operationType string, payload json.RawMessage) error {
	if s.fs == nil {
		return nil
	}
	var wire wireRecord
	wire.RPC.OperationType = operationType
	if err := json.Unmarshal(payload, &wire.Payload); err != nil {
		return fmt.Errorf("wal: decode payload for opNr %d: %w", opNr, err)
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return err
	}
	name := slotFilename(opNr)
	f, err := s.fs.Open(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("wal: open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	return f.Sync()
}

// Clear removes opNr's slot, if any, once its Operation has settled
// successfully (including a CallError settled as data-loss-acknowledged).
func (s *Store) Clear(opNr uint32) error {
	if s.fs == nil {
		return nil
	}
	return s.fs.Remove(slotFilename(opNr))
}

// Recover reads every persisted op slot, keyed by opNr, for the caller to
// reconstruct pending write-ahead Operations against. Slot files that fail
// to parse are discarded — a torn write, the same tolerance
// internal/txstore.Store.Recover applies to its own ring slots.
func (s *Store) Recover() (map[uint32]Record, error) {
	out := make(map[uint32]Record)
	if s.fs == nil {
		return out, nil
	}
	err := s.fs.Walk("op-", func(name string) error {
		opNr, ok := parseOpNr(name)
		if !ok {
			return nil
		}
		f, err := s.fs.Open(name, os.O_RDONLY)
		if err != nil {
			return nil
		}
		defer f.Close()

		var wire wireRecord
		if err := json.NewDecoder(f).Decode(&wire); err != nil {
			s.log.Warnf("wal: discarding unreadable slot %s: %v", name, err)
			return nil
		}
		out[opNr] = Record{
			OperationType: wire.RPC.OperationType,
			ConnectorID:   wire.Payload.ConnectorID,
			TxNr:          wire.Payload.TxNr,
		}
		return nil
	})
	return out, err
}

func parseOpNr(name string) (uint32, bool) {
	trimmed := strings.TrimSuffix(strings.TrimPrefix(name, "op-"), ".jsn")
	if trimmed == name || trimmed == "" {
		return 0, false
	}
	n, err := strconv.ParseUint(trimmed, 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}
