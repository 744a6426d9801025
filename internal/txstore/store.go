package txstore

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"
	"sync"

	"github.com/microocpp-go/engine/internal/constants"
	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
)

// Store is the ring-indexed, per-connector Transaction record store.
// Each connector keeps at most constants.DefaultTxRecordSize live records
// on disk; a new Begin() overwrites the oldest slot (§3/§4.4 "<=
// MO_TXRECORD_SIZE live records per connector on disk"). txNrBegin/txNrEnd
// track the ring window (§4.4); Purge advances txNrBegin explicitly once
// leading records are Completed, while a slot collision from Begin
// wrapping all the way around advances it implicitly (a lossy overwrite of
// a still-incomplete record — accepted here the same way the flash ring
// this models accepts it, since there's nowhere else to put the new slot).
type Store struct {
	fs         interfaces.FileSystem
	recordSize uint32
	log        *logging.Logger

	mu           sync.Mutex
	txNrBegin    map[uint32]uint32                  // connectorID -> oldest retained txNr
	txNrEnd      map[uint32]uint32                  // connectorID -> next txNr to allocate
	records      map[uint32]map[uint32]*Transaction  // connectorID -> txNr -> record
	slotOccupant map[uint32]map[uint32]uint32        // connectorID -> slot -> txNr currently occupying it
}

// NewStore creates a Store backed by fs with the default retention size.
func NewStore(fs interfaces.FileSystem) *Store {
	return &Store{
		fs:           fs,
		recordSize:   constants.DefaultTxRecordSize,
		log:          logging.Default(),
		txNrBegin:    make(map[uint32]uint32),
		txNrEnd:      make(map[uint32]uint32),
		records:      make(map[uint32]map[uint32]*Transaction),
		slotOccupant: make(map[uint32]map[uint32]uint32),
	}
}

func slotFilename(connectorID, slot uint32) string {
	return fmt.Sprintf("tx-%04d-%02d.json", connectorID, slot)
}

// Recover rebuilds in-memory state from every persisted ring slot. Called
// once at startup before any Begin/Save call. Slot files whose content
// fails to parse are skipped (treated as a torn write — discarded rather
// than surfaced as a fatal error, matching §8's referential-integrity
// rule of discarding what can't be trusted after a reboot).
func (s *Store) Recover() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	recoveredTxNrs := make(map[uint32][]uint32)

	if err := s.fs.Walk("tx-", func(name string) error {
		connectorID, ok := parseConnectorFromSlotName(name)
		if !ok {
			return nil
		}
		f, err := s.fs.Open(name, os.O_RDONLY)
		if err != nil {
			return nil
		}
		defer f.Close()

		var wire wireTransaction
		if err := json.NewDecoder(f).Decode(&wire); err != nil {
			s.log.Warnf("txstore: discarding unreadable slot %s: %v", name, err)
			return nil
		}
		tx := wire.toTransaction()

		if s.records[connectorID] == nil {
			s.records[connectorID] = make(map[uint32]*Transaction)
		}
		if s.slotOccupant[connectorID] == nil {
			s.slotOccupant[connectorID] = make(map[uint32]uint32)
		}
		s.records[connectorID][tx.TxNr] = tx
		s.slotOccupant[connectorID][tx.TxNr%s.recordSize] = tx.TxNr
		recoveredTxNrs[connectorID] = append(recoveredTxNrs[connectorID], tx.TxNr)
		return nil
	}); err != nil {
		return err
	}

	for connectorID, txNrs := range recoveredTxNrs {
		begin, end := chooseRingOrder(txNrs)
		s.txNrBegin[connectorID] = begin
		s.txNrEnd[connectorID] = end
	}
	return nil
}

// chooseRingOrder derives the oldest retained txNr (begin) and the next
// txNr to allocate (end) from a connector's recovered txNr values,
// correctly handling wraparound at constants.MaxTxCount. Plain numeric
// min/max inverts once the ring has wrapped (e.g. {65534,65535,0,1} would
// report begin=0 instead of 65534); this instead places the ring's seam at
// the single largest circular gap between consecutive values — the same
// pivot-search idea spec.md §4.4 describes — since the live window is
// always far smaller than the MaxTxCount modulus.
func chooseRingOrder(txNrs []uint32) (begin, end uint32) {
	if len(txNrs) == 0 {
		return 0, 0
	}
	sorted := append([]uint32(nil), txNrs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	if len(sorted) == 1 {
		return sorted[0], (sorted[0] + 1) % constants.MaxTxCount
	}

	n := len(sorted)
	seam := n - 1
	maxGap := uint32(0)
	for i := 0; i < n; i++ {
		next := sorted[(i+1)%n]
		gap := (next + constants.MaxTxCount - sorted[i]) % constants.MaxTxCount
		if gap > maxGap {
			maxGap = gap
			seam = i
		}
	}
	begin = sorted[(seam+1)%n]
	end = (sorted[seam] + 1) % constants.MaxTxCount
	return begin, end
}

func parseConnectorFromSlotName(name string) (uint32, bool) {
	// tx-<connectorId>-<slot>.json
	parts := strings.Split(strings.TrimSuffix(name, ".json"), "-")
	if len(parts) != 3 {
		return 0, false
	}
	n, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, false
	}
	return uint32(n), true
}

// Begin allocates a fresh Transaction for connectorID, assigning the next
// txNr (wrapping at constants.MaxTxCount) and persisting it immediately so
// a reboot mid-transaction still has a record to recover, albeit one
// without StopSync set.
func (s *Store) Begin(connectorID uint32, startBootNr uint16) (*Transaction, error) {
	s.mu.Lock()
	txNr := s.txNrEnd[connectorID]
	s.txNrEnd[connectorID] = (txNr + 1) % constants.MaxTxCount
	s.mu.Unlock()

	tx := &Transaction{
		ConnectorID: connectorID,
		TxNr:        txNr,
		StartBootNr: startBootNr,
		Active:      true,
	}
	if err := s.Save(tx); err != nil {
		return nil, err
	}
	return tx, nil
}

// Save persists tx into its ring slot, overwriting whatever was there
// (§3's unique-txNr-per-connector invariant means the evicted record, if
// any, is always strictly older). If the slot was occupied by a different,
// still-undiscarded txNr, that record is evicted from memory to keep at
// most recordSize live entries; if the evicted txNr was the connector's
// current txNrBegin, begin is forced forward past it.
func (s *Store) Save(tx *Transaction) error {
	slot := tx.TxNr % s.recordSize
	name := slotFilename(tx.ConnectorID, slot)

	b, err := json.Marshal(tx.toWire())
	if err != nil {
		return fmt.Errorf("txstore: marshal: %w", err)
	}

	f, err := s.fs.Open(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		return fmt.Errorf("txstore: open %s: %w", name, err)
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}

	s.mu.Lock()
	if s.records[tx.ConnectorID] == nil {
		s.records[tx.ConnectorID] = make(map[uint32]*Transaction)
	}
	if s.slotOccupant[tx.ConnectorID] == nil {
		s.slotOccupant[tx.ConnectorID] = make(map[uint32]uint32)
	}
	if occupant, ok := s.slotOccupant[tx.ConnectorID][slot]; ok && occupant != tx.TxNr {
		delete(s.records[tx.ConnectorID], occupant)
		if occupant == s.txNrBegin[tx.ConnectorID] {
			s.txNrBegin[tx.ConnectorID] = (occupant + 1) % constants.MaxTxCount
		}
	}
	s.slotOccupant[tx.ConnectorID][slot] = tx.TxNr
	s.records[tx.ConnectorID][tx.TxNr] = tx
	s.mu.Unlock()
	return nil
}

// Purge deletes every leading Completed record for connectorID, advancing
// txNrBegin past them, and returns the txNrs that were purged so the
// caller can clear their corresponding Meter Value Store entries (§4.4:
// "Any purge advances txNrBegin and txNrFront by deleting completed
// leading records"). Stops at the first record that doesn't exist or
// isn't yet Completed.
func (s *Store) Purge(connectorID uint32) []uint32 {
	s.mu.Lock()
	defer s.mu.Unlock()

	var purged []uint32
	begin := s.txNrBegin[connectorID]
	for {
		tx, ok := s.records[connectorID][begin]
		if !ok || !tx.Completed() {
			break
		}
		name := slotFilename(connectorID, begin%s.recordSize)
		if s.fs != nil {
			_ = s.fs.Remove(name)
		}
		delete(s.records[connectorID], begin)
		delete(s.slotOccupant[connectorID], begin%s.recordSize)
		purged = append(purged, begin)
		begin = (begin + 1) % constants.MaxTxCount
	}
	s.txNrBegin[connectorID] = begin
	return purged
}

// Front reports the first txNr for connectorID whose StartTx or StopTx
// sync is not yet confirmed — the oldest record a reboot must still drive
// to completion (§3 "txNrFront is the first record whose StartTx or
// StopTx is not yet confirmed").
func (s *Store) Front(connectorID uint32) (uint32, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	begin := s.txNrBegin[connectorID]
	end := s.txNrEnd[connectorID]
	for txNr := begin; txNr != end; txNr = (txNr + 1) % constants.MaxTxCount {
		tx, ok := s.records[connectorID][txNr]
		if !ok {
			continue
		}
		if !tx.StartSync.Confirmed || !tx.StopSync.Confirmed {
			return txNr, true
		}
	}
	return 0, false
}

// Get looks up a Transaction by (connectorID, txNr). Used by Requests
// restored from write-ahead payloads to re-attach to their Transaction via
// a handle rather than a pointer (spec.md §9's handle-pattern guidance).
func (s *Store) Get(connectorID, txNr uint32) (*Transaction, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	byTxNr, ok := s.records[connectorID]
	if !ok {
		return nil, false
	}
	tx, ok := byTxNr[txNr]
	return tx, ok
}

// Active returns the most recently begun Transaction for connectorID that
// hasn't been stopped, or nil if there isn't one. Recency is measured as
// circular distance back from txNrEnd (the next txNr to allocate) rather
// than raw numeric txNr, so the comparison stays correct across a
// constants.MaxTxCount wraparound; in practice at most one record is ever
// Active for a given connector, since Connector.BeginTransaction gates on
// that itself.
func (s *Store) Active(connectorID uint32) *Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	end := s.txNrEnd[connectorID]
	var best *Transaction
	var bestAge uint32
	for _, tx := range s.records[connectorID] {
		if !tx.Active {
			continue
		}
		age := (end + constants.MaxTxCount - 1 - tx.TxNr) % constants.MaxTxCount
		if best == nil || age < bestAge {
			best = tx
			bestAge = age
		}
	}
	return best
}

// All returns every retained Transaction for connectorID, across all ring
// slots, for diagnostics.
func (s *Store) All(connectorID uint32) []*Transaction {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]*Transaction, 0, len(s.records[connectorID]))
	for _, tx := range s.records[connectorID] {
		out = append(out, tx)
	}
	return out
}
