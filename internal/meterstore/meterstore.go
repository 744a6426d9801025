// Package meterstore implements the Meter Value Store (C10): sampled
// meter readings keyed by (evseId, txNr, mvIndex), retained up to
// constants.DefaultMaxStopTxDataLen per transaction with a
// newest-overwrites-last eviction policy once that cap is reached (§3/§4.5
// — once full, a fresh sample replaces the most recent slot rather than
// rotating out the oldest, so a StopTransaction's transactionData keeps
// its earliest diagnostic samples instead of losing them to a long
// session). Grounded in the teacher's internal/queue/pool.go buffer-reuse
// pattern, adapted from size-bucketed I/O buffers down to one small pool
// sized for meter-value JSON encoding, and in internal/txstore's
// Filesystem-backed ring-slot persistence for the on-disk side (§4.5/§6:
// persisted to sd-<evseId>-<txNr>-<mvIndex>.json).
package meterstore

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

// Context tags why a MeterValueRecord was sampled.
type Context string

const (
	ContextTransactionBegin Context = "Transaction.Begin"
	ContextSamplePeriodic   Context = "Sample.Periodic"
	ContextSampleClock      Context = "Sample.Clock"
	ContextTransactionEnd   Context = "Transaction.End"
	ContextTrigger          Context = "Trigger"
	ContextOther            Context = "Other"
)

// SampledValue is one measurand reading within a MeterValueRecord.
type SampledValue struct {
	Value     string
	Measurand string
	Phase     string
	Location  string
	Unit      string
	Format    string
	Context   Context
}

// MeterValueRecord is one sampled reading, immutable after it's appended
// to a Store (§3 "Immutable after write").
type MeterValueRecord struct {
	Timestamp     interfaces.Timestamp
	Context       Context
	SampledValues []SampledValue
}

type wireSampledValue struct {
	Value     string `json:"value"`
	Measurand string `json:"measurand,omitempty"`
	Phase     string `json:"phase,omitempty"`
	Location  string `json:"location,omitempty"`
	Unit      string `json:"unit,omitempty"`
	Format    string `json:"format,omitempty"`
	Context   string `json:"context,omitempty"`
}

type wireMeterValueRecord struct {
	Seconds       int64               `json:"seconds"`
	Anchored      bool                `json:"anchored"`
	Context       string              `json:"context"`
	SampledValues []wireSampledValue  `json:"sampledValues"`
}

func (r MeterValueRecord) toWire() wireMeterValueRecord {
	sv := make([]wireSampledValue, 0, len(r.SampledValues))
	for _, v := range r.SampledValues {
		sv = append(sv, wireSampledValue{
			Value: v.Value, Measurand: v.Measurand, Phase: v.Phase,
			Location: v.Location, Unit: v.Unit, Format: v.Format,
			Context: string(v.Context),
		})
	}
	return wireMeterValueRecord{
		Seconds:       r.Timestamp.Seconds,
		Anchored:      r.Timestamp.Anchored,
		Context:       string(r.Context),
		SampledValues: sv,
	}
}

func (w wireMeterValueRecord) toRecord() MeterValueRecord {
	sv := make([]SampledValue, 0, len(w.SampledValues))
	for _, v := range w.SampledValues {
		sv = append(sv, SampledValue{
			Value: v.Value, Measurand: v.Measurand, Phase: v.Phase,
			Location: v.Location, Unit: v.Unit, Format: v.Format,
			Context: Context(v.Context),
		})
	}
	return MeterValueRecord{
		Timestamp:     interfaces.RawTimestamp{Seconds: w.Seconds, Anchored: w.Anchored},
		Context:       Context(w.Context),
		SampledValues: sv,
	}
}

// bufPool reuses small byte slices for encoding SampledValue text fields,
// the same size-bucketed-pool idea the teacher's queue.BufferPool applies
// to I/O buffers, collapsed to a single bucket since meter-value payloads
// are a few hundred bytes at most.
var bufPool = sync.Pool{New: func() any { b := make([]byte, 0, 256); return &b }}

// GetBuffer returns a pooled scratch buffer. Callers must call PutBuffer
// when done.
func GetBuffer() []byte {
	return (*bufPool.Get().(*[]byte))[:0]
}

// PutBuffer returns buf to the pool.
func PutBuffer(buf []byte) {
	bufPool.Put(&buf)
}

// txKey identifies one transaction's ring of samples.
type txKey struct {
	evseID uint32
	txNr   uint32
}

// Store holds a ring of MeterValueRecords per (evseId, txNr), mirrored to
// disk when backed by a Filesystem Adapter so a reboot mid-transaction
// doesn't lose samples already destined for the next StopTransaction's
// transactionData field.
type Store struct {
	fs      interfaces.FileSystem
	log     *logging.Logger
	mu      sync.Mutex
	maxLen  int
	records map[txKey][]MeterValueRecord
}

// NewStore creates an in-memory-only Store with the default retention cap,
// for tests and hosts with no durable storage.
func NewStore() *Store {
	return NewStoreWithFS(nil)
}

// NewStoreWithFS creates a Store that mirrors every Append/Clear to fs.
// fs may be nil, equivalent to NewStore.
func NewStoreWithFS(fs interfaces.FileSystem) *Store {
	return &Store{
		fs:      fs,
		log:     logging.Default(),
		maxLen:  constants.DefaultMaxStopTxDataLen,
		records: make(map[txKey][]MeterValueRecord),
	}
}

func slotFilename(evseID, txNr uint32, mvIndex int) string {
	return fmt.Sprintf("sd-%04d-%04d-%02d.json", evseID, txNr, mvIndex)
}

// Append adds rec to (evseID, txNr)'s ring. Once the ring holds maxLen
// records, subsequent Appends overwrite the last (most recent) slot
// instead of evicting the first. The written (or overwritten) slot index
// is mirrored to disk in place, matching §4.9's "overwrite-in-place with
// atomic rename semantics" design note — the Filesystem Adapter's
// O_TRUNC write stands in for the rename since it provides the same
// whole-file replacement.
func (s *Store) Append(evseID, txNr uint32, rec MeterValueRecord) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := txKey{evseID, txNr}
	records := s.records[key]
	var index int
	if len(records) < s.maxLen {
		index = len(records)
		s.records[key] = append(records, rec)
	} else {
		index = len(records) - 1
		records[index] = rec
	}
	s.persist(evseID, txNr, index, rec)
}

func (s *Store) persist(evseID, txNr uint32, index int, rec MeterValueRecord) {
	if s.fs == nil {
		return
	}
	b, err := json.Marshal(rec.toWire())
	if err != nil {
		s.log.Warnf("meterstore: marshal (%d,%d,%d): %v", evseID, txNr, index, err)
		return
	}
	name := slotFilename(evseID, txNr, index)
	f, err := s.fs.Open(name, os.O_CREATE|os.O_WRONLY|os.O_TRUNC)
	if err != nil {
		s.log.Warnf("meterstore: open %s: %v", name, err)
		return
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		s.log.Warnf("meterstore: write %s: %v", name, err)
		return
	}
	if err := f.Sync(); err != nil {
		s.log.Warnf("meterstore: sync %s: %v", name, err)
	}
}

// Recover rebuilds in-memory rings from every persisted sd- file. Called
// once at startup, after internal/txstore.Store.Recover, so a reboot
// mid-transaction still has its sampled values available for the next
// StopTransaction attempt. Unreadable slot files are skipped, treating a
// torn write the same way txstore.Store.Recover does: as if the file were
// never written.
func (s *Store) Recover() error {
	if s.fs == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	type found struct {
		key   txKey
		index int
		rec   MeterValueRecord
	}
	var all []found

	err := s.fs.Walk("sd-", func(name string) error {
		evseID, txNr, index, ok := parseSlotName(name)
		if !ok {
			return nil
		}
		f, err := s.fs.Open(name, os.O_RDONLY)
		if err != nil {
			return nil
		}
		defer f.Close()
		var wire wireMeterValueRecord
		if err := json.NewDecoder(f).Decode(&wire); err != nil {
			s.log.Warnf("meterstore: discarding unreadable slot %s: %v", name, err)
			return nil
		}
		all = append(all, found{key: txKey{evseID, txNr}, index: index, rec: wire.toRecord()})
		return nil
	})
	if err != nil {
		return err
	}

	sort.Slice(all, func(i, j int) bool { return all[i].index < all[j].index })
	for _, f := range all {
		records := s.records[f.key]
		for len(records) <= f.index && len(records) < s.maxLen {
			records = append(records, MeterValueRecord{})
		}
		if f.index < len(records) {
			records[f.index] = f.rec
		}
		s.records[f.key] = records
	}
	return nil
}

func parseSlotName(name string) (evseID, txNr uint32, mvIndex int, ok bool) {
	parts := strings.Split(strings.TrimSuffix(name, ".json"), "-")
	if len(parts) != 4 {
		return 0, 0, 0, false
	}
	e, err := strconv.ParseUint(parts[1], 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	t, err := strconv.ParseUint(parts[2], 10, 32)
	if err != nil {
		return 0, 0, 0, false
	}
	i, err := strconv.Atoi(parts[3])
	if err != nil {
		return 0, 0, 0, false
	}
	return uint32(e), uint32(t), i, true
}

// All returns a copy of every retained record for (evseID, txNr), oldest
// first.
func (s *Store) All(evseID, txNr uint32) []MeterValueRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	records := s.records[txKey{evseID, txNr}]
	out := make([]MeterValueRecord, len(records))
	copy(out, records)
	return out
}

// Len reports how many records (evseID, txNr) currently holds.
func (s *Store) Len(evseID, txNr uint32) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records[txKey{evseID, txNr}])
}

// Clear discards every record for (evseID, txNr) and deletes its sd-
// files, called once a transaction's StopTransaction has been confirmed
// and purged (§4.5: "On transaction purge, all sd files for its txNr are
// deleted").
func (s *Store) Clear(evseID, txNr uint32) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := txKey{evseID, txNr}
	n := len(s.records[key])
	delete(s.records, key)
	if s.fs == nil {
		return
	}
	for i := 0; i < n; i++ {
		_ = s.fs.Remove(slotFilename(evseID, txNr, i))
	}
}
