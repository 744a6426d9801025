// Package config implements the engine's typed key/value Configuration
// Store (C3). Each Configuration carries a type tag, a mutability class and
// a writeCounter; containers are grouped by filename and persisted through
// the Filesystem Adapter only when their aggregate writeCounter has changed
// since the last commit, mirroring the teacher's pattern of a small
// in-memory struct with an explicit, host-driven Commit step rather than a
// write-through-on-every-set store.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sort"
	"sync"

	"github.com/microocpp-go/engine/internal/interfaces"
	"github.com/microocpp-go/engine/internal/logging"
)

const (
	writeFlags = os.O_CREATE | os.O_WRONLY | os.O_TRUNC
	readFlags  = os.O_RDONLY
)

// ValueType tags which field of Value is significant, replacing the
// template-based Configuration<T> the original implementation used (spec.md
// §9's "sum-type Configuration instead of templates").
type ValueType int

const (
	TypeInt ValueType = iota
	TypeBool
	TypeString
)

// Mutability constrains who may change a Configuration's value.
type Mutability int

const (
	ReadWrite Mutability = iota
	ReadOnly
	WriteOnly
)

// Value is the sum-type payload a Configuration holds.
type Value struct {
	Type ValueType
	Int  int64
	Bool bool
	Str  string
}

func IntValue(v int64) Value    { return Value{Type: TypeInt, Int: v} }
func BoolValue(v bool) Value    { return Value{Type: TypeBool, Bool: v} }
func StringValue(v string) Value { return Value{Type: TypeString, Str: v} }

func (v Value) String() string {
	switch v.Type {
	case TypeInt:
		return fmt.Sprintf("%d", v.Int)
	case TypeBool:
		return fmt.Sprintf("%t", v.Bool)
	default:
		return v.Str
	}
}

// wireValue is Value's on-disk/JSON-marshaled shape.
type wireValue struct {
	Type int    `json:"type"`
	Int  int64  `json:"int,omitempty"`
	Bool bool   `json:"bool,omitempty"`
	Str  string `json:"str,omitempty"`
}

func (v Value) toWire() wireValue {
	return wireValue{Type: int(v.Type), Int: v.Int, Bool: v.Bool, Str: v.Str}
}

func (w wireValue) toValue() Value {
	return Value{Type: ValueType(w.Type), Int: w.Int, Bool: w.Bool, Str: w.Str}
}

// Configuration is a single named, typed, persisted setting.
type Configuration struct {
	Key            string
	Value          Value
	Mutability     Mutability
	RebootRequired bool
	// Filename groups this key with others for batched persistence;
	// VolatileFilename (the empty zero value) means never written to disk.
	Filename string

	writeCounter uint64
}

type wireConfiguration struct {
	Key            string    `json:"key"`
	Value          wireValue `json:"value"`
	Mutability     int       `json:"mutability"`
	RebootRequired bool      `json:"rebootRequired"`
	WriteCounter   uint64    `json:"writeCounter"`
}

// VolatileFilename marks a Configuration as never persisted.
const VolatileFilename = ""

// Store holds every registered Configuration and tracks which on-disk
// containers (grouped by Filename) need to be re-committed.
type Store struct {
	mu      sync.Mutex
	entries map[string]*Configuration
	fs      interfaces.FileSystem
	log     *logging.Logger

	// committed remembers each filename's writeCounter total as of the last
	// successful Commit, so Commit only rewrites containers that changed.
	committed map[string]uint64
}

// NewStore creates an empty Store backed by fs. fs may be nil for
// purely in-memory use (tests, or a host with no persistent storage).
func NewStore(fs interfaces.FileSystem) *Store {
	return &Store{
		entries:   make(map[string]*Configuration),
		committed: make(map[string]uint64),
		fs:        fs,
		log:       logging.Default().WithQueue(0),
	}
}

// Declare registers a Configuration if not already present, returning the
// existing entry otherwise (idempotent, matching keys.go's startup
// declaration pattern — components declare the keys they read without
// needing to know if another component already declared the same key).
func (s *Store) Declare(key string, value Value, mutability Mutability, rebootRequired bool, filename string) *Configuration {
	s.mu.Lock()
	defer s.mu.Unlock()
	if c, ok := s.entries[key]; ok {
		return c
	}
	c := &Configuration{
		Key:            key,
		Value:          value,
		Mutability:     mutability,
		RebootRequired: rebootRequired,
		Filename:       filename,
	}
	s.entries[key] = c
	return c
}

// Get returns the current value of key.
func (s *Store) Get(key string) (Value, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[key]
	if !ok {
		return Value{}, false
	}
	return c.Value, true
}

// Set updates key's value, rejecting the write if the Configuration is
// ReadOnly or the new value's type doesn't match the declared type. Every
// successful Set bumps the Configuration's writeCounter; Commit uses that to
// decide which containers need rewriting.
func (s *Store) Set(key string, value Value) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[key]
	if !ok {
		return fmt.Errorf("config: unknown key %q", key)
	}
	if c.Mutability == ReadOnly {
		return fmt.Errorf("config: key %q is read-only", key)
	}
	if c.Value.Type != value.Type {
		return fmt.Errorf("config: key %q expects type %v, got %v", key, c.Value.Type, value.Type)
	}
	c.Value = value
	c.writeCounter++
	return nil
}

// RebootRequired reports whether key's declaration demands a restart before
// the new value takes effect.
func (s *Store) RebootRequired(key string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c, ok := s.entries[key]
	return ok && c.RebootRequired
}

// Commit persists every container (grouped by Filename) whose aggregate
// writeCounter has changed since the last Commit. A no-op if fs is nil.
func (s *Store) Commit() error {
	if s.fs == nil {
		return nil
	}
	s.mu.Lock()
	byFile := make(map[string][]*Configuration)
	for _, c := range s.entries {
		if c.Filename == VolatileFilename {
			continue
		}
		byFile[c.Filename] = append(byFile[c.Filename], c)
	}
	s.mu.Unlock()

	for filename, group := range byFile {
		var total uint64
		for _, c := range group {
			total += c.writeCounter
		}
		if prev, ok := s.committed[filename]; ok && prev == total {
			continue
		}
		if err := s.writeContainer(filename, group); err != nil {
			return fmt.Errorf("config: commit %s: %w", filename, err)
		}
		s.committed[filename] = total
	}
	return nil
}

func (s *Store) writeContainer(filename string, group []*Configuration) error {
	sort.Slice(group, func(i, j int) bool { return group[i].Key < group[j].Key })

	wire := make([]wireConfiguration, 0, len(group))
	for _, c := range group {
		wire = append(wire, wireConfiguration{
			Key:            c.Key,
			Value:          c.Value.toWire(),
			Mutability:     int(c.Mutability),
			RebootRequired: c.RebootRequired,
			WriteCounter:   c.writeCounter,
		})
	}
	b, err := json.Marshal(wire)
	if err != nil {
		return err
	}

	f, err := s.fs.Open(filename, writeFlags)
	if err != nil {
		return err
	}
	defer f.Close()
	if _, err := f.Write(b); err != nil {
		return err
	}
	if err := f.Sync(); err != nil {
		return err
	}
	s.log.Debugf("config: committed %d keys to %s", len(group), filename)
	return nil
}

// Load reads a previously committed container back and applies its values
// onto already-Declared entries. Keys present in the file but not declared
// are ignored (a newer persisted file from a config schema this binary no
// longer knows); keys declared but absent from the file keep their default.
// A missing file is not an error — every key simply keeps its Declare-time
// default, the same first-boot tolerance boot.Service.Load applies to
// bootstats.jsn.
func (s *Store) Load(filename string) error {
	if s.fs == nil {
		return nil
	}
	f, err := s.fs.Open(filename, readFlags)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return err
	}
	defer f.Close()

	var wire []wireConfiguration
	if err := json.NewDecoder(f).Decode(&wire); err != nil {
		return fmt.Errorf("config: load %s: %w", filename, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	var total uint64
	for _, w := range wire {
		total += w.WriteCounter
		c, ok := s.entries[w.Key]
		if !ok {
			continue
		}
		c.Value = w.Value.toValue()
		c.writeCounter = w.WriteCounter
	}
	s.committed[filename] = total
	return nil
}

// Keys returns every registered key, sorted, for diagnostics/GetConfiguration.
func (s *Store) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.entries))
	for k := range s.entries {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
