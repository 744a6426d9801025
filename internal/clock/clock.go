// Package clock implements the engine's wall-clock/uptime provider (C2,
// SPEC_FULL.md §3 "Clock state"). Grounded in original_source's OcppTime,
// which tracks a base OCPP time plus the system clock reading taken at the
// moment that base was set, and in the teacher's pattern of a small struct
// with an explicit constructor and no hidden global state.
package clock

import (
	"fmt"
	"time"

	"github.com/microocpp-go/engine/internal/interfaces"
)

// Timestamp is re-exported so callers only need to import this package.
type Timestamp = interfaces.RawTimestamp

// ISO8601Layout is the wire format OCPP-J timestamps use.
const ISO8601Layout = "2006-01-02T15:04:05Z"

// anchor is the mapping between wall-clock time and the monotonic uptime
// counter, set by a successful BootNotification and replaced by every
// later SetTime call (e.g. each Heartbeat reply).
type anchor struct {
	unixAnchor     int64 // seconds, wall-clock time at the moment of anchoring
	uptimeAtAnchor int64 // seconds, uptime counter at that same moment
	bootNr         uint16
	set            bool
}

// Clock implements interfaces.Clock against a real or injected time source.
// nowFn defaults to time.Now's monotonic reading but tests inject a
// deterministic fake (see clock_test.go), matching the teacher's pattern of
// accepting a Config with overridable fields rather than hardcoding
// time.Now calls throughout.
type Clock struct {
	bootNr   uint16
	bootTime time.Time // process start, used to derive uptime
	nowFn    func() time.Time
	anchor   anchor
}

// Config configures a new Clock.
type Config struct {
	BootNr uint16
	// NowFn overrides the wall-clock source; nil uses time.Now.
	NowFn func() time.Time
}

// New creates a Clock anchored to process start.
func New(config Config) *Clock {
	nowFn := config.NowFn
	if nowFn == nil {
		nowFn = time.Now
	}
	return &Clock{
		bootNr:   config.BootNr,
		bootTime: nowFn(),
		nowFn:    nowFn,
	}
}

// Uptime returns seconds elapsed since this Clock was constructed, tagged
// as an unanchored Timestamp.
func (c *Clock) Uptime() Timestamp {
	elapsed := int64(c.nowFn().Sub(c.bootTime).Seconds())
	return Timestamp{Seconds: elapsed, Anchored: false}
}

// Now returns the current wall-clock time if anchored, otherwise falls back
// to Uptime (§2's "Wall-clock with uptime fallback").
func (c *Clock) Now() Timestamp {
	if !c.anchor.set {
		return c.Uptime()
	}
	uptimeNow := int64(c.nowFn().Sub(c.bootTime).Seconds())
	elapsedSinceAnchor := uptimeNow - c.anchor.uptimeAtAnchor
	return Timestamp{Seconds: c.anchor.unixAnchor + elapsedSinceAnchor, Anchored: true}
}

// SetTime anchors wall-clock time to the current uptime reading from an
// ISO-8601 string (e.g. the currentTime field of an Accepted
// BootNotification response). Returns false if iso doesn't parse.
func (c *Clock) SetTime(iso string) bool {
	t, err := ParseISO8601(iso)
	if err != nil {
		return false
	}
	c.anchor = anchor{
		unixAnchor:     t.Unix(),
		uptimeAtAnchor: int64(c.nowFn().Sub(c.bootTime).Seconds()),
		bootNr:         c.bootNr,
		set:            true,
	}
	return true
}

// IsAnchored reports whether a BootNotification has set wall-clock time.
func (c *Clock) IsAnchored() bool { return c.anchor.set }

// Delta returns b-a in seconds. Both a and b must carry the same Anchored
// tag: a pair of wall-clock timestamps is defined only once SetTime has
// anchored the clock, a pair of uptime timestamps is always defined, and a
// pair mixing the two kinds is never defined.
func (c *Clock) Delta(a, b Timestamp) (int64, bool) {
	if a.Anchored != b.Anchored {
		return 0, false
	}
	if a.Anchored && !c.anchor.set {
		return 0, false
	}
	return b.Seconds - a.Seconds, true
}

// AdjustPrebootTimestamp rebases a Timestamp recorded before the clock was
// anchored (while still on the same boot) onto wall-clock time, per §4.6
// ("If startTimestamp precedes clock epoch and same bootNr, rebase via
// clock.adjustPrebootTimestamp").
func (c *Clock) AdjustPrebootTimestamp(ts Timestamp, recordedBootNr uint16) Timestamp {
	if ts.Anchored || recordedBootNr != c.bootNr || !c.anchor.set {
		return ts
	}
	return Timestamp{Seconds: c.anchor.unixAnchor + (ts.Seconds - c.anchor.uptimeAtAnchor), Anchored: true}
}

// BootNr returns the boot number this Clock was constructed with.
func (c *Clock) BootNr() uint16 { return c.bootNr }

// ToJSONString renders an anchored Timestamp as an OCPP-J ISO-8601 string.
// Unanchored timestamps have no wall-clock meaning and render as the
// Unix epoch plus the uptime seconds, matching OcppTime's
// createTimestamp(getOcppTimeScalar()) fallback behavior.
func ToJSONString(ts Timestamp) string {
	return time.Unix(ts.Seconds, 0).UTC().Format(ISO8601Layout)
}

// ParseISO8601 parses an OCPP-J timestamp. The exact ISO8601Layout form is
// tried first; failing that, any RFC 3339 string (fractional seconds or a
// numeric zone offset included) is accepted and converted to UTC. Anything
// else is an error.
func ParseISO8601(s string) (time.Time, error) {
	if t, err := time.Parse(ISO8601Layout, s); err == nil {
		return t, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("clock: invalid timestamp %q", s)
}
