package clock

import (
	"testing"
	"time"
)

func newFakeClock(bootNr uint16) (*Clock, *time.Time) {
	now := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	c := New(Config{BootNr: bootNr, NowFn: func() time.Time { return now }})
	return c, &now
}

func TestUptimeBeforeAnchor(t *testing.T) {
	c, now := newFakeClock(1)
	*now = now.Add(5 * time.Second)

	ts := c.Now()
	if ts.Anchored {
		t.Fatalf("expected unanchored timestamp before SetTime")
	}
	if ts.Seconds != 5 {
		t.Fatalf("expected 5s uptime, got %d", ts.Seconds)
	}
}

func TestSetTimeAnchorsAndAdvances(t *testing.T) {
	c, now := newFakeClock(1)

	if ok := c.SetTime("2020-10-01T20:53:32Z"); !ok {
		t.Fatalf("SetTime failed to parse a valid ISO-8601 string")
	}
	if !c.IsAnchored() {
		t.Fatalf("expected IsAnchored() true after SetTime")
	}

	first := c.Now()
	if !first.Anchored {
		t.Fatalf("expected anchored timestamp after SetTime")
	}

	*now = now.Add(10 * time.Second)
	second := c.Now()
	delta, ok := c.Delta(first, second)
	if !ok {
		t.Fatalf("expected Delta to succeed once anchored")
	}
	if delta != 10 {
		t.Fatalf("expected 10s delta, got %d", delta)
	}
}

func TestSetTimeTrailingMillisAndZ(t *testing.T) {
	c, _ := newFakeClock(1)
	if ok := c.SetTime("2020-10-01T20:53:32.486Z"); !ok {
		t.Fatalf("expected SetTime to tolerate fractional seconds")
	}
}

func TestSetTimeInvalid(t *testing.T) {
	c, _ := newFakeClock(1)
	if ok := c.SetTime("not-a-timestamp"); ok {
		t.Fatalf("expected SetTime to reject an invalid string")
	}
	if c.IsAnchored() {
		t.Fatalf("expected clock to remain unanchored after a failed SetTime")
	}
}

func TestDeltaMismatchedAnchoring(t *testing.T) {
	c, _ := newFakeClock(1)
	a := Timestamp{Seconds: 1, Anchored: false}
	b := Timestamp{Seconds: 2, Anchored: true}
	if _, ok := c.Delta(a, b); ok {
		t.Fatalf("expected Delta to fail across mismatched anchoring tags")
	}
}

func TestAdjustPrebootTimestamp(t *testing.T) {
	c, now := newFakeClock(7)

	// Record an unanchored (preboot) timestamp at uptime=3s.
	*now = now.Add(3 * time.Second)
	preboot := c.Uptime()

	// Anchor at uptime=8s to 2020-10-01T20:53:32Z.
	*now = now.Add(5 * time.Second)
	c.SetTime("2020-10-01T20:53:32Z")

	adjusted := c.AdjustPrebootTimestamp(preboot, 7)
	if !adjusted.Anchored {
		t.Fatalf("expected rebased timestamp to be anchored")
	}
	// preboot was recorded 5s before the anchor point, so it should land 5s
	// before the anchor's wall-clock instant.
	anchorInstant, _ := ParseISO8601("2020-10-01T20:53:32Z")
	if adjusted.Seconds != anchorInstant.Unix()-5 {
		t.Fatalf("expected rebased timestamp 5s before anchor, got %d (want %d)", adjusted.Seconds, anchorInstant.Unix()-5)
	}
}

func TestAdjustPrebootTimestampDifferentBootNr(t *testing.T) {
	c, _ := newFakeClock(1)
	c.SetTime("2020-10-01T20:53:32Z")

	preboot := Timestamp{Seconds: 3, Anchored: false}
	adjusted := c.AdjustPrebootTimestamp(preboot, 99)
	if adjusted.Anchored {
		t.Fatalf("expected timestamp from a different boot to be left unanchored")
	}
}

func TestToJSONStringRoundTrip(t *testing.T) {
	const iso = "2020-10-01T20:53:32Z"
	t0, err := ParseISO8601(iso)
	if err != nil {
		t.Fatalf("ParseISO8601: %v", err)
	}
	out := ToJSONString(Timestamp{Seconds: t0.Unix(), Anchored: true})
	if out != iso {
		t.Fatalf("expected round-trip %q, got %q", iso, out)
	}
}

func TestBootNr(t *testing.T) {
	c, _ := newFakeClock(42)
	if c.BootNr() != 42 {
		t.Fatalf("expected BootNr 42, got %d", c.BootNr())
	}
}
