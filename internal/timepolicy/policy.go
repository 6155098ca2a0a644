// Package timepolicy is the canonical time source for event tracking.
//
// All instants handled by the tracker come from a Policy: they are read from
// a clock, moved into a single configured zone and truncated to whole seconds,
// which is the resolution of the stored display layout.
package timepolicy

import (
	"fmt"
	"time"
	_ "time/tzdata" // zone database for hosts without one

	"k8s.io/utils/clock"
)

const (
	// Layout is the stored and displayed form: MM/DD/YYYY hh:mm:ss AM/PM
	Layout = "01/02/2006 03:04:05 PM"

	// DefaultZone is the zone events are normalized to unless configured otherwise
	DefaultZone = "America/New_York"
)

// Policy converts instants to and from the fixed display layout in one zone.
type Policy struct {
	clock    clock.PassiveClock
	location *time.Location
}

// New returns a Policy reading from c and normalizing to loc.
// A nil clock uses the real clock; a nil location uses UTC.
func New(c clock.PassiveClock, loc *time.Location) *Policy {
	if c == nil {
		c = clock.RealClock{}
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Policy{clock: c, location: loc}
}

// Load returns a Policy for the named IANA zone.
func Load(c clock.PassiveClock, zone string) (*Policy, error) {
	if zone == "" {
		zone = DefaultZone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("failed to load timezone %q: %w", zone, err)
	}
	return New(c, loc), nil
}

// Location returns the configured zone.
func (p *Policy) Location() *time.Location {
	return p.location
}

// Now returns the current instant, normalized.
func (p *Policy) Now() time.Time {
	return p.Normalize(p.clock.Now())
}

// Normalize moves t into the configured zone at whole-second resolution.
func (p *Policy) Normalize(t time.Time) time.Time {
	return t.In(p.location).Truncate(time.Second)
}

// Format renders t in the configured zone using Layout.
func (p *Policy) Format(t time.Time) string {
	return t.In(p.location).Format(Layout)
}

// Parse reads a Layout string as wall-clock time in the configured zone.
func (p *Policy) Parse(s string) (time.Time, error) {
	t, err := time.ParseInLocation(Layout, s, p.location)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t, nil
}
