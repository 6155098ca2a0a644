/*
Copyright (c) 2025 Mike Lane

Permission is hereby granted, free of charge, to any person obtaining a copy
of this software and associated documentation files (the "Software"), to deal
in the Software without restriction, including without limitation the rights
to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
copies of the Software, and to permit persons to whom the Software is
furnished to do so, subject to the following conditions:

The above copyright notice and this permission notice shall be included in all
copies or substantial portions of the Software.

THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
SOFTWARE.
*/

package event

import (
	"fmt"
	"strconv"
	"time"
)

// Snowflake is a platform identifier for a guild or a channel.
// The zero value means "not set".
type Snowflake uint64

// ParseSnowflake parses the decimal string form used by the platform API.
func ParseSnowflake(s string) (Snowflake, error) {
	if s == "" {
		return 0, nil
	}
	v, err := strconv.ParseUint(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid snowflake %q: %w", s, err)
	}
	return Snowflake(v), nil
}

// String returns the decimal form, or "" for the zero value.
func (s Snowflake) String() string {
	if s == 0 {
		return ""
	}
	return strconv.FormatUint(uint64(s), 10)
}

// IsZero reports whether the identifier is unset.
func (s Snowflake) IsZero() bool {
	return s == 0
}

// Status is the lifecycle status of a scheduled event. The numeric values
// match the platform's wire values.
type Status int

const (
	// StatusUnknown is used when no prior status was observed
	StatusUnknown Status = 0
	// StatusScheduled indicates the event has not started yet
	StatusScheduled Status = 1
	// StatusActive indicates the event is in progress
	StatusActive Status = 2
	// StatusCompleted indicates the event has ended
	StatusCompleted Status = 3
	// StatusCanceled indicates the event was canceled before it started
	StatusCanceled Status = 4
)

func (s Status) String() string {
	switch s {
	case StatusScheduled:
		return "scheduled"
	case StatusActive:
		return "active"
	case StatusCompleted:
		return "completed"
	case StatusCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// ScheduledEvent is the platform-independent view of a scheduled event
// notification.
type ScheduledEvent struct {
	ID        string
	GuildID   Snowflake
	Name      string
	StartTime time.Time
	EndTime   *time.Time
	Status    Status
}

// Timestamp is a stored instant.
//
// A Timestamp decoded from a string that does not match the store layout keeps
// the original text instead of an instant, so the record can be written back
// unchanged and retried later.
type Timestamp struct {
	t   time.Time
	raw string
}

// At returns a Timestamp for the given instant.
func At(t time.Time) Timestamp {
	return Timestamp{t: t}
}

// Unparsed returns a Timestamp that only carries its original text.
func Unparsed(raw string) Timestamp {
	return Timestamp{raw: raw}
}

// Time returns the instant and true, or the zero time and false when the
// timestamp is absent or could not be parsed.
func (ts Timestamp) Time() (time.Time, bool) {
	if ts.t.IsZero() {
		return time.Time{}, false
	}
	return ts.t, true
}

// Raw returns the unparsed text, if any.
func (ts Timestamp) Raw() string {
	return ts.raw
}

// IsZero reports whether the timestamp is absent.
func (ts Timestamp) IsZero() bool {
	return ts.t.IsZero() && ts.raw == ""
}

// Valid reports whether the timestamp holds an instant.
func (ts Timestamp) Valid() bool {
	return !ts.t.IsZero()
}

// Equal reports whether two timestamps hold the same instant or the same raw text.
func (ts Timestamp) Equal(other Timestamp) bool {
	return ts.t.Equal(other.t) && ts.raw == other.raw
}

// Record is the persisted state of one tracked event.
type Record struct {
	// ID is the store key: a scheduled event id or a command message id
	ID string
	// GuildID is the owning guild
	GuildID Snowflake
	// ChannelID is the provisioned channel, zero until provisioning succeeds
	ChannelID Snowflake
	// StartTime is when the event started (or is scheduled to start)
	StartTime Timestamp
	// DeleteAfter is the deadline at or after which the channel is deleted
	DeleteAfter Timestamp
	// EndTime is the scheduled end, when the platform supplied one
	EndTime Timestamp
}

// HasChannel reports whether a channel has been provisioned for the record.
func (r Record) HasChannel() bool {
	return !r.ChannelID.IsZero()
}

// Equal reports whether two records hold identical state.
func (r Record) Equal(other Record) bool {
	return r.ID == other.ID &&
		r.GuildID == other.GuildID &&
		r.ChannelID == other.ChannelID &&
		r.StartTime.Equal(other.StartTime) &&
		r.DeleteAfter.Equal(other.DeleteAfter) &&
		r.EndTime.Equal(other.EndTime)
}
