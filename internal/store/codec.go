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

package store

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/timepolicy"
)

// Store loads and saves the full set of event records.
type Store interface {
	// Load returns the persisted records, or an empty map when nothing was saved yet
	Load(ctx context.Context) (map[string]event.Record, error)
	// Save replaces the persisted records with records
	Save(ctx context.Context, records map[string]event.Record) error
}

// storedRecord is the wire form of event.Record
type storedRecord struct {
	GuildID     event.Snowflake  `json:"guild_id"`
	ChannelID   *event.Snowflake `json:"channel_id"`
	StartTime   *string          `json:"start_time,omitempty"`
	DeleteAfter *string          `json:"delete_after,omitempty"`
	EndTime     *string          `json:"end_time,omitempty"`
}

// Codec converts records to and from the persisted document.
type Codec struct {
	policy *timepolicy.Policy
}

// NewCodec returns a Codec that renders timestamps with policy.
func NewCodec(policy *timepolicy.Policy) *Codec {
	return &Codec{policy: policy}
}

// Encode renders records as an indented JSON document with sorted keys.
func (c *Codec) Encode(records map[string]event.Record) ([]byte, error) {
	doc := make(map[string]storedRecord, len(records))
	for id, rec := range records {
		stored := storedRecord{
			GuildID:     rec.GuildID,
			StartTime:   c.formatTimestamp(rec.StartTime),
			DeleteAfter: c.formatTimestamp(rec.DeleteAfter),
			EndTime:     c.formatTimestamp(rec.EndTime),
		}
		if rec.HasChannel() {
			channelID := rec.ChannelID
			stored.ChannelID = &channelID
		}
		doc[id] = stored
	}

	data, err := json.MarshalIndent(doc, "", "    ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode event state: %w", err)
	}
	return append(data, '\n'), nil
}

// Decode parses a document produced by Encode. An empty document yields an
// empty map. Timestamps that do not match the layout are kept as unparsed text.
func (c *Codec) Decode(data []byte) (map[string]event.Record, error) {
	records := make(map[string]event.Record)
	if len(bytes.TrimSpace(data)) == 0 {
		return records, nil
	}

	var doc map[string]storedRecord
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, err
	}

	for id, stored := range doc {
		rec := event.Record{
			ID:          id,
			GuildID:     stored.GuildID,
			StartTime:   c.parseTimestamp(stored.StartTime),
			DeleteAfter: c.parseTimestamp(stored.DeleteAfter),
			EndTime:     c.parseTimestamp(stored.EndTime),
		}
		if stored.ChannelID != nil {
			rec.ChannelID = *stored.ChannelID
		}
		records[id] = rec
	}
	return records, nil
}

func (c *Codec) formatTimestamp(ts event.Timestamp) *string {
	if ts.IsZero() {
		return nil
	}
	s := ts.Raw()
	if t, ok := ts.Time(); ok {
		s = c.policy.Format(t)
	}
	return &s
}

func (c *Codec) parseTimestamp(s *string) event.Timestamp {
	if s == nil {
		return event.Timestamp{}
	}
	t, err := c.policy.Parse(*s)
	if err != nil {
		return event.Unparsed(*s)
	}
	return event.At(t)
}
