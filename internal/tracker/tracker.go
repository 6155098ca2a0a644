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

package tracker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"k8s.io/apimachinery/pkg/util/sets"
	"k8s.io/utils/keymutex"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/provision"
	"github.com/mikelane/eventkeeper/internal/store"
	"github.com/mikelane/eventkeeper/internal/timepolicy"
)

const (
	// DefaultRetention is how long a channel is kept after its event starts or completes
	DefaultRetention = 24 * time.Hour
	// DefaultLookahead is how close to its start an event is provisioned on creation
	DefaultLookahead = 5 * time.Minute
)

// Options tunes a Tracker. Zero values select the defaults.
type Options struct {
	Retention    time.Duration
	Lookahead    time.Duration
	CategoryName string
}

// Tracker reconciles event notifications with persisted records and enforces
// channel deletion deadlines.
type Tracker struct {
	store       store.Store
	provisioner provision.Provisioner
	policy      *timepolicy.Policy

	retention time.Duration
	lookahead time.Duration
	category  string

	keys keymutex.KeyMutex

	mu      sync.Mutex
	records map[string]event.Record

	sweepMu sync.Mutex
}

// New returns a Tracker with an empty record set. Call Load to restore
// persisted state before serving notifications.
//
// Parameters:
//   - st: Store the record mapping is persisted to after every change
//   - p: Provisioner creating and deleting event channels
//   - policy: Time policy supplying now and the stored time zone
//   - opts: Retention, lookahead and category overrides; zero values select defaults
//
// Returns a Tracker ready to Load.
func New(st store.Store, p provision.Provisioner, policy *timepolicy.Policy, opts Options) *Tracker {
	if opts.Retention <= 0 {
		opts.Retention = DefaultRetention
	}
	if opts.Lookahead <= 0 {
		opts.Lookahead = DefaultLookahead
	}
	if opts.CategoryName == "" {
		opts.CategoryName = provision.CategoryName
	}

	return &Tracker{
		store:       st,
		provisioner: p,
		policy:      policy,
		retention:   opts.Retention,
		lookahead:   opts.Lookahead,
		category:    opts.CategoryName,
		keys:        keymutex.NewHashed(0),
		records:     make(map[string]event.Record),
	}
}

// Load replaces the in-memory records with the persisted ones. A
// *event.CorruptStateError is returned unchanged so callers can refuse to start.
func (t *Tracker) Load(ctx context.Context) error {
	records, err := t.store.Load(ctx)
	if err != nil {
		return err
	}

	t.mu.Lock()
	t.records = records
	trackedRecords.Set(float64(len(records)))
	t.mu.Unlock()

	log.FromContext(ctx).Info("Loaded event records", "count", len(records))
	return nil
}

// Get returns the record for id.
func (t *Tracker) Get(id string) (event.Record, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	rec, ok := t.records[id]
	return rec, ok
}

// Records returns a copy of all tracked records.
func (t *Tracker) Records() map[string]event.Record {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[string]event.Record, len(t.records))
	for id, rec := range t.records {
		out[id] = rec
	}
	return out
}

// Len returns the number of tracked records.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.records)
}

// StartManual starts an event on demand: it provisions a channel before
// returning and records it under id with deleteAfter = now + retention.
// Repeating the call for an id that already has a channel returns the
// existing record.
func (t *Tracker) StartManual(ctx context.Context, id, name string, guildID event.Snowflake) (event.Record, error) {
	logger := log.FromContext(ctx).WithValues("event", id)
	unlock := t.lock(id)
	defer unlock()

	if rec, ok := t.Get(id); ok && rec.HasChannel() {
		logger.Info("Event already started", "channelID", rec.ChannelID)
		return rec, nil
	}

	now := t.policy.Now()
	rec := event.Record{
		ID:          id,
		GuildID:     guildID,
		StartTime:   event.At(now),
		DeleteAfter: event.At(now.Add(t.retention)),
	}

	provisionErr := t.provision(ctx, &rec, name)
	if err := t.put(ctx, rec); err != nil {
		return rec, errors.Join(provisionErr, err)
	}

	logger.Info("Started event", "name", name, "deleteAfter", t.policy.Format(now.Add(t.retention)))
	return rec, provisionErr
}

// OnCreate handles a newly scheduled event. The deletion deadline is start +
// retention. Events starting within the lookahead window (or already started)
// get their channel immediately, since they may run through their retention
// window before an activation notification arrives; later events are stored
// without a channel.
func (t *Tracker) OnCreate(ctx context.Context, ev event.ScheduledEvent) error {
	logger := log.FromContext(ctx).WithValues("event", ev.ID)
	if ev.GuildID.IsZero() {
		logger.V(1).Info("Ignoring scheduled event without guild")
		return nil
	}

	unlock := t.lock(ev.ID)
	defer unlock()

	start := t.policy.Normalize(ev.StartTime)
	now := t.policy.Now()

	rec, exists := t.Get(ev.ID)
	if !exists {
		rec = event.Record{
			ID:          ev.ID,
			GuildID:     ev.GuildID,
			StartTime:   event.At(start),
			DeleteAfter: event.At(start.Add(t.retention)),
		}
	} else {
		logger.V(1).Info("Scheduled event already tracked, updating in place")
	}
	if ev.EndTime != nil {
		rec.EndTime = event.At(t.policy.Normalize(*ev.EndTime))
	}

	var provisionErr error
	if start.Sub(now) <= t.lookahead && !rec.HasChannel() {
		provisionErr = t.provision(ctx, &rec, ev.Name)
	}

	if err := t.put(ctx, rec); err != nil {
		return errors.Join(provisionErr, err)
	}
	return provisionErr
}

// OnUpdate handles a status change. A transition into active provisions the
// channel; reaching completed resets the deletion deadline to now + retention.
func (t *Tracker) OnUpdate(ctx context.Context, before, after event.ScheduledEvent) error {
	if after.GuildID.IsZero() {
		log.FromContext(ctx).V(1).Info("Ignoring scheduled event without guild", "event", after.ID)
		return nil
	}

	unlock := t.lock(after.ID)
	defer unlock()

	var errs []error
	if before.Status != event.StatusActive && after.Status == event.StatusActive {
		errs = append(errs, t.activate(ctx, after))
	}
	if after.Status == event.StatusCompleted {
		errs = append(errs, t.resetDeadline(ctx, after.ID))
	}
	return errors.Join(errs...)
}

// Sweep deletes the channels of all due records and removes those records,
// then persists once. A due record is removed once deletion of its channel
// was attempted, whatever the outcome. Records whose timestamps cannot be
// evaluated are logged and kept unchanged. An overlapping call returns
// immediately without doing anything.
//
// Parameters:
//   - ctx: Context for cancellation and logging
//
// Returns an error only when the resulting mapping could not be persisted.
func (t *Tracker) Sweep(ctx context.Context) error {
	logger := log.FromContext(ctx)
	if !t.sweepMu.TryLock() {
		logger.V(1).Info("Sweep already in progress, skipping")
		return nil
	}
	defer t.sweepMu.Unlock()

	timer := prometheus.NewTimer(sweepDuration)
	defer timer.ObserveDuration()

	now := t.policy.Now()
	marked := make(map[string]event.Record)
	for _, id := range t.ids() {
		if rec, ok := t.sweepOne(ctx, id, now); ok {
			marked[id] = rec
		}
	}

	t.mu.Lock()
	removed := 0
	for id, rec := range marked {
		// A handler may have changed the record after it was evaluated; the
		// next pass sees the new state.
		if current, ok := t.records[id]; ok && current.Equal(rec) {
			delete(t.records, id)
			removed++
		}
	}
	err := t.saveLocked(ctx)
	t.mu.Unlock()

	if err != nil {
		sweepsTotal.WithLabelValues("error").Inc()
		return fmt.Errorf("failed to persist sweep: %w", err)
	}
	sweepsTotal.WithLabelValues("success").Inc()

	if removed > 0 {
		logger.Info("Removed expired events", "removed", removed, "remaining", t.Len())
	}
	return nil
}

func (t *Tracker) sweepOne(ctx context.Context, id string, now time.Time) (event.Record, bool) {
	logger := log.FromContext(ctx).WithValues("event", id)
	unlock := t.lock(id)
	defer unlock()

	rec, ok := t.Get(id)
	if !ok {
		return event.Record{}, false
	}

	due, err := t.due(rec, now)
	if err != nil {
		malformedRecords.Inc()
		logger.Error(err, "Skipping record with malformed timestamp")
	}
	if !due {
		return event.Record{}, false
	}

	if rec.HasChannel() {
		err := t.provisioner.DeleteChannel(ctx, rec.GuildID, rec.ChannelID)
		switch {
		case err == nil:
			channelsDeleted.Inc()
			logger.Info("Deleted event channel", "channelID", rec.ChannelID)
		case errors.Is(err, provision.ErrNotFound):
			logger.Info("Event channel no longer exists", "channelID", rec.ChannelID)
		case errors.Is(err, provision.ErrForbidden):
			logger.Info("No access to event channel anymore, dropping record", "channelID", rec.ChannelID)
		default:
			// transient failures were already retried by the provisioner
			logger.Error(err, "Failed to delete event channel, dropping record", "channelID", rec.ChannelID)
		}
	}
	return rec, true
}

// due evaluates both deletion rules for rec at now. Each rule only reads the
// fields it needs, so a malformed field disables the rules using it and
// nothing else. err reports a malformed field that kept rec from being due.
func (t *Tracker) due(rec event.Record, now time.Time) (bool, error) {
	var errs []error

	if !rec.DeleteAfter.IsZero() {
		deleteAfter, ok := rec.DeleteAfter.Time()
		if !ok {
			errs = append(errs, &event.MalformedTimestampError{ID: rec.ID, Field: "delete_after", Value: rec.DeleteAfter.Raw()})
		} else if !deleteAfter.After(now) {
			return true, nil
		}
	}

	if rec.EndTime.IsZero() {
		return false, errors.Join(errs...)
	}
	_, startOK := rec.StartTime.Time()
	end, endOK := rec.EndTime.Time()
	if !rec.StartTime.IsZero() && !startOK {
		errs = append(errs, &event.MalformedTimestampError{ID: rec.ID, Field: "start_time", Value: rec.StartTime.Raw()})
	}
	if !endOK {
		errs = append(errs, &event.MalformedTimestampError{ID: rec.ID, Field: "end_time", Value: rec.EndTime.Raw()})
	}
	if startOK && endOK && !end.After(now) && now.Sub(end) >= t.retention {
		return true, nil
	}
	return false, errors.Join(errs...)
}

func (t *Tracker) activate(ctx context.Context, ev event.ScheduledEvent) error {
	logger := log.FromContext(ctx).WithValues("event", ev.ID)

	rec, exists := t.Get(ev.ID)
	if exists && rec.HasChannel() {
		logger.V(1).Info("Event channel already provisioned", "channelID", rec.ChannelID)
		return nil
	}
	if !exists {
		start := t.policy.Normalize(ev.StartTime)
		rec = event.Record{
			ID:          ev.ID,
			GuildID:     ev.GuildID,
			StartTime:   event.At(start),
			DeleteAfter: event.At(start.Add(t.retention)),
		}
		if ev.EndTime != nil {
			rec.EndTime = event.At(t.policy.Normalize(*ev.EndTime))
		}
	}

	provisionErr := t.provision(ctx, &rec, ev.Name)
	if err := t.put(ctx, rec); err != nil {
		return errors.Join(provisionErr, err)
	}
	return provisionErr
}

func (t *Tracker) resetDeadline(ctx context.Context, id string) error {
	logger := log.FromContext(ctx).WithValues("event", id)

	rec, ok := t.Get(id)
	if !ok {
		logger.V(1).Info("Completed event is not tracked")
		return nil
	}

	now := t.policy.Now()
	deadline := now.Add(t.retention)
	if previous, ok := rec.DeleteAfter.Time(); ok && deadline.Before(previous) {
		logger.Info("Completion moves deletion deadline earlier",
			"previous", t.policy.Format(previous),
			"deleteAfter", t.policy.Format(deadline))
	}
	rec.DeleteAfter = event.At(deadline)
	// the event ended now, not when it was scheduled to
	rec.EndTime = event.At(now)

	if err := t.put(ctx, rec); err != nil {
		return err
	}
	logger.Info("Reset deletion deadline after completion", "deleteAfter", t.policy.Format(deadline))
	return nil
}

// provision creates the event channel and sets rec.ChannelID on success.
func (t *Tracker) provision(ctx context.Context, rec *event.Record, name string) error {
	category, err := t.provisioner.EnsureCategory(ctx, rec.GuildID, t.category)
	if err != nil {
		return fmt.Errorf("failed to ensure category for event %s: %w", rec.ID, err)
	}

	channel, err := t.provisioner.CreateChannel(ctx, rec.GuildID, category, provision.ChannelName(name))
	if err != nil {
		return fmt.Errorf("failed to create channel for event %s: %w", rec.ID, err)
	}

	rec.ChannelID = channel.ID
	channelsProvisioned.Inc()
	log.FromContext(ctx).Info("Provisioned event channel",
		"event", rec.ID, "channel", channel.Name, "channelID", channel.ID)
	return nil
}

func (t *Tracker) put(ctx context.Context, rec event.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.records[rec.ID] = rec
	return t.saveLocked(ctx)
}

func (t *Tracker) saveLocked(ctx context.Context) error {
	trackedRecords.Set(float64(len(t.records)))
	if err := t.store.Save(ctx, t.records); err != nil {
		return fmt.Errorf("failed to save event records: %w", err)
	}
	return nil
}

func (t *Tracker) ids() []string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return sets.List(sets.KeySet(t.records))
}

func (t *Tracker) lock(id string) func() {
	t.keys.LockKey(id)
	return func() {
		_ = t.keys.UnlockKey(id)
	}
}
