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
	"os"
	"path/filepath"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	testingclock "k8s.io/utils/clock/testing"

	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/provision"
	"github.com/mikelane/eventkeeper/internal/store"
	"github.com/mikelane/eventkeeper/internal/timepolicy"
)

var _ = Describe("Tracker", func() {
	var (
		ctx         context.Context
		clock       *testingclock.FakeClock
		policy      *timepolicy.Policy
		st          *memoryStore
		provisioner *scriptedProvisioner
		tr          *Tracker
	)

	// 01/01/2025 10:00:05 AM in America/New_York
	epoch := time.Date(2025, 1, 1, 15, 0, 5, 0, time.UTC)

	BeforeEach(func() {
		ctx = context.Background()
		clock = testingclock.NewFakeClock(epoch)

		var err error
		policy, err = timepolicy.Load(clock, timepolicy.DefaultZone)
		Expect(err).NotTo(HaveOccurred())

		st = newMemoryStore()
		provisioner = newScriptedProvisioner()
		tr = New(st, provisioner, policy, Options{})
	})

	scheduled := func(id string, start time.Time, status event.Status) event.ScheduledEvent {
		return event.ScheduledEvent{
			ID:        id,
			GuildID:   1,
			Name:      "Game Night",
			StartTime: start,
			Status:    status,
		}
	}

	deadline := func(rec event.Record) time.Time {
		t, ok := rec.DeleteAfter.Time()
		Expect(ok).To(BeTrue(), "deleteAfter should be a valid instant")
		return t
	}

	Describe("StartManual", func() {
		It("provisions a channel before returning and persists the record", func() {
			rec, err := tr.StartManual(ctx, "msg-1", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.HasChannel()).To(BeTrue())
			Expect(provisioner.Created()).To(HaveLen(1))
			Expect(provisioner.Created()[0].Name).To(Equal("event-game-night"))

			start, ok := rec.StartTime.Time()
			Expect(ok).To(BeTrue())
			Expect(start).To(BeTemporally("==", epoch))
			Expect(deadline(rec)).To(BeTemporally("==", epoch.Add(24*time.Hour)))

			Expect(st.saved()).To(HaveKey("msg-1"))
			Expect(st.saved()["msg-1"].ChannelID).To(Equal(rec.ChannelID))
		})

		It("does not provision twice for the same id", func() {
			first, err := tr.StartManual(ctx, "msg-1", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())
			second, err := tr.StartManual(ctx, "msg-1", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())

			Expect(second.Equal(first)).To(BeTrue())
			Expect(provisioner.Created()).To(HaveLen(1))
			Expect(tr.Len()).To(Equal(1))
		})

		It("keeps the record with a null channel when persistence works but provisioning fails", func() {
			failing := &failingProvisioner{err: errors.New("missing permissions")}
			tr = New(st, failing, policy, Options{})

			rec, err := tr.StartManual(ctx, "msg-2", "Raid", 1)
			Expect(err).To(MatchError(ContainSubstring("missing permissions")))
			Expect(rec.HasChannel()).To(BeFalse())
			Expect(st.saved()).To(HaveKey("msg-2"))
		})
	})

	Describe("OnCreate", func() {
		It("stores far-future events without a channel and with deleteAfter = start + 24h", func() {
			start := epoch.Add(72 * time.Hour).Add(750 * time.Millisecond)

			Expect(tr.OnCreate(ctx, scheduled("ev-1", start, event.StatusScheduled))).To(Succeed())

			rec, ok := tr.Get("ev-1")
			Expect(ok).To(BeTrue())
			Expect(rec.HasChannel()).To(BeFalse())
			Expect(provisioner.Created()).To(BeEmpty())
			Expect(deadline(rec)).To(BeTemporally("==", start.Truncate(time.Second).Add(24*time.Hour)))
			Expect(st.saved()).To(HaveKey("ev-1"))
		})

		It("provisions immediately when the event starts within five minutes", func() {
			Expect(tr.OnCreate(ctx, scheduled("ev-2", epoch.Add(4*time.Minute), event.StatusScheduled))).To(Succeed())

			rec, ok := tr.Get("ev-2")
			Expect(ok).To(BeTrue())
			Expect(rec.HasChannel()).To(BeTrue())
			Expect(provisioner.Created()).To(HaveLen(1))
		})

		It("provisions immediately for events that already started", func() {
			Expect(tr.OnCreate(ctx, scheduled("ev-3", epoch.Add(-time.Hour), event.StatusScheduled))).To(Succeed())

			rec, _ := tr.Get("ev-3")
			Expect(rec.HasChannel()).To(BeTrue())
		})

		It("records the scheduled end time when present", func() {
			ev := scheduled("ev-4", epoch.Add(48*time.Hour), event.StatusScheduled)
			end := epoch.Add(50 * time.Hour)
			ev.EndTime = &end

			Expect(tr.OnCreate(ctx, ev)).To(Succeed())

			rec, _ := tr.Get("ev-4")
			got, ok := rec.EndTime.Time()
			Expect(ok).To(BeTrue())
			Expect(got).To(BeTemporally("==", end))
		})

		It("ignores events without a guild", func() {
			ev := scheduled("ev-5", epoch, event.StatusScheduled)
			ev.GuildID = 0

			Expect(tr.OnCreate(ctx, ev)).To(Succeed())
			Expect(tr.Len()).To(BeZero())
			Expect(st.saveCount()).To(BeZero())
		})

		It("updates a duplicate notification in place", func() {
			ev := scheduled("ev-6", epoch.Add(2*time.Minute), event.StatusScheduled)

			Expect(tr.OnCreate(ctx, ev)).To(Succeed())
			Expect(tr.OnCreate(ctx, ev)).To(Succeed())

			Expect(tr.Len()).To(Equal(1))
			Expect(provisioner.Created()).To(HaveLen(1))
		})
	})

	Describe("OnUpdate", func() {
		It("provisions once on activation of a stored event", func() {
			start := epoch.Add(time.Hour)
			Expect(tr.OnCreate(ctx, scheduled("ev-1", start, event.StatusScheduled))).To(Succeed())
			stored, _ := tr.Get("ev-1")

			before := scheduled("ev-1", start, event.StatusScheduled)
			after := scheduled("ev-1", start, event.StatusActive)
			Expect(tr.OnUpdate(ctx, before, after)).To(Succeed())
			Expect(tr.OnUpdate(ctx, before, after)).To(Succeed())

			rec, _ := tr.Get("ev-1")
			Expect(rec.HasChannel()).To(BeTrue())
			Expect(provisioner.Created()).To(HaveLen(1))
			Expect(deadline(rec)).To(BeTemporally("==", deadline(stored)))
		})

		It("creates the record when activation arrives for an unknown event", func() {
			start := epoch.Add(-time.Minute)
			Expect(tr.OnUpdate(ctx,
				scheduled("ev-2", start, event.StatusScheduled),
				scheduled("ev-2", start, event.StatusActive))).To(Succeed())

			rec, ok := tr.Get("ev-2")
			Expect(ok).To(BeTrue())
			Expect(rec.HasChannel()).To(BeTrue())
			Expect(deadline(rec)).To(BeTemporally("==", start.Add(24*time.Hour)))
		})

		It("ignores updates that stay active", func() {
			start := epoch
			Expect(tr.OnUpdate(ctx,
				scheduled("ev-3", start, event.StatusActive),
				scheduled("ev-3", start, event.StatusActive))).To(Succeed())

			Expect(tr.Len()).To(BeZero())
			Expect(provisioner.Created()).To(BeEmpty())
		})

		It("resets deleteAfter to now + 24h on completion", func() {
			start := epoch.Add(-23 * time.Hour)
			Expect(tr.OnCreate(ctx, scheduled("ev-4", start, event.StatusScheduled))).To(Succeed())
			previous := deadline(mustGet(tr, "ev-4"))

			clock.Step(2 * time.Hour)
			Expect(tr.OnUpdate(ctx,
				scheduled("ev-4", start, event.StatusActive),
				scheduled("ev-4", start, event.StatusCompleted))).To(Succeed())

			rec := mustGet(tr, "ev-4")
			Expect(deadline(rec)).To(BeTemporally("==", epoch.Add(2*time.Hour).Add(24*time.Hour)))
			Expect(deadline(rec)).To(BeTemporally(">=", previous))
			Expect(deadline(st.saved()["ev-4"])).To(BeTemporally("==", deadline(rec)))
		})

		It("accepts a shrinking deadline when the original was more than 24h away", func() {
			start := epoch.Add(30 * time.Hour)
			Expect(tr.OnCreate(ctx, scheduled("ev-5", start, event.StatusScheduled))).To(Succeed())

			Expect(tr.OnUpdate(ctx,
				scheduled("ev-5", start, event.StatusScheduled),
				scheduled("ev-5", start, event.StatusCompleted))).To(Succeed())

			Expect(deadline(mustGet(tr, "ev-5"))).To(BeTemporally("==", epoch.Add(24*time.Hour)))
		})

		It("keeps an overrunning event until 24h after it actually completed", func() {
			start := epoch.Add(-2 * time.Hour)
			ev := scheduled("ev-7", start, event.StatusScheduled)
			end := epoch.Add(-time.Hour)
			ev.EndTime = &end
			Expect(tr.OnCreate(ctx, ev)).To(Succeed())

			clock.Step(5 * time.Hour)
			before, after := ev, ev
			before.Status, after.Status = event.StatusActive, event.StatusCompleted
			Expect(tr.OnUpdate(ctx, before, after)).To(Succeed())

			clock.Step(19*time.Hour + time.Second) // past the scheduled end + 24h
			Expect(tr.Sweep(ctx)).To(Succeed())
			Expect(tr.Records()).To(HaveKey("ev-7"))

			clock.Step(5 * time.Hour)
			Expect(tr.Sweep(ctx)).To(Succeed())
			Expect(tr.Len()).To(BeZero())
		})

		It("ignores completion of untracked events", func() {
			Expect(tr.OnUpdate(ctx,
				scheduled("ev-6", epoch, event.StatusActive),
				scheduled("ev-6", epoch, event.StatusCompleted))).To(Succeed())
			Expect(tr.Len()).To(BeZero())
		})

		It("keeps exactly one record and one channel under concurrent notifications", func() {
			start := epoch.Add(time.Hour)
			before := scheduled("ev-7", start, event.StatusScheduled)
			after := scheduled("ev-7", start, event.StatusActive)

			var wg sync.WaitGroup
			for i := 0; i < 20; i++ {
				wg.Add(1)
				go func(i int) {
					defer GinkgoRecover()
					defer wg.Done()
					if i%2 == 0 {
						Expect(tr.OnCreate(ctx, before)).To(Succeed())
					} else {
						Expect(tr.OnUpdate(ctx, before, after)).To(Succeed())
					}
				}(i)
			}
			wg.Wait()

			Expect(tr.Len()).To(Equal(1))
			Expect(provisioner.Created()).To(HaveLen(1))
			Expect(mustGet(tr, "ev-7").ChannelID).To(Equal(provisioner.Created()[0].ID))
		})
	})

	Describe("Sweep", func() {
		It("deletes the channel and removes the record once the deadline passed", func() {
			rec, err := tr.StartManual(ctx, "msg-1", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())

			clock.Step(24 * time.Hour)
			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Len()).To(BeZero())
			Expect(st.saved()).To(BeEmpty())
			Expect(provisioner.DeleteCalls()).To(Equal([]event.Snowflake{rec.ChannelID}))
			Expect(provisioner.Exists(rec.ChannelID)).To(BeFalse())

			Expect(tr.Sweep(ctx)).To(Succeed())
			Expect(provisioner.DeleteCalls()).To(HaveLen(1))
		})

		It("keeps records whose deadline has not passed", func() {
			_, err := tr.StartManual(ctx, "msg-1", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())

			clock.Step(24*time.Hour - time.Second)
			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Len()).To(Equal(1))
			Expect(provisioner.DeleteCalls()).To(BeEmpty())
		})

		It("removes due records without a channel and never deletes a null channel", func() {
			Expect(tr.OnCreate(ctx, scheduled("ev-1", epoch.Add(time.Hour), event.StatusScheduled))).To(Succeed())

			clock.Step(25 * time.Hour)
			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Len()).To(BeZero())
			Expect(provisioner.DeleteCalls()).To(BeEmpty())
		})

		It("removes the record when the channel is already gone", func() {
			st.records["42"] = event.Record{
				ID:          "42",
				GuildID:     1,
				ChannelID:   12345,
				StartTime:   event.At(epoch.Add(-48 * time.Hour)),
				DeleteAfter: event.At(epoch.Add(-24 * time.Hour)),
			}
			Expect(tr.Load(ctx)).To(Succeed())

			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Len()).To(BeZero())
			Expect(provisioner.DeleteCalls()).To(Equal([]event.Snowflake{12345}))
		})

		It("applies the end-time rule independently of deleteAfter", func() {
			st.records["ev-end"] = event.Record{
				ID:          "ev-end",
				GuildID:     1,
				ChannelID:   7,
				StartTime:   event.At(epoch.Add(-30 * time.Hour)),
				EndTime:     event.At(epoch.Add(-24 * time.Hour)),
				DeleteAfter: event.At(epoch.Add(time.Hour)),
			}
			st.records["ev-recent"] = event.Record{
				ID:          "ev-recent",
				GuildID:     1,
				StartTime:   event.At(epoch.Add(-30 * time.Hour)),
				EndTime:     event.At(epoch.Add(-23 * time.Hour)),
				DeleteAfter: event.At(epoch.Add(time.Hour)),
			}
			provisioner.AddChannel(provision.Channel{ID: 7, Name: "event-x"})
			Expect(tr.Load(ctx)).To(Succeed())

			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Records()).To(HaveLen(1))
			Expect(tr.Records()).To(HaveKey("ev-recent"))
			Expect(provisioner.Exists(7)).To(BeFalse())
		})

		It("skips records with malformed timestamps and leaves them unchanged", func() {
			bad := event.Record{
				ID:          "bad",
				GuildID:     1,
				ChannelID:   8,
				StartTime:   event.At(epoch.Add(-48 * time.Hour)),
				DeleteAfter: event.Unparsed("yesterday"),
			}
			st.records["bad"] = bad
			st.records["good"] = event.Record{
				ID:          "good",
				GuildID:     1,
				StartTime:   event.At(epoch.Add(-48 * time.Hour)),
				DeleteAfter: event.At(epoch.Add(-24 * time.Hour)),
			}
			Expect(tr.Load(ctx)).To(Succeed())

			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Records()).To(HaveLen(1))
			Expect(mustGet(tr, "bad").Equal(bad)).To(BeTrue())
			Expect(st.saved()["bad"].Equal(bad)).To(BeTrue())
			Expect(provisioner.DeleteCalls()).To(BeEmpty())

			Expect(tr.Sweep(ctx)).To(Succeed())
			Expect(tr.Records()).To(HaveKey("bad"))
		})

		It("removes a record with a malformed start time once its valid deleteAfter has passed", func() {
			st.records["42"] = event.Record{
				ID:          "42",
				GuildID:     1,
				ChannelID:   99,
				StartTime:   event.Unparsed("2025-01-01T10:00:00"),
				DeleteAfter: event.At(epoch.Add(-10 * time.Hour)),
			}
			provisioner.AddChannel(provision.Channel{ID: 99, Name: "event-x"})
			Expect(tr.Load(ctx)).To(Succeed())

			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Len()).To(BeZero())
			Expect(provisioner.Exists(99)).To(BeFalse())
		})

		It("evaluates deleteAfter when only the end time is malformed", func() {
			pending := event.Record{
				ID:          "pending",
				GuildID:     1,
				StartTime:   event.At(epoch.Add(-48 * time.Hour)),
				EndTime:     event.Unparsed("later"),
				DeleteAfter: event.At(epoch.Add(time.Hour)),
			}
			st.records["pending"] = pending
			st.records["expired"] = event.Record{
				ID:          "expired",
				GuildID:     1,
				StartTime:   event.At(epoch.Add(-48 * time.Hour)),
				EndTime:     event.Unparsed("later"),
				DeleteAfter: event.At(epoch.Add(-time.Hour)),
			}
			Expect(tr.Load(ctx)).To(Succeed())

			Expect(tr.Sweep(ctx)).To(Succeed())

			Expect(tr.Records()).To(HaveLen(1))
			Expect(mustGet(tr, "pending").Equal(pending)).To(BeTrue())
		})

		It("drops due records even when their channel cannot be deleted", func() {
			for i, deleteErr := range []error{
				fmt.Errorf("failed to delete channel: %w", provision.ErrForbidden),
				errors.New("operation failed after 3 retries: 503 service unavailable"),
			} {
				id := fmt.Sprintf("msg-%d", i)
				_, err := tr.StartManual(ctx, id, "Game Night", 1)
				Expect(err).NotTo(HaveOccurred())
				provisioner.deleteErr = deleteErr

				clock.Step(25 * time.Hour)
				Expect(tr.Sweep(ctx)).To(Succeed())

				Expect(tr.Records()).NotTo(HaveKey(id), "error %v", deleteErr)
				Expect(st.saved()).NotTo(HaveKey(id))
			}
		})

		It("stops calling the provisioner after a permanent failure", func() {
			_, err := tr.StartManual(ctx, "42", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())
			provisioner.deleteErr = provision.ErrForbidden
			provisioner.entered = make(chan struct{}, 100)

			clock.Step(24 * time.Hour)
			for range 100 {
				clock.Step(time.Minute)
				Expect(tr.Sweep(ctx)).To(Succeed())
			}

			Expect(tr.Len()).To(BeZero())
			Expect(provisioner.entered).To(HaveLen(1))
		})

		It("persists once per pass and reports persistence failures", func() {
			Expect(tr.Sweep(ctx)).To(Succeed())
			Expect(st.saveCount()).To(Equal(1))

			st.saveErr = errors.New("disk full")
			Expect(tr.Sweep(ctx)).To(MatchError(ContainSubstring("disk full")))
		})

		It("does not start a second pass while one is running", func() {
			_, err := tr.StartManual(ctx, "msg-1", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())
			clock.Step(25 * time.Hour)

			provisioner.entered = make(chan struct{}, 1)
			provisioner.gate = make(chan struct{})

			done := make(chan error, 1)
			go func() {
				done <- tr.Sweep(ctx)
			}()
			Eventually(provisioner.entered).Should(Receive())

			Expect(tr.Sweep(ctx)).To(Succeed())
			Expect(st.saveCount()).To(Equal(1), "the overlapping call must not persist")

			close(provisioner.gate)
			Eventually(done).Should(Receive(BeNil()))
			Expect(tr.Len()).To(BeZero())
			Expect(provisioner.DeleteCalls()).To(HaveLen(1))
		})
	})

	Describe("Load", func() {
		It("returns CorruptStateError unchanged", func() {
			st.loadErr = &event.CorruptStateError{Source: "events.json", Err: errors.New("unexpected EOF")}

			err := tr.Load(ctx)

			var corrupt *event.CorruptStateError
			Expect(errors.As(err, &corrupt)).To(BeTrue())
		})

		It("restores records saved by a previous instance", func() {
			_, err := tr.StartManual(ctx, "msg-1", "Game Night", 1)
			Expect(err).NotTo(HaveOccurred())

			restarted := New(st, provisioner, policy, Options{})
			Expect(restarted.Load(ctx)).To(Succeed())

			Expect(restarted.Records()).To(HaveKey("msg-1"))
			Expect(mustGet(restarted, "msg-1").Equal(mustGet(tr, "msg-1"))).To(BeTrue())
		})
	})

	Describe("with the file store", func() {
		It("deletes channel 99 and drops record 42 when swept after its deadline", func() {
			dir, err := os.MkdirTemp("", "eventkeeper-tracker")
			Expect(err).NotTo(HaveOccurred())
			DeferCleanup(os.RemoveAll, dir)

			path := filepath.Join(dir, "events.json")
			Expect(os.WriteFile(path, []byte(`{
    "42": {
        "guild_id": 1,
        "channel_id": 99,
        "start_time": "01/01/2025 10:00:00 AM",
        "delete_after": "01/01/2025 10:00:01 AM"
    }
}
`), 0o644)).To(Succeed())

			provisioner.AddChannel(provision.Channel{ID: 99, Name: "event-scenario"})
			fileTracker := New(store.NewFileStore(path, store.NewCodec(policy)), provisioner, policy, Options{})
			Expect(fileTracker.Load(ctx)).To(Succeed())
			Expect(policy.Format(policy.Now())).To(Equal("01/01/2025 10:00:05 AM"))

			Expect(fileTracker.Sweep(ctx)).To(Succeed())

			Expect(provisioner.DeleteCalls()).To(Equal([]event.Snowflake{99}))
			Expect(provisioner.Exists(99)).To(BeFalse())
			Expect(fileTracker.Records()).NotTo(HaveKey("42"))

			data, err := os.ReadFile(path)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(data)).To(Equal("{}\n"))
		})
	})
})

func mustGet(tr *Tracker, id string) event.Record {
	rec, ok := tr.Get(id)
	ExpectWithOffset(1, ok).To(BeTrue(), "record %s should exist", id)
	return rec
}

type failingProvisioner struct {
	err error
}

func (p *failingProvisioner) EnsureCategory(context.Context, event.Snowflake, string) (provision.Category, error) {
	return provision.Category{}, p.err
}

func (p *failingProvisioner) CreateChannel(context.Context, event.Snowflake, provision.Category, string) (provision.Channel, error) {
	return provision.Channel{}, p.err
}

func (p *failingProvisioner) DeleteChannel(context.Context, event.Snowflake, event.Snowflake) error {
	return p.err
}
