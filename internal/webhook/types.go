// Copyright 2025 The Eventkeeper Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package webhook

import (
	"fmt"
	"strings"
	"time"

	"github.com/mikelane/eventkeeper/internal/event"
)

const (
	// SignatureHeader carries "sha256=<hex hmac>" of the request body
	SignatureHeader = "X-Eventkeeper-Signature-256"
	// EventHeader names the notification kind
	EventHeader = "X-Eventkeeper-Event"
)

const (
	// EventScheduledCreate announces a newly scheduled event
	EventScheduledCreate = "scheduled_event.create"
	// EventScheduledUpdate announces a status change of a scheduled event
	EventScheduledUpdate = "scheduled_event.update"
	// EventStart starts an event on demand
	EventStart = "event.start"
)

// ScheduledEvent is the JSON form of a scheduled event, matching the
// platform's own gateway payload.
type ScheduledEvent struct {
	ID                 string     `json:"id"`
	GuildID            string     `json:"guild_id"`
	Name               string     `json:"name"`
	ScheduledStartTime time.Time  `json:"scheduled_start_time"`
	ScheduledEndTime   *time.Time `json:"scheduled_end_time,omitempty"`
	Status             int        `json:"status"`
}

// UpdateEvent is the payload of a scheduled_event.update notification.
// Before may be omitted when the sender does not know the previous state.
type UpdateEvent struct {
	Before *ScheduledEvent `json:"before,omitempty"`
	After  ScheduledEvent  `json:"after"`
}

// StartEvent is the payload of an event.start notification.
type StartEvent struct {
	ID      string `json:"id"`
	GuildID string `json:"guild_id"`
	Name    string `json:"name"`
}

// StartResponse is returned for a successful event.start notification.
type StartResponse struct {
	ID          string `json:"id"`
	ChannelID   string `json:"channel_id,omitempty"`
	StartTime   string `json:"start_time"`
	DeleteAfter string `json:"delete_after"`
	Message     string `json:"message"`
}

func (e *ScheduledEvent) toEvent() (event.ScheduledEvent, error) {
	if strings.TrimSpace(e.ID) == "" {
		return event.ScheduledEvent{}, fmt.Errorf("missing event id")
	}
	if e.ScheduledStartTime.IsZero() {
		return event.ScheduledEvent{}, fmt.Errorf("missing scheduled_start_time for event %s", e.ID)
	}
	guildID, err := event.ParseSnowflake(e.GuildID)
	if err != nil {
		return event.ScheduledEvent{}, err
	}
	return event.ScheduledEvent{
		ID:        e.ID,
		GuildID:   guildID,
		Name:      e.Name,
		StartTime: e.ScheduledStartTime,
		EndTime:   e.ScheduledEndTime,
		Status:    event.Status(e.Status),
	}, nil
}
