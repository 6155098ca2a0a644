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

// Package provision defines the channel provisioning capability consumed by
// the lifecycle tracker, and an in-memory implementation used for dry runs.
package provision

import (
	"context"
	"errors"
	"strings"

	"github.com/mikelane/eventkeeper/internal/event"
)

const (
	// CategoryName is the category event channels are created under
	CategoryName = "Events"
	// ChannelPrefix is prepended to every derived channel name
	ChannelPrefix = "event-"
)

// ErrNotFound reports that a guild or channel does not exist (anymore).
// Callers deleting channels treat it as success.
var ErrNotFound = errors.New("not found")

// ErrForbidden reports that the bot may no longer manage the guild or channel,
// for example after being removed from the guild. Retrying does not help.
var ErrForbidden = errors.New("forbidden")

// Provisioner creates and deletes event channels on the messaging platform.
type Provisioner interface {
	// EnsureCategory returns the category named name, creating it when missing.
	// It is safe to call repeatedly.
	EnsureCategory(ctx context.Context, guildID event.Snowflake, name string) (Category, error)
	// CreateChannel creates a text channel under category. Every call creates
	// a new channel.
	CreateChannel(ctx context.Context, guildID event.Snowflake, category Category, name string) (Channel, error)
	// DeleteChannel deletes a channel. A missing channel or guild yields
	// ErrNotFound; lost access yields ErrForbidden. Transient failures are
	// retried by the implementation before an error is returned.
	DeleteChannel(ctx context.Context, guildID, channelID event.Snowflake) error
}

// Category is a channel container within a guild
type Category struct {
	ID   event.Snowflake
	Name string
}

// Channel is a text channel within a guild
type Channel struct {
	ID         event.Snowflake
	Name       string
	CategoryID event.Snowflake
}

// ChannelName derives the channel name for an event: lower-cased, spaces
// replaced by dashes, prefixed with ChannelPrefix. Names are not checked for
// collisions.
func ChannelName(eventName string) string {
	return ChannelPrefix + strings.ReplaceAll(strings.ToLower(eventName), " ", "-")
}
