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

package provision

import (
	"context"
	"sync"

	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/eventkeeper/internal/event"
)

// Memory is an in-process Provisioner. It backs dry runs, where no platform
// session exists, and stands in for the platform in tests.
type Memory struct {
	mu         sync.Mutex
	nextID     event.Snowflake
	categories map[event.Snowflake]map[string]Category
	channels   map[event.Snowflake]Channel
	created    []Channel
	deletes    []event.Snowflake
}

// NewMemory returns an empty Memory provisioner.
func NewMemory() *Memory {
	return &Memory{
		nextID:     1000,
		categories: make(map[event.Snowflake]map[string]Category),
		channels:   make(map[event.Snowflake]Channel),
	}
}

// EnsureCategory returns the named category for the guild, creating it once.
func (m *Memory) EnsureCategory(ctx context.Context, guildID event.Snowflake, name string) (Category, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	byName, ok := m.categories[guildID]
	if !ok {
		byName = make(map[string]Category)
		m.categories[guildID] = byName
	}
	if cat, ok := byName[name]; ok {
		return cat, nil
	}

	cat := Category{ID: m.allocate(), Name: name}
	byName[name] = cat
	log.FromContext(ctx).Info("Created category", "guild", guildID, "category", name)
	return cat, nil
}

// CreateChannel records a new channel.
func (m *Memory) CreateChannel(ctx context.Context, guildID event.Snowflake, category Category, name string) (Channel, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	ch := Channel{ID: m.allocate(), Name: name, CategoryID: category.ID}
	m.channels[ch.ID] = ch
	m.created = append(m.created, ch)
	log.FromContext(ctx).Info("Created channel", "guild", guildID, "channel", name, "id", ch.ID)
	return ch, nil
}

// DeleteChannel removes a channel, returning ErrNotFound for unknown ids.
func (m *Memory) DeleteChannel(ctx context.Context, guildID, channelID event.Snowflake) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.deletes = append(m.deletes, channelID)
	if _, ok := m.channels[channelID]; !ok {
		return ErrNotFound
	}
	delete(m.channels, channelID)
	log.FromContext(ctx).Info("Deleted channel", "guild", guildID, "id", channelID)
	return nil
}

// AddChannel registers an existing channel, as if created out of band.
func (m *Memory) AddChannel(ch Channel) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.channels[ch.ID] = ch
}

// Created returns every channel created so far, in order.
func (m *Memory) Created() []Channel {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Channel(nil), m.created...)
}

// DeleteCalls returns the channel ids passed to DeleteChannel, in order.
func (m *Memory) DeleteCalls() []event.Snowflake {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]event.Snowflake(nil), m.deletes...)
}

// Exists reports whether a channel is currently present.
func (m *Memory) Exists(channelID event.Snowflake) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.channels[channelID]
	return ok
}

func (m *Memory) allocate() event.Snowflake {
	m.nextID++
	return m.nextID
}
