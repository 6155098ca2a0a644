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
	"sync"

	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/provision"
)

// memoryStore is a Store that keeps a copy of the last saved mapping.
type memoryStore struct {
	mu      sync.Mutex
	records map[string]event.Record
	saves   int
	loadErr error
	saveErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{records: make(map[string]event.Record)}
}

func (s *memoryStore) Load(_ context.Context) (map[string]event.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.loadErr != nil {
		return nil, s.loadErr
	}
	return copyRecords(s.records), nil
}

func (s *memoryStore) Save(_ context.Context, records map[string]event.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.saveErr != nil {
		return s.saveErr
	}
	s.records = copyRecords(records)
	s.saves++
	return nil
}

func (s *memoryStore) saved() map[string]event.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return copyRecords(s.records)
}

func (s *memoryStore) saveCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.saves
}

func copyRecords(in map[string]event.Record) map[string]event.Record {
	out := make(map[string]event.Record, len(in))
	for id, rec := range in {
		out[id] = rec
	}
	return out
}

// scriptedProvisioner wraps Memory with injectable delete failures and an
// optional gate that blocks DeleteChannel until released.
type scriptedProvisioner struct {
	*provision.Memory

	mu        sync.Mutex
	deleteErr error
	entered   chan struct{}
	gate      chan struct{}
}

func newScriptedProvisioner() *scriptedProvisioner {
	return &scriptedProvisioner{Memory: provision.NewMemory()}
}

func (p *scriptedProvisioner) DeleteChannel(ctx context.Context, guildID, channelID event.Snowflake) error {
	p.mu.Lock()
	deleteErr, entered, gate := p.deleteErr, p.entered, p.gate
	p.mu.Unlock()

	if entered != nil {
		entered <- struct{}{}
	}
	if gate != nil {
		<-gate
	}
	if deleteErr != nil {
		return deleteErr
	}
	return p.Memory.DeleteChannel(ctx, guildID, channelID)
}
