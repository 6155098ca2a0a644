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
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/moby/sys/atomicwriter"

	"github.com/mikelane/eventkeeper/internal/event"
)

// DefaultPath is the state file used when none is configured
const DefaultPath = "events.json"

// FileStore keeps the document in a local file.
type FileStore struct {
	path  string
	codec *Codec
}

// NewFileStore returns a FileStore for path.
func NewFileStore(path string, codec *Codec) *FileStore {
	if path == "" {
		path = DefaultPath
	}
	return &FileStore{path: path, codec: codec}
}

// Path returns the state file location.
func (s *FileStore) Path() string {
	return s.path
}

// Load reads the state file. A missing file is an empty store.
func (s *FileStore) Load(_ context.Context) (map[string]event.Record, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return make(map[string]event.Record), nil
		}
		return nil, fmt.Errorf("failed to read %s: %w", s.path, err)
	}

	records, err := s.codec.Decode(data)
	if err != nil {
		return nil, &event.CorruptStateError{Source: s.path, Err: err}
	}
	return records, nil
}

// Save replaces the state file. The new content is written to a temporary
// file in the same directory and renamed over the old one, so a failed write
// never leaves a partial document behind.
func (s *FileStore) Save(_ context.Context, records map[string]event.Record) error {
	data, err := s.codec.Encode(records)
	if err != nil {
		return err
	}

	if dir := filepath.Dir(s.path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("failed to create state directory: %w", err)
		}
	}

	if err := atomicwriter.WriteFile(s.path, data, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", s.path, err)
	}
	return nil
}
