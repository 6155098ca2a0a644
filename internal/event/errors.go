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

import "fmt"

// CorruptStateError is returned when persisted state exists but cannot be decoded.
type CorruptStateError struct {
	// Source names where the state was read from (file path, configmap, redis key)
	Source string
	Err    error
}

func (e *CorruptStateError) Error() string {
	return fmt.Sprintf("corrupt event state in %s: %v", e.Source, e.Err)
}

func (e *CorruptStateError) Unwrap() error {
	return e.Err
}

// MalformedTimestampError reports a record whose stored timestamp does not
// match the store layout.
type MalformedTimestampError struct {
	ID    string
	Field string
	Value string
}

func (e *MalformedTimestampError) Error() string {
	return fmt.Sprintf("event %s: malformed %s %q", e.ID, e.Field, e.Value)
}
