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

// Package event defines the data model shared by the lifecycle tracker, the
// event store and the platform adapters.
//
// A Record is the durable state kept for one scheduled event (or one manually
// started event). It is keyed by an opaque string id: the platform's scheduled
// event id, or the id of the message that issued a manual start command.
//
// Record lifecycle:
//
//	created   first notification or command referencing the id
//	mutated   channel assignment, deadline reset on completion
//	removed   by the sweep once a deletion deadline has passed
//
// Timestamps are held as instants. The only textual form is the fixed display
// layout used by the store, and a stored value that does not match it is kept
// verbatim (see Timestamp) so a bad record is reported rather than lost.
//
// Error taxonomy:
//   - CorruptStateError: persisted state exists but cannot be decoded (fatal at startup)
//   - MalformedTimestampError: one record carries an unparseable timestamp (skipped)
package event
