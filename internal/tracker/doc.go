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

// Package tracker implements the event lifecycle state machine.
//
// The Tracker owns the in-memory record set and is the only writer of the
// event store. Platform adapters call its methods when notifications arrive;
// the cleanup scheduler calls Sweep on a fixed interval.
//
// Lifecycle of a record:
//
//	OnCreate     stores the event with deleteAfter = start + retention and
//	             provisions a channel right away when the event starts within
//	             the lookahead window
//	OnUpdate     provisions on a transition into active, resets
//	             deleteAfter = now + retention and records end = now when
//	             the event completes
//	StartManual  provisions immediately for a command-started event
//	Sweep        deletes channels whose deadline passed and drops their records
//
// A record is due for deletion when either rule holds:
//
//  1. deleteAfter is set and deleteAfter <= now
//  2. start and end are set, end <= now and now - end >= retention
//
// Each rule reads only its own fields. A malformed timestamp disables the
// rules using it; a record that is not due for that reason is logged and left
// untouched until the next pass. A due record is dropped once deletion of its
// channel was attempted, even when the attempt failed.
//
// Concurrency:
//
// Handlers for the same event id are serialized by a keyed mutex, so duplicate
// notifications update one record in place and provision at most one channel.
// A separate mutex guards the record map and persistence. Sweep is
// non-reentrant: a call made while a pass is still running returns immediately.
package tracker
