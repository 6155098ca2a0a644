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

// Package cleanup runs the periodic retention sweep for event channels.
//
// The scheduler ticks every interval (one minute by default) and asks its
// Sweeper to delete the channels of events whose retention window has passed.
// A failed pass is logged and retried on the next tick; the scheduler only
// returns when its context is canceled.
//
// Example usage:
//
//	scheduler := cleanup.NewScheduler(
//		tracker,
//		time.Minute,
//		cleanup.WithRunOnStart(),
//	)
//	if err := scheduler.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package cleanup
