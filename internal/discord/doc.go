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

// Package discord connects the lifecycle tracker to Discord through discordgo.
//
// Provisioner implements provision.Provisioner over the REST API. Calls that
// fail with a rate limit or a server error are retried with exponential
// backoff and jitter; "unknown channel" and "unknown guild" answers are
// reported as provision.ErrNotFound and access denials as
// provision.ErrForbidden.
//
// Gateway turns gateway events into tracker notifications:
//   - GuildScheduledEventCreate becomes OnCreate
//   - GuildScheduledEventUpdate becomes OnUpdate, with the previously seen
//     status standing in for the state before the update; the remembered
//     status is dropped once the event completes or is canceled
//   - a "!start_event <name>" message becomes StartManual and is answered
//     in the same channel
package discord
