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

// Package store persists event records as a single document.
//
// Every Save writes the complete mapping; there are no incremental updates.
// The document is a JSON object keyed by record id:
//
//	{
//	    "42": {
//	        "guild_id": 1,
//	        "channel_id": 99,
//	        "start_time": "01/01/2025 10:00:00 AM",
//	        "delete_after": "01/02/2025 10:00:00 AM"
//	    }
//	}
//
// channel_id is null until a channel has been provisioned, and end_time is
// present only for events that carried a scheduled end.
//
// Backends:
//   - FileStore: a local file replaced atomically (write temp, then rename)
//   - ConfigMapStore: one key of a Kubernetes ConfigMap
//   - RedisStore: one Redis string key
//
// All backends share the Codec and report undecodable state as
// *event.CorruptStateError, which callers treat as fatal at startup.
package store
