// Copyright 2025 The Eventkeeper Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package webhook receives signed event notifications over HTTP.
//
// The server lets relays and self-hosted platforms drive the lifecycle
// tracker without a gateway connection. It also serves the health check and
// the Prometheus metrics of the process.
//
// Webhook Security:
//
// Every POST /webhook request must carry an X-Eventkeeper-Signature-256 header
// holding "sha256=" followed by the hex HMAC-SHA256 of the body, computed with
// the shared secret. Requests with invalid or missing signatures are rejected
// with HTTP 401.
//
// Event Handling:
//
// The X-Eventkeeper-Event header selects the notification:
//   - scheduled_event.create: a scheduled event payload, handled by OnCreate
//   - scheduled_event.update: {"before": ..., "after": ...}, handled by OnUpdate
//   - event.start: {"id", "guild_id", "name"}, handled by StartManual; the
//     response carries the acknowledgement message
//
// Unknown event kinds are acknowledged with 200 and ignored.
//
// Rate Limiting:
//
// Requests are rate-limited per guild with a token bucket. The default limit
// is 10 requests per second per guild. Requests exceeding the limit receive
// HTTP 429 Too Many Requests.
//
// Example usage:
//
//	server := webhook.NewServer("0.0.0.0", 8080, tracker, policy, "webhook-secret")
//	if err := server.Start(ctx); err != nil {
//		log.Fatal(err)
//	}
package webhook
