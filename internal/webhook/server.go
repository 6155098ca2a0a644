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

package webhook

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"golang.org/x/time/rate"
	"sigs.k8s.io/controller-runtime/pkg/log"
	"sigs.k8s.io/controller-runtime/pkg/metrics"

	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/timepolicy"
)

// maxPayloadBytes bounds the accepted request body
const maxPayloadBytes = 1 << 20

// Handler receives normalized event notifications.
type Handler interface {
	StartManual(ctx context.Context, id, name string, guildID event.Snowflake) (event.Record, error)
	OnCreate(ctx context.Context, ev event.ScheduledEvent) error
	OnUpdate(ctx context.Context, before, after event.ScheduledEvent) error
}

// Server handles signed event notifications over HTTP
type Server struct {
	addr          string
	port          int
	handler       Handler
	policy        *timepolicy.Policy
	webhookSecret string
	server        *http.Server
	rateLimiter   *RateLimiter
}

// RateLimiter provides per-guild rate limiting
type RateLimiter struct {
	mu       sync.Mutex
	limiters map[string]*rate.Limiter
	limit    rate.Limit
	burst    int
}

// NewServer creates a new webhook server
func NewServer(addr string, port int, handler Handler, policy *timepolicy.Policy, webhookSecret string) *Server {
	return &Server{
		addr:          addr,
		port:          port,
		handler:       handler,
		policy:        policy,
		webhookSecret: webhookSecret,
		rateLimiter:   NewRateLimiter(10, time.Second), // 10 requests per second per guild
	}
}

// NewRateLimiter creates a rate limiter allowing limit requests per window
// for each key.
func NewRateLimiter(limit int, window time.Duration) *RateLimiter {
	return &RateLimiter{
		limiters: make(map[string]*rate.Limiter),
		limit:    rate.Every(window / time.Duration(limit)),
		burst:    limit,
	}
}

// Allow checks if a request for the given guild should be allowed
func (rl *RateLimiter) Allow(guild string) bool {
	rl.mu.Lock()
	l, exists := rl.limiters[guild]
	if !exists {
		l = rate.NewLimiter(rl.limit, rl.burst)
		rl.limiters[guild] = l
	}
	rl.mu.Unlock()

	return l.Allow()
}

// Handler returns the server's routes.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.handleWebhook)
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	return mux
}

// Start starts the webhook server and blocks until ctx is canceled
func (s *Server) Start(ctx context.Context) error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.addr, s.port),
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext: func(_ net.Listener) context.Context {
			return log.IntoContext(context.Background(), log.Log.WithName("webhook"))
		},
	}

	errChan := make(chan error, 1)
	go func() {
		log.Log.Info("Starting webhook server", "addr", s.server.Addr)
		if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		return err
	}
}

// Shutdown gracefully stops the server
func (s *Server) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	log.Log.Info("Shutting down webhook server")
	return s.server.Shutdown(ctx)
}

// handleHealth handles health check requests
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK")) //nolint:errcheck,gosec
}

// handleWebhook handles signed event notifications
func (s *Server) handleWebhook(w http.ResponseWriter, r *http.Request) {
	logger := log.FromContext(r.Context())

	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	payload, err := io.ReadAll(io.LimitReader(r.Body, maxPayloadBytes))
	if err != nil {
		logger.Error(err, "Failed to read request body")
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}
	defer r.Body.Close()

	if !ValidateSignature(payload, r.Header.Get(SignatureHeader), s.webhookSecret) {
		logger.Info("Invalid webhook signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	ctx := r.Context()
	eventType := strings.ToLower(r.Header.Get(EventHeader))
	switch eventType {
	case EventScheduledCreate:
		var payloadEvent ScheduledEvent
		if !s.decode(w, payload, &payloadEvent) || !s.allow(w, payloadEvent.GuildID) {
			return
		}
		ev, err := payloadEvent.toEvent()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.handler.OnCreate(ctx, ev); err != nil {
			logger.Error(err, "Failed to handle scheduled event creation", "event", ev.ID)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)

	case EventScheduledUpdate:
		var update UpdateEvent
		if !s.decode(w, payload, &update) || !s.allow(w, update.After.GuildID) {
			return
		}
		after, err := update.After.toEvent()
		if err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		before := after
		before.Status = event.StatusUnknown
		if update.Before != nil {
			before.Status = event.Status(update.Before.Status)
		}
		if err := s.handler.OnUpdate(ctx, before, after); err != nil {
			logger.Error(err, "Failed to handle scheduled event update", "event", after.ID)
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)

	case EventStart:
		var start StartEvent
		if !s.decode(w, payload, &start) || !s.allow(w, start.GuildID) {
			return
		}
		s.handleStart(w, r, &start)

	default:
		logger.V(1).Info("Ignoring unknown event", "event", eventType)
		w.WriteHeader(http.StatusOK)
	}
}

// handleStart starts an event on demand and answers with the acknowledgement
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request, start *StartEvent) {
	ctx := r.Context()
	logger := log.FromContext(ctx)

	name := strings.TrimSpace(start.Name)
	if start.ID == "" || name == "" {
		http.Error(w, "id and name are required", http.StatusBadRequest)
		return
	}
	guildID, err := event.ParseSnowflake(start.GuildID)
	if err != nil || guildID.IsZero() {
		http.Error(w, "invalid guild_id", http.StatusBadRequest)
		return
	}

	rec, err := s.handler.StartManual(ctx, start.ID, name, guildID)
	if err != nil {
		logger.Error(err, "Failed to start event", "event", start.ID)
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	startTime, _ := rec.StartTime.Time()
	deleteAfter, _ := rec.DeleteAfter.Time()
	resp := StartResponse{
		ID:          rec.ID,
		ChannelID:   rec.ChannelID.String(),
		StartTime:   s.policy.Format(startTime),
		DeleteAfter: s.policy.Format(deleteAfter),
		Message:     fmt.Sprintf("Event '%s' started at %s.", name, s.policy.Format(startTime)),
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusCreated)
	if err := json.NewEncoder(w).Encode(resp); err != nil {
		logger.Error(err, "Failed to write response")
	}
}

func (s *Server) decode(w http.ResponseWriter, payload []byte, v any) bool {
	if err := json.Unmarshal(payload, v); err != nil {
		http.Error(w, "Invalid JSON", http.StatusBadRequest)
		return false
	}
	return true
}

func (s *Server) allow(w http.ResponseWriter, guild string) bool {
	if !s.rateLimiter.Allow(guild) {
		http.Error(w, "Too many requests", http.StatusTooManyRequests)
		return false
	}
	return true
}
