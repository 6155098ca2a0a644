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

package discord

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net/http"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/provision"
)

// Session is the part of *discordgo.Session the provisioner uses.
type Session interface {
	GuildChannels(guildID string, options ...discordgo.RequestOption) ([]*discordgo.Channel, error)
	GuildChannelCreateComplex(guildID string, data discordgo.GuildChannelCreateData, options ...discordgo.RequestOption) (*discordgo.Channel, error)
	ChannelDelete(channelID string, options ...discordgo.RequestOption) (*discordgo.Channel, error)
}

// RetryConfig defines the retry behavior for API calls
type RetryConfig struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

// DefaultRetryConfig is used when NewProvisioner gets a nil config.
var DefaultRetryConfig = RetryConfig{
	MaxRetries:     3,
	InitialBackoff: 100 * time.Millisecond,
	MaxBackoff:     30 * time.Second,
}

// Provisioner implements provision.Provisioner against the Discord REST API.
type Provisioner struct {
	session     Session
	retryConfig RetryConfig

	// serializes category lookup so concurrent activations in one guild
	// never create two categories
	categoryMu sync.Mutex
}

var _ provision.Provisioner = (*Provisioner)(nil)

// NewProvisioner returns a Provisioner using session. A nil retry config
// selects DefaultRetryConfig.
func NewProvisioner(session Session, retry *RetryConfig) *Provisioner {
	cfg := DefaultRetryConfig
	if retry != nil {
		cfg = *retry
	}
	return &Provisioner{session: session, retryConfig: cfg}
}

// EnsureCategory returns the guild's category called name, creating it when
// the guild has none.
func (p *Provisioner) EnsureCategory(ctx context.Context, guildID event.Snowflake, name string) (provision.Category, error) {
	p.categoryMu.Lock()
	defer p.categoryMu.Unlock()

	var channels []*discordgo.Channel
	err := p.executeWithRetry(ctx, func() error {
		var err error
		channels, err = p.session.GuildChannels(guildID.String(), discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return provision.Category{}, fmt.Errorf("failed to list channels of guild %s: %w", guildID, mapError(err))
	}

	for _, ch := range channels {
		if ch != nil && ch.Type == discordgo.ChannelTypeGuildCategory && ch.Name == name {
			return convertCategory(ch)
		}
	}

	var created *discordgo.Channel
	err = p.executeWithRetry(ctx, func() error {
		var err error
		created, err = p.session.GuildChannelCreateComplex(guildID.String(), discordgo.GuildChannelCreateData{
			Name: name,
			Type: discordgo.ChannelTypeGuildCategory,
		}, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return provision.Category{}, fmt.Errorf("failed to create category %q: %w", name, mapError(err))
	}

	log.FromContext(ctx).Info("Created category", "guild", guildID, "category", name)
	return convertCategory(created)
}

// CreateChannel creates a text channel under category. Each call creates a
// new channel.
func (p *Provisioner) CreateChannel(ctx context.Context, guildID event.Snowflake, category provision.Category, name string) (provision.Channel, error) {
	data := discordgo.GuildChannelCreateData{
		Name: name,
		Type: discordgo.ChannelTypeGuildText,
	}
	if !category.ID.IsZero() {
		data.ParentID = category.ID.String()
	}

	var created *discordgo.Channel
	err := p.executeWithRetry(ctx, func() error {
		var err error
		created, err = p.session.GuildChannelCreateComplex(guildID.String(), data, discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return provision.Channel{}, fmt.Errorf("failed to create channel %q: %w", name, mapError(err))
	}

	id, err := event.ParseSnowflake(created.ID)
	if err != nil {
		return provision.Channel{}, fmt.Errorf("created channel %q has invalid id: %w", name, err)
	}
	return provision.Channel{ID: id, Name: created.Name, CategoryID: category.ID}, nil
}

// DeleteChannel deletes a channel. A channel that no longer exists yields
// provision.ErrNotFound.
func (p *Provisioner) DeleteChannel(ctx context.Context, guildID, channelID event.Snowflake) error {
	err := p.executeWithRetry(ctx, func() error {
		_, err := p.session.ChannelDelete(channelID.String(), discordgo.WithContext(ctx))
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to delete channel %s in guild %s: %w", channelID, guildID, mapError(err))
	}
	return nil
}

// executeWithRetry executes an operation with exponential backoff retry
func (p *Provisioner) executeWithRetry(ctx context.Context, operation func() error) error {
	var lastErr error

	for attempt := 0; attempt <= p.retryConfig.MaxRetries; attempt++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		lastErr = operation()
		if lastErr == nil {
			return nil
		}
		if !isRetryableError(lastErr) {
			return lastErr
		}
		if attempt == p.retryConfig.MaxRetries {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(p.calculateBackoff(attempt)):
		}
	}

	return fmt.Errorf("operation failed after %d retries: %w", p.retryConfig.MaxRetries, lastErr)
}

// calculateBackoff calculates the backoff duration for a retry attempt
func (p *Provisioner) calculateBackoff(attempt int) time.Duration {
	multiplier := 1 << uint(attempt) // 2^attempt
	base := float64(p.retryConfig.InitialBackoff) * float64(multiplier)

	// jitter of +/-20%
	jitter := (rand.Float64() * 0.4) - 0.2
	backoff := time.Duration(base * (1 + jitter))

	if backoff > p.retryConfig.MaxBackoff {
		backoff = p.retryConfig.MaxBackoff
	}
	return backoff
}

// isRetryableError determines if an error should trigger a retry
func isRetryableError(err error) bool {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) || restErr.Response == nil {
		return false
	}
	switch restErr.Response.StatusCode {
	case http.StatusTooManyRequests,
		http.StatusInternalServerError,
		http.StatusBadGateway,
		http.StatusServiceUnavailable,
		http.StatusGatewayTimeout:
		return true
	}
	return false
}

// mapError folds the platform's "unknown channel/guild" answers into
// provision.ErrNotFound and its access denials into provision.ErrForbidden.
func mapError(err error) error {
	var restErr *discordgo.RESTError
	if !errors.As(err, &restErr) {
		return err
	}
	if restErr.Message != nil {
		switch restErr.Message.Code {
		case discordgo.ErrCodeUnknownChannel, discordgo.ErrCodeUnknownGuild:
			return fmt.Errorf("%w: %v", provision.ErrNotFound, err)
		case discordgo.ErrCodeMissingAccess, discordgo.ErrCodeMissingPermissions:
			return fmt.Errorf("%w: %v", provision.ErrForbidden, err)
		}
	}
	if restErr.Response != nil {
		switch restErr.Response.StatusCode {
		case http.StatusNotFound:
			return fmt.Errorf("%w: %v", provision.ErrNotFound, err)
		case http.StatusUnauthorized, http.StatusForbidden:
			return fmt.Errorf("%w: %v", provision.ErrForbidden, err)
		}
	}
	return err
}

func convertCategory(ch *discordgo.Channel) (provision.Category, error) {
	id, err := event.ParseSnowflake(ch.ID)
	if err != nil {
		return provision.Category{}, fmt.Errorf("category %q has invalid id: %w", ch.Name, err)
	}
	return provision.Category{ID: id, Name: ch.Name}, nil
}
