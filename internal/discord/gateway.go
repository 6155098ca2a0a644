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
	"fmt"
	"strings"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/go-logr/logr"
	"sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/mikelane/eventkeeper/internal/event"
	"github.com/mikelane/eventkeeper/internal/timepolicy"
)

// StartCommand is the chat command that starts an event on demand.
const StartCommand = "!start_event"

// Intents are the gateway intents the bot needs.
const Intents = discordgo.IntentGuilds |
	discordgo.IntentGuildMessages |
	discordgo.IntentMessageContent |
	discordgo.IntentGuildScheduledEvents

// Handler receives normalized event notifications.
type Handler interface {
	StartManual(ctx context.Context, id, name string, guildID event.Snowflake) (event.Record, error)
	OnCreate(ctx context.Context, ev event.ScheduledEvent) error
	OnUpdate(ctx context.Context, before, after event.ScheduledEvent) error
}

// Replier sends chat replies. *discordgo.Session satisfies it.
type Replier interface {
	ChannelMessageSend(channelID, content string, options ...discordgo.RequestOption) (*discordgo.Message, error)
}

// Gateway adapts discordgo gateway events to a Handler.
type Gateway struct {
	handler Handler
	replier Replier
	policy  *timepolicy.Policy
	logger  logr.Logger

	mu       sync.Mutex
	statuses map[string]event.Status
}

// NewGateway returns a Gateway delivering to handler and replying through replier.
func NewGateway(handler Handler, replier Replier, policy *timepolicy.Policy) *Gateway {
	return &Gateway{
		handler:  handler,
		replier:  replier,
		policy:   policy,
		logger:   log.Log.WithName("discord"),
		statuses: make(map[string]event.Status),
	}
}

// Register installs the gateway's handlers on session. It returns a function
// removing them again.
func (g *Gateway) Register(session *discordgo.Session) func() {
	removers := []func(){
		session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildScheduledEventCreate) {
			g.HandleCreate(g.context(), e.GuildScheduledEvent)
		}),
		session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildScheduledEventUpdate) {
			g.HandleUpdate(g.context(), e.GuildScheduledEvent)
		}),
		session.AddHandler(func(_ *discordgo.Session, e *discordgo.GuildScheduledEventDelete) {
			g.HandleDelete(g.context(), e.GuildScheduledEvent)
		}),
		session.AddHandler(func(_ *discordgo.Session, m *discordgo.MessageCreate) {
			g.HandleMessage(g.context(), m.Message)
		}),
	}
	return func() {
		for _, remove := range removers {
			remove()
		}
	}
}

func (g *Gateway) context() context.Context {
	return log.IntoContext(context.Background(), g.logger)
}

// HandleCreate forwards a newly scheduled event.
func (g *Gateway) HandleCreate(ctx context.Context, e *discordgo.GuildScheduledEvent) {
	ev, ok := g.convert(ctx, e)
	if !ok {
		return
	}
	g.remember(ev.ID, ev.Status)

	if err := g.handler.OnCreate(ctx, ev); err != nil {
		log.FromContext(ctx).Error(err, "Failed to handle scheduled event creation", "event", ev.ID)
	}
}

// HandleUpdate forwards a status change. The platform does not send the
// previous state, so the last status seen for the event stands in for it.
func (g *Gateway) HandleUpdate(ctx context.Context, e *discordgo.GuildScheduledEvent) {
	after, ok := g.convert(ctx, e)
	if !ok {
		return
	}
	before := after
	before.Status = g.remember(after.ID, after.Status)

	if err := g.handler.OnUpdate(ctx, before, after); err != nil {
		log.FromContext(ctx).Error(err, "Failed to handle scheduled event update", "event", after.ID)
	}
}

// HandleDelete forgets the event's last status.
func (g *Gateway) HandleDelete(_ context.Context, e *discordgo.GuildScheduledEvent) {
	if e == nil {
		return
	}
	g.mu.Lock()
	delete(g.statuses, e.ID)
	g.mu.Unlock()
}

// HandleMessage runs the start command when m carries one.
func (g *Gateway) HandleMessage(ctx context.Context, m *discordgo.Message) {
	if m == nil || m.GuildID == "" || (m.Author != nil && m.Author.Bot) {
		return
	}
	name, ok := ParseStartCommand(m.Content)
	if !ok {
		return
	}
	logger := log.FromContext(ctx).WithValues("message", m.ID, "channel", m.ChannelID)

	if name == "" {
		g.reply(ctx, m.ChannelID, fmt.Sprintf("Usage: %s <event name>", StartCommand))
		return
	}

	guildID, err := event.ParseSnowflake(m.GuildID)
	if err != nil {
		logger.Error(err, "Ignoring command from unparseable guild")
		return
	}

	rec, err := g.handler.StartManual(ctx, m.ID, name, guildID)
	if err != nil {
		logger.Error(err, "Failed to start event", "name", name)
		if !rec.HasChannel() {
			g.reply(ctx, m.ChannelID, fmt.Sprintf("Failed to start event '%s'.", name))
			return
		}
	}

	start, _ := rec.StartTime.Time()
	g.reply(ctx, m.ChannelID, fmt.Sprintf("Event '%s' started at %s.", name, g.policy.Format(start)))
}

// ParseStartCommand extracts the event name from a start command. The name
// is the rest of the line with surrounding quotes removed. ok is false when
// content is not a start command.
func ParseStartCommand(content string) (name string, ok bool) {
	content = strings.TrimSpace(content)
	rest, found := strings.CutPrefix(content, StartCommand)
	if !found {
		return "", false
	}
	if rest != "" && rest[0] != ' ' && rest[0] != '\t' {
		return "", false
	}
	if i := strings.IndexByte(rest, '\n'); i >= 0 {
		rest = rest[:i]
	}
	rest = strings.TrimSpace(rest)
	rest = strings.Trim(rest, `"'`)
	return strings.TrimSpace(rest), true
}

func (g *Gateway) reply(ctx context.Context, channelID, content string) {
	if _, err := g.replier.ChannelMessageSend(channelID, content, discordgo.WithContext(ctx)); err != nil {
		log.FromContext(ctx).Error(err, "Failed to send reply", "channel", channelID)
	}
}

// remember stores status as the event's last seen status and returns the
// previous one. Completed and canceled events are final and are forgotten.
func (g *Gateway) remember(id string, status event.Status) event.Status {
	g.mu.Lock()
	defer g.mu.Unlock()
	previous := g.statuses[id]
	switch status {
	case event.StatusCompleted, event.StatusCanceled:
		delete(g.statuses, id)
	default:
		g.statuses[id] = status
	}
	return previous
}

func (g *Gateway) convert(ctx context.Context, e *discordgo.GuildScheduledEvent) (event.ScheduledEvent, bool) {
	if e == nil {
		return event.ScheduledEvent{}, false
	}
	guildID, err := event.ParseSnowflake(e.GuildID)
	if err != nil {
		log.FromContext(ctx).Error(err, "Ignoring scheduled event with invalid guild", "event", e.ID)
		return event.ScheduledEvent{}, false
	}
	return event.ScheduledEvent{
		ID:        e.ID,
		GuildID:   guildID,
		Name:      e.Name,
		StartTime: e.ScheduledStartTime,
		EndTime:   e.ScheduledEndTime,
		Status:    event.Status(e.Status),
	}, true
}
