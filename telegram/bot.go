package telegram

import (
	"context"
	"log/slog"
	"strings"
	"time"

	"termin-notifier/pkg/termin"
)

const longPollSeconds = 50

// CommandStore is the subscriber set as seen by bot commands.
type CommandStore interface {
	Add(chatID int64) (bool, error)
	Remove(chatID int64) (bool, error)
	Contains(chatID int64) bool
	Count() int
}

// Poller runs appointment checks on demand. CheckAll must be read-only
// with respect to the notification seen set: manual checks report, the
// scheduled cycle decides.
type Poller interface {
	CheckAll(ctx context.Context) *termin.AggregateResult
	LastResult() *termin.AggregateResult
}

// UpdateSource long-polls for incoming bot updates.
type UpdateSource interface {
	Updates(ctx context.Context, offset int64, timeout int) ([]Update, error)
}

// Bot dispatches subscriber commands received over Telegram.
type Bot struct {
	client          Sender
	updates         UpdateSource
	store           CommandStore
	poller          Poller
	logger          *slog.Logger
	intervalMinutes int
}

// NewBot wires the command surface.
func NewBot(client Sender, updates UpdateSource, store CommandStore, poller Poller, intervalMinutes int, logger *slog.Logger) *Bot {
	return &Bot{
		client:          client,
		updates:         updates,
		store:           store,
		poller:          poller,
		logger:          logger,
		intervalMinutes: intervalMinutes,
	}
}

// Run long-polls for updates and dispatches commands until the context is
// cancelled. Transient polling errors back off briefly and continue.
func (b *Bot) Run(ctx context.Context) {
	b.logger.Info("Starting Telegram command loop")

	var offset int64
	for {
		select {
		case <-ctx.Done():
			b.logger.Info("Telegram command loop stopped", "reason", ctx.Err())
			return
		default:
		}

		updates, err := b.updates.Updates(ctx, offset, longPollSeconds)
		if err != nil {
			if ctx.Err() != nil {
				continue
			}
			b.logger.Warn("Failed to fetch updates", "error", err)
			select {
			case <-ctx.Done():
			case <-time.After(5 * time.Second):
			}
			continue
		}

		for _, update := range updates {
			if update.UpdateID >= offset {
				offset = update.UpdateID + 1
			}
			b.handleUpdate(ctx, update)
		}
	}
}

func (b *Bot) handleUpdate(ctx context.Context, update Update) {
	if update.Message == nil || !strings.HasPrefix(update.Message.Text, "/") {
		return
	}

	chatID := update.Message.Chat.ID
	command := strings.ToLower(strings.Fields(update.Message.Text)[0])
	// Commands in groups arrive as /command@botname.
	if at := strings.Index(command, "@"); at > 0 {
		command = command[:at]
	}

	b.logger.Info("Command received", "command", command, "chat_id", chatID)

	var reply string
	switch command {
	case "/start":
		reply = welcomeMessage
	case "/help":
		reply = helpMessage
	case "/subscribe":
		reply = b.subscribe(chatID)
	case "/unsubscribe":
		reply = b.unsubscribe(chatID)
	case "/status":
		reply = FormatSubscriberStatus(b.store.Contains(chatID), b.store.Count(), b.intervalMinutes, b.poller.LastResult(), time.Now())
	case "/check":
		b.manualCheck(ctx, chatID)
		return
	default:
		return
	}

	if err := b.client.SendMessage(ctx, chatID, reply); err != nil {
		b.logger.Error("Failed to send command reply", "command", command, "chat_id", chatID, "error", err)
	}
}

func (b *Bot) subscribe(chatID int64) string {
	added, err := b.store.Add(chatID)
	if err != nil {
		b.logger.Error("Failed to add subscriber", "chat_id", chatID, "error", err)
		return "Something went wrong, please try again later."
	}
	if !added {
		return "You're already subscribed!"
	}
	return "✅ You've been subscribed to appointment notifications!\n" +
		"I'll notify you as soon as new appointments become available."
}

func (b *Bot) unsubscribe(chatID int64) string {
	removed, err := b.store.Remove(chatID)
	if err != nil {
		b.logger.Error("Failed to remove subscriber", "chat_id", chatID, "error", err)
		return "Something went wrong, please try again later."
	}
	if !removed {
		return "You're not subscribed."
	}
	return "You've been unsubscribed from notifications."
}

func (b *Bot) manualCheck(ctx context.Context, chatID int64) {
	if err := b.client.SendMessage(ctx, chatID, "🔍 Checking all VHS locations for appointments..."); err != nil {
		b.logger.Error("Failed to send check acknowledgement", "chat_id", chatID, "error", err)
	}

	agg := b.poller.CheckAll(ctx)
	if err := b.client.SendMessage(ctx, chatID, FormatCheckResult(agg)); err != nil {
		b.logger.Error("Failed to send check result", "chat_id", chatID, "error", err)
	}
}
