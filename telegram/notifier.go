package telegram

import (
	"context"
	"log/slog"

	"termin-notifier/pkg/termin"
)

// Sender delivers a message to a single chat.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// SubscriberStore provides the recipient list and supports pruning.
type SubscriberStore interface {
	List() []int64
	Remove(chatID int64) (bool, error)
}

// Notifier fans messages out to every subscriber.
type Notifier struct {
	sender Sender
	store  SubscriberStore
	logger *slog.Logger
}

// NewNotifier creates a notifier over the given transport and store.
func NewNotifier(sender Sender, store SubscriberStore, logger *slog.Logger) *Notifier {
	return &Notifier{
		sender: sender,
		store:  store,
		logger: logger,
	}
}

// NotifyAvailability tells every subscriber about newly available
// locations. Chats that no longer exist are pruned from the store; other
// per-chat failures are logged and skipped so one bad recipient never
// blocks the rest.
func (n *Notifier) NotifyAvailability(ctx context.Context, available []termin.PollOutcome) error {
	if len(available) == 0 {
		return nil
	}

	message := FormatAvailability(available)
	n.broadcast(ctx, message)
	return nil
}

// NotifyStatus sends an operational status update to every subscriber.
func (n *Notifier) NotifyStatus(ctx context.Context, message, errDetail string) error {
	n.broadcast(ctx, FormatStatusUpdate(message, errDetail))
	return nil
}

func (n *Notifier) broadcast(ctx context.Context, message string) {
	subscribers := n.store.List()
	n.logger.Info("Broadcasting to subscribers", "count", len(subscribers))

	for _, chatID := range subscribers {
		err := n.sender.SendMessage(ctx, chatID, message)
		if err == nil {
			continue
		}
		if IsChatNotFound(err) {
			n.logger.Info("Pruning dead chat", "chat_id", chatID)
			if _, removeErr := n.store.Remove(chatID); removeErr != nil {
				n.logger.Warn("Failed to prune subscriber", "chat_id", chatID, "error", removeErr)
			}
			continue
		}
		n.logger.Error("Failed to notify subscriber", "chat_id", chatID, "error", err)
	}
}
