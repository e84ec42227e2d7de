// Package notify reports schedule and power outcomes to the log, the
// key-value store and an optional Telegram chat.
package notify

import (
	"context"
	"log/slog"
)

// Store persists the last message under a key
type Store interface {
	Set(ctx context.Context, key, value string) error
}

// Messenger delivers a message to an external chat
type Messenger interface {
	Send(ctx context.Context, text string) error
}

// Notifier fans a message out to its sinks
type Notifier struct {
	logger     *slog.Logger
	store      Store
	messenger  Messenger
	deviceName string
}

// New creates a notifier. A nil store disables persisting and a nil
// messenger disables external messages.
func New(logger *slog.Logger, store Store, messenger Messenger, deviceName string) *Notifier {
	if logger == nil {
		logger = slog.Default()
	}
	return &Notifier{
		logger:     logger.With("component", "notifier"),
		store:      store,
		messenger:  messenger,
		deviceName: deviceName,
	}
}

// Notify logs message, overwrites persistKey with it when set, and sends it
// externally when messaging is enabled and sendExternally is true. Sink
// failures are logged and never returned.
func (n *Notifier) Notify(ctx context.Context, message string, sendExternally bool, persistKey string) {
	n.logger.Info(message)

	if persistKey != "" && n.store != nil {
		if err := n.store.Set(ctx, persistKey, message); err != nil {
			n.logger.Warn("failed to persist message", "key", persistKey, "error", err)
		}
	}

	if n.messenger == nil || !sendExternally {
		return
	}
	text := message
	if n.deviceName != "" {
		text = n.deviceName + ": " + message
	}
	if err := n.messenger.Send(ctx, text); err != nil {
		n.logger.Warn("failed to send message", "error", err)
	}
}
