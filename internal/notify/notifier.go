// Package notify delivers engine alerts. Operator channels (Discord, the
// default Telegram chat) receive broadcast alerts like freezes and feed
// outages; enrolled accounts receive their own trade digests over Telegram,
// where the account ID doubles as the chat ID.
package notify

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
)

// Event types the engine emits. Operators can restrict broadcast delivery to
// a subset of these.
const (
	EventFreeze     = "freeze"
	EventThaw       = "thaw"
	EventDrawdown   = "drawdown"
	EventFeedOutage = "feed_outage"
	EventStartup    = "startup"
)

// Sender is one broadcast notification channel.
type Sender interface {
	// Send delivers a notification with the given title and message body.
	Send(ctx context.Context, title, message string) error
	// Name returns a human-readable identifier for the sender (e.g. "telegram").
	Name() string
}

// DirectSender can additionally address a single recipient. Recipient
// semantics are channel-specific; for Telegram it is the chat ID.
type DirectSender interface {
	SendTo(ctx context.Context, recipient, title, message string) error
}

// Notifier dispatches broadcast alerts to one or more Senders and routes
// per-account messages through the first registered DirectSender.
type Notifier struct {
	senders []Sender
	direct  DirectSender
	events  map[string]bool // allowed event types for broadcast
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice are forwarded by Notify; an
// empty list allows everything. The first sender that also implements
// DirectSender becomes the per-account channel.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	n := &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
	for _, s := range senders {
		if d, ok := s.(DirectSender); ok {
			n.direct = d
			break
		}
	}
	return n
}

// Notify sends a broadcast alert to all senders if the event type is allowed.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, title, message)
}

// NotifyAll sends a broadcast alert to all senders regardless of event type.
func (n *Notifier) NotifyAll(ctx context.Context, title, message string) error {
	return n.dispatch(ctx, title, message)
}

// SendTo delivers a message to a single account's channel. It is a no-op
// when no DirectSender is registered.
func (n *Notifier) SendTo(ctx context.Context, accountID int64, title, message string) error {
	if n.direct == nil {
		return nil
	}
	if err := n.direct.SendTo(ctx, strconv.FormatInt(accountID, 10), title, message); err != nil {
		n.logger.WarnContext(ctx, "direct send failed",
			slog.Int64("account_id", accountID),
			slog.String("error", err.Error()),
		)
		return err
	}
	return nil
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a single
// sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, title, message string) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, title, message); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}
