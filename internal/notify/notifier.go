// Package notify pushes position lifecycle alerts to operators. Alerts are
// dispatched to all registered senders (Telegram, Discord) and can be
// filtered by event type so operators receive only what they care about.
package notify

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/quantessence/discretionary-engine/internal/domain"
)

// Event types emitted by the engine.
const (
	EventPositionAcquired     = "position_acquired"
	EventPositionClosed       = "position_closed"
	EventFollowupDegraded     = "followup_degraded"
	EventProtocolDisconnected = "protocol_disconnected"
	EventError                = "error"
)

// Notification is one alert as handed to every sender. The event type rides
// along so senders can render severity their own way (colour, tags).
type Notification struct {
	Event   string
	Title   string
	Message string
}

// Sender is the interface that each notification channel must implement.
type Sender interface {
	// Send delivers one notification.
	Send(ctx context.Context, n Notification) error
	// Name returns a human-readable identifier for the sender.
	Name() string
}

// Notifier dispatches notifications to one or more Senders. It maintains a
// set of allowed event types; Notify only forwards messages whose event type
// is in the allowed set.
type Notifier struct {
	senders []Sender
	events  map[string]bool
	logger  *slog.Logger
}

// NewNotifier creates a Notifier that will deliver to the given senders. Only
// events whose type appears in the events slice will be forwarded by Notify.
// If events is empty, all event types are allowed.
func NewNotifier(senders []Sender, events []string, logger *slog.Logger) *Notifier {
	allowed := make(map[string]bool, len(events))
	for _, e := range events {
		allowed[strings.TrimSpace(e)] = true
	}
	return &Notifier{
		senders: senders,
		events:  allowed,
		logger:  logger.With(slog.String("component", "notifier")),
	}
}

// Notify sends a notification to all senders only if the event type is in
// the allowed list.
func (n *Notifier) Notify(ctx context.Context, event, title, message string) error {
	if len(n.events) > 0 && !n.events[event] {
		n.logger.DebugContext(ctx, "event filtered out",
			slog.String("event", event),
		)
		return nil
	}
	return n.dispatch(ctx, Notification{Event: event, Title: title, Message: message})
}

// PositionAcquired reports a completed market entry.
func (n *Notifier) PositionAcquired(ctx context.Context, acq domain.PositionAcquisition) {
	_ = n.Notify(ctx, EventPositionAcquired,
		fmt.Sprintf("Position acquired: %s %s", acq.Spec.Side, acq.Symbol),
		fmt.Sprintf("Notional %.2f USDT (target %.2f), quantity %.8g, order %d.",
			acq.AcquiredNotional, acq.TargetNotional, acq.Quantity, acq.OrderID))
}

// PositionClosed reports a finished followup, clean or degraded.
func (n *Notifier) PositionClosed(ctx context.Context, report domain.FollowupReport) {
	if report.Clean {
		_ = n.Notify(ctx, EventPositionClosed,
			fmt.Sprintf("Position closed: %s", report.Acquisition.Symbol),
			fmt.Sprintf("Closed %.2f of %.2f USDT.", report.ClosedNotional, report.Acquisition.AcquiredNotional))
		return
	}
	_ = n.Notify(ctx, EventFollowupDegraded,
		fmt.Sprintf("Followup ended degraded: %s", report.Acquisition.Symbol),
		fmt.Sprintf("All event sources gone with %.2f of %.2f USDT still open. Manual intervention may be required.",
			report.Acquisition.AcquiredNotional-report.ClosedNotional, report.Acquisition.AcquiredNotional))
}

// ProtocolDisconnected reports a producer whose signal source died mid-run.
func (n *Notifier) ProtocolDisconnected(ctx context.Context, producer string, err error) {
	msg := "Its last order batch stays in force with its budget share frozen."
	if err != nil {
		msg = fmt.Sprintf("%s Cause: %v.", msg, err)
	}
	_ = n.Notify(ctx, EventProtocolDisconnected,
		fmt.Sprintf("Protocol disconnected: %s", producer), msg)
}

// EngineError reports a fatal engine failure.
func (n *Notifier) EngineError(ctx context.Context, err error) {
	_ = n.Notify(ctx, EventError, "Engine error", err.Error())
}

// dispatch iterates over all senders and sends the notification. Errors from
// individual senders are collected and returned as a combined error; a
// single sender failure does not prevent delivery to the remaining senders.
func (n *Notifier) dispatch(ctx context.Context, note Notification) error {
	if len(n.senders) == 0 {
		return nil
	}

	var errs []string
	for _, s := range n.senders {
		if err := s.Send(ctx, note); err != nil {
			n.logger.ErrorContext(ctx, "sender failed",
				slog.String("sender", s.Name()),
				slog.String("error", err.Error()),
			)
			errs = append(errs, fmt.Sprintf("%s: %v", s.Name(), err))
		} else {
			n.logger.DebugContext(ctx, "notification sent",
				slog.String("sender", s.Name()),
				slog.String("title", note.Title),
			)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("notify: %d sender(s) failed: %s", len(errs), strings.Join(errs, "; "))
	}
	return nil
}

// postJSON is the HTTP delivery shared by the webhook-style senders.
func postJSON(ctx context.Context, client *http.Client, name, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("%s: create request: %w", name, err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("%s: send request: %w", name, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s: unexpected status %d: %s", name, resp.StatusCode, respBody)
	}
	return nil
}
