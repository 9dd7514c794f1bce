// Package notify delivers fire-and-forget user notifications. Delivery
// failures are logged and never propagated to the operation that triggered
// them.
package notify

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

type EventType string

const (
	EventLowCredit      EventType = "low_credit"
	EventCreditExhaust  EventType = "credit_exhausted"
	EventBatchCompleted EventType = "batch_completed"
)

// Event is the payload published to the notification boundary.
type Event struct {
	Type   EventType      `json:"type"`
	UserID string         `json:"user_id"`
	Data   map[string]any `json:"data,omitempty"`
	At     time.Time      `json:"at"`
}

// Notifier publishes a single event.
type Notifier interface {
	Notify(ctx context.Context, evt Event) error
}

// Dispatcher sends events asynchronously with a bounded timeout.
type Dispatcher struct {
	notifier Notifier
	logger   zerolog.Logger
	timeout  time.Duration
	wg       sync.WaitGroup
}

func NewDispatcher(notifier Notifier, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{notifier: notifier, logger: logger, timeout: 10 * time.Second}
}

// Send queues evt for delivery and returns immediately.
func (d *Dispatcher) Send(evt Event) {
	if d == nil || d.notifier == nil {
		return
	}
	if evt.At.IsZero() {
		evt.At = time.Now().UTC()
	}
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), d.timeout)
		defer cancel()
		if err := d.notifier.Notify(ctx, evt); err != nil {
			d.logger.Warn().Err(err).
				Str("event", string(evt.Type)).
				Str("user_id", evt.UserID).
				Msg("notify: delivery failed")
			return
		}
		d.logger.Debug().Str("event", string(evt.Type)).Str("user_id", evt.UserID).Msg("notify: delivered")
	}()
}

// Wait blocks until in-flight deliveries finish. Used on shutdown.
func (d *Dispatcher) Wait() {
	if d == nil {
		return
	}
	d.wg.Wait()
}

// LogNotifier writes events to the log. Used when no broker is configured.
type LogNotifier struct {
	Logger zerolog.Logger
}

func (n LogNotifier) Notify(_ context.Context, evt Event) error {
	n.Logger.Info().
		Str("event", string(evt.Type)).
		Str("user_id", evt.UserID).
		Interface("data", evt.Data).
		Msg("notify: event")
	return nil
}
