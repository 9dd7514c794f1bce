package queue

import (
	"context"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog"
)

// EnqueueChannel is the Postgres NOTIFY channel raised by the enqueue
// statement.
const EnqueueChannel = "jobs_enqueued"

// Listener turns Postgres notifications into queue wakeups so idle workers
// do not wait for the next poll tick.
type Listener struct {
	dsn    string
	queue  *Queue
	logger zerolog.Logger
}

func NewListener(dsn string, q *Queue, logger zerolog.Logger) *Listener {
	return &Listener{dsn: dsn, queue: q, logger: logger}
}

func (l *Listener) Run(ctx context.Context) error {
	listener := pq.NewListener(l.dsn, time.Second, time.Minute, func(ev pq.ListenerEventType, err error) {
		if err != nil {
			l.logger.Warn().Err(err).Int("event", int(ev)).Msg("queue: listener event")
		}
	})
	defer listener.Close()
	if err := listener.Listen(EnqueueChannel); err != nil {
		return err
	}
	l.logger.Info().Str("channel", EnqueueChannel).Msg("queue: listening for enqueues")

	for {
		select {
		case <-ctx.Done():
			return nil
		case n := <-listener.Notify:
			// nil after a reconnect; wake anyway in case notifications were lost.
			if n != nil {
				l.logger.Debug().Str("lane", n.Extra).Msg("queue: enqueue notification")
			}
			l.queue.Signal()
		case <-time.After(90 * time.Second):
			go func() {
				if err := listener.Ping(); err != nil {
					l.logger.Warn().Err(err).Msg("queue: listener ping failed")
				}
			}()
		}
	}
}
