package notifications

import (
	"context"
	"log/slog"

	"moodle-bridge/services/notifications/db"
)

// Deliverer pushes one stored notification to its destination and marks
// it sent on success.
type Deliverer interface {
	Deliver(ctx context.Context, notification db.Notification) error
}

// ChannelQueue is an in-process delivery queue. Enqueue never blocks, a
// full queue drops the entry, the unsent sweep picks it up later.
type ChannelQueue struct {
	ch chan db.Notification
}

func NewChannelQueue(size int) *ChannelQueue {
	return &ChannelQueue{ch: make(chan db.Notification, size)}
}

func (q *ChannelQueue) Enqueue(notification db.Notification) bool {
	select {
	case q.ch <- notification:
		return true
	default:
		return false
	}
}

// Run consumes the queue until the context is cancelled. Delivery
// failures are logged, not retried here, the row stays unsent.
func (q *ChannelQueue) Run(ctx context.Context, deliverer Deliverer) {
	for {
		select {
		case <-ctx.Done():
			return
		case notification := <-q.ch:
			err := deliverer.Deliver(ctx, notification)
			if err != nil {
				slog.WarnContext(ctx, "failed to deliver notification",
					"id", notification.NotificationID, "err", err)
			}
		}
	}
}
