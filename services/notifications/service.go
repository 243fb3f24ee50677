// Package notifications ingests scraped moodle notifications, keeps a
// deduplicated record of them and pushes newly seen ones to a webhook.
package notifications

import (
	"context"
	"database/sql"
	"log/slog"
	"strconv"
	"time"

	"moodle-bridge/lib/scrapers/moodle/notify"
	"moodle-bridge/services/notifications/db"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/codes"

	_ "modernc.org/sqlite"
)

var tracer = otel.Tracer("moodle-bridge.services.notifications")

const ariaLabelMaxRunes = 50

// Queue accepts stored notifications for asynchronous delivery.
type Queue interface {
	Enqueue(notification db.Notification) bool
}

type Service struct {
	db    *sql.DB
	qry   *db.Queries
	queue Queue
}

func NewService(database *sql.DB, queue Queue) Service {
	return Service{
		db:    database,
		qry:   db.New(database),
		queue: queue,
	}
}

// Ingest records a scraped batch. Notifications already seen are left
// untouched, new ones are stored and handed to the queue. Returns how
// many were new.
func (s Service) Ingest(ctx context.Context, batch []notify.Notification) (int, error) {
	ctx, span := tracer.Start(ctx, "Ingest")
	defer span.End()

	created := 0
	for _, incoming := range batch {
		id := string(incoming.Id)
		if id == "" {
			slog.WarnContext(ctx, "skipping notification without an id",
				"subject", incoming.Subject)
			continue
		}

		record := db.UpsertNotificationParams{
			NotificationID: id,
			Message:        messageFor(incoming),
			Timestamp:      timestampFor(incoming),
		}
		record.AriaLabel = ariaLabelFor(incoming, record.Message)

		rows, err := s.qry.UpsertNotification(ctx, record)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "failed to upsert notification")
			return created, err
		}
		if rows == 0 {
			continue
		}

		created++
		stored := db.Notification{
			NotificationID: record.NotificationID,
			Message:        record.Message,
			AriaLabel:      record.AriaLabel,
			Timestamp:      record.Timestamp,
		}
		if !s.queue.Enqueue(stored) {
			slog.WarnContext(ctx, "delivery queue is full, notification stays unsent",
				"id", id)
		}
	}

	return created, nil
}

func messageFor(incoming notify.Notification) string {
	if incoming.FullMessage != "" {
		return incoming.FullMessage
	}
	if incoming.FullMessageHTML != "" {
		return incoming.FullMessageHTML
	}
	return incoming.SmallMessage
}

func ariaLabelFor(incoming notify.Notification, message string) string {
	if incoming.Subject != "" {
		return incoming.Subject
	}
	runes := []rune(message)
	if len(runes) > ariaLabelMaxRunes {
		return string(runes[:ariaLabelMaxRunes])
	}
	return message
}

func timestampFor(incoming notify.Notification) int64 {
	epoch, err := strconv.ParseInt(string(incoming.TimeCreated), 10, 64)
	if err != nil {
		return time.Now().UTC().Unix()
	}
	return epoch
}
