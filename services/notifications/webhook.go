package notifications

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"moodle-bridge/services/notifications/db"

	"github.com/go-resty/resty/v2"
	"github.com/mazen160/go-random"
	"go.opentelemetry.io/otel/codes"
)

type WebhookConfig struct {
	Url string `json:"url"`
	// SharedSecret authenticates this sender to the receiver. When
	// empty a random one is generated and logged at startup.
	SharedSecret string `json:"shared_secret"`
}

type webhookPayload struct {
	NotificationId string `json:"notification_id"`
	Message        string `json:"message"`
	AriaLabel      string `json:"aria_label"`
	Timestamp      int64  `json:"timestamp"`
	SharedSecret   string `json:"shared_secret"`
}

// WebhookDeliverer posts stored notifications to a configured endpoint
// and marks them sent once the endpoint acknowledges.
type WebhookDeliverer struct {
	qry    *db.Queries
	http   *resty.Client
	secret string
}

func NewWebhookDeliverer(database *sql.DB, config WebhookConfig) (WebhookDeliverer, error) {
	secret := config.SharedSecret
	if secret == "" {
		var err error
		secret, err = random.String(32)
		if err != nil {
			return WebhookDeliverer{}, fmt.Errorf("generate shared secret: %w", err)
		}
		slog.Warn("no webhook shared secret configured, generated one", "secret", secret)
	}

	client := resty.New().
		SetBaseURL(config.Url).
		SetTimeout(time.Second * 5)

	return WebhookDeliverer{
		qry:    db.New(database),
		http:   client,
		secret: secret,
	}, nil
}

func (d WebhookDeliverer) Deliver(ctx context.Context, notification db.Notification) error {
	ctx, span := tracer.Start(ctx, "Deliver")
	defer span.End()

	res, err := d.http.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(webhookPayload{
			NotificationId: notification.NotificationID,
			Message:        notification.Message,
			AriaLabel:      notification.AriaLabel,
			Timestamp:      notification.Timestamp,
			SharedSecret:   d.secret,
		}).
		Post("")
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "webhook request failed")
		return fmt.Errorf("post webhook: %w", err)
	}
	if !res.IsSuccess() {
		span.SetStatus(codes.Error, "webhook returned an error status")
		return fmt.Errorf("post webhook: status %d", res.StatusCode())
	}

	err = d.qry.MarkNotificationSent(ctx, notification.NotificationID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to mark notification sent")
		return err
	}
	return nil
}

// DeliverUnsent sweeps rows that never made it out, queue drops and
// restarts leave those behind. A failing row is logged and skipped so
// one dead notification cannot wedge the sweep.
func (d WebhookDeliverer) DeliverUnsent(ctx context.Context) (int, error) {
	ctx, span := tracer.Start(ctx, "DeliverUnsent")
	defer span.End()

	unsent, err := d.qry.ListUnsentNotifications(ctx)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "failed to list unsent notifications")
		return 0, err
	}

	sent := 0
	for _, notification := range unsent {
		err := d.Deliver(ctx, notification)
		if err != nil {
			slog.WarnContext(ctx, "failed to deliver unsent notification",
				"id", notification.NotificationID, "err", err)
			continue
		}
		sent++
	}
	return sent, nil
}
