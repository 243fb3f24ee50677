package notifications

import (
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"moodle-bridge/lib/scrapers/moodle/notify"
	"moodle-bridge/lib/testutil"
	"moodle-bridge/services/notifications/db"

	"github.com/stretchr/testify/require"

	_ "embed"
)

//go:embed db/schema.sql
var schemaSql string

type recordingQueue struct {
	enqueued []db.Notification
	full     bool
}

func (q *recordingQueue) Enqueue(notification db.Notification) bool {
	if q.full {
		return false
	}
	q.enqueued = append(q.enqueued, notification)
	return true
}

func setup(t testing.TB) (Service, *recordingQueue, *sql.DB) {
	res, cleanup := testutil.SetupService(t, testutil.ServiceParams{
		Name:     "services/notifications",
		DbSchema: schemaSql,
	})
	t.Cleanup(cleanup)

	queue := &recordingQueue{}
	return NewService(res.DB, queue), queue, res.DB
}

func TestIngestDeduplicates(t *testing.T) {
	service, queue, _ := setup(t)
	ctx := context.Background()

	batch := []notify.Notification{{
		Id:          "7",
		Subject:     "Nouveau devoir",
		FullMessage: "Le devoir 3 est disponible.",
		TimeCreated: "1700000000",
	}}

	created, err := service.Ingest(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Len(t, queue.enqueued, 1)

	stored, err := service.qry.GetNotification(ctx, "7")
	require.NoError(t, err)
	require.Equal(t, "Le devoir 3 est disponible.", stored.Message)
	require.Equal(t, "Nouveau devoir", stored.AriaLabel)
	require.Equal(t, time.Date(2023, 11, 14, 22, 13, 20, 0, time.UTC).Unix(), stored.Timestamp)
	require.EqualValues(t, 0, stored.Sent)

	// the same id again must neither create a row nor enqueue
	created, err = service.Ingest(ctx, batch)
	require.NoError(t, err)
	require.Equal(t, 0, created)
	require.Len(t, queue.enqueued, 1)
}

func TestIngestFallbacks(t *testing.T) {
	service, _, _ := setup(t)
	ctx := context.Background()

	longMessage := strings.Repeat("é", 80)
	before := time.Now().UTC().Unix()

	created, err := service.Ingest(ctx, []notify.Notification{
		{
			Id:              "10",
			FullMessageHTML: "<p>html only</p>",
			TimeCreated:     "not-a-number",
		},
		{
			Id:          "11",
			FullMessage: longMessage,
			TimeCreated: "1700000000",
		},
	})
	require.NoError(t, err)
	require.Equal(t, 2, created)

	htmlOnly, err := service.qry.GetNotification(ctx, "10")
	require.NoError(t, err)
	require.Equal(t, "<p>html only</p>", htmlOnly.Message)
	// unparseable timestamps fall back to ingestion time
	require.GreaterOrEqual(t, htmlOnly.Timestamp, before)

	truncated, err := service.qry.GetNotification(ctx, "11")
	require.NoError(t, err)
	// no subject, the label is cut at 50 runes, not bytes
	require.Equal(t, strings.Repeat("é", 50), truncated.AriaLabel)
}

func TestIngestSkipsMissingId(t *testing.T) {
	service, queue, _ := setup(t)

	created, err := service.Ingest(context.Background(), []notify.Notification{
		{Subject: "no id at all", FullMessage: "ignored"},
		{Id: "12", FullMessage: "kept"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Len(t, queue.enqueued, 1)
	require.Equal(t, "12", queue.enqueued[0].NotificationID)
}

func TestIngestFullQueueStillStores(t *testing.T) {
	service, queue, _ := setup(t)
	queue.full = true
	ctx := context.Background()

	created, err := service.Ingest(ctx, []notify.Notification{
		{Id: "13", FullMessage: "stored but not enqueued", TimeCreated: "1700000000"},
	})
	require.NoError(t, err)
	require.Equal(t, 1, created)
	require.Empty(t, queue.enqueued)

	stored, err := service.qry.GetNotification(ctx, "13")
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.Sent)
}

func newWebhookServer(t testing.TB, payloads *[]webhookPayload) *httptest.Server {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var payload webhookPayload
		require.NoError(t, json.NewDecoder(r.Body).Decode(&payload))
		*payloads = append(*payloads, payload)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestWebhookDeliver(t *testing.T) {
	_, _, database := setup(t)
	ctx := context.Background()

	var payloads []webhookPayload
	server := newWebhookServer(t, &payloads)

	deliverer, err := NewWebhookDeliverer(database, WebhookConfig{
		Url:          server.URL,
		SharedSecret: "s3cret",
	})
	require.NoError(t, err)

	qry := db.New(database)
	_, err = qry.UpsertNotification(ctx, db.UpsertNotificationParams{
		NotificationID: "7",
		Message:        "Le devoir 3 est disponible.",
		AriaLabel:      "Nouveau devoir",
		Timestamp:      1700000000,
	})
	require.NoError(t, err)

	stored, err := qry.GetNotification(ctx, "7")
	require.NoError(t, err)
	require.NoError(t, deliverer.Deliver(ctx, stored))

	require.Len(t, payloads, 1)
	require.Equal(t, webhookPayload{
		NotificationId: "7",
		Message:        "Le devoir 3 est disponible.",
		AriaLabel:      "Nouveau devoir",
		Timestamp:      1700000000,
		SharedSecret:   "s3cret",
	}, payloads[0])

	stored, err = qry.GetNotification(ctx, "7")
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.Sent)
}

func TestWebhookDeliverFailureLeavesUnsent(t *testing.T) {
	_, _, database := setup(t)
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	t.Cleanup(server.Close)

	deliverer, err := NewWebhookDeliverer(database, WebhookConfig{
		Url: server.URL, SharedSecret: "s3cret",
	})
	require.NoError(t, err)

	qry := db.New(database)
	_, err = qry.UpsertNotification(ctx, db.UpsertNotificationParams{
		NotificationID: "8", Message: "m", AriaLabel: "a", Timestamp: 1,
	})
	require.NoError(t, err)

	stored, err := qry.GetNotification(ctx, "8")
	require.NoError(t, err)
	require.Error(t, deliverer.Deliver(ctx, stored))

	stored, err = qry.GetNotification(ctx, "8")
	require.NoError(t, err)
	require.EqualValues(t, 0, stored.Sent)
}

func TestDeliverUnsentSweep(t *testing.T) {
	_, _, database := setup(t)
	ctx := context.Background()

	var payloads []webhookPayload
	server := newWebhookServer(t, &payloads)

	deliverer, err := NewWebhookDeliverer(database, WebhookConfig{
		Url: server.URL, SharedSecret: "s3cret",
	})
	require.NoError(t, err)

	qry := db.New(database)
	for _, id := range []string{"1", "2", "3"} {
		_, err = qry.UpsertNotification(ctx, db.UpsertNotificationParams{
			NotificationID: id, Message: "m" + id, AriaLabel: "a" + id, Timestamp: 1,
		})
		require.NoError(t, err)
	}
	require.NoError(t, qry.MarkNotificationSent(ctx, "2"))

	sent, err := deliverer.DeliverUnsent(ctx)
	require.NoError(t, err)
	require.Equal(t, 2, sent)
	require.Len(t, payloads, 2)

	remaining, err := qry.ListUnsentNotifications(ctx)
	require.NoError(t, err)
	require.Empty(t, remaining)
}

type channelDeliverer struct {
	delivered chan db.Notification
}

func (d channelDeliverer) Deliver(ctx context.Context, notification db.Notification) error {
	d.delivered <- notification
	return nil
}

func TestChannelQueue(t *testing.T) {
	queue := NewChannelQueue(4)
	deliverer := channelDeliverer{delivered: make(chan db.Notification, 4)}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go queue.Run(ctx, deliverer)

	require.True(t, queue.Enqueue(db.Notification{NotificationID: "1"}))

	select {
	case got := <-deliverer.delivered:
		require.Equal(t, "1", got.NotificationID)
	case <-time.After(time.Second * 5):
		t.Fatal("notification was never delivered")
	}
}

func TestChannelQueueFullDrops(t *testing.T) {
	queue := NewChannelQueue(1)
	require.True(t, queue.Enqueue(db.Notification{NotificationID: "1"}))
	require.False(t, queue.Enqueue(db.Notification{NotificationID: "2"}))
}
