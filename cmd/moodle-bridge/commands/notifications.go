package commands

import (
	"log/slog"
	"strconv"
	"time"

	"moodle-bridge/lib/scrapers/moodle/notify"
	"moodle-bridge/services/notifications"
	"moodle-bridge/services/notifications/db"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	_ "modernc.org/sqlite"
)

var notificationsLimit *int

func init() {
	notificationsLimit = notificationsCmd.Flags().Int("limit", 50, "How many notifications to fetch.")
	rootCmd.AddCommand(notificationsCmd)
}

var notificationsCmd = &cobra.Command{
	Use:   "notifications",
	Short: "Fetches notifications, records new ones and pushes them to the webhook.",
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		cfg := loadConfig()
		client := createClient(ctx, cfg)

		fetched, err := notify.NewClient(client, cfg.LegacyNotificationArgs).
			Notifications(ctx, *notificationsLimit, 0)
		if err != nil {
			fatal("failed to fetch notifications", err)
		}

		database, err := cfg.Database.OpenDB()
		if err != nil {
			fatal("failed to open database", err)
		}
		defer database.Close()
		_, err = database.ExecContext(ctx, db.Schema)
		if err != nil {
			fatal("failed to apply schema", err)
		}

		queue := notifications.NewChannelQueue(len(fetched) + 1)
		service := notifications.NewService(database, queue)

		created, err := service.Ingest(ctx, fetched)
		if err != nil {
			fatal("failed to ingest notifications", err)
		}
		slog.Info("ingested notifications", "fetched", len(fetched), "new", created)

		if cfg.Webhook.Url != "" {
			deliverer, err := notifications.NewWebhookDeliverer(database, cfg.Webhook)
			if err != nil {
				fatal("failed to initialize webhook", err)
			}
			sent, err := deliverer.DeliverUnsent(ctx)
			if err != nil {
				fatal("failed to deliver notifications", err)
			}
			slog.Info("delivered notifications", "sent", sent)
		}

		t := newTable()
		t.AppendHeader(table.Row{"Id", "Subject", "Created"})
		for _, notification := range fetched {
			t.AppendRow(table.Row{
				notification.Id,
				notification.Subject,
				formatEpoch(string(notification.TimeCreated)),
			})
		}
		t.Render()
	},
}

func formatEpoch(raw string) string {
	epoch, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return raw
	}
	return time.Unix(epoch, 0).UTC().Format(time.RFC3339)
}
