package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"moodle-bridge/lib/configutil"
	configsqlite "moodle-bridge/lib/configutil/sqlite"
	"moodle-bridge/lib/restyutil"
	"moodle-bridge/lib/scrapers/moodle/core"
	"moodle-bridge/services/notifications"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
)

const defaultBaseUrlFormat = "https://elearning.univ-%s.dz"

type Config struct {
	Institution string `json:"institution"`
	// BaseUrl overrides the url derived from the institution name.
	BaseUrl                string                      `json:"base_url"`
	Username               string                      `json:"username"`
	Password               string                      `json:"password"`
	LegacyNotificationArgs bool                        `json:"legacy_notification_args"`
	Database               configsqlite.Struct         `json:"database"`
	Webhook                notifications.WebhookConfig `json:"webhook"`
}

var configFile *string
var debugHttp *bool

var rootCmd = &cobra.Command{
	Use:   "moodle-bridge",
	Short: "moodle-bridge is a CLI for scraping an institution's moodle.",
}

func init() {
	configFile = rootCmd.PersistentFlags().String(
		"config", "bridge.json5", "The config file to read credentials from.")
	debugHttp = rootCmd.PersistentFlags().Bool(
		"debug-http", false, "Dump every request/response pair to .dev/resty.")
}

func ExecuteContext(ctx context.Context) {
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func fatal(message string, err error) {
	slog.Error(message, "err", err)
	os.Exit(1)
}

func loadConfig() Config {
	cfg, err := configutil.ReadConfig[Config](*configFile)
	if err != nil {
		fatal("failed to read config", err)
	}
	if cfg.BaseUrl == "" {
		if cfg.Institution == "" {
			fatal("config is incomplete", fmt.Errorf("set institution or base_url"))
		}
		cfg.BaseUrl = fmt.Sprintf(defaultBaseUrlFormat, cfg.Institution)
	}
	return cfg
}

// createClient logs into moodle with the configured credentials.
func createClient(ctx context.Context, cfg Config) *core.Client {
	var debug restyutil.InstrumentOutput
	if *debugHttp {
		debug = restyutil.NewFilesystemOutput(".dev/resty")
	}

	client, err := core.NewClient(ctx, core.ClientOptions{
		BaseUrl: cfg.BaseUrl,
		Debug:   debug,
	})
	if err != nil {
		fatal("failed to initialize moodle client", err)
	}

	slog.Info("logging in", "base_url", cfg.BaseUrl, "username", cfg.Username)
	err = client.Login(ctx, cfg.Username, cfg.Password)
	if err != nil {
		fatal("failed to login to moodle", err)
	}
	return client
}

func newTable() table.Writer {
	t := table.NewWriter()
	t.SetStyle(table.StyleRounded)
	t.SetOutputMirror(os.Stdout)
	return t
}
