package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func init() {
	rootCmd.AddCommand(loginCmd)
}

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Logs in with the configured credentials and prints the exported session.",
	Run: func(cmd *cobra.Command, args []string) {
		cfg := loadConfig()
		client := createClient(cmd.Context(), cfg)

		session := client.ExportSession(cfg.Institution)
		out, err := json.MarshalIndent(session, "", "  ")
		if err != nil {
			fatal("failed to marshal session", err)
		}
		fmt.Fprintln(os.Stdout, string(out))
	},
}
