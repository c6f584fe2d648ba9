// Package cli implements the gwadmin command tree. The commands own option
// parsing, filter construction, output and exit status; all platform work
// happens in the pkg engines.
package cli

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/perimetra/gwadmin/pkg/logging"
)

// NewRootCmd creates the root command for the gwadmin CLI.
func NewRootCmd(ver string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "gwadmin",
		Short: "Admin scripts for the API management platform",
		Long: `gwadmin runs administrative jobs against the platform API:
cursor-paged traffic exports, bulk deletions, and throttled listings of
applications and directory users.

Connection settings come from a YAML config file (--config) and can be
overridden per invocation with flags.`,
		Version:       ver,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			level, _ := cmd.Flags().GetString("log-level")
			pretty, _ := cmd.Flags().GetBool("pretty")
			logging.Setup(logging.Config{
				Level:  logging.LogLevel(level),
				Pretty: pretty,
				Output: os.Stderr,
			})
			return nil
		},
	}

	cmd.PersistentFlags().String("config", "", "path to a YAML config file")
	cmd.PersistentFlags().String("base-url", "", "platform base URL, e.g. https://gateway.example.com:8075")
	cmd.PersistentFlags().String("token", "", "session token for authenticated calls (see 'gwadmin login')")
	cmd.PersistentFlags().StringArray("header", nil, "extra default header as key:value (repeatable)")
	cmd.PersistentFlags().Duration("timeout", 0, "per-request timeout (0 = client default)")
	cmd.PersistentFlags().Bool("tls-verify", false, "verify TLS certificates (self-signed admin endpoints usually cannot)")
	cmd.PersistentFlags().String("redis", "", "Redis address for checkpoints (default localhost:6379)")
	cmd.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error")
	cmd.PersistentFlags().Bool("pretty", false, "human-readable log output")

	cmd.AddCommand(newLoginCmd(), newTrafficCmd(), newAppsCmd(), newUsersCmd())

	return cmd
}
