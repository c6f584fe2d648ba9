package cli

import (
	"fmt"
	"net/http"
	"time"

	"github.com/spf13/cobra"

	"github.com/perimetra/gwadmin/pkg/client"
	"github.com/perimetra/gwadmin/pkg/listing"
)

// DefaultAppsPath is the numbered-page application listing endpoint.
const DefaultAppsPath = "/api/v1/apps"

func newAppsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "apps",
		Short: "Work with registered applications",
	}
	cmd.AddCommand(newAppsListCmd())
	return cmd
}

// newAppsListCmd creates the "apps list" command: a throttled walk over
// the numbered-page application listing.
func newAppsListCmd() *cobra.Command {
	var (
		path  string
		delay time.Duration
		org   string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List applications",
		Long: `List registered applications, fetching numbered pages until the server
reports the last one. Items are emitted with a minimum delay between
them so follow-up requests per application do not flood the platform;
--delay 0 disables the throttle.`,
		Example: `  gwadmin apps list --org acme
  gwadmin apps list --delay 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}

			cfg := listing.DefaultConfig(c)
			cfg.Delay = delay
			lister, err := listing.NewLister(cfg)
			if err != nil {
				return err
			}

			var preds []listing.Predicate
			if org != "" {
				preds = append(preds, fieldPredicate("organization", org))
			}

			req := &client.Request{Method: http.MethodGet, Path: path}
			out := cmd.OutOrStdout()
			count := 0
			for item, err := range lister.PagedItems(cmd.Context(), req, preds...) {
				if err != nil {
					return fmt.Errorf("listing aborted after %d applications: %w", count, err)
				}
				fmt.Fprintln(out, string(item))
				count++
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", DefaultAppsPath, "application listing path")
	cmd.Flags().DurationVar(&delay, "delay", listing.DefaultDelay, "minimum delay between emitted items (0 disables)")
	cmd.Flags().StringVar(&org, "org", "", "only applications of this organization")

	return cmd
}
