package cli

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/perimetra/gwadmin/pkg/client"
	"github.com/perimetra/gwadmin/pkg/listing"
)

// DefaultUsersPath is the directory-backed user listing endpoint. It
// returns one plain array.
const DefaultUsersPath = "/api/v1/users"

func newUsersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "users",
		Short: "Work with directory users",
	}
	cmd.AddCommand(newUsersListCmd())
	return cmd
}

// newUsersListCmd creates the "users list" command: a throttled emission
// of the plain user array.
func newUsersListCmd() *cobra.Command {
	var (
		path    string
		delay   time.Duration
		filters []string
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List directory users",
		Long: `List the directory-backed users the platform exposes. The endpoint
returns one full array; items are emitted with a minimum delay between
them. Filters are key=value pairs matched against the user object and
applied before the delay is spent, so filtered-out users cost nothing.`,
		Example: `  gwadmin users list --filter role=admin
  gwadmin users list --delay 0`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			preds, err := parseFilters(filters)
			if err != nil {
				return err
			}

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

			req := &client.Request{Method: http.MethodGet, Path: path}
			out := cmd.OutOrStdout()
			count := 0
			for item, err := range lister.Items(cmd.Context(), req, preds...) {
				if err != nil {
					return fmt.Errorf("listing aborted after %d users: %w", count, err)
				}
				fmt.Fprintln(out, string(item))
				count++
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&path, "path", DefaultUsersPath, "user listing path")
	cmd.Flags().DurationVar(&delay, "delay", listing.DefaultDelay, "minimum delay between emitted items (0 disables)")
	cmd.Flags().StringArrayVar(&filters, "filter", nil, "only users whose field equals value, as key=value (repeatable)")

	return cmd
}

// parseFilters converts key=value strings into listing predicates.
func parseFilters(filters []string) ([]listing.Predicate, error) {
	preds := make([]listing.Predicate, 0, len(filters))
	for _, f := range filters {
		key, value, ok := strings.Cut(f, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("filter %q is not in key=value form", f)
		}
		preds = append(preds, fieldPredicate(key, value))
	}
	return preds, nil
}

// fieldPredicate matches items whose named top-level field stringifies to
// want. Items that are not objects or lack the field do not match.
func fieldPredicate(field, want string) listing.Predicate {
	return func(item json.RawMessage) bool {
		var obj map[string]any
		if err := json.Unmarshal(item, &obj); err != nil {
			return false
		}
		value, ok := obj[field]
		if !ok {
			return false
		}
		return fmt.Sprint(value) == want
	}
}
