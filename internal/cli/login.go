package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/perimetra/gwadmin/pkg/client"
	"github.com/perimetra/gwadmin/pkg/retry"
)

// newLoginCmd creates the "login" command. It authenticates against the
// platform and prints the issued session token, which later invocations
// pass back through --token (or the config file).
func newLoginCmd() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain a session token",
		Long: `Authenticate against the platform login endpoint and print the issued
session token. Pass the token to later commands with --token or store it
in the config file.`,
		Example: `  gwadmin login --base-url https://gateway.example.com:8075 -u admin -p secret`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, _, err := newClient(cmd)
			if err != nil {
				return err
			}

			// Login is a one-shot call, so transient failures get the
			// external retry treatment the engines deliberately skip.
			session, err := retry.Do(cmd.Context(), retry.DefaultConfig(),
				func(ctx context.Context) (*client.Session, error) {
					return c.Login(ctx, username, password)
				})
			if err != nil {
				return fmt.Errorf("login failed: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), session.Token())
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "platform username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "platform password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")

	return cmd
}
