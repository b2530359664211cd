package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
)

// tokenCmd signs a session token for local development. Production tokens
// come from the identity provider sharing AUTH_JWT_SECRET.
var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Print a signed session token for a user",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		conf, err := config.Load()
		if err != nil {
			return err
		}
		token, expiresAt, err := usecase.NewAuthUseCase(conf, nil).IssueToken(args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		fmt.Fprintf(cmd.ErrOrStderr(), "expires at %s\n", expiresAt.Format(time.RFC3339))
		return nil
	},
}
