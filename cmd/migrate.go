package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/team-messaging/internal/app"
	"github.com/nguyentranbao-ct/team-messaging/internal/repo/mongodb"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the collections and indexes the service relies on",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		var repo mongodb.MigrationRepository
		application := app.New(fx.Populate(&repo))

		ctx := cmd.Context()
		if err := application.Start(ctx); err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, application.Stop(context.WithoutCancel(ctx)))
		}()

		if err := repo.Migrate(ctx); err != nil {
			return err
		}
		log.Infow(ctx, "migration finished")
		return nil
	},
}
