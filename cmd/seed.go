package cmd

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/team-messaging/internal/app"
	"github.com/nguyentranbao-ct/team-messaging/internal/setup"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Create the demo profiles and default channels",
	RunE: func(cmd *cobra.Command, args []string) (err error) {
		data, err := setup.DefaultSeed()
		if err != nil {
			return err
		}

		var seeder *setup.Seeder
		application := app.New(fx.Provide(setup.NewSeeder), fx.Populate(&seeder))

		ctx := cmd.Context()
		if err := application.Start(ctx); err != nil {
			return err
		}
		defer func() {
			err = errors.Join(err, application.Stop(context.WithoutCancel(ctx)))
		}()

		res, err := seeder.Seed(ctx, data)
		if err != nil {
			return err
		}
		log.Infow(ctx, "seed finished", "profiles", res.Profiles, "channels", res.Channels)
		return nil
	},
}
