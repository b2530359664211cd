package cmd

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/nguyentranbao-ct/team-messaging/internal/app"
	"github.com/nguyentranbao-ct/team-messaging/internal/kafka"
	"github.com/nguyentranbao-ct/team-messaging/internal/server"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

var rootCmd = &cobra.Command{
	Use:           "server",
	Short:         "Team messaging backend: REST API, websocket sessions and presence",
	SilenceUsage:  true,
	SilenceErrors: true,
	Run: func(cmd *cobra.Command, args []string) {
		app.Invoke(
			server.StartServer,
			kafka.StartConsumeChanges,
			usecase.StartPresenceSweeper,
		).Run()
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd, seedCmd, tokenCmd)
}

func Execute() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		log.Fatal(err)
	}
}
