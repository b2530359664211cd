package kafka

import (
	"context"

	"go.uber.org/fx"

	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

// StartConsumeChanges runs the consumer for the lifetime of the app. A
// consumer that fails to start shuts the app down.
func StartConsumeChanges(lc fx.Lifecycle, sd fx.Shutdowner, consumer Consumer) {
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go func() {
				defer close(done)
				if err := consumer.Start(ctx); err != nil {
					log.Errorw(ctx, "change consumer stopped", "error", err)
					if err := sd.Shutdown(fx.ExitCode(1)); err != nil {
						log.Errorw(ctx, "shutdown", "error", err)
					}
				}
			}()
			return nil
		},
		OnStop: func(stopCtx context.Context) error {
			cancel()
			err := consumer.Stop(stopCtx)
			select {
			case <-done:
			case <-stopCtx.Done():
			}
			return err
		},
	})
}
