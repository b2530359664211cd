package app

import (
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"
	"go.uber.org/zap/zapcore"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	"github.com/nguyentranbao-ct/team-messaging/internal/kafka"
	"github.com/nguyentranbao-ct/team-messaging/internal/realtime"
	"github.com/nguyentranbao-ct/team-messaging/internal/repo/mongodb"
	redisrepo "github.com/nguyentranbao-ct/team-messaging/internal/repo/redis"
	"github.com/nguyentranbao-ct/team-messaging/internal/server"
	"github.com/nguyentranbao-ct/team-messaging/internal/session"
	"github.com/nguyentranbao-ct/team-messaging/internal/usecase"
	"github.com/nguyentranbao-ct/team-messaging/pkg/logger"
)

// Invoke builds the application and runs funcs on start.
func Invoke(funcs ...any) *fx.App {
	return New(fx.Invoke(funcs...))
}

// New builds the application graph. Constructors run only when something
// the options ask for depends on them.
func New(opts ...fx.Option) *fx.App {
	log := logger.MustNamed("app")
	conf := config.MustLoad()
	if err := logger.SetLevel(conf.LogLevel); err != nil {
		log.Warnw("invalid LOG_LEVEL, keeping default", "level", conf.LogLevel, "error", err)
	}
	log.Debugw("config loaded", logger.Reflect("config", redact(*conf)))

	options := []fx.Option{
		fx.WithLogger(func() fxevent.Logger {
			l := &fxevent.ZapLogger{
				Logger: log.Unwrap().Desugar(),
			}
			l.UseLogLevel(zapcore.DebugLevel)
			return l
		}),
		fx.Supply(conf),
		fx.Provide(
			newMongoDB,
			newRedisClient,
			newTokenVerifier,

			mongodb.NewChannelRepository,
			mongodb.NewMemberRepository,
			mongodb.NewMessageRepository,
			mongodb.NewReactionRepository,
			mongodb.NewMentionRepository,
			mongodb.NewAttachmentRepository,
			mongodb.NewProfileRepository,
			mongodb.NewBlobStore,
			mongodb.NewMigrationRepository,
			redisrepo.NewPresenceRepository,

			realtime.NewHub,
			kafka.NewPublisher,
			kafka.NewConsumer,

			usecase.NewOutbox,
			usecase.NewMessaging,
			usecase.NewAuthUseCase,
			usecase.NewPresenceSweeper,

			session.NewFactory,

			server.NewController,
			server.NewSocketHandler,
			server.NewEcho,
		),
	}
	return fx.New(append(options, opts...)...)
}

func redact(conf config.Config) config.Config {
	const hidden = "***"
	if conf.Auth.JWTSecret != "" {
		conf.Auth.JWTSecret = hidden
	}
	if conf.Database.Password != "" {
		conf.Database.Password = hidden
	}
	if conf.Redis.Password != "" {
		conf.Redis.Password = hidden
	}
	return conf
}
