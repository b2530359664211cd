package server

import (
	"context"
	"errors"
	"net/http"
	"regexp"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.uber.org/fx"

	"github.com/nguyentranbao-ct/team-messaging/internal/config"
	pkgmdw "github.com/nguyentranbao-ct/team-messaging/internal/server/middleware"
	"github.com/nguyentranbao-ct/team-messaging/pkg/logger"
	log "github.com/nguyentranbao-ct/team-messaging/pkg/logger/logctx"
)

// NewEcho builds the HTTP router: health and metrics, the public file route,
// the authenticated REST API and the websocket endpoint.
func NewEcho(conf *config.Config, handler Controller, socket *SocketHandler, auth pkgmdw.TokenVerifier) *echo.Echo {
	httpLogger := logger.MustNamed("http")

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Validator = pkgmdw.NewValidator()
	e.HTTPErrorHandler = pkgmdw.ErrorHandler(httpLogger)

	logConfig := pkgmdw.LogRequestConfig{
		Logger: httpLogger,
		Enabled: func(c echo.Context) bool {
			path := c.Request().URL.Path
			return path != "/health" && path != "/metrics"
		},
		RequestBody: func(c echo.Context) bool {
			return c.Request().Method != http.MethodGet
		},
		ResponseBody: func(c echo.Context) bool {
			return false
		},
	}

	e.Use(pkgmdw.Metrics())
	e.Use(pkgmdw.RequestID())
	e.Use(pkgmdw.LogRequest(logConfig))
	e.Use(middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			log.Errorw(c.Request().Context(), "PANIC RECOVER", "error", err, "stack", string(stack))
			return err
		},
	}))
	e.Use(pkgmdw.CORS(compileOrigins(conf.Server.CORSOrigins)))

	jwtAuth := pkgmdw.JWTAuth(auth)
	if conf.Server.Pprof {
		pkgmdw.PprofWrap(e, pkgmdw.PprofConfig{Middlewares: []echo.MiddlewareFunc{jwtAuth}})
	}

	e.GET("/health", handler.Health)
	e.GET("/files/*", handler.DownloadFile)

	e.GET("/ws", socket.Serve, jwtAuth)

	api := e.Group("/api/v1", jwtAuth)
	handler.RegisterRoutes(api)

	return e
}

func StartServer(
	lc fx.Lifecycle,
	sd fx.Shutdowner,
	conf *config.Config,
	e *echo.Echo,
) {
	addr := conf.Server.Addr()
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Infow(ctx, "starting HTTP server", "addr", addr)
				if err := e.Start(addr); !errors.Is(err, http.ErrServerClosed) {
					log.Errorw(ctx, "HTTP server stopped", "error", err)
					_ = sd.Shutdown()
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			return e.Shutdown(ctx)
		},
	})
}

// compileOrigins anchors the configured origin pattern. An invalid pattern
// allows no cross origin request.
func compileOrigins(pattern string) *regexp.Regexp {
	if pattern == "" {
		pattern = "$^"
	}
	re, err := regexp.Compile("^(?:" + pattern + ")$")
	if err != nil {
		log.Errorw(context.Background(), "invalid SERVER_CORS_ORIGINS, cross origin requests disabled", "pattern", pattern, "error", err)
		return regexp.MustCompile("$^")
	}
	return re
}
