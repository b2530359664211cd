// Package logctx logs with the key/values carried by a context, so that every
// line emitted while serving a request or a socket carries its request_id and
// user_id.
package logctx

import (
	"context"

	"go.uber.org/zap"

	"github.com/nguyentranbao-ct/team-messaging/pkg/logger"
)

type fieldsKey struct{}

var base = logger.Root().WithOptions(zap.AddCallerSkip(1)).Sugar()

// WithFields returns a context whose log lines carry the given key/values in
// addition to the ones already attached.
func WithFields(ctx context.Context, keysAndValues ...any) context.Context {
	if len(keysAndValues) == 0 {
		return ctx
	}
	prev := fields(ctx)
	merged := make([]any, 0, len(prev)+len(keysAndValues))
	merged = append(merged, prev...)
	merged = append(merged, keysAndValues...)
	return context.WithValue(ctx, fieldsKey{}, merged)
}

func fields(ctx context.Context) []any {
	if ctx == nil {
		return nil
	}
	kv, _ := ctx.Value(fieldsKey{}).([]any)
	return kv
}

func from(ctx context.Context) *zap.SugaredLogger {
	if kv := fields(ctx); len(kv) > 0 {
		return base.With(kv...)
	}
	return base
}

func Logw(ctx context.Context, lvl logger.Level, msg string, keysAndValues ...any) {
	from(ctx).Logw(lvl, msg, keysAndValues...)
}

func Debugw(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Debugw(msg, keysAndValues...)
}

func Infow(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Infow(msg, keysAndValues...)
}

func Warnw(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Warnw(msg, keysAndValues...)
}

func Errorw(ctx context.Context, msg string, keysAndValues ...any) {
	from(ctx).Errorw(msg, keysAndValues...)
}

func Debugf(ctx context.Context, template string, args ...any) {
	from(ctx).Debugf(template, args...)
}

func Infof(ctx context.Context, template string, args ...any) {
	from(ctx).Infof(template, args...)
}

func Warnf(ctx context.Context, template string, args ...any) {
	from(ctx).Warnf(template, args...)
}

func Errorf(ctx context.Context, template string, args ...any) {
	from(ctx).Errorf(template, args...)
}

func Fatal(args ...any) {
	base.Fatal(args...)
}
