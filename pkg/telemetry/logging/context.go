package logging

import (
	"context"
	"log/slog"
)

type contextKey struct{}

// Common attribute keys.
const (
	CommandKey   = "command"
	RulesFileKey = "rules_file"
	BuildIDKey   = "build_id"
)

// WithAttrs returns a context carrying attrs in addition to any already
// stored. Loggers built by New add them to every record logged with that
// context.
func WithAttrs(ctx context.Context, attrs ...slog.Attr) context.Context {
	existing := attrsFromContext(ctx)
	merged := make([]slog.Attr, 0, len(existing)+len(attrs))
	merged = append(merged, existing...)
	merged = append(merged, attrs...)
	return context.WithValue(ctx, contextKey{}, merged)
}

// WithCommand records the CLI command being run.
func WithCommand(ctx context.Context, command string) context.Context {
	return WithAttrs(ctx, slog.String(CommandKey, command))
}

// WithRulesFile records the rule file being processed.
func WithRulesFile(ctx context.Context, path string) context.Context {
	return WithAttrs(ctx, slog.String(RulesFileKey, path))
}

func attrsFromContext(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	attrs, _ := ctx.Value(contextKey{}).([]slog.Attr)
	return attrs
}
