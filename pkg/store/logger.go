package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// gormLogger sends gorm's log output through slog.
type gormLogger struct {
	level         logger.LogLevel
	slowThreshold time.Duration
}

func newGormLogger(slowThreshold time.Duration) logger.Interface {
	return &gormLogger{level: logger.Warn, slowThreshold: slowThreshold}
}

func (l *gormLogger) LogMode(level logger.LogLevel) logger.Interface {
	clone := *l
	clone.level = level
	return &clone
}

func (l *gormLogger) Info(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Info {
		slog.InfoContext(ctx, fmt.Sprintf(msg, args...), "component", "gorm")
	}
}

func (l *gormLogger) Warn(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Warn {
		slog.WarnContext(ctx, fmt.Sprintf(msg, args...), "component", "gorm")
	}
}

func (l *gormLogger) Error(ctx context.Context, msg string, args ...interface{}) {
	if l.level >= logger.Error {
		slog.ErrorContext(ctx, fmt.Sprintf(msg, args...), "component", "gorm")
	}
}

func (l *gormLogger) Trace(ctx context.Context, begin time.Time, fc func() (string, int64), err error) {
	if l.level <= logger.Silent {
		return
	}
	elapsed := time.Since(begin)
	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound) && l.level >= logger.Error:
		sql, rows := fc()
		slog.ErrorContext(ctx, "Query failed", "component", "gorm", "error", err, "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.slowThreshold > 0 && elapsed > l.slowThreshold && l.level >= logger.Warn:
		sql, rows := fc()
		slog.WarnContext(ctx, "Slow query", "component", "gorm", "sql", sql, "rows", rows, "elapsed", elapsed)
	case l.level >= logger.Info:
		sql, rows := fc()
		slog.DebugContext(ctx, "Query", "component", "gorm", "sql", sql, "rows", rows, "elapsed", elapsed)
	}
}
