package logger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"gorm.io/gorm"
	gorm_logger "gorm.io/gorm/logger"
)

// maxLoggedSQL bounds statements in warnings. A run record insert carries
// every failed file of every site and can be long.
const maxLoggedSQL = 512

// GormLogger routes run ledger SQL into the module logger. Statements are
// logged at trace, failures and slow statements at warn.
type GormLogger struct {
	log  Logger
	slow time.Duration
}

// NewGormLogger returns a GORM logger writing to log. Statements slower than
// slow are reported; zero turns that off.
func NewGormLogger(log Logger, slow time.Duration) *GormLogger {
	if log == nil {
		log = NewDiscardLogger()
	}
	return &GormLogger{log: log, slow: slow}
}

// LogMode is a no-op; verbosity follows the ledger module level.
func (g *GormLogger) LogMode(gorm_logger.LogLevel) gorm_logger.Interface {
	return g
}

func (g *GormLogger) Info(ctx context.Context, msg string, data ...any) {
	g.log.WithContext(ctx).Debug(fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Warn(ctx context.Context, msg string, data ...any) {
	g.log.WithContext(ctx).Warn(fmt.Sprintf(msg, data...))
}

func (g *GormLogger) Error(ctx context.Context, msg string, data ...any) {
	g.log.WithContext(ctx).Error(fmt.Sprintf(msg, data...))
}

// Trace is called by GORM after every statement.
func (g *GormLogger) Trace(ctx context.Context, begin time.Time, fc func() (sql string, rowsAffected int64), err error) {
	elapsed := time.Since(begin)
	sql, rows := fc()
	log := g.log.WithContext(ctx).With(
		String("statement", statementKind(sql)),
		Int64("rows", rows),
		Duration("elapsed", elapsed))

	switch {
	case err != nil && !errors.Is(err, gorm.ErrRecordNotFound):
		log.Warn("ledger statement failed", String("sql", truncateSQL(sql)), Error(err))
	case g.slow > 0 && elapsed > g.slow:
		log.Warn("slow ledger statement", String("sql", truncateSQL(sql)), Duration("threshold", g.slow))
	default:
		log.Trace("ledger statement", String("sql", sql))
	}
}

// statementKind returns the leading SQL keyword, e.g. INSERT.
func statementKind(sql string) string {
	kind, _, _ := strings.Cut(strings.TrimSpace(sql), " ")
	return strings.ToUpper(kind)
}

func truncateSQL(sql string) string {
	if len(sql) <= maxLoggedSQL {
		return sql
	}
	return sql[:maxLoggedSQL] + "..."
}
