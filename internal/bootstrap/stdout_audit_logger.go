package bootstrap

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// StdoutAuditLogger writes lifecycle audit events through the process
// logger. Payroll-sensitive actions (rule set supersede, run commit) are
// audited through the persisted run and rule records themselves; this
// covers server start and stop.
type StdoutAuditLogger struct{}

func NewStdoutAuditLogger() *StdoutAuditLogger {
	return &StdoutAuditLogger{}
}

func (l *StdoutAuditLogger) Log(_ context.Context, entry AuditLog) {
	zap.L().Named("audit").Info(entry.Action,
		zap.String("timestamp", time.Now().UTC().Format(time.RFC3339)),
		zap.String("message", entry.Message),
		zap.Any("meta", entry.Meta),
	)
}
