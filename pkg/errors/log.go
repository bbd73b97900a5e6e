package errors

import (
	"context"
	"log/slog"
)

// Log writes err according to its severity. CRITICAL and HIGH go to the error
// level, MEDIUM to warn. LOW validation faults are expected user mistakes and
// only reach debug; other LOW faults are info.
func Log(ctx context.Context, logger *slog.Logger, err *PipelineError) {
	if err == nil || logger == nil {
		return
	}
	level := slog.LevelError
	switch err.Severity {
	case SeverityMedium:
		level = slog.LevelWarn
	case SeverityLow:
		level = slog.LevelInfo
		if err.Category == CategoryValidation {
			level = slog.LevelDebug
		}
	}
	attrs := []any{
		"code", err.Code,
		"category", string(err.Category),
		"severity", string(err.Severity),
		"retryable", err.Retryable,
		"operation", err.Context.Operation,
	}
	if err.Context.TenantID != "" {
		attrs = append(attrs, "tenant_id", err.Context.TenantID)
	}
	if err.Service != "" {
		attrs = append(attrs, "service", err.Service, "upstream_status", err.UpstreamStatus)
	}
	if err.cause != nil {
		attrs = append(attrs, "err", err.cause)
	}
	logger.Log(ctx, level, err.Message, attrs...)
}

// Alerting reports whether err should page someone.
func (e *PipelineError) Alerting() bool {
	return e.Severity.rank() >= SeverityHigh.rank()
}
