package errors

import (
	"context"
	stderrors "errors"
	"net"
	"strings"
	"time"
)

// ServiceError is implemented by faults that come from a named remote service
// and carry the status code that service returned.
type ServiceError interface {
	error
	Service() string
	StatusCode() int
}

var (
	infrastructureMarkers = []string{
		"database", "connection", "connect:", "storage", "timeout", "timed out",
		"broken pipe", "no such host", "reset by peer", "unavailable",
	}
	validationMarkers = []string{"required", "invalid", "too large", "too small"}
)

// Classify converts any fault into a PipelineError. The result is a function of
// the fault and ctx only. Typed faults keep their category; untyped faults fall
// through the first-match policy: storage/connection problems, remote service
// statuses, malformed input, then a non-retryable Infrastructure default.
func Classify(err error, ctx Context) *PipelineError {
	if err == nil {
		return nil
	}
	if pe, ok := As(err); ok {
		return pe.WithContext(ctx)
	}

	var classified *PipelineError
	var svc ServiceError
	switch {
	case stderrors.Is(err, context.Canceled):
		classified = Infrastructure(ctx.Operation, err, true)
		classified.Message = "operation cancelled"
	case stderrors.Is(err, context.DeadlineExceeded) || isNetTimeout(err):
		classified = Infrastructure(ctx.Operation, err, true)
		classified.Message = "operation timed out"
	case containsAny(err.Error(), infrastructureMarkers):
		classified = Infrastructure(ctx.Operation, err, true)
	case stderrors.As(err, &svc):
		classified = ExternalAPI(svc.Service(), svc.StatusCode(), err)
	case containsAny(err.Error(), validationMarkers):
		classified = Validation(CodeValidation, err.Error())
	default:
		classified = Infrastructure(ctx.Operation, err, false)
	}
	return classified.WithContext(ctx)
}

func isNetTimeout(err error) bool {
	var ne net.Error
	return stderrors.As(err, &ne) && ne.Timeout()
}

func containsAny(msg string, markers []string) bool {
	msg = strings.ToLower(msg)
	for _, m := range markers {
		if strings.Contains(msg, m) {
			return true
		}
	}
	return false
}

// NewContext builds a Context stamped with the current time.
func NewContext(correlationID, operation, tenantID string) Context {
	return Context{
		CorrelationID: correlationID,
		Operation:     operation,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
	}
}
