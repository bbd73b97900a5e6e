// Package errors defines PipelineError, the single typed representation of any
// fault that crosses a collaborator boundary, and the policy that classifies,
// logs and renders it.
package errors

import (
	stderrors "errors"
	"fmt"
	"maps"
	"net/http"
	"time"
)

// Context locates a fault within one request.
type Context struct {
	CorrelationID string         `json:"correlationId"`
	Operation     string         `json:"operation"`
	Timestamp     time.Time      `json:"timestamp"`
	TenantID      string         `json:"tenantId,omitempty"`
	Metadata      map[string]any `json:"metadata,omitempty"`
}

// PipelineError is immutable once constructed; the With* methods return copies.
type PipelineError struct {
	Code           string
	Message        string
	Category       Category
	Severity       Severity
	HTTPStatusCode int
	Retryable      bool
	RetryAfter     time.Duration

	// Service and UpstreamStatus are set for faults reported by a named remote service.
	Service        string
	UpstreamStatus int
	Context        Context

	cause error
}

func (e *PipelineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

func (e *PipelineError) Unwrap() error {
	return e.cause
}

// Cause returns the raw fault, if any.
func (e *PipelineError) Cause() error {
	return e.cause
}

func (e *PipelineError) clone() *PipelineError {
	c := *e
	c.Context.Metadata = maps.Clone(e.Context.Metadata)
	return &c
}

// WithContext returns a copy whose empty context fields are filled from ctx.
// Fields already set are kept so the innermost operation name survives.
func (e *PipelineError) WithContext(ctx Context) *PipelineError {
	c := e.clone()
	if c.Context.CorrelationID == "" {
		c.Context.CorrelationID = ctx.CorrelationID
	}
	if c.Context.Operation == "" {
		c.Context.Operation = ctx.Operation
	}
	if c.Context.TenantID == "" {
		c.Context.TenantID = ctx.TenantID
	}
	if c.Context.Timestamp.IsZero() {
		c.Context.Timestamp = ctx.Timestamp
	}
	if c.Context.Timestamp.IsZero() {
		c.Context.Timestamp = time.Now().UTC()
	}
	for k, v := range ctx.Metadata {
		if c.Context.Metadata == nil {
			c.Context.Metadata = make(map[string]any, len(ctx.Metadata))
		}
		if _, ok := c.Context.Metadata[k]; !ok {
			c.Context.Metadata[k] = v
		}
	}
	return c
}

func (e *PipelineError) WithOperation(op string) *PipelineError {
	c := e.clone()
	c.Context.Operation = op
	return c
}

func (e *PipelineError) WithCode(code string) *PipelineError {
	c := e.clone()
	c.Code = code
	return c
}

func (e *PipelineError) WithMetadata(key string, value any) *PipelineError {
	c := e.clone()
	if c.Context.Metadata == nil {
		c.Context.Metadata = make(map[string]any)
	}
	c.Context.Metadata[key] = value
	return c
}

func newError(category Category, message string, cause error) *PipelineError {
	d, ok := defaults[category]
	if !ok {
		d = defaults[CategoryInfrastructure]
	}
	return &PipelineError{
		Code:           d.code,
		Message:        message,
		Category:       category,
		Severity:       d.severity,
		HTTPStatusCode: d.status,
		Retryable:      d.retryable,
		cause:          cause,
	}
}

// Validation reports a caller mistake. Never retryable.
func Validation(code, message string) *PipelineError {
	e := newError(CategoryValidation, message, nil)
	if code != "" {
		e.Code = code
	}
	return e
}

func Validationf(code, format string, args ...any) *PipelineError {
	return Validation(code, fmt.Sprintf(format, args...))
}

// BusinessLogic reports a violated precondition or state rule.
func BusinessLogic(code, message string, cause error) *PipelineError {
	e := newError(CategoryBusinessLogic, message, cause)
	if code != "" {
		e.Code = code
	}
	return e
}

// Infrastructure reports a storage or runtime failure.
func Infrastructure(operation string, cause error, retryable bool) *PipelineError {
	msg := "operation failed"
	if operation != "" {
		msg = operation + " failed"
	}
	e := newError(CategoryInfrastructure, msg, cause)
	e.Retryable = retryable
	e.Context.Operation = operation
	return e
}

// ExternalAPI reports a failure of a named remote service. statusCode is the
// HTTP-like status the service signalled; 0 means no response was received,
// which is treated like a gateway timeout.
func ExternalAPI(service string, statusCode int, cause error) *PipelineError {
	if statusCode == 0 {
		statusCode = http.StatusGatewayTimeout
	}
	if statusCode == http.StatusTooManyRequests {
		e := RateLimit(fmt.Sprintf("%s rate limit exceeded", service), 0)
		e.cause = cause
		e.Service = service
		e.UpstreamStatus = statusCode
		return e
	}
	e := newError(CategoryExternalAPI, fmt.Sprintf("%s request failed with status %d", service, statusCode), cause)
	e.Service = service
	e.UpstreamStatus = statusCode
	e.Retryable = statusCode >= http.StatusInternalServerError
	if !e.Retryable {
		e.HTTPStatusCode = http.StatusBadRequest
		e.Severity = SeverityMedium
	}
	return e
}

func Authentication(message string) *PipelineError {
	return newError(CategoryAuthentication, message, nil)
}

func Authorization(message string) *PipelineError {
	return newError(CategoryAuthorization, message, nil)
}

func NotFound(resource, id string) *PipelineError {
	return newError(CategoryNotFound, fmt.Sprintf("%s %s not found", resource, id), nil)
}

// RateLimit carries a retry-after hint; zero means the caller picks its own backoff.
func RateLimit(message string, retryAfter time.Duration) *PipelineError {
	e := newError(CategoryRateLimit, message, nil)
	e.RetryAfter = retryAfter
	return e
}

// As returns the PipelineError in err's chain.
func As(err error) (*PipelineError, bool) {
	var pe *PipelineError
	if stderrors.As(err, &pe) {
		return pe, true
	}
	return nil, false
}

func IsCategory(err error, category Category) bool {
	pe, ok := As(err)
	return ok && pe.Category == category
}

func IsRetryable(err error) bool {
	pe, ok := As(err)
	return ok && pe.Retryable
}

// Is and New mirror the standard library so callers need one import.
func Is(err, target error) bool { return stderrors.Is(err, target) }

func New(text string) error { return stderrors.New(text) }
