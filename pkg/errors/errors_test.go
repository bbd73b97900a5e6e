package errors_test

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragingest/pkg/errors"
)

func TestCategoryDefaults(t *testing.T) {
	tests := []struct {
		name      string
		err       *errors.PipelineError
		status    int
		severity  errors.Severity
		retryable bool
	}{
		{"validation", errors.Validation("", "bad"), 400, errors.SeverityLow, false},
		{"business logic", errors.BusinessLogic("", "bad state", nil), 422, errors.SeverityMedium, false},
		{"infrastructure", errors.Infrastructure("store object", fmt.Errorf("disk"), true), 500, errors.SeverityHigh, true},
		{"authentication", errors.Authentication("no token"), 401, errors.SeverityMedium, false},
		{"authorization", errors.Authorization("denied"), 403, errors.SeverityMedium, false},
		{"not found", errors.NotFound("document", "abc"), 404, errors.SeverityLow, false},
		{"rate limit", errors.RateLimit("slow down", time.Second), 429, errors.SeverityLow, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.status, tt.err.HTTPStatusCode)
			assert.Equal(t, tt.severity, tt.err.Severity)
			assert.Equal(t, tt.retryable, tt.err.Retryable)
		})
	}
}

func TestExternalAPIRetryability(t *testing.T) {
	tests := []struct {
		status     int
		retryable  bool
		httpStatus int
		category   errors.Category
	}{
		{http.StatusInternalServerError, true, http.StatusBadGateway, errors.CategoryExternalAPI},
		{http.StatusServiceUnavailable, true, http.StatusBadGateway, errors.CategoryExternalAPI},
		{0, true, http.StatusBadGateway, errors.CategoryExternalAPI},
		{http.StatusBadRequest, false, http.StatusBadRequest, errors.CategoryExternalAPI},
		{http.StatusUnauthorized, false, http.StatusBadRequest, errors.CategoryExternalAPI},
		{http.StatusTooManyRequests, true, http.StatusTooManyRequests, errors.CategoryRateLimit},
	}

	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.status), func(t *testing.T) {
			err := errors.ExternalAPI("embedding-api", tt.status, fmt.Errorf("boom"))
			assert.Equal(t, tt.category, err.Category)
			assert.Equal(t, tt.retryable, err.Retryable)
			assert.Equal(t, tt.httpStatus, err.HTTPStatusCode)
			assert.Equal(t, "embedding-api", err.Service)
		})
	}
}

func TestWithContextDoesNotMutate(t *testing.T) {
	orig := errors.Infrastructure("persist chunks", fmt.Errorf("tx aborted"), true)
	ctx := errors.NewContext("ING-1", "ingest", "acme")

	withCtx := orig.WithContext(ctx)

	assert.Empty(t, orig.Context.CorrelationID)
	assert.Equal(t, "ING-1", withCtx.Context.CorrelationID)
	assert.Equal(t, "persist chunks", withCtx.Context.Operation)
	assert.Equal(t, "acme", withCtx.Context.TenantID)
	assert.False(t, withCtx.Context.Timestamp.IsZero())
}

func TestUnwrapKeepsCause(t *testing.T) {
	cause := fmt.Errorf("socket closed")
	err := fmt.Errorf("outer: %w", errors.Infrastructure("write metadata", cause, true))

	pe, ok := errors.As(err)
	require.True(t, ok)
	assert.True(t, errors.Is(err, cause))
	assert.Equal(t, cause, pe.Cause())
	assert.True(t, errors.IsRetryable(err))
	assert.True(t, errors.IsCategory(err, errors.CategoryInfrastructure))
}

func TestResponseHidesCauseUnlessDebug(t *testing.T) {
	err := errors.Infrastructure("write metadata", fmt.Errorf("pq: password authentication failed"), true).
		WithContext(errors.NewContext("ING-2", "ingest", "acme"))

	resp := err.Response(false)
	assert.Equal(t, errors.CodeInfrastructure, resp.Error.Code)
	assert.Equal(t, "ING-2", resp.Error.Context.CorrelationID)
	assert.Equal(t, "write metadata", resp.Error.Context.Operation)
	assert.True(t, resp.Error.Retryable)
	assert.Nil(t, resp.Details)
	assert.NotContains(t, resp.Error.Message, "password")

	debug := err.Response(true)
	require.NotNil(t, debug.Details)
	assert.Contains(t, debug.Details["cause"], "password authentication failed")
}

func TestResponseRetryAfter(t *testing.T) {
	resp := errors.RateLimit("slow down", 1500*time.Millisecond).Response(false)
	assert.Equal(t, 2, resp.Error.RetryAfterSeconds)
}

func TestLogSuppressesValidation(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))

	errors.Log(context.Background(), logger, errors.Validation(errors.CodeEmptyFile, "file is empty"))
	assert.Empty(t, buf.String())

	errors.Log(context.Background(), logger, errors.Infrastructure("persist chunks", fmt.Errorf("boom"), true))
	assert.Contains(t, buf.String(), "level=ERROR")
	assert.Contains(t, buf.String(), "persist chunks failed")

	buf.Reset()
	errors.Log(context.Background(), logger, errors.NotFound("document", "x"))
	assert.Contains(t, buf.String(), "level=INFO")
}

func TestAlerting(t *testing.T) {
	assert.True(t, errors.Infrastructure("x", nil, false).Alerting())
	assert.False(t, errors.Validation("", "x").Alerting())
	assert.False(t, errors.BusinessLogic("", "x", nil).Alerting())
}
