package errors_test

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xhad/ragingest/pkg/errors"
)

type serviceErr struct {
	service string
	status  int
	msg     string
}

func (e serviceErr) Error() string {
	if e.msg != "" {
		return e.msg
	}
	return fmt.Sprintf("%s returned %d", e.service, e.status)
}

func (e serviceErr) Service() string { return e.service }
func (e serviceErr) StatusCode() int { return e.status }

func TestClassify(t *testing.T) {
	ctx := errors.NewContext("ING-20260101000000-ABCDEF", "persist chunks", "acme")

	tests := []struct {
		name      string
		err       error
		category  errors.Category
		retryable bool
	}{
		{"database message", fmt.Errorf("database error: relation missing"), errors.CategoryInfrastructure, true},
		{"connection message", fmt.Errorf("dial tcp: connection refused"), errors.CategoryInfrastructure, true},
		{"deadline", context.DeadlineExceeded, errors.CategoryInfrastructure, true},
		{"wrapped deadline", fmt.Errorf("embed: %w", context.DeadlineExceeded), errors.CategoryInfrastructure, true},
		{"service 503", serviceErr{"object-store", 503, ""}, errors.CategoryExternalAPI, true},
		{"service 404", serviceErr{"object-store", 404, ""}, errors.CategoryExternalAPI, false},
		{"service connection fault", serviceErr{"metadata-store", 400, "metadata store: connection refused"}, errors.CategoryInfrastructure, true},
		{"required input", fmt.Errorf("tenant id is required"), errors.CategoryValidation, false},
		{"too large", fmt.Errorf("payload too large"), errors.CategoryValidation, false},
		{"unknown", fmt.Errorf("something odd"), errors.CategoryInfrastructure, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := errors.Classify(tt.err, ctx)
			require.NotNil(t, got)
			assert.Equal(t, tt.category, got.Category)
			assert.Equal(t, tt.retryable, got.Retryable)
			assert.Equal(t, ctx.CorrelationID, got.Context.CorrelationID)
			assert.Equal(t, "acme", got.Context.TenantID)
		})
	}
}

func TestClassifyValidationIsLowSeverity(t *testing.T) {
	got := errors.Classify(fmt.Errorf("invalid content type"), errors.Context{})
	assert.Equal(t, errors.SeverityLow, got.Severity)
	assert.Equal(t, 400, got.HTTPStatusCode)
}

func TestClassifyKeepsTypedErrors(t *testing.T) {
	typed := errors.ExternalAPI("embedding-api", 502, fmt.Errorf("bad gateway"))
	got := errors.Classify(fmt.Errorf("embed: %w", typed), errors.NewContext("C-1", "embed chunks", "t1"))

	assert.Equal(t, errors.CategoryExternalAPI, got.Category)
	assert.Equal(t, "embedding-api", got.Service)
	assert.Equal(t, "C-1", got.Context.CorrelationID)
	assert.Equal(t, "embed chunks", got.Context.Operation)
}

func TestClassifyIsDeterministic(t *testing.T) {
	ctx := errors.NewContext("C-1", "op", "t1")
	err := fmt.Errorf("storage offline")
	a := errors.Classify(err, ctx)
	b := errors.Classify(err, ctx)
	assert.Equal(t, a.Category, b.Category)
	assert.Equal(t, a.Code, b.Code)
	assert.Equal(t, a.Retryable, b.Retryable)
	assert.Equal(t, a.HTTPStatusCode, b.HTTPStatusCode)
}

func TestClassifyNil(t *testing.T) {
	assert.Nil(t, errors.Classify(nil, errors.Context{}))
}
