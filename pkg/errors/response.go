package errors

import (
	"math"
	"time"
)

type ResponseContext struct {
	CorrelationID string    `json:"correlationId"`
	Timestamp     time.Time `json:"timestamp"`
	Operation     string    `json:"operation"`
}

type ResponseError struct {
	Code              string          `json:"code"`
	Message           string          `json:"message"`
	Category          Category        `json:"category"`
	Retryable         bool            `json:"retryable"`
	RetryAfterSeconds int             `json:"retryAfterSeconds,omitempty"`
	Context           ResponseContext `json:"context"`
}

// Response is the failure body returned to callers.
type Response struct {
	Error     ResponseError  `json:"error"`
	Details   map[string]any `json:"details,omitempty"`
	Timestamp time.Time      `json:"timestamp"`
}

// Response renders e for a caller. Raw causes are only included when debug is set.
func (e *PipelineError) Response(debug bool) Response {
	ts := e.Context.Timestamp
	if ts.IsZero() {
		ts = time.Now().UTC()
	}
	resp := Response{
		Error: ResponseError{
			Code:      e.Code,
			Message:   e.Message,
			Category:  e.Category,
			Retryable: e.Retryable,
			Context: ResponseContext{
				CorrelationID: e.Context.CorrelationID,
				Timestamp:     ts,
				Operation:     e.Context.Operation,
			},
		},
		Timestamp: time.Now().UTC(),
	}
	if e.RetryAfter > 0 {
		resp.Error.RetryAfterSeconds = int(math.Ceil(e.RetryAfter.Seconds()))
	}
	if debug {
		resp.Details = map[string]any{
			"severity": e.Severity,
		}
		if e.cause != nil {
			resp.Details["cause"] = e.cause.Error()
		}
		if e.Service != "" {
			resp.Details["service"] = e.Service
			resp.Details["upstreamStatus"] = e.UpstreamStatus
		}
		for k, v := range e.Context.Metadata {
			resp.Details[k] = v
		}
	}
	return resp
}
