// Package correlation generates and extracts the identifier that threads one
// ingest request through every stage, collaborator call and log record.
package correlation

import (
	"context"
	"crypto/rand"
	"net/http"
	"strings"
	"time"
)

const (
	HeaderCorrelationID = "X-Correlation-ID"
	HeaderRequestID     = "X-Request-ID"

	// AutoPrefix marks ids generated because none arrived with the request.
	AutoPrefix = "AUTO"

	randomAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	randomLength   = 6
)

type contextKey struct{}

// NewID returns PREFIX-YYYYMMDDHHMMSS-RANDOM6 using UTC time.
func NewID(prefix string) string {
	return newIDAt(prefix, time.Now())
}

func newIDAt(prefix string, now time.Time) string {
	prefix = strings.ToUpper(strings.TrimSpace(prefix))
	if prefix == "" {
		prefix = AutoPrefix
	}
	return prefix + "-" + now.UTC().Format("20060102150405") + "-" + randomSuffix()
}

func randomSuffix() string {
	buf := make([]byte, randomLength)
	if _, err := rand.Read(buf); err != nil {
		// ids stay well formed even if the entropy source fails
		return strings.Repeat("0", randomLength)
	}
	for i, b := range buf {
		buf[i] = randomAlphabet[int(b)%len(randomAlphabet)]
	}
	return string(buf)
}

// FromHeaders returns the first non-empty correlation header, or "".
func FromHeaders(h http.Header) string {
	for _, name := range []string{HeaderCorrelationID, HeaderRequestID} {
		if v := strings.TrimSpace(h.Get(name)); v != "" {
			return v
		}
	}
	return ""
}

// Extract looks for a correlation id in an inbound event, in priority order:
// explicit headers, a direct field, then the message-attribute shapes used by
// queue and notification transports. It returns "" when nothing is found.
func Extract(event map[string]any) string {
	if event == nil {
		return ""
	}
	if headers, ok := event["headers"].(map[string]any); ok {
		for _, name := range []string{HeaderCorrelationID, HeaderRequestID} {
			if v := lookupFold(headers, name); v != "" {
				return v
			}
		}
	}
	for _, field := range []string{"correlationId", "correlation_id"} {
		if v, ok := event[field].(string); ok && strings.TrimSpace(v) != "" {
			return strings.TrimSpace(v)
		}
	}
	// queue shape: {"messageAttributes": {"correlationId": {"stringValue": "..."}}}
	for _, attrsKey := range []string{"messageAttributes", "MessageAttributes"} {
		if attrs, ok := event[attrsKey].(map[string]any); ok {
			if v := attributeValue(attrs); v != "" {
				return v
			}
		}
	}
	// batched shape: {"Records": [{...}]}
	if records, ok := event["Records"].([]any); ok {
		for _, r := range records {
			rec, ok := r.(map[string]any)
			if !ok {
				continue
			}
			if v := Extract(rec); v != "" {
				return v
			}
			// notification shape nests the message under "Sns"
			if sns, ok := rec["Sns"].(map[string]any); ok {
				if v := Extract(sns); v != "" {
					return v
				}
			}
		}
	}
	return ""
}

func attributeValue(attrs map[string]any) string {
	for _, name := range []string{"correlationId", "CorrelationId", "correlation_id"} {
		attr, ok := attrs[name].(map[string]any)
		if !ok {
			continue
		}
		for _, k := range []string{"stringValue", "StringValue", "Value"} {
			if v, ok := attr[k].(string); ok && strings.TrimSpace(v) != "" {
				return strings.TrimSpace(v)
			}
		}
	}
	return ""
}

func lookupFold(m map[string]any, key string) string {
	for k, v := range m {
		if !strings.EqualFold(k, key) {
			continue
		}
		if s, ok := v.(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// OrNew returns id, or a fresh AUTO id when id is empty.
func OrNew(id string) string {
	if id = strings.TrimSpace(id); id != "" {
		return id
	}
	return NewID(AutoPrefix)
}

func WithID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, contextKey{}, id)
}

// FromContext returns the id stored by WithID, or "".
func FromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}
