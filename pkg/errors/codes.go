package errors

import "net/http"

// Category is the kind of fault, which decides default status, severity and retryability.
type Category string

const (
	CategoryValidation     Category = "Validation"
	CategoryBusinessLogic  Category = "BusinessLogic"
	CategoryInfrastructure Category = "Infrastructure"
	CategoryExternalAPI    Category = "ExternalAPI"
	CategoryAuthentication Category = "Authentication"
	CategoryAuthorization  Category = "Authorization"
	CategoryRateLimit      Category = "RateLimit"
	CategoryNotFound       Category = "NotFound"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

// Stable error codes returned to callers.
const (
	CodeValidation              = "VALIDATION_ERROR"
	CodeEmptyFile               = "EMPTY_FILE"
	CodeFileTooLarge            = "FILE_TOO_LARGE"
	CodeUnsupportedContentType  = "UNSUPPORTED_CONTENT_TYPE"
	CodeInvalidTenantID         = "INVALID_TENANT_ID"
	CodeBusinessLogic           = "BUSINESS_LOGIC_ERROR"
	CodeInvalidStatusTransition = "INVALID_STATUS_TRANSITION"
	CodeInfrastructure          = "INFRASTRUCTURE_ERROR"
	CodeExternalAPI             = "EXTERNAL_API_ERROR"
	CodeEmbeddingFailed         = "EMBEDDING_FAILED"
	CodeAuthentication          = "AUTHENTICATION_ERROR"
	CodeAuthorization           = "AUTHORIZATION_ERROR"
	CodeRateLimit               = "RATE_LIMIT_EXCEEDED"
	CodeNotFound                = "NOT_FOUND"
	CodeDocumentNotFound        = "DOCUMENT_NOT_FOUND"
)

type categoryDefaults struct {
	code      string
	status    int
	severity  Severity
	retryable bool
}

var defaults = map[Category]categoryDefaults{
	CategoryValidation:     {CodeValidation, http.StatusBadRequest, SeverityLow, false},
	CategoryBusinessLogic:  {CodeBusinessLogic, http.StatusUnprocessableEntity, SeverityMedium, false},
	CategoryInfrastructure: {CodeInfrastructure, http.StatusInternalServerError, SeverityHigh, true},
	CategoryExternalAPI:    {CodeExternalAPI, http.StatusBadGateway, SeverityHigh, true},
	CategoryAuthentication: {CodeAuthentication, http.StatusUnauthorized, SeverityMedium, false},
	CategoryAuthorization:  {CodeAuthorization, http.StatusForbidden, SeverityMedium, false},
	CategoryRateLimit:      {CodeRateLimit, http.StatusTooManyRequests, SeverityLow, true},
	CategoryNotFound:       {CodeNotFound, http.StatusNotFound, SeverityLow, false},
}

// HTTPStatusCode returns the fixed status for the category.
func (c Category) HTTPStatusCode() int {
	if d, ok := defaults[c]; ok {
		return d.status
	}
	return http.StatusInternalServerError
}

func (c Category) DefaultSeverity() Severity {
	if d, ok := defaults[c]; ok {
		return d.severity
	}
	return SeverityHigh
}

func (s Severity) rank() int {
	switch s {
	case SeverityLow:
		return 0
	case SeverityMedium:
		return 1
	case SeverityHigh:
		return 2
	case SeverityCritical:
		return 3
	}
	return 2
}
