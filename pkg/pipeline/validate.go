package pipeline

import (
	"path/filepath"
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
	"github.com/xhad/ragingest/internal/models"
	"github.com/xhad/ragingest/pkg/errors"
	"github.com/xhad/ragingest/pkg/processor"
)

const (
	maxTenantIDLength = 64
	maxAssetIDLength  = 128
	maxFileNameLength = 255
	defaultFileName   = "upload"
)

var (
	identifierPattern   = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)
	disallowedFileChars = regexp.MustCompile(`[^A-Za-z0-9._ -]`)
)

var extensionTypes = map[string]string{
	".txt":      processor.ContentTypePlain,
	".text":     processor.ContentTypePlain,
	".md":       processor.ContentTypeMarkdown,
	".markdown": processor.ContentTypeMarkdown,
	".html":     processor.ContentTypeHTML,
	".htm":      processor.ContentTypeHTML,
}

// validated is an upload that passed every check that needs no collaborator.
type validated struct {
	tenantID    string
	assetID     string
	fileName    string
	contentType string
	data        []byte
	extracted   processor.Extracted
	wordCount   int
	charCount   int
}

func validateTenantID(tenantID string) error {
	switch {
	case tenantID == "":
		return errors.Validation(errors.CodeInvalidTenantID, "tenant id is required")
	case len(tenantID) > maxTenantIDLength:
		return errors.Validationf(errors.CodeInvalidTenantID, "tenant id is too large: at most %d characters", maxTenantIDLength)
	case !identifierPattern.MatchString(tenantID):
		return errors.Validation(errors.CodeInvalidTenantID, "tenant id is invalid: only letters, digits, '_' and '-' are allowed")
	}
	return nil
}

func validateAssetID(assetID string) error {
	if len(assetID) > maxAssetIDLength || !identifierPattern.MatchString(assetID) {
		return errors.Validationf(errors.CodeValidation, "asset id %q is invalid", assetID)
	}
	return nil
}

// SanitizeFileName keeps the base name, replaces disallowed characters with
// '_' and caps the length while keeping the extension.
func SanitizeFileName(name string) string {
	name = strings.ReplaceAll(name, "\\", "/")
	name = filepath.Base(strings.TrimSpace(name))
	if name == "." || name == "/" {
		name = ""
	}
	name = disallowedFileChars.ReplaceAllString(name, "_")
	name = strings.Trim(name, " .")
	if name == "" {
		return defaultFileName
	}

	if len(name) > maxFileNameLength {
		ext := filepath.Ext(name)
		if len(ext) > 16 {
			ext = ""
		}
		name = name[:maxFileNameLength-len(ext)] + ext
	}
	return name
}

// SupportedExtension reports whether a file name maps to an ingestible
// content type by extension alone.
func SupportedExtension(fileName string) bool {
	_, ok := extensionTypes[strings.ToLower(filepath.Ext(fileName))]
	return ok
}

func contentTypeFor(file models.UploadedFile, fileName string) string {
	ct := processor.NormalizeContentType(file.ContentType)
	if ct == "" || ct == "application/octet-stream" {
		if inferred, ok := extensionTypes[strings.ToLower(filepath.Ext(fileName))]; ok {
			return inferred
		}
	}
	return ct
}

// validate rejects bad uploads before anything is written. Text extraction is
// pure, so documents without any text are rejected here too.
func (p *Pipeline) validate(req IngestRequest) (*validated, error) {
	if err := validateTenantID(req.TenantID); err != nil {
		return nil, err
	}

	assetID := strings.TrimSpace(req.AssetID)
	if assetID == "" {
		assetID = uuid.NewString()
	} else if err := validateAssetID(assetID); err != nil {
		return nil, err
	}

	size := int64(len(req.File.Data))
	if size == 0 {
		return nil, errors.Validation(errors.CodeEmptyFile, "file is required: upload is empty")
	}
	if size > p.maxFileSize {
		return nil, errors.Validationf(errors.CodeFileTooLarge, "file is too large: %d bytes exceeds the %d byte limit", size, p.maxFileSize)
	}

	fileName := SanitizeFileName(req.File.FileName)
	contentType := contentTypeFor(req.File, fileName)
	if !processor.Supported(contentType) {
		return nil, errors.Validationf(errors.CodeUnsupportedContentType,
			"content type %q is not supported; use one of %s", contentType, strings.Join(processor.SupportedTypes(), ", ")).
			WithMetadata("content_type", contentType)
	}

	extracted, err := processor.Extract(contentType, req.File.Data)
	if err != nil {
		return nil, errors.Validationf(errors.CodeValidation, "file is invalid: %v", err)
	}
	if strings.TrimSpace(extracted.Text) == "" {
		return nil, errors.Validation(errors.CodeEmptyFile, "file contains no text")
	}

	return &validated{
		tenantID:    req.TenantID,
		assetID:     assetID,
		fileName:    fileName,
		contentType: contentType,
		data:        req.File.Data,
		extracted:   extracted,
		wordCount:   processor.WordCount(extracted.Text),
		charCount:   utf8.RuneCountInString(extracted.Text),
	}, nil
}
