package processor

import (
	"bytes"
	"fmt"
	"mime"
	"strings"
	"unicode/utf8"

	"github.com/PuerkitoBio/goquery"
)

const (
	ContentTypePlain    = "text/plain"
	ContentTypeMarkdown = "text/markdown"
	ContentTypeHTML     = "text/html"

	MethodPlainText = "plaintext"
	MethodHTML      = "html"
)

var supportedTypes = map[string]string{
	ContentTypePlain:    MethodPlainText,
	ContentTypeMarkdown: MethodPlainText,
	ContentTypeHTML:     MethodHTML,
}

// NormalizeContentType lower-cases the media type and drops parameters.
func NormalizeContentType(contentType string) string {
	mediaType, _, err := mime.ParseMediaType(contentType)
	if err != nil {
		mediaType = strings.TrimSpace(strings.SplitN(contentType, ";", 2)[0])
	}
	return strings.ToLower(mediaType)
}

func Supported(contentType string) bool {
	_, ok := supportedTypes[NormalizeContentType(contentType)]
	return ok
}

func SupportedTypes() []string {
	return []string{ContentTypePlain, ContentTypeMarkdown, ContentTypeHTML}
}

// Extracted is the text obtained from an upload and how it was obtained.
type Extracted struct {
	Text   string
	Method string
}

// Extract decodes data into text according to its content type.
func Extract(contentType string, data []byte) (Extracted, error) {
	method, ok := supportedTypes[NormalizeContentType(contentType)]
	if !ok {
		return Extracted{}, fmt.Errorf("unsupported content type %q", contentType)
	}

	switch method {
	case MethodHTML:
		text, err := extractHTML(data)
		if err != nil {
			return Extracted{}, err
		}
		return Extracted{Text: text, Method: method}, nil
	default:
		return Extracted{Text: sanitizeUTF8(string(data)), Method: method}, nil
	}
}

func extractHTML(data []byte) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	doc.Find("script, style, noscript, nav, header, footer").Remove()

	selectors := []string{
		"main",
		"article",
		".content",
		"#content",
		".documentation",
		"#documentation",
	}

	var content string
	for _, selector := range selectors {
		if selected := doc.Find(selector); selected.Length() > 0 {
			content = blockText(selected)
			break
		}
	}
	if content == "" {
		content = blockText(doc.Find("body"))
	}

	return sanitizeUTF8(content), nil
}

// blockText joins the text of block elements with blank lines so paragraph
// breaks survive for the chunker.
func blockText(sel *goquery.Selection) string {
	var blocks []string
	sel.Find("h1, h2, h3, h4, h5, h6, p, li, pre, blockquote, td").Each(func(_ int, s *goquery.Selection) {
		if s.ParentsFiltered("p, li, pre, blockquote, td").Length() > 0 {
			return
		}
		if text := collapseSpaces(s.Text()); text != "" {
			blocks = append(blocks, text)
		}
	})
	if len(blocks) == 0 {
		return collapseSpaces(sel.Text())
	}
	return strings.Join(blocks, "\n\n")
}

func collapseSpaces(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

// sanitizeUTF8 drops invalid byte sequences.
func sanitizeUTF8(s string) string {
	if utf8.ValidString(s) {
		return s
	}
	return strings.ToValidUTF8(s, "")
}
