package llm

import (
	"log/slog"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

type TokenCounter interface {
	Count(text string) int
}

// NewTokenCounter returns a tiktoken counter for encoding, or a
// four-characters-per-token estimate when encoding is empty or cannot be loaded.
func NewTokenCounter(encoding string, logger *slog.Logger) TokenCounter {
	if encoding == "" {
		return estimateCounter{}
	}
	tke, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		if logger != nil {
			logger.Warn("token encoding unavailable, estimating token counts", "encoding", encoding, "err", err)
		}
		return estimateCounter{}
	}
	return tiktokenCounter{tke: tke}
}

type tiktokenCounter struct {
	tke *tiktoken.Tiktoken
}

func (c tiktokenCounter) Count(text string) int {
	return len(c.tke.Encode(text, nil, nil))
}

type estimateCounter struct{}

func (estimateCounter) Count(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return (n + 3) / 4
}
