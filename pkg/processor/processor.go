package processor

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/xhad/ragingest/internal/models"
)

const (
	DefaultChunkSize    = 1000
	DefaultChunkOverlap = 200
)

type ProcessorConfig struct {
	ChunkSize int
	// ChunkOverlap is nil when unset; zero is a valid overlap.
	ChunkOverlap *int
}

type Processor struct {
	config ProcessorConfig
}

// Overlap returns a pointer for ProcessorConfig.ChunkOverlap.
func Overlap(n int) *int {
	return &n
}

// OverlapFor is the overlap used when none is configured: DefaultChunkOverlap,
// or a fifth of chunkSize when the default does not fit.
func OverlapFor(chunkSize int) int {
	if DefaultChunkOverlap < chunkSize {
		return DefaultChunkOverlap
	}
	return chunkSize / 5
}

// NewWithConfig fills in an unset size or overlap and rejects an overlap
// outside [0, ChunkSize).
func NewWithConfig(config ProcessorConfig) (Processor, error) {
	if config.ChunkSize == 0 {
		config.ChunkSize = DefaultChunkSize
	}
	if config.ChunkSize < 0 {
		return Processor{}, fmt.Errorf("chunk size must be positive, got %d", config.ChunkSize)
	}
	if config.ChunkOverlap == nil {
		config.ChunkOverlap = Overlap(OverlapFor(config.ChunkSize))
	}
	if o := *config.ChunkOverlap; o < 0 || o >= config.ChunkSize {
		return Processor{}, fmt.Errorf("chunk overlap must be in [0, %d), got %d", config.ChunkSize, o)
	}

	return Processor{
		config: config,
	}, nil
}

// Default is a processor with DefaultChunkSize and DefaultChunkOverlap.
func Default() Processor {
	return Processor{config: ProcessorConfig{
		ChunkSize:    DefaultChunkSize,
		ChunkOverlap: Overlap(DefaultChunkOverlap),
	}}
}

func (p Processor) Config() ProcessorConfig {
	return p.config
}

// Process splits text with the configured size and overlap.
func (p Processor) Process(text string) ([]models.Chunk, error) {
	return Chunk(text, p.config.ChunkSize, *p.config.ChunkOverlap)
}

// Chunk splits text into ordered, possibly overlapping chunks of at most
// chunkSize runes. A window is pulled back to the last sentence end or
// paragraph break inside it, or failing that the last space, provided the
// break lies past the window midpoint. Chunks are trimmed; blank ones are
// dropped without consuming an index. Offsets are rune positions.
func Chunk(text string, chunkSize, overlap int) ([]models.Chunk, error) {
	if chunkSize <= 0 {
		return nil, fmt.Errorf("chunk size must be positive, got %d", chunkSize)
	}
	if overlap < 0 || overlap >= chunkSize {
		return nil, fmt.Errorf("chunk overlap must be in [0, %d), got %d", chunkSize, overlap)
	}

	runes := []rune(text)
	n := len(runes)
	chunks := make([]models.Chunk, 0, n/(chunkSize-overlap)+1)

	start := 0
	for start < n {
		end := start + chunkSize
		if end >= n {
			end = n
		} else {
			end = breakPoint(runes, start, end, start+chunkSize/2)
		}

		if content := strings.TrimSpace(string(runes[start:end])); content != "" {
			chunks = append(chunks, models.Chunk{
				Index:     len(chunks),
				Content:   content,
				StartChar: start,
				EndChar:   end,
			})
		}

		if end == n {
			break
		}

		next := end - overlap
		if next <= start {
			// a pulled-back window can be shorter than the overlap
			next = end
		}
		start = next
	}

	return chunks, nil
}

// breakPoint returns the end of the window [start, end): one past the last
// '.' or the start of the last "\n\n" if past mid, else the last space if past
// mid, else end unchanged.
func breakPoint(runes []rune, start, end, mid int) int {
	lastPeriod, lastParagraph, lastSpace := -1, -1, -1
	for i := end - 1; i >= start; i-- {
		switch {
		case lastPeriod < 0 && runes[i] == '.':
			lastPeriod = i
		case lastParagraph < 0 && runes[i] == '\n' && i+1 < end && runes[i+1] == '\n':
			lastParagraph = i
		case lastSpace < 0 && runes[i] == ' ':
			lastSpace = i
		}
		if lastPeriod >= 0 && lastParagraph >= 0 && lastSpace >= 0 {
			break
		}
	}

	if bp := max(lastPeriod, lastParagraph); bp > mid {
		return bp + 1
	}
	if lastSpace > mid {
		return lastSpace
	}
	return end
}

// WordCount counts whitespace-separated words.
func WordCount(text string) int {
	return len(strings.FieldsFunc(text, unicode.IsSpace))
}
