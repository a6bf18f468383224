// Package splitter cuts a document into overlapping chunks for embedding.
package splitter

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/bull/speechqa/internal/loader"
)

const (
	DefaultChunkSize    = 500
	DefaultChunkOverlap = 50
	DefaultSeparator    = "\n\n"
)

// ErrInvalidConfig is returned for sizes that cannot produce chunks.
var ErrInvalidConfig = errors.New("invalid splitter configuration")

// Chunk is a piece of a document. Index is its position within the document.
type Chunk struct {
	ID      string
	Index   int
	Source  string
	Content string
}

// Splitter turns a document into chunks.
type Splitter interface {
	SplitDocument(doc *loader.Document) ([]Chunk, error)
}

// ChunkID derives a stable ID so rebuilding the same document yields the same IDs.
func ChunkID(source string, index int) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, fmt.Appendf(nil, "%s#%d", source, index)).String()
}

// Character splits on a literal separator and greedily merges the pieces into
// chunks of at most ChunkSize characters, carrying up to ChunkOverlap
// characters of trailing pieces into the next chunk. Lengths count runes.
type Character struct {
	ChunkSize    int
	ChunkOverlap int
	Separator    string
	Logger       *slog.Logger
}

// NewCharacter returns a splitter with the default separator.
func NewCharacter(size, overlap int, logger *slog.Logger) *Character {
	return &Character{
		ChunkSize:    size,
		ChunkOverlap: overlap,
		Separator:    DefaultSeparator,
		Logger:       logger,
	}
}

// Validate checks the size settings.
func (c *Character) Validate() error {
	if c.ChunkSize <= 0 {
		return fmt.Errorf("%w: chunk size must be positive, got %d", ErrInvalidConfig, c.ChunkSize)
	}
	if c.ChunkOverlap < 0 {
		return fmt.Errorf("%w: chunk overlap must not be negative, got %d", ErrInvalidConfig, c.ChunkOverlap)
	}
	if c.ChunkOverlap > c.ChunkSize {
		return fmt.Errorf("%w: chunk overlap %d is larger than chunk size %d",
			ErrInvalidConfig, c.ChunkOverlap, c.ChunkSize)
	}
	return nil
}

// SplitDocument implements Splitter.
func (c *Character) SplitDocument(doc *loader.Document) ([]Chunk, error) {
	texts, err := c.SplitText(doc.Content)
	if err != nil {
		return nil, err
	}
	return toChunks(doc.Source, texts, 0), nil
}

// SplitText returns the chunk texts for text.
func (c *Character) SplitText(text string) ([]string, error) {
	if err := c.Validate(); err != nil {
		return nil, err
	}

	sep := c.Separator
	var pieces []string
	if sep == "" {
		for _, r := range text {
			pieces = append(pieces, string(r))
		}
	} else {
		for _, piece := range strings.Split(text, sep) {
			if piece != "" {
				pieces = append(pieces, piece)
			}
		}
	}
	return c.merge(pieces, sep), nil
}

func (c *Character) merge(pieces []string, sep string) []string {
	sepLen := utf8.RuneCountInString(sep)

	// joinLen is the separator cost of adding one more piece to current.
	joinLen := func(current []string) int {
		if len(current) > 0 {
			return sepLen
		}
		return 0
	}

	var chunks []string
	var current []string
	total := 0

	for _, piece := range pieces {
		n := utf8.RuneCountInString(piece)

		if total+n+joinLen(current) > c.ChunkSize {
			if total > c.ChunkSize {
				c.logger().Warn("Created a chunk larger than the chunk size",
					"size", total, "chunk_size", c.ChunkSize)
			}
			if len(current) > 0 {
				if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
					chunks = append(chunks, chunk)
				}
				for total > c.ChunkOverlap || (total+n+joinLen(current) > c.ChunkSize && total > 0) {
					total -= utf8.RuneCountInString(current[0])
					if len(current) > 1 {
						total -= sepLen
					}
					current = current[1:]
				}
			}
		}

		current = append(current, piece)
		total += n
		if len(current) > 1 {
			total += sepLen
		}
	}

	if total > c.ChunkSize {
		c.logger().Warn("Created a chunk larger than the chunk size",
			"size", total, "chunk_size", c.ChunkSize)
	}
	if chunk := strings.TrimSpace(strings.Join(current, sep)); chunk != "" {
		chunks = append(chunks, chunk)
	}
	return chunks
}

func (c *Character) logger() *slog.Logger {
	if c.Logger == nil {
		return slog.Default()
	}
	return c.Logger
}

func toChunks(source string, texts []string, offset int) []Chunk {
	chunks := make([]Chunk, len(texts))
	for i, text := range texts {
		index := offset + i
		chunks[i] = Chunk{
			ID:      ChunkID(source, index),
			Index:   index,
			Source:  source,
			Content: text,
		}
	}
	return chunks
}

// ForSource picks the markdown splitter for .md and .markdown files and the
// character splitter for everything else.
func ForSource(path string, character *Character) Splitter {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".md", ".markdown":
		return NewMarkdown(character)
	default:
		return character
	}
}
