package embeddings

import (
	"strings"

	"github.com/google/uuid"
)

// ChunkingConfig controls how long agent analyses are split before they are
// embedded and archived.
type ChunkingConfig struct {
	Enabled      bool `yaml:"enabled"`
	MaxWords     int  `yaml:"max_words"`
	OverlapWords int  `yaml:"overlap_words"`
}

// DefaultChunkingConfig returns the defaults used for archived outputs.
func DefaultChunkingConfig() ChunkingConfig {
	return ChunkingConfig{
		Enabled:      true,
		MaxWords:     300,
		OverlapWords: 40,
	}
}

// Chunk is one slice of a longer document. Chunks from the same document
// share a DocID so retrieval hits can be traced back to their source.
type Chunk struct {
	DocID      string
	Text       string
	Index      int
	TotalCount int
}

// Chunker splits word-windowed overlapping chunks out of long texts.
type Chunker struct {
	maxWords     int
	overlapWords int
}

func NewChunker(config ChunkingConfig) *Chunker {
	if config.MaxWords <= 0 {
		config.MaxWords = 300
	}
	if config.OverlapWords <= 0 {
		config.OverlapWords = 40
	}
	return &Chunker{maxWords: config.MaxWords, overlapWords: config.OverlapWords}
}

// ChunkText splits text into overlapping chunks. It returns nil when the text
// already fits in a single chunk, which callers treat as "store as-is".
func (c *Chunker) ChunkText(text string) []Chunk {
	words := strings.Fields(text)
	if len(words) <= c.maxWords {
		return nil
	}

	docID := uuid.New().String()
	step := c.maxWords - c.overlapWords
	if step <= 0 {
		step = c.maxWords / 2
	}
	if step <= 0 {
		step = 1
	}

	var chunks []Chunk
	for i := 0; i < len(words); i += step {
		end := i + c.maxWords
		if end > len(words) {
			end = len(words)
		}
		chunks = append(chunks, Chunk{
			DocID: docID,
			Text:  strings.Join(words[i:end], " "),
			Index: len(chunks),
		})
		if end == len(words) {
			break
		}
	}
	for i := range chunks {
		chunks[i].TotalCount = len(chunks)
	}
	return chunks
}

// CountWords reports the word count used for the chunking decision.
func (c *Chunker) CountWords(text string) int {
	return len(strings.Fields(text))
}
