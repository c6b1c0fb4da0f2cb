// Package tiktoken implements token-based text chunking and token
// counting using the tiktoken BPE encodings.
package tiktoken

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"
	"github.com/usefocal/focal"
)

const (
	// Encoding is the BPE encoding used for chunking and counting. It
	// matches the tokenizers of the embedding models we target closely
	// enough for sizing purposes.
	Encoding = "cl100k_base"

	// DefaultChunkTokens is the target chunk size in tokens.
	DefaultChunkTokens = 400

	// DefaultOverlapTokens is how many tokens consecutive chunks share.
	DefaultOverlapTokens = 40
)

var _ focal.Chunker = (*Chunker)(nil)

// Chunker splits text into overlapping token windows. Windows preserve
// context across chunk boundaries so retrieval does not lose sentences
// that straddle a cut.
type Chunker struct {
	enc       *tiktoken.Tiktoken
	chunkSize int
	overlap   int
}

// ChunkerOption configures a Chunker.
type ChunkerOption func(*Chunker)

// WithChunkSize sets the chunk size in tokens.
func WithChunkSize(n int) ChunkerOption {
	return func(c *Chunker) {
		if n > 0 {
			c.chunkSize = n
		}
	}
}

// WithOverlap sets the overlap between consecutive chunks in tokens.
func WithOverlap(n int) ChunkerOption {
	return func(c *Chunker) {
		if n >= 0 {
			c.overlap = n
		}
	}
}

// NewChunker creates a Chunker with the default window of 400 tokens
// and 40 tokens of overlap.
func NewChunker(opts ...ChunkerOption) (*Chunker, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, focal.Errorf(focal.EINTERNAL, "tiktoken: load encoding: %v", err)
	}
	c := &Chunker{
		enc:       enc,
		chunkSize: DefaultChunkTokens,
		overlap:   DefaultOverlapTokens,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.overlap >= c.chunkSize {
		return nil, focal.Errorf(focal.EINVALID, "tiktoken: overlap %d must be smaller than chunk size %d", c.overlap, c.chunkSize)
	}
	return c, nil
}

// Chunk splits text into token windows. Start and End are character
// offsets into the concatenation of the produced chunk texts, so
// consumers can re-derive positions without re-tokenizing.
func (c *Chunker) Chunk(text string) ([]focal.Chunk, error) {
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}

	tokens := c.enc.Encode(text, nil, nil)
	if len(tokens) == 0 {
		return nil, nil
	}

	step := c.chunkSize - c.overlap
	chunks := make([]focal.Chunk, 0, len(tokens)/step+1)
	offset := 0
	for start := 0; start < len(tokens); start += step {
		end := start + c.chunkSize
		if end > len(tokens) {
			end = len(tokens)
		}
		piece := c.enc.Decode(tokens[start:end])
		chunks = append(chunks, focal.Chunk{
			Text:       piece,
			Start:      offset,
			End:        offset + len(piece),
			TokenCount: end - start,
		})
		offset += len(piece)
		if end == len(tokens) {
			break
		}
	}
	return chunks, nil
}
