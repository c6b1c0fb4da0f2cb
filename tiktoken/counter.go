package tiktoken

import (
	"context"

	"github.com/pkoukk/tiktoken-go"
	"github.com/usefocal/focal"
)

var _ focal.TokenCounter = (*TokenCounter)(nil)

// TokenCounter counts tokens using a tiktoken BPE encoding.
type TokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTokenCounter creates a TokenCounter for the cl100k_base encoding.
func NewTokenCounter() (*TokenCounter, error) {
	enc, err := tiktoken.GetEncoding(Encoding)
	if err != nil {
		return nil, focal.Errorf(focal.EINTERNAL, "tiktoken: load encoding: %v", err)
	}
	return &TokenCounter{enc: enc}, nil
}

// CountTokens counts the number of tokens in the given text.
func (tc *TokenCounter) CountTokens(_ context.Context, text string) (int, error) {
	if text == "" {
		return 0, nil
	}
	return len(tc.enc.Encode(text, nil, nil)), nil
}
