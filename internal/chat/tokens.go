package chat

import (
	"log/slog"
	"sync"

	"github.com/weaviate/tiktoken-go"
)

const tokenEncoding = "cl100k_base"

// TokenCounter counts cl100k_base tokens, estimating four characters per
// token when the encoding cannot be loaded.
type TokenCounter struct {
	once sync.Once
	enc  *tiktoken.Tiktoken
}

// NewTokenCounter creates a counter. The encoding is loaded on first use.
func NewTokenCounter() *TokenCounter {
	return &TokenCounter{}
}

// Count returns the number of tokens in text.
func (c *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	c.once.Do(func() {
		enc, err := tiktoken.GetEncoding(tokenEncoding)
		if err != nil {
			slog.Warn("Failed to load tiktoken encoding, using estimate", "encoding", tokenEncoding, "error", err)
			return
		}
		c.enc = enc
	})
	if c.enc == nil {
		return EstimateTokens(text)
	}
	return len(c.enc.Encode(text, nil, nil))
}

// EstimateTokens approximates a token count from the byte length.
func EstimateTokens(text string) int {
	return len(text) / 4
}
