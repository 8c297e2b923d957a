package memory

import (
	"strings"

	"github.com/pkoukk/tiktoken-go"

	"github.com/cadre-oss/agentmem/internal/telemetry"
)

// TokenCounter estimates how many model tokens a piece of text costs.
type TokenCounter interface {
	Count(text string) int
	Name() string
}

// EstimateCounter approximates tokens as one per four bytes, rounded up.
type EstimateCounter struct{}

func (EstimateCounter) Count(text string) int { return (len(text) + 3) / 4 }
func (EstimateCounter) Name() string          { return "estimate" }

// TiktokenCounter counts tokens with a BPE encoding.
type TiktokenCounter struct {
	enc      *tiktoken.Tiktoken
	encoding string
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base".
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc, encoding: encoding}, nil
}

func (c *TiktokenCounter) Count(text string) int {
	return len(c.enc.Encode(text, nil, nil))
}

func (c *TiktokenCounter) Name() string { return "tiktoken/" + c.encoding }

// NewTokenCounter returns the counter named by kind ("estimate" or
// "tiktoken"). When the encoding cannot be loaded it logs a warning and
// falls back to the estimate.
func NewTokenCounter(kind string, logger *telemetry.Logger) TokenCounter {
	if strings.ToLower(kind) != "tiktoken" {
		return EstimateCounter{}
	}
	c, err := NewTiktokenCounter("cl100k_base")
	if err != nil {
		if logger != nil {
			logger.Warn("Tokenizer unavailable, using byte estimate", "error", err)
		}
		return EstimateCounter{}
	}
	return c
}
