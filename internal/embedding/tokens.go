package embedding

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter counts tokens with the model's BPE encoding. The encoding is
// loaded on first use; when it cannot be loaded, counts fall back to one
// token per four characters.
type TokenCounter struct {
	model string
	once  sync.Once
	enc   *tiktoken.Tiktoken
	load  func(model string) (*tiktoken.Tiktoken, error)
}

// NewTokenCounter creates a counter for model.
func NewTokenCounter(model string) *TokenCounter {
	return &TokenCounter{model: model, load: loadEncoding}
}

func loadEncoding(model string) (*tiktoken.Tiktoken, error) {
	if enc, err := tiktoken.EncodingForModel(model); err == nil {
		return enc, nil
	}
	return tiktoken.GetEncoding("cl100k_base")
}

// Count returns the number of tokens in text.
func (t *TokenCounter) Count(text string) int {
	if text == "" {
		return 0
	}
	t.once.Do(func() {
		if t.load == nil {
			return
		}
		if enc, err := t.load(t.model); err == nil {
			t.enc = enc
		}
	})
	if t.enc != nil {
		return len(t.enc.Encode(text, nil, nil))
	}
	return estimateTokens(text)
}

func estimateTokens(text string) int {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return 0
	}
	return max(1, (n+3)/4)
}
