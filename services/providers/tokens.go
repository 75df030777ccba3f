package providers

import (
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"
)

// TokenCounter estimates the token count of a piece of text
type TokenCounter func(text string) int

const estimateEncoding = "cl100k_base"

var (
	encodingOnce sync.Once
	encoding     *tiktoken.Tiktoken

	// loadEncoding is swapped in tests so they never touch the network
	loadEncoding = func() (*tiktoken.Tiktoken, error) {
		return tiktoken.GetEncoding(estimateEncoding)
	}
)

// EstimateTokens is the usage proxy for providers that do not report token
// counts. When the BPE ranks cannot be loaded it degrades to the character
// count.
func EstimateTokens(text string) int {
	if text == "" {
		return 0
	}

	encodingOnce.Do(func() {
		enc, err := loadEncoding()
		if err == nil {
			encoding = enc
		}
	})

	if encoding == nil {
		return utf8.RuneCountInString(text)
	}
	return len(encoding.Encode(text, nil, nil))
}
