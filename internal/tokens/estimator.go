// Package tokens estimates token counts for analytics using tiktoken.
// Council providers span many tokenizer families, so one shared encoding
// gives comparable (not exact) numbers across all of them.
package tokens

import (
	"sync"
	"unicode/utf8"

	"github.com/tiktoken-go/tokenizer"
)

// Estimator counts tokens with the cl100k_base encoding. Counts are
// estimates; provider-reported usage is not collected.
type Estimator struct {
	once  sync.Once
	codec tokenizer.Codec
	err   error
}

// NewEstimator creates an estimator. The codec loads lazily on first use.
func NewEstimator() *Estimator {
	return &Estimator{}
}

// Estimate returns the token count of text. When the codec cannot load,
// it falls back to a characters/4 heuristic rather than failing.
func (e *Estimator) Estimate(text string) int {
	e.once.Do(func() {
		e.codec, e.err = tokenizer.Get(tokenizer.Cl100kBase)
	})
	if e.err != nil {
		return utf8.RuneCountInString(text) / 4
	}

	ids, _, err := e.codec.Encode(text)
	if err != nil {
		return utf8.RuneCountInString(text) / 4
	}
	return len(ids)
}
