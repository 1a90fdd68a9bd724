package features

import (
	"strings"
	"unicode"
)

// Tokenizer splits text into word tokens. Implementations backed by an NLP
// service may fail; Extract wraps their errors in ErrFeatureExtractionFailed.
type Tokenizer interface {
	Tokenize(text string) ([]string, error)
}

// WhitespaceTokenizer splits on Unicode whitespace and keeps punctuation
// attached to tokens.
type WhitespaceTokenizer struct{}

func (WhitespaceTokenizer) Tokenize(text string) ([]string, error) {
	return strings.Fields(text), nil
}

// trimWord strips leading and trailing punctuation and symbols.
func trimWord(w string) string {
	return strings.TrimFunc(w, func(r rune) bool {
		return unicode.IsPunct(r) || unicode.IsSymbol(r)
	})
}
