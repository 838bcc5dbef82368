package inksocket

import (
	"strings"
	"unicode"

	tiktoken "github.com/pkoukk/tiktoken-go"
)

// Default context window budgets, in tokens.
const (
	DefaultContextBefore = 1536
	DefaultContextAfter  = 256
)

// TokenCounter counts the tokens in a piece of text.
type TokenCounter interface {
	CountTokens(text string) int
}

// EstimateCounter approximates token counts without a vocabulary: every CJK
// ideograph counts as one token and every word containing a letter as 1.3.
type EstimateCounter struct{}

// CountTokens implements TokenCounter.
func (EstimateCounter) CountTokens(text string) int {
	var cjk int
	for _, r := range text {
		if r >= '\u4e00' && r <= '\u9fff' {
			cjk++
		}
	}

	var words int
	for _, w := range strings.Fields(text) {
		if strings.IndexFunc(w, unicode.IsLetter) >= 0 {
			words++
		}
	}

	return cjk + words*13/10
}

// TiktokenCounter counts tokens with a tiktoken encoding.
type TiktokenCounter struct {
	enc *tiktoken.Tiktoken
}

// NewTiktokenCounter loads the named encoding, e.g. "cl100k_base". The first
// load may download the vocabulary; set TIKTOKEN_CACHE_DIR to keep it.
func NewTiktokenCounter(encoding string) (*TiktokenCounter, error) {
	enc, err := tiktoken.GetEncoding(encoding)
	if err != nil {
		return nil, err
	}
	return &TiktokenCounter{enc: enc}, nil
}

// CountTokens implements TokenCounter.
func (t *TiktokenCounter) CountTokens(text string) int {
	return len(t.enc.Encode(text, nil, nil))
}

// ContextWindow bounds the text sent on either side of a cursor.
type ContextWindow struct {
	Before  int
	After   int
	Counter TokenCounter
}

// DefaultContextWindow returns a window with the default budgets and the
// estimating counter.
func DefaultContextWindow() ContextWindow {
	return ContextWindow{
		Before:  DefaultContextBefore,
		After:   DefaultContextAfter,
		Counter: EstimateCounter{},
	}
}

// Split cuts text at cursor, a rune offset clamped to the text, and trims the
// text before the cursor from the left and the text after it from the right
// until each side fits its token budget.
func (w ContextWindow) Split(text string, cursor int) (before, after string) {
	runes := []rune(text)
	cursor = max(0, min(cursor, len(runes)))

	before = w.trim(runes[:cursor], w.Before, true)
	after = w.trim(runes[cursor:], w.After, false)
	return before, after
}

func (w ContextWindow) trim(runes []rune, budget int, keepTail bool) string {
	text := string(runes)
	counter := w.Counter
	if counter == nil {
		counter = EstimateCounter{}
	}

	tokens := counter.CountTokens(text)
	if tokens <= budget {
		return text
	}

	keep := int(float64(budget) * float64(len(runes)) / float64(tokens))
	if keepTail {
		return string(runes[len(runes)-keep:])
	}
	return string(runes[:keep])
}
