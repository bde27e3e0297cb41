package agent

import (
	"fmt"
	"sync"
	"unicode/utf8"

	"github.com/pkoukk/tiktoken-go"

	"github.com/hupe1980/agentroom/core"
)

const (
	// DefaultEncoding is the tiktoken encoding used to budget short-term memory.
	DefaultEncoding = "cl100k_base"
	// MaxContextTokens is the short-term token budget of an LLM agent.
	MaxContextTokens = 128000
	// MaxMessageChars caps the length of a single recorded message.
	MaxMessageChars = 64000
)

// TokenCounter counts tokens of a text.
type TokenCounter interface {
	CountTokens(text string) int
}

// TiktokenCounter counts tokens with a tiktoken encoding. The encoding is
// loaded lazily; if it cannot be loaded the counter falls back to a
// character based estimate.
type TiktokenCounter struct {
	encoding string
	once     sync.Once
	enc      *tiktoken.Tiktoken
	initErr  error
}

// NewTiktokenCounter creates a counter for the given encoding (DefaultEncoding if empty).
func NewTiktokenCounter(encoding string) *TiktokenCounter {
	if encoding == "" {
		encoding = DefaultEncoding
	}
	return &TiktokenCounter{encoding: encoding}
}

func (t *TiktokenCounter) init() error {
	t.once.Do(func() {
		enc, err := tiktoken.GetEncoding(t.encoding)
		if err != nil {
			t.initErr = fmt.Errorf("init tiktoken encoding %s: %w", t.encoding, err)
			return
		}
		t.enc = enc
	})
	return t.initErr
}

// Err reports why the encoding could not be loaded, if it could not.
func (t *TiktokenCounter) Err() error { return t.init() }

// CountTokens implements TokenCounter.
func (t *TiktokenCounter) CountTokens(text string) int {
	if err := t.init(); err != nil {
		return ApproxCounter{}.CountTokens(text)
	}
	return len(t.enc.Encode(text, nil, nil))
}

// ApproxCounter estimates four characters per token.
type ApproxCounter struct{}

// CountTokens implements TokenCounter.
func (ApproxCounter) CountTokens(text string) int {
	return (len(text) + 3) / 4
}

// CountMessages sums the tokens of all message contents.
func CountMessages(c TokenCounter, msgs []core.Message) int {
	total := 0
	for _, m := range msgs {
		total += c.CountTokens(m.Content)
	}
	return total
}

// truncate cuts s to at most limit bytes without splitting a UTF-8 sequence.
func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	if limit <= 0 {
		return ""
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
