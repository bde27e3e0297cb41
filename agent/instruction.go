package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrNoJSON is returned when a text contains no balanced JSON object or array.
var ErrNoJSON = errors.New("no JSON value found")

// Instruction is the structured directive a coordinator emits each turn:
//
//	{"Thought": "...", "Action": "ResearchAssistant", "Action Input": "...", "Question": "..."}
type Instruction struct {
	Thought     string `json:"Thought"`
	Action      string `json:"Action"`
	ActionInput string `json:"Action Input"`
	Question    string `json:"Question"`
}

// IsZero reports whether no field was decoded.
func (i Instruction) IsZero() bool { return i == Instruction{} }

// ParseInstruction extracts the first JSON value from a coordinator reply and
// decodes it as an Instruction. An array yields its first object. Non-string
// values are kept as compact JSON.
func ParseInstruction(text string) (Instruction, error) {
	raw, err := ExtractJSON(text)
	if err != nil {
		return Instruction{}, err
	}

	var fields map[string]json.RawMessage
	if strings.HasPrefix(raw, "[") {
		var items []map[string]json.RawMessage
		if err := json.Unmarshal([]byte(raw), &items); err != nil {
			return Instruction{}, fmt.Errorf("decode instruction: %w", err)
		}
		if len(items) == 0 {
			return Instruction{}, ErrNoJSON
		}
		fields = items[0]
	} else if err := json.Unmarshal([]byte(raw), &fields); err != nil {
		return Instruction{}, fmt.Errorf("decode instruction: %w", err)
	}

	return Instruction{
		Thought:     rawString(fields["Thought"]),
		Action:      strings.TrimSpace(rawString(fields["Action"])),
		ActionInput: rawString(fields["Action Input"]),
		Question:    rawString(fields["Question"]),
	}, nil
}

func rawString(r json.RawMessage) string {
	if len(r) == 0 || string(r) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(r, &s); err == nil {
		return s
	}
	return string(r)
}

// ExtractJSON returns the first balanced JSON object or array in text.
// Brackets inside string literals are ignored.
func ExtractJSON(text string) (string, error) {
	start := strings.IndexAny(text, "{[")
	for start >= 0 {
		if end := matchBracket(text, start); end > 0 {
			return text[start : end+1], nil
		}
		next := strings.IndexAny(text[start+1:], "{[")
		if next < 0 {
			break
		}
		start += next + 1
	}
	return "", ErrNoJSON
}

// matchBracket returns the index of the bracket closing text[start], or -1.
func matchBracket(text string, start int) int {
	var (
		stack    []byte
		inString bool
		escaped  bool
	)
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				return -1
			}
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				return i
			}
		}
	}
	return -1
}

// DecodeJSON extracts the first JSON value of text into v.
func DecodeJSON(text string, v any) error {
	raw, err := ExtractJSON(text)
	if err != nil {
		return err
	}
	return json.Unmarshal([]byte(raw), v)
}

func schemaJSON(schema map[string]any) string {
	if schema == nil {
		return "{}"
	}
	b, err := json.Marshal(schema)
	if err != nil {
		return "{}"
	}
	return string(b)
}
