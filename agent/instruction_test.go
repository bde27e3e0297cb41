package agent

import (
	"errors"
	"testing"
)

func TestParseInstruction_Object(t *testing.T) {
	text := `Sure! Here is my plan:
{"Thought": "Need the capital", "Action": "HumanAssistant", "Action Input": "What is the capital of France?", "Question": "capital?"}
Thanks.`
	got, err := ParseInstruction(text)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	want := Instruction{
		Thought:     "Need the capital",
		Action:      "HumanAssistant",
		ActionInput: "What is the capital of France?",
		Question:    "capital?",
	}
	if got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseInstruction_ArrayAndNonStringInput(t *testing.T) {
	got, err := ParseInstruction(`[{"Action": " Writer ", "Action Input": {"topic": "go"}}]`)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got.Action != "Writer" {
		t.Fatalf("expected trimmed action, got %q", got.Action)
	}
	if got.ActionInput != `{"topic": "go"}` {
		t.Fatalf("unexpected action input %q", got.ActionInput)
	}
}

func TestParseInstruction_NoJSON(t *testing.T) {
	_, err := ParseInstruction("no structure here")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON, got %v", err)
	}
	_, err = ParseInstruction("[]")
	if !errors.Is(err, ErrNoJSON) {
		t.Fatalf("expected ErrNoJSON for empty array, got %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	cases := []struct {
		name, in, want string
		wantErr        bool
	}{
		{name: "nested", in: `x {"a": {"b": [1, 2]}} y {"c": 1}`, want: `{"a": {"b": [1, 2]}}`},
		{name: "brace in string", in: `{"a": "}{"}`, want: `{"a": "}{"}`},
		{name: "escaped quote", in: `{"a": "say \"}\""}`, want: `{"a": "say \"}\""}`},
		{name: "unbalanced then valid", in: `{ oops [1]`, want: `[1]`},
		{name: "none", in: `plain`, wantErr: true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := ExtractJSON(tc.in)
			if tc.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Fatalf("got %q, want %q", got, tc.want)
			}
		})
	}
}
