package interaction

import (
	"testing"

	"github.com/nextlevelbuilder/gatewaycore/internal/parser"
)

func abcOptions() []parser.QuestionOption {
	return []parser.QuestionOption{{Label: "A"}, {Label: "B"}, {Label: "C"}}
}

// TestS7AnswerParsingMultiSelect is the literal S7 scenario.
func TestS7AnswerParsingMultiSelect(t *testing.T) {
	got := ParseUserAnswer("1,3,2", abcOptions(), true)
	if got != "A, C, B" {
		t.Errorf("ParseUserAnswer(1,3,2) = %q, want %q", got, "A, C, B")
	}

	got2 := ParseUserAnswer("hello", abcOptions(), true)
	if got2 != "hello" {
		t.Errorf("ParseUserAnswer(hello) = %q, want %q", got2, "hello")
	}
}

func TestNoOptionsReturnsVerbatim(t *testing.T) {
	got := ParseUserAnswer("  free text  ", nil, false)
	if got != "free text" {
		t.Errorf("ParseUserAnswer = %q, want trimmed verbatim", got)
	}
}

func TestSingleIndexReturnsLabel(t *testing.T) {
	got := ParseUserAnswer("2", abcOptions(), false)
	if got != "B" {
		t.Errorf("ParseUserAnswer(2) = %q, want B", got)
	}
}

func TestCaseInsensitiveLabelMatch(t *testing.T) {
	got := ParseUserAnswer("b", abcOptions(), false)
	if got != "B" {
		t.Errorf("ParseUserAnswer(b) = %q, want B", got)
	}
}

func TestFreeFormFallback(t *testing.T) {
	got := ParseUserAnswer("something else entirely", abcOptions(), false)
	if got != "something else entirely" {
		t.Errorf("ParseUserAnswer = %q, want free-form passthrough", got)
	}
}

// TestAnswerParsingIdempotence is the literal invariant #9: parseUserAnswer
// applied to its own output returns the same result again.
func TestAnswerParsingIdempotence(t *testing.T) {
	cases := []struct {
		input       string
		multiSelect bool
	}{
		{"1,3,2", true},
		{"hello", true},
		{"2", false},
		{"b", false},
		{"something else entirely", false},
	}
	for _, c := range cases {
		first := ParseUserAnswer(c.input, abcOptions(), c.multiSelect)
		second := ParseUserAnswer(first, abcOptions(), c.multiSelect)
		if first != second {
			t.Errorf("not idempotent for input %q: first=%q second=%q", c.input, first, second)
		}
	}
}
