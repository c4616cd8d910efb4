package llm

import (
	"encoding/json"
	"testing"
)

func TestExtract(t *testing.T) {
	tests := []struct {
		name      string
		input     string
		wantOK    bool
		wantField string
		wantValue any
	}{
		{
			name:      "clean JSON",
			input:     `{"a":1}`,
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "surrounding whitespace",
			input:     "   {\"a\":1}\n  ",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "markdown fence with language tag",
			input:     "```json\n{\"a\":1}\n```",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "generic fence",
			input:     "```\n{\"a\":1}\n```",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "byte order mark",
			input:     "\ufeff{\"a\":1}",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "prose around single-quoted object",
			input:     "Sure! {'a': 1} thanks",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "trailing comma in object",
			input:     `{"a":1,}`,
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "trailing comma in array",
			input:     `{"a":[1,2,]}`,
			wantOK:    true,
			wantField: "a",
			wantValue: []any{float64(1), float64(2)},
		},
		{
			name:      "smart quotes",
			input:     "{“a”: 1}",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "line comment",
			input:     "{\n// total phases\n\"a\":1}",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "block comment",
			input:     `{"a":1 /* count */}`,
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "comment marker inside string untouched",
			input:     `{"a":"https://example.com"}`,
			wantOK:    true,
			wantField: "a",
			wantValue: "https://example.com",
		},
		{
			name:      "preamble and postamble prose",
			input:     "Here is your plan:\n{\"a\":1}\nHope this helps!",
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "single-quoted keys and values",
			input:     "{'title': 'it\\'s a plan', 'a': 1}",
			wantOK:    true,
			wantField: "title",
			wantValue: "it's a plan",
		},
		{
			name:      "greedy scan skips malformed candidate",
			input:     `{"x": } {"a":1}`,
			wantOK:    true,
			wantField: "a",
			wantValue: float64(1),
		},
		{
			name:      "multiple objects, first parseable wins",
			input:     `{"first":1} {"second":2}`,
			wantOK:    true,
			wantField: "first",
			wantValue: float64(1),
		},
		{
			name:      "escaped quotes survive",
			input:     `{"a":"he said \"go\""}`,
			wantOK:    true,
			wantField: "a",
			wantValue: `he said "go"`,
		},
		{
			name:   "no json at all",
			input:  "no json here",
			wantOK: false,
		},
		{
			name:   "empty input",
			input:  "",
			wantOK: false,
		},
		{
			name:   "whitespace only",
			input:  " \t\n ",
			wantOK: false,
		},
		{
			name:   "unclosed object",
			input:  `{"a":1`,
			wantOK: false,
		},
		{
			name:   "top-level array rejected",
			input:  `[1,2,3]`,
			wantOK: false,
		},
		{
			name:   "bare scalar rejected",
			input:  `42`,
			wantOK: false,
		},
	}

	parser := NewParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			doc, ok := parser.Extract(tt.input)
			if ok != tt.wantOK {
				t.Fatalf("Extract(%q) ok = %v, want %v", tt.input, ok, tt.wantOK)
			}
			if !tt.wantOK {
				return
			}

			var obj map[string]any
			if err := json.Unmarshal(doc, &obj); err != nil {
				t.Fatalf("extracted document does not parse: %v", err)
			}
			got, present := obj[tt.wantField]
			if !present {
				t.Fatalf("field %q missing from %v", tt.wantField, obj)
			}
			switch want := tt.wantValue.(type) {
			case []any:
				gotSlice, isSlice := got.([]any)
				if !isSlice || len(gotSlice) != len(want) {
					t.Fatalf("field %q = %v, want %v", tt.wantField, got, want)
				}
				for i := range want {
					if gotSlice[i] != want[i] {
						t.Fatalf("field %q[%d] = %v, want %v", tt.wantField, i, gotSlice[i], want[i])
					}
				}
			default:
				if got != tt.wantValue {
					t.Fatalf("field %q = %v (%T), want %v (%T)", tt.wantField, got, got, tt.wantValue, tt.wantValue)
				}
			}
		})
	}
}

func TestExtractStageOrder(t *testing.T) {
	parser := NewParser()

	// A document that parses raw must come back byte-identical: later,
	// more aggressive stages must not get a chance to rewrite it.
	input := `{"text":"don't touch, this ' stays"}`
	doc, ok := parser.Extract(input)
	if !ok {
		t.Fatalf("Extract(%q) failed", input)
	}
	if string(doc) != input {
		t.Errorf("raw-parseable input was rewritten: %q -> %q", input, string(doc))
	}
}

func TestExtractQuoteRepairHeuristic(t *testing.T) {
	parser := NewParser()

	// More double quotes than single quotes: repair must not run, and
	// the apostrophes must survive inside strings.
	input := `{"a":"it's fine","b":"also ok"}`
	doc, ok := parser.Extract(input)
	if !ok {
		t.Fatal("expected successful extraction")
	}
	var obj map[string]any
	if err := json.Unmarshal(doc, &obj); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if obj["a"] != "it's fine" {
		t.Errorf("a = %v, want %q", obj["a"], "it's fine")
	}
}

func TestBraceCandidates(t *testing.T) {
	got := braceCandidates(`x {"a":{"b":1}} y {"c":2}`)
	want := []string{`{"a":{"b":1}}`, `{"c":2}`}
	if len(got) != len(want) {
		t.Fatalf("candidates = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("candidate[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
