package llm

import (
	"encoding/json"
	"regexp"
	"strings"
)

// Parser recovers a JSON object from free-form model output. Models are
// asked for bare JSON but routinely wrap it in prose, code fences,
// comments or single-quoted pseudo-JSON. Extraction runs a strictly
// ordered cascade from least to most aggressive recovery, so the cheapest
// stage that yields a valid document wins and aggressive repairs never
// touch text that already parses.
type Parser struct{}

func NewParser() *Parser {
	return &Parser{}
}

var (
	openFence     = regexp.MustCompile("^```[a-zA-Z]*[ \t]*\r?\n?")
	closeFence    = regexp.MustCompile("\r?\n?```$")
	smartQuotes   = strings.NewReplacer("“", `"`, "”", `"`, "„", `"`, "‘", "'", "’", "'")
	trailingComma = regexp.MustCompile(`,\s*([}\]])`)
	singleQuoted  = regexp.MustCompile(`'((?:[^'\\]|\\.)*?)'`)
)

// Extract returns the JSON encoding of the first object recoverable from
// text, or ok=false when every stage fails. Callers must treat ok=false
// as a parse failure, never panic past it.
func (p *Parser) Extract(text string) (json.RawMessage, bool) {
	// Stage 1: the text may already be a clean document.
	if doc, ok := tryParse(text); ok {
		return doc, true
	}

	// Stage 2: normalization handles fences, prose, smart quotes,
	// comments and trailing commas.
	normalized := normalize(text)
	if doc, ok := tryParse(normalized); ok {
		return doc, true
	}

	// Stage 3: quote repair, only when the text looks single-quoted.
	if strings.Count(normalized, "'") > strings.Count(normalized, `"`) {
		if doc, ok := tryParse(repairQuotes(normalized)); ok {
			return doc, true
		}
	}

	// Stage 4: scan for balanced top-level candidates and take the first
	// one that parses.
	for _, candidate := range braceCandidates(normalized) {
		if doc, ok := tryParse(trailingComma.ReplaceAllString(candidate, "$1")); ok {
			return doc, true
		}
	}

	return nil, false
}

// tryParse accepts only a top-level JSON object; scalars and arrays found
// in prose are not plans.
func tryParse(s string) (json.RawMessage, bool) {
	var obj map[string]any
	if err := json.Unmarshal([]byte(s), &obj); err != nil {
		return nil, false
	}
	return json.RawMessage(s), true
}

func normalize(text string) string {
	s := strings.TrimSpace(text)
	s = openFence.ReplaceAllString(s, "")
	s = closeFence.ReplaceAllString(s, "")
	s = strings.TrimPrefix(s, "\ufeff")
	s = strings.TrimSpace(s)

	// Discard surrounding prose: keep the span from the first opening
	// brace to the last closing brace.
	if start := strings.IndexByte(s, '{'); start >= 0 {
		if end := strings.LastIndexByte(s, '}'); end > start {
			s = s[start : end+1]
		}
	}

	s = smartQuotes.Replace(s)
	s = stripComments(s)
	s = trailingComma.ReplaceAllString(s, "$1")
	return s
}

// repairQuotes rewrites single-quoted keys and values to double-quoted
// form, unescaping \' and escaping any embedded double quotes.
func repairQuotes(s string) string {
	return singleQuoted.ReplaceAllStringFunc(s, func(m string) string {
		inner := m[1 : len(m)-1]
		inner = strings.ReplaceAll(inner, `\'`, `'`)
		inner = strings.ReplaceAll(inner, `"`, `\"`)
		return `"` + inner + `"`
	})
}

// stripComments removes // line comments and /* */ block comments while
// leaving double-quoted string contents untouched.
func stripComments(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inString := false
	escaped := false
	for i := 0; i < len(s); i++ {
		c := s[i]
		if inString {
			b.WriteByte(c)
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
		switch {
		case c == '"':
			inString = true
			b.WriteByte(c)
		case c == '/' && i+1 < len(s) && s[i+1] == '/':
			for i < len(s) && s[i] != '\n' {
				i++
			}
			if i < len(s) {
				b.WriteByte('\n')
			}
		case c == '/' && i+1 < len(s) && s[i+1] == '*':
			i += 2
			for i+1 < len(s) && !(s[i] == '*' && s[i+1] == '/') {
				i++
			}
			i++ // loop increment skips the trailing '/'
		default:
			b.WriteByte(c)
		}
	}
	return b.String()
}

// braceCandidates walks the text with a stack of opening-brace positions
// and records every substring where the stack unwinds back to depth zero,
// i.e. every balanced top-level object.
func braceCandidates(s string) []string {
	var stack []int
	var out []string
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '{':
			stack = append(stack, i)
		case '}':
			if len(stack) == 0 {
				continue
			}
			start := stack[len(stack)-1]
			stack = stack[:len(stack)-1]
			if len(stack) == 0 {
				out = append(out, s[start:i+1])
			}
		}
	}
	return out
}
