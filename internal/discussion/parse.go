package discussion

import (
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/invopop/jsonschema"
)

// ParseError reports a structured LLM response that cannot be used.
type ParseError struct {
	What   string // "summary" or "video script"
	Reason string
	Raw    string // truncated model output
	Err    error
}

func (e *ParseError) Error() string {
	msg := fmt.Sprintf("parse %s response: %s", e.What, e.Reason)
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return msg
}

func (e *ParseError) Unwrap() error {
	return e.Err
}

var (
	scratchpadRe = regexp.MustCompile(`(?s)<scratchpad>.*?</scratchpad>`)
	fenceRe      = regexp.MustCompile("(?s)```(?:json)?\\s*\n?(.*?)\n?```")
)

func stripScratchpad(text string) string {
	return scratchpadRe.ReplaceAllString(text, "")
}

func stripMarkdownFences(text string) string {
	if m := fenceRe.FindStringSubmatch(text); len(m) > 1 {
		return m[1]
	}
	return text
}

// extractJSON keeps the span from the first { to the last }.
func extractJSON(text string) string {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		return text[start : end+1]
	}
	return text
}

// truncate cuts s to at most maxLen bytes without splitting a UTF-8 sequence.
func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	cut := maxLen
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut] + "..."
}

// decodeModelJSON tolerates prose, scratchpads and markdown fences around the object.
func decodeModelJSON(what, text string, v any) error {
	cleaned := strings.TrimSpace(extractJSON(stripMarkdownFences(stripScratchpad(text))))
	if cleaned == "" {
		return &ParseError{What: what, Reason: "no JSON content found in response"}
	}
	if err := json.Unmarshal([]byte(cleaned), v); err != nil {
		return &ParseError{What: what, Reason: "invalid JSON", Raw: truncate(cleaned, 500), Err: err}
	}
	return nil
}

// looseInt accepts a positive whole JSON number or numeric string. Anything else,
// including zero, negatives, fractions and out-of-range values, decodes as absent.
type looseInt struct {
	Value int
	Valid bool
}

func (n *looseInt) UnmarshalJSON(b []byte) error {
	s := strings.Trim(strings.TrimSpace(string(b)), `"`)
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil || math.IsNaN(f) || f < 1 || f > math.MaxInt32 || f != math.Trunc(f) {
		*n = looseInt{}
		return nil
	}
	*n = looseInt{Value: int(f), Valid: true}
	return nil
}

func (looseInt) JSONSchema() *jsonschema.Schema {
	return &jsonschema.Schema{Type: "integer"}
}

// str returns the trimmed value of an optional string.
func str(p *string) string {
	if p == nil {
		return ""
	}
	return strings.TrimSpace(*p)
}

// orDefault returns the trimmed value, or def when it is absent or blank.
func orDefault(p *string, def string) string {
	if s := str(p); s != "" {
		return s
	}
	return def
}

// responseSchema builds the JSON schema for T, passed to providers that support
// structured output. Fields are only required where the parser treats them as fatal.
func responseSchema[T any]() map[string]any {
	r := jsonschema.Reflector{
		AllowAdditionalProperties:  true,
		DoNotReference:             true,
		RequiredFromJSONSchemaTags: true,
	}
	var v T
	b, err := json.Marshal(r.Reflect(v))
	if err != nil {
		panic(err)
	}
	var m map[string]any
	if err := json.Unmarshal(b, &m); err != nil {
		panic(err)
	}
	delete(m, "$schema")
	delete(m, "$id")
	return m
}
