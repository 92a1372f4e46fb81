package utils

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
)

// Repair is one pure text transform applied to generator output before it is
// handed to the JSON decoder.
type Repair struct {
	Name  string
	Apply func(string) string
}

// ParseStage identifies which repair pipeline produced a parseable payload
type ParseStage string

// Parse stages, in the order they are attempted
const (
	StageStrict  ParseStage = "strict"
	StageLenient ParseStage = "lenient"
)

// StrictRepairs fixes the malformations models produce most often while
// keeping the payload otherwise untouched.
var StrictRepairs = []Repair{
	{Name: "extract_payload", Apply: ExtractPayload},
	{Name: "strip_comments", Apply: StripComments},
	{Name: "strip_trailing_commas", Apply: StripTrailingCommas},
	{Name: "normalize_literals", Apply: NormalizeLiterals},
}

// LenientRepairs additionally rewrites literal-structure syntax (single
// quotes, bare keys, raw control characters) into JSON.
var LenientRepairs = []Repair{
	{Name: "extract_payload", Apply: ExtractPayload},
	{Name: "single_quotes", Apply: FixSingleQuotes},
	{Name: "quote_bare_keys", Apply: QuoteBareKeys},
	{Name: "strip_comments", Apply: StripComments},
	{Name: "strip_trailing_commas", Apply: StripTrailingCommas},
	{Name: "normalize_literals", Apply: NormalizeLiterals},
	{Name: "escape_string_controls", Apply: EscapeStringControls},
	{Name: "remove_control_characters", Apply: RemoveControlCharacters},
}

var (
	fencedBlockRe   = regexp.MustCompile("(?s)```[A-Za-z]*\\s*(.+?)\\s*```")
	trailingCommaRe = regexp.MustCompile(`,\s*([}\]])`)
	bareKeyRe       = regexp.MustCompile(`([{,]\s*)([A-Za-z_][A-Za-z0-9_]*)(\s*:)`)
	trueRe          = regexp.MustCompile(`\b(?:True|TRUE)\b`)
	falseRe         = regexp.MustCompile(`\b(?:False|FALSE)\b`)
	nullRe          = regexp.MustCompile(`\b(?:None|NULL|Null|nil)\b`)
	controlRe       = regexp.MustCompile(`[\x00-\x08\x0B\x0C\x0E-\x1F]`)
)

// ParseAIJSON extracts and parses JSON from AI output that may contain:
// - Pure JSON
// - JSON wrapped in markdown code blocks (```json ... ```)
// - JSON with surrounding commentary
// - comments, trailing commas, Python-style literals or single quotes
func ParseAIJSON(input string, target interface{}) (ParseStage, error) {
	if strings.TrimSpace(input) == "" {
		return "", fmt.Errorf("empty input")
	}

	strict := ApplyRepairs(input, StrictRepairs)
	strictErr := json.Unmarshal([]byte(strict), target)
	if strictErr == nil {
		return StageStrict, nil
	}

	lenient := ApplyRepairs(input, LenientRepairs)
	if err := json.Unmarshal([]byte(lenient), target); err == nil {
		return StageLenient, nil
	}

	return "", fmt.Errorf("failed to parse JSON from input %q: %w", truncateString(input, 100), strictErr)
}

// ApplyRepairs runs the transforms in order
func ApplyRepairs(input string, repairs []Repair) string {
	out := input
	for _, r := range repairs {
		out = r.Apply(out)
	}
	return out
}

// ExtractPayload returns the fenced code block payload when present,
// otherwise the substring between the first '{' and the last '}'.
func ExtractPayload(input string) string {
	s := strings.TrimSpace(strings.TrimPrefix(input, "\ufeff"))

	if matches := fencedBlockRe.FindStringSubmatch(s); len(matches) > 1 {
		if content := strings.TrimSpace(matches[1]); strings.Contains(content, "{") {
			s = content
		}
	}

	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start >= 0 && end > start {
		return s[start : end+1]
	}
	return s
}

// StripComments removes // line comments and /* */ block comments that
// appear outside string literals.
func StripComments(input string) string {
	var out strings.Builder
	out.Grow(len(input))

	inString := false
	escape := false
	for i := 0; i < len(input); i++ {
		ch := input[i]

		if inString {
			out.WriteByte(ch)
			if escape {
				escape = false
			} else if ch == '\\' {
				escape = true
			} else if ch == '"' {
				inString = false
			}
			continue
		}

		if ch == '"' {
			inString = true
			out.WriteByte(ch)
			continue
		}

		if ch == '/' && i+1 < len(input) {
			switch input[i+1] {
			case '/':
				for i < len(input) && input[i] != '\n' {
					i++
				}
				if i < len(input) {
					out.WriteByte('\n')
				}
				continue
			case '*':
				end := strings.Index(input[i+2:], "*/")
				if end < 0 {
					return out.String()
				}
				i += end + 3
				continue
			}
		}

		out.WriteByte(ch)
	}

	return out.String()
}

// StripTrailingCommas removes commas directly before a closing brace or bracket
func StripTrailingCommas(input string) string {
	return mapOutsideStrings(input, func(segment string) string {
		return trailingCommaRe.ReplaceAllString(segment, "$1")
	})
}

// NormalizeLiterals rewrites True/False/None style tokens into JSON literals
func NormalizeLiterals(input string) string {
	return mapOutsideStrings(input, func(segment string) string {
		segment = trueRe.ReplaceAllString(segment, "true")
		segment = falseRe.ReplaceAllString(segment, "false")
		return nullRe.ReplaceAllString(segment, "null")
	})
}

// QuoteBareKeys wraps unquoted object keys in double quotes: {name: 1} -> {"name": 1}
func QuoteBareKeys(input string) string {
	return mapOutsideStrings(input, func(segment string) string {
		return bareKeyRe.ReplaceAllString(segment, `$1"$2"$3`)
	})
}

// FixSingleQuotes converts single-quoted string literals into double-quoted
// ones. Apostrophes inside double-quoted strings or inside words are kept.
func FixSingleQuotes(input string) string {
	var out strings.Builder
	out.Grow(len(input))

	inDouble := false
	escape := false
	var prev byte
	for i := 0; i < len(input); i++ {
		ch := input[i]

		if inDouble {
			out.WriteByte(ch)
			if escape {
				escape = false
			} else if ch == '\\' {
				escape = true
			} else if ch == '"' {
				inDouble = false
				prev = ch
			}
			continue
		}

		switch {
		case ch == '"':
			inDouble = true
			out.WriteByte(ch)
		case ch == '\'' && opensValue(prev):
			j := i + 1
			var literal strings.Builder
			for j < len(input) && input[j] != '\'' {
				if input[j] == '\\' && j+1 < len(input) {
					if input[j+1] == '\'' {
						literal.WriteByte('\'')
					} else {
						literal.WriteByte(input[j])
						literal.WriteByte(input[j+1])
					}
					j += 2
					continue
				}
				if input[j] == '"' {
					literal.WriteString(`\"`)
				} else {
					literal.WriteByte(input[j])
				}
				j++
			}
			if j >= len(input) {
				out.WriteString(input[i:])
				return out.String()
			}
			out.WriteByte('"')
			out.WriteString(literal.String())
			out.WriteByte('"')
			i = j
			prev = '"'
			continue
		default:
			out.WriteByte(ch)
		}

		if ch != ' ' && ch != '\t' && ch != '\n' && ch != '\r' {
			prev = ch
		}
	}

	return out.String()
}

// opensValue reports whether a quote following prev starts a string literal
func opensValue(prev byte) bool {
	switch prev {
	case 0, '{', '[', ',', ':':
		return true
	}
	return false
}

// EscapeStringControls escapes raw newlines and tabs inside string literals
func EscapeStringControls(input string) string {
	var out strings.Builder
	out.Grow(len(input))

	inString := false
	escape := false
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if !inString {
			if ch == '"' {
				inString = true
			}
			out.WriteByte(ch)
			continue
		}

		switch {
		case escape:
			escape = false
			out.WriteByte(ch)
		case ch == '\\':
			escape = true
			out.WriteByte(ch)
		case ch == '"':
			inString = false
			out.WriteByte(ch)
		case ch == '\n':
			out.WriteString(`\n`)
		case ch == '\t':
			out.WriteString(`\t`)
		case ch == '\r':
		default:
			out.WriteByte(ch)
		}
	}

	return out.String()
}

// RemoveControlCharacters removes non-printable control characters
func RemoveControlCharacters(input string) string {
	return controlRe.ReplaceAllString(input, "")
}

// mapOutsideStrings applies fn to every run of text that lies outside a
// double-quoted string literal, copying string literals verbatim.
func mapOutsideStrings(input string, fn func(string) string) string {
	var out strings.Builder
	out.Grow(len(input))

	segmentStart := 0
	inString := false
	escape := false
	for i := 0; i < len(input); i++ {
		ch := input[i]
		if inString {
			if escape {
				escape = false
			} else if ch == '\\' {
				escape = true
			} else if ch == '"' {
				inString = false
				out.WriteString(input[segmentStart : i+1])
				segmentStart = i + 1
			}
			continue
		}
		if ch == '"' {
			out.WriteString(fn(input[segmentStart:i]))
			segmentStart = i
			inString = true
		}
	}

	if inString {
		out.WriteString(input[segmentStart:])
	} else {
		out.WriteString(fn(input[segmentStart:]))
	}
	return out.String()
}

// truncateString truncates a string to maxLen bytes
func truncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}

// Truncate shortens s for log output
func Truncate(s string, maxLen int) string {
	return truncateString(s, maxLen)
}
