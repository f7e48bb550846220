package analysis

import (
	"encoding/json"
	"strings"
	"unicode/utf8"
)

// Repair makes a best-effort attempt to turn model output into valid JSON.
// Valid input is returned trimmed and otherwise unchanged. Otherwise it
// strips markdown fences and surrounding prose, normalizes quotes and Python
// literals, removes trailing commas, closes an unterminated string and
// balances brackets. The result is not guaranteed to be valid.
func Repair(raw string) string {
	s := strings.TrimSpace(raw)
	if json.Valid([]byte(s)) {
		return s
	}
	s = stripFences(s)
	if json.Valid([]byte(s)) {
		return s
	}
	s = normalizeQuotes(s)
	if start := strings.IndexAny(s, "{["); start >= 0 {
		s = s[start:]
	}
	s = convertSingleQuotes(s)
	s = cutAfterValue(s)
	s = replaceLiterals(s)
	s = balance(s)
	s = removeTrailingCommas(s)
	return strings.TrimSpace(s)
}

// stripFences returns the body of the first ``` fenced block, or s when
// there is none. An unclosed fence runs to the end of the text.
func stripFences(s string) string {
	open := strings.Index(s, "```")
	if open < 0 {
		return s
	}
	body := s[open+3:]
	// Drop the info string (```json).
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		if info := strings.TrimSpace(body[:nl]); !strings.ContainsAny(info, "{[") {
			body = body[nl+1:]
		}
	}
	if end := strings.Index(body, "```"); end >= 0 {
		body = body[:end]
	}
	return strings.TrimSpace(body)
}

// normalizeQuotes maps typographic quotes to ASCII. A curly double quote
// becomes a string delimiter outside a string, and closes a string it opened
// when a delimiter follows. Anywhere else inside a string it is escaped so
// the value stays intact. Curly single quotes become apostrophes.
func normalizeQuotes(s string) string {
	var (
		b        strings.Builder
		inString bool
		escaped  bool
		curly    bool
		prev     byte = '{'
	)
	b.Grow(len(s))
	for i, r := range s {
		switch {
		case isCurlySingle(r):
			b.WriteByte('\'')
			escaped = false
			if !inString {
				prev = '\''
			}
			continue
		case isCurlyDouble(r):
			switch {
			case !inString && strings.IndexByte("{[,:", prev) >= 0:
				inString, curly = true, true
				b.WriteByte('"')
			case !inString:
				// Part of some other quoting; later passes sort it out.
				b.WriteByte('"')
				prev = '"'
			case curly && delimiterFollows(s, i+utf8.RuneLen(r)):
				inString = false
				prev = '"'
				b.WriteByte('"')
			case escaped:
				b.WriteByte('"')
			default:
				b.WriteString(`\"`)
			}
			escaped = false
			continue
		}
		switch {
		case inString && escaped:
			escaped = false
		case inString && r == '\\':
			escaped = true
		case inString && r == '"':
			inString = false
			prev = '"'
		case !inString && r == '"':
			inString, curly = true, false
		case !inString && r < utf8.RuneSelf && !isSpace(byte(r)):
			prev = byte(r)
		case !inString && r >= utf8.RuneSelf:
			prev = 0
		}
		b.WriteRune(r)
	}
	return b.String()
}

func isCurlyDouble(r rune) bool {
	return r == '“' || r == '”' || r == '„' || r == '‟'
}

func isCurlySingle(r rune) bool {
	return r == '‘' || r == '’' || r == '‚' || r == '‛'
}

// delimiterFollows reports whether the next non-space byte at or after i
// ends a JSON value, or the text ends.
func delimiterFollows(s string, i int) bool {
	for i < len(s) && isSpace(s[i]) {
		i++
	}
	return i == len(s) || strings.IndexByte(",:}]", s[i]) >= 0
}

// scanner walks JSON-ish text tracking double-quoted string state.
type scanner struct {
	inString bool
	escaped  bool
}

// step consumes c and reports whether it is structural (outside a string
// and not a quote).
func (sc *scanner) step(c byte) bool {
	if sc.inString {
		switch {
		case sc.escaped:
			sc.escaped = false
		case c == '\\':
			sc.escaped = true
		case c == '"':
			sc.inString = false
		}
		return false
	}
	if c == '"' {
		sc.inString = true
		return false
	}
	return true
}

// convertSingleQuotes rewrites 'single quoted' strings that appear where a
// JSON string may start into double-quoted ones.
func convertSingleQuotes(s string) string {
	var (
		b    strings.Builder
		sc   scanner
		prev byte = '{'
	)
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !sc.inString && c == '\'' && strings.IndexByte("{[,:", prev) >= 0 {
			if end := closingSingleQuote(s, i+1); end > 0 {
				b.WriteByte('"')
				inner := s[i+1 : end]
				inner = strings.ReplaceAll(inner, `\'`, "'")
				inner = strings.ReplaceAll(inner, `"`, `\"`)
				b.WriteString(inner)
				b.WriteByte('"')
				i = end
				prev = '"'
				continue
			}
		}
		structural := sc.step(c)
		b.WriteByte(c)
		if structural && !isSpace(c) {
			prev = c
		} else if !structural {
			prev = '"'
		}
	}
	return b.String()
}

// closingSingleQuote finds the quote that ends a single-quoted string: the
// next unescaped ' followed by a delimiter. It returns -1 when none exists.
func closingSingleQuote(s string, from int) int {
	for j := from; j < len(s); j++ {
		switch s[j] {
		case '\\':
			j++
		case '\'':
			k := j + 1
			for k < len(s) && isSpace(s[k]) {
				k++
			}
			if k == len(s) || strings.IndexByte(",:}]", s[k]) >= 0 {
				return j
			}
		}
	}
	return -1
}

// cutAfterValue drops anything after the first complete top-level value.
func cutAfterValue(s string) string {
	var (
		sc    scanner
		depth int
	)
	for i := 0; i < len(s); i++ {
		if !sc.step(s[i]) {
			continue
		}
		switch s[i] {
		case '{', '[':
			depth++
		case '}', ']':
			depth--
			if depth == 0 {
				return s[:i+1]
			}
		}
	}
	return s
}

var literalFixes = map[string]string{
	"True":  "true",
	"False": "false",
	"None":  "null",
	"TRUE":  "true",
	"FALSE": "false",
	"NULL":  "null",
}

func replaceLiterals(s string) string {
	var (
		b  strings.Builder
		sc scanner
	)
	b.Grow(len(s))
	for i := 0; i < len(s); {
		c := s[i]
		if !sc.inString && isLetter(c) {
			j := i
			for j < len(s) && isLetter(s[j]) {
				j++
			}
			word := s[i:j]
			if fixed, ok := literalFixes[word]; ok {
				word = fixed
			}
			b.WriteString(word)
			i = j
			continue
		}
		sc.step(c)
		b.WriteByte(c)
		i++
	}
	return b.String()
}

// balance drops unmatched closers, closes an unterminated string and
// appends the closers still missing.
func balance(s string) string {
	var (
		b     strings.Builder
		sc    scanner
		stack []byte
	)
	b.Grow(len(s) + 8)
	for i := 0; i < len(s); i++ {
		c := s[i]
		if !sc.step(c) {
			b.WriteByte(c)
			continue
		}
		switch c {
		case '{':
			stack = append(stack, '}')
		case '[':
			stack = append(stack, ']')
		case '}', ']':
			if len(stack) == 0 || stack[len(stack)-1] != c {
				continue
			}
			stack = stack[:len(stack)-1]
		}
		b.WriteByte(c)
	}
	if sc.inString {
		if sc.escaped {
			b.WriteByte('\\')
		}
		b.WriteByte('"')
	}
	out := strings.TrimRight(b.String(), " \t\r\n")
	if strings.HasSuffix(out, ":") {
		out += " null"
	}
	var tail strings.Builder
	for i := len(stack) - 1; i >= 0; i-- {
		tail.WriteByte(stack[i])
	}
	return out + tail.String()
}

func removeTrailingCommas(s string) string {
	var (
		b  strings.Builder
		sc scanner
	)
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if sc.step(c) && c == ',' {
			j := i + 1
			for j < len(s) && isSpace(s[j]) {
				j++
			}
			if j == len(s) || s[j] == '}' || s[j] == ']' {
				continue
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func isLetter(c byte) bool {
	return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z')
}
