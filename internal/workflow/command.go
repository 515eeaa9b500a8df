package workflow

import "strings"

// token is one shell-style word of a command line. start and end are byte
// offsets of the raw word, text is the word with quoting removed.
type token struct {
	start, end int
	text       string
}

// tokenize splits cmd into words the way a POSIX shell would for the subset
// that appears in pipeline commands: whitespace separation, single and
// double quotes, backslash escapes. Unterminated quotes run to the end.
func tokenize(cmd string) []token {
	var (
		out   []token
		buf   strings.Builder
		start = -1
		quote byte
	)
	flush := func(end int) {
		if start >= 0 {
			out = append(out, token{start: start, end: end, text: buf.String()})
		}
		buf.Reset()
		start = -1
	}

	for i := 0; i < len(cmd); i++ {
		c := cmd[i]
		switch {
		case quote == '\'':
			if c == '\'' {
				quote = 0
				continue
			}
			buf.WriteByte(c)
		case quote == '"':
			switch {
			case c == '"':
				quote = 0
			case c == '\\' && i+1 < len(cmd) && strings.IndexByte(`"\$`+"`", cmd[i+1]) >= 0:
				i++
				buf.WriteByte(cmd[i])
			default:
				buf.WriteByte(c)
			}
		case c == ' ' || c == '\t' || c == '\n' || c == '\r':
			flush(i)
		default:
			if start < 0 {
				start = i
			}
			switch c {
			case '\'', '"':
				quote = c
			case '\\':
				if i+1 < len(cmd) {
					i++
					buf.WriteByte(cmd[i])
				}
			default:
				buf.WriteByte(c)
			}
		}
	}
	flush(len(cmd))
	return out
}

// flagValue locates the value of the first occurrence of flag in cmd, either
// as "--flag value" or "--flag=value". start and end delimit the raw value
// including its quotes.
type flagValue struct {
	start, end int
	value      string
}

func findFlag(cmd, flag string) (flagValue, bool) {
	toks := tokenize(cmd)
	for i, t := range toks {
		if t.text == flag {
			if i+1 >= len(toks) {
				return flagValue{}, false
			}
			next := toks[i+1]
			return flagValue{start: next.start, end: next.end, value: next.text}, true
		}
		raw := cmd[t.start:t.end]
		if strings.HasPrefix(raw, flag+"=") {
			return flagValue{
				start: t.start + len(flag) + 1,
				end:   t.end,
				value: strings.TrimPrefix(t.text, flag+"="),
			}, true
		}
	}
	return flagValue{}, false
}

// replace substitutes the located value with a double-quoted s.
func (f flagValue) replace(cmd, s string) string {
	return cmd[:f.start] + doubleQuote(s) + cmd[f.end:]
}

// doubleQuote quotes s so that tokenize reads it back unchanged.
func doubleQuote(s string) string {
	var b strings.Builder
	b.Grow(len(s) + 2)
	b.WriteByte('"')
	for i := 0; i < len(s); i++ {
		if strings.IndexByte(`"\$`+"`", s[i]) >= 0 {
			b.WriteByte('\\')
		}
		b.WriteByte(s[i])
	}
	b.WriteByte('"')
	return b.String()
}
