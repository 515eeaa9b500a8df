// Package kvconfig encodes and decodes the semicolon-delimited key=value
// strings passed to pipeline stages, e.g. "a.b=1;c.d[0]=2".
package kvconfig

import (
	"strconv"
	"strings"
)

// Separator delimits fragments.
const Separator = ";"

// Fragment is one key=value unit. Text is kept verbatim (trimmed) so that
// untouched fragments round-trip unchanged.
type Fragment struct {
	Key  string
	Text string
}

// Pair builds a fragment from a key and a value.
func Pair(key, value string) Fragment {
	return Fragment{Key: key, Text: key + "=" + value}
}

// Indexed builds key[index]=value.
func Indexed(key string, index int, value string) Fragment {
	return Pair(key+"["+strconv.Itoa(index)+"]", value)
}

// Value returns the text after the first '=', trimmed.
func (f Fragment) Value() string {
	_, v, ok := strings.Cut(f.Text, "=")
	if !ok {
		return ""
	}
	return strings.TrimSpace(v)
}

// List is an ordered set of fragments.
type List []Fragment

// Parse splits s on ';', trims each fragment and drops empty ones.
func Parse(s string) List {
	var out List
	for _, part := range strings.Split(s, Separator) {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		key, _, _ := strings.Cut(part, "=")
		out = append(out, Fragment{Key: strings.TrimSpace(key), Text: part})
	}
	return out
}

// String joins the fragments with ';'.
func (l List) String() string {
	parts := make([]string, len(l))
	for i, f := range l {
		parts[i] = f.Text
	}
	return strings.Join(parts, Separator)
}

// Without returns the fragments whose key does not satisfy drop.
func (l List) Without(drop func(key string) bool) List {
	out := make(List, 0, len(l))
	for _, f := range l {
		if !drop(f.Key) {
			out = append(out, f)
		}
	}
	return out
}

// Append returns a new list with frags added at the end.
func (l List) Append(frags ...Fragment) List {
	out := make(List, 0, len(l)+len(frags))
	out = append(out, l...)
	return append(out, frags...)
}

// Get returns the value of the last fragment with key.
func (l List) Get(key string) (string, bool) {
	for i := len(l) - 1; i >= 0; i-- {
		if l[i].Key == key {
			return l[i].Value(), true
		}
	}
	return "", false
}

// SplitIndex splits "name[3]" into ("name", 3, true).
func SplitIndex(key string) (base string, index int, ok bool) {
	open := strings.IndexByte(key, '[')
	if open <= 0 || !strings.HasSuffix(key, "]") {
		return key, 0, false
	}
	n, err := strconv.Atoi(key[open+1 : len(key)-1])
	if err != nil || n < 0 {
		return key, 0, false
	}
	return key[:open], n, true
}
