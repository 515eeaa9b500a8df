package paramspace

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Value is a scalar parameter value. Numeric literals remember whether they
// were written as integers so that labels render the way they were declared.
type Value struct {
	text    string
	num     float64
	numeric bool
}

// ParseValue parses a scalar literal.
func ParseValue(literal string) (Value, error) {
	s := strings.TrimSpace(literal)
	if s == "" {
		return Value{}, fmt.Errorf("empty value")
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil {
		return Value{text: strconv.FormatInt(n, 10), num: float64(n), numeric: true}, nil
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return Value{}, fmt.Errorf("non-finite value %q", s)
		}
		return Float(f), nil
	}
	if strings.ContainsAny(s, ";=\"' \t\r\n") {
		return Value{}, fmt.Errorf("value %q contains a reserved character", s)
	}
	return Value{text: s}, nil
}

// MustParseValue is like ParseValue but panics on error. Intended for tests
// and static tables.
func MustParseValue(literal string) Value {
	v, err := ParseValue(literal)
	if err != nil {
		panic(err)
	}
	return v
}

// Int returns an integer value.
func Int(n int64) Value {
	return Value{text: strconv.FormatInt(n, 10), num: float64(n), numeric: true}
}

// Float returns a floating point value. Integral floats keep a trailing ".0".
func Float(f float64) Value {
	text := strconv.FormatFloat(f, 'f', -1, 64)
	if !strings.ContainsAny(text, ".") {
		text += ".0"
	}
	return Value{text: text, num: f, numeric: true}
}

// String renders the value as it is written into configuration strings.
func (v Value) String() string {
	return v.text
}

// IsZero reports whether v is the zero Value.
func (v Value) IsZero() bool {
	return v.text == ""
}

// Numeric reports whether the value is a number.
func (v Value) Numeric() bool {
	return v.numeric
}

// Float64 returns the numeric value; ok is false for non-numeric values.
func (v Value) Float64() (f float64, ok bool) {
	return v.num, v.numeric
}

// Equal compares numerically when both sides are numbers, textually otherwise.
func (v Value) Equal(o Value) bool {
	if v.numeric && o.numeric {
		return v.num == o.num
	}
	return v.text == o.text
}

// MarshalJSON writes numbers as JSON numbers and everything else as strings.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.numeric {
		return []byte(v.text), nil
	}
	return json.Marshal(v.text)
}

// UnmarshalJSON accepts a JSON number or string.
func (v *Value) UnmarshalJSON(data []byte) error {
	var raw any
	dec := json.NewDecoder(strings.NewReader(string(data)))
	dec.UseNumber()
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	var literal string
	switch val := raw.(type) {
	case json.Number:
		literal = val.String()
	case string:
		literal = val
	case bool:
		literal = strconv.FormatBool(val)
	default:
		return fmt.Errorf("unsupported value %s", string(data))
	}
	parsed, err := ParseValue(literal)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}
