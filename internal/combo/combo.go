// Package combo generates the sweep points of a parameter space.
package combo

import (
	"fmt"
	"sort"
	"strings"

	"github.com/metalagman/cutscan/internal/paramspace"
)

// Mode names a generation policy.
type Mode string

const (
	ModeOAT  Mode = "oat"
	ModeGrid Mode = "grid"
)

// MaxCombinations caps the size of a single generated sweep.
const MaxCombinations = 10000

// Assignment binds one key to one value.
type Assignment struct {
	Key   string           `json:"key"`
	Value paramspace.Value `json:"value"`
}

// Assignments is an ordered key/value list, total over a space.
type Assignments []Assignment

// Get returns the value assigned to key.
func (a Assignments) Get(key string) (paramspace.Value, bool) {
	for _, as := range a {
		if as.Key == key {
			return as.Value, true
		}
	}
	return paramspace.Value{}, false
}

// Keys returns the assigned keys in order.
func (a Assignments) Keys() []string {
	out := make([]string, len(a))
	for i, as := range a {
		out[i] = as.Key
	}
	return out
}

// Map returns the assignments as a map.
func (a Assignments) Map() map[string]paramspace.Value {
	out := make(map[string]paramspace.Value, len(a))
	for _, as := range a {
		out[as.Key] = as.Value
	}
	return out
}

func (a Assignments) String() string {
	parts := make([]string, len(a))
	for i, as := range a {
		parts[i] = as.Key + "=" + as.Value.String()
	}
	return strings.Join(parts, " ")
}

// Combination is one concrete sweep point.
type Combination struct {
	Label       string
	Assignments Assignments
}

// UnknownParameterError reports a grid key absent from the space.
type UnknownParameterError struct {
	Key   string
	Valid []string
}

func (e *UnknownParameterError) Error() string {
	return fmt.Sprintf("unknown parameter %q; valid names: %s", e.Key, strings.Join(e.Valid, ", "))
}

// Defaults returns the all-defaults assignment of a space.
func Defaults(space *paramspace.Space) Assignments {
	specs := space.Specs()
	out := make(Assignments, len(specs))
	for i, p := range specs {
		out[i] = Assignment{Key: p.Key, Value: p.Default}
	}
	return out
}

// OAT varies one key at a time, holding all others at their default. Keys
// are visited in declaration order, values in scan order.
func OAT(space *paramspace.Space) []Combination {
	defaults := Defaults(space)
	var out []Combination
	for i, p := range space.Specs() {
		for _, v := range p.Scan {
			as := append(Assignments(nil), defaults...)
			as[i].Value = v
			out = append(out, Combination{
				Label:       fmt.Sprintf("OAT_%s_%s", p.ShortName(), v),
				Assignments: as,
			})
		}
	}
	return out
}

// Grid emits the Cartesian product of the scan lists of keys, the first key
// varying slowest. keys may be full keys or short names.
func Grid(space *paramspace.Space, keys []string) ([]Combination, error) {
	if len(keys) == 0 {
		return nil, &paramspace.ConfigurationError{Condition: space.Condition(), Reason: "grid requires at least one key"}
	}
	defaults := Defaults(space)
	index := make(map[string]int, len(defaults))
	for i, as := range defaults {
		index[as.Key] = i
	}

	dims := make([]paramspace.ParameterSpec, 0, len(keys))
	seen := make(map[string]bool, len(keys))
	total := 1
	for _, name := range keys {
		key, ok := space.Resolve(name)
		if !ok {
			return nil, &UnknownParameterError{Key: name, Valid: space.ShortNames()}
		}
		if seen[key] {
			return nil, &paramspace.ConfigurationError{Condition: space.Condition(), Key: key, Reason: "key listed twice in grid"}
		}
		seen[key] = true
		p, _ := space.Lookup(key)
		total *= len(p.Scan)
		if total > MaxCombinations {
			return nil, &paramspace.ConfigurationError{
				Condition: space.Condition(),
				Reason:    fmt.Sprintf("grid exceeds %d combinations", MaxCombinations),
			}
		}
		dims = append(dims, p)
	}

	out := make([]Combination, total)
	repeat := 1
	picks := make([][]paramspace.Value, total)
	for i := range picks {
		picks[i] = make([]paramspace.Value, len(dims))
	}
	for d := len(dims) - 1; d >= 0; d-- {
		vals := dims[d].Scan
		for i := 0; i < total; i++ {
			picks[i][d] = vals[(i/repeat)%len(vals)]
		}
		repeat *= len(vals)
	}

	for i, pick := range picks {
		as := append(Assignments(nil), defaults...)
		parts := make([]string, len(dims))
		for d, p := range dims {
			as[index[p.Key]].Value = pick[d]
			parts[d] = p.ShortName() + "=" + pick[d].String()
		}
		out[i] = Combination{
			Label:       fmt.Sprintf("GRID_%d_%s", i, strings.Join(parts, "_")),
			Assignments: as,
		}
	}
	return out, nil
}

// Diff returns the assignments of c that differ from the space defaults.
func Diff(space *paramspace.Space, c Combination) Assignments {
	var out Assignments
	for _, as := range c.Assignments {
		p, ok := space.Lookup(as.Key)
		if !ok || !p.Default.Equal(as.Value) {
			out = append(out, as)
		}
	}
	return out
}

// SortedKeys returns the keys of m sorted; handy for stable reports.
func SortedKeys(m map[string]paramspace.Value) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
