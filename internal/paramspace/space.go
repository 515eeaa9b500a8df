// Package paramspace describes the tunable parameters of a sweep: one
// immutable Space per experimental condition, loaded once at startup.
package paramspace

import (
	"fmt"
	"regexp"
	"strings"
)

// DefaultLayers is the indexed-family size used for expanded keys when a
// space does not declare one.
const DefaultLayers = 36

// MatchField selects which stage attribute the stage matchers are tested on.
type MatchField string

const (
	MatchName    MatchField = "name"
	MatchCommand MatchField = "command"
)

var keyPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// ConfigurationError reports an invalid parameter space. It is raised at
// construction time, before any run starts.
type ConfigurationError struct {
	Condition string
	Key       string
	Reason    string
}

func (e *ConfigurationError) Error() string {
	var b strings.Builder
	b.WriteString("configuration error")
	if e.Condition != "" {
		fmt.Fprintf(&b, " in condition %q", e.Condition)
	}
	if e.Key != "" {
		fmt.Fprintf(&b, " for key %q", e.Key)
	}
	b.WriteString(": ")
	b.WriteString(e.Reason)
	return b.String()
}

// ParameterSpec is one tunable dimension.
type ParameterSpec struct {
	Key     string
	Default Value
	Scan    []Value
	// Expand writes the key as Layers indexed fragments key[0]..key[N-1].
	Expand bool
	// Layers must agree with the space layer count when set. Zero inherits it.
	Layers int
}

// ShortName returns the last dotted segment of the key.
func (p ParameterSpec) ShortName() string {
	return ShortName(p.Key)
}

// ShortName returns the last dotted segment of key.
func ShortName(key string) string {
	if i := strings.LastIndexByte(key, '.'); i >= 0 {
		return key[i+1:]
	}
	return key
}

// Options carries the condition-level settings of a Space.
type Options struct {
	OutputDir     string
	StageMatchers []string
	MatchField    MatchField
	Layers        int
}

// Space is an immutable, ordered set of ParameterSpecs for one condition.
type Space struct {
	condition string
	opts      Options
	specs     []ParameterSpec
	byKey     map[string]int
	byShort   map[string]int
}

// NewSpace validates specs and builds a Space. Declaration order is kept.
func NewSpace(condition string, opts Options, specs ...ParameterSpec) (*Space, error) {
	fail := func(key, format string, args ...any) error {
		return &ConfigurationError{Condition: condition, Key: key, Reason: fmt.Sprintf(format, args...)}
	}
	if strings.TrimSpace(condition) == "" {
		return nil, fail("", "condition name is required")
	}
	if len(specs) == 0 {
		return nil, fail("", "no parameters declared")
	}
	if opts.Layers < 0 {
		return nil, fail("", "layer count must be positive, got %d", opts.Layers)
	}
	if opts.Layers == 0 {
		opts.Layers = DefaultLayers
	}
	if opts.OutputDir == "" {
		opts.OutputDir = "Local" + condition
	}
	switch opts.MatchField {
	case "":
		opts.MatchField = MatchName
	case MatchName, MatchCommand:
	default:
		return nil, fail("", "unknown match field %q", opts.MatchField)
	}
	matchers := make([]string, 0, len(opts.StageMatchers))
	for _, m := range opts.StageMatchers {
		if m = strings.TrimSpace(m); m != "" {
			matchers = append(matchers, m)
		}
	}
	if len(matchers) == 0 {
		return nil, fail("", "at least one stage matcher is required")
	}
	opts.StageMatchers = matchers

	s := &Space{
		condition: condition,
		opts:      opts,
		specs:     make([]ParameterSpec, 0, len(specs)),
		byKey:     make(map[string]int, len(specs)),
		byShort:   make(map[string]int, len(specs)),
	}
	for _, p := range specs {
		if !keyPattern.MatchString(p.Key) {
			return nil, fail(p.Key, "key is not a dotted identifier")
		}
		if _, dup := s.byKey[p.Key]; dup {
			return nil, fail(p.Key, "duplicate key")
		}
		if prev, dup := s.byShort[p.ShortName()]; dup {
			return nil, fail(p.Key, "short name %q already used by %q", p.ShortName(), s.specs[prev].Key)
		}
		if p.Default.IsZero() {
			return nil, fail(p.Key, "default value is required")
		}
		if len(p.Scan) == 0 {
			return nil, fail(p.Key, "scan values must not be empty")
		}
		for i, v := range p.Scan {
			if v.IsZero() {
				return nil, fail(p.Key, "scan value %d is empty", i)
			}
			for _, prev := range p.Scan[:i] {
				if prev.Equal(v) {
					return nil, fail(p.Key, "duplicate scan value %s", v)
				}
			}
		}
		switch {
		case !p.Expand && p.Layers != 0:
			return nil, fail(p.Key, "layers set on a key that is not expanded")
		case p.Expand && p.Layers < 0:
			return nil, fail(p.Key, "layer count must be positive, got %d", p.Layers)
		case p.Expand && p.Layers != 0 && p.Layers != opts.Layers:
			return nil, fail(p.Key, "layer count %d does not match the condition layer count %d", p.Layers, opts.Layers)
		}
		if p.Expand {
			p.Layers = opts.Layers
		}
		p.Scan = append([]Value(nil), p.Scan...)
		s.byKey[p.Key] = len(s.specs)
		s.byShort[p.ShortName()] = len(s.specs)
		s.specs = append(s.specs, p)
	}
	return s, nil
}

// Condition returns the experimental condition the space belongs to.
func (s *Space) Condition() string { return s.condition }

// OutputDir returns the runner output directory for the condition.
func (s *Space) OutputDir() string { return s.opts.OutputDir }

// MatchField returns the stage attribute matched by StageMatchers.
func (s *Space) MatchField() MatchField { return s.opts.MatchField }

// Layers returns the layer count used for expanded keys.
func (s *Space) Layers() int { return s.opts.Layers }

// StageMatchers returns a copy of the target stage matchers.
func (s *Space) StageMatchers() []string {
	return append([]string(nil), s.opts.StageMatchers...)
}

// Len returns the number of parameters.
func (s *Space) Len() int { return len(s.specs) }

// Specs returns a copy of the parameter specs in declaration order.
func (s *Space) Specs() []ParameterSpec {
	out := make([]ParameterSpec, len(s.specs))
	for i, p := range s.specs {
		p.Scan = append([]Value(nil), p.Scan...)
		out[i] = p
	}
	return out
}

// Lookup returns the spec for a full key.
func (s *Space) Lookup(key string) (ParameterSpec, bool) {
	i, ok := s.byKey[key]
	if !ok {
		return ParameterSpec{}, false
	}
	p := s.specs[i]
	p.Scan = append([]Value(nil), p.Scan...)
	return p, true
}

// Resolve maps a full key or a short name to the full key.
func (s *Space) Resolve(name string) (string, bool) {
	if _, ok := s.byKey[name]; ok {
		return name, true
	}
	if i, ok := s.byShort[name]; ok {
		return s.specs[i].Key, true
	}
	return "", false
}

// ShortNames returns the short names in declaration order.
func (s *Space) ShortNames() []string {
	out := make([]string, len(s.specs))
	for i, p := range s.specs {
		out[i] = p.ShortName()
	}
	return out
}

// Expansion returns the indexed-family size for key, or 0 when the key is
// written as a single fragment.
func (s *Space) Expansion(key string) int {
	i, ok := s.byKey[key]
	if !ok || !s.specs[i].Expand {
		return 0
	}
	return s.specs[i].Layers
}
