package workflow

import (
	"errors"
	"sort"
	"strings"

	"github.com/metalagman/cutscan/internal/combo"
	"github.com/metalagman/cutscan/internal/kvconfig"
	"github.com/metalagman/cutscan/internal/paramspace"
)

// DefaultFlag is the command flag carrying the stage configuration string.
const DefaultFlag = "--configKeyValues"

// ExpansionPolicy reports the indexed-family size of a key, 0 for scalar keys.
type ExpansionPolicy interface {
	Expansion(key string) int
}

// Config describes which stages a Patcher targets and how keys are written.
type Config struct {
	Flag          string
	StageMatchers []string
	MatchField    paramspace.MatchField
	Expansion     ExpansionPolicy
}

// Patcher rewrites configuration strings inside target stage commands.
// It holds no state between calls.
type Patcher struct {
	flag      string
	matchers  []string
	field     paramspace.MatchField
	expansion ExpansionPolicy
}

type noExpansion struct{}

func (noExpansion) Expansion(string) int { return 0 }

// NewPatcher validates cfg and builds a Patcher.
func NewPatcher(cfg Config) (*Patcher, error) {
	if len(cfg.StageMatchers) == 0 {
		return nil, errors.New("patcher: no stage matchers")
	}
	p := &Patcher{
		flag:      cfg.Flag,
		field:     cfg.MatchField,
		expansion: cfg.Expansion,
	}
	if p.flag == "" {
		p.flag = DefaultFlag
	}
	if p.field == "" {
		p.field = paramspace.MatchName
	}
	if p.expansion == nil {
		p.expansion = noExpansion{}
	}
	for _, m := range cfg.StageMatchers {
		if m = strings.TrimSpace(m); m != "" {
			p.matchers = append(p.matchers, strings.ToLower(m))
		}
	}
	if len(p.matchers) == 0 {
		return nil, errors.New("patcher: no stage matchers")
	}
	return p, nil
}

// ForSpace builds a Patcher targeting the stages of a parameter space.
func ForSpace(space *paramspace.Space, flag string) (*Patcher, error) {
	return NewPatcher(Config{
		Flag:          flag,
		StageMatchers: space.StageMatchers(),
		MatchField:    space.MatchField(),
		Expansion:     space,
	})
}

// Targets reports whether the stage is selected by the matchers.
func (p *Patcher) Targets(s Stage) bool {
	subject := s.Name
	if p.field == paramspace.MatchCommand {
		subject = s.Command
	}
	subject = strings.ToLower(subject)
	for _, m := range p.matchers {
		if strings.Contains(subject, m) {
			return true
		}
	}
	return false
}

// Patch applies the assignments of c to every target stage that carries the
// flag. patched is false when no target stage has it; d is then returned
// unchanged.
func (p *Patcher) Patch(d Descriptor, c combo.Combination) (Descriptor, bool, error) {
	drop := p.dropFunc(c.Assignments)
	add := p.fragments(c.Assignments)

	patched := false
	commands := make(map[int]string)
	for i, s := range d.stages {
		if !p.Targets(s) {
			continue
		}
		loc, ok := findFlag(s.Command, p.flag)
		if !ok {
			continue
		}
		patched = true
		cfg := kvconfig.Parse(loc.value).Without(drop).Append(add...)
		if cmd := loc.replace(s.Command, cfg.String()); cmd != s.Command {
			commands[i] = cmd
		}
	}
	if !patched {
		return d, false, nil
	}
	out, err := d.withCommands(commands)
	if err != nil {
		return Descriptor{}, false, err
	}
	return out, true, nil
}

// Inspect returns the configuration string of each target stage carrying the
// flag, keyed by stage index.
func (p *Patcher) Inspect(d Descriptor) map[int]kvconfig.List {
	out := make(map[int]kvconfig.List)
	for i, s := range d.stages {
		if !p.Targets(s) {
			continue
		}
		if loc, ok := findFlag(s.Command, p.flag); ok {
			out[i] = kvconfig.Parse(loc.value)
		}
	}
	return out
}

// Lookup returns the value of key as the first target stage of d carries
// it. Expanded keys are read from index 0.
func (p *Patcher) Lookup(d Descriptor, key string) (string, bool) {
	name := key
	if p.expansion.Expansion(key) > 0 {
		name = kvconfig.Indexed(key, 0, "").Key
	}
	lists := p.Inspect(d)
	stages := make([]int, 0, len(lists))
	for i := range lists {
		stages = append(stages, i)
	}
	sort.Ints(stages)
	for _, i := range stages {
		if v, ok := lists[i].Get(name); ok {
			return v, true
		}
	}
	return "", false
}

func (p *Patcher) dropFunc(as combo.Assignments) func(string) bool {
	plain := make(map[string]bool, len(as))
	indexed := make(map[string]bool)
	for _, a := range as {
		plain[a.Key] = true
		if p.expansion.Expansion(a.Key) > 0 {
			indexed[a.Key] = true
		}
	}
	return func(key string) bool {
		if plain[key] {
			return true
		}
		base, _, ok := kvconfig.SplitIndex(key)
		return ok && indexed[base]
	}
}

func (p *Patcher) fragments(as combo.Assignments) []kvconfig.Fragment {
	var out []kvconfig.Fragment
	for _, a := range as {
		v := a.Value.String()
		n := p.expansion.Expansion(a.Key)
		if n == 0 {
			out = append(out, kvconfig.Pair(a.Key, v))
			continue
		}
		for i := 0; i < n; i++ {
			out = append(out, kvconfig.Indexed(a.Key, i, v))
		}
	}
	return out
}
