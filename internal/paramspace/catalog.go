package paramspace

import (
	_ "embed"
	"fmt"
	"os"
	"sort"
	"strings"

	"github.com/xeipuuv/gojsonschema"
	"gopkg.in/yaml.v3"
)

//go:embed builtin.yaml
var builtinCatalog []byte

//go:embed catalog.schema.json
var catalogSchema string

// Catalog holds the parameter spaces of every known condition.
type Catalog struct {
	spaces []*Space
	byName map[string]*Space
}

// DefaultCatalog returns the built-in scan tables.
func DefaultCatalog() (*Catalog, error) {
	return LoadCatalog(builtinCatalog)
}

// LoadCatalogFile reads a catalog from a YAML file.
func LoadCatalogFile(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	cat, err := LoadCatalog(data)
	if err != nil {
		return nil, fmt.Errorf("load catalog %s: %w", path, err)
	}
	return cat, nil
}

type conditionDoc struct {
	OutputDir     string   `yaml:"output_dir"`
	Match         string   `yaml:"match"`
	StageMatchers []string `yaml:"stage_matchers"`
	Layers        int      `yaml:"layers"`
}

type paramDoc struct {
	Default yaml.Node   `yaml:"default"`
	Scan    []yaml.Node `yaml:"scan"`
	Expand  bool        `yaml:"expand"`
	Layers  int         `yaml:"layers"`
}

// LoadCatalog parses a YAML catalog. Conditions and parameters keep the
// order in which they are declared.
func LoadCatalog(data []byte) (*Catalog, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, &ConfigurationError{Reason: "decode catalog: " + err.Error()}
	}
	if len(root.Content) == 0 {
		return nil, &ConfigurationError{Reason: "catalog is empty"}
	}
	if err := checkDuplicateKeys(&root, nil); err != nil {
		return nil, err
	}
	if err := validateCatalog(data); err != nil {
		return nil, err
	}
	doc := root.Content[0]

	layers := 0
	var conditions *yaml.Node
	for i := 0; i+1 < len(doc.Content); i += 2 {
		switch doc.Content[i].Value {
		case "layers":
			if err := doc.Content[i+1].Decode(&layers); err != nil {
				return nil, fmt.Errorf("decode layers: %w", err)
			}
		case "conditions":
			conditions = doc.Content[i+1]
		}
	}
	if conditions == nil || len(conditions.Content) == 0 {
		return nil, &ConfigurationError{Reason: "catalog declares no conditions"}
	}

	cat := &Catalog{byName: make(map[string]*Space)}
	for i := 0; i+1 < len(conditions.Content); i += 2 {
		name := conditions.Content[i].Value
		space, err := decodeCondition(name, conditions.Content[i+1], layers)
		if err != nil {
			return nil, err
		}
		cat.byName[name] = space
		cat.spaces = append(cat.spaces, space)
	}
	return cat, nil
}

// checkDuplicateKeys rejects a mapping key declared twice at any depth.
// path holds the keys leading to n.
func checkDuplicateKeys(n *yaml.Node, path []string) error {
	switch n.Kind {
	case yaml.DocumentNode, yaml.SequenceNode:
		for _, c := range n.Content {
			if err := checkDuplicateKeys(c, path); err != nil {
				return err
			}
		}
	case yaml.MappingNode:
		seen := make(map[string]int, len(n.Content)/2)
		for i := 0; i+1 < len(n.Content); i += 2 {
			key := n.Content[i]
			if first, dup := seen[key.Value]; dup {
				return duplicateKeyError(path, key, first)
			}
			seen[key.Value] = key.Line
			if err := checkDuplicateKeys(n.Content[i+1], append(path[:len(path):len(path)], key.Value)); err != nil {
				return err
			}
		}
	}
	return nil
}

func duplicateKeyError(path []string, key *yaml.Node, firstLine int) *ConfigurationError {
	e := &ConfigurationError{
		Reason: fmt.Sprintf("%q declared twice (lines %d and %d)", key.Value, firstLine, key.Line),
	}
	switch {
	case len(path) == 1 && path[0] == "conditions":
		e.Condition = key.Value
		e.Reason = fmt.Sprintf("duplicate condition (lines %d and %d)", firstLine, key.Line)
	case len(path) == 3 && path[0] == "conditions" && path[2] == "params":
		e.Condition = path[1]
		e.Key = key.Value
		e.Reason = fmt.Sprintf("duplicate key (lines %d and %d)", firstLine, key.Line)
	case len(path) >= 2 && path[0] == "conditions":
		e.Condition = path[1]
	}
	return e
}

func decodeCondition(name string, node *yaml.Node, defaultLayers int) (*Space, error) {
	var cond conditionDoc
	if err := node.Decode(&cond); err != nil {
		return nil, fmt.Errorf("decode condition %s: %w", name, err)
	}
	if cond.Layers == 0 {
		cond.Layers = defaultLayers
	}
	var params *yaml.Node
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == "params" {
			params = node.Content[i+1]
		}
	}
	if params == nil {
		return nil, &ConfigurationError{Condition: name, Reason: "no parameters declared"}
	}

	specs := make([]ParameterSpec, 0, len(params.Content)/2)
	for i := 0; i+1 < len(params.Content); i += 2 {
		key := params.Content[i].Value
		var pd paramDoc
		if err := params.Content[i+1].Decode(&pd); err != nil {
			return nil, fmt.Errorf("decode %s.%s: %w", name, key, err)
		}
		spec := ParameterSpec{Key: key, Expand: pd.Expand, Layers: pd.Layers}
		def, err := scalar(pd.Default)
		if err != nil {
			return nil, &ConfigurationError{Condition: name, Key: key, Reason: "default: " + err.Error()}
		}
		spec.Default = def
		for j, n := range pd.Scan {
			v, err := scalar(n)
			if err != nil {
				return nil, &ConfigurationError{Condition: name, Key: key, Reason: fmt.Sprintf("scan[%d]: %v", j, err)}
			}
			spec.Scan = append(spec.Scan, v)
		}
		specs = append(specs, spec)
	}

	return NewSpace(name, Options{
		OutputDir:     cond.OutputDir,
		StageMatchers: cond.StageMatchers,
		MatchField:    MatchField(cond.Match),
		Layers:        cond.Layers,
	}, specs...)
}

func scalar(n yaml.Node) (Value, error) {
	if n.Kind != yaml.ScalarNode {
		return Value{}, fmt.Errorf("expected a scalar")
	}
	return ParseValue(n.Value)
}

func validateCatalog(data []byte) error {
	var raw any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return &ConfigurationError{Reason: "decode catalog: " + err.Error()}
	}
	if raw == nil {
		return &ConfigurationError{Reason: "catalog is empty"}
	}
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(catalogSchema),
		gojsonschema.NewGoLoader(raw),
	)
	if err != nil {
		return fmt.Errorf("validate catalog schema: %w", err)
	}
	if result.Valid() {
		return nil
	}
	errs := make([]string, 0, len(result.Errors()))
	for _, schemaErr := range result.Errors() {
		errs = append(errs, schemaErr.String())
	}
	sort.Strings(errs)
	return &ConfigurationError{Reason: "catalog schema validation failed: " + strings.Join(errs, "; ")}
}

// Space returns the parameter space of a condition.
func (c *Catalog) Space(condition string) (*Space, error) {
	s, ok := c.byName[condition]
	if !ok {
		return nil, &ConfigurationError{
			Condition: condition,
			Reason:    "unknown condition; available: " + strings.Join(c.Conditions(), ", "),
		}
	}
	return s, nil
}

// Conditions returns the condition names in declaration order.
func (c *Catalog) Conditions() []string {
	out := make([]string, len(c.spaces))
	for i, s := range c.spaces {
		out[i] = s.Condition()
	}
	return out
}

// Spaces returns every space in declaration order.
func (c *Catalog) Spaces() []*Space {
	return append([]*Space(nil), c.spaces...)
}
