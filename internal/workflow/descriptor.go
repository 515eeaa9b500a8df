// Package workflow reads pipeline descriptors (workflow.json) and patches the
// configuration strings embedded in their stage commands.
package workflow

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/tailscale/hujson"
)

// Stage is one node of the pipeline job graph.
type Stage struct {
	Name    string `json:"name"`
	Command string `json:"cmd"`
}

// Descriptor is an immutable pipeline descriptor: the raw document plus the
// decoded stage list. Every byte outside replaced commands is preserved.
type Descriptor struct {
	raw    []byte
	stages []Stage
}

// Parse decodes a descriptor. Comments and trailing commas are tolerated.
func Parse(data []byte) (Descriptor, error) {
	v, err := hujson.Parse(data)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor: %w", err)
	}
	std := v.Clone()
	std.Standardize()

	var doc struct {
		Stages []Stage `json:"stages"`
	}
	if err := json.Unmarshal(std.Pack(), &doc); err != nil {
		return Descriptor{}, fmt.Errorf("decode stages: %w", err)
	}
	return Descriptor{raw: bytes.Clone(data), stages: doc.Stages}, nil
}

// Load reads and parses a descriptor file.
func Load(path string) (Descriptor, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Descriptor{}, fmt.Errorf("read descriptor: %w", err)
	}
	d, err := Parse(data)
	if err != nil {
		return Descriptor{}, fmt.Errorf("%s: %w", path, err)
	}
	return d, nil
}

// Stages returns a copy of the stage list.
func (d Descriptor) Stages() []Stage {
	return append([]Stage(nil), d.stages...)
}

// Bytes returns a copy of the serialized document.
func (d Descriptor) Bytes() []byte {
	return bytes.Clone(d.raw)
}

// Equal reports whether two descriptors serialize identically.
func (d Descriptor) Equal(o Descriptor) bool {
	return bytes.Equal(d.raw, o.raw)
}

// WriteFile replaces path with the descriptor contents.
func (d Descriptor) WriteFile(path string) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("create temp descriptor: %w", err)
	}
	if _, err := tmp.Write(d.raw); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("write descriptor: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("close descriptor: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return fmt.Errorf("replace descriptor: %w", err)
	}
	return nil
}

type patchOp struct {
	Op    string          `json:"op"`
	Path  string          `json:"path"`
	Value json.RawMessage `json:"value"`
}

// withCommands returns a copy of d with the cmd of the given stages replaced.
func (d Descriptor) withCommands(commands map[int]string) (Descriptor, error) {
	if len(commands) == 0 {
		return d, nil
	}
	ops := make([]patchOp, 0, len(commands))
	for i := range d.stages {
		cmd, ok := commands[i]
		if !ok {
			continue
		}
		value, err := encodeString(cmd)
		if err != nil {
			return Descriptor{}, err
		}
		ops = append(ops, patchOp{Op: "replace", Path: fmt.Sprintf("/stages/%d/cmd", i), Value: value})
	}
	patch, err := json.Marshal(ops)
	if err != nil {
		return Descriptor{}, fmt.Errorf("marshal patch: %w", err)
	}

	v, err := hujson.Parse(d.raw)
	if err != nil {
		return Descriptor{}, fmt.Errorf("parse descriptor: %w", err)
	}
	if err := v.Patch(patch); err != nil {
		return Descriptor{}, fmt.Errorf("patch descriptor: %w", err)
	}

	stages := d.Stages()
	for i, cmd := range commands {
		stages[i].Command = cmd
	}
	return Descriptor{raw: v.Pack(), stages: stages}, nil
}

// encodeString marshals s without HTML escaping so shell operators stay
// readable in the document.
func encodeString(s string) (json.RawMessage, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(s); err != nil {
		return nil, fmt.Errorf("encode command: %w", err)
	}
	return bytes.TrimRight(buf.Bytes(), "\n"), nil
}
