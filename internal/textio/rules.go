// Package textio loads match rule files for the CLI: plain key lists, YAML
// rule files, and lz4-compressed variants of either.
package textio

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pierrec/lz4/v4"
	"gopkg.in/yaml.v3"
)

var (
	// ErrNoRules is returned when a rule file yields no usable patterns.
	ErrNoRules = errors.New("textio: rule file contains no patterns")

	// ErrEmptyPattern is returned when a YAML rule has a blank pattern.
	ErrEmptyPattern = errors.New("textio: rule with empty pattern")
)

const (
	// lz4Ext marks frame-compressed inputs; it is stripped before format
	// detection so "rules.yaml.lz4" parses as YAML.
	lz4Ext = ".lz4"

	yamlExt    = ".yaml"
	yamlExtAlt = ".yml"

	// commentPrefix starts a comment line in plain key lists.
	commentPrefix = "#"
)

// Rule maps a match pattern to a label. In plain key lists the label is the
// pattern itself.
type Rule struct {
	Pattern string `yaml:"pattern"`
	Label   string `yaml:"label"`
}

// ruleFile is the YAML document layout.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// LoadRules reads the rule file at path. The format is chosen by extension:
// .yaml/.yml parse as a rule document, anything else as one pattern per line
// with blank lines and # comments skipped. A trailing .lz4 extension is
// decompressed first.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules %s: %w", path, err)
	}

	name := path
	if strings.HasSuffix(name, lz4Ext) {
		data, err = decompress(data)
		if err != nil {
			return nil, fmt.Errorf("decompress rules %s: %w", path, err)
		}

		name = strings.TrimSuffix(name, lz4Ext)
	}

	var rules []Rule

	switch filepath.Ext(name) {
	case yamlExt, yamlExtAlt:
		rules, err = parseYAML(data)
	default:
		rules, err = parseLines(data)
	}

	if err != nil {
		return nil, fmt.Errorf("parse rules %s: %w", path, err)
	}

	if len(rules) == 0 {
		return nil, ErrNoRules
	}

	return rules, nil
}

// parseYAML decodes a rule document, defaulting each label to its pattern.
func parseYAML(data []byte) ([]Rule, error) {
	var doc ruleFile

	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("unmarshal yaml: %w", err)
	}

	for i := range doc.Rules {
		if doc.Rules[i].Pattern == "" {
			return nil, ErrEmptyPattern
		}

		if doc.Rules[i].Label == "" {
			doc.Rules[i].Label = doc.Rules[i].Pattern
		}
	}

	return doc.Rules, nil
}

// parseLines reads one pattern per line.
func parseLines(data []byte) ([]Rule, error) {
	lines := strings.Split(string(data), "\n")
	rules := make([]Rule, 0, len(lines))

	for _, line := range lines {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, commentPrefix) {
			continue
		}

		rules = append(rules, Rule{Pattern: line, Label: line})
	}

	return rules, nil
}

// decompress reads an lz4 frame.
func decompress(data []byte) ([]byte, error) {
	out, err := io.ReadAll(lz4.NewReader(bytes.NewReader(data)))
	if err != nil {
		return nil, fmt.Errorf("lz4 frame: %w", err)
	}

	return out, nil
}
