package filter

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// RuleDefinition is the external form of a rule, as written in a filter file.
// Property and Regex are accepted as older spellings of Field and Pattern.
type RuleDefinition struct {
	Action   string `yaml:"action"`
	Priority int    `yaml:"priority"`
	Field    string `yaml:"field,omitempty"`
	Property string `yaml:"property,omitempty"`
	Pattern  string `yaml:"pattern,omitempty"`
	Regex    string `yaml:"regex,omitempty"`
}

// Definition is a complete filter file.
type Definition struct {
	DefaultAction string           `yaml:"default_action,omitempty"`
	Rules         []RuleDefinition `yaml:"rules"`
}

// Rule builds a Rule from the definition. The field defaults to uri.
func (d RuleDefinition) Rule() (*Rule, error) {
	action, err := ParseAction(d.Action)
	if err != nil {
		return nil, err
	}
	name := d.Field
	if name == "" {
		name = d.Property
	}
	if name == "" {
		name = "uri"
	}
	field, err := ParseField(name)
	if err != nil {
		return nil, err
	}
	pattern := d.Pattern
	if pattern == "" {
		pattern = d.Regex
	}
	return NewRule(action, d.Priority, field, pattern)
}

// Parse builds an engine from YAML. The document is either a mapping with
// default_action and rules, or a bare list of rules.
func Parse(data []byte) (*Engine, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("parse filter: %w", err)
	}

	var def Definition
	if len(root.Content) > 0 && root.Content[0].Kind == yaml.SequenceNode {
		if err := root.Content[0].Decode(&def.Rules); err != nil {
			return nil, fmt.Errorf("parse filter rules: %w", err)
		}
	} else if len(root.Content) > 0 {
		if err := root.Content[0].Decode(&def); err != nil {
			return nil, fmt.Errorf("parse filter: %w", err)
		}
	}

	engine, err := NewEngine()
	if err != nil {
		return nil, err
	}
	if def.DefaultAction != "" {
		action, err := ParseAction(def.DefaultAction)
		if err != nil {
			return nil, fmt.Errorf("default_action: %w", err)
		}
		if err := engine.SetDefaultAction(action); err != nil {
			return nil, err
		}
	}
	for i, rd := range def.Rules {
		rule, err := rd.Rule()
		if err != nil {
			return nil, fmt.Errorf("rule %d: %w", i+1, err)
		}
		if err := engine.Add(rule); err != nil {
			return nil, err
		}
	}
	return engine, nil
}

// Load reads and parses a filter file.
func Load(path string) (*Engine, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading filter file: %w", err)
	}
	return Parse(data)
}
