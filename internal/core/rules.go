package core

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/JonMunkholm/sheetsmith/internal/cleaning"
	"github.com/JonMunkholm/sheetsmith/internal/validation"
)

// RuleSet is the on-disk layout of a rules file:
//
//	rules:
//	  - column: zip_code
//	    type: pattern
//	    pattern: '^\d{5}$'
//	actions:
//	  - field: company
//	    type: uppercase
type RuleSet struct {
	Rules   []validation.Rule `yaml:"rules"`
	Actions []cleaning.Action `yaml:"actions"`
}

// ParseRuleSet decodes and checks a rules file.
func ParseRuleSet(data []byte) (RuleSet, error) {
	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return RuleSet{}, fmt.Errorf("parse rules file: %w", err)
	}
	if _, err := validation.NewValidator(rs.Rules...); err != nil {
		return RuleSet{}, err
	}
	if _, err := cleaning.NewCleaner(rs.Actions...); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// LoadRuleSet reads a rules file. An empty path returns an empty set.
func LoadRuleSet(path string) (RuleSet, error) {
	if path == "" {
		return RuleSet{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("read rules file: %w", err)
	}
	return ParseRuleSet(data)
}
