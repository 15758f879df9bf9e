package rules

import (
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/opensource-finance/claimhawk/internal/domain"
)

// Pack is a YAML document of rule configurations.
//
//	version: "1"
//	rules:
//	  - id: repeat-claimant
//	    expression: claims_count > 3
//	    points: 25
//	    factor: Repeat claimant
//	    enabled: true
type Pack struct {
	Version string               `yaml:"version"`
	Rules   []*domain.RuleConfig `yaml:"rules"`
}

// LoadPackFile reads a rule pack from disk.
func LoadPackFile(path string) (*Pack, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open rule pack: %w", err)
	}
	defer f.Close()
	return ParsePack(f)
}

// ParsePack decodes a rule pack. Rules without an explicit enabled flag are
// disabled.
func ParsePack(r io.Reader) (*Pack, error) {
	var pack Pack
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&pack); err != nil {
		if err == io.EOF {
			return &pack, nil
		}
		return nil, fmt.Errorf("decode rule pack: %w", err)
	}

	seen := make(map[string]bool, len(pack.Rules))
	for i, rule := range pack.Rules {
		if rule == nil || rule.ID == "" {
			return nil, fmt.Errorf("rule %d: id is required", i)
		}
		if seen[rule.ID] {
			return nil, fmt.Errorf("rule %s: duplicate id", rule.ID)
		}
		seen[rule.ID] = true
	}
	return &pack, nil
}

// Validate compiles every rule in the pack and returns one error per invalid rule.
func (e *Engine) Validate(pack *Pack) []error {
	var errs []error
	for _, rule := range pack.Rules {
		if err := e.ValidateRule(rule); err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}
