// Package conflict enforces mutually exclusive groups of standard tags.
package conflict

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Rule is a named exclusivity group. Priority lists the members from the
// one that survives a conflict down to the one dropped first.
type Rule struct {
	Name     string   `yaml:"name" json:"name"`
	Priority []string `yaml:"priority" json:"priority"`
}

// Validate reports whether the rule can take part in resolution.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Name) == "" {
		return fmt.Errorf("conflict rule has empty name")
	}
	if len(r.Priority) < 2 {
		return fmt.Errorf("conflict rule %q needs at least two members", r.Name)
	}
	seen := make(map[string]struct{}, len(r.Priority))
	for _, m := range r.Priority {
		if strings.TrimSpace(m) == "" {
			return fmt.Errorf("conflict rule %q has an empty member", r.Name)
		}
		if _, dup := seen[m]; dup {
			return fmt.Errorf("conflict rule %q lists %q twice", r.Name, m)
		}
		seen[m] = struct{}{}
	}
	return nil
}

// Resolve returns the members of tags that survive every rule. Rules are
// applied in order; within a group only the highest-priority member present
// is kept. The input is not modified.
func Resolve(tags map[string]struct{}, rules []Rule) map[string]struct{} {
	out := make(map[string]struct{}, len(tags))
	for t := range tags {
		out[t] = struct{}{}
	}
	for _, rule := range rules {
		winner := ""
		for _, member := range rule.Priority {
			if _, ok := out[member]; !ok {
				continue
			}
			if winner == "" {
				winner = member
				continue
			}
			delete(out, member)
		}
	}
	return out
}

// Dropped lists, per rule name, the tags that Resolve would remove.
func Dropped(tags map[string]struct{}, rules []Rule) map[string][]string {
	kept := Resolve(tags, rules)
	out := make(map[string][]string)
	reported := make(map[string]struct{})
	for _, rule := range rules {
		for _, member := range rule.Priority {
			if _, had := tags[member]; !had {
				continue
			}
			if _, ok := kept[member]; ok {
				continue
			}
			if _, ok := reported[member]; ok {
				continue
			}
			reported[member] = struct{}{}
			out[rule.Name] = append(out[rule.Name], member)
		}
	}
	return out
}

// LoadFile reads a YAML list of rules.
func LoadFile(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read conflict rules file: %w", err)
	}
	var rules []Rule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("parse conflict rules file: %w", err)
	}
	for i, r := range rules {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("rule at index %d: %w", i, err)
		}
	}
	return rules, nil
}
