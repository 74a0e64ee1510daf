// Package rules holds the governance rule set: natural keys, relationship
// cardinality declarations, transitive/inverse relationship types, and
// pluggable business rules. The set is loaded once at startup and treated
// as immutable for the process lifetime.
package rules

import (
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/concord-kg/concord/domain/proposal"
)

// Severity grades a validation rule.
type Severity string

const (
	SeverityBlocking Severity = "blocking"
	SeverityWarning  Severity = "warning"
)

// Cardinality declares the allowed edge multiplicity for a relationship type.
type Cardinality string

const (
	CardinalityOneToOne  Cardinality = "1:1"
	CardinalityOneToMany Cardinality = "1:N"
)

// BusinessRuleKind selects the predicate implementation for a business rule.
// Rules are a closed tagged-variant set dispatched by kind, not discovered
// by reflection.
type BusinessRuleKind string

const (
	KindNumericRange  BusinessRuleKind = "numeric_range"
	KindDateNotFuture BusinessRuleKind = "date_not_future"
)

// BusinessRule is a configurable domain predicate evaluated during
// validation. EntityType empty means the rule applies to all types.
type BusinessRule struct {
	ID         string               `yaml:"id"`
	Kind       BusinessRuleKind     `yaml:"kind"`
	AppliesTo  []proposal.Operation `yaml:"applies_to"`
	EntityType string               `yaml:"entity_type"`
	Property   string               `yaml:"property"`
	Min        *float64             `yaml:"min"`
	Max        *float64             `yaml:"max"`
	Severity   Severity             `yaml:"severity"`
}

// AppliesToOperation reports whether the rule applies to op. An empty
// AppliesTo list means all entity operations.
func (r BusinessRule) AppliesToOperation(op proposal.Operation) bool {
	if len(r.AppliesTo) == 0 {
		return op == proposal.OpCreateEntity || op == proposal.OpUpdateEntity
	}
	for _, candidate := range r.AppliesTo {
		if candidate == op {
			return true
		}
	}
	return false
}

// TransitiveRule bounds closure materialization for a relationship type.
type TransitiveRule struct {
	MaxDepth int `yaml:"max_depth"`
}

// Set is the full rule configuration.
type Set struct {
	// NaturalKeys maps an entity type to the property names that identify
	// an entity of that type. Types without an entry never raise
	// DuplicateEntity conflicts.
	NaturalKeys map[string][]string `yaml:"natural_keys"`

	// Cardinality maps a relationship type to its declared multiplicity.
	Cardinality map[string]Cardinality `yaml:"cardinality"`

	// Transitive marks relationship types whose closure is materialized.
	Transitive map[string]TransitiveRule `yaml:"transitive"`

	// Inverse maps a relationship type to its inverse type, used by the
	// reasoning engine to suggest mirror edges.
	Inverse map[string]string `yaml:"inverse"`

	// TrustRanks orders provenance sources; higher wins property conflicts
	// during duplicate-entity merges. Unranked sources rank 0.
	TrustRanks map[string]int `yaml:"trust_ranks"`

	BusinessRules []BusinessRule `yaml:"business_rules"`
}

// TrustRank returns the configured rank of a provenance source.
func (s *Set) TrustRank(source string) int {
	return s.TrustRanks[source]
}

// Default returns the built-in rule set used when no rules file is
// configured. The inverse table carries the common taxonomic pairs;
// everything else starts empty.
func Default() *Set {
	return &Set{
		NaturalKeys: map[string][]string{},
		Cardinality: map[string]Cardinality{},
		Transitive:  map[string]TransitiveRule{},
		TrustRanks:  map[string]int{},
		Inverse: map[string]string{
			"is_a":       "has_instance",
			"has_part":   "part_of",
			"owns":       "owned_by",
			"manages":    "managed_by",
			"reports_to": "has_subordinate",
		},
	}
}

// Load reads a rule set from a YAML file. An empty path returns Default().
func Load(path string) (*Set, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rules file: %w", err)
	}

	set := Default()
	if err := yaml.Unmarshal(data, set); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}

	if err := set.Validate(); err != nil {
		return nil, fmt.Errorf("invalid rules file %s: %w", path, err)
	}

	return set, nil
}

// Validate checks internal consistency of the rule set.
func (s *Set) Validate() error {
	for relType, card := range s.Cardinality {
		if card != CardinalityOneToOne && card != CardinalityOneToMany {
			return fmt.Errorf("relationship type %q: unknown cardinality %q", relType, card)
		}
	}
	for relType, tr := range s.Transitive {
		if tr.MaxDepth <= 0 {
			return fmt.Errorf("transitive type %q: max_depth must be positive", relType)
		}
	}
	seen := map[string]bool{}
	for _, rule := range s.BusinessRules {
		if rule.ID == "" {
			return fmt.Errorf("business rule without id")
		}
		if seen[rule.ID] {
			return fmt.Errorf("duplicate business rule id %q", rule.ID)
		}
		seen[rule.ID] = true
		switch rule.Kind {
		case KindNumericRange:
			if rule.Property == "" {
				return fmt.Errorf("rule %q: numeric_range requires a property", rule.ID)
			}
			if rule.Min == nil && rule.Max == nil {
				return fmt.Errorf("rule %q: numeric_range requires min and/or max", rule.ID)
			}
		case KindDateNotFuture:
			if rule.Property == "" {
				return fmt.Errorf("rule %q: date_not_future requires a property", rule.ID)
			}
		default:
			return fmt.Errorf("rule %q: unknown kind %q", rule.ID, rule.Kind)
		}
		if rule.Severity != SeverityBlocking && rule.Severity != SeverityWarning {
			return fmt.Errorf("rule %q: unknown severity %q", rule.ID, rule.Severity)
		}
	}
	return nil
}

// NaturalKey computes the natural key of an entity payload: the entity type
// joined with the configured identifying property values. Returns "" when
// the type has no configured key or a key property is absent, meaning the
// entity has no duplicate-detection identity.
func (s *Set) NaturalKey(entityType string, properties map[string]any) string {
	keyProps, ok := s.NaturalKeys[entityType]
	if !ok || len(keyProps) == 0 {
		return ""
	}

	sorted := make([]string, len(keyProps))
	copy(sorted, keyProps)
	sort.Strings(sorted)

	parts := make([]string, 0, len(sorted)+1)
	parts = append(parts, entityType)
	for _, prop := range sorted {
		value, ok := properties[prop]
		if !ok || value == nil {
			return ""
		}
		parts = append(parts, fmt.Sprintf("%s=%v", prop, value))
	}
	return strings.Join(parts, "|")
}

// HasNaturalKey reports whether entityType participates in duplicate
// detection at all.
func (s *Set) HasNaturalKey(entityType string) bool {
	props, ok := s.NaturalKeys[entityType]
	return ok && len(props) > 0
}
