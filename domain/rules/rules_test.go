package rules

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-kg/concord/domain/proposal"
)

func TestLoadEmptyPathReturnsDefault(t *testing.T) {
	set, err := Load("")
	require.NoError(t, err)
	assert.Empty(t, set.NaturalKeys)
	assert.Empty(t, set.BusinessRules)
}

func TestLoadFromYAML(t *testing.T) {
	content := `
natural_keys:
  Patient: [natural_key]
  Disease: [name]
cardinality:
  treated_by: "1:1"
  diagnosed_with: "1:N"
transitive:
  part_of:
    max_depth: 3
inverse:
  parent_of: child_of
business_rules:
  - id: severity_range
    kind: numeric_range
    applies_to: [create_entity, update_entity]
    entity_type: Disease
    property: severity
    min: 0
    max: 10
    severity: blocking
  - id: diagnosed_not_future
    kind: date_not_future
    property: diagnosed_at
    severity: warning
`
	path := filepath.Join(t.TempDir(), "rules.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	set, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, []string{"natural_key"}, set.NaturalKeys["Patient"])
	assert.Equal(t, CardinalityOneToOne, set.Cardinality["treated_by"])
	assert.Equal(t, CardinalityOneToMany, set.Cardinality["diagnosed_with"])
	assert.Equal(t, 3, set.Transitive["part_of"].MaxDepth)
	assert.Equal(t, "child_of", set.Inverse["parent_of"])
	require.Len(t, set.BusinessRules, 2)
	assert.Equal(t, SeverityBlocking, set.BusinessRules[0].Severity)
}

func TestLoadRejectsInvalid(t *testing.T) {
	tests := []struct {
		name    string
		content string
	}{
		{"bad cardinality", "cardinality:\n  r: \"N:N\"\n"},
		{"zero closure depth", "transitive:\n  r:\n    max_depth: 0\n"},
		{"rule without id", "business_rules:\n  - kind: numeric_range\n    property: x\n    min: 0\n    severity: blocking\n"},
		{"unknown rule kind", "business_rules:\n  - id: r1\n    kind: regex\n    property: x\n    severity: blocking\n"},
		{"range without bounds", "business_rules:\n  - id: r1\n    kind: numeric_range\n    property: x\n    severity: blocking\n"},
		{"bad severity", "business_rules:\n  - id: r1\n    kind: date_not_future\n    property: x\n    severity: fatal\n"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "rules.yaml")
			require.NoError(t, os.WriteFile(path, []byte(tt.content), 0o644))
			_, err := Load(path)
			assert.Error(t, err)
		})
	}
}

func TestNaturalKey(t *testing.T) {
	set := &Set{
		NaturalKeys: map[string][]string{
			"Patient": {"natural_key"},
			"Visit":   {"patient", "date"},
		},
	}

	tests := []struct {
		name       string
		entityType string
		props      map[string]any
		want       string
	}{
		{"single property", "Patient", map[string]any{"natural_key": "P001"}, "Patient|natural_key=P001"},
		{"missing key property", "Patient", map[string]any{"name": "Ada"}, ""},
		{"nil value", "Patient", map[string]any{"natural_key": nil}, ""},
		{"unconfigured type", "Disease", map[string]any{"name": "flu"}, ""},
		{"composite key sorted", "Visit", map[string]any{"patient": "P001", "date": "2026-01-02"}, "Visit|date=2026-01-02|patient=P001"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, set.NaturalKey(tt.entityType, tt.props))
		})
	}

	assert.True(t, set.HasNaturalKey("Patient"))
	assert.False(t, set.HasNaturalKey("Disease"))
}

func TestBusinessRuleAppliesToOperation(t *testing.T) {
	scoped := BusinessRule{AppliesTo: []proposal.Operation{proposal.OpCreateEntity}}
	assert.True(t, scoped.AppliesToOperation(proposal.OpCreateEntity))
	assert.False(t, scoped.AppliesToOperation(proposal.OpUpdateEntity))

	unscoped := BusinessRule{}
	assert.True(t, unscoped.AppliesToOperation(proposal.OpCreateEntity))
	assert.True(t, unscoped.AppliesToOperation(proposal.OpUpdateEntity))
	assert.False(t, unscoped.AppliesToOperation(proposal.OpCreateRelationship))
}
