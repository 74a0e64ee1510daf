package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/rules"
)

func TestClassify(t *testing.T) {
	set := rules.Default()
	set.NaturalKeys["person"] = []string{"email"}
	classifier := NewClassifier(set)

	tests := []struct {
		name     string
		proposal *proposal.Proposal
		expected Escalation
	}{
		{
			name: "leaf create in own domain is local",
			proposal: proposal.New(proposal.OpCreateEntity, proposal.Payload{
				EntityID:   "note-1",
				EntityType: "note",
				Domain:     "engineering",
				Properties: map[string]any{"title": "standup"},
			}, proposal.RoleDataEngineer, ""),
			expected: EscalationLocal,
		},
		{
			name: "create without a domain is governed",
			proposal: proposal.New(proposal.OpCreateEntity, proposal.Payload{
				EntityID:   "note-2",
				EntityType: "note",
			}, proposal.RoleDataEngineer, ""),
			expected: EscalationGoverned,
		},
		{
			name: "create of a natural-key type is governed",
			proposal: proposal.New(proposal.OpCreateEntity, proposal.Payload{
				EntityID:   "p-1",
				EntityType: "person",
				Domain:     "hr",
				Properties: map[string]any{"email": "a@example.com"},
			}, proposal.RoleDataEngineer, ""),
			expected: EscalationGoverned,
		},
		{
			name: "create with id-reference properties is governed",
			proposal: proposal.New(proposal.OpCreateEntity, proposal.Payload{
				EntityID:   "note-3",
				EntityType: "note",
				Domain:     "engineering",
				Properties: map[string]any{"owner_id": "p-1"},
			}, proposal.RoleDataEngineer, ""),
			expected: EscalationGoverned,
		},
		{
			name: "update is governed",
			proposal: proposal.New(proposal.OpUpdateEntity, proposal.Payload{
				EntityID: "note-1",
				Domain:   "engineering",
			}, proposal.RoleDataEngineer, ""),
			expected: EscalationGoverned,
		},
		{
			name: "relationship create is governed",
			proposal: proposal.New(proposal.OpCreateRelationship, proposal.Payload{
				SourceID: "a",
				TargetID: "b",
				RelType:  "owns",
			}, proposal.RoleKnowledgeManager, ""),
			expected: EscalationGoverned,
		},
		{
			name: "delete is governed",
			proposal: proposal.New(proposal.OpDeleteEntity, proposal.Payload{
				EntityID: "note-1",
				Domain:   "engineering",
			}, proposal.RoleSystemAdmin, ""),
			expected: EscalationGoverned,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, classifier.Classify(tt.proposal))
		})
	}
}

func TestClassifyDerivedAndApprovedAreGoverned(t *testing.T) {
	classifier := NewClassifier(rules.Default())

	payload := proposal.Payload{
		EntityID:   "note-1",
		EntityType: "note",
		Domain:     "engineering",
	}

	derived := proposal.New(proposal.OpCreateEntity, payload, proposal.RoleKnowledgeManager, "")
	derived.Derived = true
	assert.Equal(t, EscalationGoverned, classifier.Classify(derived))

	approved := proposal.New(proposal.OpCreateEntity, payload, proposal.RoleKnowledgeManager, "")
	approved.ManuallyApproved = true
	assert.Equal(t, EscalationGoverned, classifier.Classify(approved))
}

func TestClassifyIsDeterministic(t *testing.T) {
	classifier := NewClassifier(rules.Default())
	p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
		EntityID:   "note-1",
		EntityType: "note",
		Domain:     "engineering",
	}, proposal.RoleDataArchitect, "")

	first := classifier.Classify(p)
	for i := 0; i < 100; i++ {
		assert.Equal(t, first, classifier.Classify(p))
	}
}
