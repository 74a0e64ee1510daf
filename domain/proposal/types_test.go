package proposal

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCheckShape(t *testing.T) {
	tests := []struct {
		name      string
		op        Operation
		payload   Payload
		role      Role
		expectErr bool
	}{
		{
			name:    "valid create entity",
			op:      OpCreateEntity,
			payload: Payload{EntityID: "patient-1", EntityType: "Patient"},
			role:    RoleDataEngineer,
		},
		{
			name:      "create entity missing id",
			op:        OpCreateEntity,
			payload:   Payload{EntityType: "Patient"},
			role:      RoleDataEngineer,
			expectErr: true,
		},
		{
			name:      "create entity missing type",
			op:        OpCreateEntity,
			payload:   Payload{EntityID: "patient-1"},
			role:      RoleDataEngineer,
			expectErr: true,
		},
		{
			name:    "valid update entity",
			op:      OpUpdateEntity,
			payload: Payload{EntityID: "patient-1", Properties: map[string]any{"status": "active"}},
			role:    RoleDataArchitect,
		},
		{
			name:    "valid delete entity",
			op:      OpDeleteEntity,
			payload: Payload{EntityID: "patient-1"},
			role:    RoleSystemAdmin,
		},
		{
			name:    "valid create relationship",
			op:      OpCreateRelationship,
			payload: Payload{SourceID: "a", TargetID: "b", RelType: "treated_by"},
			role:    RoleKnowledgeManager,
		},
		{
			name:      "relationship missing endpoint",
			op:        OpCreateRelationship,
			payload:   Payload{SourceID: "a", RelType: "treated_by"},
			role:      RoleKnowledgeManager,
			expectErr: true,
		},
		{
			name:      "relationship missing type",
			op:        OpCreateRelationship,
			payload:   Payload{SourceID: "a", TargetID: "b"},
			role:      RoleKnowledgeManager,
			expectErr: true,
		},
		{
			name:      "unknown operation",
			op:        Operation("drop_graph"),
			payload:   Payload{EntityID: "x"},
			role:      RoleSystemAdmin,
			expectErr: true,
		},
		{
			name:      "unknown role",
			op:        OpCreateEntity,
			payload:   Payload{EntityID: "x", EntityType: "T"},
			role:      Role("intern"),
			expectErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.op, tt.payload, tt.role, "")
			err := p.CheckShape()
			if tt.expectErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestNewAssignsCorrelation(t *testing.T) {
	p := New(OpCreateEntity, Payload{EntityID: "e1", EntityType: "T"}, RoleDataEngineer, "")
	require.NotEqual(t, uuid.Nil, p.ID)
	assert.NotEmpty(t, p.CorrelationID)
	assert.False(t, p.SubmittedAt.IsZero())

	p2 := New(OpCreateEntity, Payload{EntityID: "e2", EntityType: "T"}, RoleDataEngineer, "task-42")
	assert.Equal(t, "task-42", p2.CorrelationID)
}

func TestTouchedIDs(t *testing.T) {
	tests := []struct {
		name    string
		op      Operation
		payload Payload
		want    []string
	}{
		{"entity create", OpCreateEntity, Payload{EntityID: "e1", EntityType: "T"}, []string{"e1"}},
		{"entity delete", OpDeleteEntity, Payload{EntityID: "e2"}, []string{"e2"}},
		{"relationship", OpCreateRelationship, Payload{SourceID: "a", TargetID: "b", RelType: "r"}, []string{"a", "b"}},
		{"self loop deduplicated", OpCreateRelationship, Payload{SourceID: "a", TargetID: "a", RelType: "r"}, []string{"a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := New(tt.op, tt.payload, RoleSystemAdmin, "")
			assert.Equal(t, tt.want, p.TouchedIDs())
		})
	}
}

func TestStateTerminal(t *testing.T) {
	assert.True(t, StateCommitted.Terminal())
	assert.True(t, StateRejected.Terminal())
	assert.True(t, StateEscalated.Terminal())
	assert.False(t, StateSubmitted.Terminal())
	assert.False(t, StateClassified.Terminal())
	assert.False(t, StateValidated.Terminal())
	assert.False(t, StateConflictChecked.Terminal())
}
