package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/rules"
)

func testRules() *rules.Set {
	set := rules.Default()
	set.NaturalKeys["person"] = []string{"email"}
	set.Cardinality["married_to"] = rules.CardinalityOneToOne
	set.Cardinality["reports_to"] = rules.CardinalityOneToMany
	return set
}

func kinds(conflicts []Conflict) []ConflictKind {
	result := make([]ConflictKind, 0, len(conflicts))
	for _, c := range conflicts {
		result = append(result, c.Kind)
	}
	return result
}

func TestDetectDuplicateEntity(t *testing.T) {
	detector := NewDetector(testRules())
	snap := snapshotWith([]*graphstore.Entity{
		{ID: "p-1", Type: "person", Version: 1, Properties: map[string]any{"email": "a@example.com"}},
	}, nil)

	t.Run("same id", func(t *testing.T) {
		p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
			EntityID:   "p-1",
			EntityType: "person",
			Properties: map[string]any{"email": "other@example.com"},
		}, proposal.RoleDataEngineer, "")
		conflicts := detector.Detect(p, snap, nil)
		require.Len(t, conflicts, 1)
		assert.Equal(t, ConflictDuplicateEntity, conflicts[0].Kind)
	})

	t.Run("same natural key different id", func(t *testing.T) {
		p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
			EntityID:   "p-2",
			EntityType: "person",
			Properties: map[string]any{"email": "a@example.com"},
		}, proposal.RoleDataEngineer, "")
		conflicts := detector.Detect(p, snap, nil)
		require.Len(t, conflicts, 1)
		assert.Equal(t, ConflictDuplicateEntity, conflicts[0].Kind)
		assert.Equal(t, []string{"p-1", "p-2"}, conflicts[0].SubjectIDs)
	})

	t.Run("different natural key is clean", func(t *testing.T) {
		p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
			EntityID:   "p-3",
			EntityType: "person",
			Properties: map[string]any{"email": "b@example.com"},
		}, proposal.RoleDataEngineer, "")
		assert.Empty(t, detector.Detect(p, snap, nil))
	})

	t.Run("type without a natural key never collides", func(t *testing.T) {
		p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
			EntityID:   "n-1",
			EntityType: "note",
			Properties: map[string]any{"email": "a@example.com"},
		}, proposal.RoleDataEngineer, "")
		assert.Empty(t, detector.Detect(p, snap, nil))
	})

	t.Run("in-flight create with the same natural key", func(t *testing.T) {
		other := proposal.New(proposal.OpCreateEntity, proposal.Payload{
			EntityID:   "p-4",
			EntityType: "person",
			Properties: map[string]any{"email": "c@example.com"},
		}, proposal.RoleDataEngineer, "")
		p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
			EntityID:   "p-5",
			EntityType: "person",
			Properties: map[string]any{"email": "c@example.com"},
		}, proposal.RoleDataEngineer, "")
		conflicts := detector.Detect(p, snap, []*proposal.Proposal{other})
		require.Len(t, conflicts, 1)
		assert.Equal(t, ConflictDuplicateEntity, conflicts[0].Kind)
	})
}

func TestDetectRelationshipConflicts(t *testing.T) {
	detector := NewDetector(testRules())
	snap := snapshotWith([]*graphstore.Entity{
		{ID: "a", Type: "person", Version: 1},
		{ID: "b", Type: "person", Version: 1},
		{ID: "c", Type: "person", Version: 1},
	}, []*graphstore.Relationship{
		{SourceID: "a", TargetID: "b", Type: "married_to"},
	})

	newEdge := func(source, target, relType string) *proposal.Proposal {
		return proposal.New(proposal.OpCreateRelationship, proposal.Payload{
			SourceID: source,
			TargetID: target,
			RelType:  relType,
		}, proposal.RoleKnowledgeManager, "")
	}

	t.Run("self loop", func(t *testing.T) {
		conflicts := detector.Detect(newEdge("a", "a", "knows"), snap, nil)
		assert.Contains(t, kinds(conflicts), ConflictCircularRelationship)
	})

	t.Run("duplicate edge", func(t *testing.T) {
		conflicts := detector.Detect(newEdge("a", "b", "married_to"), snap, nil)
		assert.Contains(t, kinds(conflicts), ConflictDuplicateRelationship)
		// The identical edge is a duplicate, not a cardinality contradiction.
		assert.NotContains(t, kinds(conflicts), ConflictContradictoryCardinality)
	})

	t.Run("missing endpoint", func(t *testing.T) {
		conflicts := detector.Detect(newEdge("a", "ghost", "knows"), snap, nil)
		assert.Contains(t, kinds(conflicts), ConflictOrphanRelationship)
	})

	t.Run("endpoint deleted in flight", func(t *testing.T) {
		del := proposal.New(proposal.OpDeleteEntity, proposal.Payload{EntityID: "c"}, proposal.RoleSystemAdmin, "")
		conflicts := detector.Detect(newEdge("a", "c", "knows"), snap, []*proposal.Proposal{del})
		assert.Contains(t, kinds(conflicts), ConflictOrphanRelationship)
	})

	t.Run("endpoint created in flight is not an orphan", func(t *testing.T) {
		create := proposal.New(proposal.OpCreateEntity, proposal.Payload{EntityID: "d", EntityType: "person"}, proposal.RoleDataEngineer, "")
		conflicts := detector.Detect(newEdge("a", "d", "knows"), snap, []*proposal.Proposal{create})
		assert.NotContains(t, kinds(conflicts), ConflictOrphanRelationship)
	})

	t.Run("one-to-one contradiction", func(t *testing.T) {
		conflicts := detector.Detect(newEdge("a", "c", "married_to"), snap, nil)
		assert.Contains(t, kinds(conflicts), ConflictContradictoryCardinality)
	})

	t.Run("one-to-many allows fan-in to distinct targets", func(t *testing.T) {
		conflicts := detector.Detect(newEdge("a", "c", "reports_to"), snap, nil)
		assert.Empty(t, conflicts)
	})

	t.Run("one-to-many rejects second source for same target", func(t *testing.T) {
		snap := snapshotWith([]*graphstore.Entity{
			{ID: "a", Type: "person", Version: 1},
			{ID: "b", Type: "person", Version: 1},
			{ID: "c", Type: "person", Version: 1},
		}, []*graphstore.Relationship{
			{SourceID: "a", TargetID: "c", Type: "reports_to"},
		})
		conflicts := detector.Detect(newEdge("b", "c", "reports_to"), snap, nil)
		assert.Contains(t, kinds(conflicts), ConflictContradictoryCardinality)
	})

	t.Run("in-flight edge counts for cardinality", func(t *testing.T) {
		inFlight := newEdge("a", "c", "married_to")
		conflicts := detector.Detect(newEdge("b", "c", "married_to"), snap, []*proposal.Proposal{inFlight})
		assert.Contains(t, kinds(conflicts), ConflictContradictoryCardinality)
	})
}

func TestDetectStaleVersion(t *testing.T) {
	detector := NewDetector(testRules())
	snap := snapshotWith([]*graphstore.Entity{
		{ID: "a", Type: "note", Version: 3},
	}, nil)

	update := func(baseVersion int) *proposal.Proposal {
		return proposal.New(proposal.OpUpdateEntity, proposal.Payload{
			EntityID:    "a",
			Properties:  map[string]any{"k": "v"},
			BaseVersion: baseVersion,
		}, proposal.RoleDataEngineer, "")
	}

	assert.Empty(t, detector.Detect(update(3), snap, nil))
	assert.Empty(t, detector.Detect(update(0), snap, nil), "no declared base version skips the check")

	conflicts := detector.Detect(update(2), snap, nil)
	require.Len(t, conflicts, 1)
	assert.Equal(t, ConflictStaleVersion, conflicts[0].Kind)
}

func TestConflictingEdges(t *testing.T) {
	detector := NewDetector(testRules())
	snap := snapshotWith([]*graphstore.Entity{
		{ID: "a", Type: "person", Version: 1},
		{ID: "b", Type: "person", Version: 1},
		{ID: "c", Type: "person", Version: 1},
	}, []*graphstore.Relationship{
		{SourceID: "a", TargetID: "b", Type: "married_to"},
		{SourceID: "a", TargetID: "b", Type: "knows"},
	})

	p := proposal.New(proposal.OpCreateRelationship, proposal.Payload{
		SourceID: "a",
		TargetID: "c",
		RelType:  "married_to",
	}, proposal.RoleKnowledgeManager, "")

	edges := detector.ConflictingEdges(p, snap)
	require.Len(t, edges, 1)
	assert.Equal(t, "married_to", edges[0].Type)
	assert.Equal(t, "b", edges[0].TargetID)
}
