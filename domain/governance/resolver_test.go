package governance

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/proposal"
)

func TestResolveDuplicateEntity(t *testing.T) {
	set := testRules()
	resolver := NewResolver(set)
	snap := snapshotWith([]*graphstore.Entity{
		{ID: "p-1", Type: "person", Version: 2, Source: "crm", Properties: map[string]any{"email": "a@example.com"}},
	}, nil)

	p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
		EntityID:   "p-2",
		EntityType: "person",
		Source:     "crm",
		Properties: map[string]any{"email": "a@example.com", "name": "Ada"},
	}, proposal.RoleDataEngineer, "")

	conflict := newConflict(ConflictDuplicateEntity, []string{"p-1", "p-2"}, "dup")
	plans := resolver.Resolve(p, []Conflict{conflict}, snap)

	require.Len(t, plans, 1)
	assert.Equal(t, StrategyMerge, plans[0].Strategy)
	assert.True(t, plans[0].Automatic)
	assert.Equal(t, "p-1", plans[0].KeepID)
	assert.Equal(t, "p-2", plans[0].DropID)
}

func TestResolveDuplicatePrefersHighestTrust(t *testing.T) {
	set := testRules()
	set.TrustRanks = map[string]int{"hr-system": 10, "web-form": 1}
	resolver := NewResolver(set)
	snap := snapshotWith([]*graphstore.Entity{
		{ID: "p-1", Type: "person", Version: 1, Source: "hr-system", Properties: map[string]any{"email": "a@example.com"}},
	}, nil)

	p := proposal.New(proposal.OpCreateEntity, proposal.Payload{
		EntityID:   "p-2",
		EntityType: "person",
		Source:     "web-form",
		Properties: map[string]any{"email": "a@example.com"},
	}, proposal.RoleDataEngineer, "")

	conflict := newConflict(ConflictDuplicateEntity, []string{"p-1", "p-2"}, "dup")
	plans := resolver.Resolve(p, []Conflict{conflict}, snap)

	require.Len(t, plans, 1)
	assert.Equal(t, StrategyPreferHighestTrust, plans[0].Strategy)
}

func TestResolveStaleVersion(t *testing.T) {
	resolver := NewResolver(testRules())
	snap := snapshotWith([]*graphstore.Entity{
		{ID: "a", Type: "note", Version: 3, Properties: map[string]any{"title": "v3"}},
	}, nil)

	conflict := newConflict(ConflictStaleVersion, []string{"a"}, "stale")

	t.Run("monotonic update merges", func(t *testing.T) {
		p := proposal.New(proposal.OpUpdateEntity, proposal.Payload{
			EntityID:    "a",
			Properties:  map[string]any{"owner": "ada"},
			BaseVersion: 1,
		}, proposal.RoleDataEngineer, "")
		plans := resolver.Resolve(p, []Conflict{conflict}, snap)
		require.Len(t, plans, 1)
		assert.Equal(t, StrategyMerge, plans[0].Strategy)
	})

	t.Run("overlapping update rejects", func(t *testing.T) {
		p := proposal.New(proposal.OpUpdateEntity, proposal.Payload{
			EntityID:    "a",
			Properties:  map[string]any{"title": "v1 edit"},
			BaseVersion: 1,
		}, proposal.RoleDataEngineer, "")
		plans := resolver.Resolve(p, []Conflict{conflict}, snap)
		require.Len(t, plans, 1)
		assert.Equal(t, StrategyRejectIncoming, plans[0].Strategy)
	})

	t.Run("stale delete rejects", func(t *testing.T) {
		p := proposal.New(proposal.OpDeleteEntity, proposal.Payload{
			EntityID:    "a",
			BaseVersion: 1,
		}, proposal.RoleSystemAdmin, "")
		plans := resolver.Resolve(p, []Conflict{conflict}, snap)
		require.Len(t, plans, 1)
		assert.Equal(t, StrategyRejectIncoming, plans[0].Strategy)
	})
}

func TestResolveCardinality(t *testing.T) {
	resolver := NewResolver(testRules())
	snap := snapshotWith(nil, nil)
	conflict := newConflict(ConflictContradictoryCardinality, []string{"a", "c"}, "contradiction")

	t.Run("escalates by default", func(t *testing.T) {
		p := proposal.New(proposal.OpCreateRelationship, proposal.Payload{
			SourceID: "a", TargetID: "c", RelType: "married_to",
		}, proposal.RoleKnowledgeManager, "")
		plans := resolver.Resolve(p, []Conflict{conflict}, snap)
		require.Len(t, plans, 1)
		assert.Equal(t, StrategyManualReview, plans[0].Strategy)
		assert.False(t, plans[0].Automatic)
		assert.True(t, RequiresManualReview(plans))
	})

	t.Run("manually approved proposal prefers newest", func(t *testing.T) {
		p := proposal.New(proposal.OpCreateRelationship, proposal.Payload{
			SourceID: "a", TargetID: "c", RelType: "married_to",
		}, proposal.RoleKnowledgeManager, "")
		p.ManuallyApproved = true
		plans := resolver.Resolve(p, []Conflict{conflict}, snap)
		require.Len(t, plans, 1)
		assert.Equal(t, StrategyPreferNewest, plans[0].Strategy)
		assert.False(t, RequiresManualReview(plans))
	})
}

func TestResolveRejectingKinds(t *testing.T) {
	resolver := NewResolver(testRules())
	snap := snapshotWith(nil, nil)
	p := proposal.New(proposal.OpCreateRelationship, proposal.Payload{
		SourceID: "a", TargetID: "a", RelType: "knows",
	}, proposal.RoleKnowledgeManager, "")

	conflicts := []Conflict{
		newConflict(ConflictOrphanRelationship, []string{"ghost"}, "missing"),
		newConflict(ConflictCircularRelationship, []string{"a"}, "loop"),
		newConflict(ConflictDuplicateRelationship, []string{"a", "b"}, "dup"),
	}
	plans := resolver.Resolve(p, conflicts, snap)

	require.Len(t, plans, 3)
	assert.Len(t, Rejections(plans), 3)
	for _, plan := range plans {
		assert.Equal(t, StrategyRejectIncoming, plan.Strategy)
	}
}

func TestRetryableRejection(t *testing.T) {
	tests := []struct {
		name      string
		rejecting []ResolutionPlan
		want      bool
	}{
		{
			name:      "stale version can clear on a later snapshot",
			rejecting: []ResolutionPlan{{Kind: ConflictStaleVersion, Strategy: StrategyRejectIncoming}},
			want:      true,
		},
		{
			name:      "contested duplicate can clear when the winner lands",
			rejecting: []ResolutionPlan{{Kind: ConflictDuplicateEntity, Strategy: StrategyRejectIncoming}},
			want:      true,
		},
		{
			name:      "orphan endpoint never changes on retry",
			rejecting: []ResolutionPlan{{Kind: ConflictOrphanRelationship, Strategy: StrategyRejectIncoming}},
			want:      false,
		},
		{
			name:      "self-loop never changes on retry",
			rejecting: []ResolutionPlan{{Kind: ConflictCircularRelationship, Strategy: StrategyRejectIncoming}},
			want:      false,
		},
		{
			name:      "duplicate edge never changes on retry",
			rejecting: []ResolutionPlan{{Kind: ConflictDuplicateRelationship, Strategy: StrategyRejectIncoming}},
			want:      false,
		},
		{
			name: "one contested plan among deterministic ones retries",
			rejecting: []ResolutionPlan{
				{Kind: ConflictCircularRelationship, Strategy: StrategyRejectIncoming},
				{Kind: ConflictStaleVersion, Strategy: StrategyRejectIncoming},
			},
			want: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, retryableRejection(tt.rejecting))
		})
	}
}

func TestMergedProperties(t *testing.T) {
	set := testRules()
	set.TrustRanks = map[string]int{"hr-system": 10, "web-form": 1}
	existing := &graphstore.Entity{
		ID:         "p-1",
		Source:     "hr-system",
		Properties: map[string]any{"email": "a@example.com", "name": "Ada"},
	}

	t.Run("merge lets incoming win per key", func(t *testing.T) {
		merged := mergedProperties(StrategyMerge, existing, proposal.Payload{
			Source:     "web-form",
			Properties: map[string]any{"name": "Ada L.", "title": "engineer"},
		}, set)
		assert.Equal(t, "Ada L.", merged["name"])
		assert.Equal(t, "engineer", merged["title"])
		assert.Equal(t, "a@example.com", merged["email"])
	})

	t.Run("lower-trust incoming only fills gaps", func(t *testing.T) {
		merged := mergedProperties(StrategyPreferHighestTrust, existing, proposal.Payload{
			Source:     "web-form",
			Properties: map[string]any{"name": "Ada L.", "title": "engineer"},
		}, set)
		assert.Equal(t, "Ada", merged["name"])
		assert.Equal(t, "engineer", merged["title"])
	})
}
