package reasoning

import (
	"sort"

	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/proposal"
)

// inferenceSource is the provenance tag on proposals the engine authors.
const inferenceSource = "reasoning-engine"

// FactsToProposals converts the deterministic facts of a run into proposals
// re-entering the pipeline. Property inferences and classifications become
// entity updates; closure edges become relationship creates. Suggestions
// are advisory and are never submitted. The engine authors proposals as
// KnowledgeManager so they pass the same permission checks as any agent.
func FactsToProposals(facts InferredFacts, snap graphstore.Snapshot, correlationID string) []*proposal.Proposal {
	byEntity := make(map[string]map[string]any)
	for _, inferred := range facts.Properties {
		props, ok := byEntity[inferred.EntityID]
		if !ok {
			props = make(map[string]any)
			byEntity[inferred.EntityID] = props
		}
		props[inferred.Property] = inferred.Value
	}
	for _, c := range bestClassifications(facts.Classifications) {
		props, ok := byEntity[c.EntityID]
		if !ok {
			props = make(map[string]any)
			byEntity[c.EntityID] = props
		}
		props["category"] = c.Category
	}

	entityIDs := make([]string, 0, len(byEntity))
	for id := range byEntity {
		entityIDs = append(entityIDs, id)
	}
	sort.Strings(entityIDs)

	var proposals []*proposal.Proposal
	for _, id := range entityIDs {
		entity, ok := snap.Entity(id)
		if !ok {
			continue
		}
		p := proposal.New(proposal.OpUpdateEntity, proposal.Payload{
			EntityID:    id,
			EntityType:  entity.Type,
			Properties:  byEntity[id],
			Source:      inferenceSource,
			BaseVersion: entity.Version,
		}, proposal.RoleKnowledgeManager, correlationID)
		p.Derived = true
		proposals = append(proposals, p)
	}

	for _, edge := range facts.ClosureEdges {
		p := proposal.New(proposal.OpCreateRelationship, proposal.Payload{
			SourceID: edge.SourceID,
			TargetID: edge.TargetID,
			RelType:  edge.Type,
			Source:   inferenceSource,
		}, proposal.RoleKnowledgeManager, correlationID)
		p.Derived = true
		proposals = append(proposals, p)
	}

	return proposals
}

// bestClassifications keeps the highest-confidence classification per
// entity.
func bestClassifications(all []Classification) []Classification {
	best := make(map[string]Classification)
	for _, c := range all {
		if current, ok := best[c.EntityID]; !ok || c.Confidence > current.Confidence {
			best[c.EntityID] = c
		}
	}
	result := make([]Classification, 0, len(best))
	for _, c := range best {
		result = append(result, c)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].EntityID < result[j].EntityID })
	return result
}
