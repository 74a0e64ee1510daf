// Package reasoning derives inferred facts from committed mutations:
// entity classification, property inference, relationship suggestion, and
// bounded transitive closure. Inference never writes to the graph; derived
// facts re-enter the pipeline as proposals so they cannot bypass
// governance.
package reasoning

// InferredProperty is a derivable property value for an entity. Inference
// never overwrites an explicitly authored value, so the property is always
// absent from the entity at inference time.
type InferredProperty struct {
	EntityID   string  `json:"entityId"`
	Property   string  `json:"property"`
	Value      any     `json:"value"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// Classification assigns a semantic category to an entity.
type Classification struct {
	EntityID   string  `json:"entityId"`
	Category   string  `json:"category"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// SuggestedRelationship is a proposed edge that is published but never
// auto-created.
type SuggestedRelationship struct {
	SourceID   string  `json:"sourceId"`
	TargetID   string  `json:"targetId"`
	Type       string  `json:"type"`
	Confidence float64 `json:"confidence"`
	Reason     string  `json:"reason"`
}

// ClosureEdge is a derived edge materialized from a chain of transitive
// relationships. Depth is the chain length it shortcuts.
type ClosureEdge struct {
	SourceID string `json:"sourceId"`
	TargetID string `json:"targetId"`
	Type     string `json:"type"`
	Depth    int    `json:"depth"`
}

// InferredFacts is the full result of one inference run.
type InferredFacts struct {
	Properties             []InferredProperty      `json:"properties,omitempty"`
	Classifications        []Classification        `json:"classifications,omitempty"`
	SuggestedRelationships []SuggestedRelationship `json:"suggestedRelationships,omitempty"`
	ClosureEdges           []ClosureEdge           `json:"closureEdges,omitempty"`
}

// Empty reports whether the run produced nothing.
func (f InferredFacts) Empty() bool {
	return len(f.Properties) == 0 &&
		len(f.Classifications) == 0 &&
		len(f.SuggestedRelationships) == 0 &&
		len(f.ClosureEdges) == 0
}

// EventPayload renders the facts for the decision event's inferredFacts
// field.
func (f InferredFacts) EventPayload() map[string]any {
	if f.Empty() {
		return nil
	}
	payload := make(map[string]any)
	if len(f.Properties) > 0 {
		payload["properties"] = f.Properties
	}
	if len(f.Classifications) > 0 {
		payload["classifications"] = f.Classifications
	}
	if len(f.SuggestedRelationships) > 0 {
		payload["suggestedRelationships"] = f.SuggestedRelationships
	}
	if len(f.ClosureEdges) > 0 {
		payload["closureEdges"] = f.ClosureEdges
	}
	return payload
}
