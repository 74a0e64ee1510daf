package governance

import (
	"fmt"
	"strings"
	"time"

	"github.com/concord-kg/concord/domain/graphstore"
	"github.com/concord-kg/concord/domain/policy"
	"github.com/concord-kg/concord/domain/proposal"
	"github.com/concord-kg/concord/domain/rules"
)

// Violation is one failed validation rule.
type Violation struct {
	Rule     string         `json:"rule"`
	Code     string         `json:"code"`
	Severity rules.Severity `json:"severity"`
	Message  string         `json:"message"`
}

// ValidationResult is the outcome of running every applicable rule. A
// single blocking violation fails the proposal; warnings pass but are
// attached to the audit record.
type ValidationResult struct {
	Violations []Violation `json:"violations"`
}

// Pass reports whether no blocking violation occurred.
func (r ValidationResult) Pass() bool {
	for _, v := range r.Violations {
		if v.Severity == rules.SeverityBlocking {
			return false
		}
	}
	return true
}

// Blocking returns the blocking violations.
func (r ValidationResult) Blocking() []Violation {
	var blocking []Violation
	for _, v := range r.Violations {
		if v.Severity == rules.SeverityBlocking {
			blocking = append(blocking, v)
		}
	}
	return blocking
}

// Warnings returns warning messages for the audit record.
func (r ValidationResult) Warnings() []string {
	var warnings []string
	for _, v := range r.Violations {
		if v.Severity == rules.SeverityWarning {
			warnings = append(warnings, v.Message)
		}
	}
	return warnings
}

// PermissionDenied reports whether the failure is a permission failure,
// which maps to its own error class.
func (r ValidationResult) PermissionDenied() bool {
	for _, v := range r.Violations {
		if v.Code == "permission_denied" {
			return true
		}
	}
	return false
}

const (
	maxEntityIDLength    = 100
	maxPropertyValueSize = 1000
)

var (
	reservedPropertyKeys = map[string]bool{"id": true, "_id": true, "__type": true}
	genericRelTypes      = map[string]bool{"related_to": true, "connected_to": true, "linked": true}
	idSpecialCharacters  = "!@#$%^&*"
)

// Validator runs permission, structural, referential, and business rules
// against a proposal and a consistent snapshot. It never mutates the
// graph.
type Validator struct {
	policy *policy.Policy
	rules  *rules.Set
}

// NewValidator creates a validation engine.
func NewValidator(rolePolicy *policy.Policy, set *rules.Set) *Validator {
	return &Validator{policy: rolePolicy, rules: set}
}

// Validate evaluates the proposal. Checks run in order: permission,
// structural advisories, referential integrity, business rules.
func (v *Validator) Validate(p *proposal.Proposal, snap graphstore.Snapshot) ValidationResult {
	var result ValidationResult

	result.Violations = append(result.Violations, v.checkPermission(p)...)
	result.Violations = append(result.Violations, v.checkStructure(p)...)
	result.Violations = append(result.Violations, v.checkReferences(p, snap)...)
	result.Violations = append(result.Violations, v.checkBusinessRules(p)...)

	return result
}

func (v *Validator) checkPermission(p *proposal.Proposal) []Violation {
	if v.policy.Allows(p.SubmitterRole, p.Operation) {
		return nil
	}
	return []Violation{{
		Rule:     "permission",
		Code:     "permission_denied",
		Severity: rules.SeverityBlocking,
		Message:  fmt.Sprintf("role %s is not permitted to perform %s", p.SubmitterRole, p.Operation),
	}}
}

// checkStructure emits format advisories. Shape requirements are enforced
// before classification; everything here is a warning.
func (v *Validator) checkStructure(p *proposal.Proposal) []Violation {
	var violations []Violation

	if id := p.Payload.EntityID; id != "" {
		if len(id) > maxEntityIDLength {
			violations = append(violations, Violation{
				Rule:     "id_format",
				Code:     "validation_failure",
				Severity: rules.SeverityWarning,
				Message:  fmt.Sprintf("entity id exceeds %d characters", maxEntityIDLength),
			})
		}
		if strings.Contains(id, " ") {
			violations = append(violations, Violation{
				Rule:     "id_format",
				Code:     "validation_failure",
				Severity: rules.SeverityWarning,
				Message:  "entity id contains spaces",
			})
		}
		if strings.ContainsAny(id, idSpecialCharacters) {
			violations = append(violations, Violation{
				Rule:     "id_format",
				Code:     "validation_failure",
				Severity: rules.SeverityWarning,
				Message:  "entity id contains special characters",
			})
		}
	}

	for key, value := range p.Payload.Properties {
		if reservedPropertyKeys[strings.ToLower(key)] {
			violations = append(violations, Violation{
				Rule:     "property_structure",
				Code:     "validation_failure",
				Severity: rules.SeverityWarning,
				Message:  fmt.Sprintf("property key %q is reserved", key),
			})
		}
		if value == nil {
			violations = append(violations, Violation{
				Rule:     "property_structure",
				Code:     "validation_failure",
				Severity: rules.SeverityWarning,
				Message:  fmt.Sprintf("property %q has a null value", key),
			})
		}
		if s, ok := value.(string); ok && len(s) > maxPropertyValueSize {
			violations = append(violations, Violation{
				Rule:     "property_structure",
				Code:     "validation_failure",
				Severity: rules.SeverityWarning,
				Message:  fmt.Sprintf("property %q value exceeds %d characters", key, maxPropertyValueSize),
			})
		}
	}

	if p.Operation == proposal.OpCreateRelationship && genericRelTypes[strings.ToLower(p.Payload.RelType)] {
		violations = append(violations, Violation{
			Rule:     "relationship_type",
			Code:     "validation_failure",
			Severity: rules.SeverityWarning,
			Message:  fmt.Sprintf("relationship type %q is generic; prefer a specific type", p.Payload.RelType),
		})
	}

	return violations
}

// checkReferences enforces the hard referential invariant: relationship
// endpoints and update/delete targets must exist in the snapshot.
func (v *Validator) checkReferences(p *proposal.Proposal, snap graphstore.Snapshot) []Violation {
	var violations []Violation

	missing := func(id, role string) Violation {
		return Violation{
			Rule:     "referential",
			Code:     "validation_failure",
			Severity: rules.SeverityBlocking,
			Message:  fmt.Sprintf("%s %q does not exist", role, id),
		}
	}

	switch p.Operation {
	case proposal.OpUpdateEntity, proposal.OpDeleteEntity:
		if _, ok := snap.Entity(p.Payload.EntityID); !ok {
			violations = append(violations, missing(p.Payload.EntityID, "entity"))
		}
	case proposal.OpCreateRelationship, proposal.OpDeleteRelationship:
		if _, ok := snap.Entity(p.Payload.SourceID); !ok {
			violations = append(violations, missing(p.Payload.SourceID, "source entity"))
		}
		if _, ok := snap.Entity(p.Payload.TargetID); !ok {
			violations = append(violations, missing(p.Payload.TargetID, "target entity"))
		}
	}

	return violations
}

func (v *Validator) checkBusinessRules(p *proposal.Proposal) []Violation {
	var violations []Violation

	for _, rule := range v.rules.BusinessRules {
		if !rule.AppliesToOperation(p.Operation) {
			continue
		}
		if rule.EntityType != "" && rule.EntityType != p.Payload.EntityType {
			continue
		}
		value, ok := p.Payload.Properties[rule.Property]
		if !ok {
			continue
		}

		switch rule.Kind {
		case rules.KindNumericRange:
			number, ok := asFloat(value)
			if !ok {
				violations = append(violations, Violation{
					Rule:     rule.ID,
					Code:     "validation_failure",
					Severity: rule.Severity,
					Message:  fmt.Sprintf("property %q must be numeric", rule.Property),
				})
				continue
			}
			if rule.Min != nil && number < *rule.Min {
				violations = append(violations, Violation{
					Rule:     rule.ID,
					Code:     "validation_failure",
					Severity: rule.Severity,
					Message:  fmt.Sprintf("property %q below minimum %v", rule.Property, *rule.Min),
				})
			}
			if rule.Max != nil && number > *rule.Max {
				violations = append(violations, Violation{
					Rule:     rule.ID,
					Code:     "validation_failure",
					Severity: rule.Severity,
					Message:  fmt.Sprintf("property %q above maximum %v", rule.Property, *rule.Max),
				})
			}
		case rules.KindDateNotFuture:
			parsed, ok := asTime(value)
			if !ok {
				violations = append(violations, Violation{
					Rule:     rule.ID,
					Code:     "validation_failure",
					Severity: rule.Severity,
					Message:  fmt.Sprintf("property %q is not a recognized date", rule.Property),
				})
				continue
			}
			if parsed.After(time.Now()) {
				violations = append(violations, Violation{
					Rule:     rule.ID,
					Code:     "validation_failure",
					Severity: rule.Severity,
					Message:  fmt.Sprintf("property %q is in the future", rule.Property),
				})
			}
		}
	}

	return violations
}

func asFloat(value any) (float64, bool) {
	switch n := value.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	}
	return 0, false
}

func asTime(value any) (time.Time, bool) {
	s, ok := value.(string)
	if !ok {
		return time.Time{}, false
	}
	for _, layout := range []string{time.RFC3339, "2006-01-02"} {
		if parsed, err := time.Parse(layout, s); err == nil {
			return parsed, true
		}
	}
	return time.Time{}, false
}
