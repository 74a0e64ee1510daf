// Package policy maps roles to their permitted graph operations. The table
// is supplied at startup and never mutated at runtime.
package policy

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/concord-kg/concord/domain/proposal"
)

// Policy is an immutable role → permitted-operation table.
type Policy struct {
	permitted map[proposal.Role]map[proposal.Operation]bool
}

// Default returns the built-in role policy: every role may create and
// update entities, relationship operations require the knowledge manager or
// system admin, and entity deletion requires the system admin.
func Default() *Policy {
	return FromTable(map[proposal.Role][]proposal.Operation{
		proposal.RoleDataArchitect: {
			proposal.OpCreateEntity,
			proposal.OpUpdateEntity,
		},
		proposal.RoleDataEngineer: {
			proposal.OpCreateEntity,
			proposal.OpUpdateEntity,
		},
		proposal.RoleKnowledgeManager: {
			proposal.OpCreateEntity,
			proposal.OpUpdateEntity,
			proposal.OpCreateRelationship,
			proposal.OpDeleteRelationship,
		},
		proposal.RoleSystemAdmin: {
			proposal.OpCreateEntity,
			proposal.OpUpdateEntity,
			proposal.OpDeleteEntity,
			proposal.OpCreateRelationship,
			proposal.OpDeleteRelationship,
		},
	})
}

// FromTable builds a policy from an explicit table.
func FromTable(table map[proposal.Role][]proposal.Operation) *Policy {
	permitted := make(map[proposal.Role]map[proposal.Operation]bool, len(table))
	for role, ops := range table {
		set := make(map[proposal.Operation]bool, len(ops))
		for _, op := range ops {
			set[op] = true
		}
		permitted[role] = set
	}
	return &Policy{permitted: permitted}
}

// Load reads a role policy from a YAML file mapping role names to operation
// lists. An empty path returns Default().
func Load(path string) (*Policy, error) {
	if path == "" {
		return Default(), nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read role policy: %w", err)
	}

	var raw map[proposal.Role][]proposal.Operation
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse role policy: %w", err)
	}

	for role, ops := range raw {
		if !role.Known() {
			return nil, fmt.Errorf("role policy %s: unknown role %q", path, role)
		}
		for _, op := range ops {
			if !op.Known() {
				return nil, fmt.Errorf("role policy %s: role %q: unknown operation %q", path, role, op)
			}
		}
	}

	return FromTable(raw), nil
}

// Allows reports whether role may perform op.
func (p *Policy) Allows(role proposal.Role, op proposal.Operation) bool {
	ops, ok := p.permitted[role]
	if !ok {
		return false
	}
	return ops[op]
}

// Permitted returns the operations role may perform, in declaration order
// of proposal.Operations.
func (p *Policy) Permitted(role proposal.Role) []proposal.Operation {
	ops, ok := p.permitted[role]
	if !ok {
		return nil
	}
	var result []proposal.Operation
	for _, op := range proposal.Operations {
		if ops[op] {
			result = append(result, op)
		}
	}
	return result
}
