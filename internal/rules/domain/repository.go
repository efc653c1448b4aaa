package domain

import (
	"context"

	"github.com/felixgeelhaar/meridian/internal/valuetype"
)

// RuleRepository persists the rule catalog. Implementations (see
// internal/rules/infrastructure/persistence) are responsible for durable,
// crash-safe storage; the domain layer only depends on this interface.
type RuleRepository interface {
	// Get returns a single rule by id. ok is false if no such rule exists.
	Get(ctx context.Context, id valuetype.RuleID) (Rule, bool, error)

	// List returns every rule. The order is up to the implementation;
	// FileRuleStore returns rules ordered by rule id, not by insertion.
	List(ctx context.Context) ([]Rule, error)

	// Save inserts or overwrites a rule.
	Save(ctx context.Context, r Rule) error

	// Delete removes a rule by id. Deleting a rule that does not exist is
	// not an error.
	Delete(ctx context.Context, id valuetype.RuleID) error
}
