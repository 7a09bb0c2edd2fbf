package planner

import "github.com/edgeflare/pgjsonapi/pkg/resource"

// JoinStrategy is how a relation is reached from the root entity when
// compiling a predicate on it.
type JoinStrategy int

const (
	// ForeignKeyCheck tests the root's own foreign key column; no join.
	ForeignKeyCheck JoinStrategy = iota + 1
	// DirectJoin joins the relation under its own alias and predicates
	// reference that alias.
	DirectJoin
	// ExistsSubquery correlates a [NOT] EXISTS subquery on the root key.
	ExistsSubquery
	// CorrelatedInSubquery restricts the root key to the keys produced by
	// one subquery over the join table that ANDs every condition on the
	// relation, so multiple conditions never need multiple joins.
	CorrelatedInSubquery
)

func (s JoinStrategy) String() string {
	switch s {
	case ForeignKeyCheck:
		return "ForeignKeyCheck"
	case DirectJoin:
		return "DirectJoin"
	case ExistsSubquery:
		return "ExistsSubquery"
	case CorrelatedInSubquery:
		return "CorrelatedInSubquery"
	default:
		return "Unknown"
	}
}

// RelationStrategy holds the strategies selected once for a relation.
type RelationStrategy struct {
	// Null compiles eq/ne null checks on the relation itself.
	Null JoinStrategy
	// Field compiles conditions on attributes of the related entity.
	Field JoinStrategy
}

// StrategyFor selects the strategies of rel from its cardinality and
// foreign key ownership.
func StrategyFor(rel *resource.Relation) RelationStrategy {
	switch rel.Owner {
	case resource.OwnerSelf:
		return RelationStrategy{Null: ForeignKeyCheck, Field: DirectJoin}
	case resource.OwnerJoinTable:
		return RelationStrategy{Null: ExistsSubquery, Field: CorrelatedInSubquery}
	default:
		return RelationStrategy{Null: ExistsSubquery, Field: DirectJoin}
	}
}
