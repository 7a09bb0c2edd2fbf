package resource

import "fmt"

// FieldType classifies an attribute for operand validation and value coercion.
type FieldType string

const (
	FieldString  FieldType = "string"
	FieldNumber  FieldType = "number"
	FieldBoolean FieldType = "boolean"
	FieldDate    FieldType = "date"
	FieldArray   FieldType = "array"
	FieldObject  FieldType = "object"
)

// Operand is a filter operator.
type Operand string

const (
	OpEq     Operand = "eq"
	OpNe     Operand = "ne"
	OpGt     Operand = "gt"
	OpGte    Operand = "gte"
	OpLt     Operand = "lt"
	OpLte    Operand = "lte"
	OpLike   Operand = "like"
	OpIn     Operand = "in"
	OpNin    Operand = "nin"
	OpSome   Operand = "some"
	OpRegexp Operand = "regexp"
)

// Operands lists every supported operand.
var Operands = []Operand{OpEq, OpNe, OpGt, OpGte, OpLt, OpLte, OpLike, OpIn, OpNin, OpSome, OpRegexp}

// ParseOperand returns the Operand named s.
func ParseOperand(s string) (Operand, error) {
	for _, op := range Operands {
		if string(op) == s {
			return op, nil
		}
	}
	return "", fmt.Errorf("unknown operand %q", s)
}

// IsList reports whether the operand takes a list of values.
func (o Operand) IsList() bool {
	return o == OpIn || o == OpNin || o == OpSome
}

// NullLiteral is the filter value that turns eq/ne into IS [NOT] NULL checks.
const NullLiteral = "null"

// Cardinality tells whether a relation yields one entity or a collection.
type Cardinality int

const (
	One Cardinality = iota + 1
	Many
)

func (c Cardinality) String() string {
	switch c {
	case One:
		return "one"
	case Many:
		return "many"
	default:
		return "unknown"
	}
}

// Ownership tells which table holds the foreign key of a relation.
type Ownership int

const (
	// OwnerSelf: the foreign key column lives on the entity declaring the relation.
	OwnerSelf Ownership = iota + 1
	// OwnerTarget: the foreign key column lives on the related entity.
	OwnerTarget
	// OwnerJoinTable: a separate join table references both sides.
	OwnerJoinTable
)

func (o Ownership) String() string {
	switch o {
	case OwnerSelf:
		return "self"
	case OwnerTarget:
		return "target"
	case OwnerJoinTable:
		return "joinTable"
	default:
		return "unknown"
	}
}

// Direction is a sort direction.
type Direction string

const (
	Asc  Direction = "ASC"
	Desc Direction = "DESC"
)

func (c Cardinality) MarshalText() ([]byte, error) { return []byte(c.String()), nil }

func (o Ownership) MarshalText() ([]byte, error) { return []byte(o.String()), nil }
