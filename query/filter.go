// Package query defines the structured descriptors callers hand to the
// engine: filter trees, selections, ordering, pagination, aggregation
// directives and mutation payloads, plus the record types results come back as.
package query

import (
	"encoding/json"
)

// Operator is a leaf predicate operator.
type Operator string

// Leaf operators.
const (
	Equals     Operator = "equals"
	NotEquals  Operator = "not"
	Lt         Operator = "lt"
	Lte        Operator = "lte"
	Gt         Operator = "gt"
	Gte        Operator = "gte"
	In         Operator = "in"
	NotIn      Operator = "notIn"
	Contains   Operator = "contains"
	StartsWith Operator = "startsWith"
	EndsWith   Operator = "endsWith"
	IsNull     Operator = "isNull"
)

// Mode is the case-sensitivity of string predicates.
type Mode int

const (
	// Sensitive compares strings exactly. It is the default.
	Sensitive Mode = iota
	// Insensitive compares strings ignoring case.
	Insensitive
)

// Quantifier scopes a nested filter over related records.
type Quantifier string

// Relation quantifiers. Some, Every and None apply to to-many relations,
// Is and IsNot to to-one relations.
const (
	Some  Quantifier = "some"
	Every Quantifier = "every"
	None  Quantifier = "none"
	Is    Quantifier = "is"
	IsNot Quantifier = "isNot"
)

// AggregateFunc is an aggregate over a field.
type AggregateFunc string

// Aggregate functions.
const (
	CountAgg AggregateFunc = "_count"
	SumAgg   AggregateFunc = "_sum"
	AvgAgg   AggregateFunc = "_avg"
	MinAgg   AggregateFunc = "_min"
	MaxAgg   AggregateFunc = "_max"
)

// Filter is a node of a filter tree: Leaf, And, Or, Not or Relation.
type Filter interface {
	isFilter()
}

// Leaf is a predicate on one field.
type Leaf struct {
	Field string
	Op    Operator
	Value any
	Mode  Mode
	// Path selects a value inside a Json field.
	Path []string
	// Aggregate compares an aggregate of Field; only valid in groupBy having.
	Aggregate AggregateFunc
}

// And matches when every child matches. An empty And matches everything.
type And []Filter

// Or matches when any child matches. An empty Or matches nothing.
type Or []Filter

// Not matches when its child does not.
type Not struct {
	Filter Filter
}

// Relation applies a filter to the records related through Field.
type Relation struct {
	Field      string
	Quantifier Quantifier
	Where      Filter
}

func (Leaf) isFilter()     {}
func (And) isFilter()      {}
func (Or) isFilter()       {}
func (Not) isFilter()      {}
func (Relation) isFilter() {}

// Where builds a leaf predicate.
func Where(field string, op Operator, value any) Leaf {
	return Leaf{Field: field, Op: op, Value: value}
}

// Eq matches records whose field equals value. A nil value matches NULL.
func Eq(field string, value any) Leaf { return Where(field, Equals, value) }

// Ne matches records whose field differs from value.
func Ne(field string, value any) Leaf { return Where(field, NotEquals, value) }

// OneOf matches records whose field is one of values.
func OneOf(field string, values ...any) Leaf { return Where(field, In, values) }

// NoneOf matches records whose field is none of values.
func NoneOf(field string, values ...any) Leaf { return Where(field, NotIn, values) }

// Null matches records whose field is NULL.
func Null(field string) Leaf { return Where(field, IsNull, true) }

// NotNull matches records whose field is not NULL.
func NotNull(field string) Leaf { return Where(field, IsNull, false) }

// HasSubstring matches records whose field contains s.
func HasSubstring(field, s string) Leaf { return Where(field, Contains, s) }

// HasPrefix matches records whose field starts with s.
func HasPrefix(field, s string) Leaf { return Where(field, StartsWith, s) }

// HasSuffix matches records whose field ends with s.
func HasSuffix(field, s string) Leaf { return Where(field, EndsWith, s) }

// JSONPath compares the text at path inside a Json field.
func JSONPath(field string, path []string, op Operator, value any) Leaf {
	return Leaf{Field: field, Op: op, Value: value, Path: path}
}

// Fold returns a copy of the leaf that compares case-insensitively.
func (l Leaf) Fold() Leaf {
	l.Mode = Insensitive
	return l
}

// SomeOf matches records with at least one related record matching where.
func SomeOf(relation string, where Filter) Relation {
	return Relation{Field: relation, Quantifier: Some, Where: where}
}

// EveryOf matches records whose related records all match where.
func EveryOf(relation string, where Filter) Relation {
	return Relation{Field: relation, Quantifier: Every, Where: where}
}

// NoneOfRelated matches records with no related record matching where.
func NoneOfRelated(relation string, where Filter) Relation {
	return Relation{Field: relation, Quantifier: None, Where: where}
}

// RelatedIs matches records whose to-one related record matches where.
func RelatedIs(relation string, where Filter) Relation {
	return Relation{Field: relation, Quantifier: Is, Where: where}
}

// RelatedIsNot matches records whose to-one related record is absent or does not match where.
func RelatedIsNot(relation string, where Filter) Relation {
	return Relation{Field: relation, Quantifier: IsNot, Where: where}
}

// MarshalJSON renders the leaf in the where-input shape, e.g. {"email":{"contains":"x"}}.
func (l Leaf) MarshalJSON() ([]byte, error) {
	cond := map[string]any{string(l.Op): l.Value}
	if l.Mode == Insensitive {
		cond["mode"] = "insensitive"
	}
	if len(l.Path) > 0 {
		cond["path"] = l.Path
	}
	if l.Aggregate != "" {
		return json.Marshal(map[string]any{l.Field: map[string]any{string(l.Aggregate): cond}})
	}
	return json.Marshal(map[string]any{l.Field: cond})
}

// MarshalJSON renders {"AND":[...]}.
func (a And) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Filter{"AND": a})
}

// MarshalJSON renders {"OR":[...]}.
func (o Or) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string][]Filter{"OR": o})
}

// MarshalJSON renders {"NOT":...}.
func (n Not) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]Filter{"NOT": n.Filter})
}

// MarshalJSON renders {"bookings":{"some":...}}.
func (r Relation) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]any{r.Field: map[string]Filter{string(r.Quantifier): r.Where}})
}
