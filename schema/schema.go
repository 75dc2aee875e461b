// Package schema describes the static model schema the engine compiles
// queries against: models, scalar fields, relations and unique constraints.
//
// A Schema is built once with Build (or loaded with LoadYAML) and is
// immutable afterwards; it is safe to share between goroutines.
package schema

import (
	"fmt"
	"strings"
)

// ScalarType is the type of a scalar field.
type ScalarType string

// Scalar types.
const (
	String   ScalarType = "String"
	Int      ScalarType = "Int"
	BigInt   ScalarType = "BigInt"
	Float    ScalarType = "Float"
	Decimal  ScalarType = "Decimal"
	Boolean  ScalarType = "Boolean"
	DateTime ScalarType = "DateTime"
	Json     ScalarType = "Json"
	Bytes    ScalarType = "Bytes"
	Enum     ScalarType = "Enum"
)

func (t ScalarType) valid() bool {
	switch t {
	case String, Int, BigInt, Float, Decimal, Boolean, DateTime, Json, Bytes, Enum:
		return true
	}
	return false
}

// Numeric reports whether values of t support arithmetic and sum/avg.
func (t ScalarType) Numeric() bool {
	switch t {
	case Int, BigInt, Float, Decimal:
		return true
	}
	return false
}

// Orderable reports whether values of t can be compared with lt/gt and sorted.
func (t ScalarType) Orderable() bool {
	switch t {
	case String, Int, BigInt, Float, Decimal, DateTime, Enum:
		return true
	}
	return false
}

// DefaultKind selects how a default value is produced.
type DefaultKind int

const (
	// DefaultAutoincrement leaves the value to the store's sequence.
	DefaultAutoincrement DefaultKind = iota + 1
	// DefaultUUID generates a random UUID on the client.
	DefaultUUID
	// DefaultNow stamps the current time on the client.
	DefaultNow
	// DefaultValue uses Default.Value.
	DefaultValue
)

// Default describes a field default.
type Default struct {
	Kind  DefaultKind
	Value any
}

// Field is a scalar field of a model.
type Field struct {
	Name   string
	Column string
	Type   ScalarType

	Nullable bool
	// IsID marks the field as (part of) the primary key when Model.PrimaryKey is empty.
	IsID bool
	// Unique adds a single-field unique constraint.
	Unique    bool
	Default   *Default
	UpdatedAt bool

	EnumValues []string
}

// Required reports whether a create payload must supply the field.
func (f *Field) Required() bool {
	return !f.Nullable && f.Default == nil && !f.UpdatedAt
}

// HasEnumValue reports whether v is a member of the field's enum.
func (f *Field) HasEnumValue(v string) bool {
	for _, e := range f.EnumValues {
		if e == v {
			return true
		}
	}
	return false
}

// Cardinality is the multiplicity of a relation field.
type Cardinality int

const (
	// One is a to-one relation.
	One Cardinality = iota
	// Many is a to-many relation.
	Many
)

func (c Cardinality) String() string {
	if c == Many {
		return "many"
	}
	return "one"
}

// ReferentialAction is applied to related records when the referenced record is deleted.
type ReferentialAction string

// Referential actions.
const (
	NoAction ReferentialAction = "NoAction"
	Cascade  ReferentialAction = "Cascade"
	SetNull  ReferentialAction = "SetNull"
	Restrict ReferentialAction = "Restrict"
)

// Relation is a relation field of a model.
//
// The owning side carries the foreign key: Fields names the local foreign key
// fields and References the referenced fields on Target. The other side
// leaves both empty and is paired with the owning side by RelationName, or by
// model pair when only one relation connects the two models.
type Relation struct {
	Name         string
	Target       string
	Cardinality  Cardinality
	RelationName string
	Fields       []string
	References   []string
	OnDelete     ReferentialAction

	model      *Model
	target     *Model
	opposite   *Relation
	localKeys  []*Field
	targetKeys []*Field
}

// Model returns the model declaring the relation.
func (r *Relation) Model() *Model { return r.model }

// TargetModel returns the related model.
func (r *Relation) TargetModel() *Model { return r.target }

// Opposite returns the back-relation on the target model.
func (r *Relation) Opposite() *Relation { return r.opposite }

// IsList reports whether the relation holds many records.
func (r *Relation) IsList() bool { return r.Cardinality == Many }

// IsOwning reports whether the foreign key lives on the declaring model.
func (r *Relation) IsOwning() bool { return len(r.Fields) > 0 }

// LocalKeys are the fields of the declaring model that join to TargetKeys.
func (r *Relation) LocalKeys() []*Field { return r.localKeys }

// TargetKeys are the fields of the target model that join to LocalKeys.
func (r *Relation) TargetKeys() []*Field { return r.targetKeys }

// Optional reports whether an owning to-one relation may be absent.
func (r *Relation) Optional() bool {
	for _, f := range r.localKeys {
		if f.Nullable {
			return true
		}
	}
	return !r.IsOwning()
}

// UniqueConstraint is a single or composite unique key.
type UniqueConstraint struct {
	Name   string
	Fields []string
}

// Covers reports whether the constraint consists of exactly the given fields.
func (u UniqueConstraint) Covers(fields []string) bool {
	if len(u.Fields) != len(fields) {
		return false
	}
	set := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		set[f] = struct{}{}
	}
	for _, f := range u.Fields {
		if _, ok := set[f]; !ok {
			return false
		}
	}
	return true
}

// Model is an entity backed by one table.
type Model struct {
	Name       string
	Table      string
	Fields     []*Field
	Relations  []*Relation
	PrimaryKey []string
	Uniques    []UniqueConstraint

	fields    map[string]*Field
	columns   map[string]*Field
	relations map[string]*Relation
	pk        []*Field
	// unique constraints with the primary key first
	constraints []UniqueConstraint
}

// Field looks up a scalar field by name.
func (m *Model) Field(name string) (*Field, bool) {
	f, ok := m.fields[name]
	return f, ok
}

// FieldByColumn looks up a scalar field by column name.
func (m *Model) FieldByColumn(column string) (*Field, bool) {
	f, ok := m.columns[column]
	return f, ok
}

// Relation looks up a relation field by name.
func (m *Model) Relation(name string) (*Relation, bool) {
	r, ok := m.relations[name]
	return r, ok
}

// PrimaryKeyFields returns the primary key fields in declaration order.
func (m *Model) PrimaryKeyFields() []*Field { return m.pk }

// IsPrimaryKey reports whether field is part of the primary key.
func (m *Model) IsPrimaryKey(name string) bool {
	for _, f := range m.pk {
		if f.Name == name {
			return true
		}
	}
	return false
}

// Constraints returns every unique constraint, the primary key first.
func (m *Model) Constraints() []UniqueConstraint { return m.constraints }

// ConstraintCovering returns the unique constraint made of exactly fields.
func (m *Model) ConstraintCovering(fields []string) (UniqueConstraint, bool) {
	for _, u := range m.constraints {
		if u.Covers(fields) {
			return u, true
		}
	}
	return UniqueConstraint{}, false
}

// ConstraintByName returns the unique constraint with the given name.
func (m *Model) ConstraintByName(name string) (UniqueConstraint, bool) {
	for _, u := range m.constraints {
		if strings.EqualFold(u.Name, name) {
			return u, true
		}
	}
	return UniqueConstraint{}, false
}

// ConstraintByColumns returns the unique constraint over exactly the given columns.
func (m *Model) ConstraintByColumns(columns []string) (UniqueConstraint, bool) {
	names := make([]string, 0, len(columns))
	for _, c := range columns {
		f, ok := m.columns[c]
		if !ok {
			return UniqueConstraint{}, false
		}
		names = append(names, f.Name)
	}
	return m.ConstraintCovering(names)
}

// Schema is a validated, immutable set of models.
type Schema struct {
	Version string

	models []*Model
	byName map[string]*Model
}

// Model looks up a model by name.
func (s *Schema) Model(name string) (*Model, bool) {
	m, ok := s.byName[name]
	return m, ok
}

// MustModel looks up a model by name and panics when it does not exist.
func (s *Schema) MustModel(name string) *Model {
	m, ok := s.byName[name]
	if !ok {
		panic(fmt.Sprintf("schema: unknown model %q", name))
	}
	return m
}

// Models returns the models in declaration order.
func (s *Schema) Models() []*Model { return s.models }
