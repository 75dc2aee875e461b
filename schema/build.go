package schema

import (
	"fmt"
	"sort"
	"strings"

	version "github.com/hashicorp/go-version"
)

// SupportedVersions is the range of schema description versions this engine reads.
const SupportedVersions = ">= 1.0, < 2.0"

var supported = version.MustConstraints(version.NewConstraint(SupportedVersions))

// Build validates the models, resolves relations and returns an immutable schema.
// The models are owned by the schema afterwards and must not be modified.
func Build(ver string, models ...*Model) (*Schema, error) {
	if err := checkVersion(ver); err != nil {
		return nil, err
	}

	s := &Schema{
		Version: ver,
		models:  models,
		byName:  make(map[string]*Model, len(models)),
	}

	for _, m := range models {
		if m.Name == "" {
			return nil, fmt.Errorf("schema: model without a name")
		}
		if _, dup := s.byName[m.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate model %q", m.Name)
		}
		s.byName[m.Name] = m
		if err := indexModel(m); err != nil {
			return nil, err
		}
	}

	for _, m := range models {
		for _, r := range m.Relations {
			if err := s.resolveOwning(m, r); err != nil {
				return nil, err
			}
		}
	}
	for _, m := range models {
		for _, r := range m.Relations {
			if r.IsOwning() {
				continue
			}
			if err := s.resolveInverse(m, r); err != nil {
				return nil, err
			}
		}
	}

	return s, nil
}

func checkVersion(ver string) error {
	v, err := version.NewVersion(ver)
	if err != nil {
		return fmt.Errorf("schema: invalid version %q: %w", ver, err)
	}
	if !supported.Check(v) {
		return fmt.Errorf("schema: version %s is outside the supported range %s", v, SupportedVersions)
	}
	return nil
}

func indexModel(m *Model) error {
	if m.Table == "" {
		m.Table = m.Name
	}
	m.fields = make(map[string]*Field, len(m.Fields))
	m.columns = make(map[string]*Field, len(m.Fields))
	m.relations = make(map[string]*Relation, len(m.Relations))

	for _, f := range m.Fields {
		if f.Name == "" {
			return fmt.Errorf("schema: model %s has a field without a name", m.Name)
		}
		if _, dup := m.fields[f.Name]; dup {
			return fmt.Errorf("schema: duplicate field %s.%s", m.Name, f.Name)
		}
		if !f.Type.valid() {
			return fmt.Errorf("schema: field %s.%s has unknown type %q", m.Name, f.Name, f.Type)
		}
		if f.Type == Enum && len(f.EnumValues) == 0 {
			return fmt.Errorf("schema: enum field %s.%s declares no values", m.Name, f.Name)
		}
		if f.UpdatedAt && f.Type != DateTime {
			return fmt.Errorf("schema: updatedAt field %s.%s must be a DateTime", m.Name, f.Name)
		}
		if d := f.Default; d != nil {
			if d.Kind == DefaultAutoincrement && f.Type != Int && f.Type != BigInt {
				return fmt.Errorf("schema: autoincrement field %s.%s must be an integer", m.Name, f.Name)
			}
			if d.Kind == DefaultUUID && f.Type != String {
				return fmt.Errorf("schema: uuid field %s.%s must be a String", m.Name, f.Name)
			}
			if d.Kind == DefaultNow && f.Type != DateTime {
				return fmt.Errorf("schema: now() field %s.%s must be a DateTime", m.Name, f.Name)
			}
		}
		if f.Column == "" {
			f.Column = f.Name
		}
		m.fields[f.Name] = f
		m.columns[f.Column] = f
	}

	for _, r := range m.Relations {
		if _, dup := m.fields[r.Name]; dup {
			return fmt.Errorf("schema: relation %s.%s shadows a scalar field", m.Name, r.Name)
		}
		if _, dup := m.relations[r.Name]; dup {
			return fmt.Errorf("schema: duplicate relation %s.%s", m.Name, r.Name)
		}
		if r.OnDelete == "" {
			r.OnDelete = NoAction
		}
		r.model = m
		m.relations[r.Name] = r
	}

	pkNames := m.PrimaryKey
	if len(pkNames) == 0 {
		for _, f := range m.Fields {
			if f.IsID {
				pkNames = append(pkNames, f.Name)
			}
		}
	}
	if len(pkNames) == 0 {
		return fmt.Errorf("schema: model %s has no primary key", m.Name)
	}
	m.PrimaryKey = pkNames
	m.pk = m.pk[:0]
	for _, name := range pkNames {
		f, ok := m.fields[name]
		if !ok {
			return fmt.Errorf("schema: primary key of %s references unknown field %q", m.Name, name)
		}
		if f.Nullable {
			return fmt.Errorf("schema: primary key field %s.%s cannot be nullable", m.Name, name)
		}
		m.pk = append(m.pk, f)
	}

	m.constraints = []UniqueConstraint{{Name: m.Table + "_pkey", Fields: pkNames}}
	for _, f := range m.Fields {
		if f.Unique {
			m.constraints = append(m.constraints, UniqueConstraint{
				Name:   constraintName(m, []string{f.Name}),
				Fields: []string{f.Name},
			})
		}
	}
	for _, u := range m.Uniques {
		if len(u.Fields) == 0 {
			return fmt.Errorf("schema: unique constraint on %s has no fields", m.Name)
		}
		for _, name := range u.Fields {
			if _, ok := m.fields[name]; !ok {
				return fmt.Errorf("schema: unique constraint on %s references unknown field %q", m.Name, name)
			}
		}
		if u.Name == "" {
			u.Name = constraintName(m, u.Fields)
		}
		m.constraints = append(m.constraints, u)
	}
	return nil
}

// constraintName follows the <table>_<columns>_key naming used by migrations.
func constraintName(m *Model, fields []string) string {
	cols := make([]string, 0, len(fields))
	for _, name := range fields {
		cols = append(cols, m.fields[name].Column)
	}
	return m.Table + "_" + strings.Join(cols, "_") + "_key"
}

func (s *Schema) resolveOwning(m *Model, r *Relation) error {
	target, ok := s.byName[r.Target]
	if !ok {
		return fmt.Errorf("schema: relation %s.%s targets unknown model %q", m.Name, r.Name, r.Target)
	}
	r.target = target
	if !r.IsOwning() {
		if len(r.References) > 0 {
			return fmt.Errorf("schema: relation %s.%s has references but no fields", m.Name, r.Name)
		}
		return nil
	}
	if r.Cardinality != One {
		return fmt.Errorf("schema: relation %s.%s holds the foreign key and must be to-one", m.Name, r.Name)
	}
	if len(r.Fields) != len(r.References) {
		return fmt.Errorf("schema: relation %s.%s has %d fields but %d references",
			m.Name, r.Name, len(r.Fields), len(r.References))
	}
	r.localKeys = make([]*Field, len(r.Fields))
	r.targetKeys = make([]*Field, len(r.References))
	for i := range r.Fields {
		lf, ok := m.fields[r.Fields[i]]
		if !ok {
			return fmt.Errorf("schema: relation %s.%s references unknown field %q", m.Name, r.Name, r.Fields[i])
		}
		tf, ok := target.fields[r.References[i]]
		if !ok {
			return fmt.Errorf("schema: relation %s.%s references unknown field %s.%s",
				m.Name, r.Name, target.Name, r.References[i])
		}
		if !compatible(lf.Type, tf.Type) {
			return fmt.Errorf("schema: relation %s.%s joins %s (%s) to %s.%s (%s)",
				m.Name, r.Name, lf.Name, lf.Type, target.Name, tf.Name, tf.Type)
		}
		r.localKeys[i] = lf
		r.targetKeys[i] = tf
	}
	if _, ok := target.ConstraintCovering(r.References); !ok {
		return fmt.Errorf("schema: relation %s.%s must reference a unique key of %s", m.Name, r.Name, target.Name)
	}
	return nil
}

func (s *Schema) resolveInverse(m *Model, r *Relation) error {
	target := r.target
	var candidates []*Relation
	for _, o := range target.Relations {
		if o == r || !o.IsOwning() || o.target != m {
			continue
		}
		if r.RelationName != "" || o.RelationName != "" {
			if r.RelationName != o.RelationName {
				continue
			}
		}
		candidates = append(candidates, o)
	}
	switch len(candidates) {
	case 0:
		return fmt.Errorf("schema: relation %s.%s has no owning side on %s", m.Name, r.Name, target.Name)
	case 1:
	default:
		names := make([]string, 0, len(candidates))
		for _, c := range candidates {
			names = append(names, c.Name)
		}
		sort.Strings(names)
		return fmt.Errorf("schema: relation %s.%s is ambiguous between %s.%s; set RelationName",
			m.Name, r.Name, target.Name, strings.Join(names, ", "))
	}

	owner := candidates[0]
	if owner.opposite != nil {
		return fmt.Errorf("schema: relation %s.%s is already paired with %s.%s",
			target.Name, owner.Name, owner.opposite.model.Name, owner.opposite.Name)
	}
	if r.Cardinality == One {
		if _, ok := target.ConstraintCovering(owner.Fields); !ok {
			return fmt.Errorf("schema: to-one relation %s.%s requires %s.%v to be unique",
				m.Name, r.Name, target.Name, owner.Fields)
		}
	}
	owner.opposite = r
	r.opposite = owner
	r.localKeys = owner.targetKeys
	r.targetKeys = owner.localKeys
	return nil
}

func compatible(a, b ScalarType) bool {
	if a == b {
		return true
	}
	ints := func(t ScalarType) bool { return t == Int || t == BigInt }
	return ints(a) && ints(b)
}
