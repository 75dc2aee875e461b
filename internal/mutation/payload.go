package mutation

import (
	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/compiler"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

// relationWrite is a nested write through one relation field.
type relationWrite struct {
	rel   *schema.Relation
	write query.RelationWrite
}

// payload is a validated mutation payload with canonical values.
type payload struct {
	model   *schema.Model
	values  map[string]any
	atomics map[string]query.Atomic
	// relations in declaration order
	relations []relationWrite
}

func (p *payload) nested() bool { return len(p.relations) > 0 }

// parse validates data against m. Atomic updates are only accepted when
// updating. from is the relation the record is being written through; the
// payload must not write it.
func parse(m *schema.Model, data query.Data, updating bool, from *schema.Relation) (*payload, error) {
	p := &payload{model: m, values: make(map[string]any, len(data)), atomics: map[string]query.Atomic{}}
	writes := make(map[string]query.RelationWrite)
	for name, v := range data {
		if fd, ok := m.Field(name); ok {
			if err := p.scalar(fd, v, updating); err != nil {
				return nil, err
			}
			continue
		}
		r, ok := m.Relation(name)
		if !ok {
			return nil, errs.Mismatch(m.Name, name, "unknown field in data")
		}
		if from != nil && r == from {
			return nil, errs.Mismatch(m.Name, name, "relation is already set by the enclosing write")
		}
		w, ok := relationValue(v)
		if !ok {
			return nil, errs.Mismatch(m.Name, name, "relation data must be a query.RelationWrite, got %T", v)
		}
		if err := checkWrite(m, r, w, updating); err != nil {
			return nil, err
		}
		writes[name] = w
	}
	for _, r := range m.Relations {
		if w, ok := writes[r.Name]; ok {
			p.relations = append(p.relations, relationWrite{rel: r, write: w})
			if r.IsOwning() {
				for _, k := range r.LocalKeys() {
					if _, set := p.values[k.Name]; set {
						return nil, errs.Mismatch(m.Name, k.Name, "foreign key is also set through relation %s", r.Name)
					}
				}
			}
		}
	}
	if from != nil && from.IsOwning() {
		for _, k := range from.LocalKeys() {
			if _, set := p.values[k.Name]; set {
				return nil, errs.Mismatch(m.Name, k.Name, "foreign key is set by the enclosing write")
			}
		}
	}
	return p, nil
}

func (p *payload) scalar(fd *schema.Field, v any, updating bool) error {
	m := p.model
	if a, ok := atomicValue(v); ok {
		if a.Op == query.Set {
			v = a.Value
		} else {
			if !updating {
				return errs.Mismatch(m.Name, fd.Name, "atomic %s is only valid in updates", a.Op)
			}
			if !fd.Type.Numeric() {
				return errs.Mismatch(m.Name, fd.Name, "atomic %s needs a numeric field, got %s", a.Op, fd.Type)
			}
			if m.IsPrimaryKey(fd.Name) {
				return errs.Mismatch(m.Name, fd.Name, "primary key fields cannot be updated atomically")
			}
			n, err := scalar.Normalize(fd.Type, a.Value)
			if err != nil {
				return errs.Mismatch(m.Name, fd.Name, "%v", err)
			}
			if n == nil {
				return errs.Mismatch(m.Name, fd.Name, "atomic %s needs a value", a.Op)
			}
			p.atomics[fd.Name] = query.Atomic{Op: a.Op, Value: n}
			return nil
		}
	}
	n, err := normalize(m, fd, v)
	if err != nil {
		return err
	}
	p.values[fd.Name] = n
	return nil
}

// normalize validates one scalar value: type, nullability and enum membership.
func normalize(m *schema.Model, fd *schema.Field, v any) (any, error) {
	n, err := scalar.Normalize(fd.Type, v)
	if err != nil {
		return nil, errs.Mismatch(m.Name, fd.Name, "%v", err)
	}
	if n == nil && !fd.Nullable {
		return nil, errs.Mismatch(m.Name, fd.Name, "field is required and cannot be null")
	}
	if s, ok := n.(string); ok && fd.Type == schema.Enum && !fd.HasEnumValue(s) {
		return nil, errs.Mismatch(m.Name, fd.Name, "%q is not a value of the enum", s)
	}
	return n, nil
}

func atomicValue(v any) (query.Atomic, bool) {
	switch a := v.(type) {
	case query.Atomic:
		return a, true
	case *query.Atomic:
		if a != nil {
			return *a, true
		}
	}
	return query.Atomic{}, false
}

func relationValue(v any) (query.RelationWrite, bool) {
	switch w := v.(type) {
	case query.RelationWrite:
		return w, true
	case *query.RelationWrite:
		if w != nil {
			return *w, true
		}
	}
	return query.RelationWrite{}, false
}

// checkWrite validates the shape of a nested write.
func checkWrite(m *schema.Model, r *schema.Relation, w query.RelationWrite, updating bool) error {
	links := len(w.Create) + len(w.Connect) + len(w.ConnectOrCreate)
	if !updating && (len(w.Disconnect) > 0 || w.DisconnectCurrent) {
		return errs.Mismatch(m.Name, r.Name, "disconnect is only valid in updates")
	}
	if r.IsList() {
		if w.DisconnectCurrent {
			return errs.Mismatch(m.Name, r.Name, "a to-many relation disconnects listed records")
		}
		return nil
	}
	if len(w.Disconnect) > 0 {
		return errs.Mismatch(m.Name, r.Name, "a to-one relation disconnects its current record")
	}
	if links > 1 {
		return errs.Mismatch(m.Name, r.Name, "a to-one relation takes a single create or connect")
	}
	if links > 0 && w.DisconnectCurrent {
		return errs.Mismatch(m.Name, r.Name, "cannot disconnect and link the same to-one relation")
	}
	if w.DisconnectCurrent && r.IsOwning() && !r.Optional() {
		return &errs.RelationViolationError{Model: m.Name, Relation: r.Name, Target: r.TargetModel().Name}
	}
	return nil
}

// createRow completes p into a full insert row: foreign keys from link,
// client-side defaults and updatedAt stamps. It fails when a required field
// is still missing.
func (e *Engine) createRow(p *payload, link map[string]any) (map[string]any, error) {
	m := p.model
	row := make(map[string]any, len(m.Fields))
	for k, v := range p.values {
		row[k] = v
	}
	for k, v := range link {
		row[k] = v
	}
	now := e.timestamp()
	for _, fd := range m.Fields {
		if _, set := row[fd.Name]; set {
			continue
		}
		switch {
		case fd.UpdatedAt:
			row[fd.Name] = now
		case fd.Default == nil:
		case fd.Default.Kind == schema.DefaultUUID:
			row[fd.Name] = e.newUUID()
		case fd.Default.Kind == schema.DefaultNow:
			row[fd.Name] = now
		case fd.Default.Kind == schema.DefaultValue:
			v, err := normalize(m, fd, fd.Default.Value)
			if err != nil {
				return nil, err
			}
			row[fd.Name] = v
		}
	}
	for _, fd := range m.Fields {
		if _, set := row[fd.Name]; !set && fd.Required() {
			return nil, errs.Mismatch(m.Name, fd.Name, "missing required field")
		}
	}
	return row, nil
}

// assignments turns the scalar part of p into SET terms, stamping updatedAt
// fields the payload leaves alone.
func (e *Engine) assignments(p *payload) []compiler.Assignment {
	m := p.model
	var sets []compiler.Assignment
	for _, fd := range m.Fields {
		if v, ok := p.values[fd.Name]; ok {
			sets = append(sets, compiler.Assignment{Field: fd, Op: query.Set, Value: v})
			continue
		}
		if a, ok := p.atomics[fd.Name]; ok {
			sets = append(sets, compiler.Assignment{Field: fd, Op: a.Op, Value: a.Value})
		}
	}
	if len(sets) == 0 && len(p.relations) == 0 {
		return nil
	}
	now := e.timestamp()
	for _, fd := range m.Fields {
		if !fd.UpdatedAt {
			continue
		}
		if _, ok := p.values[fd.Name]; ok {
			continue
		}
		sets = append(sets, compiler.Assignment{Field: fd, Op: query.Set, Value: now})
	}
	return sets
}

// columns orders the fields of row in model order.
func columns(m *schema.Model, row map[string]any) ([]*schema.Field, []any) {
	fields := make([]*schema.Field, 0, len(row))
	values := make([]any, 0, len(row))
	for _, fd := range m.Fields {
		if v, ok := row[fd.Name]; ok {
			fields = append(fields, fd)
			values = append(values, v)
		}
	}
	return fields, values
}

func fieldNames(fields []*schema.Field) []string {
	names := make([]string, len(fields))
	for i, f := range fields {
		names[i] = f.Name
	}
	return names
}

// keyOf returns the values of fields in rec.
func keyOf(rec map[string]any, fields []*schema.Field) []any {
	key := make([]any, len(fields))
	for i, f := range fields {
		key[i] = rec[f.Name]
	}
	return key
}

func hasNil(values []any) bool {
	for _, v := range values {
		if v == nil {
			return true
		}
	}
	return false
}
