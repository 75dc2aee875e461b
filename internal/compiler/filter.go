package compiler

import (
	"fmt"
	"reflect"
	"strings"

	sq "github.com/Masterminds/squirrel"

	"github.com/satishbabariya/prisma-engine/errs"
	"github.com/satishbabariya/prisma-engine/internal/dialect"
	"github.com/satishbabariya/prisma-engine/internal/scalar"
	"github.com/satishbabariya/prisma-engine/query"
	"github.com/satishbabariya/prisma-engine/schema"
)

var (
	matchAll  = sq.Expr("1=1")
	matchNone = sq.Expr("1=0")
)

// filterScope carries the state of one filter compilation.
type filterScope struct {
	c *Compiler
	// next numbers relation subquery aliases
	next int
	// having enables aggregate leaves and restricts plain leaves to grouped fields
	having  bool
	grouped map[string]bool
}

// Filter compiles f into a predicate over the rows of m aliased as alias.
//
// Predicates are two-valued: a comparison with NULL is false, and NOT of a
// predicate that would be unknown is true.
func (c *Compiler) Filter(m *schema.Model, alias string, f query.Filter) (sq.Sqlizer, error) {
	s := &filterScope{c: c}
	return s.compile(m, alias, f)
}

// ValidateFilter checks f against m without rendering it.
func (c *Compiler) ValidateFilter(m *schema.Model, f query.Filter) error {
	pred, err := c.Filter(m, "t0", f)
	if err != nil {
		return err
	}
	_, _, err = pred.ToSql()
	return err
}

// having compiles a groupBy having filter. Plain leaves may only reference
// the grouped fields.
func (c *Compiler) having(m *schema.Model, alias string, by []*schema.Field, f query.Filter) (sq.Sqlizer, error) {
	s := &filterScope{c: c, having: true, grouped: make(map[string]bool, len(by))}
	for _, fd := range by {
		s.grouped[fd.Name] = true
	}
	return s.compile(m, alias, f)
}

func (s *filterScope) compile(m *schema.Model, alias string, f query.Filter) (sq.Sqlizer, error) {
	switch n := f.(type) {
	case nil:
		return matchAll, nil
	case query.Leaf:
		return s.leaf(m, alias, n)
	case *query.Leaf:
		return s.leaf(m, alias, *n)
	case query.And:
		parts := make(sq.And, 0, len(n))
		for _, child := range n {
			p, err := s.compile(m, alias, child)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
		return parts, nil
	case query.Or:
		parts := make(sq.Or, 0, len(n))
		for _, child := range n {
			p, err := s.compile(m, alias, child)
			if err != nil {
				return nil, err
			}
			parts = append(parts, p)
		}
		return parts, nil
	case query.Not:
		return s.not(m, alias, n.Filter)
	case *query.Not:
		return s.not(m, alias, n.Filter)
	case query.Relation:
		return s.relation(m, alias, n)
	case *query.Relation:
		return s.relation(m, alias, *n)
	}
	return nil, errs.Mismatch(m.Name, "", "unsupported filter node %T", f)
}

func (s *filterScope) not(m *schema.Model, alias string, f query.Filter) (sq.Sqlizer, error) {
	p, err := s.compile(m, alias, f)
	if err != nil {
		return nil, err
	}
	return sq.Expr("NOT COALESCE((?), FALSE)", p), nil
}

func (s *filterScope) relation(m *schema.Model, alias string, n query.Relation) (sq.Sqlizer, error) {
	if s.having {
		return nil, errs.Mismatch(m.Name, n.Field, "relation filters are not allowed in having")
	}
	r, ok := m.Relation(n.Field)
	if !ok {
		if _, scalarField := m.Field(n.Field); scalarField {
			return nil, errs.Mismatch(m.Name, n.Field, "is a scalar field, not a relation")
		}
		return nil, errs.Mismatch(m.Name, n.Field, "unknown relation")
	}
	switch n.Quantifier {
	case query.Some, query.Every, query.None:
		if !r.IsList() {
			return nil, errs.Mismatch(m.Name, n.Field, "%s applies to to-many relations; use is or isNot", n.Quantifier)
		}
	case query.Is, query.IsNot:
		if r.IsList() {
			return nil, errs.Mismatch(m.Name, n.Field, "%s applies to to-one relations; use some, every or none", n.Quantifier)
		}
	default:
		return nil, errs.Mismatch(m.Name, n.Field, "unknown relation quantifier %q", n.Quantifier)
	}

	target := r.TargetModel()
	sub := fmt.Sprintf("r%d", s.next)
	s.next++

	on := make([]string, len(r.TargetKeys()))
	for i, tk := range r.TargetKeys() {
		on[i] = s.c.col(sub, tk) + " = " + s.c.col(alias, r.LocalKeys()[i])
	}
	q := sq.Select("1").From(s.c.from(target, sub)).Where(strings.Join(on, " AND "))

	var nested sq.Sqlizer
	if n.Where != nil {
		p, err := s.compile(target, sub, n.Where)
		if err != nil {
			return nil, err
		}
		nested = p
	}

	switch n.Quantifier {
	case query.Some, query.Is:
		if nested != nil {
			q = q.Where(nested)
		}
		return sq.Expr("EXISTS (?)", q), nil
	case query.None, query.IsNot:
		if nested != nil {
			q = q.Where(nested)
		}
		return sq.Expr("NOT EXISTS (?)", q), nil
	}
	// every: no related record fails the nested filter
	if nested == nil {
		return matchAll, nil
	}
	q = q.Where(sq.Expr("NOT COALESCE((?), FALSE)", nested))
	return sq.Expr("NOT EXISTS (?)", q), nil
}

// operand is the compiled left-hand side of a leaf.
type operand struct {
	expr     string
	typ      schema.ScalarType
	nullable bool
}

func (s *filterScope) leaf(m *schema.Model, alias string, l query.Leaf) (sq.Sqlizer, error) {
	fd, ok := m.Field(l.Field)
	if !ok {
		if _, rel := m.Relation(l.Field); rel {
			return nil, errs.Mismatch(m.Name, l.Field, "is a relation; filter it with some, every, none, is or isNot")
		}
		return nil, errs.Mismatch(m.Name, l.Field, "unknown field")
	}
	op := operand{expr: s.c.col(alias, fd), typ: fd.Type, nullable: fd.Nullable}

	if l.Aggregate != "" {
		if !s.having {
			return nil, errs.Mismatch(m.Name, l.Field, "aggregate predicates are only valid in having")
		}
		var err error
		if op, err = aggregateOperand(m, fd, l.Aggregate, op.expr); err != nil {
			return nil, err
		}
	} else if s.having && !s.grouped[fd.Name] {
		return nil, errs.Mismatch(m.Name, l.Field, "having can only reference grouped fields or aggregates")
	}

	if len(l.Path) > 0 {
		if fd.Type != schema.Json || l.Aggregate != "" {
			return nil, errs.Mismatch(m.Name, l.Field, "a path applies only to Json fields")
		}
		return s.jsonPath(m, fd, op.expr, l)
	}

	insensitive := l.Mode == query.Insensitive
	if insensitive && op.typ != schema.String {
		return nil, errs.Mismatch(m.Name, l.Field, "mode insensitive applies only to String fields")
	}
	if !opAllowed(op.typ, l.Op) {
		return nil, errs.Mismatch(m.Name, l.Field, "operator %s is not supported on %s", l.Op, op.typ)
	}

	switch l.Op {
	case query.IsNull:
		b, ok := l.Value.(bool)
		if !ok {
			return nil, errs.Mismatch(m.Name, l.Field, "isNull takes a bool, got %T", l.Value)
		}
		if b {
			return sq.Expr(op.expr + " IS NULL"), nil
		}
		return sq.Expr(op.expr + " IS NOT NULL"), nil

	case query.Equals, query.NotEquals:
		v, err := s.value(m, fd, op.typ, l.Value)
		if err != nil {
			return nil, err
		}
		if v == nil {
			if !op.nullable {
				return nil, errs.Mismatch(m.Name, l.Field, "field is not nullable; it cannot be compared with null")
			}
			if l.Op == query.Equals {
				return sq.Expr(op.expr + " IS NULL"), nil
			}
			return sq.Expr(op.expr + " IS NOT NULL"), nil
		}
		if op.typ == schema.Json {
			eq := s.c.dialect.JSONEquals(op.expr, scalar.Arg(v).(string))
			if l.Op == query.Equals {
				return eq, nil
			}
			return sq.Expr("("+op.expr+" IS NOT NULL AND NOT (?))", eq), nil
		}
		if insensitive {
			mop := dialect.MatchEquals
			if l.Op == query.NotEquals {
				mop = dialect.MatchNotEquals
			}
			return s.c.dialect.StringMatch(sq.Expr(op.expr), mop, v.(string), true), nil
		}
		if l.Op == query.Equals {
			return sq.Expr(op.expr+" = ?", scalar.Arg(v)), nil
		}
		return sq.Expr(op.expr+" <> ?", scalar.Arg(v)), nil

	case query.Lt, query.Lte, query.Gt, query.Gte:
		v, err := s.value(m, fd, op.typ, l.Value)
		if err != nil {
			return nil, err
		}
		if v == nil {
			return nil, errs.Mismatch(m.Name, l.Field, "%s cannot compare with null", l.Op)
		}
		cmp := comparison(l.Op)
		if insensitive {
			return sq.Expr("LOWER("+op.expr+") "+cmp+" LOWER(?)", v), nil
		}
		return sq.Expr(op.expr+" "+cmp+" ?", scalar.Arg(v)), nil

	case query.In, query.NotIn:
		items, err := s.list(m, fd, op.typ, l.Value)
		if err != nil {
			return nil, err
		}
		if len(items) == 0 {
			if l.Op == query.In {
				return matchNone, nil
			}
			return matchAll, nil
		}
		lhs, mark := op.expr, "?"
		if insensitive {
			lhs, mark = "LOWER("+op.expr+")", "LOWER(?)"
		}
		marks := strings.TrimSuffix(strings.Repeat(mark+", ", len(items)), ", ")
		if l.Op == query.In {
			return sq.Expr(lhs+" IN ("+marks+")", items...), nil
		}
		return sq.Expr(lhs+" NOT IN ("+marks+")", items...), nil

	case query.Contains, query.StartsWith, query.EndsWith:
		str, ok := l.Value.(string)
		if !ok {
			return nil, errs.Mismatch(m.Name, l.Field, "%s takes a string, got %T", l.Op, l.Value)
		}
		if str == "" {
			return sq.Expr(op.expr + " IS NOT NULL"), nil
		}
		return s.c.dialect.StringMatch(sq.Expr(op.expr), matchOp(l.Op), str, insensitive), nil
	}
	return nil, errs.Mismatch(m.Name, l.Field, "unknown operator %q", l.Op)
}

// jsonPath compiles a predicate on the text found at a path inside a Json
// field. Values compare as text.
func (s *filterScope) jsonPath(m *schema.Model, fd *schema.Field, col string, l query.Leaf) (sq.Sqlizer, error) {
	text := s.c.dialect.JSONText(col, l.Path)
	insensitive := l.Mode == query.Insensitive

	switch l.Op {
	case query.IsNull:
		b, ok := l.Value.(bool)
		if !ok {
			return nil, errs.Mismatch(m.Name, fd.Name, "isNull takes a bool, got %T", l.Value)
		}
		if b {
			return sq.Expr("? IS NULL", text), nil
		}
		return sq.Expr("? IS NOT NULL", text), nil
	case query.Equals, query.NotEquals:
		if l.Value == nil {
			if l.Op == query.Equals {
				return sq.Expr("? IS NULL", text), nil
			}
			return sq.Expr("? IS NOT NULL", text), nil
		}
		str, err := pathText(m, fd, l.Value)
		if err != nil {
			return nil, err
		}
		mop := dialect.MatchEquals
		if l.Op == query.NotEquals {
			mop = dialect.MatchNotEquals
		}
		return s.c.dialect.StringMatch(text, mop, str, insensitive), nil
	case query.Lt, query.Lte, query.Gt, query.Gte:
		str, err := pathText(m, fd, l.Value)
		if err != nil {
			return nil, err
		}
		return sq.Expr("? "+comparison(l.Op)+" ?", text, str), nil
	case query.In, query.NotIn:
		rv := reflect.ValueOf(l.Value)
		if l.Value == nil || (rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array) {
			return nil, errs.Mismatch(m.Name, fd.Name, "in and notIn take a list, got %T", l.Value)
		}
		if rv.Len() == 0 {
			if l.Op == query.In {
				return matchNone, nil
			}
			return matchAll, nil
		}
		args := []any{text}
		for i := 0; i < rv.Len(); i++ {
			str, err := pathText(m, fd, rv.Index(i).Interface())
			if err != nil {
				return nil, err
			}
			args = append(args, str)
		}
		marks := strings.TrimSuffix(strings.Repeat("?, ", rv.Len()), ", ")
		kw := " IN ("
		if l.Op == query.NotIn {
			kw = " NOT IN ("
		}
		return sq.Expr("?"+kw+marks+")", args...), nil
	case query.Contains, query.StartsWith, query.EndsWith:
		str, ok := l.Value.(string)
		if !ok {
			return nil, errs.Mismatch(m.Name, fd.Name, "%s takes a string, got %T", l.Op, l.Value)
		}
		if str == "" {
			return sq.Expr("? IS NOT NULL", text), nil
		}
		return s.c.dialect.StringMatch(text, matchOp(l.Op), str, insensitive), nil
	}
	return nil, errs.Mismatch(m.Name, fd.Name, "unknown operator %q", l.Op)
}

// pathText renders a Json path operand as the text the store extracts.
func pathText(m *schema.Model, fd *schema.Field, v any) (string, error) {
	switch x := v.(type) {
	case string:
		return x, nil
	case int, int32, int64:
		return fmt.Sprint(x), nil
	}
	return "", errs.Mismatch(m.Name, fd.Name, "json path values must be strings or integers, got %T", v)
}

func aggregateOperand(m *schema.Model, fd *schema.Field, fn query.AggregateFunc, col string) (operand, error) {
	switch fn {
	case query.CountAgg:
		return operand{expr: "COUNT(" + col + ")", typ: schema.BigInt}, nil
	case query.SumAgg:
		if !fd.Type.Numeric() {
			return operand{}, errs.Mismatch(m.Name, fd.Name, "_sum needs a numeric field")
		}
		return operand{expr: "SUM(" + col + ")", typ: SumType(fd.Type), nullable: true}, nil
	case query.AvgAgg:
		if !fd.Type.Numeric() {
			return operand{}, errs.Mismatch(m.Name, fd.Name, "_avg needs a numeric field")
		}
		return operand{expr: "AVG(" + col + ")", typ: AvgType(fd.Type), nullable: true}, nil
	case query.MinAgg, query.MaxAgg:
		if !fd.Type.Orderable() {
			return operand{}, errs.Mismatch(m.Name, fd.Name, "%s needs an orderable field", fn)
		}
		name := "MIN("
		if fn == query.MaxAgg {
			name = "MAX("
		}
		return operand{expr: name + col + ")", typ: fd.Type, nullable: true}, nil
	}
	return operand{}, errs.Mismatch(m.Name, fd.Name, "unknown aggregate %q", fn)
}

// SumType is the result type of SUM over a field of type t.
func SumType(t schema.ScalarType) schema.ScalarType {
	if t == schema.Int {
		return schema.BigInt
	}
	return t
}

// AvgType is the result type of AVG over a field of type t.
func AvgType(t schema.ScalarType) schema.ScalarType {
	if t == schema.Decimal {
		return schema.Decimal
	}
	return schema.Float
}

// opAllowed reports whether op applies to values of type t.
func opAllowed(t schema.ScalarType, op query.Operator) bool {
	switch op {
	case query.Equals, query.NotEquals, query.In, query.NotIn, query.IsNull:
		return true
	case query.Lt, query.Lte, query.Gt, query.Gte:
		return t.Orderable()
	case query.Contains, query.StartsWith, query.EndsWith:
		return t == schema.String
	}
	// unknown operators are reported by the caller
	return true
}

func comparison(op query.Operator) string {
	switch op {
	case query.Lt:
		return "<"
	case query.Lte:
		return "<="
	case query.Gt:
		return ">"
	}
	return ">="
}

func matchOp(op query.Operator) dialect.MatchOp {
	switch op {
	case query.StartsWith:
		return dialect.MatchStartsWith
	case query.EndsWith:
		return dialect.MatchEndsWith
	}
	return dialect.MatchContains
}

// value normalizes a leaf operand to the canonical value for t.
func (s *filterScope) value(m *schema.Model, fd *schema.Field, t schema.ScalarType, v any) (any, error) {
	nv, err := scalar.Normalize(t, v)
	if err != nil {
		return nil, errs.Mismatch(m.Name, fd.Name, "%v", err)
	}
	if nv != nil && t == schema.Enum && !fd.HasEnumValue(nv.(string)) {
		return nil, errs.Mismatch(m.Name, fd.Name, "%q is not a value of the enum", nv)
	}
	return nv, nil
}

// list normalizes the operand of in and notIn into driver arguments.
func (s *filterScope) list(m *schema.Model, fd *schema.Field, t schema.ScalarType, v any) ([]any, error) {
	if v == nil {
		return nil, errs.Mismatch(m.Name, fd.Name, "in and notIn take a list")
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, errs.Mismatch(m.Name, fd.Name, "in and notIn take a list, got %T", v)
	}
	if _, raw := v.([]byte); raw {
		return nil, errs.Mismatch(m.Name, fd.Name, "in and notIn take a list of values, got []byte")
	}
	out := make([]any, 0, rv.Len())
	for i := 0; i < rv.Len(); i++ {
		nv, err := s.value(m, fd, t, rv.Index(i).Interface())
		if err != nil {
			return nil, err
		}
		if nv == nil {
			return nil, errs.Mismatch(m.Name, fd.Name, "in and notIn cannot contain null")
		}
		out = append(out, scalar.Arg(nv))
	}
	return out, nil
}
