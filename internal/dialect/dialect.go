// Package dialect captures the SQL differences between the supported stores.
package dialect

import (
	"database/sql"
	"fmt"
	"math"
	"strconv"
	"strings"

	sq "github.com/Masterminds/squirrel"
)

// Provider names a store family.
type Provider string

// Supported providers.
const (
	Postgres Provider = "postgresql"
	MySQL    Provider = "mysql"
	SQLite   Provider = "sqlite"
)

// MatchOp is a string comparison.
type MatchOp int

// String comparisons.
const (
	MatchEquals MatchOp = iota
	MatchNotEquals
	MatchContains
	MatchStartsWith
	MatchEndsWith
)

// Dialect renders provider-specific SQL fragments.
type Dialect interface {
	Provider() Provider
	Placeholder() sq.PlaceholderFormat
	// Quote quotes an identifier.
	Quote(ident string) string
	// SupportsReturning reports whether INSERT/UPDATE ... RETURNING is available.
	SupportsReturning() bool
	// SupportsNativeUpsert reports whether INSERT ... ON CONFLICT (cols) DO UPDATE is available.
	SupportsNativeUpsert() bool
	// SupportsIsolation reports whether the store provides the isolation level.
	SupportsIsolation(level sql.IsolationLevel) bool
	// ForUpdate is the row-lock suffix for SELECT, or "".
	ForUpdate() string
	// StringMatch compares a string operand with value. value is never empty
	// for the substring operators.
	StringMatch(operand sq.Sqlizer, op MatchOp, value string, insensitive bool) sq.Sqlizer
	// JSONText extracts the text at path inside a Json column.
	JSONText(col string, path []string) sq.Sqlizer
	// JSONEquals compares a Json column with a JSON document.
	JSONEquals(col string, doc string) sq.Sqlizer
	// OrderTerms renders one sort key.
	OrderTerms(col string, desc, nullsFirst, nullable bool) []string
	// Paginate applies LIMIT and OFFSET.
	Paginate(b sq.SelectBuilder, limit, offset *uint64) sq.SelectBuilder
	// SkipDuplicates makes a multi-row INSERT ignore unique conflicts.
	SkipDuplicates(b sq.InsertBuilder) sq.InsertBuilder
	// EmptyInsert renders an INSERT that only takes defaults.
	EmptyInsert(table string) string
}

// New returns the dialect for a provider.
func New(p Provider) (Dialect, error) {
	switch p {
	case Postgres:
		return postgres{}, nil
	case MySQL:
		return mysql{}, nil
	case SQLite:
		return sqlite{}, nil
	}
	return nil, fmt.Errorf("dialect: unsupported provider %q", p)
}

// Qualify joins a table alias and a column into a quoted reference.
func Qualify(d Dialect, alias, column string) string {
	if alias == "" {
		return d.Quote(column)
	}
	return d.Quote(alias) + "." + d.Quote(column)
}

// EscapeLike escapes LIKE wildcards with a backslash.
func EscapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func likePattern(op MatchOp, value string) string {
	v := EscapeLike(value)
	switch op {
	case MatchContains:
		return "%" + v + "%"
	case MatchStartsWith:
		return v + "%"
	case MatchEndsWith:
		return "%" + v
	}
	return v
}

func equality(operand sq.Sqlizer, op MatchOp, value string, insensitive bool) sq.Sqlizer {
	cmp := " = "
	if op == MatchNotEquals {
		cmp = " <> "
	}
	if insensitive {
		return sq.Expr("LOWER(?)"+cmp+"LOWER(?)", operand, value)
	}
	return sq.Expr("?"+cmp+"?", operand, value)
}

func quoteWith(ident string, q string) string {
	return q + strings.ReplaceAll(ident, q, q+q) + q
}

// base holds the behavior shared by every provider.
type base struct{}

func (base) Placeholder() sq.PlaceholderFormat { return sq.Question }
func (base) Quote(ident string) string         { return quoteWith(ident, `"`) }
func (base) SupportsReturning() bool           { return true }
func (base) SupportsNativeUpsert() bool        { return true }
func (base) ForUpdate() string                 { return " FOR UPDATE" }

func (base) OrderTerms(col string, desc, nullsFirst, nullable bool) []string {
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	if !nullable {
		return []string{col + dir}
	}
	if nullsFirst {
		return []string{col + dir + " NULLS FIRST"}
	}
	return []string{col + dir + " NULLS LAST"}
}

func (base) Paginate(b sq.SelectBuilder, limit, offset *uint64) sq.SelectBuilder {
	if limit != nil {
		b = b.Limit(*limit)
	}
	if offset != nil {
		b = b.Offset(*offset)
	}
	return b
}

func (base) SkipDuplicates(b sq.InsertBuilder) sq.InsertBuilder {
	return b.Suffix("ON CONFLICT DO NOTHING")
}

func (d base) EmptyInsert(table string) string {
	return "INSERT INTO " + table + " DEFAULT VALUES"
}

type postgres struct{ base }

func (postgres) Provider() Provider                { return Postgres }
func (postgres) Placeholder() sq.PlaceholderFormat { return sq.Dollar }

func (postgres) SupportsIsolation(level sql.IsolationLevel) bool {
	switch level {
	case sql.LevelDefault, sql.LevelReadUncommitted, sql.LevelReadCommitted,
		sql.LevelRepeatableRead, sql.LevelSerializable:
		return true
	}
	return false
}

func (postgres) StringMatch(operand sq.Sqlizer, op MatchOp, value string, insensitive bool) sq.Sqlizer {
	switch op {
	case MatchEquals, MatchNotEquals:
		return equality(operand, op, value, insensitive)
	}
	if insensitive {
		return sq.Expr("? ILIKE ?", operand, likePattern(op, value))
	}
	return sq.Expr("? LIKE ?", operand, likePattern(op, value))
}

func (postgres) JSONText(col string, path []string) sq.Sqlizer {
	args := make([]any, len(path))
	marks := make([]string, len(path))
	for i, p := range path {
		args[i] = p
		marks[i] = "?"
	}
	return sq.Expr("jsonb_extract_path_text("+col+", "+strings.Join(marks, ", ")+")", args...)
}

func (postgres) JSONEquals(col string, doc string) sq.Sqlizer {
	return sq.Expr(col+" = CAST(? AS jsonb)", doc)
}

type mysql struct{ base }

func (mysql) Provider() Provider          { return MySQL }
func (mysql) Quote(ident string) string   { return quoteWith(ident, "`") }
func (mysql) SupportsReturning() bool     { return false }
func (mysql) SupportsNativeUpsert() bool  { return false }
func (mysql) EmptyInsert(t string) string { return "INSERT INTO " + t + " () VALUES ()" }

func (mysql) SupportsIsolation(level sql.IsolationLevel) bool {
	switch level {
	case sql.LevelDefault, sql.LevelReadUncommitted, sql.LevelReadCommitted,
		sql.LevelRepeatableRead, sql.LevelSerializable:
		return true
	}
	return false
}

func (mysql) StringMatch(operand sq.Sqlizer, op MatchOp, value string, insensitive bool) sq.Sqlizer {
	switch op {
	case MatchEquals, MatchNotEquals:
		return equality(operand, op, value, insensitive)
	}
	if insensitive {
		return sq.Expr("LOWER(?) LIKE LOWER(?)", operand, likePattern(op, value))
	}
	// the default collations fold case; compare bytes instead
	return sq.Expr("? LIKE CAST(? AS BINARY)", operand, likePattern(op, value))
}

func (mysql) JSONText(col string, path []string) sq.Sqlizer {
	return sq.Expr("JSON_UNQUOTE(JSON_EXTRACT("+col+", ?))", jsonPath(path))
}

func (mysql) JSONEquals(col string, doc string) sq.Sqlizer {
	return sq.Expr(col+" = CAST(? AS JSON)", doc)
}

// MySQL has no NULLS FIRST; sort on the IS NULL flag first.
func (mysql) OrderTerms(col string, desc, nullsFirst, nullable bool) []string {
	dir := " ASC"
	if desc {
		dir = " DESC"
	}
	if !nullable {
		return []string{col + dir}
	}
	flag := "(" + col + " IS NULL) ASC"
	if nullsFirst {
		flag = "(" + col + " IS NULL) DESC"
	}
	return []string{flag, col + dir}
}

func (mysql) Paginate(b sq.SelectBuilder, limit, offset *uint64) sq.SelectBuilder {
	if limit == nil && offset != nil {
		b = b.Limit(math.MaxUint64)
	}
	return base{}.Paginate(b, limit, offset)
}

func (mysql) SkipDuplicates(b sq.InsertBuilder) sq.InsertBuilder {
	return b.Options("IGNORE")
}

type sqlite struct{ base }

func (sqlite) Provider() Provider { return SQLite }
func (sqlite) ForUpdate() string  { return "" }

func (sqlite) SupportsIsolation(level sql.IsolationLevel) bool {
	return level == sql.LevelDefault || level == sql.LevelSerializable
}

func (sqlite) StringMatch(operand sq.Sqlizer, op MatchOp, value string, insensitive bool) sq.Sqlizer {
	switch op {
	case MatchEquals, MatchNotEquals:
		return equality(operand, op, value, insensitive)
	}
	if insensitive {
		return sq.Expr("LOWER(?) LIKE LOWER(?) ESCAPE '\\'", operand, likePattern(op, value))
	}
	// LIKE folds ASCII case in SQLite, so sensitive matching avoids it
	switch op {
	case MatchContains:
		return sq.Expr("instr(?, ?) > 0", operand, value)
	case MatchStartsWith:
		return sq.Expr("instr(?, ?) = 1", operand, value)
	}
	return sq.Expr("substr(?, -length(?)) = ?", operand, value, value)
}

func (sqlite) JSONText(col string, path []string) sq.Sqlizer {
	return sq.Expr("CAST(json_extract("+col+", ?) AS TEXT)", jsonPath(path))
}

func (sqlite) JSONEquals(col string, doc string) sq.Sqlizer {
	return sq.Expr("json("+col+") = json(?)", doc)
}

func (sqlite) Paginate(b sq.SelectBuilder, limit, offset *uint64) sq.SelectBuilder {
	if limit == nil && offset != nil {
		b = b.Limit(math.MaxInt64)
	}
	return base{}.Paginate(b, limit, offset)
}

// jsonPath renders a $."a"[0]."b" path expression.
func jsonPath(path []string) string {
	var sb strings.Builder
	sb.WriteByte('$')
	for _, p := range path {
		if _, err := strconv.ParseUint(p, 10, 32); err == nil {
			sb.WriteString("[" + p + "]")
			continue
		}
		sb.WriteString(`."` + strings.ReplaceAll(p, `"`, `\"`) + `"`)
	}
	return sb.String()
}
