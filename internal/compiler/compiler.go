// Package compiler renders filter trees and execution plans into
// parameterized SQL for one dialect.
package compiler

import (
	"github.com/satishbabariya/prisma-engine/internal/dialect"
	"github.com/satishbabariya/prisma-engine/schema"
)

// Statement is a rendered SQL statement and its driver arguments.
type Statement struct {
	SQL  string
	Args []any
}

// Compiler compiles descriptors against a schema. It is stateless and safe
// for concurrent use.
type Compiler struct {
	schema  *schema.Schema
	dialect dialect.Dialect
}

// New creates a compiler
func New(s *schema.Schema, d dialect.Dialect) *Compiler {
	return &Compiler{schema: s, dialect: d}
}

// Dialect returns the compiler's dialect.
func (c *Compiler) Dialect() dialect.Dialect { return c.dialect }

// Schema returns the compiler's schema.
func (c *Compiler) Schema() *schema.Schema { return c.schema }

type sqlizer interface {
	ToSql() (string, []any, error)
}

// build renders a builder and rewrites its placeholders for the dialect.
func (c *Compiler) build(b sqlizer) (Statement, error) {
	sql, args, err := b.ToSql()
	if err != nil {
		return Statement{}, err
	}
	sql, err = c.dialect.Placeholder().ReplacePlaceholders(sql)
	if err != nil {
		return Statement{}, err
	}
	return Statement{SQL: sql, Args: args}, nil
}

func (c *Compiler) quote(ident string) string { return c.dialect.Quote(ident) }

func (c *Compiler) col(alias string, f *schema.Field) string {
	return dialect.Qualify(c.dialect, alias, f.Column)
}

// from renders "table AS alias".
func (c *Compiler) from(m *schema.Model, alias string) string {
	return c.quote(m.Table) + " AS " + c.quote(alias)
}
