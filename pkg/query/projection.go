// Package query builds parameterized PostgreSQL SELECT statements over a
// projected table. View property names map to qualified columns so callers
// filter and sort by API field names.
package query

import (
	"github.com/doug-martin/goqu/v9"
	"github.com/doug-martin/goqu/v9/exp"
)

// ProjectionMap maps view property names to the columns of one aliased table.
type ProjectionMap struct {
	table   exp.AliasedExpression
	alias   string
	columns map[string]exp.IdentifierExpression
	ordered []any
}

// NewProjectionMap creates a ProjectionMap over schema.table AS alias.
func NewProjectionMap(schema, table, alias string) *ProjectionMap {
	return &ProjectionMap{
		table:   goqu.S(schema).Table(table).As(alias),
		alias:   alias,
		columns: make(map[string]exp.IdentifierExpression),
	}
}

// Project maps column to viewName. Columns are selected in projection order.
func (p *ProjectionMap) Project(column, viewName string) *ProjectionMap {
	col := goqu.T(p.alias).Col(column)
	p.columns[viewName] = col
	p.ordered = append(p.ordered, col)
	return p
}

// Alias returns the table alias.
func (p *ProjectionMap) Alias() string {
	return p.alias
}

// Column returns the qualified column for viewName. Unmapped names resolve
// to a quoted identifier of the same name.
func (p *ProjectionMap) Column(viewName string) exp.IdentifierExpression {
	if col, ok := p.columns[viewName]; ok {
		return col
	}
	return goqu.I(viewName)
}

// Has reports whether viewName is projected.
func (p *ProjectionMap) Has(viewName string) bool {
	_, ok := p.columns[viewName]
	return ok
}

// Columns returns the projected columns in order.
func (p *ProjectionMap) Columns() []any {
	return p.ordered
}
