package query

import (
	"reflect"
	"strings"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/postgres"
	"github.com/doug-martin/goqu/v9/exp"
)

var dialect = goqu.Dialect("postgres")

// SortField is one ORDER BY term keyed by view property name.
type SortField struct {
	Field      string `json:"field"`
	Descending bool   `json:"descending,omitempty"`
}

// ParseSortFields parses "name,-uploadedAt" style sort strings. A leading
// "-" sorts descending. Empty input yields nil.
func ParseSortFields(s string) []SortField {
	if s == "" {
		return nil
	}

	var fields []SortField
	for part := range strings.SplitSeq(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		field, desc := strings.CutPrefix(part, "-")
		fields = append(fields, SortField{Field: field, Descending: desc})
	}
	return fields
}

// Builder accumulates filter and sort terms for a projection and renders
// them as prepared statements with $n placeholders.
type Builder struct {
	projection  *ProjectionMap
	conditions  []exp.Expression
	order       []SortField
	defaultSort []SortField
}

// NewBuilder creates a Builder applying defaultSort when no explicit order is set.
func NewBuilder(projection *ProjectionMap, defaultSort ...SortField) *Builder {
	return &Builder{projection: projection, defaultSort: defaultSort}
}

// OrderByFields replaces the default sort. Fields that are not projected are
// ignored.
func (b *Builder) OrderByFields(fields []SortField) *Builder {
	b.order = fields
	return b
}

// WhereEquals adds an equality condition. Nil values, including nil
// pointers, are skipped; non-nil pointers are dereferenced.
func (b *Builder) WhereEquals(field string, value any) *Builder {
	v, ok := deref(value)
	if !ok {
		return b
	}
	b.conditions = append(b.conditions, b.projection.Column(field).Eq(v))
	return b
}

// WhereContains adds a case-insensitive substring match. Nil or empty
// values are skipped.
func (b *Builder) WhereContains(field string, value *string) *Builder {
	if value == nil || *value == "" {
		return b
	}
	b.conditions = append(b.conditions, b.projection.Column(field).ILike("%"+*value+"%"))
	return b
}

// WhereSearch matches search as a substring of any of fields.
func (b *Builder) WhereSearch(search *string, fields ...string) *Builder {
	if search == nil || *search == "" || len(fields) == 0 {
		return b
	}

	pattern := "%" + *search + "%"
	terms := make([]exp.Expression, len(fields))
	for i, f := range fields {
		terms[i] = b.projection.Column(f).ILike(pattern)
	}
	b.conditions = append(b.conditions, goqu.Or(terms...))
	return b
}

// BuildCount renders a COUNT(*) over the current conditions.
func (b *Builder) BuildCount() (string, []any, error) {
	return b.dataset().Select(goqu.COUNT("*")).ToSQL()
}

// BuildPage renders the projected columns for one 1-based page.
func (b *Builder) BuildPage(page, pageSize int) (string, []any, error) {
	ds := b.dataset().
		Select(b.projection.Columns()...).
		Order(b.orderBy()...).
		Limit(uint(pageSize))

	if offset := (page - 1) * pageSize; offset > 0 {
		ds = ds.Offset(uint(offset))
	}
	return ds.ToSQL()
}

// BuildSingle renders a lookup of one row by field. The current conditions
// are ignored.
func (b *Builder) BuildSingle(field string, id any) (string, []any, error) {
	return dialect.
		From(b.projection.table).
		Prepared(true).
		Select(b.projection.Columns()...).
		Where(b.projection.Column(field).Eq(id)).
		ToSQL()
}

func (b *Builder) dataset() *goqu.SelectDataset {
	ds := dialect.From(b.projection.table).Prepared(true)
	if len(b.conditions) > 0 {
		ds = ds.Where(b.conditions...)
	}
	return ds
}

func (b *Builder) orderBy() []exp.OrderedExpression {
	fields := b.order
	if len(fields) == 0 {
		fields = b.defaultSort
	}

	terms := make([]exp.OrderedExpression, 0, len(fields))
	for _, f := range fields {
		if !b.projection.Has(f.Field) {
			continue
		}
		col := b.projection.Column(f.Field)
		if f.Descending {
			terms = append(terms, col.Desc())
		} else {
			terms = append(terms, col.Asc())
		}
	}
	return terms
}

func deref(value any) (any, bool) {
	if value == nil {
		return nil, false
	}

	v := reflect.ValueOf(value)
	switch v.Kind() {
	case reflect.Pointer:
		if v.IsNil() {
			return nil, false
		}
		return v.Elem().Interface(), true
	case reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		if v.IsNil() {
			return nil, false
		}
	}
	return value, true
}
