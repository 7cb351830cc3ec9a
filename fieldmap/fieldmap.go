package fieldmap

import (
	"strings"

	errors "github.com/goliatone/go-errors"
)

// Table is the explicit schema descriptor repositories are constructed with.
// The identity column is named up front rather than discovered at query time.
type Table struct {
	// Name is the physical table name.
	Name string

	// ID is the identity column. Required for repository tables.
	ID string

	// Columns is the full set of physical columns.
	Columns []string
}

// HasColumn reports whether the table declares the given physical column.
func (t Table) HasColumn(name string) bool {
	for _, c := range t.Columns {
		if c == name {
			return true
		}
	}
	return false
}

// NestedField is a field resolved against a joined table rather than the
// mapper's own table.
type NestedField struct {
	Table  string
	Column string
}

// Mapper resolves logical field names to physical columns for one table.
//
// Resolution order: declared overrides, then columns matched verbatim, then
// a camelCase→snake_case conversion of the field name. Nested paths
// ("translation.name") resolve only after an explicit RegisterNestedField
// call; the mapper never guesses across tables.
type Mapper struct {
	table     string
	overrides map[string]string
	declared  map[string]struct{}
	nested    map[string]NestedField
}

// New builds a Mapper for the given table. A table with zero columns is a
// configuration error surfaced immediately, not at first query.
func New(table Table, overrides map[string]string) (*Mapper, error) {
	if len(table.Columns) == 0 {
		return nil, errors.New("field mapper: table "+table.Name+" has no columns", errors.CategoryValidation)
	}

	m := &Mapper{
		table:     table.Name,
		overrides: map[string]string{},
		declared:  map[string]struct{}{},
		nested:    map[string]NestedField{},
	}
	for field, column := range overrides {
		m.overrides[field] = column
	}
	for _, column := range table.Columns {
		m.declared[column] = struct{}{}
	}
	return m, nil
}

// Table returns the physical table name the mapper was built for.
func (m *Mapper) Table() string {
	return m.table
}

// Column resolves a logical field to its physical column. The second return
// is false when no mapping exists; callers drop the predicate rather than
// treating this as an error, so unknown filter fields degrade gracefully.
func (m *Mapper) Column(field string) (string, bool) {
	if column, ok := m.overrides[field]; ok {
		return column, true
	}
	if _, ok := m.declared[field]; ok {
		return field, true
	}
	if snake := camelToSnake(field); snake != field {
		if _, ok := m.declared[snake]; ok {
			return snake, true
		}
	}
	return "", false
}

// RegisterNestedField maps a dotted path ("translation.name") to a column on
// another table. Registering the same path twice keeps the last entry.
func (m *Mapper) RegisterNestedField(path, table, column string) {
	m.nested[path] = NestedField{Table: table, Column: column}
}

// Nested resolves a previously registered nested path.
func (m *Mapper) Nested(path string) (NestedField, bool) {
	nf, ok := m.nested[path]
	return nf, ok
}

// RegisterTableColumns registers every column of a joined table as a nested
// field under the given prefix. Used by the translatable layer so
// "translation.<attr>" filter and sort paths resolve. Idempotent.
func (m *Mapper) RegisterTableColumns(prefix string, table Table) {
	for _, column := range table.Columns {
		path := prefix + "." + column
		if _, ok := m.nested[path]; !ok {
			m.nested[path] = NestedField{Table: table.Name, Column: column}
		}
	}
}

// camelToSnake converts camelCase field names to snake_case column names.
// ASCII-only on purpose: column names in the schemas we map are ASCII, and
// keeping the rules narrow keeps resolution predictable.
func camelToSnake(s string) string {
	var b strings.Builder
	b.Grow(len(s) + len(s)/2)
	for i, r := range s {
		if r >= 'A' && r <= 'Z' {
			if i > 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r - 'A' + 'a')
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
