package cellule

import "database/sql"

// Table is a column-ordered query result, kept generic so any view can be
// exported without knowing its shape.
type Table struct {
	Columns []string
	Types   []string
	Rows    [][]any
}

// Len returns the number of rows.
func (t *Table) Len() int { return len(t.Rows) }

// Column returns the index of name, or -1.
func (t *Table) Column(name string) int {
	for i, c := range t.Columns {
		if c == name {
			return i
		}
	}
	return -1
}

func scanTable(rows *sql.Rows) (*Table, error) {
	types, err := rows.ColumnTypes()
	if err != nil {
		return nil, err
	}
	t := &Table{
		Columns: make([]string, len(types)),
		Types:   make([]string, len(types)),
		Rows:    [][]any{},
	}
	for i, ct := range types {
		t.Columns[i] = ct.Name()
		t.Types[i] = ct.DatabaseTypeName()
	}

	for rows.Next() {
		values := make([]any, len(types))
		ptrs := make([]any, len(types))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		t.Rows = append(t.Rows, values)
	}
	return t, rows.Err()
}
