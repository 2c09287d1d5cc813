package store

import (
	"database/sql/driver"
	"fmt"
	"strconv"
	"strings"

	"github.com/carbocation/pfx"
)

// ColumnType is the SQLite storage class of a column.
type ColumnType string

const (
	Real ColumnType = "REAL"
	Text ColumnType = "TEXT"
)

// Table is an indexed table. Each cell is nil, a float64, an int64, a string,
// or a driver.Valuer yielding one of those.
type Table struct {
	Name      string
	IndexName string
	Index     []int64
	Columns   []string
	Rows      [][]interface{}
}

func (t *Table) indexName() string {
	if t.IndexName == "" {
		return DefaultIndexName
	}
	return t.IndexName
}

func (t *Table) validate() error {
	if t.Name == "" {
		return fmt.Errorf("table has no name")
	}
	if len(t.Rows) != len(t.Index) {
		return fmt.Errorf("table %s: %d index values for %d rows", t.Name, len(t.Index), len(t.Rows))
	}
	for i, row := range t.Rows {
		if len(row) != len(t.Columns) {
			return fmt.Errorf("table %s: row %d has %d cells but there are %d columns", t.Name, t.Index[i], len(row), len(t.Columns))
		}
	}

	// SQLite identifiers are case-insensitive.
	seen := map[string]string{strings.ToLower(t.indexName()): t.indexName()}
	for _, col := range t.Columns {
		if prev, dup := seen[strings.ToLower(col)]; dup {
			return fmt.Errorf("table %s: column %q collides with %q", t.Name, col, prev)
		}
		seen[strings.ToLower(col)] = col
	}

	return nil
}

// cellValue unwraps a cell into nil, float64, int64 or string.
func cellValue(v interface{}) (interface{}, error) {
	if valuer, ok := v.(driver.Valuer); ok {
		var err error
		if v, err = valuer.Value(); err != nil {
			return nil, err
		}
	}

	switch x := v.(type) {
	case nil, float64, int64, string:
		return x, nil
	case float32:
		return float64(x), nil
	case int:
		return int64(x), nil
	case bool:
		if x {
			return int64(1), nil
		}
		return int64(0), nil
	case []byte:
		return string(x), nil
	}

	return nil, fmt.Errorf("unsupported cell type %T", v)
}

// ColumnTypes infers a type per column: REAL when every non-null cell is
// numeric or a string that parses as a float, TEXT otherwise.
func (t *Table) ColumnTypes() ([]ColumnType, error) {
	out := make([]ColumnType, len(t.Columns))
	for j := range t.Columns {
		out[j] = Real
		for _, row := range t.Rows {
			v, err := cellValue(row[j])
			if err != nil {
				return nil, fmt.Errorf("table %s column %s: %w", t.Name, t.Columns[j], err)
			}
			if s, ok := v.(string); ok {
				if _, err := strconv.ParseFloat(strings.TrimSpace(s), 64); err != nil {
					out[j] = Text
					break
				}
			}
		}
	}
	return out, nil
}

// WriteTable creates the table and fills it inside one transaction. A table of
// the same name must not already exist.
func (s *Store) WriteTable(t *Table) error {
	if err := t.validate(); err != nil {
		return err
	}
	types, err := t.ColumnTypes()
	if err != nil {
		return err
	}

	defs := []string{quote(t.indexName()) + " INTEGER PRIMARY KEY"}
	names := []string{quote(t.indexName())}
	marks := []string{"?"}
	for j, col := range t.Columns {
		defs = append(defs, quote(col)+" "+string(types[j]))
		names = append(names, quote(col))
		marks = append(marks, "?")
	}

	tx, err := s.DB.Beginx()
	if err != nil {
		return pfx.Err(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec(fmt.Sprintf("CREATE TABLE %s (%s)", quote(t.Name), strings.Join(defs, ", "))); err != nil {
		return pfx.Err(err)
	}

	stmt, err := tx.Preparex(fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", quote(t.Name), strings.Join(names, ", "), strings.Join(marks, ", ")))
	if err != nil {
		return pfx.Err(err)
	}
	defer stmt.Close()

	args := make([]interface{}, len(t.Columns)+1)
	for i, row := range t.Rows {
		args[0] = t.Index[i]
		for j, cell := range row {
			v, err := cellValue(cell)
			if err != nil {
				return fmt.Errorf("table %s row %d: %w", t.Name, t.Index[i], err)
			}
			if s, ok := v.(string); ok && types[j] == Real {
				v, _ = strconv.ParseFloat(strings.TrimSpace(s), 64)
			}
			args[j+1] = v
		}
		if _, err := stmt.Exec(args...); err != nil {
			return fmt.Errorf("table %s row %d: %w", t.Name, t.Index[i], err)
		}
	}

	return pfx.Err(tx.Commit())
}

// ReadTable reads a table written by WriteTable, ordered by its index. REAL
// cells come back as float64 and TEXT cells as string.
func (s *Store) ReadTable(name string) (*Table, error) {
	rows, err := s.DB.Queryx(fmt.Sprintf("SELECT * FROM %s ORDER BY 1", quote(name)))
	if err != nil {
		return nil, pfx.Err(err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, pfx.Err(err)
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table %s has no columns", name)
	}

	out := &Table{Name: name, IndexName: cols[0], Columns: cols[1:]}
	for rows.Next() {
		cells, err := rows.SliceScan()
		if err != nil {
			return nil, pfx.Err(err)
		}

		id, ok := cells[0].(int64)
		if !ok {
			return nil, fmt.Errorf("table %s: index value %v is not an integer", name, cells[0])
		}
		for j := 1; j < len(cells); j++ {
			if b, ok := cells[j].([]byte); ok {
				cells[j] = string(b)
			}
		}

		out.Index = append(out.Index, id)
		out.Rows = append(out.Rows, cells[1:])
	}

	return out, pfx.Err(rows.Err())
}
