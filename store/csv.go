package store

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"
)

// WriteCSV writes t with a header row. The index is the first column and null
// cells are empty.
func WriteCSV(w io.Writer, t *Table) error {
	if err := t.validate(); err != nil {
		return err
	}

	cw := csv.NewWriter(w)

	record := make([]string, len(t.Columns)+1)
	record[0] = t.indexName()
	copy(record[1:], t.Columns)
	if err := cw.Write(record); err != nil {
		return err
	}

	for i, row := range t.Rows {
		record[0] = strconv.FormatInt(t.Index[i], 10)
		for j, cell := range row {
			v, err := cellValue(cell)
			if err != nil {
				return fmt.Errorf("table %s row %d: %w", t.Name, t.Index[i], err)
			}
			record[j+1] = formatCell(v)
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}

	cw.Flush()
	return cw.Error()
}

func formatCell(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	case int64:
		return strconv.FormatInt(x, 10)
	case string:
		return x
	}
	return fmt.Sprint(v)
}
