package ribca

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/carbocation/omeconvert"
	"github.com/carbocation/pfx"
	"gopkg.in/guregu/null.v3"
)

// sniffBytes is how much of a table is peeked at to guess its delimiter.
const sniffBytes = 64 * 1024

// missingValues are read as null, the same strings pandas treats as NA.
var missingValues = map[string]struct{}{
	"": {}, "#N/A": {}, "#N/A N/A": {}, "#NA": {}, "-1.#IND": {}, "-1.#QNAN": {},
	"-NaN": {}, "-nan": {}, "1.#IND": {}, "1.#QNAN": {}, "<NA>": {}, "N/A": {},
	"NA": {}, "NULL": {}, "NaN": {}, "None": {}, "n/a": {}, "nan": {}, "null": {},
}

// Table is a table of classifier output indexed by cell id.
type Table struct {
	IndexName string
	Index     []int64
	Columns   []string

	// Cells is indexed by row and then column.
	Cells [][]null.String
}

// Len is the number of rows.
func (t *Table) Len() int {
	return len(t.Index)
}

// Column returns the position of the named column, or -1.
func (t *Table) Column(name string) int {
	for i, col := range t.Columns {
		if col == name {
			return i
		}
	}
	return -1
}

// Row returns the cells of the row with the given cell id.
func (t *Table) Row(id int64) ([]null.String, bool) {
	for i, v := range t.Index {
		if v == id {
			return t.Cells[i], true
		}
	}
	return nil, false
}

// ReadTable reads a delimited table with a header row whose first column is the
// integer cell id. The delimiter is guessed from the content. Rows keep their
// file order.
func ReadTable(r io.Reader) (*Table, error) {
	br := bufio.NewReaderSize(r, sniffBytes)
	sample, err := br.Peek(sniffBytes)
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, pfx.Err(err)
	}

	cr := csv.NewReader(br)
	cr.Comma = omeconvert.DetermineDelimiter(sample)
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, fmt.Errorf("table is empty")
	} else if err != nil {
		return nil, pfx.Err(err)
	}

	t := &Table{}
	seen := make(map[int64]struct{})

	for line := 2; ; line++ {
		record, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		} else if err != nil {
			return nil, pfx.Err(err)
		}

		if t.Columns == nil {
			// A header one field short of the data names only the value
			// columns and leaves the index unnamed.
			switch len(record) {
			case len(header):
				t.IndexName = strings.TrimSpace(header[0])
				t.Columns = header[1:]
			case len(header) + 1:
				t.Columns = header
			default:
				return nil, fmt.Errorf("line %d: %d fields but the header has %d", line, len(record), len(header))
			}
		}
		if want := len(t.Columns) + 1; len(record) != want {
			return nil, fmt.Errorf("line %d: %d fields, expected %d", line, len(record), want)
		}

		id, err := strconv.ParseInt(strings.TrimSpace(record[0]), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("line %d: cell id %q is not an integer", line, record[0])
		}
		if _, dup := seen[id]; dup {
			return nil, fmt.Errorf("line %d: duplicate cell id %d", line, id)
		}
		seen[id] = struct{}{}

		cells := make([]null.String, len(record)-1)
		for i, v := range record[1:] {
			if _, missing := missingValues[strings.TrimSpace(v)]; !missing {
				cells[i] = null.StringFrom(v)
			}
		}

		t.Index = append(t.Index, id)
		t.Cells = append(t.Cells, cells)
	}

	if t.Columns == nil {
		// Header only.
		t.IndexName = strings.TrimSpace(header[0])
		t.Columns = header[1:]
	}

	return t, nil
}

// Join combines tables column-wise on their cell ids. Every id of every table
// gets a row, ordered ascending, and cells a table has no row for are null.
// A column name already taken, ignoring case, by an earlier column or the
// index gets a numeric suffix: the second "score" becomes "score_2".
func Join(tables ...*Table) *Table {
	out := &Table{}
	for _, t := range tables {
		if t.IndexName != "" {
			out.IndexName = t.IndexName
			break
		}
	}

	taken := make(map[string]struct{})
	if out.IndexName != "" {
		taken[strings.ToLower(out.IndexName)] = struct{}{}
	}
	offsets := make([]int, len(tables))
	ids := make(map[int64]struct{})
	for i, t := range tables {
		offsets[i] = len(out.Columns)
		for _, col := range t.Columns {
			name := col
			for n := 2; ; n++ {
				if _, dup := taken[strings.ToLower(name)]; !dup {
					break
				}
				name = fmt.Sprintf("%s_%d", col, n)
			}
			taken[strings.ToLower(name)] = struct{}{}
			out.Columns = append(out.Columns, name)
		}
		for _, id := range t.Index {
			ids[id] = struct{}{}
		}
	}

	out.Index = make([]int64, 0, len(ids))
	for id := range ids {
		out.Index = append(out.Index, id)
	}
	sort.Slice(out.Index, func(i, j int) bool { return out.Index[i] < out.Index[j] })

	row := make(map[int64]int, len(out.Index))
	out.Cells = make([][]null.String, len(out.Index))
	for i, id := range out.Index {
		row[id] = i
		out.Cells[i] = make([]null.String, len(out.Columns))
	}

	for i, t := range tables {
		for r, id := range t.Index {
			copy(out.Cells[row[id]][offsets[i]:], t.Cells[r])
		}
	}

	return out
}
