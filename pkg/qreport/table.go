// Package qreport joins per-job scores of a batch into comparison tables.
package qreport

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// ParseJobName splits a job name at its last underscore into the row key and
// a non-negative column index. TF names may themselves contain underscores.
func ParseJobName(name string) (primary string, index int, ok bool) {
	i := strings.LastIndex(name, "_")
	if i <= 0 || i == len(name)-1 {
		return "", 0, false
	}
	suffix := name[i+1:]
	for _, r := range suffix {
		if r < '0' || r > '9' {
			return "", 0, false
		}
	}
	n, err := strconv.Atoi(suffix)
	if err != nil {
		return "", 0, false
	}
	return name[:i], n, true
}

// Exclusion is a job left out of a table.
type Exclusion struct {
	Job    string `json:"job"`
	Reason string `json:"reason"`
}

// Column is one column of a table.
type Column struct {
	Index int    `json:"index"`
	Label string `json:"label"`
}

// Table is a row-by-column score matrix. A nil cell has no score.
type Table struct {
	Rows    []string     `json:"rows"`
	Columns []Column     `json:"columns"`
	Cells   [][]*float64 `json:"cells"`
}

// Pivot lays scores out by row in rowOrder and by column in ascending index.
// labels, when long enough, name the columns by index (e.g. the motif
// sequences); otherwise the index itself is the label. Rows without any
// score are kept.
func Pivot(scores map[string]float64, rowOrder []string, labels []string) (*Table, []Exclusion) {
	rowIdx := make(map[string]int, len(rowOrder))
	t := &Table{}
	for _, r := range rowOrder {
		if _, dup := rowIdx[r]; dup {
			continue
		}
		rowIdx[r] = len(t.Rows)
		t.Rows = append(t.Rows, r)
	}

	type placed struct {
		row, col int
		value    float64
	}
	var (
		cells      []placed
		excluded   []Exclusion
		colPresent = map[int]bool{}
	)
	for _, name := range sortedKeys(scores) {
		primary, idx, ok := ParseJobName(name)
		if !ok {
			excluded = append(excluded, Exclusion{Job: name, Reason: "name is not {row}_{index}"})
			continue
		}
		row, ok := rowIdx[primary]
		if !ok {
			excluded = append(excluded, Exclusion{Job: name, Reason: fmt.Sprintf("row %q is not in the row order", primary)})
			continue
		}
		colPresent[idx] = true
		cells = append(cells, placed{row: row, col: idx, value: scores[name]})
	}

	indices := make([]int, 0, len(colPresent))
	for idx := range colPresent {
		indices = append(indices, idx)
	}
	sort.Ints(indices)
	colPos := make(map[int]int, len(indices))
	for pos, idx := range indices {
		colPos[idx] = pos
		label := strconv.Itoa(idx)
		if idx < len(labels) && labels[idx] != "" {
			label = labels[idx]
		}
		t.Columns = append(t.Columns, Column{Index: idx, Label: label})
	}

	t.Cells = make([][]*float64, len(t.Rows))
	for i := range t.Cells {
		t.Cells[i] = make([]*float64, len(t.Columns))
	}
	for _, c := range cells {
		v := c.value
		t.Cells[c.row][colPos[c.col]] = &v
	}
	return t, excluded
}

// Value returns the score at row r and column position c.
func (t *Table) Value(r, c int) (float64, bool) {
	if r < 0 || r >= len(t.Cells) || c < 0 || c >= len(t.Cells[r]) || t.Cells[r][c] == nil {
		return 0, false
	}
	return *t.Cells[r][c], true
}

// Lookup returns the score of row at column index idx.
func (t *Table) Lookup(row string, idx int) (float64, bool) {
	r, c := -1, -1
	for i, name := range t.Rows {
		if name == row {
			r = i
			break
		}
	}
	for i, col := range t.Columns {
		if col.Index == idx {
			c = i
			break
		}
	}
	return t.Value(r, c)
}

func sortedKeys(m map[string]float64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
