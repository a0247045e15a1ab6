package qseq

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/quatton/qfold/pkg/qerr"
)

// WeightMatrix is a position weight matrix. Bases lists the columns in the
// order they were declared; each row holds one probability per column.
type WeightMatrix struct {
	Bases []string
	Rows  [][]float64
}

// Consensus calls the most probable base at every position. Ties go to the
// column declared first.
func Consensus(m WeightMatrix) string {
	var b strings.Builder
	for _, row := range m.Rows {
		best := 0
		for i := 1; i < len(row) && i < len(m.Bases); i++ {
			if row[i] > row[best] {
				best = i
			}
		}
		if len(m.Bases) > 0 {
			b.WriteString(m.Bases[best])
		}
	}
	return b.String()
}

// LoadWeightMatrix reads a tab-separated PWM in the CIS-BP layout:
//
//	Pos	A	C	G	T
//	1	0.1	0.7	0.1	0.1
//
// The first column is the position and is ignored; the header names the bases.
func LoadWeightMatrix(r io.Reader) (WeightMatrix, error) {
	var m WeightMatrix
	sc := bufio.NewScanner(r)
	ln := 0
	for sc.Scan() {
		ln++
		line := strings.TrimSpace(sc.Text())
		if line == "" || line[0] == '#' {
			continue
		}
		f := strings.Fields(line)
		if m.Bases == nil {
			if len(f) < 2 {
				return WeightMatrix{}, qerr.Newf(qerr.CodeParseError, "pwm line %d: header needs at least one base column", ln)
			}
			m.Bases = make([]string, 0, len(f)-1)
			for _, base := range f[1:] {
				m.Bases = append(m.Bases, strings.ToUpper(base))
			}
			continue
		}
		if len(f) != len(m.Bases)+1 {
			return WeightMatrix{}, qerr.Newf(qerr.CodeParseError, "pwm line %d: want %d columns, got %d", ln, len(m.Bases)+1, len(f))
		}
		row := make([]float64, len(m.Bases))
		for i, s := range f[1:] {
			v, err := strconv.ParseFloat(s, 64)
			if err != nil {
				return WeightMatrix{}, qerr.New(qerr.CodeParseError, fmt.Errorf("pwm line %d: %w", ln, err))
			}
			row[i] = v
		}
		m.Rows = append(m.Rows, row)
	}
	if err := sc.Err(); err != nil {
		return WeightMatrix{}, err
	}
	if m.Bases == nil {
		return WeightMatrix{}, qerr.Newf(qerr.CodeParseError, "pwm: empty matrix")
	}
	return m, nil
}
