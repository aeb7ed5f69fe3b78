package storage

import (
	"encoding/csv"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/san-kum/packsim/internal/output"
)

const packFile = "pack.csv"

func formatFloat(v float64) string { return strconv.FormatFloat(v, 'g', -1, 64) }

// variableFile turns a variable name such as "Terminal voltage [V]" into a
// file name, prefixed by its position so distinct names never collide.
func variableFile(position int, name string) string {
	var b strings.Builder
	underscore := false
	for _, r := range strings.ToLower(name) {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			underscore = false
			continue
		}
		if !underscore && b.Len() > 0 {
			b.WriteByte('_')
			underscore = true
		}
	}
	return fmt.Sprintf("%02d_%s.csv", position, strings.TrimSuffix(b.String(), "_"))
}

func writeCSV(path string, header []string, rows [][]string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	w := csv.NewWriter(f)
	if err := w.Write(header); err != nil {
		return err
	}
	if err := w.WriteAll(rows); err != nil {
		return err
	}
	return f.Close()
}

func writePack(dir string, s *output.Series) error {
	rows := make([][]string, s.Len())
	for i := range rows {
		rows[i] = []string{
			formatFloat(s.Time[i]),
			strconv.Itoa(s.Phase[i]),
			formatFloat(s.Pack[output.PackVoltage][i]),
			formatFloat(s.Pack[output.PackCurrent][i]),
		}
	}
	header := []string{"time", "phase", output.PackVoltage, output.PackCurrent}
	return writeCSV(filepath.Join(dir, packFile), header, rows)
}

func writeVariable(path string, s *output.Series, name string) error {
	header := make([]string, 0, s.CellCount+1)
	header = append(header, "time")
	for k := 0; k < s.CellCount; k++ {
		header = append(header, fmt.Sprintf("cell %d", k))
	}

	m := s.Cells[name]
	rows := make([][]string, len(m))
	for i, vals := range m {
		row := make([]string, 0, len(vals)+1)
		row = append(row, formatFloat(s.Time[i]))
		for _, v := range vals {
			row = append(row, formatFloat(v))
		}
		rows[i] = row
	}
	return writeCSV(path, header, rows)
}

func readCSV(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	records, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", filepath.Base(path), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("read %s: missing header", filepath.Base(path))
	}
	return records[1:], nil
}

func parseRow(path string, line int, record []string) ([]float64, error) {
	vals := make([]float64, len(record))
	for j, field := range record {
		v, err := strconv.ParseFloat(field, 64)
		if err != nil {
			return nil, fmt.Errorf("%s line %d: %w", filepath.Base(path), line+2, err)
		}
		vals[j] = v
	}
	return vals, nil
}

func readPack(dir string, s *output.Series) error {
	path := filepath.Join(dir, packFile)
	records, err := readCSV(path)
	if err != nil {
		return err
	}
	s.Time = make([]float64, 0, len(records))
	s.Phase = make([]int, 0, len(records))
	voltage := make([]float64, 0, len(records))
	current := make([]float64, 0, len(records))
	for i, rec := range records {
		vals, err := parseRow(path, i, rec)
		if err != nil {
			return err
		}
		if len(vals) != 4 {
			return fmt.Errorf("%s line %d: expected 4 fields, got %d", packFile, i+2, len(vals))
		}
		s.Time = append(s.Time, vals[0])
		s.Phase = append(s.Phase, int(vals[1]))
		voltage = append(voltage, vals[2])
		current = append(current, vals[3])
	}
	s.Pack = map[string][]float64{
		output.PackVoltage: voltage,
		output.PackCurrent: current,
	}
	return nil
}

func readVariable(path string, samples, cells int) ([][]float64, error) {
	records, err := readCSV(path)
	if err != nil {
		return nil, err
	}
	if len(records) != samples {
		return nil, fmt.Errorf("%s: %d rows for %d samples", filepath.Base(path), len(records), samples)
	}
	m := make([][]float64, len(records))
	for i, rec := range records {
		vals, err := parseRow(path, i, rec)
		if err != nil {
			return nil, err
		}
		if len(vals) != cells+1 {
			return nil, fmt.Errorf("%s line %d: expected %d cells, got %d", filepath.Base(path), i+2, cells, len(vals)-1)
		}
		m[i] = vals[1:]
	}
	return m, nil
}
