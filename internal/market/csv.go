package market

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// LoadCSVFile reads a CSV dataset with a header row.
func LoadCSVFile(path string) (*Frame, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	frame, err := LoadCSV(f)
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return frame, nil
}

// LoadCSV parses a header-first CSV into a Frame. Unnamed columns (a pandas
// index) and columns with no numeric cell at all (dates, symbols) are skipped;
// a column that is numeric in some rows but not others is an error.
func LoadCSV(r io.Reader) (*Frame, error) {
	reader := csv.NewReader(r)
	reader.TrimLeadingSpace = true
	records, err := reader.ReadAll()
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("csv: missing header")
	}
	header := records[0]
	body := records[1:]
	cols := make(map[string][]float64, len(header))
	for idx, rawName := range header {
		name := strings.TrimSpace(rawName)
		if name == "" {
			continue
		}
		if _, dup := cols[name]; dup {
			return nil, fmt.Errorf("csv: duplicate column %q", name)
		}
		values, numeric, err := parseColumn(body, idx, name)
		if err != nil {
			return nil, err
		}
		if !numeric {
			continue
		}
		cols[name] = values
	}
	return NewFrame(cols)
}

func parseColumn(body [][]string, idx int, name string) ([]float64, bool, error) {
	values := make([]float64, len(body))
	parsed := 0
	firstBad := -1
	for row, record := range body {
		if idx >= len(record) {
			return nil, false, fmt.Errorf("csv: row %d has no column %q", row+2, name)
		}
		cell := strings.TrimSpace(record[idx])
		v, err := strconv.ParseFloat(cell, 64)
		if err != nil {
			if firstBad < 0 {
				firstBad = row
			}
			continue
		}
		values[row] = v
		parsed++
	}
	switch {
	case parsed == 0 && len(body) > 0:
		return nil, false, nil
	case firstBad >= 0:
		return nil, false, fmt.Errorf("csv: column %q row %d is not numeric: %q", name, firstBad+2, body[firstBad][idx])
	default:
		return values, true, nil
	}
}

// WriteCSV writes columns of f (all columns when empty) with a header row.
// The output reads back with LoadCSV.
func WriteCSV(w io.Writer, f *Frame, columns ...string) error {
	if len(columns) == 0 {
		columns = f.Columns()
	}
	if missing := f.MissingColumns(columns...); len(missing) > 0 {
		return fmt.Errorf("csv: frame has no column(s) %s", strings.Join(missing, ", "))
	}
	writer := csv.NewWriter(w)
	if err := writer.Write(columns); err != nil {
		return err
	}
	record := make([]string, len(columns))
	for row := 0; row < f.Len(); row++ {
		for i, col := range columns {
			v, err := f.Value(row, col)
			if err != nil {
				return err
			}
			record[i] = strconv.FormatFloat(v, 'g', -1, 64)
		}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}
