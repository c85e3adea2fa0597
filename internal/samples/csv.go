package samples

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"sort"
	"strconv"
	"strings"
	"time"
)

// ReadCSV loads a table from CSV with a header row. timeColumn names the
// time axis; when empty the first column is used. Time cells may be plain
// numbers or RFC 3339 timestamps (converted to Unix seconds). Empty or
// non-numeric value cells become NaN. Rows without a usable time are
// dropped and the remainder is sorted by time.
func ReadCSV(r io.Reader, timeColumn string) (*MemTable, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	headers, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read CSV header: %w", err)
	}

	timeIdx := 0
	if timeColumn != "" {
		timeIdx = -1
		for i, h := range headers {
			if strings.TrimSpace(h) == timeColumn {
				timeIdx = i
				break
			}
		}
		if timeIdx < 0 {
			return nil, fmt.Errorf("time column %q not found in header %v", timeColumn, headers)
		}
	}

	type row struct {
		t      float64
		values []float64
	}
	var rows []row
	line := 1
	for {
		record, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("failed to read CSV line %d: %w", line, err)
		}
		if timeIdx >= len(record) {
			continue
		}
		t, ok := parseTime(record[timeIdx])
		if !ok {
			continue
		}
		values := make([]float64, len(headers))
		for i := range headers {
			values[i] = math.NaN()
			if i < len(record) {
				values[i] = parseValue(record[i])
			}
		}
		rows = append(rows, row{t: t, values: values})
	}

	sort.SliceStable(rows, func(i, j int) bool { return rows[i].t < rows[j].t })

	times := make([]float64, len(rows))
	for i, r := range rows {
		times[i] = r.t
	}
	table, err := NewMemTable(times)
	if err != nil {
		return nil, err
	}

	for i, h := range headers {
		if i == timeIdx {
			continue
		}
		col := make([]float64, len(rows))
		for k, r := range rows {
			col[k] = r.values[i]
		}
		if err := table.AddColumn(strings.TrimSpace(h), col); err != nil {
			return nil, err
		}
	}
	return table, nil
}

func parseValue(s string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return math.NaN()
	}
	return v
}

func parseTime(s string) (float64, bool) {
	s = strings.TrimSpace(s)
	if v, err := strconv.ParseFloat(s, 64); err == nil {
		return v, finite(v)
	}
	ts, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return 0, false
	}
	return float64(ts.UnixNano()) / 1e9, true
}
