package transactions

import (
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

const (
	// InferSchemaRows is how many data rows are inspected to decide whether a
	// column is numeric.
	InferSchemaRows = 1000
)

// NullTokens are cell values treated as missing, in addition to "".
var NullTokens = []string{"NA", "null", "None"}

var ErrNoHeader = errors.New("csv has no header row")

// LoadStats reports what the loader discarded.
type LoadStats struct {
	SkippedRows int
	NulledCells int
}

// LoadCSV parses a CSV export. Rows that fail to parse or whose width does
// not match the header are skipped. Column types are inferred from the first
// InferSchemaRows rows: in a column where every non-missing value is numeric,
// later non-numeric values become missing.
func LoadCSV(r io.Reader) (RawTable, LoadStats, error) {
	var stats LoadStats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return RawTable{}, stats, ErrNoHeader
	}
	if err != nil {
		return RawTable{}, stats, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	raw := RawTable{Header: append([]string(nil), header...)}

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			var parseErr *csv.ParseError
			if errors.As(err, &parseErr) {
				stats.SkippedRows++
				continue
			}
			return RawTable{}, stats, fmt.Errorf("failed to read csv: %w", err)
		}
		if len(record) != len(header) {
			stats.SkippedRows++
			continue
		}

		cells := make([]*string, len(record))
		for i, v := range record {
			if isNullToken(v) {
				continue
			}
			cells[i] = &v
		}
		raw.Rows = append(raw.Rows, cells)
	}

	stats.NulledCells = applyInferredSchema(raw)

	return raw, stats, nil
}

// LoadCSVBytes is LoadCSV over an in-memory upload.
func LoadCSVBytes(data []byte) (RawTable, LoadStats, error) {
	return LoadCSV(bytes.NewReader(data))
}

func isNullToken(v string) bool {
	if v == "" {
		return true
	}
	for _, tok := range NullTokens {
		if v == tok {
			return true
		}
	}
	return false
}

func applyInferredSchema(raw RawTable) int {
	sample := raw.Rows
	if len(sample) > InferSchemaRows {
		sample = sample[:InferSchemaRows]
	}

	nulled := 0
	for col := range raw.Header {
		if !numericColumn(sample, col) {
			continue
		}
		for _, row := range raw.Rows[len(sample):] {
			if row[col] != nil && !isNumeric(*row[col]) {
				row[col] = nil
				nulled++
			}
		}
	}
	return nulled
}

func numericColumn(rows [][]*string, col int) bool {
	seen := false
	for _, row := range rows {
		if row[col] == nil {
			continue
		}
		if !isNumeric(*row[col]) {
			return false
		}
		seen = true
	}
	return seen
}

func isNumeric(v string) bool {
	_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
	return err == nil
}
