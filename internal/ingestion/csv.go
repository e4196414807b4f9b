// Package ingestion parses uploaded CSV files of factorization targets.
// Each row carries one target N, optionally followed by explicit lower and
// upper search bounds.
package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/jonathan/factor-engine/internal/numeric"
	"github.com/jonathan/factor-engine/internal/types"
)

// RowError records why one CSV line was rejected. Good lines still parse;
// the caller decides whether any errors make the whole upload unacceptable.
type RowError struct {
	Line    int    `json:"line"`
	Message string `json:"message"`
}

// Result is the outcome of parsing one CSV file.
type Result struct {
	Rows   []types.UploadRow `json:"rows"`
	Errors []RowError        `json:"errors,omitempty"`
}

// Empty reports whether the file contained no usable data rows at all.
func (r *Result) Empty() bool {
	return len(r.Rows) == 0 && len(r.Errors) == 0
}

// ParseCSV reads targets from r. Blank lines are skipped, a leading header
// row (first field not numeric) is tolerated, and each data row is
// "n[,lower[,upper]]". Malformed rows are reported per line without
// aborting the rest of the file.
func ParseCSV(r io.Reader) (*Result, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	result := &Result{}
	line := 0
	first := true

	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			if parseErr, ok := err.(*csv.ParseError); ok {
				result.Errors = append(result.Errors, RowError{
					Line:    parseErr.Line,
					Message: fmt.Sprintf("malformed CSV: %v", parseErr.Err),
				})
				first = false
				continue
			}
			return nil, fmt.Errorf("failed to read CSV: %w", err)
		}

		if blankRecord(record) {
			continue
		}

		// A non-numeric first field on the first data row is a header.
		if first {
			first = false
			if _, err := numeric.ParseInt(record[0]); err != nil {
				continue
			}
		}

		row, rowErr := parseRow(line, record)
		if rowErr != nil {
			result.Errors = append(result.Errors, *rowErr)
			continue
		}
		result.Rows = append(result.Rows, row)
	}

	return result, nil
}

func parseRow(line int, record []string) (types.UploadRow, *RowError) {
	row := types.UploadRow{Line: line}

	n, err := numeric.ParseTarget(record[0])
	if err != nil {
		return row, &RowError{Line: line, Message: fmt.Sprintf("invalid target: %v", err)}
	}
	row.N = n.String()

	if len(record) > 1 && strings.TrimSpace(record[1]) != "" {
		lower, err := numeric.ParseInt(record[1])
		if err != nil {
			return row, &RowError{Line: line, Message: fmt.Sprintf("invalid lower bound: %v", err)}
		}
		if lower.Sign() < 0 {
			return row, &RowError{Line: line, Message: "lower bound must be non-negative"}
		}
		row.LowerBound = lower.String()
	}

	if len(record) > 2 && strings.TrimSpace(record[2]) != "" {
		upper, err := numeric.ParseInt(record[2])
		if err != nil {
			return row, &RowError{Line: line, Message: fmt.Sprintf("invalid upper bound: %v", err)}
		}
		if upper.Sign() < 0 {
			return row, &RowError{Line: line, Message: "upper bound must be non-negative"}
		}
		row.UpperBound = upper.String()
	}

	if row.LowerBound != "" && row.UpperBound != "" {
		lower, _ := numeric.ParseInt(row.LowerBound)
		upper, _ := numeric.ParseInt(row.UpperBound)
		if lower.Cmp(upper) >= 0 {
			return row, &RowError{Line: line, Message: "lower bound must be below upper bound"}
		}
	}

	return row, nil
}

func blankRecord(record []string) bool {
	for _, field := range record {
		if strings.TrimSpace(field) != "" {
			return false
		}
	}
	return true
}
