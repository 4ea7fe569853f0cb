// Package input reads the ticker table that drives a run.
package input

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// Row is one input entry. Ticker is uppercased and trimmed; a blank Ticker
// is kept so the caller can skip it.
type Row struct {
	Ticker      string
	CompanyName string
}

// InputError reports an unusable ticker table.
type InputError struct {
	Path string
	Err  error
}

func (e *InputError) Error() string {
	return fmt.Sprintf("input %s: %v", e.Path, e.Err)
}

func (e *InputError) Unwrap() error {
	return e.Err
}

// ErrMissingTickerColumn is wrapped when the header has no ticker column.
var ErrMissingTickerColumn = errors.New("missing required column \"ticker\"")

// ReadFile reads the table at path.
func ReadFile(path string) ([]Row, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	defer f.Close()
	rows, err := Read(f)
	if err != nil {
		return nil, &InputError{Path: path, Err: err}
	}
	return rows, nil
}

// Read parses a CSV table with a ticker column and an optional
// company_name column. An empty table yields no rows.
func Read(r io.Reader) ([]Row, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	tickerCol, companyCol := -1, -1
	for i, name := range header {
		switch strings.ToLower(strings.TrimSpace(strings.TrimPrefix(name, "\ufeff"))) {
		case "ticker":
			tickerCol = i
		case "company_name":
			companyCol = i
		}
	}
	if tickerCol < 0 {
		return nil, ErrMissingTickerColumn
	}

	var rows []Row
	for line := 2; ; line++ {
		rec, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		var row Row
		if tickerCol < len(rec) {
			row.Ticker = strings.ToUpper(strings.TrimSpace(rec[tickerCol]))
		}
		if companyCol >= 0 && companyCol < len(rec) {
			row.CompanyName = strings.TrimSpace(rec[companyCol])
		}
		rows = append(rows, row)
	}
	return rows, nil
}
