package ledger

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// CSVStore keeps the ledger in a CSV file. The file is opened and closed on
// every append so each row is on disk before the next ticker starts.
type CSVStore struct {
	path string
}

var _ Store = (*CSVStore)(nil)

// NewCSVStore returns a store backed by the file at path.
func NewCSVStore(path string) *CSVStore {
	return &CSVStore{path: path}
}

// Path returns the ledger file location.
func (s *CSVStore) Path() string {
	return s.path
}

// Completed reads the ticker column. A missing file is an empty ledger.
func (s *CSVStore) Completed(_ context.Context) (map[string]struct{}, error) {
	done := make(map[string]struct{})
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return done, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	header, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return done, nil
		}
		return nil, fmt.Errorf("read ledger header: %w", err)
	}
	col := -1
	for i, name := range header {
		if strings.TrimSpace(name) == "ticker" {
			col = i
			break
		}
	}
	if col < 0 {
		return nil, fmt.Errorf("ledger %s has no ticker column", s.path)
	}
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		if col >= len(rec) {
			continue
		}
		if ticker := strings.ToUpper(strings.TrimSpace(rec[col])); ticker != "" {
			done[ticker] = struct{}{}
		}
	}
	return done, nil
}

// Results reads every row of the ledger in file order.
func (s *CSVStore) Results(_ context.Context) ([]Result, error) {
	f, err := os.Open(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("open ledger: %w", err)
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	index := make(map[string]int, len(rows[0]))
	for i, name := range rows[0] {
		index[strings.TrimSpace(name)] = i
	}
	for _, name := range Columns {
		if _, ok := index[name]; !ok {
			return nil, fmt.Errorf("ledger %s has no %s column", s.path, name)
		}
	}

	out := make([]Result, 0, len(rows)-1)
	for line, rec := range rows[1:] {
		field := func(name string) string { return rec[index[name]] }
		flags := make([]bool, 4)
		for i, name := range Columns[3:] {
			b, err := ParseBool(field(name))
			if err != nil {
				return nil, fmt.Errorf("ledger line %d: %w", line+2, err)
			}
			flags[i] = b
		}
		out = append(out, Result{
			CompanyName:   field("company_name"),
			Ticker:        strings.ToUpper(field("ticker")),
			Link:          field("drive_folder_link"),
			Has10K:        flags[0],
			Has10Q:        flags[1],
			HasDeck:       flags[2],
			HasTranscript: flags[3],
		})
	}
	return out, nil
}

// Append writes one row, preceded by the header when the file is new.
func (s *CSVStore) Append(_ context.Context, res Result) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("create ledger dir: %w", err)
	}
	_, statErr := os.Stat(s.path)
	writeHeader := errors.Is(statErr, os.ErrNotExist)

	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open ledger: %w", err)
	}
	w := csv.NewWriter(f)
	if writeHeader {
		if err := w.Write(Columns); err != nil {
			_ = f.Close()
			return fmt.Errorf("write ledger header: %w", err)
		}
	}
	if err := w.Write(res.record()); err != nil {
		_ = f.Close()
		return fmt.Errorf("write ledger row: %w", err)
	}
	w.Flush()
	if err := w.Error(); err != nil {
		_ = f.Close()
		return fmt.Errorf("flush ledger: %w", err)
	}
	if err := f.Sync(); err != nil {
		_ = f.Close()
		return fmt.Errorf("sync ledger: %w", err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close ledger: %w", err)
	}
	return nil
}

// Reset deletes the ledger file.
func (s *CSVStore) Reset(_ context.Context) error {
	if err := os.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove ledger: %w", err)
	}
	return nil
}

func (r Result) record() []string {
	return []string{
		r.CompanyName,
		r.Ticker,
		r.Link,
		formatBool(r.Has10K),
		formatBool(r.Has10Q),
		formatBool(r.HasDeck),
		formatBool(r.HasTranscript),
	}
}

// formatBool writes booleans as True/False, the ledger's historical format.
func formatBool(b bool) string {
	if b {
		return "True"
	}
	return "False"
}

// ParseBool accepts True/False in any case as well as 1/0.
func ParseBool(s string) (bool, error) {
	b, err := strconv.ParseBool(strings.ToLower(strings.TrimSpace(s)))
	if err != nil {
		return false, fmt.Errorf("parse ledger flag %q: %w", s, err)
	}
	return b, nil
}
