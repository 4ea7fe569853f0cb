package registry

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
)

// Submissions is the entity filing-history document. Recent filings arrive as
// parallel arrays indexed together.
type Submissions struct {
	CIK     string        `json:"cik"`
	Name    string        `json:"name"`
	Tickers []string      `json:"tickers"`
	Filings FilingHistory `json:"filings"`
}

// FilingHistory groups the recent filings block.
type FilingHistory struct {
	Recent RecentFilings `json:"recent"`
}

// RecentFilings holds the parallel arrays of the recent filings block.
type RecentFilings struct {
	AccessionNumber []string `json:"accessionNumber"`
	FilingDate      []string `json:"filingDate"`
	Form            []string `json:"form"`
	PrimaryDocument []string `json:"primaryDocument"`
}

// FilingIndex is the per-filing directory listing.
type FilingIndex struct {
	Directory IndexDirectory `json:"directory"`
}

// IndexDirectory lists the files of one filing.
type IndexDirectory struct {
	Name string      `json:"name"`
	Item []IndexItem `json:"item"`
}

// IndexItem is one file entry in a filing index.
type IndexItem struct {
	Name         string `json:"name"`
	Type         string `json:"type"`
	LastModified string `json:"last-modified"`
}

// Names returns the filenames of the index in listing order.
func (f FilingIndex) Names() []string {
	names := make([]string, 0, len(f.Directory.Item))
	for _, item := range f.Directory.Item {
		names = append(names, item.Name)
	}
	return names
}

type tickerEntry struct {
	CIK    cikNumber `json:"cik_str"`
	Ticker string    `json:"ticker"`
	Title  string    `json:"title"`
}

// cikNumber accepts the identifier as either a JSON number or a string.
type cikNumber int64

func (c *cikNumber) UnmarshalJSON(data []byte) error {
	raw := bytes.Trim(bytes.TrimSpace(data), `"`)
	n, err := strconv.ParseInt(string(raw), 10, 64)
	if err != nil {
		return fmt.Errorf("cik %s: %w", data, err)
	}
	*c = cikNumber(n)
	return nil
}

var _ json.Unmarshaler = (*cikNumber)(nil)
