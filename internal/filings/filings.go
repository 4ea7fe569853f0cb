// Package filings selects filings and earnings exhibits out of registry
// filing histories and document indexes.
package filings

import (
	"sort"

	"github.com/JakeFAU/edgar-exhibit-archiver/internal/registry"
)

// Form tags consulted by the archiver.
const (
	FormAnnual        = "10-K"
	FormAnnualAmnd    = "10-K/A"
	FormQuarterly     = "10-Q"
	FormQuarterlyAmnd = "10-Q/A"
	FormCurrent       = "8-K"
	FormCurrentAmnd   = "8-K/A"
)

// FilingMeta references one disclosure document.
type FilingMeta struct {
	Form            string
	FilingDate      string
	Accession       string
	PrimaryDocument string
}

// ListFilings returns the recent filings whose form is in forms, newest first.
// Filings sharing a date keep their source order. Rows missing from any of the
// parallel arrays are skipped.
func ListFilings(subs registry.Submissions, forms ...string) []FilingMeta {
	wanted := make(map[string]struct{}, len(forms))
	for _, f := range forms {
		wanted[f] = struct{}{}
	}
	recent := subs.Filings.Recent
	out := make([]FilingMeta, 0, len(recent.Form))
	for i, form := range recent.Form {
		if _, ok := wanted[form]; !ok {
			continue
		}
		if i >= len(recent.FilingDate) || i >= len(recent.AccessionNumber) || i >= len(recent.PrimaryDocument) {
			continue
		}
		out = append(out, FilingMeta{
			Form:            form,
			FilingDate:      recent.FilingDate[i],
			Accession:       recent.AccessionNumber[i],
			PrimaryDocument: recent.PrimaryDocument[i],
		})
	}
	// ISO dates order lexically.
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FilingDate > out[j].FilingDate
	})
	return out
}

// LatestOfForm returns the first filing of exactly form. The amended variant
// (form + "/A") is used only when no primary filing exists. filings must be
// ordered newest first.
func LatestOfForm(filings []FilingMeta, form string) (FilingMeta, bool) {
	for _, f := range filings {
		if f.Form == form {
			return f, true
		}
	}
	amended := form + "/A"
	for _, f := range filings {
		if f.Form == amended {
			return f, true
		}
	}
	return FilingMeta{}, false
}

// OfForms returns the filings whose form is one of forms, preserving order.
func OfForms(filings []FilingMeta, forms ...string) []FilingMeta {
	out := make([]FilingMeta, 0, len(filings))
	for _, f := range filings {
		for _, form := range forms {
			if f.Form == form {
				out = append(out, f)
				break
			}
		}
	}
	return out
}
