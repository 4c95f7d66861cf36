package output

import (
	"encoding/csv"
	"fmt"
	"io"

	"github.com/henrybloomingdale/getpapers/internal/papers"
)

// Header is the fixed CSV column order.
var Header = []string{
	"PubmedID",
	"Title",
	"Publication Date",
	"Non-academic Authors",
	"Company Affiliations",
	"Corresponding Email",
}

// Row flattens a record into Header order.
func Row(r papers.Record) []string {
	return []string{
		r.PubmedID,
		r.Title,
		r.PublicationDate,
		r.Authors(),
		r.Companies(),
		r.CorrespondingEmail,
	}
}

// WriteCSV writes the header and one row per record. Values are only
// escaped, never altered.
func WriteCSV(w io.Writer, records []papers.Record) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(Header); err != nil {
		return fmt.Errorf("writing CSV header: %w", err)
	}
	for _, r := range records {
		if err := cw.Write(Row(r)); err != nil {
			return fmt.Errorf("writing CSV row for PMID %s: %w", r.PubmedID, err)
		}
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		return fmt.Errorf("flushing CSV output: %w", err)
	}
	return nil
}
