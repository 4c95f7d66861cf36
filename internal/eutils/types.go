// Package eutils provides the PubMed side of the NCBI E-utilities API:
// ESearch for identifiers and EFetch for article metadata.
package eutils

import "strings"

// SearchResult represents the result of an ESearch query.
type SearchResult struct {
	Count            int      `json:"count"`
	IDs              []string `json:"ids"`
	QueryTranslation string   `json:"query_translation"`
}

// SearchOptions configures a search query.
type SearchOptions struct {
	Limit   int    `json:"limit,omitempty"`
	Sort    string `json:"sort,omitempty"`
	MinDate string `json:"min_date,omitempty"`
	MaxDate string `json:"max_date,omitempty"`
}

// Article is a PubMed article reduced to the fields getpapers reports on.
type Article struct {
	PMID             string   `json:"pmid"`
	Title            string   `json:"title"`
	Journal          string   `json:"journal"`
	PubDate          PubDate  `json:"pub_date"`
	Authors          []Author `json:"authors"`
	DOI              string   `json:"doi,omitempty"`
	PMCID            string   `json:"pmcid,omitempty"`
	PublicationTypes []string `json:"publication_types,omitempty"`
	Language         string   `json:"language,omitempty"`
}

// PubDate is the journal issue date as PubMed records it. Older and
// seasonal issues only carry a free-form MedlineDate such as "1998 Dec-1999 Jan".
type PubDate struct {
	Year        string `json:"year,omitempty"`
	Month       string `json:"month,omitempty"`
	Day         string `json:"day,omitempty"`
	MedlineDate string `json:"medline_date,omitempty"`
}

// String renders the date as "Year Month Day", omitting missing parts,
// or the MedlineDate when no structured year is present.
func (d PubDate) String() string {
	if d.Year == "" {
		return strings.TrimSpace(d.MedlineDate)
	}
	parts := make([]string, 0, 3)
	for _, p := range []string{d.Year, d.Month, d.Day} {
		if p = strings.TrimSpace(p); p != "" {
			parts = append(parts, p)
		}
	}
	return strings.Join(parts, " ")
}

// Author represents an article author with every affiliation PubMed lists.
type Author struct {
	LastName       string   `json:"last_name"`
	ForeName       string   `json:"fore_name"`
	Initials       string   `json:"initials"`
	CollectiveName string   `json:"collective_name,omitempty"`
	Affiliations   []string `json:"affiliations,omitempty"`
}

// FullName returns "ForeName LastName", or CollectiveName if present.
func (a Author) FullName() string {
	if a.CollectiveName != "" {
		return a.CollectiveName
	}
	if a.ForeName == "" {
		return a.LastName
	}
	return a.ForeName + " " + a.LastName
}
