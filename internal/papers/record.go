// Package papers turns a PubMed query into the list of articles that have
// at least one author with a non-academic (industry) affiliation.
package papers

import (
	"strings"

	"github.com/henrybloomingdale/getpapers/internal/affiliation"
	"github.com/henrybloomingdale/getpapers/internal/eutils"
)

// ListSeparator joins multi-valued fields when a record is flattened.
const ListSeparator = "; "

// Record is one row of the report. It is only produced for articles with
// at least one non-academic author.
type Record struct {
	PubmedID            string   `json:"pubmed_id"`
	Title               string   `json:"title"`
	PublicationDate     string   `json:"publication_date"`
	NonAcademicAuthors  []string `json:"non_academic_authors"`
	CompanyAffiliations []string `json:"company_affiliations"`
	CorrespondingEmail  string   `json:"corresponding_email"`
}

// Authors returns the non-academic authors joined by ListSeparator.
func (r Record) Authors() string {
	return strings.Join(r.NonAcademicAuthors, ListSeparator)
}

// Companies returns the company names joined by ListSeparator.
func (r Record) Companies() string {
	return strings.Join(r.CompanyAffiliations, ListSeparator)
}

// Classifier decides which affiliations are industry and names the company.
// *affiliation.Classifier is the production implementation.
type Classifier interface {
	IsNonAcademic(aff string) bool
	CompanyName(aff string) string
}

// BuildRecord applies c to every author affiliation of a and returns the
// report row, or nil when no author is non-academic.
//
// An author counts once, in author-list order, if any of their affiliations
// is non-academic. Company names are de-duplicated case-insensitively in
// first-seen order. The corresponding email is the first address found in
// any author's affiliation text.
func BuildRecord(a *eutils.Article, c Classifier) *Record {
	if a == nil {
		return nil
	}

	var (
		authors   []string
		companies []string
		email     string
		seen      = map[string]bool{}
	)

	for _, au := range a.Authors {
		industry := false
		for _, aff := range au.Affiliations {
			if email == "" {
				email = affiliation.FindEmail(aff)
			}
			if !c.IsNonAcademic(aff) {
				continue
			}
			industry = true
			name := c.CompanyName(aff)
			key := strings.ToLower(name)
			if name != "" && !seen[key] {
				seen[key] = true
				companies = append(companies, name)
			}
		}
		if industry {
			if name := strings.TrimSpace(au.FullName()); name != "" {
				authors = append(authors, name)
			}
		}
	}

	if len(authors) == 0 {
		return nil
	}

	return &Record{
		PubmedID:            a.PMID,
		Title:               a.Title,
		PublicationDate:     a.PubDate.String(),
		NonAcademicAuthors:  authors,
		CompanyAffiliations: companies,
		CorrespondingEmail:  email,
	}
}
