package eutils

import (
	"context"
	"encoding/xml"
	"errors"
	"fmt"
	"html"
	"net/url"
	"regexp"
	"strings"
)

// ErrArticleNotFound is returned by FetchArticle when EFetch answers
// without a PubmedArticle for the requested PMID.
var ErrArticleNotFound = errors.New("article not found")

// XML structures for parsing PubMed EFetch responses.

type pubmedArticleSet struct {
	XMLName  xml.Name        `xml:"PubmedArticleSet"`
	Articles []pubmedArticle `xml:"PubmedArticle"`
}

type pubmedArticle struct {
	Citation   medlineCitation `xml:"MedlineCitation"`
	PubmedData pubmedData      `xml:"PubmedData"`
}

type medlineCitation struct {
	PMID    string     `xml:"PMID"`
	Article xmlArticle `xml:"Article"`
}

type xmlArticle struct {
	Journal             xmlJournal             `xml:"Journal"`
	ArticleTitle        xmlMarkup              `xml:"ArticleTitle"`
	AuthorList          xmlAuthorList          `xml:"AuthorList"`
	Language            []string               `xml:"Language"`
	PublicationTypeList xmlPublicationTypeList `xml:"PublicationTypeList"`
}

// xmlMarkup keeps the raw inner XML so inline tags such as <i> or <sup>
// inside titles do not drop their text.
type xmlMarkup struct {
	Inner string `xml:",innerxml"`
}

type xmlJournal struct {
	Title        string          `xml:"Title"`
	JournalIssue xmlJournalIssue `xml:"JournalIssue"`
}

type xmlJournalIssue struct {
	PubDate xmlPubDate `xml:"PubDate"`
}

type xmlPubDate struct {
	Year        string `xml:"Year"`
	Month       string `xml:"Month"`
	Day         string `xml:"Day"`
	MedlineDate string `xml:"MedlineDate"`
}

type xmlAuthorList struct {
	Authors []xmlAuthor `xml:"Author"`
}

type xmlAuthor struct {
	ValidYN         string               `xml:"ValidYN,attr"`
	LastName        string               `xml:"LastName"`
	ForeName        string               `xml:"ForeName"`
	Initials        string               `xml:"Initials"`
	CollectiveName  xmlMarkup            `xml:"CollectiveName"`
	AffiliationInfo []xmlAffiliationInfo `xml:"AffiliationInfo"`
}

type xmlAffiliationInfo struct {
	Affiliation xmlMarkup `xml:"Affiliation"`
}

type xmlPublicationTypeList struct {
	Types []string `xml:"PublicationType"`
}

type pubmedData struct {
	ArticleIDList struct {
		ArticleIDs []xmlArticleID `xml:"ArticleId"`
	} `xml:"ArticleIdList"`
}

type xmlArticleID struct {
	IDType string `xml:"IdType,attr"`
	Value  string `xml:",chardata"`
}

// Fetch retrieves article details for the given PMIDs in one EFetch call.
func (c *Client) Fetch(ctx context.Context, pmids []string) ([]Article, error) {
	if len(pmids) == 0 {
		return nil, fmt.Errorf("at least one PMID is required")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("id", strings.Join(pmids, ","))
	params.Set("rettype", "xml")
	params.Set("retmode", "xml")

	body, err := c.DoGet(ctx, "efetch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("fetch request failed: %w", err)
	}

	return parseArticles(body)
}

// FetchArticle retrieves a single article. It issues exactly one EFetch
// request and returns ErrArticleNotFound when the response holds no record
// for pmid.
func (c *Client) FetchArticle(ctx context.Context, pmid string) (*Article, error) {
	pmid = strings.TrimSpace(pmid)
	if pmid == "" {
		return nil, fmt.Errorf("PMID cannot be empty")
	}

	articles, err := c.Fetch(ctx, []string{pmid})
	if err != nil {
		return nil, err
	}
	for i := range articles {
		if articles[i].PMID == pmid {
			return &articles[i], nil
		}
	}
	return nil, fmt.Errorf("PMID %s: %w", pmid, ErrArticleNotFound)
}

// parseArticles parses PubMed XML into Article structs.
func parseArticles(data []byte) ([]Article, error) {
	var articleSet pubmedArticleSet
	if err := xml.Unmarshal(data, &articleSet); err != nil {
		return nil, fmt.Errorf("parsing PubMed XML: %w", err)
	}

	articles := make([]Article, 0, len(articleSet.Articles))
	for _, pa := range articleSet.Articles {
		articles = append(articles, convertArticle(pa))
	}
	return articles, nil
}

func convertArticle(pa pubmedArticle) Article {
	mc := pa.Citation
	xa := mc.Article
	pd := xa.Journal.JournalIssue.PubDate

	a := Article{
		PMID:    strings.TrimSpace(mc.PMID),
		Title:   plainText(xa.ArticleTitle.Inner),
		Journal: xa.Journal.Title,
		PubDate: PubDate{
			Year:        pd.Year,
			Month:       pd.Month,
			Day:         pd.Day,
			MedlineDate: pd.MedlineDate,
		},
		PublicationTypes: xa.PublicationTypeList.Types,
	}

	if len(xa.Language) > 0 {
		a.Language = xa.Language[0]
	}

	for _, au := range xa.AuthorList.Authors {
		if au.ValidYN == "N" {
			continue
		}
		author := Author{
			LastName:       au.LastName,
			ForeName:       au.ForeName,
			Initials:       au.Initials,
			CollectiveName: plainText(au.CollectiveName.Inner),
		}
		for _, ai := range au.AffiliationInfo {
			if aff := plainText(ai.Affiliation.Inner); aff != "" {
				author.Affiliations = append(author.Affiliations, aff)
			}
		}
		a.Authors = append(a.Authors, author)
	}

	for _, aid := range pa.PubmedData.ArticleIDList.ArticleIDs {
		switch aid.IDType {
		case "doi":
			a.DOI = aid.Value
		case "pmc":
			a.PMCID = aid.Value
		}
	}

	return a
}

var (
	tagPattern   = regexp.MustCompile(`<[^>]*>`)
	spacePattern = regexp.MustCompile(`\s+`)
)

// plainText strips inline markup and entities from an innerxml fragment
// and collapses whitespace.
func plainText(inner string) string {
	s := tagPattern.ReplaceAllString(inner, "")
	s = html.UnescapeString(s)
	return strings.TrimSpace(spacePattern.ReplaceAllString(s, " "))
}
