package eutils

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestFetchArticle_Success(t *testing.T) {
	var q map[string]string
	srv := fixtureServer(t, loadTestdata(t, "efetch_article.xml"), &q)

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	a, err := c.FetchArticle(context.Background(), "38123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if !strings.HasSuffix(q["path"], "/efetch.fcgi") {
		t.Errorf("expected efetch.fcgi path, got %q", q["path"])
	}
	if q["id"] != "38123456" || q["db"] != "pubmed" || q["retmode"] != "xml" {
		t.Errorf("unexpected query: %v", q)
	}

	if a.PMID != "38123456" {
		t.Errorf("expected PMID 38123456, got %q", a.PMID)
	}
	if want := "Anti-PD-1 response in KRAS-mutant tumours & beyond."; a.Title != want {
		t.Errorf("expected title %q, got %q", want, a.Title)
	}
	if a.Journal != "Nature" {
		t.Errorf("expected journal Nature, got %q", a.Journal)
	}
	if got := a.PubDate.String(); got != "2024 Jan 18" {
		t.Errorf("expected date '2024 Jan 18', got %q", got)
	}
	if a.DOI != "10.1038/s41586-023-00001-x" {
		t.Errorf("unexpected DOI %q", a.DOI)
	}
	if a.PMCID != "PMC10800001" {
		t.Errorf("unexpected PMCID %q", a.PMCID)
	}
	if a.Language != "eng" {
		t.Errorf("expected language eng, got %q", a.Language)
	}
}

func TestFetchArticle_Authors(t *testing.T) {
	srv := fixtureServer(t, loadTestdata(t, "efetch_article.xml"), nil)

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	a, err := c.FetchArticle(context.Background(), "38123456")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	// The ValidYN="N" author is dropped.
	if len(a.Authors) != 3 {
		t.Fatalf("expected 3 authors, got %d", len(a.Authors))
	}
	if got := a.Authors[0].FullName(); got != "Jane Smith" {
		t.Errorf("expected 'Jane Smith', got %q", got)
	}

	lee := a.Authors[1]
	if len(lee.Affiliations) != 2 {
		t.Fatalf("expected 2 affiliations for second author, got %d", len(lee.Affiliations))
	}
	if !strings.HasPrefix(lee.Affiliations[0], "Oncology Research, Pfizer Inc.") {
		t.Errorf("unexpected first affiliation %q", lee.Affiliations[0])
	}
	if !strings.Contains(lee.Affiliations[1], "min.lee@example.com") {
		t.Errorf("expected email in second affiliation, got %q", lee.Affiliations[1])
	}

	group := a.Authors[2]
	if got := group.FullName(); got != "KRAS Immunotherapy Consortium" {
		t.Errorf("expected collective name, got %q", got)
	}
	if len(group.Affiliations) != 0 {
		t.Errorf("expected no affiliations, got %v", group.Affiliations)
	}
}

func TestFetchArticle_MedlineDate(t *testing.T) {
	srv := fixtureServer(t, loadTestdata(t, "efetch_medlinedate.xml"), nil)

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	a, err := c.FetchArticle(context.Background(), "10234567")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := a.PubDate.String(); got != "1998 Dec-1999 Jan" {
		t.Errorf("expected MedlineDate fallback, got %q", got)
	}
	if got := a.Authors[0].FullName(); got != "Doe" {
		t.Errorf("expected last name only, got %q", got)
	}
}

func TestFetchArticle_NotFound(t *testing.T) {
	srv := fixtureServer(t, loadTestdata(t, "efetch_empty.xml"), nil)

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	_, err := c.FetchArticle(context.Background(), "99999999")
	if !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestFetchArticle_MismatchedPMID(t *testing.T) {
	srv := fixtureServer(t, loadTestdata(t, "efetch_article.xml"), nil)

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	_, err := c.FetchArticle(context.Background(), "11111111")
	if !errors.Is(err, ErrArticleNotFound) {
		t.Fatalf("expected ErrArticleNotFound, got %v", err)
	}
}

func TestFetchArticle_EmptyPMID(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"))
	if _, err := c.FetchArticle(context.Background(), " "); err == nil {
		t.Fatal("expected error for empty PMID")
	}
}

func TestFetchArticle_MalformedXML(t *testing.T) {
	srv := fixtureServer(t, []byte(`<PubmedArticleSet><PubmedArticle>`), nil)

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	_, err := c.FetchArticle(context.Background(), "38123456")
	if err == nil {
		t.Fatal("expected parse error, got nil")
	}
	if !strings.Contains(err.Error(), "parsing PubMed XML") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestFetch_BatchJoinsIDs(t *testing.T) {
	var q map[string]string
	srv := fixtureServer(t, loadTestdata(t, "efetch_article.xml"), &q)

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	articles, err := c.Fetch(context.Background(), []string{"38123456", "38000002"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if q["id"] != "38123456,38000002" {
		t.Errorf("expected joined ids, got %q", q["id"])
	}
	if len(articles) != 1 {
		t.Errorf("expected 1 article, got %d", len(articles))
	}
}

func TestFetch_NoPMIDs(t *testing.T) {
	c := NewClient(WithBaseURL("http://127.0.0.1:1"))
	if _, err := c.Fetch(context.Background(), nil); err == nil {
		t.Fatal("expected error for empty PMID list")
	}
}

func TestFetch_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(WithBaseURL(srv.URL), WithAPIKey("test"))
	_, err := c.FetchArticle(context.Background(), "38123456")
	if err == nil {
		t.Fatal("expected error, got nil")
	}
	if !strings.Contains(err.Error(), "fetch request failed") {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestPubDateString(t *testing.T) {
	tests := []struct {
		d    PubDate
		want string
	}{
		{PubDate{Year: "2023", Month: "Mar", Day: "7"}, "2023 Mar 7"},
		{PubDate{Year: "2023", Month: "Mar"}, "2023 Mar"},
		{PubDate{Year: "2023"}, "2023"},
		{PubDate{MedlineDate: "2001 Spring"}, "2001 Spring"},
		{PubDate{Year: "2022", MedlineDate: "ignored"}, "2022"},
		{PubDate{}, ""},
	}
	for _, tt := range tests {
		if got := tt.d.String(); got != tt.want {
			t.Errorf("%+v.String() = %q, want %q", tt.d, got, tt.want)
		}
	}
}

func TestPlainText(t *testing.T) {
	tests := map[string]string{
		"plain":                      "plain",
		"<i>Homo</i> <b>sapiens</b>": "Homo sapiens",
		"A &amp; B":                  "A & B",
		"  line\n   wrapped\ttext  ": "line wrapped text",
		"CO<sub>2</sub> capture":     "CO2 capture",
		"":                           "",
	}
	for in, want := range tests {
		if got := plainText(in); got != want {
			t.Errorf("plainText(%q) = %q, want %q", in, got, want)
		}
	}
}
