package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
)

const articleTemplate = `<?xml version="1.0" ?>
<PubmedArticleSet>
  <PubmedArticle>
    <MedlineCitation>
      <PMID Version="1">%s</PMID>
      <Article>
        <Journal>
          <JournalIssue>
            <PubDate>%s</PubDate>
          </JournalIssue>
          <Title>Test Journal</Title>
        </Journal>
        <ArticleTitle>%s</ArticleTitle>
        <AuthorList>%s</AuthorList>
      </Article>
    </MedlineCitation>
  </PubmedArticle>
</PubmedArticleSet>`

func authorXML(fore, last, affiliation string) string {
	return fmt.Sprintf(`<Author ValidYN="Y"><LastName>%s</LastName><ForeName>%s</ForeName>`+
		`<AffiliationInfo><Affiliation>%s</Affiliation></AffiliationInfo></Author>`, last, fore, affiliation)
}

var fixtureArticles = map[string]string{
	"111": fmt.Sprintf(articleTemplate, "111",
		"<Year>2023</Year><Month>Jun</Month><Day>2</Day>",
		"Checkpoint inhibitors, in practice",
		authorXML("Ann", "Academic", "Stanford University, Stanford, CA, USA.")+
			authorXML("Ian", "Industry", "Pfizer Inc., New York, NY, USA. Electronic address: ian@pfizer.com.")),
	"222": fmt.Sprintf(articleTemplate, "222",
		"<Year>2022</Year>",
		"Purely academic work",
		authorXML("Sam", "Scholar", "Stanford University, Stanford, CA, USA.")+
			authorXML("Dee", "Doctor", "Massachusetts General Hospital, Boston, MA.")),
}

// eutilsServer fakes esearch and efetch. ids is the search result.
type eutilsServer struct {
	*httptest.Server

	mu    sync.Mutex
	terms []string
}

func newEutilsServer(t *testing.T, ids ...string) *eutilsServer {
	t.Helper()
	s := &eutilsServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		switch {
		case strings.HasSuffix(r.URL.Path, "esearch.fcgi"):
			s.mu.Lock()
			s.terms = append(s.terms, q.Get("term"))
			s.mu.Unlock()
			quoted := make([]string, len(ids))
			for i, id := range ids {
				quoted[i] = `"` + id + `"`
			}
			fmt.Fprintf(w, `{"esearchresult":{"count":"%d","idlist":[%s]}}`, len(ids), strings.Join(quoted, ","))
		case strings.HasSuffix(r.URL.Path, "efetch.fcgi"):
			body, ok := fixtureArticles[q.Get("id")]
			if !ok {
				w.Write([]byte(`<?xml version="1.0" ?><PubmedArticleSet></PubmedArticleSet>`))
				return
			}
			w.Write([]byte(body))
		default:
			http.NotFound(w, r)
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *eutilsServer) searchTerms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.terms...)
}

// isolate keeps config files and environment from leaking into a test.
func isolate(t *testing.T, baseURL string) string {
	t.Helper()
	dir := t.TempDir()
	t.Chdir(dir)
	t.Setenv("HOME", dir)
	t.Setenv("NCBI_API_KEY", "")
	t.Setenv("GETPAPERS_NCBI_API_KEY", "test-key")
	t.Setenv("GETPAPERS_NCBI_BASE_URL", baseURL)
	return dir
}

func execute(t *testing.T, args ...string) (stdout, stderr string, err error) {
	t.Helper()
	var out, errOut bytes.Buffer
	cmd := newRootCmd()
	cmd.SetArgs(args)
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	err = cmd.ExecuteContext(context.Background())
	return out.String(), errOut.String(), err
}

func TestRun_WritesIndustryPapersToFile(t *testing.T) {
	srv := newEutilsServer(t, "111", "222")
	dir := isolate(t, srv.URL)
	path := filepath.Join(dir, "papers.csv")

	stdout, stderr, err := execute(t, "cancer", "immunotherapy", "-f", path)
	if err != nil {
		t.Fatalf("unexpected error: %v (stderr: %s)", err, stderr)
	}
	if stdout != "" {
		t.Errorf("expected empty stdout when writing a file, got %q", stdout)
	}
	if !strings.Contains(stderr, "Results written to "+path) {
		t.Errorf("expected success message on stderr, got %q", stderr)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading report: %v", err)
	}
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	if err != nil {
		t.Fatalf("parsing report: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("expected header plus 1 row, got %d rows: %v", len(rows), rows)
	}
	want := []string{"111", "Checkpoint inhibitors, in practice", "2023 Jun 2", "Ian Industry", "Pfizer Inc.", "ian@pfizer.com"}
	for i := range want {
		if rows[1][i] != want[i] {
			t.Errorf("column %d: expected %q, got %q", i, want[i], rows[1][i])
		}
	}

	if terms := srv.searchTerms(); len(terms) != 1 || terms[0] != "cancer immunotherapy" {
		t.Errorf("expected one search for %q, got %v", "cancer immunotherapy", terms)
	}
}

func TestRun_StdoutMatchesFile(t *testing.T) {
	srv := newEutilsServer(t, "111", "222")
	dir := isolate(t, srv.URL)
	path := filepath.Join(dir, "papers.csv")

	if _, stderr, err := execute(t, "cancer", "-f", path); err != nil {
		t.Fatalf("file run failed: %v (stderr: %s)", err, stderr)
	}
	stdout, _, err := execute(t, "cancer")
	if err != nil {
		t.Fatalf("stdout run failed: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if stdout != string(data) {
		t.Errorf("stdout differs from file:\nstdout: %q\nfile:   %q", stdout, data)
	}
}

func TestRun_NoResultsCreatesNoFile(t *testing.T) {
	srv := newEutilsServer(t)
	dir := isolate(t, srv.URL)
	path := filepath.Join(dir, "papers.csv")

	stdout, stderr, err := execute(t, "nothing", "matches", "-f", path)
	if err != nil {
		t.Fatalf("expected success on empty result, got %v", err)
	}
	if !strings.Contains(stderr, "No non-academic papers found.") {
		t.Errorf("expected empty-result message, got %q", stderr)
	}
	if stdout != "" {
		t.Errorf("expected nothing on stdout, got %q", stdout)
	}
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Errorf("expected no file at %s", path)
	}
}

func TestRun_OnlyAcademicPapers(t *testing.T) {
	srv := newEutilsServer(t, "222")
	isolate(t, srv.URL)

	stdout, stderr, err := execute(t, "stanford")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stdout != "" || !strings.Contains(stderr, "No non-academic papers found.") {
		t.Errorf("expected no report, got stdout %q stderr %q", stdout, stderr)
	}
}

func TestRun_SkipsUnknownPMID(t *testing.T) {
	srv := newEutilsServer(t, "999", "111")
	isolate(t, srv.URL)

	stdout, stderr, err := execute(t, "cancer", "--debug")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(stdout, "\n111,") {
		t.Errorf("expected the 111 row, got %q", stdout)
	}
	if !strings.Contains(stderr, "999") {
		t.Errorf("expected the skipped PMID in debug output, got %q", stderr)
	}
}

func TestRun_SearchFailureNamesQuery(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()
	isolate(t, srv.URL)

	_, _, err := execute(t, "broken", "query")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), `"broken query"`) {
		t.Errorf("expected query in error, got %v", err)
	}
}

func TestRun_JSONFormat(t *testing.T) {
	srv := newEutilsServer(t, "111")
	isolate(t, srv.URL)

	stdout, _, err := execute(t, "cancer", "--format", "json")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.HasPrefix(strings.TrimSpace(stdout), "[") || !strings.Contains(stdout, `"ian@pfizer.com"`) {
		t.Errorf("expected JSON array output, got %q", stdout)
	}
}

func TestRun_MetricsAndCacheFiles(t *testing.T) {
	srv := newEutilsServer(t, "111", "222")
	dir := isolate(t, srv.URL)
	metricsPath := filepath.Join(dir, "getpapers.prom")
	cachePath := filepath.Join(dir, "cache.db")

	for i := 0; i < 2; i++ {
		if _, stderr, err := execute(t, "cancer", "--cache", cachePath, "--metrics-file", metricsPath); err != nil {
			t.Fatalf("run %d failed: %v (stderr: %s)", i, err, stderr)
		}
	}

	data, err := os.ReadFile(metricsPath)
	if err != nil {
		t.Fatalf("reading metrics: %v", err)
	}
	text := string(data)
	for _, want := range []string{"getpapers_ncbi_requests_total", "getpapers_articles_qualifying_total", `result="hit"`} {
		if !strings.Contains(text, want) {
			t.Errorf("expected %q in metrics file", want)
		}
	}
}

func TestRun_DebugReportsCacheSize(t *testing.T) {
	srv := newEutilsServer(t, "111", "222")
	dir := isolate(t, srv.URL)
	cachePath := filepath.Join(dir, "cache.db")

	if _, stderr, err := execute(t, "cancer", "--cache", cachePath); err != nil {
		t.Fatalf("first run failed: %v (stderr: %s)", err, stderr)
	}
	_, stderr, err := execute(t, "cancer", "--cache", cachePath, "--debug")
	if err != nil {
		t.Fatalf("second run failed: %v", err)
	}
	if !strings.Contains(stderr, "article cache opened") || !strings.Contains(stderr, "entries=2") {
		t.Errorf("expected cache size in debug output, got %q", stderr)
	}
	if !strings.Contains(stderr, "search finished") || !strings.Contains(stderr, "111") {
		t.Errorf("expected searched IDs in debug output, got %q", stderr)
	}
}

func TestRun_InvalidConcurrency(t *testing.T) {
	srv := newEutilsServer(t, "111")
	isolate(t, srv.URL)

	_, _, err := execute(t, "cancer", "--concurrency", "0")
	if err == nil || !strings.Contains(err.Error(), "Concurrency") {
		t.Errorf("expected concurrency validation error, got %v", err)
	}
}

func TestBuildQuery(t *testing.T) {
	tests := []struct {
		name    string
		args    []string
		pubType string
		want    string
	}{
		{"basic", []string{"fragile", "x", "syndrome"}, "", "fragile x syndrome"},
		{"trims", []string{"  asthma "}, "", "asthma"},
		{"review", []string{"asthma"}, "review", `asthma AND "review"[pt]`},
		{"trial", []string{"asthma"}, "Trial", `asthma AND "clinical trial"[pt]`},
		{"randomized", []string{"asthma"}, "randomized", `asthma AND "randomized controlled trial"[pt]`},
		{"meta-analysis", []string{"asthma"}, "meta-analysis", `asthma AND "meta-analysis"[pt]`},
		{"custom", []string{"asthma"}, "editorial", `asthma AND "editorial"[pt]`},
		{"empty", []string{" "}, "review", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := buildQuery(tt.args, tt.pubType); got != tt.want {
				t.Errorf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestRun_EmptyQuery(t *testing.T) {
	srv := newEutilsServer(t, "111")
	isolate(t, srv.URL)

	if _, _, err := execute(t, "   "); err == nil {
		t.Fatal("expected error for blank query")
	}
	if terms := srv.searchTerms(); len(terms) != 0 {
		t.Errorf("expected no search requests, got %v", terms)
	}
}
