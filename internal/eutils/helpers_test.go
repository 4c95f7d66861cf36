package eutils

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
)

func loadTestdata(t *testing.T, name string) []byte {
	t.Helper()
	data, err := os.ReadFile(filepath.Join("testdata", name))
	if err != nil {
		t.Fatalf("reading testdata %s: %v", name, err)
	}
	return data
}

// fixtureServer serves the same body for every request and records the
// last query string it saw.
func fixtureServer(t *testing.T, body []byte, got *map[string]string) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got != nil {
			m := map[string]string{"path": r.URL.Path}
			for k := range r.URL.Query() {
				m[k] = r.URL.Query().Get(k)
			}
			*got = m
		}
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv
}
