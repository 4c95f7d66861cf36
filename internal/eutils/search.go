package eutils

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// DefaultSearchLimit is the retmax sent when no limit is configured.
const DefaultSearchLimit = 20

// esearchResponse represents the raw JSON response from ESearch.
type esearchResponse struct {
	Result *esearchResult `json:"esearchresult"`
}

type esearchResult struct {
	Count            string   `json:"count"`
	RetMax           string   `json:"retmax"`
	IDList           []string `json:"idlist"`
	QueryTranslation string   `json:"querytranslation"`
}

// Search performs an ESearch query against PubMed and returns the matching
// PMIDs in the order PubMed ranked them.
func (c *Client) Search(ctx context.Context, query string, opts *SearchOptions) (*SearchResult, error) {
	if strings.TrimSpace(query) == "" {
		return nil, fmt.Errorf("search query cannot be empty")
	}

	params := url.Values{}
	params.Set("db", "pubmed")
	params.Set("term", query)
	params.Set("retmode", "json")

	limit := DefaultSearchLimit
	if opts != nil {
		if opts.Limit > 0 {
			limit = opts.Limit
		}
		if opts.Sort != "" {
			params.Set("sort", opts.Sort)
		}
		if opts.MinDate != "" && opts.MaxDate != "" {
			params.Set("datetype", "pdat")
			params.Set("mindate", opts.MinDate)
			params.Set("maxdate", opts.MaxDate)
		}
	}
	params.Set("retmax", strconv.Itoa(limit))

	body, err := c.DoGet(ctx, "esearch.fcgi", params)
	if err != nil {
		return nil, fmt.Errorf("search request failed: %w", err)
	}

	var resp esearchResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("parsing search response: %w", err)
	}
	if resp.Result == nil {
		return nil, fmt.Errorf("parsing search response: missing esearchresult")
	}

	count, _ := strconv.Atoi(resp.Result.Count)
	ids := resp.Result.IDList
	if ids == nil {
		ids = []string{}
	}

	return &SearchResult{
		Count:            count,
		IDs:              ids,
		QueryTranslation: resp.Result.QueryTranslation,
	}, nil
}
