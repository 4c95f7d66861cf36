package eutils

import (
	"github.com/henrybloomingdale/getpapers/internal/ncbi"
)

// Client is an HTTP client for the PubMed search and fetch E-utilities.
// It embeds ncbi.BaseClient for shared rate limiting, common parameters,
// retries and response size guards.
type Client struct {
	*ncbi.BaseClient
}

// Option configures a Client (alias for ncbi.Option).
type Option = ncbi.Option

// Re-exported so callers only need to import eutils.
var (
	WithBaseURL          = ncbi.WithBaseURL
	WithAPIKey           = ncbi.WithAPIKey
	WithTool             = ncbi.WithTool
	WithEmail            = ncbi.WithEmail
	WithHTTPClient       = ncbi.WithHTTPClient
	WithTimeout          = ncbi.WithTimeout
	WithMaxResponseBytes = ncbi.WithMaxResponseBytes
	WithObserver         = ncbi.WithObserver
	WithLogger           = ncbi.WithLogger
)

// NewClient creates a new E-utilities client with the given options.
func NewClient(opts ...Option) *Client {
	return &Client{BaseClient: ncbi.NewBaseClient(opts...)}
}
