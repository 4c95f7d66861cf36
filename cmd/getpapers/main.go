// Command getpapers searches PubMed and reports the papers that have at
// least one author affiliated with a pharmaceutical or biotech company.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/henrybloomingdale/getpapers/internal/affiliation"
	"github.com/henrybloomingdale/getpapers/internal/cache"
	"github.com/henrybloomingdale/getpapers/internal/config"
	"github.com/henrybloomingdale/getpapers/internal/eutils"
	"github.com/henrybloomingdale/getpapers/internal/observability"
	"github.com/henrybloomingdale/getpapers/internal/output"
	"github.com/henrybloomingdale/getpapers/internal/papers"
)

const (
	metricsNamespace = "getpapers"
	articleBucket    = "articles"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var configFile string

	cmd := &cobra.Command{
		Use:   "getpapers <query...>",
		Short: "Find PubMed papers with pharmaceutical or biotech authors",
		Long: `Search PubMed with any query it accepts, fetch every hit and keep the papers
with at least one non-academic (company) author. The report is CSV on stdout
unless --file is given.`,
		Example: `  getpapers "cancer immunotherapy"
  getpapers -f papers.csv --limit 100 car-t therapy
  getpapers --type review --year 2020-2024 --format table crispr`,
		Args:         cobra.MinimumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd, args, configFile)
		},
	}

	f := cmd.Flags()
	f.StringVar(&configFile, "config", "", "Config file (default ./getpapers.yaml or ~/.config/getpapers/getpapers.yaml)")
	f.StringP("file", "f", "", "Write the report to this file instead of stdout")
	f.BoolP("debug", "d", false, "Print debug information during execution")
	f.Int("limit", eutils.DefaultSearchLimit, "Maximum number of search results to check")
	f.String("sort", "", "Sort order: relevance, pub_date, Author or JournalName")
	f.String("year", "", "Filter by publication year or range (e.g., 2020-2024)")
	f.String("type", "", "Filter by publication type (review, trial, meta-analysis, ...)")
	f.Int("concurrency", 1, "Number of articles fetched in parallel")
	f.String("format", output.FormatCSV, "Report format: csv, json or table")
	f.String("xlsx", "", "Also export the report to an Excel workbook")
	f.String("policy", "", "YAML file with academic and company keyword lists")
	f.String("cache", "", "Cache fetched articles in this bbolt database")
	f.Duration("cache-ttl", 7*24*time.Hour, "Maximum age of cached articles (0 keeps them forever)")
	f.String("api-key", "", "NCBI API key (or set NCBI_API_KEY env var)")
	f.String("email", "", "Contact email sent to NCBI")
	f.Duration("timeout", 30*time.Second, "Timeout for each NCBI request")
	f.String("metrics-file", "", "Write Prometheus metrics to this file after the run")
	f.String("log-format", "console", "Log format: console or json")

	return cmd
}

// buildQuery joins the query words and appends the publication type filter.
func buildQuery(args []string, pubType string) string {
	query := strings.TrimSpace(strings.Join(args, " "))
	if query == "" || pubType == "" {
		return query
	}

	// Multi-word types must be quoted.
	typeMap := map[string]string{
		"review":        `"review"[pt]`,
		"trial":         `"clinical trial"[pt]`,
		"meta-analysis": `"meta-analysis"[pt]`,
		"randomized":    `"randomized controlled trial"[pt]`,
		"case-report":   `"case reports"[pt]`,
	}
	if mapped, ok := typeMap[strings.ToLower(pubType)]; ok {
		return query + " AND " + mapped
	}
	return query + fmt.Sprintf(` AND "%s"[pt]`, pubType)
}

func run(cmd *cobra.Command, args []string, configFile string) error {
	stderr := cmd.ErrOrStderr()

	cfg, err := config.Load(config.LoadOptions{ConfigFile: configFile, Flags: cmd.Flags()})
	if err != nil {
		return err
	}
	cfg.Logging.Writer = stderr
	logger := observability.NewLogger(cfg.Logging)

	query := buildQuery(args, cfg.Search.Type)
	if query == "" {
		return papers.ErrEmptyQuery
	}

	opts := eutils.SearchOptions{Limit: cfg.Search.Limit, Sort: cfg.Search.Sort}
	opts.MinDate, opts.MaxDate, err = config.ParseYearRange(cfg.Search.Year)
	if err != nil {
		return err
	}

	classifier, err := newClassifier(cfg.PolicyFile)
	if err != nil {
		return err
	}

	metrics := observability.NewMetrics(metricsNamespace)
	if cfg.Metrics.File != "" {
		defer writeMetrics(metrics, cfg.Metrics.File, logger)
	}

	client := eutils.NewClient(
		eutils.WithBaseURL(cfg.NCBI.BaseURL),
		eutils.WithAPIKey(cfg.NCBI.APIKey),
		eutils.WithTool(cfg.NCBI.Tool),
		eutils.WithEmail(cfg.NCBI.Email),
		eutils.WithTimeout(cfg.NCBI.Timeout),
		eutils.WithObserver(metrics.ObserveRequest),
		eutils.WithLogger(logger),
	)

	var source papers.ArticleSource = client
	if cfg.Cache.Path != "" {
		store, err := cache.New[eutils.Article](articleBucket, cfg.Cache.Path,
			cache.WithTTL(cfg.Cache.TTL),
			cache.WithLogger(logger),
		)
		if err != nil {
			return fmt.Errorf("opening cache: %w", err)
		}
		defer store.Close()
		logger.Debug().Str("path", cfg.Cache.Path).Int("entries", store.Len()).Msg("article cache opened")
		source = papers.NewCachedSource(client, store).WithObserver(metrics.RecordCacheLookup)
	}

	pipeline := papers.NewPipeline(client, papers.NewDetailFetcher(source, classifier), papers.Config{
		Concurrency: cfg.Pipeline.Concurrency,
		Search:      opts,
	}).WithRecorder(metrics).WithLogger(logger)

	logger.Debug().
		Str("query", query).
		Int("limit", opts.Limit).
		Int("concurrency", cfg.Pipeline.Concurrency).
		Bool("api_key", cfg.NCBI.APIKey != "").
		Msg("starting run")

	var result *papers.Result
	if !cfg.Debug && useTUI(stderr) {
		result, err = runWithTUI(cmd.Context(), pipeline, query, stderr)
	} else {
		result, err = runPlain(cmd.Context(), pipeline, query, stderr, cfg.Debug)
	}
	if err != nil {
		return err
	}
	metrics.RecordRun(result.Elapsed)

	if cfg.Debug {
		defer output.FormatSummary(stderr, output.Summary{
			Query:    query,
			Found:    result.Count,
			Checked:  len(result.IDs),
			Kept:     len(result.Records),
			Skipped:  len(result.Skipped),
			Elapsed:  result.Elapsed.Round(time.Millisecond).String(),
			Saved:    cfg.Output.File,
			Workbook: cfg.Output.XLSX,
		})
	}

	if len(result.Records) == 0 {
		fmt.Fprintln(stderr, "No non-academic papers found.")
		return nil
	}

	if err := output.WriteReport(output.ReportConfig{
		File:     cfg.Output.File,
		Format:   cfg.Output.Format,
		XLSXFile: cfg.Output.XLSX,
	}, cmd.OutOrStdout(), result.Records); err != nil {
		return fmt.Errorf("writing report for %q: %w", query, err)
	}

	if cfg.Output.File != "" {
		fmt.Fprintf(stderr, "Results written to %s\n", cfg.Output.File)
	}
	if cfg.Output.XLSX != "" {
		fmt.Fprintf(stderr, "Workbook written to %s\n", cfg.Output.XLSX)
	}
	return nil
}

func newClassifier(policyFile string) (*affiliation.Classifier, error) {
	policy := affiliation.DefaultPolicy()
	if policyFile != "" {
		var err error
		if policy, err = affiliation.LoadPolicy(policyFile); err != nil {
			return nil, err
		}
	}
	return affiliation.NewClassifier(policy)
}

func writeMetrics(m *observability.Metrics, path string, logger zerolog.Logger) {
	if err := m.WriteTextfile(path); err != nil {
		logger.Warn().Err(err).Msg("metrics not written")
	}
}

// useTUI reports whether the progress UI can take over the terminal.
func useTUI(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) && isatty.IsTerminal(os.Stdin.Fd())
}
