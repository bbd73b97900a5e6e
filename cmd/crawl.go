package main

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/fatih/color"
	"github.com/panjf2000/ants/v2"
	"github.com/spf13/cobra"
	"github.com/xhad/ragingest/pkg/correlation"
	"github.com/xhad/ragingest/pkg/pipeline"
	"github.com/xhad/ragingest/pkg/scraper"
)

var (
	crawlTenant   string
	crawlMaxDepth int
)

var crawlCmd = &cobra.Command{
	Use:   "crawl [url]",
	Short: "Crawl a documentation site and ingest every page",
	Long: `Crawls pages on the same host as the start URL and ingests each one as an
HTML document. Asset ids are derived from page URLs, so a recrawl replaces the
chunks of the previous crawl.`,
	Args: cobra.ExactArgs(1),
	RunE: runCrawl,
}

func init() {
	crawlCmd.Flags().StringVarP(&crawlTenant, "tenant", "t", "", "tenant id")
	crawlCmd.Flags().IntVar(&crawlMaxDepth, "max-depth", 0, "maximum link depth (default from config)")
	_ = crawlCmd.MarkFlagRequired("tenant")
	rootCmd.AddCommand(crawlCmd)
}

func runCrawl(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	startURL := args[0]

	maxDepth := cfg.Scraper.MaxDepth
	if crawlMaxDepth > 0 {
		maxDepth = crawlMaxDepth
	}

	var scraped int32
	s, err := scraper.NewWithConfig(scraper.ScraperConfig{
		BaseURL:           startURL,
		MaxDepth:          maxDepth,
		RateLimit:         cfg.Scraper.RateLimit,
		IgnorePatterns:    cfg.Scraper.IgnorePatterns,
		AllowedExtensions: cfg.Scraper.AllowedExtensions,
		OnProgress: func(url string) {
			atomic.AddInt32(&scraped, 1)
		},
		Logger: logger,
	})
	if err != nil {
		return fmt.Errorf("failed to initialize scraper: %w", err)
	}

	a, err := newApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	pool, err := ants.NewPool(cfg.Ingest.Workers)
	if err != nil {
		return fmt.Errorf("failed to create worker pool: %w", err)
	}
	defer pool.Release()

	color.Blue("\nCrawling %s for tenant %s\n", startURL, crawlTenant)
	spinner := newSpinner(cmd.ErrOrStderr(), "📄 Crawling documentation...")

	var (
		wg       sync.WaitGroup
		ingested int32
		failed   int32
	)
	crawlErr := s.Crawl(ctx, startURL, func(page scraper.Page) error {
		wg.Add(1)
		err := pool.Submit(func() {
			defer wg.Done()
			_, err := a.pipeline.Ingest(ctx, pipeline.IngestRequest{
				TenantID:      crawlTenant,
				AssetID:       page.AssetID(),
				File:          page.Upload(),
				CorrelationID: correlation.NewID("CRAWL"),
				SourceURL:     page.URL,
			})
			if err != nil {
				atomic.AddInt32(&failed, 1)
				logger.WarnContext(ctx, "page ingest failed", "url", page.URL, "err", err)
				return
			}
			atomic.AddInt32(&ingested, 1)
		})
		if err != nil {
			wg.Done()
			return fmt.Errorf("failed to schedule %s: %w", page.URL, err)
		}
		spinner.Describe(color.CyanString("📄 Crawling documentation... (%d pages)", atomic.LoadInt32(&scraped)))
		return nil
	})
	wg.Wait()
	spinner.Finish()

	color.Green("\n✓ Ingested %d pages", ingested)
	if failed > 0 {
		color.Red("✗ %d pages failed to ingest", failed)
	}
	if crawlErr != nil {
		return fmt.Errorf("crawl stopped: %w", crawlErr)
	}
	return nil
}
