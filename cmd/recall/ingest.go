package main

import (
	"fmt"
	"sync/atomic"
	"time"

	"github.com/cespare/xxhash/v2"
	"github.com/fatih/color"
	"github.com/rs/zerolog/log"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"github.com/xhad/recall/pkg/processor"
	"github.com/xhad/recall/pkg/scraper"
)

func getProgressBar(total int, description string) *progressbar.ProgressBar {
	return progressbar.NewOptions(total,
		progressbar.OptionSetDescription(color.BlueString(description)),
		progressbar.OptionSetItsString("items"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "█",
			SaucerHead:    "█",
			SaucerPadding: "░",
			BarStart:      "[",
			BarEnd:        "]",
		}),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetWidth(40),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetRenderBlankState(true),
	)
}

// chunkID is stable per URL and chunk position, so re-ingesting a site
// overwrites its chunks instead of duplicating them.
func chunkID(pageURL string, i int) string {
	return fmt.Sprintf("web_%016x_%04d", xxhash.Sum64String(pageURL), i)
}

func newIngestCmd(opts *rootOptions) *cobra.Command {
	var (
		startURL string
		maxDepth int
	)

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Scrape a site and add its pages to the knowledge base",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := opts.cfg
			if cmd.Flags().Changed("max-depth") {
				cfg.Scraper.MaxDepth = maxDepth
			}

			service, documentStore, err := newService(ctx, cfg)
			if err != nil {
				return err
			}
			defer documentStore.Close()

			var scrapedCount int32
			s, err := scraper.NewWithConfig(scraper.ScraperConfig{
				BaseURL:           startURL,
				MaxDepth:          cfg.Scraper.MaxDepth,
				RateLimit:         cfg.Scraper.RateLimit,
				IgnorePatterns:    cfg.Scraper.IgnorePatterns,
				AllowedExtensions: cfg.Scraper.AllowedExtensions,
				OnProgress: func(string) {
					atomic.AddInt32(&scrapedCount, 1)
				},
			})
			if err != nil {
				return fmt.Errorf("failed to initialize scraper: %w", err)
			}

			p := processor.NewWithConfig(processor.ProcessorConfig{
				ChunkSize:       cfg.Processor.ChunkSize,
				ChunkOverlap:    cfg.Processor.ChunkOverlap,
				RemoveStopwords: cfg.Processor.RemoveStopwords,
			})

			color.Blue("\nStarting ingestion for %s\n", startURL)

			scrapingBar := getProgressBar(-1, "Scraping pages...")
			done := make(chan struct{})
			go func() {
				ticker := time.NewTicker(100 * time.Millisecond)
				defer ticker.Stop()
				for {
					select {
					case <-done:
						return
					case <-ticker.C:
						scrapingBar.Set(int(atomic.LoadInt32(&scrapedCount)))
					}
				}
			}()

			pages, err := s.Scrape(ctx, startURL)
			close(done)
			scrapingBar.Finish()
			if err != nil {
				return fmt.Errorf("failed to scrape %s: %w", startURL, err)
			}
			color.Green("\n✓ Scraped %d pages\n", len(pages))

			processed, err := p.Process(pages)
			if err != nil {
				return fmt.Errorf("failed to process pages: %w", err)
			}

			total := 0
			for _, page := range processed {
				total += len(page.Chunks)
			}

			storageBar := getProgressBar(total, "Storing chunks...")
			for _, page := range processed {
				for i, chunk := range page.Chunks {
					if _, err := service.AddDocument(ctx, chunk, chunkID(page.URL, i)); err != nil {
						return fmt.Errorf("failed to store chunk %d of %s: %w", i, page.URL, err)
					}
					storageBar.Add(1)
				}
				log.Debug().Str("url", page.URL).Int("chunks", len(page.Chunks)).Msg("page ingested")
			}
			storageBar.Finish()
			color.Green("\n✓ Stored %d chunks from %d pages\n", total, len(processed))

			return nil
		},
	}

	cmd.Flags().StringVar(&startURL, "url", "", "URL to start scraping from")
	cmd.Flags().IntVar(&maxDepth, "max-depth", 3, "Maximum link depth to follow")
	_ = cmd.MarkFlagRequired("url")

	return cmd
}
