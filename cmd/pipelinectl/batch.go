package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/toonrelay/pipeline/internal/app"
	"github.com/toonrelay/pipeline/internal/batch"
	"github.com/toonrelay/pipeline/internal/config"
	"github.com/toonrelay/pipeline/internal/logger"
	"github.com/toonrelay/pipeline/internal/model"
)

var (
	sampleURL  string
	rangeExpr  string
	targetLang string
	sourceLang string
	backendFlag string
	seriesName string
	seriesID   string
)

var batchCmd = &cobra.Command{
	Use:   "batch",
	Short: "Translate a chapter range and block until it finishes",
	Long: `batch expands --range against --sample-url (substituting the
chapter number it finds in the URL) and runs every resulting chapter
through the pipeline, reporting a completed/failed/total summary when
the whole range has been processed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		backend := model.BackendLLM
		if backendFlag == "mt" {
			backend = model.BackendMT
		}

		cfg := config.Load()
		logger.Init(logger.ParseLevel(cfg.LogLevel))

		ctx := context.Background()
		a, err := app.New(ctx, cfg)
		if err != nil {
			return fmt.Errorf("wire app: %w", err)
		}
		defer a.Close()

		result, err := a.Orchestrator.Run(ctx, batch.Request{
			SampleURL:  sampleURL,
			Range:      rangeExpr,
			TargetLang: targetLang,
			SourceLang: sourceLang,
			Backend:    backend,
			SeriesName: seriesName,
			SeriesID:   seriesID,
		})
		if err != nil {
			return fmt.Errorf("run batch: %w", err)
		}

		fmt.Printf("completed=%d failed=%d total=%d\n", result.Completed, result.Failed, result.Total)
		for n, outcome := range result.Results {
			if outcome.Error != "" {
				fmt.Printf("  chapter %d: FAILED: %s\n", n, outcome.Error)
			} else {
				fmt.Printf("  chapter %d: ok\n", n)
			}
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(batchCmd)

	batchCmd.Flags().StringVar(&sampleURL, "sample-url", "", "a chapter URL from the series, used as a template for the range (required)")
	batchCmd.Flags().StringVar(&rangeExpr, "range", "", "chapter range, e.g. 1-12,15 (required)")
	batchCmd.Flags().StringVar(&targetLang, "target", "", "target language code (required)")
	batchCmd.Flags().StringVar(&sourceLang, "source", "", "source language code (detected from the URL when omitted)")
	batchCmd.Flags().StringVar(&backendFlag, "backend", "llm", "translation backend: llm or mt")
	batchCmd.Flags().StringVar(&seriesName, "series", "", "series name; enables glossary grouping and catalog publish")
	batchCmd.Flags().StringVar(&seriesID, "series-id", "", "known series ID, used instead of resolving one by name")

	batchCmd.MarkFlagRequired("sample-url")
	batchCmd.MarkFlagRequired("range")
	batchCmd.MarkFlagRequired("target")
}
