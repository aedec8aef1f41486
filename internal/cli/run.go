package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"
	"github.com/tla-bot/tla-go/internal/browser"
	"github.com/tla-bot/tla-go/internal/config"
	"github.com/tla-bot/tla-go/internal/engine"
	"github.com/tla-bot/tla-go/internal/metrics"
	"github.com/tla-bot/tla-go/internal/models"
	"github.com/tla-bot/tla-go/internal/queue"
	"github.com/tla-bot/tla-go/internal/resolver"
	"github.com/tla-bot/tla-go/internal/session"
)

var (
	runSearchFile string
	runDriverURL  string
	runLimit      int
	runPages      int
	runNoLLM      bool
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Discover jobs and apply to them",
	Long: `Run the application loop: discover postings from the configured search,
skip anything already attempted, and drive each remaining application form
to a terminal outcome. Attempts interrupted by a previous run are resumed
first.

Examples:
  tla run --search search.yaml
  tla run --search search.yaml --limit 5
  tla run --search search.yaml --pages 3 --no-llm`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVarP(&runSearchFile, "search", "s", "search.yaml", "search config file")
	runCmd.Flags().StringVarP(&runDriverURL, "driver", "d", "", "browser driver endpoint (default $TLA_DRIVER_URL)")
	runCmd.Flags().IntVarP(&runLimit, "limit", "n", 10, "max applications this run")
	runCmd.Flags().IntVarP(&runPages, "pages", "p", 3, "max search result pages")
	runCmd.Flags().BoolVar(&runNoLLM, "no-llm", false, "disable the generative fallback")
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()

	search, err := config.LoadSearch(runSearchFile)
	if err != nil {
		return err
	}

	store, llmModel, err := getStore(!runNoLLM)
	if err != nil {
		return err
	}

	driver, err := browser.Dial(ctx, runDriverURL)
	if err != nil {
		return err
	}
	defer driver.Close()

	collector := metrics.NewCollector()
	if llmModel != nil {
		llmModel.SetMetrics(collector)
	}
	if embedder != nil {
		embedder.SetMetrics(collector)
	}

	opts := resolver.DefaultOptions()
	opts.PublishThreshold = cfg.PublishThreshold
	opts.FuzzyDecay = cfg.FuzzyDecay
	// The fuzzy score is cosine similarity when embeddings are configured,
	// token overlap otherwise; each gets its own threshold.
	if cfg.EmbedProvider != "" {
		opts.FuzzyThreshold = cfg.FuzzyMinCosine
	} else {
		opts.FuzzyThreshold = cfg.FuzzyMinOverlap
	}
	var generator resolver.Generator
	if llmModel != nil {
		generator = llmModel
	}
	res := resolver.New(store, generator, logger, opts)

	// The retry callback needs the engine, which needs the session.
	var eng *engine.Engine
	ctrl := session.New(driver, logger, session.Options{
		MinActionDelay: cfg.MinActionDelay,
		ActionTimeout:  cfg.ActionTimeout,
		MaxNavRetries:  cfg.MaxNavRetries,
		Metrics:        collector,
	}, func(attempt int, err error) {
		if eng != nil {
			eng.OnSessionRetry(attempt, err)
		}
	})
	engOpts := engine.DefaultOptions()
	engOpts.Metrics = collector
	eng = engine.New(dbClient, ctrl, res, logger, engOpts)

	source := queue.NewSearchSource(ctrl, search, runPages, logger)
	q := queue.New(source, dbClient, logger)

	var applied, failed int
	for applied < runLimit {
		job, err := q.Next(ctx)
		if err != nil {
			return fmt.Errorf("next job: %w", err)
		}
		if job == nil {
			break
		}

		start := time.Now()
		attempt, err := eng.Apply(ctx, *job)
		collector.RecordTiming(metrics.OpAttempt, time.Since(start))
		if err != nil {
			// Persistence is unavailable or conflicted: the attempt is
			// left resumable, but continuing the run would lose data.
			return fmt.Errorf("apply to %s: %w", job.JobID, err)
		}

		applied++
		collector.RecordOutcome(attempt.Status)
		if attempt.Status == models.StatusFailed {
			failed++
		}
		printAttempt(*attempt)
	}

	printRunSummary(collector.Snapshot(), applied)
	if failed > 0 {
		return fmt.Errorf("%d of %d attempts failed", failed, applied)
	}
	return nil
}

func printAttempt(a models.ApplicationAttempt) {
	switch a.Status {
	case models.StatusSubmitted:
		if a.ConfirmationNumber != nil {
			fmt.Printf("✓ %s submitted (confirmation %s)\n", a.JobID, *a.ConfirmationNumber)
		} else {
			fmt.Printf("✓ %s submitted\n", a.JobID)
		}
	case models.StatusSkipped:
		detail := ""
		if a.FailureDetail != nil {
			detail = ": " + *a.FailureDetail
		}
		fmt.Printf("- %s skipped%s\n", a.JobID, detail)
	case models.StatusFailed:
		reason := ""
		if a.FailureReason != nil {
			reason = string(*a.FailureReason)
		}
		flag := ""
		if a.NeedsReview {
			flag = " [needs review]"
		}
		fmt.Printf("✗ %s failed (%s)%s\n", a.JobID, reason, flag)
	}
}

func printRunSummary(snap metrics.Snapshot, applied int) {
	fmt.Printf("\n%d attempts in %.0fs", applied, snap.UptimeSeconds)
	if len(snap.Outcomes) > 0 {
		fmt.Print(" (")
		first := true
		for _, status := range []models.AttemptStatus{models.StatusSubmitted, models.StatusSkipped, models.StatusFailed} {
			if n := snap.Outcomes[status]; n > 0 {
				if !first {
					fmt.Print(", ")
				}
				fmt.Printf("%d %s", n, status)
				first = false
			}
		}
		fmt.Print(")")
	}
	fmt.Println()

	printOpLine("navigation", snap.Navigation)
	printOpLine("parse", snap.Parse)
	printOpLine("resolve", snap.Resolve)
	printOpLine("generative", snap.Generative)
	printOpLine("embedding", snap.Embedding)
	printOpLine("persist", snap.Persist)
	if g := snap.Generative; g != nil && g.TotalInputTokens != nil && g.TotalOutputTokens != nil {
		fmt.Printf("  %-11s %d in / %d out\n", "tokens", *g.TotalInputTokens, *g.TotalOutputTokens)
	}
}

func printOpLine(name string, op *metrics.OperationSnapshot) {
	if op == nil {
		return
	}
	fmt.Printf("  %-11s %4d calls  avg %6.1fms  max %5dms\n", name, op.Count, op.AvgTimeMs, op.MaxTimeMs)
}
