package cmd

import (
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"newsdesk/internal/config"
	"newsdesk/internal/ingest"
	"newsdesk/internal/policy"
	"newsdesk/internal/proclock"
	"newsdesk/internal/server"
)

var (
	processProfile        string
	processBatchSize      int
	processLLMDelayMs     int
	processMaxExecutionMs int

	ingestSource       string
	ingestEnrich       bool
	ingestConcurrency  int
	ingestBatchSize    int
	ingestBatchDelayMs int

	stopForce bool

	cleanupMaxAgeHours int
)

var processCmd = &cobra.Command{
	Use:   "process",
	Short: "Run the processing pipeline: embed, cluster, score, rewrite",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := newPipeline(st)
		if err != nil {
			return err
		}

		result, err := p.Run(cmd.Context(), policy.Request{
			Profile:  policy.Profile(processProfile),
			PaidTier: config.Get().Gemini.PaidTier,
			Overrides: policy.Overrides{
				BatchSize:      processBatchSize,
				LLMDelayMs:     processLLMDelayMs,
				MaxExecutionMs: processMaxExecutionMs,
			},
		})
		if err != nil {
			return err
		}

		if result.Skipped {
			fmt.Println("Another run is already in progress; nothing to do.")
			return nil
		}
		fmt.Printf("Run %s finished in %s\n", result.RunID, result.Elapsed.Round(time.Millisecond))
		fmt.Printf("  embedded:  %d\n", result.Embedded)
		fmt.Printf("  clustered: %d (%d new clusters)\n", result.Clustered, result.NewClusters)
		fmt.Printf("  scored:    %d\n", result.Scored)
		fmt.Printf("  rewritten: %d\n", result.Rewritten)
		if result.Failed > 0 {
			fmt.Printf("  failed:    %d (left in the backlog)\n", result.Failed)
		}
		if result.RetryAfter > 0 {
			fmt.Printf("Provider rate limited; retry after %s.\n", result.RetryAfter)
		} else if result.Stopped {
			fmt.Println("Run stopped early; remaining backlog carries over to the next run.")
		}
		return nil
	},
}

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Fetch configured feeds and store new articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		result, err := newIngestEngine(st).Run(cmd.Context(), ingest.Options{
			Profile:           policy.ProfileManual,
			PaidTier:          config.Get().Gemini.PaidTier,
			SourceConcurrency: ingestConcurrency,
			BatchSize:         ingestBatchSize,
			BatchDelayMs:      ingestBatchDelayMs,
			NameFilter:        ingestSource,
			Enrich:            ingestEnrich,
		})
		if err != nil {
			return err
		}

		fmt.Printf("Ingested %d new articles from %d items across %d sources.\n",
			result.Inserted, result.Items, result.Sources)
		for name, msg := range result.FailedSources {
			fmt.Printf("  failed %s: %s\n", name, msg)
		}
		return nil
	},
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		p, err := newPipeline(st)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		srv := server.New(st, p, newIngestEngine(st), config.Get())
		return srv.Start(ctx)
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show processing state and store statistics",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		state, err := st.GetProcessingState()
		if err != nil {
			return err
		}
		switch {
		case state == nil || !state.IsRunning:
			fmt.Println("No run in progress.")
		case state.ShouldStop:
			fmt.Printf("Run %s is stopping (step %s).\n", state.RunID, state.CurrentStep)
		default:
			fmt.Printf("Run %s in step %s since %s", state.RunID, state.CurrentStep,
				state.StartedAt.Format(time.RFC3339))
			if state.ProgressTotal > 0 {
				fmt.Printf(" (%d/%d %s)", state.ProgressCurrent, state.ProgressTotal, state.ProgressLabel)
			}
			fmt.Println()
		}

		stats, err := st.GetStats()
		if err != nil {
			return err
		}
		fmt.Printf("Articles: %d  Clusters: %d  Published: %d  Sources: %d  DB: %d KiB\n",
			stats.ArticleCount, stats.ClusterCount, stats.PublishedCount,
			stats.SourceCount, stats.DatabaseSize/1024)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Ask the current run to stop at its next checkpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		lock := proclock.New(st)
		if stopForce {
			if err := lock.ForceReset(); err != nil {
				return err
			}
			fmt.Println("Processing state cleared.")
			return nil
		}
		if err := lock.RequestStop(); err != nil {
			return err
		}
		fmt.Println("Stop requested; the run will halt at its next checkpoint.")
		return nil
	},
}

var sourcesCmd = &cobra.Command{
	Use:   "sources",
	Short: "Manage configured feed sources",
}

var sourcesSyncCmd = &cobra.Command{
	Use:   "sync [file]",
	Short: "Sync sources from a yaml catalog into the store",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := config.Get().Ingest.SourcesFile
		if len(args) == 1 {
			path = args[0]
		}

		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := ingest.SyncCatalog(st, path)
		if err != nil {
			return err
		}
		fmt.Printf("Synced %d sources from %s.\n", n, path)
		return nil
	},
}

var sourcesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List configured sources and their fetch health",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		sources, err := st.Sources(false, "")
		if err != nil {
			return err
		}
		for _, src := range sources {
			status := "active"
			if !src.Active {
				status = "inactive"
			}
			fetched := "never"
			if src.LastFetchedAt != nil {
				fetched = src.LastFetchedAt.Format(time.RFC3339)
			}
			fmt.Printf("%-24s %-9s last fetched %s", src.Name, status, fetched)
			if src.ErrorCount > 0 {
				fmt.Printf("  (%d consecutive errors: %s)", src.ErrorCount, src.LastError)
			}
			fmt.Println()
		}
		return nil
	},
}

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Delete old unclustered articles",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore()
		if err != nil {
			return err
		}
		defer st.Close()

		n, err := st.CleanupOldArticles(time.Duration(cleanupMaxAgeHours) * time.Hour)
		if err != nil {
			return err
		}
		fmt.Printf("Deleted %d unclustered articles older than %dh.\n", n, cleanupMaxAgeHours)
		return nil
	},
}

func init() {
	processCmd.Flags().StringVar(&processProfile, "profile", "manual", "execution profile (api, manual, refresh, scheduled)")
	processCmd.Flags().IntVar(&processBatchSize, "batch-size", 0, "override per-stage batch size")
	processCmd.Flags().IntVar(&processLLMDelayMs, "llm-delay-ms", 0, "override delay between inference calls")
	processCmd.Flags().IntVar(&processMaxExecutionMs, "max-execution-ms", 0, "override the run's wall-clock budget")

	ingestCmd.Flags().StringVar(&ingestSource, "source", "", "only ingest the named source")
	ingestCmd.Flags().BoolVar(&ingestEnrich, "enrich", true, "fetch article pages for fuller content")
	ingestCmd.Flags().IntVar(&ingestConcurrency, "concurrency", 0, "override parallel source fetches")
	ingestCmd.Flags().IntVar(&ingestBatchSize, "batch-size", 0, "override articles per upsert batch")
	ingestCmd.Flags().IntVar(&ingestBatchDelayMs, "batch-delay-ms", 0, "override pause between upsert batches")

	stopCmd.Flags().BoolVar(&stopForce, "force", false, "clear the processing state unconditionally")

	cleanupCmd.Flags().IntVar(&cleanupMaxAgeHours, "max-age-hours", 168, "delete unclustered articles older than this")

	sourcesCmd.AddCommand(sourcesSyncCmd, sourcesListCmd)
	rootCmd.AddCommand(processCmd, ingestCmd, serveCmd, statusCmd, stopCmd, sourcesCmd, cleanupCmd)
}
