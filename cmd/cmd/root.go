package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"newsdesk/internal/config"
	"newsdesk/internal/ingest"
	"newsdesk/internal/llm"
	"newsdesk/internal/logger"
	"newsdesk/internal/pipeline"
	"newsdesk/internal/proclock"
	"newsdesk/internal/store"
)

var cfgFile string

// rootCmd represents the base command when called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "newsdesk",
	Short: "Newsdesk ingests news feeds and publishes synthesized story summaries",
	Long: `Newsdesk pulls configured RSS/Atom feeds, groups articles that cover
the same story, scores each story's newsworthiness, and rewrites the best
ones into publishable summaries. Processing runs in resumable stages so a
run can be interrupted at any point and picked up by the next one.`,
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./.newsdesk.yaml or $HOME/.newsdesk.yaml)")
}

func initConfig() {
	logger.Init()
	if _, err := config.Load(cfgFile); err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}
}

// openStore opens the sqlite store under the configured data directory.
func openStore() (*store.Store, error) {
	cfg := config.Get()
	if err := os.MkdirAll(cfg.App.DataDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create data directory: %w", err)
	}
	return store.New(cfg.App.DataDir)
}

// newInference builds the inference chain. With a single configured
// provider the chain still normalizes provider errors for the pipeline.
func newInference() (llm.Backend, error) {
	cfg := config.Get()
	client, err := llm.NewClient(cfg.Gemini.Model)
	if err != nil {
		return nil, err
	}
	return llm.NewChain(client)
}

// newPipeline wires a pipeline over the given store.
func newPipeline(st *store.Store) (*pipeline.Pipeline, error) {
	infer, err := newInference()
	if err != nil {
		return nil, err
	}
	return pipeline.New(st, infer, proclock.New(st), config.Get()), nil
}

// newIngestEngine wires an ingestion engine over the given store.
func newIngestEngine(st *store.Store) *ingest.Engine {
	return ingest.New(st, config.Get().Ingest)
}
