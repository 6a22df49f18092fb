package cli

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/config"
	"github.com/endogpt/endokit/internal/engine/batch"
	"github.com/endogpt/endokit/internal/llm"
	"github.com/endogpt/endokit/internal/logging"
	"github.com/endogpt/endokit/internal/secrets"
	"github.com/endogpt/endokit/internal/tui"
)

// batchFlags are the dispatcher overrides shared by analyze and improve.
type batchFlags struct {
	provider    string
	concurrency int
	rateLimit   time.Duration
	metricsFile string
}

func (f *batchFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVar(&f.provider, "provider", "", "model provider: openai or anthropic (default from config)")
	cmd.Flags().IntVar(&f.concurrency, "concurrency", 0, "number of concurrent requests (default from config)")
	cmd.Flags().DurationVar(&f.rateLimit, "rate-limit", 0, "minimum interval between API calls (default from config)")
	cmd.Flags().StringVar(&f.metricsFile, "metrics-file", "", "write Prometheus metrics in text format to this file")
}

// apply overlays the flags that were set on the command line.
func (f *batchFlags) apply(cmd *cobra.Command, provider *string, bc *config.BatchConfig) error {
	if cmd.Flags().Changed("provider") {
		*provider = f.provider
	}
	if cmd.Flags().Changed("concurrency") {
		if f.concurrency < 1 {
			return fmt.Errorf("--concurrency must be at least 1, got %d", f.concurrency)
		}
		bc.Concurrency = f.concurrency
	}
	if cmd.Flags().Changed("rate-limit") {
		if f.rateLimit < 0 {
			return fmt.Errorf("--rate-limit cannot be negative, got %s", f.rateLimit)
		}
		bc.RateLimit = f.rateLimit
	}
	return nil
}

// retryPolicy converts the configured retry settings, classifying errors with
// llm.IsRetryable.
func retryPolicy(bc config.BatchConfig) batch.RetryPolicy {
	return batch.RetryPolicy{
		MaxAttempts: bc.MaxAttempts,
		BaseDelay:   bc.BaseDelay,
		MaxDelay:    bc.MaxDelay,
		IsRetryable: llm.IsRetryable,
	}
}

// newAnalyzer loads the API key for provider from the encrypted store and
// returns a client. A missing or unreadable store is fatal.
func newAnalyzer(cfg *config.Config, provider string) (llm.Analyzer, error) {
	pc, err := cfg.Provider(provider)
	if err != nil {
		return nil, err
	}

	store := secrets.NewStore(cfg.Secrets.Dir)
	key, err := store.Get(pc.APIKeyName)
	if err != nil {
		return nil, fmt.Errorf("loading API key: %w", err)
	}

	return llm.New(provider, llm.Options{
		BaseURL:   pc.BaseURL,
		APIKey:    key,
		Model:     pc.Model,
		MaxTokens: pc.MaxTokens,
		Timeout:   pc.Timeout,
	})
}

// batchRun describes one dispatcher run started from a command.
type batchRun struct {
	tool        string
	title       string
	items       []batch.Item
	call        batch.CallFunc
	settings    config.BatchConfig
	outputPath  string
	metricsFile string
}

// runBatch executes run through the dispatcher with progress reporting and
// prints the summary. The returned mapping is complete even when err is a
// cancellation.
func runBatch(cmd *cobra.Command, run batchRun) (map[string]batch.Result, error) {
	ctx := cmd.Context()
	log := logging.ComponentLogger(*logging.FromContext(ctx), "cli")

	metrics := batch.NewMetrics(run.tool)
	reporter := tui.NewReporter(ctx, cmd.ErrOrStderr(), isTerminal(os.Stderr))

	d, err := batch.NewDispatcher(batch.Config{
		Concurrency: run.settings.Concurrency,
		OutputPath:  run.outputPath,
		Metrics:     metrics,
		OnProgress:  reporter.Update,
	})
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("tool", run.tool).
		Int("items", len(run.items)).
		Int("concurrency", run.settings.Concurrency).
		Dur("rate_limit", run.settings.RateLimit).
		Str("output", run.outputPath).
		Msg("starting batch")

	process := batch.Retrying(run.call, batch.NewRateState(run.settings.RateLimit), retryPolicy(run.settings), metrics)

	start := time.Now()
	reporter.Start(run.title, len(run.items))
	results, runErr := d.Run(ctx, run.items, process)
	reporter.Finish()

	if run.metricsFile != "" && results != nil {
		if writeErr := metrics.WriteTextfile(run.metricsFile); writeErr != nil {
			log.Warn().Err(writeErr).Str("path", run.metricsFile).Msg("could not write metrics")
		}
	}

	if results != nil {
		cmd.Println(tui.RenderSummary(summarize(run, results, time.Since(start))))
	}
	return results, runErr
}

func summarize(run batchRun, results map[string]batch.Result, elapsed time.Duration) tui.Summary {
	s := tui.Summary{
		Title:   run.title,
		Total:   len(run.items),
		Elapsed: elapsed,
		Output:  run.outputPath,
	}
	for _, r := range results {
		if r.Failed() {
			s.Failed++
		} else {
			s.Succeeded++
		}
	}
	return s
}
