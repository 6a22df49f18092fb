package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/engine/batch"
	"github.com/endogpt/endokit/internal/imagefolder"
	"github.com/endogpt/endokit/internal/llm"
)

// analyzeFlags holds the analyze command options.
type analyzeFlags struct {
	batchFlags

	input     string
	outputDir string
	sampling  int
	prompt    string
	refImage  string
}

func newAnalyzeCmd() *cobra.Command {
	var flags analyzeFlags

	cmd := &cobra.Command{
		Use:   "analyze",
		Short: "Analyze a folder of frames with a vision model",
		Long: `Sends every sampled image of a folder to a vision model, several at a time,
and saves the answers to a JSON results file that is rewritten after every
image. Failed images are retried once more at the end of the run.

When --input is a single image it is analyzed once and the answer printed.`,
		Example: `  # Analyze every frame of a folder
  endokit analyze --input frames/case1

  # Analyze every 10th frame, comparing against a reference image
  endokit analyze --input frames/case1 --sampling 10 --ref-image normal_mucosa.jpg

  # Use Claude with 8 workers and write batch metrics
  endokit analyze --input frames/case1 --provider anthropic --concurrency 8 --metrics-file analyze.prom`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runAnalyze(cmd, &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.input, "input", "i", "", "image folder or single image")
	cmd.Flags().StringVarP(&flags.outputDir, "output-dir", "o", "", "results folder (default <input>/results)")
	cmd.Flags().IntVar(&flags.sampling, "sampling", 0, "analyze every Nth image (default from config)")
	cmd.Flags().StringVar(&flags.prompt, "prompt", "", "prompt sent with every image (default: endoscopic frame analysis)")
	cmd.Flags().StringVar(&flags.refImage, "ref-image", "", "reference image sent before every frame")
	flags.batchFlags.register(cmd)
	_ = cmd.MarkFlagRequired("input")

	return cmd
}

func runAnalyze(cmd *cobra.Command, flags *analyzeFlags) error {
	s, err := sessionFrom(cmd)
	if err != nil {
		return err
	}
	ac := s.cfg.Analyze

	if err = flags.apply(cmd, &ac.Provider, &ac.Batch); err != nil {
		return err
	}
	if cmd.Flags().Changed("sampling") {
		ac.Sampling = flags.sampling
	}
	if flags.refImage != "" {
		ac.RefImage = flags.refImage
	}
	prompt := flags.prompt
	if prompt == "" {
		prompt = llm.DefaultAnalyzePrompt
	}

	info, err := os.Stat(flags.input)
	if err != nil {
		return fmt.Errorf("input path: %w", err)
	}

	var ref *llm.Image
	if ac.RefImage != "" {
		img, loadErr := llm.LoadImage(ac.RefImage)
		if loadErr != nil {
			return fmt.Errorf("loading reference image: %w", loadErr)
		}
		ref = &img
	}

	analyzer, err := newAnalyzer(s.cfg, ac.Provider)
	if err != nil {
		return err
	}

	call := func(ctx context.Context, item batch.Item) (string, error) {
		img, loadErr := llm.LoadImage(item.Input)
		if loadErr != nil {
			return "", loadErr
		}
		return analyzer.Analyze(ctx, llm.AnalyzeRequest(prompt, ref, img, ac.MaxTokens))
	}

	if !info.IsDir() {
		text, callErr := call(cmd.Context(), batch.Item{ID: filepath.Base(flags.input), Input: flags.input})
		if callErr != nil {
			return fmt.Errorf("analyzing %s: %w", flags.input, callErr)
		}
		_, _ = fmt.Fprintln(cmd.OutOrStdout(), text)
		return nil
	}

	paths, err := imagefolder.List(flags.input, imagefolder.Options{Sampling: ac.Sampling})
	if err != nil {
		return err
	}

	items := make([]batch.Item, len(paths))
	for i, p := range paths {
		items[i] = batch.Item{ID: filepath.Base(p), Seq: i, Input: p}
	}

	outputDir := flags.outputDir
	if outputDir == "" {
		outputDir = imagefolder.DefaultOutputDir(flags.input)
	}
	outputPath := imagefolder.ResultsPath(outputDir, time.Now())

	_, err = runBatch(cmd, batchRun{
		tool:        "analyze",
		title:       "Image analysis",
		items:       items,
		call:        call,
		settings:    ac.Batch,
		outputPath:  outputPath,
		metricsFile: flags.metricsFile,
	})
	if err != nil {
		return fmt.Errorf("analysis of %s: %w", flags.input, err)
	}
	return nil
}
