package cli

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/engine/batch"
	"github.com/endogpt/endokit/internal/llm"
	"github.com/endogpt/endokit/internal/logging"
	"github.com/endogpt/endokit/internal/textproc"
)

// improveFlags holds the improve command options.
type improveFlags struct {
	batchFlags

	output    string
	chunkSize int
}

func newImproveCmd() *cobra.Command {
	var flags improveFlags

	cmd := &cobra.Command{
		Use:   "improve <transcript>",
		Short: "Fix typos and punctuation in a procedure transcript",
		Long: `Splits a transcript into chunks, sends them to a language model
concurrently and writes the improved chunks back in their original order.
Chunks that still fail after the retry pass keep their original text.

Progress is saved next to the output as <output>.progress.json.`,
		Example: `  # Improve a transcript next to the original
  endokit improve recordings/case1.txt

  # Smaller chunks, explicit output file
  endokit improve case1.txt --chunk-size 1000 --output case1_clean.txt`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImprove(cmd, args[0], &flags)
		},
	}

	cmd.Flags().StringVarP(&flags.output, "output", "o", "", "output file (default <input>_improved_<timestamp>.txt)")
	cmd.Flags().IntVar(&flags.chunkSize, "chunk-size", 0, "characters per chunk (default from config)")
	flags.batchFlags.register(cmd)

	return cmd
}

func runImprove(cmd *cobra.Command, input string, flags *improveFlags) error {
	s, err := sessionFrom(cmd)
	if err != nil {
		return err
	}
	ic := s.cfg.Improve
	log := logging.ComponentLogger(*logging.FromContext(cmd.Context()), "cli")

	if err = flags.apply(cmd, &ic.Provider, &ic.Batch); err != nil {
		return err
	}
	if cmd.Flags().Changed("chunk-size") {
		ic.ChunkSize = flags.chunkSize
	}

	data, err := os.ReadFile(input)
	if err != nil {
		return fmt.Errorf("reading transcript: %w", err)
	}

	chunks, err := textproc.Chunk(string(data), ic.ChunkSize)
	if err != nil {
		return err
	}
	if len(chunks) == 0 {
		return fmt.Errorf("transcript %s is empty", input)
	}

	analyzer, err := newAnalyzer(s.cfg, ic.Provider)
	if err != nil {
		return err
	}

	call := func(ctx context.Context, item batch.Item) (string, error) {
		return analyzer.Analyze(ctx, llm.Request{
			System:      llm.ImproveSystemPrompt,
			Parts:       []llm.Part{llm.TextPart(llm.ImprovePrompt(item.Input))},
			MaxTokens:   ic.MaxTokens,
			Temperature: &ic.Temperature,
		})
	}

	output := flags.output
	if output == "" {
		output = textproc.ImprovedPath(input, time.Now())
	}

	results, err := runBatch(cmd, batchRun{
		tool:        "improve",
		title:       "Transcript improvement",
		items:       textproc.Items(chunks),
		call:        call,
		settings:    ic.Batch,
		outputPath:  output + ".progress.json",
		metricsFile: flags.metricsFile,
	})
	if results == nil {
		return fmt.Errorf("improving %s: %w", input, err)
	}

	text, fallbacks := textproc.Reassemble(results, chunks)
	if len(fallbacks) > 0 {
		log.Warn().Ints("chunks", fallbacks).Msg("kept original text for failed chunks")
	}

	if mkErr := os.MkdirAll(filepath.Dir(output), 0o750); mkErr != nil {
		return fmt.Errorf("creating output folder: %w", mkErr)
	}
	if writeErr := os.WriteFile(output, []byte(strings.TrimRight(text, "\n")+"\n"), 0o600); writeErr != nil {
		return fmt.Errorf("writing %s: %w", output, writeErr)
	}
	cmd.Printf("Improved text saved to %s\n", output)

	if err != nil {
		return fmt.Errorf("improving %s: %w", input, err)
	}
	return nil
}
