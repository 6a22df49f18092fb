package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/llm"
)

func newDescribeCmd() *cobra.Command {
	var (
		prompt   string
		provider string
	)

	cmd := &cobra.Command{
		Use:   "describe <image>",
		Short: "Describe a single image",
		Example: `  endokit describe frame.jpg
  endokit describe frame.jpg --provider anthropic --prompt "Is there a polyp in this image?"`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := sessionFrom(cmd)
			if err != nil {
				return err
			}
			if provider == "" {
				provider = s.cfg.Analyze.Provider
			}

			img, err := llm.LoadImage(args[0])
			if err != nil {
				return err
			}

			analyzer, err := newAnalyzer(s.cfg, provider)
			if err != nil {
				return err
			}

			text, err := analyzer.Analyze(cmd.Context(), llm.Request{
				Parts: []llm.Part{llm.TextPart(prompt), llm.ImagePart(img)},
			})
			if err != nil {
				return fmt.Errorf("describing %s: %w", args[0], err)
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), text)
			return nil
		},
	}

	cmd.Flags().StringVar(&prompt, "prompt", llm.DefaultDescribePrompt, "question asked about the image")
	cmd.Flags().StringVar(&provider, "provider", "", "model provider: openai or anthropic (default from config)")

	return cmd
}
