// Package cli implements the endokit command tree.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/endogpt/endokit/internal/config"
)

// isTerminal checks if the given file is a terminal.
func isTerminal(f *os.File) bool {
	return term.IsTerminal(int(f.Fd()))
}

// errNoConfig is returned when a command runs without the root pre-run.
var errNoConfig = errors.New("configuration not loaded")

// session carries the state resolved by the root command's pre-run.
type session struct {
	cfg    *config.Config
	closer io.Closer
}

type sessionKey struct{}

// sessionFrom returns the session stored in the command context.
func sessionFrom(cmd *cobra.Command) (*session, error) {
	s, ok := cmd.Context().Value(sessionKey{}).(*session)
	if !ok || s == nil || s.cfg == nil {
		return nil, errNoConfig
	}
	return s, nil
}

// NewRootCmd creates the root Cobra command for the endokit CLI.
// It loads .env and the YAML configuration, wires up logging and registers
// every subcommand.
func NewRootCmd(ver string) *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:           "endokit",
		Short:         "Batch tools for endoscopy video, frame and transcript analysis",
		Long:          "endokit: analyze endoscopy frames and transcripts with vision and language models",
		Version:       ver,
		Example:       rootCmdExample,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := config.LoadDotEnv(config.DefaultEnvFile); err != nil {
				return err
			}

			cfg, err := config.Load(configPath)
			if err != nil {
				return fmt.Errorf("loading configuration: %w", err)
			}

			closer, err := setupLogging(cmd, cfg)
			if err != nil {
				return err
			}

			cmd.SetContext(context.WithValue(cmd.Context(), sessionKey{}, &session{cfg: cfg, closer: closer}))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			return cleanupLogging(cmd)
		},
	}

	cmd.PersistentFlags().Bool("debug", false, "enable debug logging")
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "configuration file merged over the global one")

	cmd.AddCommand(
		newAnalyzeCmd(),
		newImproveCmd(),
		newDescribeCmd(),
		newConcatCmd(),
		newFramesCmd(),
		newInspectCmd(),
		newSecretsCmd(),
		newConfigCmd(),
	)

	return cmd
}

const rootCmdExample = `  # Store the API key once
  endokit secrets init
  endokit secrets set OPENAI_API_KEY

  # Extract two frames per second from every video in a folder
  endokit frames --input videos/ --output frames/ --target-fps 2

  # Analyze every 5th frame of a folder
  endokit analyze --input frames/case1 --sampling 5

  # Improve a transcript
  endokit improve transcript.txt

  # Show the failures recorded in a results file
  endokit inspect frames/case1/results/analysis_results_20240101_120000.json --failed`

// newConfigCmd creates the config command group.
func newConfigCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "config", Short: "Configuration management commands"}
	cmd.AddCommand(NewConfigInitCmd())
	return cmd
}
