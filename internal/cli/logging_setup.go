package cli

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/config"
	"github.com/endogpt/endokit/internal/logging"
)

// setupLogging configures logging from the loaded config and CLI flags and
// stores the logger in the command context. The returned closer releases the
// log file, if any.
func setupLogging(cmd *cobra.Command, cfg *config.Config) (io.Closer, error) {
	loggingCfg := cfg.Logging.ToLoggingConfig()

	debug, _ := cmd.Flags().GetBool("debug")
	if debug {
		loggingCfg.Level = "debug"
		loggingCfg.Format = logging.FormatConsole
		loggingCfg.Output = logging.OutputStderr
		loggingCfg.File = ""
	}

	l := logging.NewWriterLogger(cmd.ErrOrStderr(), loggingCfg.Format, loggingCfg.Level)
	var closer io.Closer = nopCloser{}
	if loggingCfg.Output == logging.OutputFile {
		fileLogger, fileCloser, newErr := logging.NewLogger(loggingCfg)
		if newErr != nil {
			return nil, fmt.Errorf("setting up logging: %w", newErr)
		}
		l, closer = fileLogger, fileCloser
	}

	logger := logging.ComponentLogger(l, "cli")
	cmd.SetContext(l.WithContext(cmd.Context()))

	logger.Debug().Str("command", cmd.Name()).Msg("command started")
	return closer, nil
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// cleanupLogging closes the log file handle.
func cleanupLogging(cmd *cobra.Command) error {
	s, err := sessionFrom(cmd)
	if err != nil {
		return nil //nolint:nilerr // Nothing was opened.
	}
	return s.closer.Close()
}
