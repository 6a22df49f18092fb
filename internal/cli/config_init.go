package cli

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/config"
)

// NewConfigInitCmd creates the config init command, which writes the default
// configuration to the global file or to --path.
func NewConfigInitCmd() *cobra.Command {
	var (
		force bool
		path  string
	)

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Initialize configuration file with default values",
		Long: `Creates a new configuration file with default values at
$ENDOKIT_HOME/config.yaml (default ~/.endokit/config.yaml), or at --path.`,
		Example: `  # Create global configuration
  endokit config init

  # Write a project overlay to edit and pass with --config
  endokit config init --path ./endokit.yaml

  # Create configuration, overwriting existing
  endokit config init --force`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			target := path
			if target == "" {
				globalPath, err := config.ConfigPath()
				if err != nil {
					return err
				}
				target = globalPath
			}

			// Check if config already exists and force isn't set
			if !force {
				if _, err := os.Stat(target); err == nil {
					return errors.New("configuration file already exists, use --force to overwrite")
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("cannot access config path %s: %w", target, err)
				}
			}

			if err := config.Default().Save(target); err != nil {
				return fmt.Errorf("failed to save configuration: %w", err)
			}

			cmd.Printf("Configuration initialized successfully\n")
			cmd.Printf("Configuration file: %s\n", target)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "overwrite existing configuration file")
	cmd.Flags().StringVar(&path, "path", "", "write to this file instead of the global configuration")

	return cmd
}
