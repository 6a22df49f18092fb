package cli

import (
	"bufio"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/endogpt/endokit/internal/secrets"
)

var errEmptySecret = errors.New("secret value is empty")

func newSecretsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "secrets",
		Short: "Manage the encrypted API key store",
		Long: `API keys are stored encrypted in the secrets folder (secrets.dir in the
configuration, or ENDOKIT_SECRETS_DIR): .crypto_key holds the key and
.encrypted_keys the encrypted values.`,
	}
	cmd.AddCommand(newSecretsInitCmd(), newSecretsSetCmd(), newSecretsListCmd())
	return cmd
}

func secretStore(cmd *cobra.Command) (*secrets.Store, error) {
	s, err := sessionFrom(cmd)
	if err != nil {
		return nil, err
	}
	return secrets.NewStore(s.cfg.Secrets.Dir), nil
}

func newSecretsInitCmd() *cobra.Command {
	var force bool

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create a new encryption key",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := secretStore(cmd)
			if err != nil {
				return err
			}
			if err = store.Init(force); err != nil {
				if errors.Is(err, secrets.ErrKeyExists) {
					return fmt.Errorf("%w, use --force to replace it and drop stored secrets", err)
				}
				return err
			}
			cmd.Printf("Secret store initialized in %s\n", store.Dir)
			return nil
		},
	}

	cmd.Flags().BoolVar(&force, "force", false, "replace an existing key; stored secrets are removed")
	return cmd
}

func newSecretsSetCmd() *cobra.Command {
	var value string

	cmd := &cobra.Command{
		Use:   "set <name>",
		Short: "Encrypt and store a secret",
		Long:  "Stores a secret under name. Without --value the first line of standard input is used.",
		Example: `  endokit secrets set OPENAI_API_KEY
  echo "$KEY" | endokit secrets set ANTHROPIC_API_KEY`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := secretStore(cmd)
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("value") {
				line, readErr := bufio.NewReader(cmd.InOrStdin()).ReadString('\n')
				if readErr != nil && line == "" {
					return fmt.Errorf("reading secret from stdin: %w", readErr)
				}
				value = line
			}
			value = strings.TrimSpace(value)
			if value == "" {
				return errEmptySecret
			}

			if err = store.Set(args[0], value); err != nil {
				return err
			}
			cmd.Printf("Stored %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&value, "value", "", "secret value (avoid: it ends up in shell history)")
	return cmd
}

func newSecretsListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List stored secret names",
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := secretStore(cmd)
			if err != nil {
				return err
			}
			names, err := store.Names()
			if err != nil {
				return err
			}
			for _, n := range names {
				cmd.Println(n)
			}
			return nil
		},
	}
}
