package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/forgefleet/archforge/internal/secrets"
	"github.com/forgefleet/archforge/pkg/config"
)

func newCredentialsCommand(cfg *config.Config) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "credentials",
		Short: "Create and seal registry credentials files",
	}
	cmd.AddCommand(newKeygenCommand(), newSealCommand(cfg))
	return cmd
}

func newKeygenCommand() *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "keygen",
		Short: "Generate an age identity for sealing credentials",
		RunE: func(cmd *cobra.Command, args []string) error {
			public, private, err := secrets.GenerateKeyPair()
			if err != nil {
				return err
			}
			body := fmt.Sprintf("# public key: %s\n%s\n", public, private)
			if output == "" {
				fmt.Fprint(cmd.OutOrStdout(), body)
				return nil
			}
			if err := os.WriteFile(output, []byte(body), 0o600); err != nil {
				return fmt.Errorf("writing identity file: %w", err)
			}
			fmt.Fprintln(cmd.OutOrStdout(), public)
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "write the identity here instead of stdout")
	return cmd
}

func newSealCommand(cfg *config.Config) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "seal",
		Short: "Encrypt registry credentials for later runs",
		Long: `Seal writes an age-encrypted credentials file from --username plus --token
or --password. Later runs open it with the identity from keygen via
--credentials-file and --identity-file.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.AgeIdentityFile == "" {
				return fmt.Errorf("--identity-file is required")
			}
			if cfg.Username == "" || (cfg.Password == "" && cfg.Token == "") {
				return fmt.Errorf("--username and one of --token or --password are required")
			}
			keeper, err := secrets.NewKeeperFromIdentityFile(cfg.AgeIdentityFile, newLogger(cfg))
			if err != nil {
				return err
			}
			sealed, err := keeper.Seal(secrets.Credentials{
				Username: cfg.Username,
				Password: cfg.Password,
				Token:    cfg.Token,
			})
			if err != nil {
				return err
			}
			if output == "" {
				_, err := cmd.OutOrStdout().Write(sealed)
				return err
			}
			if err := os.WriteFile(output, sealed, 0o600); err != nil {
				return fmt.Errorf("writing credentials file: %w", err)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&output, "output", "", "write the sealed credentials here instead of stdout")
	return cmd
}
