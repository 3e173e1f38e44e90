package cmd

import (
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/woffyai/woffyd/pkg/config"
	"github.com/woffyai/woffyd/pkg/wizard"
)

var configServerPath string

func init() {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Run the configuration wizard",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.LoadServerConfig(configServerPath)
			if err != nil {
				if !errors.Is(err, os.ErrNotExist) {
					return fmt.Errorf("load server config: %w", err)
				}
				cfg = config.NewDefaultServerConfig()
			}
			if err := wizard.RunServerWizard(cmd.InOrStdin(), cmd.OutOrStdout(), configServerPath, cfg); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s\n", configServerPath)
			return nil
		},
	}
	configCmd.Flags().StringVar(&configServerPath, "config", config.DefaultServerConfigPath(), "Server config TOML path")
	rootCmd.AddCommand(configCmd)
}
