package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/woffyai/woffyd/pkg/config"
	"github.com/woffyai/woffyd/pkg/logutil"
	"github.com/woffyai/woffyd/pkg/proxy"
	"github.com/woffyai/woffyd/pkg/version"
)

var (
	serveConfigPath         string
	serveEnvFile            string
	serveListenAddrOverride string
	serveDataDirOverride    string
)

func init() {
	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the chat relay server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.LoadDotEnv(serveEnvFile); err != nil {
				return err
			}
			cfg, err := config.LoadOrCreateServerConfig(serveConfigPath)
			if err != nil {
				return fmt.Errorf("load server config: %w", err)
			}
			cfg.ApplyEnv(os.LookupEnv)
			if cmd.Flags().Changed("listen-addr") {
				cfg.ListenAddr = serveListenAddrOverride
			}
			if cmd.Flags().Changed("data-dir") {
				cfg.DataDir = serveDataDirOverride
			}
			level := cfg.LogLevel
			if cmd.Flags().Changed("loglevel") {
				level = logLevel
			}
			if err := logutil.Configure(level, cfg.LogFormat); err != nil {
				return err
			}
			log.Info("starting woffyd", "version", version.String(), "config", serveConfigPath)

			srv, err := proxy.NewServer(cfg)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}

			ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			return srv.Run(ctx)
		},
	}
	serveCmd.Flags().StringVar(&serveConfigPath, "config", config.DefaultServerConfigPath(), "Server config TOML path (created with defaults when missing)")
	serveCmd.Flags().StringVar(&serveEnvFile, "env-file", ".env", "Dotenv file loaded before the environment overlay")
	serveCmd.Flags().StringVar(&serveListenAddrOverride, "listen-addr", "", "Override listen address from config (e.g. 0.0.0.0:8000)")
	serveCmd.Flags().StringVar(&serveDataDirOverride, "data-dir", "", "Override data directory holding instructions.json and model.json")
	rootCmd.AddCommand(serveCmd)
}
