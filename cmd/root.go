package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/woffyai/woffyd/pkg/logutil"
)

var logLevel string

var rootCmd = &cobra.Command{
	Use:   "woffyd",
	Short: "Woffy.ai chat relay backend",
	Long:  "woffyd relays chat requests from the Woffy.ai frontend to an OpenAI-compatible provider and stores the system prompts and model list it serves.",
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.SetOut(os.Stdout)
	rootCmd.SetErr(os.Stderr)
	rootCmd.SilenceUsage = true
	rootCmd.SilenceErrors = true
	rootCmd.PersistentFlags().StringVar(&logLevel, "loglevel", "info", "Log level (trace, debug, info, warn, error, fatal)")
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if os.Geteuid() == 0 {
			fmt.Fprintln(cmd.ErrOrStderr(), "warning: running as root")
		}
		return logutil.Configure(logLevel, "text")
	}
}
