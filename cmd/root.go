package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/AvaProtocol/ap-userop/pkg/logger"
)

// rootCmd represents the base command when called without any subcommands
var (
	configFile  string
	environment string

	rootCmd = &cobra.Command{
		Use:   "ap-userop",
		Short: "Ava Protocol user operation CLI",
		Long: `Resolve bundler configuration and talk to an EIP-4337 bundler.

Such as "ap-userop config show" to print the merged configuration, or
"ap-userop userop estimate --op op.json" to price a user operation.
`,
		SilenceUsage: true,
	}
)

func Execute() {
	err := rootCmd.Execute()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to bundler config file, json or yaml")
	rootCmd.PersistentFlags().StringVar(&environment, "environment", "production", "log format, development or production")
}

func newLogger() (logger.Logger, error) {
	return logger.New(environment)
}
