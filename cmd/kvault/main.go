package main

import (
	"errors"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	configPath  string
	service     string
	accessGroup string
	backendName string
	verbose     bool
)

var rootCmd = &cobra.Command{
	Use:           "kvault",
	Short:         "Typed key-value storage in the platform's secure store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelWarn
		if verbose {
			level = slog.LevelDebug
		}
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
	},
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configPath, "config", "", "config file (default ~/.kvault/config.yaml)")
	flags.StringVar(&service, "service", "", "service name scoping the store")
	flags.StringVar(&accessGroup, "access-group", "", "access group scoping the store")
	flags.StringVar(&backendName, "backend", "", "storage backend: keychain, file or memory")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log debug output to stderr")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		if !errors.Is(err, errAbsent) {
			fmt.Fprintln(os.Stderr, err)
		}
		os.Exit(1)
	}
}
