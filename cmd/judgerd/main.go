// judgerd is the distributed C++ evaluation service: a Manager that queues
// judgment requests and dispatches them to a fleet of Executors, and the
// Executor role that runs each submission's build/test/extract pipeline.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var configPath string

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))
	slog.SetDefault(logger)

	root := &cobra.Command{
		Use:   "judgerd",
		Short: "judgerd runs the Manager or Executor role of the evaluation service",
	}
	root.PersistentFlags().StringVar(&configPath, "config", "", "path to an optional YAML config file overlay (env: JUDGERD_CONFIG)")

	root.AddCommand(newManagerCmd())
	root.AddCommand(newExecutorCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func resolveConfigPath() string {
	if configPath != "" {
		return configPath
	}
	return os.Getenv("JUDGERD_CONFIG")
}

func fatal(msg string, args ...interface{}) {
	slog.Error(msg, args...)
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
