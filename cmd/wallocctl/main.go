// Command wallocctl drives a walloc.Allocator from the command line:
// a scripted demo and a stats dump. Grounded on
// Zyuery-ShmMaster/cmd/shmmaster-demo's scripted main (allocate,
// write, read, assert) elevated to a cobra CLI the way
// joshuapare-hivekit/cmd/hivectl wraps its library.
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
)

var (
	verbose bool
	jsonOut bool
)

var rootCmd = &cobra.Command{
	Use:     "wallocctl",
	Short:   "Exercise a tiered bump-arena allocator from the command line",
	Version: "0.1.0",
}

func init() {
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable verbose diagnostics")
	rootCmd.PersistentFlags().BoolVar(&jsonOut, "json", false, "Output stats as JSON")
}

func newLogger() *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
