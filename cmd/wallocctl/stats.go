package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"walloc"
)

var statsInitialBytes uint64

func init() {
	cmd := newStatsCmd()
	cmd.Flags().Uint64Var(&statsInitialBytes, "initial-bytes", 1<<20, "Backing memory to commit before reporting stats")
	rootCmd.AddCommand(cmd)
}

func newStatsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "stats",
		Short: "Construct an allocator and print its initial memory stats",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runStats()
		},
	}
}

func runStats() error {
	a, err := walloc.New(walloc.WithInitialBytes(statsInitialBytes))
	if err != nil {
		return fmt.Errorf("construct allocator: %w", err)
	}
	defer a.Close()

	stats := a.MemoryStats()
	if jsonOut {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(stats)
	}

	fmt.Printf("allocator type: %s\n", stats.AllocatorType)
	fmt.Printf("pages: %d  raw memory: %d bytes  total: %d bytes  used: %d bytes (%.1f%%)\n",
		stats.Pages, stats.RawMemorySize, stats.TotalSize, stats.TotalUsed, stats.MemoryUtilization)
	for _, t := range stats.Tiers {
		fmt.Printf("  %-8s used=%-10d capacity=%-10d highWater=%-10d totalAllocated=%-10d memorySaved=%d\n",
			t.Name, t.Used, t.Capacity, t.HighWaterMark, t.TotalAllocated, t.MemorySaved)
	}
	return nil
}
