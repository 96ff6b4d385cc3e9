package main

import (
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"walloc"
)

func init() {
	rootCmd.AddCommand(newDemoCmd())
}

func newDemoCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "demo",
		Short: "Run the allocate/write/read/compact/reset walkthrough",
		Long: `demo exercises every core operation against a fresh in-process
allocator: tiered allocation, a write/read round trip, fast-compact
with prefix preservation, and a tier reset. It mirrors the scripted
checks the original implementation runs at startup.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDemo(newLogger())
		},
	}
}

func runDemo(log *slog.Logger) error {
	a, err := walloc.New(walloc.WithInitialBytes(4 << 20))
	if err != nil {
		return fmt.Errorf("construct allocator: %w", err)
	}
	defer a.Close()

	log.Info("allocating across all three tiers")
	render := a.Allocate(1024, walloc.TierTop)
	scene := a.Allocate(2048, walloc.TierMiddle)
	entity := a.Allocate(512, walloc.TierBottom)
	if !render.Valid() || !scene.Valid() || !entity.Valid() {
		return fmt.Errorf("tier allocation failed")
	}

	log.Info("round-tripping a write/read")
	payload := []byte("hello, walloc")
	if err := a.WriteMemory(scene, payload); err != nil {
		return fmt.Errorf("write: %w", err)
	}
	got, err := a.Read(scene, uint64(len(payload)))
	if err != nil {
		return fmt.Errorf("read: %w", err)
	}
	if string(got) != string(payload) {
		return fmt.Errorf("read-back mismatch: got %q want %q", got, payload)
	}

	log.Info("fast-compacting the scene tier")
	marker := []byte("preserved")
	preserveHandle := a.Allocate(uint64(len(marker)), walloc.TierMiddle)
	if err := a.WriteMemory(preserveHandle, marker); err != nil {
		return fmt.Errorf("write marker: %w", err)
	}
	// FastCompactTier takes a byte count within the tier. scene was the
	// first Middle allocation of this fresh allocator, so it sits at the
	// tier's base offset.
	preserveBytes := uint64(preserveHandle) - uint64(scene) + uint64(len(marker))
	a.Allocate(4096, walloc.TierMiddle)
	if !a.FastCompactTier(walloc.TierMiddle, preserveBytes) {
		return fmt.Errorf("fast compact failed")
	}
	still, err := a.Read(preserveHandle, uint64(len(marker)))
	if err != nil || string(still) != string(marker) {
		return fmt.Errorf("compact corrupted preserved prefix")
	}

	log.Info("resetting the entity tier")
	if !a.ResetTier(walloc.TierBottom) {
		return fmt.Errorf("reset failed")
	}

	stats := a.MemoryStats()
	fmt.Printf("demo complete: %d pages committed, %.1f%% utilized\n", stats.Pages, stats.MemoryUtilization)
	return nil
}
