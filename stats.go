package walloc

import "walloc/internal/engine"

// TierStats is one tier's contribution to Stats.
type TierStats struct {
	Name           string  `json:"name"`
	Used           uint64  `json:"used"`
	Capacity       uint64  `json:"capacity"`
	HighWaterMark  uint64  `json:"highWaterMark"`
	TotalAllocated uint64  `json:"totalAllocated"`
	MemorySaved    uint64  `json:"memorySaved"`
}

// Stats is the allocator's full diagnostic snapshot, in the exact
// shape hosts expect back from memory_stats().
type Stats struct {
	AllocatorType     string      `json:"allocatorType"`
	Pages             uint64      `json:"pages"`
	RawMemorySize     uint64      `json:"rawMemorySize"`
	TotalSize         uint64      `json:"totalSize"`
	TotalUsed         uint64      `json:"totalUsed"`
	MemoryUtilization float64     `json:"memoryUtilization"`
	Tiers             []TierStats `json:"tiers"`
}

func fromEngineStats(s engine.Stats) Stats {
	tiers := make([]TierStats, len(s.Tiers))
	for i, t := range s.Tiers {
		tiers[i] = TierStats{
			Name:           t.Name,
			Used:           t.Used,
			Capacity:       t.Capacity,
			HighWaterMark:  t.HighWaterMark,
			TotalAllocated: t.TotalAllocated,
			MemorySaved:    t.MemorySaved,
		}
	}
	return Stats{
		AllocatorType:     s.AllocatorType,
		Pages:             s.Pages,
		RawMemorySize:     s.RawMemorySize,
		TotalSize:         s.TotalSize,
		TotalUsed:         s.TotalUsed,
		MemoryUtilization: s.MemoryUtilization,
		Tiers:             tiers,
	}
}
