package models

import "time"

// SystemMetrics is a JSON snapshot of the process instrumentation.
type SystemMetrics struct {
	CacheHitRatio            float64   `json:"cache_hit_ratio"`
	CacheHits                uint64    `json:"cache_hits"`
	CacheMisses              uint64    `json:"cache_misses"`
	RequestsTotal            uint64    `json:"requests_total"`
	AverageRequestDurationMs float64   `json:"average_request_duration_ms"`
	GenerationRuns           uint64    `json:"generation_runs"`
	AverageGenerationMs      float64   `json:"average_generation_ms"`
	SlotsScheduled           uint64    `json:"slots_scheduled"`
	SlotsUnscheduled         uint64    `json:"slots_unscheduled"`
	SlotMutations            uint64    `json:"slot_mutations"`
	Goroutines               int       `json:"goroutines"`
	GeneratedAt              time.Time `json:"generated_at"`
}
