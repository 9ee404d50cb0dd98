// Package models defines the snapshot structures shared by the sampler,
// its cache tiers and the presentation state. A snapshot is built once per
// collection cycle and treated as immutable afterwards.
package models

import (
	"fmt"
	"time"
)

// Category identifies one of the fixed metric groups a provider reports.
type Category int

const (
	CategoryProcessor Category = iota
	CategoryMemory
	CategoryStorage
	CategoryHost
)

// Categories lists every metric category in assembly order.
var Categories = []Category{CategoryProcessor, CategoryMemory, CategoryStorage, CategoryHost}

func (c Category) String() string {
	switch c {
	case CategoryProcessor:
		return "processor"
	case CategoryMemory:
		return "memory"
	case CategoryStorage:
		return "storage"
	case CategoryHost:
		return "host"
	default:
		return fmt.Sprintf("category(%d)", int(c))
	}
}

// Source tells the consumer where a snapshot's data came from.
type Source int

const (
	SourceLive Source = iota
	SourceCached
	SourceSimulated
	SourceStatic
)

func (s Source) String() string {
	switch s {
	case SourceLive:
		return "live"
	case SourceCached:
		return "cached"
	case SourceSimulated:
		return "simulated"
	case SourceStatic:
		return "static"
	default:
		return "unknown"
	}
}

// ProcessorStats holds per-core utilization. The overall figure is the mean
// of the cores and is fixed when the value is built.
type ProcessorStats struct {
	Overall float64   `json:"overall"`
	Cores   []float64 `json:"cores"`
}

// NewProcessorStats clamps each core to [0, 100] and derives the overall
// usage. Zero cores yield an overall usage of 0.
func NewProcessorStats(cores []float64) ProcessorStats {
	clamped := make([]float64, len(cores))
	var sum float64
	for i, v := range cores {
		clamped[i] = clampPercent(v)
		sum += clamped[i]
	}
	p := ProcessorStats{Cores: clamped}
	if len(clamped) > 0 {
		p.Overall = sum / float64(len(clamped))
	}
	return p
}

// CoreCount returns the number of logical cores reported.
func (p ProcessorStats) CoreCount() int { return len(p.Cores) }

// MemoryStats holds absolute memory counters in bytes.
type MemoryStats struct {
	Total     uint64 `json:"total"`
	Used      uint64 `json:"used"`
	Available uint64 `json:"available"`
}

// UsagePercent is derived from Used and Total on every call.
func (m MemoryStats) UsagePercent() float64 {
	return percentOf(m.Used, m.Total)
}

// Validate reports counters that cannot describe a real host.
func (m MemoryStats) Validate() error {
	if m.Used > m.Total {
		return fmt.Errorf("memory used %d exceeds total %d", m.Used, m.Total)
	}
	if m.Available > m.Total {
		return fmt.Errorf("memory available %d exceeds total %d", m.Available, m.Total)
	}
	return nil
}

// Volume describes usage of a single mounted filesystem.
type Volume struct {
	Name      string `json:"name"`
	Mount     string `json:"mount"`
	Fs        string `json:"fs,omitempty"`
	Total     uint64 `json:"total"`
	Available uint64 `json:"available"`
}

// Used returns Total minus Available, floored at zero.
func (v Volume) Used() uint64 {
	if v.Available >= v.Total {
		return 0
	}
	return v.Total - v.Available
}

// UsagePercent is derived from Used and Total on every call.
func (v Volume) UsagePercent() float64 {
	return percentOf(v.Used(), v.Total)
}

// HostInfo holds identity facts about the machine.
type HostInfo struct {
	OSName        string `json:"os_name"`
	OSVersion     string `json:"os_version"`
	KernelVersion string `json:"kernel_version"`
	Hostname      string `json:"hostname"`
	UptimeSeconds uint64 `json:"uptime_seconds"`
	BootTime      uint64 `json:"boot_time"`
}

// SystemSnapshot is one fully assembled set of host metrics.
type SystemSnapshot struct {
	CapturedAt time.Time      `json:"captured_at"`
	Processor  ProcessorStats `json:"processor"`
	Memory     MemoryStats    `json:"memory"`
	Storage    []Volume       `json:"storage"`
	Host       HostInfo       `json:"host"`
	Source     Source         `json:"source"`

	// StaleCategories lists categories filled from an earlier snapshot
	// because their live fetch failed.
	StaleCategories []Category `json:"stale_categories,omitempty"`
}

// NewSnapshot copies the slices it is given so later mutation by the caller
// cannot leak into the snapshot. A nil storage list becomes an empty one.
func NewSnapshot(capturedAt time.Time, p ProcessorStats, m MemoryStats, storage []Volume, h HostInfo) SystemSnapshot {
	vols := make([]Volume, len(storage))
	copy(vols, storage)
	cores := make([]float64, len(p.Cores))
	copy(cores, p.Cores)
	return SystemSnapshot{
		CapturedAt: capturedAt,
		Processor:  ProcessorStats{Overall: p.Overall, Cores: cores},
		Memory:     m,
		Storage:    vols,
		Host:       h,
		Source:     SourceLive,
	}
}

// WithSource returns a copy tagged with the given source.
func (s SystemSnapshot) WithSource(src Source) SystemSnapshot {
	c := s.Clone()
	c.Source = src
	return c
}

// Clone returns a deep copy.
func (s SystemSnapshot) Clone() SystemSnapshot {
	c := s
	c.Processor.Cores = append([]float64(nil), s.Processor.Cores...)
	if c.Processor.Cores == nil {
		c.Processor.Cores = []float64{}
	}
	c.Storage = append([]Volume{}, s.Storage...)
	if s.StaleCategories != nil {
		c.StaleCategories = append([]Category(nil), s.StaleCategories...)
	}
	return c
}

// IsStale reports whether any category was filled from older data.
func (s SystemSnapshot) IsStale() bool {
	return len(s.StaleCategories) > 0 || s.Source != SourceLive
}

func percentOf(part, total uint64) float64 {
	if total == 0 {
		return 0
	}
	return float64(part) / float64(total) * 100
}

func clampPercent(v float64) float64 {
	switch {
	case v != v: // NaN
		return 0
	case v < 0:
		return 0
	case v > 100:
		return 100
	}
	return v
}
