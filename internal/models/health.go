package models

import "time"

// Health buckets the weighted load score of a snapshot.
type Health int

const (
	HealthExcellent Health = iota
	HealthGood
	HealthFair
	HealthPoor
	HealthCritical
)

func (h Health) String() string {
	switch h {
	case HealthExcellent:
		return "excellent"
	case HealthGood:
		return "good"
	case HealthFair:
		return "fair"
	case HealthPoor:
		return "poor"
	default:
		return "critical"
	}
}

// MaxVolumeUsage returns the highest usage percentage across all volumes.
func (s SystemSnapshot) MaxVolumeUsage() float64 {
	var max float64
	for _, v := range s.Storage {
		if p := v.UsagePercent(); p > max {
			max = p
		}
	}
	return max
}

// LoadScore weighs processor and memory usage at 40% each and the fullest
// volume at 20%.
func (s SystemSnapshot) LoadScore() float64 {
	return 0.4*s.Processor.Overall + 0.4*s.Memory.UsagePercent() + 0.2*s.MaxVolumeUsage()
}

// Health maps the load score onto a health bucket.
func (s SystemSnapshot) Health() Health {
	score := s.LoadScore()
	switch {
	case score < 30:
		return HealthExcellent
	case score < 50:
		return HealthGood
	case score < 70:
		return HealthFair
	case score < 85:
		return HealthPoor
	default:
		return HealthCritical
	}
}

// StaticPlaceholder returns the neutral snapshot served at the lowest
// degradation level. Numeric fields are zero and identity fields read
// "unknown" so consumers can render it without special cases.
func StaticPlaceholder(now time.Time) SystemSnapshot {
	const unknown = "unknown"
	s := NewSnapshot(now, NewProcessorStats(nil), MemoryStats{}, nil, HostInfo{
		OSName:        unknown,
		OSVersion:     unknown,
		KernelVersion: unknown,
		Hostname:      unknown,
	})
	s.Source = SourceStatic
	return s
}
