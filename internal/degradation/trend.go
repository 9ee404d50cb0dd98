package degradation

import (
	"time"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// DefaultTrendSize is the number of live samples kept for extrapolation.
const DefaultTrendSize = 60

type trendSample struct {
	at       time.Time
	cpu      float64
	memUsed  float64
	snapshot models.SystemSnapshot
}

// Trend is a fixed-size ring of recent live snapshots.
type Trend struct {
	data  []trendSample
	head  int
	count int
}

// NewTrend creates a ring holding at most size samples.
func NewTrend(size int) *Trend {
	if size <= 0 {
		size = DefaultTrendSize
	}
	return &Trend{data: make([]trendSample, size)}
}

// Push records a live snapshot, overwriting the oldest when full.
func (t *Trend) Push(s models.SystemSnapshot) {
	t.data[t.head] = trendSample{
		at:       s.CapturedAt,
		cpu:      s.Processor.Overall,
		memUsed:  float64(s.Memory.Used),
		snapshot: s,
	}
	t.head = (t.head + 1) % len(t.data)
	if t.count < len(t.data) {
		t.count++
	}
}

// Len returns the number of samples held.
func (t *Trend) Len() int { return t.count }

// Last returns the newest sample's snapshot.
func (t *Trend) Last() (models.SystemSnapshot, bool) {
	if t.count == 0 {
		return models.SystemSnapshot{}, false
	}
	i := (t.head - 1 + len(t.data)) % len(t.data)
	return t.data[i].snapshot, true
}

// ordered returns samples oldest first.
func (t *Trend) ordered() []trendSample {
	out := make([]trendSample, 0, t.count)
	start := (t.head - t.count + len(t.data)) % len(t.data)
	for i := 0; i < t.count; i++ {
		out = append(out, t.data[(start+i)%len(t.data)])
	}
	return out
}

// Slopes returns the least-squares rate of change per second for overall
// processor usage and used memory bytes. Fewer than two samples, or
// samples sharing one timestamp, give zero slopes.
func (t *Trend) Slopes() (cpuPerSec, memPerSec float64) {
	samples := t.ordered()
	if len(samples) < 2 {
		return 0, 0
	}
	origin := samples[0].at
	xs := make([]float64, len(samples))
	cpu := make([]float64, len(samples))
	mem := make([]float64, len(samples))
	for i, s := range samples {
		xs[i] = s.at.Sub(origin).Seconds()
		cpu[i] = s.cpu
		mem[i] = s.memUsed
	}
	return slope(xs, cpu), slope(xs, mem)
}

func slope(xs, ys []float64) float64 {
	n := float64(len(xs))
	var sumX, sumY, sumXY, sumXX float64
	for i := range xs {
		sumX += xs[i]
		sumY += ys[i]
		sumXY += xs[i] * ys[i]
		sumXX += xs[i] * xs[i]
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}
