package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryUsagePercent(t *testing.T) {
	tests := []struct {
		name string
		mem  MemoryStats
		want float64
	}{
		{"zero total", MemoryStats{}, 0},
		{"half", MemoryStats{Total: 8 << 30, Used: 4 << 30, Available: 4 << 30}, 50},
		{"full", MemoryStats{Total: 1024, Used: 1024}, 100},
		{"odd", MemoryStats{Total: 3, Used: 1, Available: 2}, 100.0 / 3},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tt.mem.UsagePercent()
			assert.InDelta(t, tt.want, got, 1e-9)
			if tt.mem.Total > 0 {
				assert.InDelta(t, float64(tt.mem.Used)/float64(tt.mem.Total)*100, got, 1e-9)
			}
		})
	}
}

func TestMemoryValidate(t *testing.T) {
	assert.NoError(t, MemoryStats{Total: 10, Used: 4, Available: 6}.Validate())
	assert.Error(t, MemoryStats{Total: 10, Used: 11}.Validate())
	assert.Error(t, MemoryStats{Total: 10, Available: 12}.Validate())
}

func TestNewProcessorStats(t *testing.T) {
	p := NewProcessorStats(nil)
	assert.Equal(t, 0.0, p.Overall)
	assert.Equal(t, 0, p.CoreCount())

	p = NewProcessorStats([]float64{10, 30, 150, -5})
	assert.Equal(t, []float64{10, 30, 100, 0}, p.Cores)
	assert.InDelta(t, 35.0, p.Overall, 1e-9)
}

func TestVolumeUsage(t *testing.T) {
	v := Volume{Total: 200, Available: 50}
	assert.Equal(t, uint64(150), v.Used())
	assert.InDelta(t, 75.0, v.UsagePercent(), 1e-9)

	v = Volume{Total: 0, Available: 10}
	assert.Equal(t, uint64(0), v.Used())
	assert.Equal(t, 0.0, v.UsagePercent())
}

func TestNewSnapshotCopiesSlices(t *testing.T) {
	cores := []float64{20, 40}
	vols := []Volume{{Name: "sda1", Mount: "/", Total: 100, Available: 40}}
	s := NewSnapshot(time.Unix(100, 0), NewProcessorStats(cores), MemoryStats{}, vols, HostInfo{})

	vols[0].Mount = "/changed"
	assert.Equal(t, "/", s.Storage[0].Mount)

	c := s.Clone()
	c.Processor.Cores[0] = 99
	assert.Equal(t, 20.0, s.Processor.Cores[0])
	assert.Equal(t, SourceLive, s.Source)
	assert.False(t, s.IsStale())
}

func TestNewSnapshotEmptyStorage(t *testing.T) {
	s := NewSnapshot(time.Now(), NewProcessorStats(nil), MemoryStats{}, nil, HostInfo{})
	require.NotNil(t, s.Storage)
	assert.Empty(t, s.Storage)
}

func TestHealth(t *testing.T) {
	tests := []struct {
		cpu  float64
		mem  uint64
		want Health
	}{
		{cpu: 10, mem: 10, want: HealthExcellent},
		{cpu: 40, mem: 40, want: HealthGood},
		{cpu: 60, mem: 60, want: HealthFair},
		{cpu: 80, mem: 80, want: HealthPoor},
		{cpu: 100, mem: 100, want: HealthCritical},
	}
	for _, tt := range tests {
		s := NewSnapshot(time.Now(),
			NewProcessorStats([]float64{tt.cpu}),
			MemoryStats{Total: 100, Used: tt.mem, Available: 100 - tt.mem},
			[]Volume{{Total: 100, Available: 100 - tt.mem}},
			HostInfo{})
		assert.Equal(t, tt.want, s.Health(), "cpu=%v mem=%v score=%v", tt.cpu, tt.mem, s.LoadScore())
	}
}

func TestStaticPlaceholder(t *testing.T) {
	now := time.Unix(1700000000, 0)
	s := StaticPlaceholder(now)
	assert.Equal(t, SourceStatic, s.Source)
	assert.Equal(t, now, s.CapturedAt)
	assert.Equal(t, "unknown", s.Host.Hostname)
	assert.Equal(t, 0.0, s.Memory.UsagePercent())
	assert.True(t, s.IsStale())
}
