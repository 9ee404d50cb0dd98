// Package testing provides test doubles for the collector package.
package testing

import (
	"context"
	"sync"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// FakeProvider is a scriptable collector.Provider. It succeeds with fixed
// values by default; failures can be set per category either permanently
// or for the next N calls.
type FakeProvider struct {
	mu sync.Mutex

	// Values returned on success.
	Cores   []float64
	Mem     models.MemoryStats
	Volumes []models.Volume
	Info    models.HostInfo

	// Block makes every call wait for ctx to be done.
	Block bool

	fail   map[models.Category]error
	queued map[models.Category][]error
	calls  map[models.Category]int
}

// NewFakeProvider creates a fake describing a small healthy host.
func NewFakeProvider() *FakeProvider {
	return &FakeProvider{
		Cores: []float64{10, 20, 30, 40},
		Mem:   models.MemoryStats{Total: 16 << 30, Used: 4 << 30, Available: 12 << 30},
		Volumes: []models.Volume{
			{Name: "sda1", Mount: "/", Fs: "ext4", Total: 500 << 30, Available: 250 << 30},
		},
		Info: models.HostInfo{
			OSName:        "Fake Linux",
			OSVersion:     "1.0",
			KernelVersion: "6.1.0",
			Hostname:      "fake-host",
			UptimeSeconds: 3600,
			BootTime:      1700000000,
		},
		fail:   make(map[models.Category]error),
		queued: make(map[models.Category][]error),
		calls:  make(map[models.Category]int),
	}
}

// SetFail makes every call for cat fail with err until ClearFail.
func (f *FakeProvider) SetFail(cat models.Category, err error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[cat] = err
	return f
}

// SetFailAll makes every category fail with err.
func (f *FakeProvider) SetFailAll(err error) *FakeProvider {
	for _, c := range models.Categories {
		f.SetFail(c, err)
	}
	return f
}

// ClearFail removes permanent failures for all categories.
func (f *FakeProvider) ClearFail() *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail = make(map[models.Category]error)
	return f
}

// FailNext queues errors returned by the next calls for cat, one per call.
// A nil entry means that call succeeds.
func (f *FakeProvider) FailNext(cat models.Category, errs ...error) *FakeProvider {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.queued[cat] = append(f.queued[cat], errs...)
	return f
}

// SetBlocking toggles Block under the lock.
func (f *FakeProvider) SetBlocking(block bool) {
	f.mu.Lock()
	f.Block = block
	f.mu.Unlock()
}

// Calls returns how many times cat was queried.
func (f *FakeProvider) Calls(cat models.Category) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[cat]
}

// TotalCalls returns the number of queries across all categories.
func (f *FakeProvider) TotalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	n := 0
	for _, c := range f.calls {
		n += c
	}
	return n
}

func (f *FakeProvider) enter(ctx context.Context, cat models.Category) error {
	f.mu.Lock()
	f.calls[cat]++
	block := f.Block
	var err error
	if q := f.queued[cat]; len(q) > 0 {
		err = q[0]
		f.queued[cat] = q[1:]
	} else {
		err = f.fail[cat]
	}
	f.mu.Unlock()

	if block {
		<-ctx.Done()
		return ctx.Err()
	}
	return err
}

func (f *FakeProvider) Processor(ctx context.Context) (models.ProcessorStats, error) {
	if err := f.enter(ctx, models.CategoryProcessor); err != nil {
		return models.ProcessorStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return models.NewProcessorStats(f.Cores), nil
}

func (f *FakeProvider) Memory(ctx context.Context) (models.MemoryStats, error) {
	if err := f.enter(ctx, models.CategoryMemory); err != nil {
		return models.MemoryStats{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Mem, nil
}

func (f *FakeProvider) Storage(ctx context.Context) ([]models.Volume, error) {
	if err := f.enter(ctx, models.CategoryStorage); err != nil {
		return nil, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]models.Volume(nil), f.Volumes...), nil
}

func (f *FakeProvider) Host(ctx context.Context) (models.HostInfo, error) {
	if err := f.enter(ctx, models.CategoryHost); err != nil {
		return models.HostInfo{}, err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.Info, nil
}
