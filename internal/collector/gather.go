package collector

import (
	"context"
	"sync"
	"time"

	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"

	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// Sample holds the category results of one fan-out. Categories listed in
// Failed carry zero values.
type Sample struct {
	Processor models.ProcessorStats
	Memory    models.MemoryStats
	Storage   []models.Volume
	Host      models.HostInfo
	Failed    map[models.Category]error
}

// Complete reports whether every category resolved.
func (s Sample) Complete() bool { return len(s.Failed) == 0 }

// Err combines the category failures in category order, or returns nil.
func (s Sample) Err() error {
	var err error
	for _, c := range models.Categories {
		if e, ok := s.Failed[c]; ok {
			err = multierr.Append(err, e)
		}
	}
	return err
}

// Gather queries every category concurrently. A failing category does not
// cancel the others. Each fetch gets its own timeout when fetchTimeout is
// positive, and a fetch whose context is already done is never issued.
func Gather(ctx context.Context, p Provider, fetchTimeout time.Duration) Sample {
	s := Sample{Failed: make(map[models.Category]error)}
	var mu sync.Mutex
	var g errgroup.Group

	for _, cat := range models.Categories {
		cat := cat
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				mu.Lock()
				s.Failed[cat] = Classify(cat.String(), err)
				mu.Unlock()
				return nil
			}
			fctx, cancel := withTimeout(ctx, fetchTimeout)
			defer cancel()
			err := fetch(fctx, p, cat, &s, &mu)
			if err != nil {
				mu.Lock()
				s.Failed[cat] = Classify(cat.String(), err)
				mu.Unlock()
			}
			return nil
		})
	}
	_ = g.Wait()
	return s
}

func fetch(ctx context.Context, p Provider, cat models.Category, s *Sample, mu *sync.Mutex) error {
	switch cat {
	case models.CategoryProcessor:
		v, err := p.Processor(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		s.Processor = v
		mu.Unlock()
	case models.CategoryMemory:
		v, err := p.Memory(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		s.Memory = v
		mu.Unlock()
	case models.CategoryStorage:
		v, err := p.Storage(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		s.Storage = v
		mu.Unlock()
	case models.CategoryHost:
		v, err := p.Host(ctx)
		if err != nil {
			return err
		}
		mu.Lock()
		s.Host = v
		mu.Unlock()
	}
	return nil
}

func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}
