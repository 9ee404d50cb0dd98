package main

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/goccy/go-json"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/collector"
	"github.com/Guliveer/vitalis/sampler/internal/config"
	"github.com/Guliveer/vitalis/sampler/internal/models"
)

// snapshotOutput is the JSON document printed by the snapshot command.
type snapshotOutput struct {
	models.SystemSnapshot
	Health    string            `json:"health"`
	LoadScore float64           `json:"load_score"`
	Failed    map[string]string `json:"failed,omitempty"`
}

func printSnapshot(ctx context.Context, w io.Writer, cfg *config.Config, logger *zap.Logger, partial bool) error {
	if ctx == nil {
		ctx = context.Background()
	}
	p := collector.NewGopsutilProvider(logger.Named("collector"), cfg.Collection.ProcessorSampleWindow.Duration)
	return writeSnapshot(ctx, w, p, cfg.Collection.FetchTimeout.Duration, time.Now(), partial)
}

// writeSnapshot gathers once from p and writes the result as indented JSON.
// A failed category aborts unless partial is set.
func writeSnapshot(ctx context.Context, w io.Writer, p collector.Provider, fetchTimeout time.Duration, now time.Time, partial bool) error {
	sample := collector.Gather(ctx, p, fetchTimeout)
	if !sample.Complete() && !partial {
		return fmt.Errorf("collecting snapshot: %w", sample.Err())
	}

	snap := models.NewSnapshot(now, sample.Processor, sample.Memory, sample.Storage, sample.Host)
	out := snapshotOutput{
		SystemSnapshot: snap,
		Health:         snap.Health().String(),
		LoadScore:      snap.LoadScore(),
	}
	if len(sample.Failed) > 0 {
		out.Failed = make(map[string]string, len(sample.Failed))
		for c, err := range sample.Failed {
			out.Failed[c.String()] = err.Error()
		}
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}
