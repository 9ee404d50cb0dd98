package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"

	"github.com/Guliveer/vitalis/sampler/internal/cache"
	"github.com/Guliveer/vitalis/sampler/internal/collector"
	"github.com/Guliveer/vitalis/sampler/internal/config"
	"github.com/Guliveer/vitalis/sampler/internal/degradation"
	"github.com/Guliveer/vitalis/sampler/internal/metrics"
	"github.com/Guliveer/vitalis/sampler/internal/recovery"
	"github.com/Guliveer/vitalis/sampler/internal/scheduler"
	"github.com/Guliveer/vitalis/sampler/internal/updates"
	"github.com/Guliveer/vitalis/sampler/internal/viewstate"
)

// sampler is the wired set of components behind one run.
type sampler struct {
	cache    *cache.Cache
	sched    *scheduler.Scheduler
	channel  *updates.Channel
	controls *updates.Controls
	consumer *viewstate.Consumer
}

// runForeground runs until SIGINT or SIGTERM. SIGHUP reloads configuration
// and applies a changed interval to the running loop.
func runForeground(cfg *config.Config, logger *zap.Logger) error {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM, syscall.SIGHUP)
	defer signal.Stop(sigCh)

	reload := make(chan struct{}, 1)
	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case sig := <-sigCh:
				if sig == syscall.SIGHUP {
					select {
					case reload <- struct{}{}:
					default:
					}
					continue
				}
				logger.Info("Received signal, shutting down",
					zap.String("signal", sig.String()))
				cancel()
				return
			}
		}
	}()

	err := runSampler(ctx, cfg, logger, reload)
	logger.Info("Sampler stopped")
	return err
}

// runSampler wires every component and blocks until the loop has stopped.
// It returns the loop's terminal error, if any.
func runSampler(ctx context.Context, cfg *config.Config, logger *zap.Logger, reload <-chan struct{}) error {
	s, err := build(cfg, logger, clockwork.NewRealClock())
	if err != nil {
		return err
	}
	defer func() {
		closeCtx, cancel := context.WithTimeout(context.Background(), cfg.Cache.WriteTimeout.Duration)
		defer cancel()
		if err := s.cache.Close(closeCtx); err != nil {
			logger.Warn("Closing cache", zap.Error(err))
		}
	}()

	if cfg.Metrics.Listen != "" {
		go func() {
			if err := metrics.Serve(ctx, cfg.Metrics.Listen, logger); err != nil {
				logger.Error("Metrics endpoint failed", zap.Error(err))
			}
		}()
	}

	handle := s.sched.Start(ctx)

	if reload != nil {
		go watchReload(ctx, reload, s.controls, logger)
	}

	state := s.consumer.Run(ctx)
	if err := handle.Wait(); err != nil {
		return fmt.Errorf("collector loop: %w", err)
	}
	// Pick up the final ShutdownAck when ctx ended the consumer first.
	state.Pump(s.channel)
	logger.Debug("Final state",
		zap.Bool("stopped", state.Stopped),
		zap.String("reason", state.StopReason),
		zap.Uint64("cycle", state.Cycle))
	return nil
}

func watchReload(ctx context.Context, reload <-chan struct{}, controls *updates.Controls, logger *zap.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-reload:
			cfg, err := config.LoadLayered(config.CLIOverrides{Interval: intervalFlag}, embeddedConfig, configPathForReload())
			if err == nil {
				err = cfg.Validate()
			}
			if err != nil {
				logger.Warn("Reload rejected", zap.Error(err))
				continue
			}
			if err := controls.Request(updates.SetInterval{Interval: cfg.Collection.Interval.Duration}); err != nil {
				logger.Warn("Reload dropped", zap.Error(err))
			}
		}
	}
}

func configPathForReload() string {
	if configPath != "" {
		return configPath
	}
	return config.Locate()
}

// build constructs the component graph from cfg.
func build(cfg *config.Config, logger *zap.Logger, clock clockwork.Clock) (*sampler, error) {
	tierTwo, err := newTierTwo(cfg, logger)
	if err != nil {
		return nil, err
	}

	c, err := cache.New(cache.Options{
		Capacity:  cfg.Cache.Capacity,
		TierTwo:   tierTwo,
		IOTimeout: cfg.Cache.WriteTimeout.Duration,
		Clock:     clock,
		Logger:    logger.Named("cache"),
	})
	if err != nil {
		return nil, err
	}

	rm := recovery.NewManager(logger.Named("recovery"), clock, cfg.BreakerSettings())
	if err := rm.RegisterDefaults(cfg.RetryPolicy()); err != nil {
		return nil, err
	}

	opts := cfg.SchedulerOptions()
	dc := degradation.NewController(logger.Named("degradation"), clock, c, opts.CacheKey,
		degradation.WithTrendSize(cfg.Collection.TrendSize))

	ch := updates.NewChannel(cfg.Channel.Capacity)
	controls := updates.NewControls(0)

	sched, err := scheduler.New(scheduler.Deps{
		Provider:    collector.NewGopsutilProvider(logger.Named("collector"), cfg.Collection.ProcessorSampleWindow.Duration),
		Cache:       c,
		Recovery:    rm,
		Degradation: dc,
		Channel:     ch,
		Controls:    controls,
		Clock:       clock,
		Logger:      logger.Named("scheduler"),
	}, opts)
	if err != nil {
		return nil, err
	}

	return &sampler{
		cache:    c,
		sched:    sched,
		channel:  ch,
		controls: controls,
		consumer: viewstate.NewConsumer(ch, logger.Named("view")),
	}, nil
}

// newTierTwo returns the configured second tier, or nil for none. An
// unreachable redis is reported but does not prevent startup.
func newTierTwo(cfg *config.Config, logger *zap.Logger) (cache.Store, error) {
	switch cfg.Cache.TierTwo {
	case config.TierTwoNone:
		return nil, nil
	case config.TierTwoFile:
		fs, err := cache.NewFileStore(cfg.Cache.Dir, cfg.Cache.MaxSizeMB, logger.Named("filestore"))
		if err != nil {
			return nil, fmt.Errorf("initializing file cache: %w", err)
		}
		return fs, nil
	case config.TierTwoRedis:
		rs := cache.NewRedisStore(cache.RedisOptions{
			Addr:     cfg.Cache.Redis.Addr,
			Password: cfg.Cache.Redis.Password,
			DB:       cfg.Cache.Redis.DB,
			TTL:      cfg.Cache.Redis.TTL.Duration,
		})
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Cache.WriteTimeout.Duration)
		defer cancel()
		if err := rs.Ping(ctx); err != nil {
			logger.Warn("Redis unreachable, continuing with tier one only until it recovers",
				zap.String("addr", cfg.Cache.Redis.Addr), zap.Error(err))
		}
		return rs, nil
	default:
		return nil, errors.New("unknown tier-two backend " + cfg.Cache.TierTwo)
	}
}
