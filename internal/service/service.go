//go:build windows

// Package service provides Windows Service integration.
// When running as a Windows service, the sampler enters the SCM control loop.
// When running from a terminal, it runs in foreground.
package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sys/windows/svc"
)

const serviceName = "VitalisSampler"

// SamplerService implements the Windows service interface (svc.Handler).
type SamplerService struct {
	logger      *zap.Logger
	startFn     func(ctx context.Context) error
	stopTimeout time.Duration
}

// New creates a new Windows service wrapper. startFn runs the sampler until
// its context is cancelled; stopTimeout bounds how long a stop request waits
// for it to return.
func New(logger *zap.Logger, stopTimeout time.Duration, startFn func(ctx context.Context) error) *SamplerService {
	return &SamplerService{
		logger:      logger,
		startFn:     startFn,
		stopTimeout: stopTimeout,
	}
}

// IsWindowsService checks if the process is running as a Windows service.
func IsWindowsService() bool {
	isService, err := svc.IsWindowsService()
	if err != nil {
		return false
	}
	return isService
}

// Run starts the Windows service control loop.
func (s *SamplerService) Run() error {
	return svc.Run(serviceName, s)
}

// Execute implements the svc.Handler interface for Windows SCM integration.
func (s *SamplerService) Execute(args []string, r <-chan svc.ChangeRequest, changes chan<- svc.Status) (ssec bool, errno uint32) {
	changes <- svc.Status{State: svc.StartPending}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- s.startFn(ctx) }()

	changes <- svc.Status{
		State:   svc.Running,
		Accepts: svc.AcceptStop | svc.AcceptShutdown,
	}
	s.logger.Info("Windows service started")

	for {
		select {
		case err := <-done:
			// The sampler stopped on its own.
			if err != nil {
				s.logger.Error("Sampler exited", zap.Error(err))
				return true, 1
			}
			return false, 0
		case c := <-r:
			switch c.Cmd {
			case svc.Interrogate:
				changes <- c.CurrentStatus
			case svc.Stop, svc.Shutdown:
				s.logger.Info("Windows service stopping")
				changes <- svc.Status{State: svc.StopPending}
				cancel()
				select {
				case <-done:
				case <-time.After(s.stopTimeout):
					s.logger.Warn("Sampler did not stop in time", zap.Duration("timeout", s.stopTimeout))
				}
				return false, 0
			default:
				s.logger.Warn("Unexpected service control request",
					zap.Uint32("cmd", uint32(c.Cmd)))
			}
		}
	}
}

// Install provides instructions for installing the service.
func Install(exePath string) error {
	return fmt.Errorf("use 'sc create %s binPath= \"%s\"' to install", serviceName, exePath)
}
