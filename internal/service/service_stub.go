//go:build !windows

// Package service provides a stub implementation for non-Windows platforms.
// On macOS and Linux the sampler runs as a foreground process.
package service

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// SamplerService is a pass-through wrapper for non-Windows platforms.
type SamplerService struct {
	logger  *zap.Logger
	startFn func(ctx context.Context) error
}

// New creates a stub service wrapper. stopTimeout is unused here.
func New(logger *zap.Logger, stopTimeout time.Duration, startFn func(ctx context.Context) error) *SamplerService {
	return &SamplerService{
		logger:  logger,
		startFn: startFn,
	}
}

// IsWindowsService always returns false on non-Windows platforms.
func IsWindowsService() bool {
	return false
}

// Run executes the sampler directly.
func (s *SamplerService) Run() error {
	return s.startFn(context.Background())
}
