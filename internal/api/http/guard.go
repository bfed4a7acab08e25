package httpapi

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/i474232898/air-quality-etl/internal/weather"
)

// ErrRunInProgress is returned when a run is requested while another one is
// still executing in this process.
var ErrRunInProgress = errors.New("a run is already in progress")

// Pipeline is the part of weather.Service the API needs.
type Pipeline interface {
	Run(ctx context.Context) (weather.RunResult, error)
	Window(ctx context.Context, asOf time.Time) weather.Window
}

// RunGuard lets at most one run execute at a time. The scheduler and the
// HTTP API share one guard.
type RunGuard struct {
	mu       sync.Mutex
	pipeline Pipeline
}

func NewRunGuard(p Pipeline) *RunGuard {
	return &RunGuard{pipeline: p}
}

// Run executes the pipeline, or fails fast with ErrRunInProgress.
func (g *RunGuard) Run(ctx context.Context) (weather.RunResult, error) {
	if !g.mu.TryLock() {
		return weather.RunResult{}, ErrRunInProgress
	}
	defer g.mu.Unlock()
	return g.pipeline.Run(ctx)
}

// Window resolves the window without taking the lock.
func (g *RunGuard) Window(ctx context.Context, asOf time.Time) weather.Window {
	return g.pipeline.Window(ctx, asOf)
}
