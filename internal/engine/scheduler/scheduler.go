// Package scheduler implements the top-level build driver.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"sync"

	"go.trai.ch/bake/internal/core/domain"
	"go.trai.ch/bake/internal/core/ports"
	"go.trai.ch/bake/internal/engine/graph"
	"go.trai.ch/zerr"
)

// Exit statuses of a build.
const (
	ExitSuccess       = 0
	ExitAborted       = 1
	ExitConfiguration = 2
)

// Build describes one top-level invocation.
type Build struct {
	Registry *graph.Registry
	Vars     *domain.VariableStore
	// Targets are run in order; the first failure stops the build.
	Targets []string
	Options graph.Options
	// Telemetry replaces the scheduler's recorder for this build when set.
	Telemetry ports.Telemetry
}

// Scheduler validates the requested targets, runs them on a dedicated worker
// goroutine and tracks the status of every registered target.
type Scheduler struct {
	logger    ports.Logger
	telemetry ports.Telemetry

	mu           sync.RWMutex
	targetStatus map[domain.Name]domain.TargetStatus
}

// NewScheduler creates a new Scheduler.
func NewScheduler(logger ports.Logger, telemetry ports.Telemetry) *Scheduler {
	return &Scheduler{
		logger:       logger,
		telemetry:    telemetry,
		targetStatus: make(map[domain.Name]domain.TargetStatus),
	}
}

// initTargetStatuses sets every registered target to pending.
func (s *Scheduler) initTargetStatuses(reg *graph.Registry) {
	s.mu.Lock()
	defer s.mu.Unlock()

	clear(s.targetStatus)
	for _, t := range reg.Targets() {
		s.targetStatus[domain.NewName(t.Name)] = domain.TargetStatusPending
	}
}

func (s *Scheduler) updateStatus(name string, status domain.TargetStatus) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.targetStatus[domain.NewName(name)] = status
}

// Summary counts the targets of the last build by status.
func (s *Scheduler) Summary() map[domain.TargetStatus]int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	counts := make(map[domain.TargetStatus]int)
	for status := range maps.Values(s.targetStatus) {
		counts[status]++
	}
	return counts
}

// Run validates every requested target before anything runs, then invokes them in
// order on a worker goroutine. Cancelling ctx interrupts the build.
func (s *Scheduler) Run(ctx context.Context, b Build) error {
	if len(b.Targets) == 0 {
		return domain.ErrNoTargetsSpecified
	}
	if b.Vars == nil {
		b.Vars = domain.NewVariableStore()
	}
	s.initTargetStatuses(b.Registry)

	opts := b.Options
	observe := opts.OnStatus
	opts.OnStatus = func(name string, status domain.TargetStatus) {
		s.updateStatus(name, status)
		if observe != nil {
			observe(name, status)
		}
	}
	telemetry := s.telemetry
	if b.Telemetry != nil {
		telemetry = b.Telemetry
	}
	engine := graph.NewEngine(b.Registry, b.Vars, s.logger, telemetry, opts)

	for _, name := range b.Targets {
		if err := engine.ValidateTree(graph.Name(name)); err != nil {
			return zerr.With(err, "target", name)
		}
	}

	done := make(chan error, 1)
	go func() {
		defer zerr.Defer(func(perr error) {
			done <- &domain.StructuralError{Value: perr}
		})
		done <- s.build(ctx, engine, b.Targets)
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		s.logger.Warn("build interrupted")
		return domain.Abort(zerr.With(zerr.Wrap(domain.ErrInterrupted, ""), "cause", context.Cause(ctx).Error()))
	}
}

func (s *Scheduler) build(ctx context.Context, engine *graph.Engine, targets []string) error {
	for _, name := range targets {
		if err := ctx.Err(); err != nil {
			return domain.Abort(errors.Join(domain.ErrInterrupted, err))
		}
		s.logger.Debug(fmt.Sprintf("invoking target %s", name))
		if err := engine.Invoke(ctx, graph.Name(name)); err != nil {
			return err
		}
	}
	return nil
}

// ExitCode maps the result of Run to a process exit status: configuration and
// structural errors are 2, every other failure is an abort.
func ExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var se *domain.StructuralError
	if errors.As(err, &se) {
		return ExitConfiguration
	}
	if domain.IsConfigurationError(err) && !domain.IsAbort(err) {
		return ExitConfiguration
	}
	return ExitAborted
}
