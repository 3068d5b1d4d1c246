package db

import (
	"context"
	"sync"

	"github.com/eigerco/colstore/pkg/errors"
)

// Lifecycle is the collaborator that owns an engine's process, for backends
// that run outside the caller (a daemon, a sidecar, a server started for
// tests). Start and Stop must be idempotent.
type Lifecycle interface {
	Start(ctx context.Context) error
	Stop() error
}

// LifecycleFuncs adapts a pair of functions to Lifecycle. Either may be nil.
type LifecycleFuncs struct {
	StartFunc func(ctx context.Context) error
	StopFunc  func() error
}

func (f LifecycleFuncs) Start(ctx context.Context) error {
	if f.StartFunc == nil {
		return nil
	}
	return f.StartFunc(ctx)
}

func (f LifecycleFuncs) Stop() error {
	if f.StopFunc == nil {
		return nil
	}
	return f.StopFunc()
}

// Supervise guards l so that Start and Stop run their underlying function at
// most once per transition: a second Start while running is a no-op, as is
// Stop while stopped. Start failures carry ErrBackendUnavailable.
func Supervise(l Lifecycle) *Supervisor {
	return &Supervisor{l: l}
}

type Supervisor struct {
	mu      sync.Mutex
	l       Lifecycle
	running bool
}

func (s *Supervisor) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return nil
	}
	if err := s.l.Start(ctx); err != nil {
		return errors.Wrap(err, errors.ErrBackendUnavailable, "start backend process")
	}
	s.running = true
	return nil
}

func (s *Supervisor) Stop() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.running {
		return nil
	}
	if err := s.l.Stop(); err != nil {
		return errors.Wrap(err, errors.ErrBackendUnavailable, "stop backend process")
	}
	s.running = false
	return nil
}

// Running reports whether Start succeeded and no Stop has succeeded since.
func (s *Supervisor) Running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}
