package engine

import (
	"context"
)

// Serialized guards a shared Engine with a fixed pool of call slots.
// With one slot every CompressPrompt call runs inside a single critical
// section, in arrival order of slot acquisition.
//
// Waiting for a slot honours ctx. Once a call has started it runs to
// completion even if ctx is cancelled, so the engine is never left in a
// half-finished state for the next caller.
type Serialized struct {
	engine Engine
	slots  chan struct{}
}

// NewSerialized wraps engine with size concurrent slots (minimum 1).
func NewSerialized(engine Engine, size int) *Serialized {
	if size < 1 {
		size = 1
	}
	s := &Serialized{engine: engine, slots: make(chan struct{}, size)}
	for i := 0; i < size; i++ {
		s.slots <- struct{}{}
	}
	return s
}

func (s *Serialized) acquire(ctx context.Context) error {
	select {
	case <-s.slots:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Serialized) release() { s.slots <- struct{}{} }

// Name returns the wrapped engine's name.
func (s *Serialized) Name() string { return s.engine.Name() }

// Unwrap returns the wrapped engine.
func (s *Serialized) Unwrap() Engine { return s.engine }

// CompressPrompt runs the wrapped engine while holding a slot.
func (s *Serialized) CompressPrompt(ctx context.Context, text string, rate float64) (*Result, error) {
	if err := s.acquire(ctx); err != nil {
		return nil, err
	}
	defer s.release()
	return s.engine.CompressPrompt(context.WithoutCancel(ctx), text, rate)
}

// Health checks the wrapped engine without taking a slot.
func (s *Serialized) Health(ctx context.Context) error {
	return s.engine.Health(ctx)
}

var _ Engine = (*Serialized)(nil)
