package services

import (
	"context"
	"errors"
	"time"

	"github.com/googleapis/gax-go/v2"
)

const (
	defaultCompensationAttempts = 4
	compensationTimeout         = 10 * time.Second
)

// Undo steps are retried on any error except rejected input or a missing entity.
func newCompensationBackoff() gax.Backoff {
	return gax.Backoff{
		Initial:    25 * time.Millisecond,
		Max:        500 * time.Millisecond,
		Multiplier: 2,
	}
}

func retryCompensation(ctx context.Context, attempts int, fn func(context.Context) error) error {
	if attempts <= 0 {
		attempts = defaultCompensationAttempts
	}
	backoff := newCompensationBackoff()
	var err error
	for attempt := 1; ; attempt++ {
		if err = fn(ctx); err == nil {
			return nil
		}
		if attempt >= attempts || errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrNotFound) {
			return err
		}
		if sleepErr := gax.Sleep(ctx, backoff.Pause()); sleepErr != nil {
			return errors.Join(err, sleepErr)
		}
	}
}

// saga records undo steps for a multi-step operation and replays them newest first.
type saga struct {
	steps []sagaStep
}

type sagaStep struct {
	name string
	undo func(context.Context) error
}

func (s *saga) push(name string, undo func(context.Context) error) {
	s.steps = append(s.steps, sagaStep{name: name, undo: undo})
}

// compensate runs every recorded undo step in reverse order. It keeps going after a failed
// step and reports each failure through onFailure.
func (s *saga) compensate(ctx context.Context, onFailure func(step string, err error)) error {
	// undo must survive a cancelled request
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), compensationTimeout)
	defer cancel()

	var errs []error
	for i := len(s.steps) - 1; i >= 0; i-- {
		step := s.steps[i]
		if err := retryCompensation(ctx, defaultCompensationAttempts, step.undo); err != nil {
			if onFailure != nil {
				onFailure(step.name, err)
			}
			errs = append(errs, err)
		}
	}
	s.steps = nil
	return errors.Join(errs...)
}
