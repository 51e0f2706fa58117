package worker

import (
	"context"
	"errors"
)

// ErrDispatcherBusy is returned by Submit when the pending job budget is spent.
var ErrDispatcherBusy = errors.New("dispatcher busy")

// ErrDispatcherStopped is returned by Submit after Stop.
var ErrDispatcherStopped = errors.New("dispatcher stopped")

// Job is one unit of background work. Jobs sharing a Key run in submission
// order and keys are served round-robin.
type Job struct {
	Key  string
	Kind string
	Run  func(ctx context.Context)

	stop bool
}
