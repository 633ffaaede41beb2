// Copyright (C) 2019-2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package hooks

import (
	"sync"
)

// Status is the state of an Operation.
type Status uint8

const (
	Idle Status = iota
	InProgress
	Succeeded
	Failed
)

func (s Status) String() string {
	switch s {
	case Idle:
		return "idle"
	case InProgress:
		return "in progress"
	case Succeeded:
		return "succeeded"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// State is a snapshot of an Operation.
type State[T any] struct {
	Status     Status
	InProgress bool
	Result     T
	Err        error
}

// Operation tracks the outcome of the most recently settled call.
//
// Calls are not serialized: when two calls overlap, whichever settles last
// determines Status, Result and Err, and the first settlement clears the
// in-progress flag.
type Operation[T any] struct {
	lock  sync.RWMutex
	state State[T]
}

// fail records err without a call having started.
func (o *Operation[T]) fail(err error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	var zero T
	o.state = State[T]{Status: Failed, Result: zero, Err: err}
}

func (o *Operation[T]) start() {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.state.Status = InProgress
	o.state.InProgress = true
	o.state.Err = nil
}

func (o *Operation[T]) settle(result T, err error) {
	o.lock.Lock()
	defer o.lock.Unlock()
	o.state.InProgress = false
	if err != nil {
		var zero T
		o.state.Status = Failed
		o.state.Result = zero
		o.state.Err = err
		return
	}
	o.state.Status = Succeeded
	o.state.Result = result
	o.state.Err = nil
}

// run executes fn between start and settle. On failure the result is the
// zero value.
func (o *Operation[T]) run(fn func() (T, error)) (T, error) {
	o.start()
	result, err := fn()
	o.settle(result, err)
	if err != nil {
		var zero T
		return zero, err
	}
	return result, nil
}

func (o *Operation[T]) State() State[T] {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.state
}

func (o *Operation[T]) InProgress() bool {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.state.InProgress
}

func (o *Operation[T]) Err() error {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.state.Err
}

func (o *Operation[T]) Result() T {
	o.lock.RLock()
	defer o.lock.RUnlock()
	return o.state.Result
}
