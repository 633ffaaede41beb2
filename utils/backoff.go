// Copyright (C) 2025, Lux Industries Inc. All rights reserved.
// See the file LICENSE for licensing terms.

package utils

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/luxfi/log"
)

const (
	DefaultMaxRetries = 3
	DefaultBaseDelay  = time.Second
)

// WithRetriesTimeout uses an exponential backoff to run the operation until it
// succeeds, the timeout limit has been reached or ctx is done.
func WithRetriesTimeout(
	ctx context.Context,
	logger log.Logger,
	operation backoff.Operation,
	timeout time.Duration,
) error {
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithMaxElapsedTime(timeout),
	)
	notify := func(err error, duration time.Duration) {
		logger.Warn("operation failed, retrying...",
			log.Stringer("retryIn", duration),
			log.Err(err),
		)
	}
	return backoff.RetryNotify(operation, backoff.WithContext(expBackOff, ctx), notify)
}

// WithMaxRetries runs the operation at most maxRetries times, sleeping
// baseDelay*2^i between attempt i and i+1. The last error is returned.
// Zero arguments select DefaultMaxRetries and DefaultBaseDelay. Wrap an error
// with backoff.Permanent to stop early.
func WithMaxRetries(
	ctx context.Context,
	logger log.Logger,
	operation backoff.Operation,
	maxRetries uint64,
	baseDelay time.Duration,
) error {
	b := backoff.WithContext(maxRetriesBackOff(maxRetries, baseDelay), ctx)
	notify := func(err error, duration time.Duration) {
		logger.Warn("operation failed, retrying...",
			log.Stringer("retryIn", duration),
			log.Err(err),
		)
	}
	return backoff.RetryNotify(operation, b, notify)
}

func maxRetriesBackOff(maxRetries uint64, baseDelay time.Duration) backoff.BackOff {
	if maxRetries == 0 {
		maxRetries = DefaultMaxRetries
	}
	if baseDelay <= 0 {
		baseDelay = DefaultBaseDelay
	}
	expBackOff := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(baseDelay),
		backoff.WithMultiplier(2),
		backoff.WithRandomizationFactor(0),
		backoff.WithMaxInterval(baseDelay<<maxRetries),
		backoff.WithMaxElapsedTime(0),
	)
	return backoff.WithMaxRetries(expBackOff, maxRetries-1)
}
