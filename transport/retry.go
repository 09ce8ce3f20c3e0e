// Copyright 2026 The Periph Authors. All rights reserved.
// Use of this source code is governed under the Apache License, Version 2.0
// that can be found in the LICENSE file.

package transport

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"

	"github.com/GermanBionicSystems/sensirion/frame"
)

// Policy retries a whole transaction. The frame codec never retries on its
// own.
type Policy struct {
	// MaxAttempts is the total number of tries. Values below 1 mean 1.
	MaxAttempts int
	// Backoff is the pause between attempts.
	Backoff time.Duration
	// Retryable classifies errors. nil uses frame.Retryable, which retries
	// bus and checksum errors and gives up on length errors.
	Retryable func(error) bool
	// OnRetry, if set, is called before each new attempt with the number of
	// the failed attempt and its error.
	OnRetry func(attempt int, err error)
}

// DefaultPolicy retries transient failures twice.
var DefaultPolicy = Policy{MaxAttempts: 3, Backoff: 20 * time.Millisecond}

// NoRetry runs the transaction exactly once.
var NoRetry = Policy{MaxAttempts: 1}

// ErrAttemptsExhausted is wrapped by the error Do returns when every attempt
// failed with a retryable error.
var ErrAttemptsExhausted = errors.New("transport: attempts exhausted")

// Do runs fn until it succeeds, fails with a non retryable error, the
// attempts are used up or ctx is done.
func (p Policy) Do(ctx context.Context, fn func() error) error {
	attempts := max(p.MaxAttempts, 1)
	retryable := p.Retryable
	if retryable == nil {
		retryable = frame.Retryable
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(p.Backoff), uint64(attempts-1)), ctx)
	attempt := 0
	err := backoff.RetryNotify(func() error {
		attempt++
		err := fn()
		if err != nil && !retryable(err) {
			return backoff.Permanent(err)
		}
		return err
	}, b, func(err error, _ time.Duration) {
		if p.OnRetry != nil {
			p.OnRetry(attempt, err)
		}
	})
	if err != nil && attempts > 1 && attempt == attempts && ctx.Err() == nil && retryable(err) {
		return errors.Join(ErrAttemptsExhausted, err)
	}
	return err
}
