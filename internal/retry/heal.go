// heal.go
//
// Bounded retry and idempotent upsert
// Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC
//
// This file is part of eagleview.
// eagleview is free software: you can redistribute it and/or modify it
// under the terms of the GNU Affero General Public License as published by the Free Software
// Foundation, either version 3 of the License, or (at your option) any later version.
// eagleview is distributed in the hope that it will be useful, but WITHOUT ANY WARRANTY;
// without even the implied warranty of MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.
// See the GNU Affero General Public License for more details.
// You should have received a copy of the GNU Affero General Public License along with eagleview.
// If not, see <https://www.gnu.org/licenses/>.
// Additional terms under GNU AGPL version 3 section 7:
// a) The reasonable legal notice of original copyright and author attribution must be preserved
//    by including the string: "Copyright (c) 2026 Alex Grant <info@localnerve.com> (https://www.localnerve.com), LocalNerve LLC"
//    in this material, copies, or source code of derived works.

// Package retry holds the bounded-retry, idempotent-upsert combinator used to absorb
// read-after-write lag on freshly created records.
package retry

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/sync/singleflight"
)

// Policy bounds the lookups made before falling back to heal
type Policy struct {
	// Attempts is the total number of lookups, at least 1
	Attempts int
	// Delay is the constant wait between lookups
	Delay time.Duration
	// Timeout bounds one shared Healer resolution; zero means DefaultResolveTimeout
	Timeout time.Duration
}

// DefaultResolveTimeout bounds a Healer resolution when the policy sets none
const DefaultResolveTimeout = 30 * time.Second

type options struct {
	onRetry func(attempt int, err error)
}

// Option configures Heal
type Option func(*options)

// OnRetry is called after each failed lookup that will be retried
func OnRetry(fn func(attempt int, err error)) Option {
	return func(o *options) {
		o.onRetry = fn
	}
}

// Heal calls lookup up to p.Attempts times, p.Delay apart. If every lookup fails it calls
// heal and reports healed=true. heal must be an insert-if-absent so that repeated or
// concurrent heals converge on one record. A cancelled ctx stops the retries and skips heal.
func Heal[T any](ctx context.Context, p Policy, lookup, heal func(context.Context) (T, error), opts ...Option) (T, bool, error) {
	o := options{onRetry: func(int, error) {}}
	for _, opt := range opts {
		opt(&o)
	}

	attempts := p.Attempts
	if attempts < 1 {
		attempts = 1
	}

	var b backoff.BackOff = backoff.NewConstantBackOff(p.Delay)
	b = backoff.WithMaxRetries(b, uint64(attempts-1))
	b = backoff.WithContext(b, ctx)

	attempt := 0
	value, err := backoff.RetryNotifyWithData(func() (T, error) {
		attempt++
		return lookup(ctx)
	}, b, func(err error, _ time.Duration) {
		o.onRetry(attempt, err)
	})
	if err == nil {
		return value, false, nil
	}

	if ctxErr := ctx.Err(); ctxErr != nil {
		var zero T
		return zero, false, ctxErr
	}

	value, err = heal(ctx)
	if err != nil {
		var zero T
		return zero, false, err
	}
	return value, true, nil
}

type outcome[T any] struct {
	value  T
	healed bool
}

// Healer runs Heal with one in-flight resolution per key; concurrent callers for the same
// key share the result. The shared work is detached from every caller's cancellation, so one
// caller giving up never fails the others.
type Healer[T any] struct {
	policy Policy
	group  singleflight.Group
}

// NewHealer creates a Healer with policy p
func NewHealer[T any](p Policy) *Healer[T] {
	return &Healer[T]{policy: p}
}

// Policy returns the healer's retry policy
func (h *Healer[T]) Policy() Policy {
	return h.policy
}

// Resolve runs Heal for key, sharing the call with concurrent callers of the same key.
// A cancelled ctx returns ctx.Err() to this caller only.
func (h *Healer[T]) Resolve(ctx context.Context, key string, lookup, heal func(context.Context) (T, error), opts ...Option) (T, bool, error) {
	timeout := h.policy.Timeout
	if timeout <= 0 {
		timeout = DefaultResolveTimeout
	}

	ch := h.group.DoChan(key, func() (interface{}, error) {
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), timeout)
		defer cancel()
		value, healed, err := Heal(shared, h.policy, lookup, heal, opts...)
		return outcome[T]{value: value, healed: healed}, err
	})

	select {
	case res := <-ch:
		out, _ := res.Val.(outcome[T])
		return out.value, out.healed, res.Err
	case <-ctx.Done():
		var zero T
		return zero, false, ctx.Err()
	}
}
