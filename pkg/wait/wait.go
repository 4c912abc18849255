// Package wait implements the bounded polling loop every explicit wait in the
// framework is built on: element presence, page state, window counts, mail
// arrival and database rows.
//
// A poll never fails loudly. Errors and panics raised by a condition are logged
// at debug level and count as "not satisfied yet"; running out of time is a
// normal negative result. Deciding whether a negative result is fatal is left to
// the caller.
package wait

import (
	"context"
	"fmt"
	"reflect"
	"time"

	"go.uber.org/zap"
)

// DefaultInterval is the delay between two evaluations of a condition.
const DefaultInterval = 300 * time.Millisecond

// Condition is evaluated against a context object C (a browser driver, a
// mailbox, a database pool) and reports a value together with whether that
// value satisfies the wait. A non-nil error means "not yet" and never aborts
// the poll.
type Condition[C, T any] func(ctx context.Context, c C) (T, bool, error)

// Predicate adapts a boolean check into a Condition.
func Predicate[C any](fn func(ctx context.Context, c C) (bool, error)) Condition[C, bool] {
	return func(ctx context.Context, c C) (bool, bool, error) {
		ok, err := fn(ctx, c)
		if err != nil {
			return false, false, err
		}
		return ok, ok, nil
	}
}

// Value adapts a lookup into a Condition that is satisfied once the lookup
// yields something present: a true bool, a non-nil pointer, interface, slice,
// map, channel or func, or any other non-zero value.
func Value[C, T any](fn func(ctx context.Context, c C) (T, error)) Condition[C, T] {
	return func(ctx context.Context, c C) (T, bool, error) {
		v, err := fn(ctx, c)
		if err != nil {
			return v, false, err
		}
		return v, present(v), nil
	}
}

func present(v any) bool {
	if v == nil {
		return false
	}
	if b, ok := v.(bool); ok {
		return b
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Pointer, reflect.Interface, reflect.Slice, reflect.Map, reflect.Chan, reflect.Func:
		return !rv.IsNil()
	default:
		return !rv.IsZero()
	}
}

// Options configures a single poll. It is built per call and not retained.
type Options struct {
	// Timeout bounds the poll. Zero or negative means a single evaluation.
	Timeout time.Duration
	// Interval is the pause between evaluations; DefaultInterval when not positive.
	Interval time.Duration
	// Description names the condition in log lines.
	Description string
	Logger      *zap.Logger
}

func (o Options) normalized() Options {
	if o.Interval <= 0 {
		o.Interval = DefaultInterval
	}
	if o.Timeout < 0 {
		o.Timeout = 0
	}
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Description == "" {
		o.Description = "condition"
	}
	return o
}

// For polls cond against c until it is satisfied or opts.Timeout elapses.
//
// The first satisfying value is returned immediately. On timeout the zero value
// and false are returned, no earlier than the timeout and no later than one
// interval plus one evaluation after it. Cancelling ctx ends the poll the same
// way a timeout does.
func For[C, T any](ctx context.Context, c C, cond Condition[C, T], opts Options) (T, bool) {
	opts = opts.normalized()
	log := opts.Logger.With(zap.String("condition", opts.Description))

	var zero T
	start := time.Now()
	deadline := start.Add(opts.Timeout)

	var timer *time.Timer
	defer func() {
		if timer != nil {
			timer.Stop()
		}
	}()

	for attempt := 1; ; attempt++ {
		if v, ok := evaluate(ctx, c, cond, log, attempt); ok {
			log.Debug("Condition satisfied.", zap.Int("attempt", attempt), zap.Duration("elapsed", time.Since(start)))
			return v, true
		}

		if !time.Now().Before(deadline) {
			log.Debug("Condition timed out.", zap.Int("attempts", attempt), zap.Duration("timeout", opts.Timeout))
			return zero, false
		}

		// The interval is measured from the end of an evaluation.
		if timer == nil {
			timer = time.NewTimer(opts.Interval)
		} else {
			timer.Reset(opts.Interval)
		}
		select {
		case <-ctx.Done():
			log.Debug("Poll cancelled.", zap.Int("attempts", attempt), zap.Error(ctx.Err()))
			return zero, false
		case <-timer.C:
		}
	}
}

// evaluate runs one round of cond, folding errors and panics into "not satisfied".
func evaluate[C, T any](ctx context.Context, c C, cond Condition[C, T], log *zap.Logger, attempt int) (v T, ok bool) {
	defer func() {
		if r := recover(); r != nil {
			log.Debug("Condition panicked; retrying.", zap.Int("attempt", attempt), zap.String("panic", fmt.Sprint(r)))
			var zero T
			v, ok = zero, false
		}
	}()

	v, ok, err := cond(ctx, c)
	if err != nil {
		log.Debug("Condition evaluation failed; retrying.", zap.Int("attempt", attempt), zap.Error(err))
		return v, false
	}
	return v, ok
}

// ForTrue polls like For and reports the outcome as a plain bool. A result
// that is not a bool yields false and is logged separately from a timeout.
// ForTrue never panics.
func ForTrue[C, T any](ctx context.Context, c C, cond Condition[C, T], opts Options) (result bool) {
	opts = opts.normalized()
	log := opts.Logger.With(zap.String("condition", opts.Description))

	defer func() {
		if r := recover(); r != nil {
			log.Debug("Boolean wait failed.", zap.String("panic", fmt.Sprint(r)))
			result = false
		}
	}()

	v, ok := For(ctx, c, cond, opts)
	if !ok {
		return false
	}

	switch b := any(v).(type) {
	case bool:
		return b
	default:
		log.Debug("Unexpected condition result type; treating as false.", zap.String("type", fmt.Sprintf("%T", v)))
		return false
	}
}
