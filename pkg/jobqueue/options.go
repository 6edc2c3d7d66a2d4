package jobqueue

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// JobOptions is the per-job execution policy given at admission.
// Every field is optional and applied independently; a nil field leaves
// the backend default in effect.
type JobOptions struct {
	Retries    *int
	Backoff    *Backoff
	DelayUntil *time.Time
	Timeout    *time.Duration
}

// Validate reports malformed options. A backoff must carry both its strategy
// and its delay factor.
func (o JobOptions) Validate() error {
	var errs []error
	if o.Retries != nil && *o.Retries < 0 {
		errs = append(errs, fmt.Errorf("%w: retries cannot be negative", ErrInvalidJobOptions))
	}
	if o.Backoff != nil {
		if err := o.Backoff.Validate(); err != nil {
			errs = append(errs, err)
		}
	}
	if o.Timeout != nil && *o.Timeout < 0 {
		errs = append(errs, fmt.Errorf("%w: timeout cannot be negative", ErrInvalidJobOptions))
	}
	return errors.Join(errs...)
}

// WithDefaults returns o with every unset field taken from defaults. A set
// backoff is never mixed with the default one.
func (o JobOptions) WithDefaults(defaults JobOptions) JobOptions {
	if o.Retries == nil {
		o.Retries = defaults.Retries
	}
	if o.Backoff == nil {
		o.Backoff = defaults.Backoff
	}
	if o.DelayUntil == nil {
		o.DelayUntil = defaults.DelayUntil
	}
	if o.Timeout == nil {
		o.Timeout = defaults.Timeout
	}
	return o
}

// JobOption is a functional option for NewJobOptions
type JobOption func(*JobOptions)

// NewJobOptions builds and validates a JobOptions value.
func NewJobOptions(opts ...JobOption) (JobOptions, error) {
	var o JobOptions
	for _, opt := range opts {
		opt(&o)
	}
	if err := o.Validate(); err != nil {
		return JobOptions{}, err
	}
	return o, nil
}

// WithRetries sets how many times a failed job is retried
func WithRetries(n int) JobOption {
	return func(o *JobOptions) {
		o.Retries = &n
	}
}

// WithBackoff sets the retry backoff strategy and its delay factor
func WithBackoff(strategy BackoffStrategy, delayFactor time.Duration) JobOption {
	return func(o *JobOptions) {
		o.Backoff = &Backoff{Strategy: strategy, DelayFactor: delayFactor}
	}
}

// WithDelayUntil keeps the job from being picked up before t
func WithDelayUntil(t time.Time) JobOption {
	return func(o *JobOptions) {
		o.DelayUntil = &t
	}
}

// WithDelay keeps the job from being picked up for d
func WithDelay(d time.Duration) JobOption {
	return func(o *JobOptions) {
		if d > 0 {
			t := time.Now().Add(d)
			o.DelayUntil = &t
		}
	}
}

// WithTimeout bounds the job's execution time
func WithTimeout(d time.Duration) JobOption {
	return func(o *JobOptions) {
		o.Timeout = &d
	}
}

// ParseJobOptions converts a loosely typed options map, as decoded from JSON
// or YAML, into JobOptions.
//
// Recognized keys are retries, backoff {strategy, delayFactor}, delayUntil and
// timeout. Durations are milliseconds, delayUntil is epoch milliseconds or an
// RFC 3339 string. Non-numeric values for retries, delayUntil and timeout are
// ignored, while a fractional or out of range retries is an error. A present
// backoff without both of its fields is an error.
func ParseJobOptions(raw map[string]any) (JobOptions, error) {
	var o JobOptions

	if n, ok := toNumber(raw["retries"]); ok {
		if n != math.Trunc(n) || n < math.MinInt32 || n > math.MaxInt32 {
			return JobOptions{}, fmt.Errorf("%w: retries must be an integer, got %v", ErrInvalidJobOptions, raw["retries"])
		}
		retries := int(n)
		o.Retries = &retries
	}

	if v, ok := raw["backoff"]; ok && v != nil {
		b, err := parseBackoff(v)
		if err != nil {
			return JobOptions{}, err
		}
		o.Backoff = &b
	}

	if t, ok := toTime(raw["delayUntil"]); ok {
		o.DelayUntil = &t
	}

	if n, ok := toNumber(raw["timeout"]); ok {
		d := millis(n)
		o.Timeout = &d
	}

	if err := o.Validate(); err != nil {
		return JobOptions{}, err
	}
	return o, nil
}

func parseBackoff(v any) (Backoff, error) {
	m, ok := v.(map[string]any)
	if !ok {
		return Backoff{}, ErrInvalidBackoff
	}
	strategy, _ := m["strategy"].(string)
	factor, ok := toNumber(m["delayFactor"])
	if strategy == "" || !ok || factor <= 0 {
		return Backoff{}, ErrInvalidBackoff
	}
	return Backoff{Strategy: BackoffStrategy(strategy), DelayFactor: millis(factor)}, nil
}

func millis(n float64) time.Duration {
	return time.Duration(n * float64(time.Millisecond))
}

// toNumber coerces JSON/YAML scalars to a finite number.
func toNumber(v any) (float64, bool) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int32:
		f = float64(n)
	case int64:
		f = float64(n)
	case uint:
		f = float64(n)
	case uint64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, false
	}
	return f, true
}

func toTime(v any) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case *time.Time:
		if t != nil {
			return *t, true
		}
		return time.Time{}, false
	case string:
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
	}
	if n, ok := toNumber(v); ok {
		return time.UnixMilli(int64(n)), true
	}
	return time.Time{}, false
}
