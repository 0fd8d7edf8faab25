package task

import "time"

// Option configures the components of this package.
type Option func(*options)

type options struct {
	now func() time.Time
}

// WithClock replaces time.Now as the source of lifecycle timestamps.
func WithClock(now func() time.Time) Option {
	return func(o *options) {
		o.now = now
	}
}

func buildOptions(opts []Option) options {
	o := options{now: time.Now}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
