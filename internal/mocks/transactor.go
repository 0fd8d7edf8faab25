package mocks

import (
	"context"

	"github.com/phrazzld/taskforge/internal/store"
)

// Transactor wraps a store.Transactor and lets tests rewrite the stores
// handed to each transaction.
type Transactor struct {
	// Inner runs the transaction
	Inner store.Transactor

	// WrapFn, if set, replaces the stores passed to fn
	WrapFn func(s store.Stores) store.Stores

	// AfterFn, if set, runs once the transaction has committed or rolled
	// back, with its result
	AfterFn func(ctx context.Context, err error)
}

// Within implements store.Transactor
func (t *Transactor) Within(ctx context.Context, fn func(ctx context.Context, s store.Stores) error) error {
	err := t.Inner.Within(ctx, func(ctx context.Context, s store.Stores) error {
		if t.WrapFn != nil {
			s = t.WrapFn(s)
		}
		return fn(ctx, s)
	})
	if t.AfterFn != nil {
		t.AfterFn(ctx, err)
	}
	return err
}

// Ensure Transactor implements store.Transactor interface
var _ store.Transactor = (*Transactor)(nil)
