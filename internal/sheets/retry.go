package sheets

import (
	"context"
	"fmt"
	"time"

	"basket-booking/internal/logging"
)

// RetryPolicy controls Retrying. A failed call is retried at most
// MaxRetries times; the wait before retry n (0-based) is BaseDelay * 2^n.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	Retryable  func(error) bool
	Sleep      func(ctx context.Context, d time.Duration) error
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		MaxRetries: 5,
		BaseDelay:  1500 * time.Millisecond,
		Retryable:  IsTransient,
		Sleep:      SleepContext,
	}
}

// SleepContext waits for d or until ctx is done.
func SleepContext(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// Retrying decorates a Table with bounded exponential backoff.
type Retrying struct {
	next   Table
	policy RetryPolicy
}

var _ Table = (*Retrying)(nil)

// WithRetry wraps next. A zero BaseDelay or nil func falls back to
// DefaultRetryPolicy; MaxRetries is taken as given.
func WithRetry(next Table, p RetryPolicy) *Retrying {
	def := DefaultRetryPolicy()
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.BaseDelay <= 0 {
		p.BaseDelay = def.BaseDelay
	}
	if p.Retryable == nil {
		p.Retryable = def.Retryable
	}
	if p.Sleep == nil {
		p.Sleep = def.Sleep
	}
	return &Retrying{next: next, policy: p}
}

// Delay is the wait before retry n (0-based).
func (r *Retrying) Delay(n int) time.Duration {
	return r.policy.BaseDelay << n
}

func (r *Retrying) do(ctx context.Context, op, sheet string, fn func() error) error {
	var err error
	for attempt := 0; ; attempt++ {
		if err = fn(); err == nil {
			return nil
		}
		if !r.policy.Retryable(err) {
			return err
		}
		if attempt >= r.policy.MaxRetries {
			break
		}
		d := r.Delay(attempt)
		logging.FromContext(ctx).Warn("sheets call failed, retrying",
			"op", op, "sheet", sheet, "attempt", attempt+1, "delay", d, "err", err)
		if serr := r.policy.Sleep(ctx, d); serr != nil {
			return fmt.Errorf("%s %s: %w", op, sheet, serr)
		}
	}
	return fmt.Errorf("%s %s: %w after %d attempts: %w", op, sheet, ErrRetriesExhausted, r.policy.MaxRetries+1, err)
}

func (r *Retrying) ReadAll(ctx context.Context, sheet string) ([][]string, error) {
	var rows [][]string
	err := r.do(ctx, "read", sheet, func() error {
		var err error
		rows, err = r.next.ReadAll(ctx, sheet)
		return err
	})
	return rows, err
}

func (r *Retrying) AppendRow(ctx context.Context, sheet string, values []string) error {
	return r.do(ctx, "append", sheet, func() error {
		return r.next.AppendRow(ctx, sheet, values)
	})
}

func (r *Retrying) UpdateRow(ctx context.Context, sheet string, row int, values []string) error {
	return r.do(ctx, "update", sheet, func() error {
		return r.next.UpdateRow(ctx, sheet, row, values)
	})
}

func (r *Retrying) UpdateCell(ctx context.Context, sheet, a1, value string) error {
	return r.do(ctx, "update", sheet, func() error {
		return r.next.UpdateCell(ctx, sheet, a1, value)
	})
}

// DeleteRow is not retried. A delete that landed before the error would
// remove the next row on a second try, since rows shift up.
func (r *Retrying) DeleteRow(ctx context.Context, sheet string, row int) error {
	if err := r.next.DeleteRow(ctx, sheet, row); err != nil {
		return fmt.Errorf("delete %s row %d: %w", sheet, row, err)
	}
	return nil
}

func (r *Retrying) EnsureSheet(ctx context.Context, sheet string, headers []string) error {
	return r.do(ctx, "ensure", sheet, func() error {
		return r.next.EnsureSheet(ctx, sheet, headers)
	})
}
