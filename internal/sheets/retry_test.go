package sheets

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/googleapi"
)

// fakeSleep records requested delays instead of waiting.
type fakeSleep struct {
	delays []time.Duration
}

func (f *fakeSleep) Sleep(ctx context.Context, d time.Duration) error {
	f.delays = append(f.delays, d)
	return ctx.Err()
}

func apiErr(code int) error {
	return &googleapi.Error{Code: code, Message: http.StatusText(code)}
}

func newRetrying(mem *MemTable, retries int) (*Retrying, *fakeSleep) {
	fs := &fakeSleep{}
	r := WithRetry(mem, RetryPolicy{
		MaxRetries: retries,
		BaseDelay:  1500 * time.Millisecond,
		Sleep:      fs.Sleep,
	})
	return r, fs
}

func TestRetrying_TransientThenSuccess(t *testing.T) {
	mem := NewMemTable()
	mem.Seed("s", []string{"a"})
	mem.FailWith("append", apiErr(429), apiErr(503))

	r, fs := newRetrying(mem, 5)
	require.NoError(t, r.AppendRow(context.Background(), "s", []string{"x"}))

	assert.Equal(t, 3, mem.Calls("append"))
	assert.Equal(t, []time.Duration{1500 * time.Millisecond, 3 * time.Second}, fs.delays)
	assert.Len(t, mem.Rows("s"), 2)
}

func TestRetrying_BackoffScheduleAndExhaustion(t *testing.T) {
	mem := NewMemTable()
	mem.Seed("s", []string{"a"})
	for i := 0; i < 10; i++ {
		mem.FailWith("append", apiErr(500))
	}

	r, fs := newRetrying(mem, 5)
	err := r.AppendRow(context.Background(), "s", []string{"x"})

	require.Error(t, err)
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	var gerr *googleapi.Error
	assert.True(t, errors.As(err, &gerr), "last error stays inspectable")
	assert.Equal(t, 6, mem.Calls("append"))
	assert.Equal(t, []time.Duration{
		1500 * time.Millisecond,
		3 * time.Second,
		6 * time.Second,
		12 * time.Second,
		24 * time.Second,
	}, fs.delays)
	assert.Len(t, mem.Rows("s"), 1, "nothing written")
}

func TestRetrying_PermanentErrorNotRetried(t *testing.T) {
	for _, code := range []int{401, 403, 404} {
		mem := NewMemTable()
		mem.Seed("s", []string{"a"})
		mem.FailWith("update", apiErr(code))

		r, fs := newRetrying(mem, 5)
		err := r.UpdateCell(context.Background(), "s", "A1", "b")

		require.Error(t, err)
		assert.NotErrorIs(t, err, ErrRetriesExhausted)
		assert.True(t, IsConfig(err), "code %d", code)
		assert.Equal(t, 1, mem.Calls("update"))
		assert.Empty(t, fs.delays)
	}
}

func TestRetrying_ReadsAreRetried(t *testing.T) {
	mem := NewMemTable()
	mem.Seed("s", []string{"a"}, []string{"1"})
	mem.FailWith("read", apiErr(429))

	r, _ := newRetrying(mem, 5)
	rows, err := r.ReadAll(context.Background(), "s")
	require.NoError(t, err)
	assert.Len(t, rows, 2)
}

func TestRetrying_ContextCancelStopsWaiting(t *testing.T) {
	mem := NewMemTable()
	mem.Seed("s", []string{"a"})
	mem.FailWith("update", apiErr(503), apiErr(503))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	r, fs := newRetrying(mem, 5)
	err := r.UpdateRow(ctx, "s", 1, []string{"b"})

	assert.ErrorIs(t, err, context.Canceled)
	assert.Len(t, fs.delays, 1)
	assert.Equal(t, 1, mem.Calls("update"))
}

func TestRetrying_DeleteRowIsNotRetried(t *testing.T) {
	mem := NewMemTable()
	mem.Seed("s", []string{"h"}, []string{"a"}, []string{"b"})
	mem.FailWith("delete", apiErr(503))

	r, fs := newRetrying(mem, 5)
	err := r.DeleteRow(context.Background(), "s", 2)

	require.Error(t, err)
	assert.True(t, IsTransient(err))
	assert.Empty(t, fs.delays)
	assert.Equal(t, 1, mem.Calls("delete"))
	assert.Equal(t, [][]string{{"h"}, {"a"}, {"b"}}, mem.Rows("s"), "neighbouring rows untouched")
}

func TestRetrying_ZeroRetries(t *testing.T) {
	mem := NewMemTable()
	mem.Seed("s", []string{"a"})
	mem.FailWith("append", apiErr(503))

	r, fs := newRetrying(mem, 0)
	err := r.AppendRow(context.Background(), "s", []string{"x"})
	assert.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Empty(t, fs.delays)
}

func TestSleepContext(t *testing.T) {
	assert.NoError(t, SleepContext(context.Background(), time.Millisecond))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, SleepContext(ctx, time.Hour), context.Canceled)
}

func TestIsTransient(t *testing.T) {
	assert.True(t, IsTransient(apiErr(429)))
	assert.True(t, IsTransient(apiErr(502)))
	assert.False(t, IsTransient(apiErr(400)))
	assert.False(t, IsTransient(apiErr(403)))
	assert.False(t, IsTransient(errors.New("boom")))
	assert.False(t, IsTransient(nil))
}
