package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct{ t time.Time }

func (c *clock) Now() time.Time          { return c.t }
func (c *clock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func counter(vals ...string) (LoadFunc[string], *int) {
	n := 0
	return func(context.Context) (string, error) {
		v := vals[min(n, len(vals)-1)]
		n++
		return v, nil
	}, &n
}

func TestGet_HitsWithinTTL(t *testing.T) {
	clk := &clock{t: time.Date(2025, 10, 5, 12, 0, 0, 0, time.UTC)}
	c := New[string](60*time.Second, WithClock[string](clk.Now))
	load, calls := counter("v1", "v2")
	ctx := context.Background()

	v, until, err := c.Get(ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "v1", v)
	assert.Equal(t, clk.t.Add(60*time.Second), until)

	clk.Advance(59 * time.Second)
	v, _, err = c.Get(ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "v1", v, "stale tolerated inside the window")
	assert.Equal(t, 1, *calls)

	clk.Advance(time.Second)
	v, _, err = c.Get(ctx, "k", load)
	require.NoError(t, err)
	assert.Equal(t, "v2", v)
	assert.Equal(t, 2, *calls)
}

func TestInvalidate_ForcesReload(t *testing.T) {
	clk := &clock{t: time.Unix(0, 0)}
	c := New[string](time.Minute, WithClock[string](clk.Now))
	load, calls := counter("a", "b", "c")
	ctx := context.Background()

	_, _, _ = c.Get(ctx, "k", load)
	c.Invalidate("k")
	v, _, _ := c.Get(ctx, "k", load)
	assert.Equal(t, "b", v)

	c.InvalidateAll()
	v, _, _ = c.Get(ctx, "k", load)
	assert.Equal(t, "c", v)
	assert.Equal(t, 3, *calls)
}

func TestGet_KeysAreIndependent(t *testing.T) {
	c := New[string](time.Minute)
	ctx := context.Background()
	la, _ := counter("a")
	lb, _ := counter("b")

	va, _, _ := c.Get(ctx, "x", la)
	vb, _, _ := c.Get(ctx, "y", lb)
	assert.Equal(t, "a", va)
	assert.Equal(t, "b", vb)

	c.Invalidate("x")
	vb, _, _ = c.Get(ctx, "y", la)
	assert.Equal(t, "b", vb)
}

func TestGet_ErrorsAreNotCached(t *testing.T) {
	c := New[int](time.Minute)
	boom := errors.New("boom")
	fail := true
	load := func(context.Context) (int, error) {
		if fail {
			return 0, boom
		}
		return 7, nil
	}

	_, _, err := c.Get(context.Background(), "k", load)
	assert.ErrorIs(t, err, boom)

	fail = false
	v, _, err := c.Get(context.Background(), "k", load)
	require.NoError(t, err)
	assert.Equal(t, 7, v)
}

func TestInvalidate_DuringLoadDropsResult(t *testing.T) {
	c := New[string](time.Minute)
	ctx := context.Background()
	started := make(chan struct{})
	release := make(chan struct{})

	done := make(chan string)
	go func() {
		v, _, _ := c.Get(ctx, "k", func(context.Context) (string, error) {
			close(started)
			<-release
			return "old", nil
		})
		done <- v
	}()

	<-started
	c.Invalidate("k")
	close(release)
	assert.Equal(t, "old", <-done, "the caller that started the load still gets it")

	fresh, calls := counter("new")
	v, _, err := c.Get(ctx, "k", fresh)
	require.NoError(t, err)
	assert.Equal(t, "new", v)
	assert.Equal(t, 1, *calls)
}
