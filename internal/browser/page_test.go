package browser

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadCounterWaitsForNewerLoad(t *testing.T) {
	c := newLoadCounter()
	c.fire()
	seen := c.count()

	// the load that already happened does not satisfy the wait
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, c.wait(ctx, seen), context.DeadlineExceeded)

	done := make(chan error, 1)
	go func() { done <- c.wait(context.Background(), seen) }()

	select {
	case <-done:
		t.Fatal("wait returned before the next load")
	case <-time.After(20 * time.Millisecond):
	}

	c.fire()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("wait did not return after the load")
	}
	assert.Equal(t, seen+1, c.count())
}

func TestLoadCounterEarlierLoadCounts(t *testing.T) {
	c := newLoadCounter()
	before := c.count()
	c.fire()
	assert.NoError(t, c.wait(context.Background(), before))
}

func TestBoundedActionContext(t *testing.T) {
	p := &Page{ActionTimeout: 20 * time.Millisecond}
	ctx, cancel := p.bounded(context.Background())
	defer cancel()
	_, ok := ctx.Deadline()
	assert.True(t, ok)

	select {
	case <-ctx.Done():
		assert.ErrorIs(t, ctx.Err(), context.DeadlineExceeded)
	case <-time.After(2 * time.Second):
		t.Fatal("action context never expired")
	}

	p = &Page{ActionTimeout: -1}
	ctx, cancel = p.bounded(context.Background())
	defer cancel()
	_, ok = ctx.Deadline()
	assert.False(t, ok)
}
