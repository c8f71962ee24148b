package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestSequencer_FIFO(t *testing.T) {
	q := newSequencer()

	r1, err := q.acquire(context.Background())
	require.NoError(t, err)

	order := make(chan int, 3)
	started := make(chan struct{})
	go func() {
		close(started)
		r2, err := q.acquire(context.Background())
		if err != nil {
			return
		}
		order <- 2
		r2()
	}()
	<-started

	select {
	case <-order:
		t.Fatal("second operation ran before the first released")
	case <-time.After(20 * time.Millisecond):
	}

	order <- 1
	r1()
	require.Equal(t, 1, <-order)
	require.Equal(t, 2, <-order)
}

func TestSequencer_CancelledWhileQueued(t *testing.T) {
	q := newSequencer()

	r1, err := q.acquire(context.Background())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errc := make(chan error, 1)
	go func() {
		_, err := q.acquire(ctx)
		errc <- err
	}()
	// let the second ticket be taken before the third
	time.Sleep(10 * time.Millisecond)

	third := make(chan struct{})
	go func() {
		r3, err := q.acquire(context.Background())
		if err == nil {
			close(third)
			r3()
		}
	}()
	time.Sleep(10 * time.Millisecond)

	cancel()
	require.ErrorIs(t, <-errc, context.Canceled)

	select {
	case <-third:
		t.Fatal("third operation ran before the first released")
	case <-time.After(20 * time.Millisecond):
	}

	r1()
	select {
	case <-third:
	case <-time.After(time.Second):
		t.Fatal("third operation never ran")
	}
}
