package server

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDispatcherSerializesJobs(t *testing.T) {
	d := newDispatcher(nil)
	defer d.Close()

	const producers = 16
	const jobs = 200

	// not synchronized: only safe if every job runs on the one worker
	counter := 0
	var running atomic.Int32

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < jobs; i++ {
				err := d.Do(func() error {
					if running.Add(1) != 1 {
						return errors.New("two jobs ran at once")
					}
					counter++
					running.Add(-1)
					return nil
				}, nil)
				assert.NoError(t, err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, producers*jobs, counter)
}

func TestDispatcherKeepsSubmissionOrder(t *testing.T) {
	d := newDispatcher(nil)
	defer d.Close()

	var order []int
	for i := 0; i < 100; i++ {
		i := i
		require.NoError(t, d.Do(func() error {
			order = append(order, i)
			return nil
		}, nil))
	}

	for i, v := range order {
		assert.Equal(t, i, v)
	}
}

func TestDispatcherReturnsJobError(t *testing.T) {
	d := newDispatcher(nil)
	defer d.Close()

	want := errors.New("boom")
	assert.Equal(t, want, d.Do(func() error { return want }, nil))
}

func TestDispatcherRecoversPanics(t *testing.T) {
	var recovered atomic.Value
	d := newDispatcher(func(r any) { recovered.Store(r) })
	defer d.Close()

	fallbackRan := false
	err := d.Do(
		func() error { panic("handler bug") },
		func() error {
			fallbackRan = true
			return nil
		},
	)
	assert.NoError(t, err)
	assert.True(t, fallbackRan)
	assert.Equal(t, "handler bug", recovered.Load())

	t.Run("without fallback", func(t *testing.T) {
		err := d.Do(func() error { panic("again") }, nil)
		assert.ErrorIs(t, err, errJobPanicked)
	})

	t.Run("panicking fallback", func(t *testing.T) {
		err := d.Do(func() error { panic("first") }, func() error { panic("second") })
		assert.ErrorIs(t, err, errJobPanicked)
	})

	t.Run("worker survives", func(t *testing.T) {
		ran := false
		require.NoError(t, d.Do(func() error {
			ran = true
			return nil
		}, nil))
		assert.True(t, ran)
	})
}

func TestDispatcherCloseDrainsQueue(t *testing.T) {
	d := newDispatcher(nil)

	// block the worker so that the following jobs queue up
	release := make(chan struct{})
	started := make(chan struct{})
	go d.Do(func() error {
		close(started)
		<-release
		return nil
	}, nil)
	<-started

	const queued = 10
	var done atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < queued; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, d.Do(func() error {
				done.Add(1)
				return nil
			}, nil))
		}()
	}

	// one job is held by the queue's delivery goroutine
	require.Eventually(t, func() bool { return d.Len() == queued-1 }, 5*time.Second, time.Millisecond)

	closed := make(chan struct{})
	go func() {
		d.Close()
		close(closed)
	}()
	close(release)

	select {
	case <-closed:
	case <-time.After(5 * time.Second):
		t.Fatal("Close did not return")
	}
	wg.Wait()
	assert.Equal(t, int32(queued), done.Load(), "queued jobs run before the worker stops")

	assert.ErrorIs(t, d.Do(func() error { return nil }, nil), ErrDispatcherClosed)
}
