package queue

import (
	"sync"
	"testing"
	"time"
)

// TestBasicOperations tests push and receive in order
func TestBasicOperations(t *testing.T) {
	q := NewMPSC[int]()
	defer q.Close()

	for i := 0; i < 10; i++ {
		v := i
		if !q.Push(&v) {
			t.Fatalf("Failed to push item %d", i)
		}
	}

	for i := 0; i < 10; i++ {
		select {
		case val := <-q.Recv():
			if *val != i {
				t.Errorf("Expected %d, got %d", i, *val)
			}
		case <-time.After(time.Second):
			t.Fatalf("Timeout waiting for item %d", i)
		}
	}

	select {
	case val := <-q.Recv():
		t.Errorf("Queue should be empty, but got %v", *val)
	case <-time.After(10 * time.Millisecond):
	}
}

// TestPushNil verifies nil values are rejected
func TestPushNil(t *testing.T) {
	q := NewMPSC[int]()
	defer q.Close()

	if q.Push(nil) {
		t.Error("Push(nil) should return false")
	}
}

// TestPerProducerOrder verifies that each producer's items arrive in push order
func TestPerProducerOrder(t *testing.T) {
	q := NewMPSC[[2]int]()
	defer q.Close()

	const producers = 8
	const perProducer = 2000

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				item := [2]int{p, i}
				q.Push(&item)
			}
		}(p)
	}

	last := make([]int, producers)
	for i := range last {
		last[i] = -1
	}

	for n := 0; n < producers*perProducer; n++ {
		select {
		case val := <-q.Recv():
			p, i := val[0], val[1]
			if i != last[p]+1 {
				t.Fatalf("producer %d: expected item %d, got %d", p, last[p]+1, i)
			}
			last[p] = i
		case <-time.After(5 * time.Second):
			t.Fatalf("Timeout after %d items", n)
		}
	}

	wg.Wait()
}

// TestCloseDrains verifies queued items are delivered after Close and the channel is closed afterwards
func TestCloseDrains(t *testing.T) {
	q := NewMPSC[int]()

	for i := 0; i < 100; i++ {
		v := i
		q.Push(&v)
	}
	q.Close()

	if q.Push(new(int)) {
		t.Error("Push after Close should return false")
	}
	if !q.IsClosed() {
		t.Error("IsClosed should be true after Close")
	}

	count := 0
	for range q.Recv() {
		count++
	}
	if count != 100 {
		t.Errorf("Expected 100 drained items, got %d", count)
	}

	select {
	case <-q.Drained():
	case <-time.After(time.Second):
		t.Fatal("Drained channel not closed")
	}
}

// TestCloseDuringPush verifies that every accepted item is delivered when
// Close races with producers
func TestCloseDuringPush(t *testing.T) {
	for round := 0; round < 50; round++ {
		q := NewMPSC[int]()

		received := make(chan int)
		go func() {
			count := 0
			for range q.Recv() {
				count++
			}
			received <- count
		}()

		const producers = 8
		var accepted sync.WaitGroup
		counts := make([]int, producers)
		for p := 0; p < producers; p++ {
			accepted.Add(1)
			go func(p int) {
				defer accepted.Done()
				for i := 0; i < 500; i++ {
					v := i
					if !q.Push(&v) {
						return
					}
					counts[p]++
				}
			}(p)
		}

		time.Sleep(time.Duration(round%5) * 100 * time.Microsecond)
		q.Close()
		accepted.Wait()

		want := 0
		for _, c := range counts {
			want += c
		}

		select {
		case got := <-received:
			if got != want {
				t.Fatalf("Round %d: %d items accepted, %d delivered", round, want, got)
			}
		case <-time.After(5 * time.Second):
			t.Fatalf("Round %d: consumer not finished", round)
		}
	}
}

// TestCloseWakesIdleConsumer verifies Close unblocks a consumer waiting on an empty queue
func TestCloseWakesIdleConsumer(t *testing.T) {
	q := NewMPSC[int]()

	done := make(chan struct{})
	go func() {
		for range q.Recv() {
		}
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Consumer was not released by Close")
	}
}

// TestLen verifies the approximate length counter
func TestLen(t *testing.T) {
	q := NewMPSC[int]()
	defer q.Close()

	if q.Len() != 0 {
		t.Errorf("Expected empty queue, got %d", q.Len())
	}

	for i := 0; i < 5; i++ {
		v := i
		q.Push(&v)
	}

	// one item may already sit in the delivery goroutine waiting on the channel
	if l := q.Len(); l < 4 || l > 5 {
		t.Errorf("Expected length 4 or 5, got %d", l)
	}

	for i := 0; i < 5; i++ {
		<-q.Recv()
	}
	if q.Len() != 0 {
		t.Errorf("Expected empty queue after receiving, got %d", q.Len())
	}
}
