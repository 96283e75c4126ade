package connection

import (
	"sync"
	"testing"
	"time"
)

func TestQueue_BasicSendReceive(t *testing.T) {
	q := newQueue[int](10)

	for i := 0; i < 5; i++ {
		if !q.Send(i) {
			t.Fatalf("Send(%d) returned false", i)
		}
	}

	if q.Len() != 5 {
		t.Errorf("Len() = %d, want 5", q.Len())
	}

	for i := 0; i < 5; i++ {
		val, ok := q.Receive()
		if !ok {
			t.Fatalf("Receive() returned false for item %d", i)
		}
		if val != i {
			t.Errorf("received %d, want %d", val, i)
		}
	}

	if q.Len() != 0 {
		t.Errorf("Len() = %d, want 0", q.Len())
	}
}

func TestQueue_GrowsPastHint(t *testing.T) {
	q := newQueue[int](4)

	// Drain to empty, then queue far more than the hint.
	q.Send(0)
	q.Send(1)
	q.Receive()
	q.Receive()

	for i := 0; i < 50; i++ {
		q.Send(i)
	}
	for i := 0; i < 50; i++ {
		val, ok := q.Receive()
		if !ok || val != i {
			t.Fatalf("Receive() = %d, %v, want %d, true", val, ok, i)
		}
	}
}

func TestQueue_CloseDrains(t *testing.T) {
	q := newQueue[int](4)
	q.Send(1)
	q.Send(2)
	q.Close()

	if q.Send(3) {
		t.Error("Send after Close returned true")
	}

	for _, want := range []int{1, 2} {
		val, ok := q.Receive()
		if !ok || val != want {
			t.Errorf("Receive() = %d, %v, want %d, true", val, ok, want)
		}
	}

	if _, ok := q.Receive(); ok {
		t.Error("Receive on drained closed queue returned true")
	}
}

func TestQueue_ReceiveBlocksUntilSend(t *testing.T) {
	q := newQueue[string](1)
	got := make(chan string, 1)

	go func() {
		v, _ := q.Receive()
		got <- v
	}()

	select {
	case <-got:
		t.Fatal("Receive returned before Send")
	case <-time.After(20 * time.Millisecond):
	}

	q.Send("x")

	select {
	case v := <-got:
		if v != "x" {
			t.Errorf("received %q, want x", v)
		}
	case <-time.After(time.Second):
		t.Fatal("Receive did not wake up")
	}
}

func TestQueue_CloseWakesReceiver(t *testing.T) {
	q := newQueue[int](1)
	done := make(chan bool, 1)

	go func() {
		_, ok := q.Receive()
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Receive returned true after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not wake receiver")
	}
}

func TestQueue_ConcurrentSenders(t *testing.T) {
	q := newQueue[int](2)

	const senders, perSender = 8, 500
	var wg sync.WaitGroup
	for s := 0; s < senders; s++ {
		wg.Add(1)
		go func(s int) {
			defer wg.Done()
			for i := 0; i < perSender; i++ {
				q.Send(s*perSender + i)
			}
		}(s)
	}
	wg.Wait()

	if q.Len() != senders*perSender {
		t.Fatalf("Len() = %d, want %d", q.Len(), senders*perSender)
	}

	// Per-sender order is preserved.
	last := make([]int, senders)
	for i := range last {
		last[i] = -1
	}
	for i := 0; i < senders*perSender; i++ {
		v, _ := q.Receive()
		s, n := v/perSender, v%perSender
		if n <= last[s] {
			t.Fatalf("sender %d: %d after %d", s, n, last[s])
		}
		last[s] = n
	}
}
