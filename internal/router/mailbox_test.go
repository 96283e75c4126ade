package router

import (
	"sync"
	"testing"
	"time"
)

func TestMailbox_PutTake(t *testing.T) {
	b := newMailbox[int](4)

	for i := 0; i < 10; i++ {
		if !b.Put(i) {
			t.Fatalf("Put(%d) returned false", i)
		}
	}

	got, ok := b.Take(3)
	if !ok || len(got) != 3 {
		t.Fatalf("Take(3) = %v, %v, want 3 items", got, ok)
	}
	for i, v := range got {
		if v != i {
			t.Errorf("item %d = %d, want %d", i, v, i)
		}
	}

	rest, ok := b.Take(0)
	if !ok || len(rest) != 7 {
		t.Fatalf("Take(0) = %v, %v, want 7 items", rest, ok)
	}
	if rest[0] != 3 || rest[6] != 9 {
		t.Errorf("rest = %v, want 3..9", rest)
	}

	stats := b.Stats()
	if stats.Pending != 0 {
		t.Errorf("Pending = %d, want 0", stats.Pending)
	}
	if stats.HighWater != 10 {
		t.Errorf("HighWater = %d, want 10", stats.HighWater)
	}
	if stats.Received != 10 || stats.Delivered != 10 {
		t.Errorf("Received/Delivered = %d/%d, want 10/10", stats.Received, stats.Delivered)
	}
}

func TestMailbox_CompactsConsumedPrefix(t *testing.T) {
	b := newMailbox[int](4)

	next := 0
	for round := 0; round < 50; round++ {
		for i := 0; i < 3; i++ {
			b.Put(round*3 + i)
		}
		got, _ := b.Take(2)
		for _, v := range got {
			if v != next {
				t.Fatalf("got %d, want %d", v, next)
			}
			next++
		}
	}

	rest, _ := b.Take(0)
	for _, v := range rest {
		if v != next {
			t.Fatalf("got %d, want %d", v, next)
		}
		next++
	}
	if next != 150 {
		t.Errorf("drained %d items, want 150", next)
	}
}

func TestMailbox_TakeBlocks(t *testing.T) {
	b := newMailbox[string](1)
	got := make(chan []string, 1)

	go func() {
		items, _ := b.Take(0)
		got <- items
	}()

	select {
	case <-got:
		t.Fatal("Take returned before Put")
	case <-time.After(20 * time.Millisecond):
	}

	b.Put("x")

	select {
	case items := <-got:
		if len(items) != 1 || items[0] != "x" {
			t.Errorf("items = %v, want [x]", items)
		}
	case <-time.After(time.Second):
		t.Fatal("Take did not wake up")
	}
}

func TestMailbox_Close(t *testing.T) {
	b := newMailbox[int](2)
	b.Put(1)
	b.Close()

	if b.Put(2) {
		t.Error("Put after Close returned true")
	}

	items, ok := b.Take(0)
	if !ok || len(items) != 1 {
		t.Errorf("Take after Close = %v, %v, want remaining item", items, ok)
	}

	if _, ok := b.Take(0); ok {
		t.Error("Take on drained closed mailbox returned true")
	}
}

func TestMailbox_CloseUnblocksTake(t *testing.T) {
	b := newMailbox[int](1)
	done := make(chan bool, 1)

	go func() {
		_, ok := b.Take(0)
		done <- ok
	}()

	time.Sleep(10 * time.Millisecond)
	b.Close()

	select {
	case ok := <-done:
		if ok {
			t.Error("Take returned true after Close")
		}
	case <-time.After(time.Second):
		t.Fatal("Close did not unblock Take")
	}
}

func TestMailbox_Concurrent(t *testing.T) {
	b := newMailbox[int](8)

	const producers, perProducer = 4, 1000
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				b.Put(p*perProducer + i)
			}
		}(p)
	}

	total := make(chan int)
	go func() {
		n := 0
		for {
			items, ok := b.Take(64)
			if !ok {
				total <- n
				return
			}
			n += len(items)
		}
	}()

	wg.Wait()
	b.Close()

	if n := <-total; n != producers*perProducer {
		t.Errorf("received %d, want %d", n, producers*perProducer)
	}
}
