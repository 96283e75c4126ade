package lifecycle

import (
	"sync"
	"testing"
	"time"
)

type recordingListener struct {
	mu         sync.Mutex
	visibility []bool
	shutdowns  int
}

func (l *recordingListener) VisibilityChanged(visible bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.visibility = append(l.visibility, visible)
}

func (l *recordingListener) ShutdownRequested() {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.shutdowns++
}

func (l *recordingListener) snapshot() ([]bool, int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]bool(nil), l.visibility...), l.shutdowns
}

func TestManual_SetVisible(t *testing.T) {
	env := NewManual()
	l := &recordingListener{}
	env.Register(l)

	if !env.Visible() {
		t.Fatal("expected new environment to be visible")
	}

	env.SetVisible(true) // unchanged, no notification
	env.SetVisible(false)
	env.SetVisible(false)
	env.SetVisible(true)

	got, _ := l.snapshot()
	want := []bool{false, true}
	if len(got) != len(want) {
		t.Fatalf("notifications = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("notification %d = %v, want %v", i, got[i], want[i])
		}
	}
}

func TestManual_Unregister(t *testing.T) {
	env := NewManual()
	l := &recordingListener{}
	unregister := env.Register(l)

	if env.Listeners() != 1 {
		t.Fatalf("Listeners() = %d, want 1", env.Listeners())
	}

	unregister()
	unregister() // safe to call twice

	if env.Listeners() != 0 {
		t.Errorf("Listeners() = %d, want 0", env.Listeners())
	}

	env.SetVisible(false)
	env.Shutdown()

	vis, shutdowns := l.snapshot()
	if len(vis) != 0 || shutdowns != 0 {
		t.Errorf("unregistered listener notified: visibility=%v shutdowns=%d", vis, shutdowns)
	}
}

func TestManual_ShutdownOnce(t *testing.T) {
	env := NewManual()
	a := &recordingListener{}
	b := &recordingListener{}
	env.Register(a)
	env.Register(b)

	select {
	case <-env.Done():
		t.Fatal("Done closed before Shutdown")
	default:
	}

	env.Shutdown()
	env.Shutdown()

	select {
	case <-env.Done():
	case <-time.After(time.Second):
		t.Fatal("Done not closed after Shutdown")
	}

	for name, l := range map[string]*recordingListener{"a": a, "b": b} {
		if _, n := l.snapshot(); n != 1 {
			t.Errorf("listener %s shutdowns = %d, want 1", name, n)
		}
	}
}

func TestManual_RegistrationOrder(t *testing.T) {
	env := NewManual()

	var mu sync.Mutex
	var order []int
	for i := 0; i < 5; i++ {
		id := i
		env.Register(listenerFunc(func() {
			mu.Lock()
			order = append(order, id)
			mu.Unlock()
		}))
	}

	env.SetVisible(false)

	for i, id := range order {
		if id != i {
			t.Fatalf("order = %v, want ascending", order)
		}
	}
}

type listenerFunc func()

func (f listenerFunc) VisibilityChanged(bool) { f() }
func (f listenerFunc) ShutdownRequested()     { f() }
