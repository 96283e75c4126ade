package lifecycle

import (
	"sort"
	"sync"
)

// Listener receives environment notifications.
//
// Calls are made synchronously from the goroutine that raised the signal.
// Implementations must not call back into the Environment.
type Listener interface {
	// VisibilityChanged reports a foreground (true) or background (false) transition.
	VisibilityChanged(visible bool)

	// ShutdownRequested reports that the process is about to exit.
	// Listeners should release resources before returning.
	ShutdownRequested()
}

// Environment delivers visibility and shutdown signals to listeners.
type Environment interface {
	// Register adds a listener. The returned func removes it and is safe
	// to call more than once.
	Register(l Listener) (unregister func())

	// Visible returns the current visibility.
	Visible() bool
}

// Manual is an Environment whose signals are raised by method calls.
type Manual struct {
	mu        sync.Mutex
	visible   bool
	listeners map[int]Listener
	nextID    int

	shutdownOnce sync.Once
	done         chan struct{}
}

// NewManual creates a Manual environment that starts visible.
func NewManual() *Manual {
	return &Manual{
		visible:   true,
		listeners: make(map[int]Listener),
		done:      make(chan struct{}),
	}
}

// Register adds a listener.
func (m *Manual) Register(l Listener) func() {
	m.mu.Lock()
	id := m.nextID
	m.nextID++
	m.listeners[id] = l
	m.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			m.mu.Lock()
			delete(m.listeners, id)
			m.mu.Unlock()
		})
	}
}

// Visible returns the current visibility.
func (m *Manual) Visible() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.visible
}

// SetVisible changes visibility and notifies listeners.
// Setting the current value again is a no-op.
func (m *Manual) SetVisible(visible bool) {
	m.mu.Lock()
	if m.visible == visible {
		m.mu.Unlock()
		return
	}
	m.visible = visible
	listeners := m.snapshot()
	m.mu.Unlock()

	for _, l := range listeners {
		l.VisibilityChanged(visible)
	}
}

// Shutdown notifies listeners that the process is exiting and closes Done.
// Only the first call has any effect.
func (m *Manual) Shutdown() {
	m.shutdownOnce.Do(func() {
		m.mu.Lock()
		listeners := m.snapshot()
		m.mu.Unlock()

		for _, l := range listeners {
			l.ShutdownRequested()
		}
		close(m.done)
	})
}

// Done is closed once every listener has handled the shutdown signal.
func (m *Manual) Done() <-chan struct{} {
	return m.done
}

// Listeners returns the number of registered listeners.
func (m *Manual) Listeners() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.listeners)
}

// snapshot returns listeners in registration order. Must be called with lock held.
func (m *Manual) snapshot() []Listener {
	ids := make([]int, 0, len(m.listeners))
	for id := range m.listeners {
		ids = append(ids, id)
	}
	sort.Ints(ids)

	out := make([]Listener, 0, len(ids))
	for _, id := range ids {
		out = append(out, m.listeners[id])
	}
	return out
}
