package connection

import "time"

// timerHandle is a cancellable one-shot timer owned by the event loop.
//
// Each arm gets a new id, and the fire callback receives it. A tick that
// races with disarm is recognised as stale because its id no longer
// matches, so cancellation is exact even when the timer already fired.
type timerHandle struct {
	id    uint64
	timer *time.Timer
	fire  func(id uint64)
}

func newTimerHandle(fire func(id uint64)) *timerHandle {
	return &timerHandle{fire: fire}
}

// arm cancels any pending timer and schedules a new one.
func (h *timerHandle) arm(d time.Duration) {
	h.disarm()
	id := h.id
	h.timer = time.AfterFunc(d, func() { h.fire(id) })
}

// disarm cancels the pending timer, if any, and invalidates its id.
func (h *timerHandle) disarm() {
	if h.timer != nil {
		h.timer.Stop()
		h.timer = nil
	}
	h.id++
}

// armed reports whether a timer is pending.
func (h *timerHandle) armed() bool {
	return h.timer != nil
}

// owns reports whether id belongs to the pending timer.
func (h *timerHandle) owns(id uint64) bool {
	return h.timer != nil && id == h.id
}

// heartbeat fires every interval while armed. The owner must call tick
// after handling each fire to schedule the next one.
type heartbeat struct {
	interval time.Duration
	handle   *timerHandle
}

func newHeartbeat(interval time.Duration, fire func(id uint64)) *heartbeat {
	return &heartbeat{
		interval: interval,
		handle:   newTimerHandle(fire),
	}
}

// arm starts the heartbeat. Any previous schedule is cancelled.
func (hb *heartbeat) arm() {
	hb.handle.arm(hb.interval)
}

// tick schedules the next fire if id is the current one.
func (hb *heartbeat) tick(id uint64) bool {
	if !hb.handle.owns(id) {
		return false
	}
	hb.handle.arm(hb.interval)
	return true
}

func (hb *heartbeat) disarm() {
	hb.handle.disarm()
}

func (hb *heartbeat) armed() bool {
	return hb.handle.armed()
}
