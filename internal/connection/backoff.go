package connection

import "time"

// maxShift keeps base<<exp inside int64.
const maxShift = 62

// Policy maps a retry attempt to a delay: base * 2^min(attempt, CapExponent),
// clamped to [Base, Max]. It is pure; jitter is applied by the caller.
type Policy struct {
	Base        time.Duration
	Max         time.Duration
	CapExponent uint32
}

// DefaultPolicy returns the default backoff policy (300ms doubling, capped at 2^6).
func DefaultPolicy() Policy {
	return Policy{
		Base:        DefaultBackoffBase,
		Max:         DefaultBackoffMax,
		CapExponent: DefaultBackoffCapExponent,
	}
}

// Delay returns the wait before retry number attempt (0-based).
func (p Policy) Delay(attempt uint32) time.Duration {
	exp := attempt
	if exp > p.CapExponent {
		exp = p.CapExponent
	}

	var d time.Duration
	if exp > maxShift || p.Base > p.Max>>exp {
		d = p.Max
	} else {
		d = p.Base << exp
	}

	if d > p.Max {
		d = p.Max
	}
	if d < p.Base {
		d = p.Base
	}
	return d
}

// Jittered adds up to jitter*d of extra delay. r must be in [0, 1).
func Jittered(d time.Duration, jitter, r float64) time.Duration {
	if jitter <= 0 {
		return d
	}
	return d + time.Duration(float64(d)*jitter*r)
}

// saturatingInc increments n without wrapping.
func saturatingInc(n uint32) uint32 {
	if n == ^uint32(0) {
		return n
	}
	return n + 1
}
