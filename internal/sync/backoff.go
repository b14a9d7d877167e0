package sync

import "time"

// maxShift caps the exponent so the shift cannot overflow time.Duration.
const maxShift = 16

// Backoff computes exponential retry delays bounded by [Base, Max].
type Backoff struct {
	Base time.Duration
	Max  time.Duration
}

// Delay returns min(Max, Base * 2^attempts). Delay(0) is the base interval.
func (b Backoff) Delay(attempts int) time.Duration {
	if attempts < 0 {
		attempts = 0
	}
	if attempts > maxShift {
		attempts = maxShift
	}
	delay := b.Base << uint(attempts)
	if delay > b.Max || delay <= 0 {
		delay = b.Max
	}
	return delay
}
