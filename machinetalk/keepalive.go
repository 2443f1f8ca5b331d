package machinetalk

import "time"

// keepaliveTimer is a one-shot timer that, on expiry, delivers on the
// channel returned by c() rather than mutating any state itself. Per the
// "timer-driven state machine" design note, every state transition caused
// by expiry happens back on the I/O worker goroutine that receives from
// c(), so it is always guarded by the same locks the worker already holds.
type keepaliveTimer struct {
	timer *time.Timer
	fired chan struct{}
}

func newKeepaliveTimer() *keepaliveTimer {
	t := time.NewTimer(time.Hour)
	t.Stop()
	return &keepaliveTimer{timer: t, fired: make(chan struct{}, 1)}
}

// arm (re)starts the timer for d. Safe to call from the worker goroutine
// only.
func (k *keepaliveTimer) arm(d time.Duration) {
	k.timer.Stop()
	select {
	case <-k.timer.C:
	default:
	}
	k.timer.Reset(d)
}

func (k *keepaliveTimer) stop() {
	k.timer.Stop()
	select {
	case <-k.timer.C:
	default:
	}
}

func (k *keepaliveTimer) c() <-chan time.Time {
	return k.timer.C
}
