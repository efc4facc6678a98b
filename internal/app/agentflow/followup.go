package agentflow

import (
	"sync"
	"time"
)

// followUpTimer fires once after a delay unless stopped or re-armed first.
type followUpTimer struct {
	mu    sync.Mutex
	delay time.Duration
	fire  func()
	timer *time.Timer
	gen   uint64
}

func newFollowUpTimer(delay time.Duration, fire func()) *followUpTimer {
	return &followUpTimer{delay: delay, fire: fire}
}

// Arm replaces any pending timer.
func (f *followUpTimer) Arm() {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.stopLocked()
	if f.delay <= 0 || f.fire == nil {
		return
	}
	gen := f.gen
	f.timer = time.AfterFunc(f.delay, func() {
		f.mu.Lock()
		if gen != f.gen {
			f.mu.Unlock()
			return
		}
		f.timer = nil
		f.mu.Unlock()
		f.fire()
	})
}

func (f *followUpTimer) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.stopLocked()
}

func (f *followUpTimer) stopLocked() {
	f.gen++
	if f.timer != nil {
		f.timer.Stop()
		f.timer = nil
	}
}

func (f *followUpTimer) Pending() bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.timer != nil
}
