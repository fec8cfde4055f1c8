package remoting

import (
	"sync"
	"sync/atomic"
	"time"
)

// idleDetector 连接在 timeout 内无任何读写时触发一次 onIdle，之后不再调度
type idleDetector struct {
	timeout time.Duration
	last    *atomic.Int64
	onIdle  func()
	mu      sync.Mutex
	timer   *time.Timer
	fired   atomic.Bool
	stopped bool
}

func newIdleDetector(timeout time.Duration, last *atomic.Int64, onIdle func()) *idleDetector {
	return &idleDetector{timeout: timeout, last: last, onIdle: onIdle}
}

func (d *idleDetector) start() {
	if d.timeout <= 0 {
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.stopped {
		return
	}
	d.timer = time.AfterFunc(d.timeout, d.check)
}

func (d *idleDetector) check() {
	elapsed := time.Since(time.Unix(0, d.last.Load()))
	if elapsed >= d.timeout {
		d.mu.Lock()
		stopped := d.stopped
		d.mu.Unlock()
		if !stopped && d.fired.CompareAndSwap(false, true) {
			d.onIdle()
		}
		return
	}
	d.mu.Lock()
	defer d.mu.Unlock()
	if !d.stopped {
		d.timer.Reset(d.timeout - elapsed)
	}
}

func (d *idleDetector) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.stopped = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
