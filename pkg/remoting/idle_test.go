package remoting

import (
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestIdleDetectorFiresOnce(t *testing.T) {
	var last atomic.Int64
	last.Store(time.Now().UnixNano())
	var fired atomic.Int32
	d := newIdleDetector(50*time.Millisecond, &last, func() { fired.Add(1) })
	d.start()
	defer d.stop()

	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
	time.Sleep(200 * time.Millisecond)
	assert.Equal(t, int32(1), fired.Load())
}

func TestIdleDetectorPostponedByActivity(t *testing.T) {
	var last atomic.Int64
	last.Store(time.Now().UnixNano())
	var fired atomic.Int32
	d := newIdleDetector(100*time.Millisecond, &last, func() { fired.Add(1) })
	d.start()
	defer d.stop()

	for i := 0; i < 6; i++ {
		time.Sleep(40 * time.Millisecond)
		last.Store(time.Now().UnixNano())
	}
	assert.Equal(t, int32(0), fired.Load())
	assert.Eventually(t, func() bool { return fired.Load() == 1 }, time.Second, 5*time.Millisecond)
}

func TestIdleDetectorStopped(t *testing.T) {
	var last atomic.Int64
	last.Store(time.Now().UnixNano())
	var fired atomic.Int32
	d := newIdleDetector(30*time.Millisecond, &last, func() { fired.Add(1) })
	d.start()
	d.stop()
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, int32(0), fired.Load())

	disabled := newIdleDetector(0, &last, func() { fired.Add(1) })
	disabled.start()
	disabled.stop()
}
