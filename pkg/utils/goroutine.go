// Package utils holds test helpers shared by the session and server
// packages.
package utils

import (
	"runtime"
	"testing"
	"time"
)

// GoroutineLeakDetector fails a test when goroutines started during it are
// still running at the end. Background timers and transport loops are
// given until the settle timeout to exit.
type GoroutineLeakDetector struct {
	t             testing.TB
	baseline      int
	allowedGrowth int
	pollInterval  time.Duration
	settleTimeout time.Duration
}

// NewGoroutineLeakDetector creates a detector reporting to t.
func NewGoroutineLeakDetector(t testing.TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:             t,
		pollInterval:  10 * time.Millisecond,
		settleTimeout: time.Second,
	}
}

// Start records the baseline goroutine count.
func (d *GoroutineLeakDetector) Start() *GoroutineLeakDetector {
	d.baseline = runtime.NumGoroutine()
	return d
}

// Check polls until the goroutine count is back within the allowed growth
// or the settle timeout passes, and fails the test in the latter case. It
// returns the number of leaked goroutines.
func (d *GoroutineLeakDetector) Check() int {
	d.t.Helper()
	deadline := time.Now().Add(d.settleTimeout)
	for {
		leaked := runtime.NumGoroutine() - d.baseline
		if leaked <= d.allowedGrowth {
			return 0
		}
		if time.Now().After(deadline) {
			buf := make([]byte, 1<<20)
			n := runtime.Stack(buf, true)
			d.t.Errorf("goroutine leak: baseline %d, %d still running (allowed growth %d)\n%s",
				d.baseline, leaked, d.allowedGrowth, buf[:n])
			return leaked
		}
		time.Sleep(d.pollInterval)
	}
}

// SetAllowedGrowth tolerates n extra goroutines.
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetSettleTimeout bounds how long Check waits for goroutines to exit.
func (d *GoroutineLeakDetector) SetSettleTimeout(timeout time.Duration) *GoroutineLeakDetector {
	d.settleTimeout = timeout
	return d
}
