// Package utils holds test helpers shared across chunkstream packages.
package utils

import (
	"runtime"
	"time"
)

// TB is the part of testing.TB the leak detector needs.
type TB interface {
	Helper()
	Logf(format string, args ...any)
	Errorf(format string, args ...any)
}

// GoroutineLeakDetector fails a test when the goroutine count does not settle
// back near its starting value. Connections spawn read loops and timer
// callbacks, so Check polls until a deadline instead of sampling once.
type GoroutineLeakDetector struct {
	t              TB
	initialCount   int
	allowedGrowth  int
	checkInterval  time.Duration
	stabilizeDelay time.Duration
	timeout        time.Duration
}

// NewGoroutineLeakDetector creates a new goroutine leak detector
func NewGoroutineLeakDetector(t TB) *GoroutineLeakDetector {
	return &GoroutineLeakDetector{
		t:              t,
		checkInterval:  20 * time.Millisecond,
		stabilizeDelay: 50 * time.Millisecond,
		timeout:        2 * time.Second,
	}
}

// Start records the initial goroutine count
func (d *GoroutineLeakDetector) Start() {
	time.Sleep(d.stabilizeDelay)
	d.initialCount = runtime.NumGoroutine()
	d.t.Logf("Starting goroutine count: %d", d.initialCount)
}

// Check waits up to the timeout for the goroutine count to drop within the
// allowed growth and reports a leak, with all stacks, if it never does.
func (d *GoroutineLeakDetector) Check() {
	d.t.Helper()

	deadline := time.Now().Add(d.timeout)
	count := runtime.NumGoroutine()
	for count-d.initialCount > d.allowedGrowth && time.Now().Before(deadline) {
		time.Sleep(d.checkInterval)
		count = runtime.NumGoroutine()
	}

	leaked := count - d.initialCount
	if leaked <= d.allowedGrowth {
		d.t.Logf("No goroutine leak: started with %d, ended with %d", d.initialCount, count)
		return
	}

	d.t.Errorf("Goroutine leak detected: started with %d, ended with %d (leaked: %d, allowed: %d)",
		d.initialCount, count, leaked, d.allowedGrowth)

	buf := make([]byte, 1<<20)
	n := runtime.Stack(buf, true)
	d.t.Logf("Current goroutine stack traces:\n%s", buf[:n])
}

// SetAllowedGrowth sets the number of goroutines allowed to grow
func (d *GoroutineLeakDetector) SetAllowedGrowth(n int) *GoroutineLeakDetector {
	d.allowedGrowth = n
	return d
}

// SetStabilizeDelay sets the delay to allow goroutines to stabilize
func (d *GoroutineLeakDetector) SetStabilizeDelay(delay time.Duration) *GoroutineLeakDetector {
	d.stabilizeDelay = delay
	return d
}

// SetTimeout bounds how long Check waits for the count to settle.
func (d *GoroutineLeakDetector) SetTimeout(timeout time.Duration) *GoroutineLeakDetector {
	d.timeout = timeout
	return d
}
