package utils

import (
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

// recordingTB captures failures so the detector itself can be tested.
type recordingTB struct {
	testing.TB
	failures []string
}

func (r *recordingTB) Helper() {}

func (r *recordingTB) Errorf(format string, args ...any) {
	r.failures = append(r.failures, fmt.Sprintf(format, args...))
}

func TestGoroutineLeakDetector(t *testing.T) {
	t.Run("settles", func(t *testing.T) {
		d := NewGoroutineLeakDetector(t).Start()

		stop := make(chan struct{})
		go func() { <-stop }()
		go func() {
			time.Sleep(20 * time.Millisecond)
			close(stop)
		}()

		assert.Zero(t, d.Check())
	})

	t.Run("detects leak", func(t *testing.T) {
		rec := &recordingTB{}
		d := NewGoroutineLeakDetector(rec).SetSettleTimeout(50 * time.Millisecond).Start()

		block := make(chan struct{})
		defer close(block)
		go func() { <-block }()

		assert.GreaterOrEqual(t, d.Check(), 1)
		assert.Len(t, rec.failures, 1)
	})

	t.Run("allowed growth", func(t *testing.T) {
		d := NewGoroutineLeakDetector(t).SetAllowedGrowth(1).SetSettleTimeout(50 * time.Millisecond).Start()

		block := make(chan struct{})
		defer close(block)
		go func() { <-block }()

		assert.Zero(t, d.Check())
	})
}
