package progress_test

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/firasghr/powcaptcha/progress"
)

func TestEstimate_MonotonicAndBelow100(t *testing.T) {
	attempts := []uint64{0, 1, 2, 10, 100, 1_000, 65_535, 65_536, 1 << 20, 1 << 32, 1<<64 - 1}
	for d := 0; d <= 12; d++ {
		prev := -1.0
		for _, a := range attempts {
			got := progress.Estimate(a, d)
			assert.GreaterOrEqual(t, got, prev, "difficulty %d attempts %d", d, a)
			assert.Less(t, got, 100.0)
			assert.GreaterOrEqual(t, got, 0.0)
			prev = got
		}
	}
}

func TestEstimate_CapsAt95(t *testing.T) {
	assert.Equal(t, progress.MaxEstimate, progress.Estimate(1_000_000, 1))
	assert.Equal(t, progress.MaxEstimate, progress.Estimate(1, 0))
}

func TestEstimate_SquareRootEasing(t *testing.T) {
	// A quarter of the expected attempts reads as 50%.
	expected := progress.ExpectedAttempts(4)
	assert.Equal(t, 65536.0, expected)
	assert.InDelta(t, 50.0, progress.Estimate(uint64(expected/4), 4), 1e-9)
	assert.InDelta(t, 25.0, progress.Estimate(uint64(expected/16), 4), 1e-9)
}

func TestEstimate_ZeroAttempts(t *testing.T) {
	assert.Equal(t, 0.0, progress.Estimate(0, 0))
	assert.Equal(t, 0.0, progress.Estimate(0, 8))
}

func TestEstimate_HugeDifficulty(t *testing.T) {
	assert.Equal(t, 0.0, progress.Estimate(1<<40, 400))
	assert.Equal(t, progress.ExpectedAttempts(0), progress.ExpectedAttempts(-2))
}

func TestTracker_NeverDecreases(t *testing.T) {
	var tr progress.Tracker
	assert.Equal(t, 10.0, tr.Observe(10))
	assert.Equal(t, 10.0, tr.Observe(5))
	assert.Equal(t, 40.0, tr.Observe(40))
	assert.Equal(t, progress.MaxEstimate, tr.Observe(120))
	assert.Equal(t, progress.Complete, tr.Complete())
	assert.Equal(t, progress.Complete, tr.Value())

	tr.Reset()
	assert.Equal(t, 0.0, tr.Value())
}

func TestTracker_Concurrent(t *testing.T) {
	var tr progress.Tracker
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func(v float64) {
			defer wg.Done()
			tr.Observe(v)
		}(float64(i % 90))
	}
	wg.Wait()
	assert.Equal(t, 89.0, tr.Value())
}
