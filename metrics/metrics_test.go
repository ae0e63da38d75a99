package metrics_test

import (
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firasghr/powcaptcha/metrics"
)

func TestIncrements(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncrementStarted()
	m.IncrementStarted()
	m.IncrementSucceeded()
	m.IncrementFailed()
	m.IncrementFallback()
	m.IncrementVerifications()
	m.IncrementExpired()
	m.IncrementCanceled()
	m.AddHashes(1500)

	s := m.Snapshot()
	assert.EqualValues(t, 2, s.AttemptsStarted)
	assert.EqualValues(t, 1, s.AttemptsSucceeded)
	assert.EqualValues(t, 1, s.AttemptsFailed)
	assert.EqualValues(t, 1, s.AttemptsCanceled)
	assert.EqualValues(t, 1, s.FallbackSolves)
	assert.EqualValues(t, 1, s.Verifications)
	assert.EqualValues(t, 1, s.TokensExpired)
	assert.EqualValues(t, 1500, s.HashesComputed)
}

func TestConcurrentIncrements(t *testing.T) {
	m := metrics.NewMetrics()
	const goroutines = 1000
	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			m.IncrementStarted()
			m.AddHashes(10)
		}()
	}
	wg.Wait()

	s := m.Snapshot()
	assert.EqualValues(t, goroutines, s.AttemptsStarted)
	assert.EqualValues(t, goroutines*10, s.HashesComputed)
}

func TestNilMetrics(t *testing.T) {
	var m *metrics.Metrics
	m.IncrementStarted()
	m.AddHashes(3)
	assert.Equal(t, metrics.Snapshot{}, m.Snapshot())
	assert.Zero(t, m.HashesPerSecond())
}

func TestCollector(t *testing.T) {
	m := metrics.NewMetrics()
	m.IncrementStarted()
	m.IncrementSucceeded()
	m.AddHashes(42)

	reg := prometheus.NewPedanticRegistry()
	require.NoError(t, reg.Register(metrics.NewCollector(m, "powcaptcha")))

	expected := `
# HELP powcaptcha_attempts_started_total Solve attempts started.
# TYPE powcaptcha_attempts_started_total counter
powcaptcha_attempts_started_total 1
# HELP powcaptcha_hashes_total Digests computed by all solvers.
# TYPE powcaptcha_hashes_total counter
powcaptcha_hashes_total 42
`
	err := testutil.GatherAndCompare(reg, strings.NewReader(expected),
		"powcaptcha_attempts_started_total", "powcaptcha_hashes_total")
	assert.NoError(t, err)

	n, err := testutil.GatherAndCount(reg)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
}
