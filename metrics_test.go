package chamaWeb

import (
	"sync"
	"testing"
	"time"
)

func TestMetricsDisabledNoIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: false})
	m.Inc(MetricHandshakeStarted)

	if got := m.Value(MetricHandshakeStarted); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestMetricsEnabledIncrement(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})
	m.Inc(MetricPollSent)
	m.Inc(MetricPollSent)
	m.Inc(MetricPollSent)

	if got := m.Value(MetricPollSent); got != 3 {
		t.Fatalf("expected 3, got %d", got)
	}
}

func TestMetricsNilSafe(t *testing.T) {
	var m *Metrics
	m.Inc(MetricPollSent)
	m.Observe(MetricHandshakeLatency, time.Second)
	if m.Value(MetricPollSent) != 0 || m.Enabled() {
		t.Fatal("nil metrics must be inert")
	}
	if snap := m.Snapshot(); len(snap.Counters) != 0 {
		t.Fatalf("expected empty snapshot, got %v", snap.Counters)
	}
}

func TestMetricsConcurrentIncrementSafe(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true})

	const goroutines = 32
	const perG = 4000

	var wg sync.WaitGroup
	wg.Add(goroutines)
	for i := 0; i < goroutines; i++ {
		go func() {
			defer wg.Done()
			for j := 0; j < perG; j++ {
				m.Inc(MetricPollPending)
			}
		}()
	}
	wg.Wait()

	want := uint64(goroutines * perG)
	if got := m.Value(MetricPollPending); got != want {
		t.Fatalf("expected %d, got %d", want, got)
	}
}

func TestMetricsHistogramBucketCorrectness(t *testing.T) {
	m := NewMetrics(MetricsConfig{
		Enabled:                 true,
		EnableLatencyHistograms: true,
	})

	observations := []time.Duration{
		2 * time.Second,
		4 * time.Second,
		10 * time.Second,
		18 * time.Second,
		30 * time.Second,
		time.Minute,
		90 * time.Second,
		5 * time.Minute,
	}

	for _, d := range observations {
		m.Observe(MetricHandshakeLatency, d)
	}

	snap := m.Snapshot()
	buckets := snap.Histograms[MetricHandshakeLatency]
	if len(buckets) != 8 {
		t.Fatalf("expected 8 buckets, got %d", len(buckets))
	}
	for i, v := range buckets {
		if v != 1 {
			t.Fatalf("bucket %d: expected 1, got %d", i, v)
		}
	}
}

func TestMetricsObserveIgnoresCounterIDs(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Observe(MetricPollSent, time.Second)

	snap := m.Snapshot()
	if _, ok := snap.Histograms[MetricPollSent]; ok {
		t.Fatal("counter id must not produce a histogram")
	}
	if _, ok := snap.Counters[MetricHandshakeLatency]; ok {
		t.Fatal("histogram id must not appear as a counter")
	}
}
