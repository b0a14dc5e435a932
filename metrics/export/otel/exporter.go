package otel

import (
	"context"
	"errors"
	"fmt"

	chamaWeb "github.com/MrEthical07/chamaWeb"
	"github.com/MrEthical07/chamaWeb/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Exporter construction errors.
var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() chamaWeb.MetricsSnapshot
	AuditDropped() uint64
}

// latency is one engine histogram seen as cumulative bucket points tagged
// with "le", plus a sample count.
type latency struct {
	id      chamaWeb.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
}

// Exporter observes engine snapshots through asynchronous instruments.
type Exporter struct {
	source    metricsSource
	reg       metric.Registration
	counters  map[chamaWeb.MetricID]metric.Int64ObservableCounter
	latencies []latency
	dropped   metric.Int64ObservableCounter
	le        [8]metric.ObserveOption
}

// New registers instruments on meter that read from engine.
func New(meter metric.Meter, engine *chamaWeb.Engine) (*Exporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewFromSource(meter, engine)
}

// NewFromSource registers instruments over any snapshot source.
func NewFromSource(meter metric.Meter, source metricsSource) (*Exporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &Exporter{
		source:   source,
		counters: make(map[chamaWeb.MetricID]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
	}
	for i, suffix := range internaldefs.HistogramBoundSuffix {
		e.le[i] = metric.WithAttributes(attribute.String("le", suffix))
	}

	var observables []metric.Observable
	for _, def := range internaldefs.CounterDefs {
		c, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("counter %s: %w", def.Name, err)
		}
		e.counters[def.ID] = c
		observables = append(observables, c)
	}

	for _, def := range internaldefs.HistogramDefs {
		buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
			metric.WithDescription(def.Help+" Cumulative count per upper bound."),
			metric.WithUnit("{handshake}"),
		)
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		count, err := meter.Int64ObservableGauge(def.Name+"_count",
			metric.WithDescription(def.Help+" Total samples."),
		)
		if err != nil {
			return nil, fmt.Errorf("histogram %s: %w", def.Name, err)
		}
		e.latencies = append(e.latencies, latency{id: def.ID, buckets: buckets, count: count})
		observables = append(observables, buckets, count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.dropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.reg = reg
	return e, nil
}

func (e *Exporter) observe(_ context.Context, o metric.Observer) error {
	snap := e.source.MetricsSnapshot()
	for id, c := range e.counters {
		o.ObserveInt64(c, int64(snap.Counters[id]))
	}
	for _, l := range e.latencies {
		cum := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(snap.Histograms[l.id]))
		for i, n := range cum {
			o.ObserveInt64(l.buckets, int64(n), e.le[i])
		}
		o.ObserveInt64(l.count, int64(cum[len(cum)-1]))
	}
	o.ObserveInt64(e.dropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *Exporter) Close() error {
	if e == nil || e.reg == nil {
		return nil
	}
	return e.reg.Unregister()
}
