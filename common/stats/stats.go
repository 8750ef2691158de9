// Package stats is a thin layer over go-metrics. Instruments are created
// through a StatsReceiver that can be scoped as it is passed down the call
// tree, and the whole registry renders as one flat JSON object.
package stats

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/rcrowley/go-metrics"
	log "github.com/sirupsen/logrus"
)

// Time is swapped out by tests that check latency rendering.
var Time StatsTime = DefaultStatsTime()

// StatsRegistry is the subset of a go-metrics registry the receiver needs.
type StatsRegistry interface {
	// GetOrRegister returns the metric registered under name, registering
	// the given one (or the result of calling it, if it is a func) if absent.
	GetOrRegister(string, interface{}) interface{}
	Unregister(string)
	Each(func(string, interface{}))
}

// StatsReceiver creates instruments. Names are joined with '/' and any '/'
// inside a single name element is replaced with "_SLASH_".
type StatsReceiver interface {
	// Scope returns a receiver that prefixes every name with scope.
	Scope(scope ...string) StatsReceiver

	// Precision sets the display unit of latencies created from the
	// returned receiver. Captured data is always nanoseconds.
	Precision(time.Duration) StatsReceiver

	Counter(name ...string) Counter
	Latency(name ...string) Latency
	Gauge(name ...string) Gauge
	GaugeFloat(name ...string) GaugeFloat

	Remove(name ...string)

	// Render marshals the registry to JSON.
	Render(pretty bool) []byte
}

// DefaultStatsReceiver returns a receiver backed by a flat registry.
func DefaultStatsReceiver() StatsReceiver {
	return NewCustomStatsReceiver(NewFlatStatsRegistry)
}

// NewCustomStatsReceiver uses makeRegistry to build the backing registry.
// A nil makeRegistry means a plain go-metrics registry.
func NewCustomStatsReceiver(makeRegistry func() StatsRegistry) StatsReceiver {
	if makeRegistry == nil {
		makeRegistry = func() StatsRegistry { return metrics.NewRegistry() }
	}
	return &defaultStatsReceiver{
		registry:  makeRegistry(),
		precision: time.Millisecond,
	}
}

type defaultStatsReceiver struct {
	registry  StatsRegistry
	precision time.Duration
	scope     []string
}

func (s *defaultStatsReceiver) Scope(scope ...string) StatsReceiver {
	return &defaultStatsReceiver{s.registry, s.precision, s.scoped(scope...)}
}

func (s *defaultStatsReceiver) Precision(precision time.Duration) StatsReceiver {
	if precision < 1 {
		precision = 1
	}
	return &defaultStatsReceiver{s.registry, precision, s.scope}
}

func (s *defaultStatsReceiver) Counter(name ...string) Counter {
	return s.registry.GetOrRegister(s.scopedName(name...), newMetricCounter).(Counter)
}

func (s *defaultStatsReceiver) Gauge(name ...string) Gauge {
	return s.registry.GetOrRegister(s.scopedName(name...), newMetricGauge).(Gauge)
}

func (s *defaultStatsReceiver) GaugeFloat(name ...string) GaugeFloat {
	return s.registry.GetOrRegister(s.scopedName(name...), newMetricGaugeFloat).(GaugeFloat)
}

func (s *defaultStatsReceiver) Latency(name ...string) Latency {
	// go-metrics can't type-assert the result of a factory returning our
	// interface, so latencies are registered eagerly.
	return s.registry.GetOrRegister(s.scopedName(name...), newLatency().Precision(s.precision)).(Latency)
}

func (s *defaultStatsReceiver) Remove(name ...string) {
	s.registry.Unregister(s.scopedName(name...))
}

func (s *defaultStatsReceiver) Render(pretty bool) []byte {
	var bytes []byte
	var err error
	if mp, ok := s.registry.(MarshalerPretty); ok && pretty {
		bytes, err = mp.MarshalJSONPretty()
	} else {
		bytes, err = json.Marshal(s.registry)
	}
	if err != nil {
		panic("stats registry cannot be marshaled: " + err.Error())
	}
	return bytes
}

func (s *defaultStatsReceiver) scoped(scope ...string) []string {
	out := make([]string, 0, len(s.scope)+len(scope))
	out = append(out, s.scope...)
	for _, sc := range scope {
		out = append(out, strings.Replace(sc, "/", "_SLASH_", -1))
	}
	return out
}

func (s *defaultStatsReceiver) scopedName(name ...string) string {
	return strings.Join(s.scoped(name...), "/")
}

// NilStatsReceiver drops everything.
func NilStatsReceiver(scope ...string) StatsReceiver {
	return &nilStatsReceiver{}
}

type nilStatsReceiver struct{}

func (s *nilStatsReceiver) Scope(scope ...string) StatsReceiver             { return s }
func (s *nilStatsReceiver) Precision(precision time.Duration) StatsReceiver { return s }
func (s *nilStatsReceiver) Counter(name ...string) Counter {
	return &metricCounter{metrics.NilCounter{}}
}
func (s *nilStatsReceiver) Gauge(name ...string) Gauge {
	return &metricGauge{metrics.NilGauge{}}
}
func (s *nilStatsReceiver) GaugeFloat(name ...string) GaugeFloat {
	return &metricGaugeFloat{metrics.NilGaugeFloat64{}}
}
func (s *nilStatsReceiver) Latency(name ...string) Latency { return &nilLatency{} }
func (s *nilStatsReceiver) Remove(name ...string)          {}
func (s *nilStatsReceiver) Render(pretty bool) []byte      { return []byte("{}") }

type Counter interface {
	Capture() Counter
	Count() int64
	Inc(int64)
	Update(int64)
}
type metricCounter struct{ metrics.Counter }

func (m *metricCounter) Capture() Counter { return &metricCounter{m.Snapshot()} }
func (m *metricCounter) Update(i int64)   { m.Inc(i - m.Count()) }
func newMetricCounter() Counter           { return &metricCounter{metrics.NewCounter()} }

type Gauge interface {
	Capture() Gauge
	Update(int64)
	Value() int64
}
type metricGauge struct{ metrics.Gauge }

func (m *metricGauge) Capture() Gauge { return &metricGauge{m.Snapshot()} }
func newMetricGauge() Gauge           { return &metricGauge{metrics.NewGauge()} }

type GaugeFloat interface {
	Capture() GaugeFloat
	Update(float64)
	Value() float64
}
type metricGaugeFloat struct{ metrics.GaugeFloat64 }

func (m *metricGaugeFloat) Capture() GaugeFloat { return &metricGaugeFloat{m.Snapshot()} }
func newMetricGaugeFloat() GaugeFloat           { return &metricGaugeFloat{metrics.NewGaugeFloat64()} }

// HistogramView is the read side of a latency.
type HistogramView interface {
	Mean() float64
	Count() int64
	Max() int64
	Min() int64
	Sum() int64
	Percentiles(ps []float64) []float64
}

// Latency records durations. Typical use:
//
//	defer stat.Latency("step_ms").Time().Stop()
type Latency interface {
	Capture() Latency
	Time() Latency
	Stop()
	GetPrecision() time.Duration
	Precision(time.Duration) Latency
}

type metricLatency struct {
	metrics.Histogram
	start     time.Time
	precision time.Duration
}

func (l *metricLatency) Time() Latency { l.start = Time.Now(); return l }
func (l *metricLatency) Stop()         { l.Update(Time.Since(l.start).Nanoseconds()) }
func (l *metricLatency) Capture() Latency {
	return &metricLatency{l.Histogram.Snapshot(), l.start, l.precision}
}
func (l *metricLatency) GetPrecision() time.Duration { return l.precision }
func (l *metricLatency) Precision(p time.Duration) Latency {
	if p < 1 {
		p = 1
	}
	l.precision = p
	return l
}
func newLatency() Latency {
	return &metricLatency{Histogram: metrics.NewHistogram(metrics.NewUniformSample(1000)), precision: time.Nanosecond}
}

type nilLatency struct{}

func (l *nilLatency) Time() Latency                   { return l }
func (l *nilLatency) Stop()                           {}
func (l *nilLatency) Capture() Latency                { return l }
func (l *nilLatency) GetPrecision() time.Duration     { return 0 }
func (l *nilLatency) Precision(time.Duration) Latency { return l }

// MarshalerPretty is implemented by registries that can indent their output.
type MarshalerPretty interface {
	MarshalJSONPretty() ([]byte, error)
}

// flatStatsRegistry renders every instrument as one or more top level keys,
// latencies expanding to name.avg, name.p99 and so on.
type flatStatsRegistry struct {
	metrics.Registry
}

func NewFlatStatsRegistry() StatsRegistry {
	return &flatStatsRegistry{metrics.NewRegistry()}
}

func (r *flatStatsRegistry) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.MarshalAll())
}

func (r *flatStatsRegistry) MarshalJSONPretty() ([]byte, error) {
	return json.MarshalIndent(r.MarshalAll(), "", "  ")
}

func (r *flatStatsRegistry) MarshalAll() map[string]interface{} {
	data := make(map[string]interface{})
	r.Each(func(name string, i interface{}) {
		switch stat := i.(type) {
		case Counter:
			data[name] = stat.Count()
		case Gauge:
			data[name] = stat.Value()
		case GaugeFloat:
			data[name] = stat.Value()
		case Latency:
			l := stat.Capture()
			marshalHistogram(data, name, l.(HistogramView), l.GetPrecision())
		default:
			log.Infof("unrecognized instrument %s: %T", name, i)
		}
	})
	return data
}

var defaultPercentiles = []float64{0.5, 0.9, 0.95, 0.99, 0.999}
var defaultPercentileLabels = []string{"p50", "p90", "p95", "p99", "p999"}

func marshalHistogram(data map[string]interface{}, name string, hist HistogramView, precision time.Duration) {
	f64p := float64(precision)
	i64p := int64(precision)
	data[name+".avg"] = hist.Mean() / f64p
	data[name+".count"] = hist.Count()
	data[name+".max"] = hist.Max() / i64p
	data[name+".min"] = hist.Min() / i64p
	data[name+".sum"] = hist.Sum() / i64p
	for i, pctl := range hist.Percentiles(defaultPercentiles) {
		data[name+"."+defaultPercentileLabels[i]] = pctl / f64p
	}
}
