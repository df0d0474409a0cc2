package shared

import (
	"bytes"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
)

type Metrics struct {
	registry *prometheus.Registry
}

func NewMetrics() *Metrics {
	return &Metrics{registry: prometheus.NewRegistry()}
}

// RegisterCounter register counter
func (m *Metrics) RegisterCounter(name string, help string, labels []string) *prometheus.CounterVec {
	counter := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: name,
		Help: help,
	}, labels)

	m.registry.MustRegister(counter)
	return counter
}

// RegisterGauge register gauge
func (m *Metrics) RegisterGauge(name string, help string, labels []string) *prometheus.GaugeVec {
	gauge := prometheus.NewGaugeVec(prometheus.GaugeOpts{
		Name: name,
		Help: help,
	}, labels)

	m.registry.MustRegister(gauge)
	return gauge
}

// RegisterHistogram register histogram
func (m *Metrics) RegisterHistogram(name string, help string, labels []string, buckets []float64) *prometheus.HistogramVec {
	histogram := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Name:    name,
		Help:    help,
		Buckets: buckets,
	}, labels)

	m.registry.MustRegister(histogram)
	return histogram
}

// IncCounter increase counter
func (m *Metrics) IncCounter(counter *prometheus.CounterVec, labels ...string) {
	counter.WithLabelValues(labels...).Inc()
}

// IncGauge increase gauge
func (m *Metrics) IncGauge(gauge *prometheus.GaugeVec, labels ...string) {
	gauge.WithLabelValues(labels...).Inc()
}

// SetGauge set gauge
func (m *Metrics) SetGauge(gauge *prometheus.GaugeVec, value float64, labels ...string) {
	gauge.WithLabelValues(labels...).Set(value)
}

// ObserveHistogram observe histogram
func (m *Metrics) ObserveHistogram(histogram *prometheus.HistogramVec, value float64, labels ...string) {
	histogram.WithLabelValues(labels...).Observe(value)
}

func (m *Metrics) GetPrometheusMetrics() (string, error) {
	var metrics bytes.Buffer
	metricFamilies, err := m.registry.Gather()
	if err != nil {
		return "", err
	}

	encoder := expfmt.NewEncoder(&metrics, expfmt.FmtText)
	for _, mf := range metricFamilies {
		if err := encoder.Encode(mf); err != nil {
			return "", err
		}
	}

	return metrics.String(), nil
}
