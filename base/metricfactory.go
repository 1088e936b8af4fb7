package base

import (
	"bytes"
	"fmt"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/relex/gotils/logger"
	"github.com/relex/gotils/promexporter/promext"
)

// MetricFactory manages Prometheus metrics with a common name prefix
//
// The returned RW counters and gauges are readable in place (Get), which is how
// component statistics are exposed to the control protocol without extra bookkeeping.
type MetricFactory struct {
	namePrefix   string
	registryLock *sync.Mutex
	registry     map[string]prometheus.Collector
}

// NewMetricFactory creates a factory adding the given prefix to all metric names
func NewMetricFactory(prefix string) *MetricFactory {
	return &MetricFactory{
		namePrefix:   prefix,
		registryLock: &sync.Mutex{},
		registry:     make(map[string]prometheus.Collector, 100),
	}
}

// AddOrGetCounter adds or gets a counter with fixed label values
func (factory *MetricFactory) AddOrGetCounter(name string, help string, labelNames []string, labelValues []string) promext.RWCounter {
	if len(labelNames) != len(labelValues) {
		logger.Panicf("different lengths of labelNames (%s) and labelValues (%s)",
			strings.Join(labelNames, ","), strings.Join(labelValues, ","))
	}
	return factory.AddOrGetCounterVec(name, help, labelNames).WithLabelValues(labelValues...)
}

// AddOrGetCounterVec adds or gets a counter-vec
func (factory *MetricFactory) AddOrGetCounterVec(name string, help string, labelNames []string) *promext.RWCounterVec {
	fullName := factory.namePrefix + name

	factory.registryLock.Lock()
	defer factory.registryLock.Unlock()

	if metricVec, ok := factory.registry[fullName]; ok {
		return metricVec.(*promext.RWCounterVec)
	}
	counterOpts := prometheus.CounterOpts{}
	counterOpts.Name = fullName
	counterOpts.Help = help
	counterVec := promext.NewRWCounterVec(counterOpts, labelNames)
	factory.registry[fullName] = (prometheus.Collector)(counterVec)
	if err := prometheus.Register(counterVec); err != nil {
		logger.Panicf("failed to register counter-vec '%s': %s", fullName, err.Error())
	}
	return counterVec
}

// AddOrGetGauge adds or gets a gauge with fixed label values
//
// Gauges must be updated by Add/Sub not Set, because there could be multiple updaters
func (factory *MetricFactory) AddOrGetGauge(name string, help string, labelNames []string, labelValues []string) promext.RWGauge {
	if len(labelNames) != len(labelValues) {
		logger.Panicf("different lengths of labelNames (%s) and labelValues (%s)",
			strings.Join(labelNames, ","), strings.Join(labelValues, ","))
	}
	return factory.AddOrGetGaugeVec(name, help, labelNames).WithLabelValues(labelValues...)
}

// AddOrGetGaugeVec adds or gets a gauge-vec
func (factory *MetricFactory) AddOrGetGaugeVec(name string, help string, labelNames []string) *promext.RWGaugeVec {
	fullName := factory.namePrefix + name

	factory.registryLock.Lock()
	defer factory.registryLock.Unlock()

	if metricVec, ok := factory.registry[fullName]; ok {
		return metricVec.(*promext.RWGaugeVec)
	}
	gaugeOpts := prometheus.GaugeOpts{}
	gaugeOpts.Name = fullName
	gaugeOpts.Help = help
	gaugeVec := promext.NewRWGaugeVec(gaugeOpts, labelNames)
	factory.registry[fullName] = (prometheus.Collector)(gaugeVec)
	if err := prometheus.Register(gaugeVec); err != nil {
		logger.Panicf("failed to register gauge-vec '%s': %s", fullName, err.Error())
	}
	return gaugeVec
}

// DumpMetrics dumps all metrics created in this factory into the .prom text format without comments
//
// For testing only
func (factory *MetricFactory) DumpMetrics(includeZeroValues bool) (string, error) {
	gatherer, err := func() (*prometheus.Registry, error) {
		g := prometheus.NewPedanticRegistry()
		factory.registryLock.Lock()
		defer factory.registryLock.Unlock()
		for name, vec := range factory.registry {
			if !strings.HasPrefix(name, factory.namePrefix) {
				continue
			}
			if err := g.Register(vec); err != nil {
				return nil, fmt.Errorf("failed to add metric '%s' to gatherer: %w", name, err)
			}
		}
		return g, nil
	}()
	if err != nil {
		return "", err
	}
	metricFamilies, err := gatherer.Gather()
	if err != nil {
		return "", fmt.Errorf("failed to gather metrics: %w", err)
	}
	writer := &bytes.Buffer{}
	for _, mf := range metricFamilies {
		if _, err := expfmt.MetricFamilyToText(writer, mf); err != nil {
			return "", fmt.Errorf("failed to export '%s': %w", *mf.Name, err)
		}
	}
	lines := strings.Split(writer.String(), "\n")
	linesFiltered := make([]string, 0, len(lines)/2)
	for _, ln := range lines {
		if strings.HasPrefix(ln, "#") {
			continue
		}
		if !includeZeroValues && strings.HasSuffix(ln, " 0") {
			continue
		}
		linesFiltered = append(linesFiltered, ln)
	}
	return strings.Join(linesFiltered, "\n"), nil
}

// Prefix is the prefix added to all metric names inside this factory
func (factory *MetricFactory) Prefix() string {
	return factory.namePrefix
}
