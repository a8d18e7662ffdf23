// Package fakemetrics is an in-memory o11y.ClosableMetricsProvider that records every
// call, for asserting on the metrics a piece of code sends.
package fakemetrics

import (
	"fmt"
	"strings"
	"sync"

	gocmp "github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

type MetricCall struct {
	Metric   string
	Name     string
	Value    float64
	ValueInt int64
	Tags     []string
	Rate     float64
}

// CMPMetrics compares calls in any order, with tags in any order.
var CMPMetrics = gocmp.Options{
	cmpopts.SortSlices(func(x, y MetricCall) bool {
		const format = "%s|%s|%s"
		return fmt.Sprintf(format, x.Metric, x.Name, x.Tags) <
			fmt.Sprintf(format, y.Metric, y.Name, y.Tags)
	}),
	cmpopts.SortSlices(func(x, y string) bool {
		return x < y
	}),
}

// IgnoreValue drops floating point values, such as timings, from comparisons.
var IgnoreValue = cmpopts.IgnoreFields(MetricCall{}, "Value")

type Provider struct {
	mu sync.RWMutex

	// mutable state
	calls []MetricCall
}

func (f *Provider) Calls() []MetricCall {
	f.mu.RLock()
	defer f.mu.RUnlock()

	calls := make([]MetricCall, len(f.calls))
	copy(calls, f.calls)
	return calls
}

// Prefixed returns the calls whose name starts with prefix.
func (f *Provider) Prefixed(prefix string) []MetricCall {
	var calls []MetricCall
	for _, c := range f.Calls() {
		if strings.HasPrefix(c.Name, prefix) {
			calls = append(calls, c)
		}
	}
	return calls
}

func (f *Provider) TimeInMilliseconds(name string, value float64, tags []string, rate float64) error {
	f.record(MetricCall{Metric: "timer", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (f *Provider) Gauge(name string, value float64, tags []string, rate float64) error {
	f.record(MetricCall{Metric: "gauge", Name: name, Value: value, Tags: tags, Rate: rate})
	return nil
}

func (f *Provider) Count(name string, value int64, tags []string, rate float64) error {
	f.record(MetricCall{Metric: "count", Name: name, ValueInt: value, Tags: tags, Rate: rate})
	return nil
}

func (f *Provider) Close() error {
	return nil
}

func (f *Provider) record(c MetricCall) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.calls = append(f.calls, c)
}
