package otel

import (
	"fmt"

	"github.com/DataDog/datadog-go/statsd"

	"github.com/circleci/nostrd/o11y"
)

// NewStatsd returns a metrics provider sending to the statsd agent at addr. Every metric
// name is prefixed with namespace and carries tags.
func NewStatsd(addr, namespace string, tags ...string) (o11y.ClosableMetricsProvider, error) {
	stats, err := statsd.New(addr,
		statsd.WithNamespace(namespace),
		statsd.WithTags(tags),
		statsd.WithoutTelemetry(),
	)
	if err != nil {
		return nil, fmt.Errorf("metrics provider failed: %w", err)
	}
	return stats, nil
}
