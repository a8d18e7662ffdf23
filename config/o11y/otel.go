// Package o11y sets up an o11y.Provider from configuration and places it in a context.
package o11y

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"

	"github.com/circleci/nostrd/o11y"
	"github.com/circleci/nostrd/o11y/otel"
)

// OtelConfig contains all the things we need to configure for otel based instrumentation.
type OtelConfig struct {
	GrpcHostAndPort string

	Dataset string

	// DisableText prevents output to the console for noisy services. Ignored if no collector is supplied
	DisableText bool
	// Writer receives the console output, os.Stdout by default
	Writer io.Writer

	Test bool

	Statsd         string
	StatsNamespace string

	Version string
	Service string
	Mode    string
}

// Otel is the primary entrypoint to initialize the o11y system for otel.
func Otel(ctx context.Context, o OtelConfig) (context.Context, func(context.Context), error) {
	hostname, _ := os.Hostname()

	mProv, err := metricsProvider(ctx, o, hostname)
	if err != nil {
		return ctx, nil, fmt.Errorf("metrics provider failed: %w", err)
	}

	o11yProvider, err := otel.New(otel.Config{
		GrpcHostAndPort: o.GrpcHostAndPort,
		Dataset:         o.Dataset,
		ResourceAttributes: []attribute.KeyValue{
			attribute.String("service.name", o.Service),
			attribute.String("service.version", o.Version),
			attribute.String("service.mode", o.Mode),
		},
		Writer:      o.Writer,
		DisableText: o.DisableText,
		Test:        o.Test,
		Metrics:     mProv,
	})
	if err != nil {
		return ctx, nil, err
	}

	o11yProvider.AddGlobalField("service", o.Service)
	o11yProvider.AddGlobalField("version", o.Version)
	if o.Mode != "" {
		o11yProvider.AddGlobalField("mode", o.Mode)
	}

	ctx = o11y.WithProvider(ctx, o11yProvider)

	return ctx, o11yProvider.Close, nil
}

func metricsProvider(ctx context.Context, o OtelConfig, hostname string) (o11y.ClosableMetricsProvider, error) {
	if o.Statsd == "" {
		return &statsd.NoOpClient{}, nil
	}

	tags := []string{
		"service:" + o.Service,
		"version:" + o.Version,
		"hostname:" + hostname,
	}
	if o.Mode != "" {
		tags = append(tags, "mode:"+o.Mode)
	}

	var stats o11y.ClosableMetricsProvider
	bo := backoff.WithMaxRetries(backoff.NewConstantBackOff(100*time.Millisecond), 30)
	err := backoff.Retry(func() (err error) {
		stats, err = otel.NewStatsd(o.Statsd, o.StatsNamespace, tags...)
		return err
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, err
	}
	return stats, nil
}
