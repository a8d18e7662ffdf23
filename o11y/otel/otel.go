// Package otel contains an o11y.Provider backed by the open telemetry SDK. Spans are
// always written to a text console exporter, and optionally to an OTLP gRPC collector.
package otel

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/DataDog/datadog-go/statsd"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"

	"github.com/circleci/nostrd/o11y"
	"github.com/circleci/nostrd/o11y/otel/texttrace"
)

type Config struct {
	Dataset            string
	GrpcHostAndPort    string
	ResourceAttributes []attribute.KeyValue

	// Writer receives the text console output, os.Stdout if nil.
	Writer io.Writer
	// DisableText stops console output. Ignored unless GrpcHostAndPort is set.
	DisableText bool
	// Test makes the console output deterministic enough to assert on.
	Test bool

	Metrics o11y.ClosableMetricsProvider
}

type Provider struct {
	metricsProvider o11y.ClosableMetricsProvider
	tracer          trace.Tracer
	tp              *sdktrace.TracerProvider
	globalFields    *Annotator
}

func New(conf Config) (*Provider, error) {
	var exporters []sdktrace.SpanExporter

	if conf.GrpcHostAndPort == "" || !conf.DisableText {
		w := conf.Writer
		if w == nil {
			w = os.Stdout
		}
		var opts []texttrace.Option
		if conf.Test {
			opts = append(opts, texttrace.WithoutColour(), texttrace.WithoutTimestamps())
		}
		exporters = append(exporters, texttrace.New(w, opts...))
	}

	if conf.GrpcHostAndPort != "" {
		grpc, err := newGRPC(context.Background(), conf.GrpcHostAndPort, conf.Dataset)
		if err != nil {
			return nil, fmt.Errorf("failed to create otlp exporter: %w", err)
		}
		exporters = append(exporters, grpc)
	}

	metrics := conf.Metrics
	if metrics == nil {
		metrics = &statsd.NoOpClient{}
	}

	annotator := &Annotator{}
	tp := traceProvider(exporters, annotator, conf)
	return &Provider{
		metricsProvider: metrics,
		tp:              tp,
		tracer:          tp.Tracer("github.com/circleci/nostrd"),
		globalFields:    annotator,
	}, nil
}

func traceProvider(exporters []sdktrace.SpanExporter, annotator *Annotator, conf Config) *sdktrace.TracerProvider {
	ra := append([]attribute.KeyValue{
		attribute.String("x-honeycomb-dataset", conf.Dataset),
	}, conf.ResourceAttributes...)

	traceOptions := []sdktrace.TracerProviderOption{
		// N.B. must pass in the address here since we need to see later mutations
		sdktrace.WithSpanProcessor(annotator),
		sdktrace.WithResource(resource.NewSchemaless(ra...)),
	}
	for _, e := range exporters {
		var sp sdktrace.SpanProcessor
		if conf.Test {
			// tests read the output as soon as the span ends
			sp = sdktrace.NewSimpleSpanProcessor(e)
		} else {
			sp = sdktrace.NewBatchSpanProcessor(e)
		}
		traceOptions = append(traceOptions, sdktrace.WithSpanProcessor(sp))
	}

	return sdktrace.NewTracerProvider(traceOptions...)
}

func newGRPC(ctx context.Context, endpoint, dataset string) (*otlptrace.Exporter, error) {
	opts := []otlptracegrpc.Option{
		otlptracegrpc.WithEndpoint(endpoint),
		otlptracegrpc.WithInsecure(),
		otlptracegrpc.WithHeaders(map[string]string{"x-honeycomb-dataset": dataset}),
	}
	return otlptrace.New(ctx, otlptracegrpc.NewClient(opts...))
}

func (o *Provider) AddGlobalField(key string, val interface{}) {
	mustValidateKey(key)
	o.globalFields.addField(key, val)
}

func (o *Provider) StartSpan(ctx context.Context, name string) (context.Context, o11y.Span) {
	ctx, span := o.tracer.Start(ctx, name)
	return ctx, o.wrapSpan(span)
}

// Log sends a zero duration span carrying fields.
func (o *Provider) Log(ctx context.Context, name string, fields ...o11y.Pair) {
	_, s := o.StartSpan(ctx, name)
	for _, f := range fields {
		s.AddField(f.Key, f.Value)
	}
	s.End()
}

func (o *Provider) Close(ctx context.Context) {
	// The provider is being discarded, there is nothing useful to do with these errors.
	_ = o.tp.Shutdown(ctx)
	_ = o.metricsProvider.Close()
}

func (o *Provider) MetricsProvider() o11y.MetricsProvider {
	return o.metricsProvider
}

func (o *Provider) wrapSpan(s trace.Span) *span {
	return &span{
		metricsProvider: o.metricsProvider,
		span:            s,
		start:           time.Now(),
		fields:          map[string]interface{}{},
	}
}

type span struct {
	span            trace.Span
	metrics         []o11y.Metric
	metricsProvider o11y.MetricsProvider
	start           time.Time
	fields          map[string]interface{}
}

func (s *span) AddField(key string, val interface{}) {
	s.AddRawField("app."+key, val)
}

func (s *span) AddRawField(key string, val interface{}) {
	mustValidateKey(key)
	s.fields[key] = val
	if key == "name" {
		if v, ok := val.(string); ok {
			s.span.SetName(v)
		}
	}
	s.span.SetAttributes(attr(key, val))
}

// RecordMetric will only emit a metric if End is called specifically
func (s *span) RecordMetric(metric o11y.Metric) {
	s.metrics = append(s.metrics, metric)
}

func (s *span) End() {
	// insert the expected field for any timing metric
	s.fields["duration_ms"] = time.Since(s.start)
	sendMetrics(s.metricsProvider, s.metrics, s.fields)
	s.span.End()
}

func mustValidateKey(key string) {
	if strings.Contains(key, "-") {
		panic(fmt.Errorf("key %q cannot contain '-'", key))
	}
}
