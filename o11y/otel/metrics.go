package otel

import (
	"fmt"
	"time"

	"github.com/circleci/nostrd/o11y"
)

// sendMetrics emits every metric recorded on a span, taking values and tags from the
// span's fields. Metrics whose value field is missing or of the wrong type are skipped.
func sendMetrics(mp o11y.MetricsProvider, metrics []o11y.Metric, fields map[string]any) {
	for _, m := range metrics {
		tags := extractTagsFromFields(m.TagFields, fields)
		switch m.Type {
		case o11y.MetricTimer:
			val, ok := getField(m.Field, fields)
			if !ok {
				continue
			}
			if ms, ok := toMilliSecond(val); ok {
				_ = mp.TimeInMilliseconds(m.Name, ms, tags, 1)
			}
		case o11y.MetricCount:
			var n int64 = 1
			if m.Field != "" {
				val, ok := getField(m.Field, fields)
				if !ok {
					continue
				}
				if n, ok = toInt64(val); !ok {
					continue
				}
			}
			_ = mp.Count(m.Name, n, tags, 1)
		case o11y.MetricGauge:
			val, ok := getField(m.Field, fields)
			if !ok {
				continue
			}
			if f, ok := toFloat64(val); ok {
				_ = mp.Gauge(m.Name, f, tags, 1)
			}
		}
	}
}

func extractTagsFromFields(tags []string, fields map[string]any) []string {
	result := make([]string, 0, len(tags))
	for _, name := range tags {
		val, ok := getField(name, fields)
		if ok {
			result = append(result, fmtTag(name, val))
		}
	}
	return result
}

func getField(name string, fields map[string]any) (any, bool) {
	val, ok := fields[name]
	if !ok {
		val, ok = fields["app."+name]
	}
	return val, ok
}

func toInt64(val any) (int64, bool) {
	switch v := val.(type) {
	case int64:
		return v, true
	case int:
		return int64(v), true
	}
	return 0, false
}

func toFloat64(val any) (float64, bool) {
	if i, ok := val.(float64); ok {
		return i, true
	}
	if i, ok := toInt64(val); ok {
		return float64(i), true
	}
	return 0, false
}

func toMilliSecond(val any) (float64, bool) {
	if d, ok := val.(time.Duration); ok {
		return float64(d.Milliseconds()), true
	}
	return toFloat64(val)
}

func fmtTag(name string, val any) string {
	return fmt.Sprintf("%s:%v", name, val)
}
