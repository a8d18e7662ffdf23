package otel

import (
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp/cmpopts"
	"go.opentelemetry.io/otel/attribute"
	"gotest.tools/v3/assert"
	"gotest.tools/v3/assert/cmp"
)

type outcome int

func (o outcome) String() string {
	return fmt.Sprintf("outcome-%d", int(o))
}

func TestAttr(t *testing.T) {
	var pid *int

	for _, tt := range []struct {
		name   string
		val    any
		expect attribute.KeyValue
	}{
		{name: "binary", val: "bin/relay", expect: attribute.String("binary", "bin/relay")},
		{name: "ready", val: true, expect: attribute.Bool("ready", true)},
		{name: "port", val: 7447, expect: attribute.Int("port", 7447)},
		{name: "int8", val: int8(8), expect: attribute.Int("int8", 8)},
		{name: "int16", val: int16(16), expect: attribute.Int("int16", 16)},
		{name: "int32", val: int32(32), expect: attribute.Int("int32", 32)},
		{name: "lines", val: int64(64), expect: attribute.Int("lines", 64)},
		{name: "pid", val: pid, expect: attribute.String("pid", "")},
		{name: "error", val: errors.New("relay exited"), expect: attribute.String("error", "relay exited")},
		{name: "outcome", val: outcome(2), expect: attribute.String("outcome", "outcome-2")},
		{
			name:   "network",
			val:    struct{ Address string }{Address: "127.0.0.1"},
			expect: attribute.String("network", "{127.0.0.1}"),
		},
		{name: "nothing", val: nil, expect: attribute.String("nothing", "")},
		{name: "timeout", val: 3 * time.Second, expect: attribute.Int("timeout", 3000)},
	} {
		t.Run(tt.name, func(t *testing.T) {
			got := attr(tt.name, tt.val)
			assert.DeepEqual(t, got, tt.expect, cmpopts.EquateComparable(attribute.Value{}))
		})
	}

	t.Run("Floats", func(t *testing.T) {
		got := attr("float32", float32(32.32))
		assert.Check(t, cmp.DeepEqual(got.Value.AsFloat64(), 32.32, cmpopts.EquateApprox(0, 0.0001)))
		got = attr("float64", 64.64)
		assert.Check(t, cmp.DeepEqual(got.Value.AsFloat64(), 64.64, cmpopts.EquateApprox(0, 0.0001)))
	})
}
