package metrics

import (
	"fmt"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/wippyai/wasm-bridge/errors"
	"github.com/wippyai/wasm-bridge/runtime"
)

var _ runtime.HostCallObserver = (*Collectors)(nil)

// sample returns the counter value, gauge value or histogram sample count
// of the series name{label=value}.
func sample(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("Gather failed: %v", err)
	}
	for _, f := range families {
		if f.GetName() != name {
			continue
		}
		for _, m := range f.GetMetric() {
			matched := label == ""
			for _, l := range m.GetLabel() {
				if l.GetName() == label && l.GetValue() == value {
					matched = true
				}
			}
			if !matched {
				continue
			}
			switch {
			case m.GetCounter() != nil:
				return m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				return m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				return float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return 0
}

func TestResult(t *testing.T) {
	tests := []struct {
		status uint32
		err    error
		want   string
	}{
		{0, nil, ResultSuccess},
		{3, nil, ResultExit},
		{0, errors.FunctionNotFound("_start"), "function_not_found"},
		{0, fmt.Errorf("plain"), "internal_error"},
	}
	for _, tt := range tests {
		if got := Result(tt.status, tt.err); got != tt.want {
			t.Errorf("Result(%d, %v) = %q, want %q", tt.status, tt.err, got, tt.want)
		}
	}
}

func TestCollectors_Executions(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	done := c.StartExecution()
	if got := sample(t, reg, "wasm_bridge_executions_active", "", ""); got != 1 {
		t.Fatalf("active = %v, want 1", got)
	}
	done(0, nil)
	c.StartExecution()(1, nil)
	c.StartExecution()(0, errors.FunctionNotFound("_start"))

	if got := sample(t, reg, "wasm_bridge_executions_active", "", ""); got != 0 {
		t.Errorf("active = %v after completion", got)
	}
	for label, want := range map[string]float64{
		ResultSuccess:        1,
		ResultExit:           1,
		"function_not_found": 1,
	} {
		if got := sample(t, reg, "wasm_bridge_executions_total", "result", label); got != want {
			t.Errorf("executions{result=%q} = %v, want %v", label, got, want)
		}
	}
	if got := sample(t, reg, "wasm_bridge_execution_duration_seconds", "", ""); got != 3 {
		t.Errorf("duration samples = %v, want 3", got)
	}
}

func TestCollectors_HostCalls(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	if err := c.Register(reg); err != nil {
		t.Fatal(err)
	}

	c.ObserveHostCall("xila_task_sleep", time.Millisecond)
	c.ObserveHostCall("xila_task_sleep", time.Millisecond)
	c.ObserveHostCall("xila_file_system_open", time.Microsecond)

	if got := sample(t, reg, "wasm_bridge_host_calls_total", "symbol", "xila_task_sleep"); got != 2 {
		t.Errorf("sleep calls = %v, want 2", got)
	}
	if got := sample(t, reg, "wasm_bridge_host_call_duration_seconds", "symbol", "xila_file_system_open"); got != 1 {
		t.Errorf("open duration samples = %v, want 1", got)
	}
}

func TestCollectors_RegisterTwice(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := New()
	if err := c.Register(reg); err != nil {
		t.Fatal(err)
	}
	if err := c.Register(reg); err == nil {
		t.Fatal("duplicate registration accepted")
	}

	c.Unregister(reg)
	if err := c.Register(reg); err != nil {
		t.Fatalf("Register after Unregister failed: %v", err)
	}
	if err := c.Register(nil); err != nil {
		t.Fatalf("nil registerer: %v", err)
	}
}
