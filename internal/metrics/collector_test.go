package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
)

func TestCounterRegistrationIsShared(t *testing.T) {
	r := NewRegistry()
	a := r.Counter("x_total", "help", `type="a"`)
	b := r.Counter("x_total", "help", `type="a"`)
	a.Inc()
	b.Add(2)
	if a.Value() != 3 {
		t.Errorf("expected shared counter value 3, got %d", a.Value())
	}
	if r.Counter("x_total", "help", `type="b"`).Value() != 0 {
		t.Error("different label sets must not share a counter")
	}
}

func TestKindMismatchPanics(t *testing.T) {
	r := NewRegistry()
	r.Counter("dup", "help", "")
	defer func() {
		if recover() == nil {
			t.Error("expected panic when reusing a counter name as a gauge")
		}
	}()
	r.Gauge("dup", "help", "")
}

func TestHandlerRendersPrometheusText(t *testing.T) {
	r := NewRegistry()
	r.Counter("frames_total", "Frames", `type="sources"`).Add(1)
	r.Counter("frames_total", "Frames", `type="message"`).Add(4)
	r.Gauge("conns", "Connections", "").Set(2)
	r.Histogram("latency_seconds", "Latency", "", []float64{5, 1}).Observe(2)

	rec := httptest.NewRecorder()
	r.Handler()(rec, httptest.NewRequest("GET", "/metrics", nil))
	body := rec.Body.String()

	for _, want := range []string{
		"# TYPE frames_total counter",
		`frames_total{type="message"} 4`,
		"conns 2",
		`latency_seconds_bucket{le="1"} 0`,
		`latency_seconds_bucket{le="5"} 1`,
		`latency_seconds_bucket{le="+Inf"} 1`,
		"latency_seconds_sum 2",
		"latency_seconds_count 1",
		"searchbot_uptime_seconds",
	} {
		if !strings.Contains(body, want) {
			t.Errorf("missing %q in:\n%s", want, body)
		}
	}
	if strings.Count(body, "# HELP frames_total") != 1 {
		t.Errorf("expected one HELP line per family:\n%s", body)
	}
	if strings.Index(body, `type="message"`) > strings.Index(body, `type="sources"`) {
		t.Errorf("series not sorted by labels:\n%s", body)
	}
	if strings.Index(body, "conns") > strings.Index(body, "frames_total") {
		t.Errorf("families not sorted by name:\n%s", body)
	}
}

func TestLabeledHelpers(t *testing.T) {
	before := FramesTotal("image").Value()
	FramesTotal("image").Inc()
	if FramesTotal("image").Value() != before+1 {
		t.Error("FramesTotal did not return the same counter")
	}
}
