package observability

import "testing"

func TestEnabledDefaultsOff(t *testing.T) {
	t.Setenv("OTEL_ENABLED", "")
	if enabled() {
		t.Fatal("tracing must be off when OTEL_ENABLED is unset")
	}
	t.Setenv("OTEL_ENABLED", "yes")
	if !enabled() {
		t.Fatal("OTEL_ENABLED=yes must enable tracing")
	}
	t.Setenv("OTEL_ENABLED", "off")
	if enabled() {
		t.Fatal("OTEL_ENABLED=off must disable tracing")
	}
}

func TestSampleRatioClamped(t *testing.T) {
	cases := []struct {
		raw  string
		want float64
	}{
		{"", 0.1},
		{"0.25", 0.25},
		{"2", 1},
		{"-1", 0},
		{"not-a-number", 0.1},
	}
	for _, tc := range cases {
		t.Setenv("OTEL_SAMPLER_RATIO", tc.raw)
		if got := sampleRatio(); got != tc.want {
			t.Fatalf("ratio %q: want=%v got=%v", tc.raw, tc.want, got)
		}
	}
}

func TestHeadersParsing(t *testing.T) {
	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "")
	if h := headers(); h != nil {
		t.Fatalf("empty env: want nil got %v", h)
	}

	t.Setenv("OTEL_EXPORTER_OTLP_HEADERS", "a=b, c = d ,malformed,=x,y=")
	h := headers()
	if len(h) != 2 || h["a"] != "b" || h["c"] != "d" {
		t.Fatalf("headers: got %v", h)
	}
}
