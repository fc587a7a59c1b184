package observability

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/tbourn/settlement-showcase/internal/config"
)

func preserveOTelGlobals(t *testing.T) {
	t.Helper()
	prevTP := otel.GetTracerProvider()
	prevProp := otel.GetTextMapPropagator()
	t.Cleanup(func() {
		otel.SetTracerProvider(prevTP)
		otel.SetTextMapPropagator(prevProp)
	})
}

// inMemory swaps the OTLP exporter for an in-memory one.
func inMemory(t *testing.T) *tracetest.InMemoryExporter {
	t.Helper()
	exp := tracetest.NewInMemoryExporter()
	orig := newExporter
	newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) { return exp, nil }
	t.Cleanup(func() { newExporter = orig })
	return exp
}

func enabled(name string) config.OTELConfig {
	return config.OTELConfig{Enabled: true, Insecure: true, Endpoint: "localhost:4317", ServiceName: name, SampleRatio: 1}
}

func TestSetup_Disabled_NoOp(t *testing.T) {
	preserveOTelGlobals(t)
	prevTP := otel.GetTracerProvider()

	shutdown, err := Setup(context.Background(), config.OTELConfig{Enabled: false, ServiceName: "svc"}, "v0")
	if err != nil || shutdown == nil {
		t.Fatalf("shutdown=%v err=%v", shutdown, err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("no-op shutdown: %v", err)
	}
	if otel.GetTracerProvider() != prevTP {
		t.Fatalf("disabled setup must not replace the provider")
	}
}

func TestSetup_ExportsSpans(t *testing.T) {
	preserveOTelGlobals(t)
	exp := inMemory(t)

	shutdown, err := Setup(context.Background(), enabled("settlement-test"), "v1.2.3")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	if _, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider); !ok {
		t.Fatalf("expected *sdktrace.TracerProvider")
	}

	_, span := otel.Tracer("services/CheckoutService").Start(context.Background(), "Begin")
	span.End()

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	if err := shutdown(ctx); err != nil {
		t.Fatalf("shutdown: %v", err)
	}

	spans := exp.GetSpans()
	if len(spans) != 1 || spans[0].Name != "Begin" {
		t.Fatalf("spans=%v", spans)
	}
	var service string
	for _, kv := range spans[0].Resource.Attributes() {
		if kv.Key == "service.name" {
			service = kv.Value.AsString()
		}
	}
	if service != "settlement-test" {
		t.Fatalf("service.name=%q", service)
	}
}

func TestSetup_InstallsPropagator(t *testing.T) {
	preserveOTelGlobals(t)
	inMemory(t)

	shutdown, err := Setup(context.Background(), enabled("svc"), "v1")
	if err != nil {
		t.Fatalf("setup: %v", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	ctx, span := otel.Tracer("test").Start(context.Background(), "outbound")
	defer span.End()
	carrier := propagation.MapCarrier{}
	otel.GetTextMapPropagator().Inject(ctx, carrier)
	if carrier.Get("traceparent") == "" {
		t.Fatalf("traceparent not injected: %v", carrier)
	}
}

func TestSetup_RealExporter_LazyDial(t *testing.T) {
	preserveOTelGlobals(t)

	// The gRPC client connects lazily, so a canceled context still works.
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	for _, insecure := range []bool{true, false} {
		cfg := enabled("svc")
		cfg.Insecure = insecure
		shutdown, err := Setup(ctx, cfg, "v0")
		if err != nil {
			t.Fatalf("insecure=%v: %v", insecure, err)
		}
		sctx, scancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
		_ = shutdown(sctx)
		scancel()
	}
}

func TestSetup_Errors_LeaveGlobalsIntact(t *testing.T) {
	preserveOTelGlobals(t)

	cases := map[string]func(t *testing.T){
		"exporter": func(t *testing.T) {
			orig := newExporter
			newExporter = func(context.Context, config.OTELConfig) (sdktrace.SpanExporter, error) {
				return nil, errors.New("boom-exporter")
			}
			t.Cleanup(func() { newExporter = orig })
		},
		"resource": func(t *testing.T) {
			inMemory(t)
			orig := newResource
			newResource = func(context.Context, string, string) (*resource.Resource, error) {
				return nil, errors.New("boom-resource")
			}
			t.Cleanup(func() { newResource = orig })
		},
	}
	for name, arrange := range cases {
		t.Run(name, func(t *testing.T) {
			arrange(t)
			prevTP := otel.GetTracerProvider()
			prevProp := otel.GetTextMapPropagator()

			if _, err := Setup(context.Background(), enabled("svc"), "v0"); err == nil {
				t.Fatalf("expected error")
			}
			if otel.GetTracerProvider() != prevTP || otel.GetTextMapPropagator() != prevProp {
				t.Fatalf("globals changed on failure")
			}
		})
	}
}

func TestSampler_Clamps(t *testing.T) {
	cases := map[float64]string{
		-1:  "ParentBased{root:AlwaysOffSampler",
		0:   "ParentBased{root:AlwaysOffSampler",
		0.5: "ParentBased{root:TraceIDRatioBased{0.5}",
		1:   "ParentBased{root:AlwaysOnSampler",
		7:   "ParentBased{root:AlwaysOnSampler",
	}
	for ratio, prefix := range cases {
		got := Sampler(ratio).Description()
		if len(got) < len(prefix) || got[:len(prefix)] != prefix {
			t.Fatalf("ratio %v: %q", ratio, got)
		}
	}
}
