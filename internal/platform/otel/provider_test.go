package otel_test

import (
	"context"
	"errors"
	"testing"

	"github.com/mcpsuite/mcpsuite/internal/platform/otel"
)

func TestSetup_NoopWhenEndpointEmpty(t *testing.T) {
	t.Setenv("MCPSUITE_OTEL_ENDPOINT", "")
	t.Setenv("MCPSUITE_OTEL_ENABLED", "")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_NoopWhenExplicitlyDisabled(t *testing.T) {
	t.Setenv("MCPSUITE_OTEL_ENDPOINT", "http://localhost:4318")
	t.Setenv("MCPSUITE_OTEL_ENABLED", "false")

	shutdown, err := otel.Setup(context.Background(), "test-service")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestSetup_RejectsBadSampleRatio(t *testing.T) {
	t.Setenv("MCPSUITE_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("MCPSUITE_OTEL_SAMPLE_RATIO", "lots")

	if _, err := otel.Setup(context.Background(), "ratio-test"); err == nil {
		t.Fatal("expected sample ratio parse error")
	}
}

func TestSetup_ShutdownFlushesCleanly(t *testing.T) {
	// Non-routable address so no export happens.
	t.Setenv("MCPSUITE_OTEL_ENDPOINT", "http://192.0.2.1:4318")
	t.Setenv("MCPSUITE_OTEL_SAMPLE_RATIO", "0.5")

	shutdown, err := otel.Setup(context.Background(), "flush-test")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := shutdown(context.Background()); err != nil {
		t.Fatalf("shutdown error: %v", err)
	}
}

func TestStartSpanFinishAcceptsError(t *testing.T) {
	ctx, finish := otel.StartSpan(context.Background(), "tool.test")
	if ctx == nil {
		t.Fatal("expected span context")
	}
	finish(errors.New("boom"))
}
