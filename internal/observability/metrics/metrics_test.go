package metrics

import (
	"context"
	"testing"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("store_id", "acme"),
		attribute.String("customer_email", "a@example.com"),
		attribute.String("wizard_kind", "faq"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "store_id" && attrs[1].Key != "store_id" {
		t.Fatalf("expected store_id to be retained")
	}
	if attrs[0].Key != "wizard_kind" && attrs[1].Key != "wizard_kind" {
		t.Fatalf("expected wizard_kind to be retained")
	}
}

func TestRecordersTolerateNilMetrics(t *testing.T) {
	var m *Metrics
	m.RecordWizardRun(context.Background(), "faq", "analyze", "ok")
	m.RecordAICall(context.Background(), "gemini", "ok", time.Second)
	m.RecordRateLimitDenied(context.Background(), "acme", "wizard", "exhausted")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{ServiceName: "storeadmin"}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordAICall(context.Background(), "gemini", "ok", 20*time.Millisecond)
}
