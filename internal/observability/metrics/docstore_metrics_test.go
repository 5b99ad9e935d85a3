package metrics

import (
	"errors"
	"fmt"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
)

func TestClassifyStoreOutcome(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want string
	}{
		{name: "ok", err: nil, want: StoreOutcomeOK},
		{name: "not_found", err: fmt.Errorf("get: %w", docstore.ErrNotFound), want: StoreOutcomeNotFound},
		{name: "exists", err: docstore.ErrAlreadyExists, want: StoreOutcomeConflict},
		{name: "too_large", err: docstore.ErrBatchTooLarge, want: StoreOutcomeInvalid},
		{name: "aborted", err: docstore.ErrAborted, want: StoreOutcomeAborted},
		{name: "closed", err: docstore.ErrClosed, want: StoreOutcomeUnavailable},
		{name: "unknown", err: errors.New("boom"), want: StoreOutcomeUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifyStoreOutcome(tc.err); got != tc.want {
				t.Fatalf("expected outcome %q, got %q", tc.want, got)
			}
		})
	}
}

func TestDocstoreMetricsRecordsCommitsAndSubscriptions(t *testing.T) {
	registry := prometheus.NewRegistry()
	m := newDocstoreMetrics(registry, Config{ServiceName: "storeadmin", Environment: "test"})

	m.ObserveCommit(3, nil)
	m.ObserveCommit(1, docstore.ErrNotFound)
	m.ObserveChunked(3, 2, &docstore.ChunkError{Index: 2, Total: 3, Committed: 2, Err: docstore.ErrAborted})
	m.SubscriptionOpened()
	m.SubscriptionOpened()
	m.SubscriptionClosed()

	if got := testutil.ToFloat64(m.commits.WithLabelValues(StoreOutcomeOK)); got != 1 {
		t.Fatalf("expected 1 ok commit, got %v", got)
	}
	if got := testutil.ToFloat64(m.commits.WithLabelValues(StoreOutcomeNotFound)); got != 1 {
		t.Fatalf("expected 1 not_found commit, got %v", got)
	}
	if got := testutil.ToFloat64(m.chunkedCommits.WithLabelValues(StoreOutcomeAborted)); got != 1 {
		t.Fatalf("expected chunk error to classify as aborted, got %v", got)
	}
	if got := testutil.ToFloat64(m.chunks); got != 2 {
		t.Fatalf("expected 2 committed chunks, got %v", got)
	}

	families, err := registry.Gather()
	if err != nil {
		t.Fatalf("gather: %v", err)
	}
	gauge := findMetric(families, "storeadmin_docstore_active_subscriptions")
	if gauge == nil || gauge.GetGauge().GetValue() != 1 {
		t.Fatalf("expected one active subscription, got %+v", gauge)
	}
	for _, label := range gauge.GetLabel() {
		if label.GetName() == "env" && label.GetValue() != "test" {
			t.Fatalf("expected env label test, got %q", label.GetValue())
		}
	}
}

func findMetric(families []*dto.MetricFamily, name string) *dto.Metric {
	for _, family := range families {
		if family.GetName() != name {
			continue
		}
		if len(family.GetMetric()) == 0 {
			return nil
		}
		return family.GetMetric()[0]
	}
	return nil
}
