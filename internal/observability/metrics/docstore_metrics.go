package metrics

import (
	"context"
	"errors"
	"strings"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/smallbiznis/storeadmin/pkg/db"
	"github.com/smallbiznis/storeadmin/pkg/docstore"
)

const (
	StoreOutcomeOK          = "ok"
	StoreOutcomeNotFound    = "not_found"
	StoreOutcomeConflict    = "conflict"
	StoreOutcomeInvalid     = "invalid"
	StoreOutcomeAborted     = "aborted"
	StoreOutcomeUnavailable = "unavailable"
	StoreOutcomeCanceled    = "canceled"
	StoreOutcomeUnknown     = "unknown"
)

// DocstoreMetrics implements docstore.Observer on prometheus collectors.
type DocstoreMetrics struct {
	commits        *prometheus.CounterVec
	commitWrites   prometheus.Histogram
	chunkedCommits *prometheus.CounterVec
	chunks         prometheus.Counter
	transactions   *prometheus.CounterVec
	txAttempts     prometheus.Histogram
	subscriptions  prometheus.Gauge
}

var _ docstore.Observer = (*DocstoreMetrics)(nil)

var (
	docstoreMetricsOnce sync.Once
	docstoreMetrics     *DocstoreMetrics
)

// Docstore returns the process-wide docstore metrics registered on the default registerer.
func Docstore(cfg Config) *DocstoreMetrics {
	docstoreMetricsOnce.Do(func() {
		docstoreMetrics = newDocstoreMetrics(prometheus.DefaultRegisterer, cfg)
	})
	return docstoreMetrics
}

func newDocstoreMetrics(registerer prometheus.Registerer, cfg Config) *DocstoreMetrics {
	if registerer == nil {
		registerer = prometheus.DefaultRegisterer
	}
	serviceName := strings.TrimSpace(cfg.ServiceName)
	if serviceName == "" {
		serviceName = "storeadmin"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "unknown"
	}
	constLabels := prometheus.Labels{
		"service": serviceName,
		"env":     environment,
	}

	m := &DocstoreMetrics{
		commits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "storeadmin_docstore_commits_total",
			Help:        "Atomic document commits by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		commitWrites: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "storeadmin_docstore_commit_writes",
			Help:        "Writes per atomic commit.",
			Buckets:     []float64{1, 2, 5, 10, 25, 50, 100, 200, 400, 500},
			ConstLabels: constLabels,
		}),
		chunkedCommits: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "storeadmin_docstore_chunked_commits_total",
			Help:        "Chunked bulk commits by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		chunks: prometheus.NewCounter(prometheus.CounterOpts{
			Name:        "storeadmin_docstore_chunks_committed_total",
			Help:        "Chunks committed by chunked bulk writes.",
			ConstLabels: constLabels,
		}),
		transactions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name:        "storeadmin_docstore_transactions_total",
			Help:        "Read-modify-write transactions by outcome.",
			ConstLabels: constLabels,
		}, []string{"outcome"}),
		txAttempts: prometheus.NewHistogram(prometheus.HistogramOpts{
			Name:        "storeadmin_docstore_transaction_attempts",
			Help:        "Attempts needed per transaction, including contention retries.",
			Buckets:     []float64{1, 2, 3, 4, 5},
			ConstLabels: constLabels,
		}),
		subscriptions: prometheus.NewGauge(prometheus.GaugeOpts{
			Name:        "storeadmin_docstore_active_subscriptions",
			Help:        "Live query subscriptions currently open.",
			ConstLabels: constLabels,
		}),
	}

	registerer.MustRegister(
		m.commits,
		m.commitWrites,
		m.chunkedCommits,
		m.chunks,
		m.transactions,
		m.txAttempts,
		m.subscriptions,
	)
	return m
}

func (m *DocstoreMetrics) ObserveCommit(writes int, err error) {
	if m == nil {
		return
	}
	m.commits.WithLabelValues(ClassifyStoreOutcome(err)).Inc()
	if err == nil {
		m.commitWrites.Observe(float64(writes))
	}
}

func (m *DocstoreMetrics) ObserveChunked(_, committed int, err error) {
	if m == nil {
		return
	}
	m.chunkedCommits.WithLabelValues(ClassifyStoreOutcome(err)).Inc()
	m.chunks.Add(float64(committed))
}

func (m *DocstoreMetrics) ObserveTransaction(attempts int, err error) {
	if m == nil {
		return
	}
	m.transactions.WithLabelValues(ClassifyStoreOutcome(err)).Inc()
	m.txAttempts.Observe(float64(attempts))
}

func (m *DocstoreMetrics) SubscriptionOpened() {
	if m == nil {
		return
	}
	m.subscriptions.Inc()
}

func (m *DocstoreMetrics) SubscriptionClosed() {
	if m == nil {
		return
	}
	m.subscriptions.Dec()
}

// ClassifyStoreOutcome maps store errors to a low-cardinality label.
func ClassifyStoreOutcome(err error) string {
	switch {
	case err == nil:
		return StoreOutcomeOK
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return StoreOutcomeCanceled
	case errors.Is(err, docstore.ErrNotFound):
		return StoreOutcomeNotFound
	case errors.Is(err, docstore.ErrAlreadyExists):
		return StoreOutcomeConflict
	case errors.Is(err, docstore.ErrInvalidReference), errors.Is(err, docstore.ErrBatchTooLarge),
		errors.Is(err, docstore.ErrEmptyBatch):
		return StoreOutcomeInvalid
	case errors.Is(err, docstore.ErrAborted), db.IsContentionErr(err):
		return StoreOutcomeAborted
	case errors.Is(err, docstore.ErrUnavailable), errors.Is(err, docstore.ErrClosed), db.IsConnectionErr(err):
		return StoreOutcomeUnavailable
	default:
		return StoreOutcomeUnknown
	}
}
