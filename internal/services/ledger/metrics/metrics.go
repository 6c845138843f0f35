// Package metrics exports ledger registry activity as Prometheus metrics.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
)

const namespace = "oversight_ledger"

// Metrics records appends, rejections and verification results per kind.
// It implements registry.Observer.
type Metrics struct {
	// Committed records by kind
	Appends *prometheus.CounterVec

	// Rejected appends by kind and error code
	Rejections *prometheus.CounterVec

	// Sequence number of the chain head by kind
	HeadSeq *prometheus.GaugeVec

	// Verification runs by kind and result ("ok", or the failing code)
	Verifications *prometheus.CounterVec
}

// New creates the ledger metrics and registers them with reg. A nil reg
// registers with the default Prometheus registry.
func New(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)
	return &Metrics{
		Appends: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "appends_total",
			Help:      "Total records committed to a registry",
		}, []string{"kind"}),

		Rejections: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "rejections_total",
			Help:      "Total appends rejected by kind and error code",
		}, []string{"kind", "code"}),

		HeadSeq: factory.NewGaugeVec(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "head_seq",
			Help:      "Sequence number of the latest record in each registry",
		}, []string{"kind"}),

		Verifications: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "verifications_total",
			Help:      "Chain verification runs by kind and result",
		}, []string{"kind", "result"}),
	}
}

// RecordAppended counts a committed record and moves the head gauge.
func (m *Metrics) RecordAppended(kind string, seq uint64) {
	if m == nil {
		return
	}
	m.Appends.WithLabelValues(kind).Inc()
	m.HeadSeq.WithLabelValues(kind).Set(float64(seq))
}

// RecordRejected counts a rejected append.
func (m *Metrics) RecordRejected(kind string, code apperrors.Code) {
	if m == nil {
		return
	}
	m.Rejections.WithLabelValues(kind, string(code)).Inc()
}

// ChainVerified counts a verification run. A nil err is reported as "ok".
func (m *Metrics) ChainVerified(kind string, err error) {
	if m == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = string(apperrors.CodeOf(err))
	}
	m.Verifications.WithLabelValues(kind, result).Inc()
}

// SetHead sets the head gauge, e.g. after replaying a journal.
func (m *Metrics) SetHead(kind string, seq uint64) {
	if m == nil {
		return
	}
	m.HeadSeq.WithLabelValues(kind).Set(float64(seq))
}
