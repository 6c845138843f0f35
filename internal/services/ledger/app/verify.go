package app

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
)

// Verification is the integrity result of one registry.
type Verification struct {
	Kind    string `json:"kind"`
	Records int    `json:"records"`
	Head    string `json:"head"`
	// Err is the first violation found, nil when the chain verifies.
	Err error `json:"-"`
}

// OK reports whether the chain verified.
func (v Verification) OK() bool { return v.Err == nil }

// Verify checks every registry chain in memory and, when journaled, the
// stored linkage of every kind.
func (l *Ledger) Verify(ctx context.Context) []Verification {
	ctx, span := l.tracer.Start(ctx, "ledger.verify")
	defer span.End()

	results := make([]Verification, 0, len(l.views()))
	failed := 0
	for _, view := range l.views() {
		result := Verification{
			Kind:    view.Kind(),
			Records: view.Len(),
			Head:    view.HeadHash(),
		}
		result.Err = view.VerifyChainIntegrity()
		if result.Err == nil && l.store != nil {
			result.Err = l.store.VerifyLinkage(ctx, view.Kind(), view.Hasher().Genesis())
			if result.Err != nil {
				l.metrics.ChainVerified(view.Kind(), result.Err)
			}
		}
		if result.Err != nil {
			failed++
			span.RecordError(result.Err, trace.WithAttributes(attribute.String("ledger.kind", view.Kind())))
		}
		results = append(results, result)
	}
	span.SetAttributes(attribute.Int("ledger.verify.failed", failed))
	return results
}

// FirstFailure returns the first failed verification error, or nil.
func FirstFailure(results []Verification) error {
	for _, result := range results {
		if result.Err != nil {
			return result.Err
		}
	}
	return nil
}

// Stats summarizes one registry.
type Stats struct {
	Kind     string         `json:"kind"`
	Records  int            `json:"records"`
	Head     string         `json:"head"`
	Hasher   string         `json:"hasher"`
	Distinct map[string]int `json:"distinct"`
}

// Stats returns a summary of kind, or of every kind when kind is empty.
func (l *Ledger) Stats(kind string) ([]Stats, error) {
	views := l.views()
	if kind != "" {
		view, err := l.view(kind)
		if err != nil {
			return nil, err
		}
		views = []registryView{view}
	}

	out := make([]Stats, 0, len(views))
	for _, view := range views {
		stats := Stats{
			Kind:     view.Kind(),
			Records:  view.Len(),
			Head:     view.HeadHash(),
			Hasher:   view.Hasher().Name(),
			Distinct: map[string]int{},
		}
		for _, index := range view.IndexNames() {
			n, err := view.CountDistinct(index)
			if err != nil {
				return nil, err
			}
			stats.Distinct[index] = n
		}
		out = append(out, stats)
	}
	return out, nil
}

// ErrorCode returns the domain code of a verification failure, or empty.
func (v Verification) ErrorCode() apperrors.Code {
	return apperrors.CodeOf(v.Err)
}
