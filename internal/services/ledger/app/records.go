package app

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"

	"go.opentelemetry.io/otel/attribute"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/core/filter"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/acknowledgement"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/intent"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/report"
	storagesqlite "github.com/louisbranch/oversight/internal/services/ledger/storage/sqlite"
)

// RecordPage is a kind-independent page of records.
type RecordPage struct {
	Records []any `json:"records"`
	Total   int   `json:"total"`
}

func toPage[P registry.Payload[P]](page registry.Page[P]) RecordPage {
	out := RecordPage{Records: make([]any, 0, len(page.Records)), Total: page.Total}
	for _, rec := range page.Records {
		out.Records = append(out.Records, rec)
	}
	return out
}

func unknownKind(kind string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidInput,
		fmt.Sprintf("unknown kind %q", kind),
		map[string]string{"field": "kind", "reason": "must be intent, report or acknowledgement"},
	)
}

// Get returns the record with id from the registry of kind.
func (l *Ledger) Get(kind, id string) (any, error) {
	switch kind {
	case intent.Kind:
		return l.Intents.Get(id)
	case report.Kind:
		return l.Reports.Get(id)
	case acknowledgement.Kind:
		return l.Acknowledgements.Get(id)
	default:
		return nil, unknownKind(kind)
	}
}

// List returns a page of records of kind selected by q.
func (l *Ledger) List(kind string, q registry.Query) (RecordPage, error) {
	switch kind {
	case intent.Kind:
		page, err := l.Intents.List(q)
		return toPage(page), err
	case report.Kind:
		page, err := l.Reports.List(q)
		return toPage(page), err
	case acknowledgement.Kind:
		page, err := l.Acknowledgements.List(q)
		return toPage(page), err
	default:
		return RecordPage{}, unknownKind(kind)
	}
}

// ListJournal answers q against the SQLite journal of kind instead of the
// in-memory registry. Windows, paging and filters behave as in List.
func (l *Ledger) ListJournal(ctx context.Context, kind string, q registry.Query) (_ registry.EntryPage, err error) {
	ctx, span := l.tracer.Start(ctx, "ledger.list_journal")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("ledger.kind", kind))

	if l.store == nil {
		return registry.EntryPage{}, apperrors.WithMetadata(
			apperrors.CodeInvalidInput,
			"ledger has no journal",
			map[string]string{"field": "db_path", "reason": "is required to query the journal"},
		)
	}

	var fields filter.Fields
	var paths map[string]string
	switch kind {
	case intent.Kind:
		fields, paths = l.Intents.FilterFields(), intent.PayloadPaths()
	case report.Kind:
		fields, paths = l.Reports.FilterFields(), report.PayloadPaths()
	case acknowledgement.Kind:
		fields, paths = l.Acknowledgements.FilterFields(), acknowledgement.PayloadPaths()
	default:
		return registry.EntryPage{}, unknownKind(kind)
	}
	if err := registry.ValidateQuery(kind, q); err != nil {
		return registry.EntryPage{}, err
	}

	parsed, err := filter.Parse(q.Filter, fields)
	if err != nil {
		return registry.EntryPage{}, invalidFilter(err)
	}
	cond, err := filter.ToSQL(parsed, storagesqlite.Columns(paths))
	if err != nil {
		return registry.EntryPage{}, invalidFilter(err)
	}
	return l.store.FilterEntries(ctx, kind, cond, q)
}

func invalidFilter(err error) error {
	return apperrors.WrapWithMetadata(
		apperrors.CodeInvalidInput,
		fmt.Sprintf("filter: %v", err),
		map[string]string{"field": "filter", "reason": err.Error()},
		err,
	)
}

// Append decodes a JSON input for kind and appends it to that registry.
// Unknown JSON fields are rejected.
func (l *Ledger) Append(ctx context.Context, kind string, input []byte) (_ any, err error) {
	_, span := l.tracer.Start(ctx, "ledger.append")
	defer func() { endSpan(span, err) }()
	span.SetAttributes(attribute.String("ledger.kind", kind))

	switch kind {
	case intent.Kind:
		var in intent.Input
		if err := decodeInput(input, &in); err != nil {
			return nil, err
		}
		rec, err := l.Intents.Issue(in)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("ledger.record_id", rec.ID), attribute.Int64("ledger.seq", int64(rec.Seq)))
		return rec, nil
	case report.Kind:
		var in report.Input
		if err := decodeInput(input, &in); err != nil {
			return nil, err
		}
		rec, err := l.Reports.File(in)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("ledger.record_id", rec.ID), attribute.Int64("ledger.seq", int64(rec.Seq)))
		return rec, nil
	case acknowledgement.Kind:
		var in acknowledgement.Input
		if err := decodeInput(input, &in); err != nil {
			return nil, err
		}
		rec, err := l.Acknowledgements.Decide(in)
		if err != nil {
			return nil, err
		}
		span.SetAttributes(attribute.String("ledger.record_id", rec.ID), attribute.Int64("ledger.seq", int64(rec.Seq)))
		return rec, nil
	default:
		return nil, unknownKind(kind)
	}
}

func decodeInput(data []byte, target any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(target); err != nil {
		return apperrors.WrapWithMetadata(
			apperrors.CodeInvalidInput,
			fmt.Sprintf("decode input: %v", err),
			map[string]string{"field": "input", "reason": err.Error()},
			err,
		)
	}
	return nil
}
