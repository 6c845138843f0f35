package registry

import (
	"fmt"
	"sort"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/core/filter"
)

// Filter field names available on every kind, in addition to its indexes
// other than creator.
const (
	FieldID        = "id"
	FieldSeq       = "seq"
	FieldCreatedAt = "created_at"
	FieldActor     = "actor"
)

// Query selects a page of records in seq order.
type Query struct {
	// From and To bound CreatedAt inclusively. Zero leaves a side open.
	From int64
	To   int64
	// Offset skips matching records; Limit caps the page, zero for no cap.
	Offset int
	Limit  int
	// Filter is an AIP-160 expression over FilterFields.
	Filter string
}

// Page is one slice of a query result. Total counts every match before
// Offset and Limit were applied.
type Page[P Payload[P]] struct {
	Records []Record[P]
	Total   int
}

// Get returns the record with the given identifier.
func (r *Registry[P]) Get(id string) (Record[P], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	pos, ok := r.byID[id]
	if !ok {
		return Record[P]{}, apperrors.WithMetadata(
			apperrors.CodeNotFound,
			fmt.Sprintf("%s: record %s not found", r.kind, id),
			map[string]string{"kind": r.kind, "record_id": id},
		)
	}
	return r.records[pos].clone(), nil
}

// ListBy returns the records whose index key equals key, in seq order.
func (r *Registry[P]) ListBy(index, key string) ([]Record[P], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.listByLocked(index, key)
}

func (r *Registry[P]) listByLocked(index, key string) ([]Record[P], error) {
	keys, ok := r.byIndex[index]
	if !ok {
		return nil, r.unknownIndex(index)
	}
	positions := keys[key]
	out := make([]Record[P], len(positions))
	for i, pos := range positions {
		out[i] = r.records[pos].clone()
	}
	return out, nil
}

func (r *Registry[P]) unknownIndex(index string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidInput,
		fmt.Sprintf("%s: unknown index %q", r.kind, index),
		map[string]string{"field": "index", "reason": fmt.Sprintf("%q is not an index of %s", index, r.kind)},
	)
}

// List returns the page of records selected by q.
func (r *Registry[P]) List(q Query) (Page[P], error) {
	if err := ValidateQuery(r.kind, q); err != nil {
		return Page[P]{}, err
	}
	parsed, err := filter.Parse(q.Filter, r.FilterFields())
	if err != nil {
		return Page[P]{}, apperrors.WrapWithMetadata(
			apperrors.CodeInvalidInput,
			fmt.Sprintf("%s: %v", r.kind, err),
			map[string]string{"field": "filter", "reason": err.Error()},
			err,
		)
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	page := Page[P]{}
	for _, rec := range r.records {
		if q.From != 0 && rec.CreatedAt < q.From {
			continue
		}
		if q.To != 0 && rec.CreatedAt > q.To {
			continue
		}
		matched, err := filter.Evaluate(parsed, r.resolver(rec))
		if err != nil {
			return Page[P]{}, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("%s: %v", r.kind, err), err)
		}
		if !matched {
			continue
		}
		page.Total++
		if page.Total <= q.Offset {
			continue
		}
		if q.Limit > 0 && len(page.Records) >= q.Limit {
			continue
		}
		page.Records = append(page.Records, rec.clone())
	}
	return page, nil
}

// ValidateQuery rejects negative paging values and inverted windows with
// INVALID_INPUT.
func ValidateQuery(kind string, q Query) error {
	reason := ""
	field := ""
	switch {
	case q.Offset < 0:
		field, reason = "offset", "must not be negative"
	case q.Limit < 0:
		field, reason = "limit", "must not be negative"
	case q.From < 0 || q.To < 0:
		field, reason = "window", "bounds must not be negative"
	case q.From != 0 && q.To != 0 && q.From > q.To:
		field, reason = "window", "from must not be after to"
	default:
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeInvalidInput,
		fmt.Sprintf("%s: query %s %s", kind, field, reason),
		map[string]string{"field": field, "reason": reason},
	)
}

// FilterFields returns the filter fields this registry understands.
func (r *Registry[P]) FilterFields() filter.Fields {
	fields := filter.Fields{
		FieldID:        filter.FieldString,
		FieldSeq:       filter.FieldInt,
		FieldCreatedAt: filter.FieldInt,
		FieldActor:     filter.FieldString,
	}
	for _, idx := range r.indexes {
		if idx.Name != IndexCreator {
			fields[idx.Name] = filter.FieldString
		}
	}
	return fields
}

func (r *Registry[P]) resolver(rec Record[P]) filter.Resolver {
	return func(name string) (any, bool) {
		switch name {
		case FieldID:
			return rec.ID, true
		case FieldSeq:
			return rec.Seq, true
		case FieldCreatedAt:
			return rec.CreatedAt, true
		case FieldActor:
			return rec.Payload.ActorKey(), true
		}
		for _, idx := range r.indexes {
			if idx.Name == name {
				return idx.Key(rec.Payload), true
			}
		}
		return nil, false
	}
}

// Len returns the number of records.
func (r *Registry[P]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.records)
}

// HeadHash returns the hash of the last record, or the genesis hash when the
// registry is empty.
func (r *Registry[P]) HeadHash() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.head
}

// CountDistinct returns the number of distinct keys in an index.
func (r *Registry[P]) CountDistinct(index string) (int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys, ok := r.byIndex[index]
	if !ok {
		return 0, r.unknownIndex(index)
	}
	return len(keys), nil
}

// Counts returns the number of records per key of an index.
func (r *Registry[P]) Counts(index string) (map[string]int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	keys, ok := r.byIndex[index]
	if !ok {
		return nil, r.unknownIndex(index)
	}
	out := make(map[string]int, len(keys))
	for key, positions := range keys {
		out[key] = len(positions)
	}
	return out, nil
}

// Snapshot returns a copy of every record in seq order.
func (r *Registry[P]) Snapshot() []Record[P] {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneRecords(r.records)
}

// IndexNames returns the configured index names, sorted.
func (r *Registry[P]) IndexNames() []string {
	names := make([]string, 0, len(r.indexes))
	for _, idx := range r.indexes {
		names = append(names, idx.Name)
	}
	sort.Strings(names)
	return names
}
