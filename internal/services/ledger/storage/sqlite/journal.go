package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/platform/timeouts"
	"github.com/louisbranch/oversight/internal/services/ledger/core/filter"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

var (
	// ErrOutOfSync reports an entry that does not extend the journaled tail,
	// which happens when another writer appended to the same kind.
	ErrOutOfSync = errors.New("journal is out of sync with registry")
	// ErrAlreadyJournaled reports an entry whose seq or record id is taken.
	ErrAlreadyJournaled = errors.New("record is already journaled")
)

// Journal returns the registry journal for kind.
func (s *Store) Journal(kind string) registry.Journal {
	return kindJournal{store: s, kind: kind}
}

type kindJournal struct {
	store *Store
	kind  string
}

// Append writes entry as the next row of the kind. The registry holds its
// append lock for the duration, so the write is bounded by JournalWrite.
func (j kindJournal) Append(entry registry.Entry) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeouts.JournalWrite)
	defer cancel()
	return j.store.AppendEntry(ctx, j.kind, entry)
}

// AppendEntry inserts entry after checking it extends the stored tail of kind.
func (s *Store) AppendEntry(ctx context.Context, kind string, entry registry.Entry) error {
	if err := s.ready(ctx); err != nil {
		return err
	}
	if entry.Kind != kind {
		return fmt.Errorf("entry kind %q does not match journal %q", entry.Kind, kind)
	}

	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	var lastSeq uint64
	var lastHash string
	err = tx.QueryRowContext(ctx,
		"SELECT seq, record_hash FROM ledger_records WHERE kind = ? ORDER BY seq DESC LIMIT 1",
		kind,
	).Scan(&lastSeq, &lastHash)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return fmt.Errorf("read journal tail kind=%s: %w", kind, err)
	}
	if entry.Seq != lastSeq+1 {
		return fmt.Errorf("%w: kind=%s expected seq %d, got %d", ErrOutOfSync, kind, lastSeq+1, entry.Seq)
	}
	if lastSeq > 0 && entry.PrevHash != lastHash {
		return fmt.Errorf("%w: kind=%s seq=%d prev hash does not match tail", ErrOutOfSync, kind, entry.Seq)
	}

	_, err = tx.ExecContext(ctx, `
INSERT INTO ledger_records (kind, seq, record_id, prev_hash, record_hash, created_at, payload_json, appended_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		kind,
		entry.Seq,
		entry.RecordID,
		entry.PrevHash,
		entry.Hash,
		entry.CreatedAt,
		string(entry.Payload),
		toMillis(s.now()),
	)
	if err != nil {
		if isConstraintError(err) {
			return fmt.Errorf("%w: kind=%s record_id=%s", ErrAlreadyJournaled, kind, entry.RecordID)
		}
		return fmt.Errorf("insert record kind=%s seq=%d: %w", kind, entry.Seq, err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// ListEntries returns up to limit entries of kind with seq greater than
// afterSeq, in seq order.
func (s *Store) ListEntries(ctx context.Context, kind string, afterSeq uint64, limit int) ([]registry.Entry, error) {
	if err := s.ready(ctx); err != nil {
		return nil, err
	}
	if limit <= 0 {
		return nil, fmt.Errorf("limit must be greater than zero")
	}

	rows, err := s.sqlDB.QueryContext(ctx, `
SELECT kind, seq, record_id, prev_hash, record_hash, created_at, payload_json
FROM ledger_records
WHERE kind = ? AND seq > ?
ORDER BY seq
LIMIT ?`, kind, afterSeq, limit)
	if err != nil {
		return nil, fmt.Errorf("list entries kind=%s: %w", kind, err)
	}
	return scanEntries(rows)
}

// Entries returns every entry of kind in seq order.
func (s *Store) Entries(ctx context.Context, kind string) ([]registry.Entry, error) {
	var all []registry.Entry
	var lastSeq uint64
	for {
		page, err := s.ListEntries(ctx, kind, lastSeq, pageSize)
		if err != nil {
			return nil, err
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
		lastSeq = page[len(page)-1].Seq
	}
}

// FilterEntries returns the page of entries of kind matching cond, in seq
// order. q bounds created_at and pages the matches the way registry List
// does; q.Filter is ignored, build cond with filter.ToSQL over Columns.
func (s *Store) FilterEntries(ctx context.Context, kind string, cond filter.SQLCondition, q registry.Query) (registry.EntryPage, error) {
	if err := s.ready(ctx); err != nil {
		return registry.EntryPage{}, err
	}

	where := "kind = ?"
	args := []any{kind}
	if q.From != 0 {
		where += " AND created_at >= ?"
		args = append(args, q.From)
	}
	if q.To != 0 {
		where += " AND created_at <= ?"
		args = append(args, q.To)
	}
	if !cond.Empty() {
		where += " AND (" + cond.Clause + ")"
		args = append(args, cond.Params...)
	}

	// Count and page inside one transaction so Total describes the rows read.
	tx, err := s.sqlDB.BeginTx(ctx, nil)
	if err != nil {
		return registry.EntryPage{}, fmt.Errorf("begin filter kind=%s: %w", kind, err)
	}
	defer func() { _ = tx.Rollback() }()

	var page registry.EntryPage
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM ledger_records WHERE "+where, args...).Scan(&page.Total); err != nil {
		return registry.EntryPage{}, fmt.Errorf("count entries kind=%s: %w", kind, err)
	}

	limit := -1
	if q.Limit > 0 {
		limit = q.Limit
	}
	pageArgs := append(append([]any(nil), args...), limit, q.Offset)
	rows, err := tx.QueryContext(ctx, `
SELECT kind, seq, record_id, prev_hash, record_hash, created_at, payload_json
FROM ledger_records
WHERE `+where+`
ORDER BY seq
LIMIT ? OFFSET ?`, pageArgs...)
	if err != nil {
		return registry.EntryPage{}, fmt.Errorf("filter entries kind=%s: %w", kind, err)
	}
	if page.Entries, err = scanEntries(rows); err != nil {
		return registry.EntryPage{}, err
	}
	return page, nil
}

// Columns maps record filter fields onto journal columns. Payload fields
// are read with json_extract using the JSON keys in paths; a key omitted
// from the stored payload reads as the empty string, as it does in memory.
func Columns(paths map[string]string) filter.Columns {
	columns := filter.Columns{
		registry.FieldID:        "record_id",
		registry.FieldSeq:       "seq",
		registry.FieldCreatedAt: "created_at",
	}
	for field, key := range paths {
		columns[field] = fmt.Sprintf("COALESCE(json_extract(payload_json, '$.%s'), '')", key)
	}
	return columns
}

// VerifyLinkage walks the journal of kind and checks seq contiguity and that
// each row's prev_hash is the previous row's hash, starting from genesis.
// Record hashes are not recomputed here; the registry does that.
func (s *Store) VerifyLinkage(ctx context.Context, kind, genesis string) error {
	var lastSeq uint64
	prev := genesis
	index := 0
	for {
		entries, err := s.ListEntries(ctx, kind, lastSeq, pageSize)
		if err != nil {
			return err
		}
		for _, entry := range entries {
			if entry.Seq != lastSeq+1 {
				return brokenLink(kind, index, entry, fmt.Sprintf("expected seq %d, got %d", lastSeq+1, entry.Seq))
			}
			if entry.PrevHash != prev {
				return brokenLink(kind, index, entry, "prev hash does not match previous record")
			}
			prev = entry.Hash
			lastSeq = entry.Seq
			index++
		}
		if len(entries) < pageSize {
			return nil
		}
	}
}

func brokenLink(kind string, index int, entry registry.Entry, reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeChainBroken,
		fmt.Sprintf("journal %s seq=%d: %s", kind, entry.Seq, reason),
		map[string]string{
			"kind":      kind,
			"index":     strconv.Itoa(index),
			"seq":       strconv.FormatUint(entry.Seq, 10),
			"record_id": entry.RecordID,
		},
	)
}

func scanEntries(rows *sql.Rows) ([]registry.Entry, error) {
	defer rows.Close()

	var entries []registry.Entry
	for rows.Next() {
		var entry registry.Entry
		var payload string
		if err := rows.Scan(
			&entry.Kind,
			&entry.Seq,
			&entry.RecordID,
			&entry.PrevHash,
			&entry.Hash,
			&entry.CreatedAt,
			&payload,
		); err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entry.Payload = []byte(payload)
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
