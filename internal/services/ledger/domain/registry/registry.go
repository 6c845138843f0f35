package registry

import (
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
)

// Config describes one registry kind.
type Config[P Payload[P]] struct {
	// Kind names the registry, e.g. "intent". It keys the journal rows.
	Kind string
	// IDPrefix is the leading component of derived record identifiers.
	IDPrefix string
	// Hasher computes chain hashes. Defaults to chain.Rolling.
	Hasher chain.Hasher
	// Indexes are the secondary lookups maintained on append.
	Indexes []Index[P]
	// Rules run in order against committed state before a record is linked.
	Rules []Rule[P]
	// Journal, when set, persists each record before it becomes visible.
	Journal Journal
	// Observer, when set, is notified of appends, rejections and
	// verification results.
	Observer Observer
}

// Registry is an append-only, hash-chained store for one record kind.
type Registry[P Payload[P]] struct {
	kind     string
	prefix   string
	hasher   chain.Hasher
	indexes  []Index[P]
	rules    []Rule[P]
	journal  Journal
	observer Observer

	mu      sync.RWMutex
	records []Record[P]
	byID    map[string]int
	byIndex indexSet
	head    string
}

// New builds an empty registry from cfg.
func New[P Payload[P]](cfg Config[P]) (*Registry[P], error) {
	kind := strings.TrimSpace(cfg.Kind)
	if kind == "" {
		return nil, invalidConfig("kind", "is required")
	}
	prefix := strings.TrimSpace(cfg.IDPrefix)
	if prefix == "" {
		return nil, invalidConfig("id_prefix", "is required")
	}

	seen := make(map[string]bool, len(cfg.Indexes))
	for _, idx := range cfg.Indexes {
		if idx.Name == "" || idx.Key == nil {
			return nil, invalidConfig("indexes", "every index needs a name and key function")
		}
		if seen[idx.Name] {
			return nil, invalidConfig("indexes", fmt.Sprintf("duplicate index %q", idx.Name))
		}
		seen[idx.Name] = true
	}
	for _, rule := range cfg.Rules {
		if rule == nil {
			return nil, invalidConfig("rules", "rules must not be nil")
		}
	}

	hasher := cfg.Hasher
	if hasher == nil {
		hasher = chain.Rolling
	}
	observer := cfg.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Registry[P]{
		kind:     kind,
		prefix:   prefix,
		hasher:   hasher,
		indexes:  append([]Index[P](nil), cfg.Indexes...),
		rules:    append([]Rule[P](nil), cfg.Rules...),
		journal:  cfg.Journal,
		observer: observer,
		byID:     map[string]int{},
		byIndex:  newIndexSet(cfg.Indexes),
		head:     hasher.Genesis(),
	}, nil
}

func invalidConfig(field, reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidInput,
		fmt.Sprintf("registry config: %s %s", field, reason),
		map[string]string{"field": field, "reason": reason},
	)
}

// Kind returns the registry kind.
func (r *Registry[P]) Kind() string { return r.kind }

// Hasher returns the hasher used for the chain.
func (r *Registry[P]) Hasher() chain.Hasher { return r.hasher }

// Append validates payload, links it to the head of the chain and returns
// the committed record. Any error leaves the registry unchanged.
func (r *Registry[P]) Append(createdAt int64, payload P) (Record[P], error) {
	rec, err := r.appendRecord(createdAt, payload)
	if err != nil {
		r.observer.RecordRejected(r.kind, apperrors.CodeOf(err))
		return Record[P]{}, err
	}
	r.observer.RecordAppended(r.kind, rec.Seq)
	return rec, nil
}

func (r *Registry[P]) appendRecord(createdAt int64, payload P) (Record[P], error) {
	if createdAt <= 0 {
		return Record[P]{}, apperrors.WithMetadata(
			apperrors.CodeInvalidInput,
			fmt.Sprintf("%s: created_at must be positive, got %d", r.kind, createdAt),
			map[string]string{"field": "created_at", "reason": "must be a positive integer"},
		)
	}
	if err := payload.Validate(); err != nil {
		if apperrors.CodeOf(err) == apperrors.CodeUnknown {
			return Record[P]{}, apperrors.Wrap(apperrors.CodeInvalidInput, err.Error(), err)
		}
		return Record[P]{}, err
	}
	if err := RequireUTF8(r.kind, payload.Fields()); err != nil {
		return Record[P]{}, err
	}
	payload = payload.Clone()

	r.mu.Lock()
	defer r.mu.Unlock()

	id := chain.DeriveRecordID(r.prefix, payload.NaturalKey(), payload.ActorKey(), createdAt)
	if _, exists := r.byID[id]; exists {
		return Record[P]{}, apperrors.WithMetadata(
			apperrors.CodeDuplicateRecord,
			fmt.Sprintf("%s: record %s already exists", r.kind, id),
			map[string]string{"kind": r.kind, "record_id": id},
		)
	}

	rec := Record[P]{
		ID:        id,
		Seq:       uint64(len(r.records)) + 1,
		PrevHash:  r.head,
		CreatedAt: createdAt,
		Payload:   payload,
	}

	view := lockedView[P]{r: r}
	for _, rule := range r.rules {
		if err := rule.Check(view, rec.clone()); err != nil {
			return Record[P]{}, err
		}
	}

	rec.Hash = chain.ChainHash(r.hasher, rec.HashFields())

	if r.journal != nil {
		entry, err := r.entry(rec)
		if err != nil {
			return Record[P]{}, err
		}
		if err := r.journal.Append(entry); err != nil {
			return Record[P]{}, apperrors.WrapWithMetadata(
				apperrors.CodeJournalWriteFailed,
				fmt.Sprintf("%s: journal record %s", r.kind, id),
				map[string]string{"kind": r.kind, "record_id": id},
				err,
			)
		}
	}

	r.commitLocked(rec)
	return rec.clone(), nil
}

func (r *Registry[P]) entry(rec Record[P]) (Entry, error) {
	data, err := json.Marshal(rec.Payload)
	if err != nil {
		return Entry{}, apperrors.Wrap(apperrors.CodeInvalidInput, fmt.Sprintf("%s: encode payload", r.kind), err)
	}
	return Entry{
		Kind:      r.kind,
		Seq:       rec.Seq,
		RecordID:  rec.ID,
		PrevHash:  rec.PrevHash,
		Hash:      rec.Hash,
		CreatedAt: rec.CreatedAt,
		Payload:   data,
	}, nil
}

func (r *Registry[P]) commitLocked(rec Record[P]) {
	pos := len(r.records)
	r.records = append(r.records, rec)
	r.byID[rec.ID] = pos
	for _, idx := range r.indexes {
		r.byIndex.add(idx.Name, idx.Key(rec.Payload), pos)
	}
	r.head = rec.Hash
}

// Restore loads journal entries into an empty registry in seq order. Stored
// ids and hashes are taken as-is; call VerifyChainIntegrity to check them.
// Rules and the journal are not consulted.
func (r *Registry[P]) Restore(entries []Entry) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.records) != 0 {
		return apperrors.WithMetadata(
			apperrors.CodeInvalidInput,
			fmt.Sprintf("%s: restore requires an empty registry", r.kind),
			map[string]string{"field": "registry", "reason": "must be empty to restore"},
		)
	}

	return r.loadLocked(entries)
}

// CatchUp appends entries journaled after this registry was restored, for
// example by another process sharing the journal. Entries the registry
// already holds are skipped when their id and hash match; the first new
// entry must link to the current head. It returns how many records were
// added.
func (r *Registry[P]) CatchUp(entries []Entry) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	held := uint64(len(r.records))
	fresh := make([]Entry, 0, len(entries))
	for _, entry := range entries {
		if entry.Seq == 0 || entry.Seq > held {
			fresh = append(fresh, entry)
			continue
		}
		pos := int(entry.Seq - 1)
		if rec := r.records[pos]; rec.ID != entry.RecordID || rec.Hash != entry.Hash {
			return 0, apperrors.WithMetadata(
				apperrors.CodeChainBroken,
				fmt.Sprintf("%s: journal row %d no longer matches record %s", r.kind, entry.Seq, rec.ID),
				chainMetadata(r.kind, pos, entry.Seq, entry.RecordID),
			)
		}
	}
	if len(fresh) == 0 {
		return 0, nil
	}
	if first := fresh[0]; first.PrevHash != r.head {
		return 0, apperrors.WithMetadata(
			apperrors.CodeChainBroken,
			fmt.Sprintf("%s: journal row %d does not extend head %s", r.kind, first.Seq, r.head),
			chainMetadata(r.kind, len(r.records), first.Seq, first.RecordID),
		)
	}
	if err := r.loadLocked(fresh); err != nil {
		return 0, err
	}
	return len(fresh), nil
}

// loadLocked decodes entries and commits them after the held records. Every
// entry is checked before any is committed.
func (r *Registry[P]) loadLocked(entries []Entry) error {
	base := len(r.records)
	restored := make([]Record[P], 0, len(entries))
	ids := make(map[string]bool, len(entries))
	for i, entry := range entries {
		pos := base + i
		if entry.Kind != r.kind {
			return apperrors.WithMetadata(
				apperrors.CodeInvalidInput,
				fmt.Sprintf("%s: entry %s belongs to %s", r.kind, entry.RecordID, entry.Kind),
				map[string]string{"field": "kind", "reason": "does not match registry"},
			)
		}
		if entry.Seq != uint64(pos)+1 {
			return apperrors.WithMetadata(
				apperrors.CodeChainBroken,
				fmt.Sprintf("%s: journal seq %d at position %d", r.kind, entry.Seq, pos),
				chainMetadata(r.kind, pos, entry.Seq, entry.RecordID),
			)
		}
		if _, exists := r.byID[entry.RecordID]; exists || ids[entry.RecordID] {
			return apperrors.WithMetadata(
				apperrors.CodeDuplicateRecord,
				fmt.Sprintf("%s: journal repeats record %s", r.kind, entry.RecordID),
				map[string]string{"kind": r.kind, "record_id": entry.RecordID},
			)
		}
		ids[entry.RecordID] = true

		var payload P
		if err := json.Unmarshal(entry.Payload, &payload); err != nil {
			return apperrors.WrapWithMetadata(
				apperrors.CodeInvalidInput,
				fmt.Sprintf("%s: decode payload of %s", r.kind, entry.RecordID),
				map[string]string{"field": "payload", "reason": "is not valid JSON for this kind"},
				err,
			)
		}
		restored = append(restored, Record[P]{
			ID:        entry.RecordID,
			Seq:       entry.Seq,
			PrevHash:  entry.PrevHash,
			Hash:      entry.Hash,
			CreatedAt: entry.CreatedAt,
			Payload:   payload,
		})
	}

	for _, rec := range restored {
		r.commitLocked(rec)
	}
	return nil
}
