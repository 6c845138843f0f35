package registry

import (
	"errors"
	"sync"
	"testing"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
)

// note is a minimal payload used to exercise the engine without a real kind.
type note struct {
	Kind   string   `json:"kind"`
	Author string   `json:"author"`
	Topic  string   `json:"topic,omitempty"`
	Body   string   `json:"body"`
	Refs   []string `json:"refs,omitempty"`
}

func (n note) Validate() error {
	if n.Kind == "" || n.Author == "" || n.Body == "" {
		return apperrors.New(apperrors.CodeInvalidInput, "note: kind, author and body are required")
	}
	if len(n.Refs) == 0 {
		return apperrors.New(apperrors.CodeMissingRequiredReference, "note: at least one ref is required")
	}
	return nil
}

func (n note) NaturalKey() string { return n.Kind }

func (n note) ActorKey() string { return n.Author }

func (n note) Fields() []chain.Field {
	return []chain.Field{
		chain.String("kind", n.Kind),
		chain.String("author", n.Author),
		chain.String("topic", n.Topic),
		chain.String("body", n.Body),
		chain.List("refs", n.Refs),
	}
}

func (n note) Clone() note {
	n.Refs = append([]string(nil), n.Refs...)
	return n
}

func noteIndexes() []Index[note] {
	return []Index[note]{
		{Name: IndexCreator, Key: func(n note) string { return n.Author }},
		{Name: IndexSubject, Key: func(n note) string { return n.Topic }},
		{Name: IndexClassification, Key: func(n note) string { return n.Kind }},
	}
}

func newNoteRegistry(t *testing.T, mutate func(*Config[note])) *Registry[note] {
	t.Helper()
	cfg := Config[note]{
		Kind:     "note",
		IDPrefix: "NTE",
		Indexes:  noteIndexes(),
	}
	if mutate != nil {
		mutate(&cfg)
	}
	reg, err := New(cfg)
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func review(author string, refs ...string) note {
	return note{Kind: "REVIEW", Author: author, Topic: "subject-1", Body: "look at this", Refs: refs}
}

func mustAppend(t *testing.T, reg *Registry[note], createdAt int64, n note) Record[note] {
	t.Helper()
	rec, err := reg.Append(createdAt, n)
	if err != nil {
		t.Fatalf("append at %d: %v", createdAt, err)
	}
	return rec
}

func assertCode(t *testing.T, err error, want apperrors.Code) {
	t.Helper()
	if got := apperrors.CodeOf(err); got != want {
		t.Fatalf("error code = %q, want %q (err: %v)", got, want, err)
	}
}

type memoryJournal struct {
	mu      sync.Mutex
	entries []Entry
	fail    error
}

func (j *memoryJournal) Append(entry Entry) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.fail != nil {
		return j.fail
	}
	j.entries = append(j.entries, entry)
	return nil
}

var errDiskFull = errors.New("disk full")

type countingObserver struct {
	mu        sync.Mutex
	appended  int
	rejected  map[apperrors.Code]int
	verified  int
	lastError error
}

func (o *countingObserver) RecordAppended(string, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.appended++
}

func (o *countingObserver) RecordRejected(_ string, code apperrors.Code) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.rejected == nil {
		o.rejected = map[apperrors.Code]int{}
	}
	o.rejected[code]++
}

func (o *countingObserver) ChainVerified(_ string, err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.verified++
	o.lastError = err
}
