package registry

import (
	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
)

// Entry is the durable form of a record. Payload holds the JSON encoding of
// the kind payload.
type Entry struct {
	Kind      string
	Seq       uint64
	RecordID  string
	PrevHash  string
	Hash      string
	CreatedAt int64
	Payload   []byte
}

// EntryPage is one slice of journal entries. Total counts every match before
// Offset and Limit were applied.
type EntryPage struct {
	Entries []Entry
	Total   int
}

// Journal durably stores entries. Append is called inside the registry's
// append critical section before the record becomes visible, so a journal
// failure rejects the append.
type Journal interface {
	Append(entry Entry) error
}

// Observer receives append and verification outcomes, typically to export
// metrics. Implementations must not call back into the registry.
type Observer interface {
	RecordAppended(kind string, seq uint64)
	RecordRejected(kind string, code apperrors.Code)
	ChainVerified(kind string, err error)
}

type nopObserver struct{}

func (nopObserver) RecordAppended(string, uint64)         {}
func (nopObserver) RecordRejected(string, apperrors.Code) {}
func (nopObserver) ChainVerified(string, error)           {}
