package registry

import (
	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
)

// Payload is the kind-specific, immutable content of a record.
type Payload[P any] interface {
	// Validate checks the payload schema and kind-specific preconditions.
	Validate() error
	// NaturalKey is the kind key component of the record identifier.
	NaturalKey() string
	// ActorKey identifies the human who created the record.
	ActorKey() string
	// Fields lists the payload values that contribute to the record hash.
	Fields() []chain.Field
	// Clone returns a deep copy that shares no mutable state.
	Clone() P
}

// Record is one entry in a registry chain.
type Record[P Payload[P]] struct {
	ID        string `json:"id"`
	Seq       uint64 `json:"seq"`
	PrevHash  string `json:"prev_hash"`
	Hash      string `json:"hash"`
	CreatedAt int64  `json:"created_at"`
	Payload   P      `json:"payload"`
}

// HashFields returns every field except Hash, in the form hashed into the
// chain. Payload keys are namespaced so they cannot shadow record fields.
func (r Record[P]) HashFields() []chain.Field {
	fields := []chain.Field{
		chain.String("id", r.ID),
		chain.Uint("seq", r.Seq),
		chain.String("prev_hash", r.PrevHash),
		chain.Int("created_at", r.CreatedAt),
	}
	return append(fields, chain.Prefixed("payload.", r.Payload.Fields())...)
}

func canonicalOf[P Payload[P]](r Record[P]) string {
	return chain.Canonical(r.HashFields())
}

func (r Record[P]) clone() Record[P] {
	r.Payload = r.Payload.Clone()
	return r
}

func cloneRecords[P Payload[P]](records []Record[P]) []Record[P] {
	out := make([]Record[P], len(records))
	for i, rec := range records {
		out[i] = rec.clone()
	}
	return out
}
