package registry

import (
	"fmt"
	"strconv"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
)

// VerifyChainIntegrity walks the chain from the first record and returns the
// first violation found: CHAIN_BROKEN when a sequence number or previous
// hash does not line up, HASH_MISMATCH when a stored hash no longer matches
// the record content. An empty registry verifies.
func (r *Registry[P]) VerifyChainIntegrity() error {
	err := r.verify()
	r.observer.ChainVerified(r.kind, err)
	return err
}

func (r *Registry[P]) verify() error {
	r.mu.RLock()
	defer r.mu.RUnlock()

	expectedPrev := r.hasher.Genesis()
	for i, rec := range r.records {
		if rec.Seq != uint64(i)+1 {
			return apperrors.WithMetadata(
				apperrors.CodeChainBroken,
				fmt.Sprintf("%s: record %s at position %d has seq %d", r.kind, rec.ID, i, rec.Seq),
				chainMetadata(r.kind, i, rec.Seq, rec.ID),
			)
		}
		if rec.PrevHash != expectedPrev {
			return apperrors.WithMetadata(
				apperrors.CodeChainBroken,
				fmt.Sprintf("%s: record %s at position %d links to %s, want %s", r.kind, rec.ID, i, rec.PrevHash, expectedPrev),
				chainMetadata(r.kind, i, rec.Seq, rec.ID),
			)
		}
		if got := r.hasher.Sum(canonicalOf(rec)); got != rec.Hash {
			return apperrors.WithMetadata(
				apperrors.CodeHashMismatch,
				fmt.Sprintf("%s: record %s at position %d hashes to %s, stored %s", r.kind, rec.ID, i, got, rec.Hash),
				chainMetadata(r.kind, i, rec.Seq, rec.ID),
			)
		}
		expectedPrev = rec.Hash
	}
	return nil
}

func chainMetadata(kind string, index int, seq uint64, recordID string) map[string]string {
	return map[string]string{
		"kind":      kind,
		"index":     strconv.Itoa(index),
		"seq":       strconv.FormatUint(seq, 10),
		"record_id": recordID,
	}
}
