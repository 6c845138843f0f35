package registry

import (
	"fmt"
	"strings"
	"unicode/utf8"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
)

const reasonInvalidUTF8 = "must be valid UTF-8"

// RequireText rejects a blank or non-UTF-8 required field with INVALID_INPUT.
func RequireText(kind, field, value string) error {
	if !utf8.ValidString(value) {
		return InvalidField(kind, field, reasonInvalidUTF8)
	}
	if strings.TrimSpace(value) != "" {
		return nil
	}
	return InvalidField(kind, field, "is required")
}

// RequireUTF8 rejects any hashed field that is not valid UTF-8. Journaled
// payloads are JSON, which only carries valid UTF-8 unchanged.
func RequireUTF8(kind string, fields []chain.Field) error {
	for _, f := range fields {
		if !utf8.ValidString(f.Value) {
			return InvalidField(kind, f.Key, reasonInvalidUTF8)
		}
	}
	return nil
}

// InvalidField builds the INVALID_INPUT error used for schema violations.
func InvalidField(kind, field, reason string) error {
	return apperrors.WithMetadata(
		apperrors.CodeInvalidInput,
		fmt.Sprintf("%s: %s %s", kind, field, reason),
		map[string]string{"kind": kind, "field": field, "reason": reason},
	)
}

// RequireEvidence enforces a minimum number of evidence references. Blank
// references are schema violations; too few references is
// MISSING_REQUIRED_REFERENCE.
func RequireEvidence(kind string, refs []string, minimum int) error {
	for i, ref := range refs {
		if !utf8.ValidString(ref) {
			return InvalidField(kind, fmt.Sprintf("evidence_refs[%d]", i), reasonInvalidUTF8)
		}
		if strings.TrimSpace(ref) == "" {
			return InvalidField(kind, fmt.Sprintf("evidence_refs[%d]", i), "must not be blank")
		}
	}
	if len(refs) >= minimum {
		return nil
	}
	return apperrors.WithMetadata(
		apperrors.CodeMissingRequiredReference,
		fmt.Sprintf("%s: %d evidence references, need at least %d", kind, len(refs), minimum),
		map[string]string{"kind": kind, "reference": "evidence reference", "minimum": fmt.Sprint(minimum)},
	)
}

// NormalizeRefs trims references and returns a fresh slice, so callers
// never share a backing array with the input.
func NormalizeRefs(refs []string) []string {
	if len(refs) == 0 {
		return nil
	}
	out := make([]string, len(refs))
	for i, ref := range refs {
		out[i] = strings.TrimSpace(ref)
	}
	return out
}
