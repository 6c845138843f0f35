// Package guard scans free-text record fields for disallowed terms before
// they reach a registry.
//
// The scan is a case-insensitive substring match. It catches obvious
// mistakes such as pasting an instruction to act into a report; it is not a
// security boundary and a clean scan proves nothing.
package guard

import (
	"fmt"
	"sort"
	"strings"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

// Finding is one disallowed term found in a field.
type Finding struct {
	Field string
	Term  string
}

// Denylist is an immutable set of disallowed terms.
type Denylist struct {
	terms []string
}

// NewDenylist builds a denylist from terms, ignoring blanks and repeats.
func NewDenylist(terms []string) Denylist {
	seen := map[string]bool{}
	var normalized []string
	for _, term := range terms {
		term = strings.ToLower(strings.TrimSpace(term))
		if term == "" || seen[term] {
			continue
		}
		seen[term] = true
		normalized = append(normalized, term)
	}
	sort.Strings(normalized)
	return Denylist{terms: normalized}
}

// Empty reports whether the denylist has no terms.
func (d Denylist) Empty() bool { return len(d.terms) == 0 }

// Terms returns a copy of the normalized terms.
func (d Denylist) Terms() []string { return append([]string(nil), d.terms...) }

// Scan returns every (field, term) match, ordered by field then term.
func (d Denylist) Scan(fields map[string]string) []Finding {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)

	var findings []Finding
	for _, name := range names {
		text := strings.ToLower(fields[name])
		if text == "" {
			continue
		}
		for _, term := range d.terms {
			if strings.Contains(text, term) {
				findings = append(findings, Finding{Field: name, Term: term})
			}
		}
	}
	return findings
}

// Texter exposes the free-text fields of a payload.
type Texter interface {
	Text() map[string]string
}

// Rule adapts d into a registry rule that rejects a record whose free text
// contains a denied term with BOUNDARY_VIOLATION. The first finding is
// reported.
func Rule[P interface {
	registry.Payload[P]
	Texter
}](d Denylist) registry.Rule[P] {
	return registry.RuleFunc[P](func(_ registry.View[P], candidate registry.Record[P]) error {
		findings := d.Scan(candidate.Payload.Text())
		if len(findings) == 0 {
			return nil
		}
		first := findings[0]
		return apperrors.WithMetadata(
			apperrors.CodeBoundaryViolation,
			fmt.Sprintf("field %s contains disallowed term %q (%d findings)", first.Field, first.Term, len(findings)),
			map[string]string{
				"field":    first.Field,
				"term":     first.Term,
				"findings": fmt.Sprint(len(findings)),
			},
		)
	})
}
