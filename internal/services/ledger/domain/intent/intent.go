// Package intent records human-issued intents: a declared wish to review,
// investigate, monitor or hold something, backed by evidence.
package intent

import (
	"strings"

	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

const (
	// Kind names the intent registry.
	Kind = "intent"
	// IDPrefix leads every intent identifier.
	IDPrefix = "INT"
)

// Type classifies what the issuer wants done.
type Type string

const (
	TypeReview      Type = "REVIEW"
	TypeInvestigate Type = "INVESTIGATE"
	TypeMonitor     Type = "MONITOR"
	TypeHold        Type = "HOLD"
)

// Types lists every intent type.
var Types = []Type{TypeReview, TypeInvestigate, TypeMonitor, TypeHold}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	for _, known := range Types {
		if t == known {
			return true
		}
	}
	return false
}

// Intent is the payload of an intent record.
type Intent struct {
	Type           Type     `json:"type"`
	IssuedBy       string   `json:"issued_by"`
	Subject        string   `json:"subject,omitempty"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation,omitempty"`
	EvidenceRefs   []string `json:"evidence_refs"`
}

// Record is a committed intent.
type Record = registry.Record[Intent]

// Validate checks the intent schema. Every intent cites at least one
// evidence reference.
func (i Intent) Validate() error {
	if !i.Type.Valid() {
		return registry.InvalidField(Kind, "type", "must be one of REVIEW, INVESTIGATE, MONITOR, HOLD")
	}
	if err := registry.RequireText(Kind, "issued_by", i.IssuedBy); err != nil {
		return err
	}
	if err := registry.RequireText(Kind, "description", i.Description); err != nil {
		return err
	}
	return registry.RequireEvidence(Kind, i.EvidenceRefs, 1)
}

func (i Intent) NaturalKey() string { return string(i.Type) }

func (i Intent) ActorKey() string { return i.IssuedBy }

func (i Intent) Fields() []chain.Field {
	return []chain.Field{
		chain.String("type", string(i.Type)),
		chain.String("issued_by", i.IssuedBy),
		chain.String("subject", i.Subject),
		chain.String("description", i.Description),
		chain.String("recommendation", i.Recommendation),
		chain.List("evidence_refs", i.EvidenceRefs),
	}
}

func (i Intent) Clone() Intent {
	i.EvidenceRefs = append([]string(nil), i.EvidenceRefs...)
	return i
}

// Text returns the free-text fields for boundary scanning.
func (i Intent) Text() map[string]string {
	return map[string]string{
		"description":    i.Description,
		"recommendation": i.Recommendation,
	}
}

// Indexes are the secondary lookups kept for intents.
func Indexes() []registry.Index[Intent] {
	return []registry.Index[Intent]{
		{Name: registry.IndexCreator, Key: func(i Intent) string { return i.IssuedBy }},
		{Name: registry.IndexSubject, Key: func(i Intent) string { return i.Subject }},
		{Name: registry.IndexClassification, Key: func(i Intent) string { return string(i.Type) }},
	}
}

// PayloadPaths maps filter fields to JSON keys of the stored payload.
func PayloadPaths() map[string]string {
	return map[string]string{
		registry.FieldActor:          "issued_by",
		registry.IndexSubject:        "subject",
		registry.IndexClassification: "type",
	}
}

// Input is a request to issue an intent.
type Input struct {
	Type           Type     `json:"type"`
	IssuedBy       string   `json:"issued_by"`
	Subject        string   `json:"subject"`
	Description    string   `json:"description"`
	Recommendation string   `json:"recommendation"`
	EvidenceRefs   []string `json:"evidence_refs"`
	CreatedAt      int64    `json:"created_at"`
}

func (in Input) payload() Intent {
	return Intent{
		Type:           Type(strings.ToUpper(strings.TrimSpace(string(in.Type)))),
		IssuedBy:       strings.TrimSpace(in.IssuedBy),
		Subject:        strings.TrimSpace(in.Subject),
		Description:    strings.TrimSpace(in.Description),
		Recommendation: strings.TrimSpace(in.Recommendation),
		EvidenceRefs:   registry.NormalizeRefs(in.EvidenceRefs),
	}
}

// Config wires optional collaborators into the intent registry.
type Config struct {
	Hasher   chain.Hasher
	Journal  registry.Journal
	Observer registry.Observer
	// Rules run after the built-in checks, e.g. a boundary guard.
	Rules []registry.Rule[Intent]
}

// Registry is the append-only store of intents.
type Registry struct {
	*registry.Registry[Intent]
}

// New builds an empty intent registry.
func New(cfg Config) (*Registry, error) {
	reg, err := registry.New(registry.Config[Intent]{
		Kind:     Kind,
		IDPrefix: IDPrefix,
		Hasher:   cfg.Hasher,
		Indexes:  Indexes(),
		Rules:    cfg.Rules,
		Journal:  cfg.Journal,
		Observer: cfg.Observer,
	})
	if err != nil {
		return nil, err
	}
	return &Registry{Registry: reg}, nil
}

// Issue normalizes in and appends it as a new intent.
func (r *Registry) Issue(in Input) (Record, error) {
	return r.Append(in.CreatedAt, in.payload())
}
