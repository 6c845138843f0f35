// Package acknowledgement records human decisions on risk signals. An actor
// acknowledges, escalates or rejects a signal; contradictory decisions by
// the same actor on the same signal are refused.
package acknowledgement

import (
	"strings"

	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

const (
	Kind     = "acknowledgement"
	IDPrefix = "ACK"
)

// Decision is the actor's response to a signal.
type Decision string

const (
	DecisionAcknowledge Decision = "ACKNOWLEDGE"
	DecisionEscalate    Decision = "ESCALATE"
	DecisionReject      Decision = "REJECT"
)

// Decisions lists every decision.
var Decisions = []Decision{DecisionAcknowledge, DecisionEscalate, DecisionReject}

func (d Decision) Valid() bool {
	for _, known := range Decisions {
		if d == known {
			return true
		}
	}
	return false
}

// Acknowledgement is the payload of an acknowledgement record.
type Acknowledgement struct {
	SignalID     string   `json:"signal_id"`
	Decision     Decision `json:"decision"`
	ActorID      string   `json:"actor_id"`
	ActorRole    Role     `json:"actor_role"`
	Comment      string   `json:"comment,omitempty"`
	EvidenceRefs []string `json:"evidence_refs,omitempty"`
}

// Record is a committed acknowledgement.
type Record = registry.Record[Acknowledgement]

func (a Acknowledgement) Validate() error {
	if err := registry.RequireText(Kind, "signal_id", a.SignalID); err != nil {
		return err
	}
	if !a.Decision.Valid() {
		return registry.InvalidField(Kind, "decision", "must be one of ACKNOWLEDGE, ESCALATE, REJECT")
	}
	if err := registry.RequireText(Kind, "actor_id", a.ActorID); err != nil {
		return err
	}
	if !a.ActorRole.Valid() {
		return registry.InvalidField(Kind, "actor_role", "must be one of OPERATOR, SUPERVISOR, EXECUTIVE")
	}
	return registry.RequireEvidence(Kind, a.EvidenceRefs, 0)
}

func (a Acknowledgement) NaturalKey() string { return a.SignalID }

func (a Acknowledgement) ActorKey() string { return a.ActorID }

func (a Acknowledgement) Fields() []chain.Field {
	return []chain.Field{
		chain.String("signal_id", a.SignalID),
		chain.String("decision", string(a.Decision)),
		chain.String("actor_id", a.ActorID),
		chain.String("actor_role", string(a.ActorRole)),
		chain.String("comment", a.Comment),
		chain.List("evidence_refs", a.EvidenceRefs),
	}
}

func (a Acknowledgement) Clone() Acknowledgement {
	a.EvidenceRefs = append([]string(nil), a.EvidenceRefs...)
	return a
}

// Text returns the free-text fields for boundary scanning.
func (a Acknowledgement) Text() map[string]string {
	return map[string]string{"comment": a.Comment}
}

func Indexes() []registry.Index[Acknowledgement] {
	return []registry.Index[Acknowledgement]{
		{Name: registry.IndexCreator, Key: func(a Acknowledgement) string { return a.ActorID }},
		{Name: registry.IndexSubject, Key: func(a Acknowledgement) string { return a.SignalID }},
		{Name: registry.IndexOutcome, Key: func(a Acknowledgement) string { return string(a.Decision) }},
	}
}

// PayloadPaths maps filter fields to JSON keys of the stored payload.
func PayloadPaths() map[string]string {
	return map[string]string{
		registry.FieldActor:   "actor_id",
		registry.IndexSubject: "signal_id",
		registry.IndexOutcome: "decision",
	}
}

// Input is a request to record a decision on a signal.
type Input struct {
	SignalID     string   `json:"signal_id"`
	Decision     Decision `json:"decision"`
	ActorID      string   `json:"actor_id"`
	ActorRole    Role     `json:"actor_role"`
	Comment      string   `json:"comment"`
	EvidenceRefs []string `json:"evidence_refs"`
	CreatedAt    int64    `json:"created_at"`
}

func (in Input) payload() Acknowledgement {
	return Acknowledgement{
		SignalID:     strings.TrimSpace(in.SignalID),
		Decision:     Decision(strings.ToUpper(strings.TrimSpace(string(in.Decision)))),
		ActorID:      strings.TrimSpace(in.ActorID),
		ActorRole:    Role(strings.ToUpper(strings.TrimSpace(string(in.ActorRole)))),
		Comment:      strings.TrimSpace(in.Comment),
		EvidenceRefs: registry.NormalizeRefs(in.EvidenceRefs),
	}
}

type Config struct {
	Hasher   chain.Hasher
	Journal  registry.Journal
	Observer registry.Observer
	// Rules run after the role gate and the decision conflict check.
	Rules []registry.Rule[Acknowledgement]
}

// Registry is the append-only store of acknowledgements.
type Registry struct {
	*registry.Registry[Acknowledgement]
}

func New(cfg Config) (*Registry, error) {
	rules := []registry.Rule[Acknowledgement]{RoleGate(), ExclusiveDecisions()}
	rules = append(rules, cfg.Rules...)

	reg, err := registry.New(registry.Config[Acknowledgement]{
		Kind:     Kind,
		IDPrefix: IDPrefix,
		Hasher:   cfg.Hasher,
		Indexes:  Indexes(),
		Rules:    rules,
		Journal:  cfg.Journal,
		Observer: cfg.Observer,
	})
	if err != nil {
		return nil, err
	}
	return &Registry{Registry: reg}, nil
}

// Decide normalizes in and appends it as a new acknowledgement.
func (r *Registry) Decide(in Input) (Record, error) {
	return r.Append(in.CreatedAt, in.payload())
}
