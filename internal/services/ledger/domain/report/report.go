// Package report records human-asserted reports about a subject. The ledger
// stores what was asserted; it never checks whether the assertion is true.
package report

import (
	"strings"

	"github.com/louisbranch/oversight/internal/services/ledger/domain/chain"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

const (
	Kind     = "report"
	IDPrefix = "RPT"
)

// Classification describes what sort of report was filed.
type Classification string

const (
	ClassificationObservation Classification = "OBSERVATION"
	ClassificationIncident    Classification = "INCIDENT"
	ClassificationAssessment  Classification = "ASSESSMENT"
	ClassificationOutcome     Classification = "OUTCOME"
)

// Classifications lists every report classification.
var Classifications = []Classification{
	ClassificationObservation,
	ClassificationIncident,
	ClassificationAssessment,
	ClassificationOutcome,
}

func (c Classification) Valid() bool {
	for _, known := range Classifications {
		if c == known {
			return true
		}
	}
	return false
}

// Outcome is the reporter's conclusion.
type Outcome string

const (
	OutcomeConfirmed    Outcome = "CONFIRMED"
	OutcomeRefuted      Outcome = "REFUTED"
	OutcomeInconclusive Outcome = "INCONCLUSIVE"
)

// Outcomes lists every report outcome.
var Outcomes = []Outcome{OutcomeConfirmed, OutcomeRefuted, OutcomeInconclusive}

func (o Outcome) Valid() bool {
	for _, known := range Outcomes {
		if o == known {
			return true
		}
	}
	return false
}

// MinimumEvidence returns how many evidence references a report with this
// outcome must cite. Conclusive outcomes need at least one.
func (o Outcome) MinimumEvidence() int {
	if o == OutcomeInconclusive {
		return 0
	}
	return 1
}

// Report is the payload of a report record.
type Report struct {
	Classification Classification `json:"classification"`
	Outcome        Outcome        `json:"outcome"`
	ReportedBy     string         `json:"reported_by"`
	Subject        string         `json:"subject"`
	Summary        string         `json:"summary"`
	Recommendation string         `json:"recommendation,omitempty"`
	EvidenceRefs   []string       `json:"evidence_refs,omitempty"`
}

// Record is a committed report.
type Record = registry.Record[Report]

func (r Report) Validate() error {
	if !r.Classification.Valid() {
		return registry.InvalidField(Kind, "classification", "must be one of OBSERVATION, INCIDENT, ASSESSMENT, OUTCOME")
	}
	if !r.Outcome.Valid() {
		return registry.InvalidField(Kind, "outcome", "must be one of CONFIRMED, REFUTED, INCONCLUSIVE")
	}
	if err := registry.RequireText(Kind, "reported_by", r.ReportedBy); err != nil {
		return err
	}
	if err := registry.RequireText(Kind, "subject", r.Subject); err != nil {
		return err
	}
	if err := registry.RequireText(Kind, "summary", r.Summary); err != nil {
		return err
	}
	return registry.RequireEvidence(Kind, r.EvidenceRefs, r.Outcome.MinimumEvidence())
}

func (r Report) NaturalKey() string { return r.Subject }

func (r Report) ActorKey() string { return r.ReportedBy }

func (r Report) Fields() []chain.Field {
	return []chain.Field{
		chain.String("classification", string(r.Classification)),
		chain.String("outcome", string(r.Outcome)),
		chain.String("reported_by", r.ReportedBy),
		chain.String("subject", r.Subject),
		chain.String("summary", r.Summary),
		chain.String("recommendation", r.Recommendation),
		chain.List("evidence_refs", r.EvidenceRefs),
	}
}

func (r Report) Clone() Report {
	r.EvidenceRefs = append([]string(nil), r.EvidenceRefs...)
	return r
}

// Text returns the free-text fields for boundary scanning.
func (r Report) Text() map[string]string {
	return map[string]string{
		"summary":        r.Summary,
		"recommendation": r.Recommendation,
	}
}

func Indexes() []registry.Index[Report] {
	return []registry.Index[Report]{
		{Name: registry.IndexCreator, Key: func(r Report) string { return r.ReportedBy }},
		{Name: registry.IndexSubject, Key: func(r Report) string { return r.Subject }},
		{Name: registry.IndexClassification, Key: func(r Report) string { return string(r.Classification) }},
		{Name: registry.IndexOutcome, Key: func(r Report) string { return string(r.Outcome) }},
	}
}

// PayloadPaths maps filter fields to JSON keys of the stored payload.
func PayloadPaths() map[string]string {
	return map[string]string{
		registry.FieldActor:          "reported_by",
		registry.IndexSubject:        "subject",
		registry.IndexClassification: "classification",
		registry.IndexOutcome:        "outcome",
	}
}

// Input is a request to file a report.
type Input struct {
	Classification Classification `json:"classification"`
	Outcome        Outcome        `json:"outcome"`
	ReportedBy     string         `json:"reported_by"`
	Subject        string         `json:"subject"`
	Summary        string         `json:"summary"`
	Recommendation string         `json:"recommendation"`
	EvidenceRefs   []string       `json:"evidence_refs"`
	CreatedAt      int64          `json:"created_at"`
}

func (in Input) payload() Report {
	return Report{
		Classification: Classification(strings.ToUpper(strings.TrimSpace(string(in.Classification)))),
		Outcome:        Outcome(strings.ToUpper(strings.TrimSpace(string(in.Outcome)))),
		ReportedBy:     strings.TrimSpace(in.ReportedBy),
		Subject:        strings.TrimSpace(in.Subject),
		Summary:        strings.TrimSpace(in.Summary),
		Recommendation: strings.TrimSpace(in.Recommendation),
		EvidenceRefs:   registry.NormalizeRefs(in.EvidenceRefs),
	}
}

type Config struct {
	Hasher   chain.Hasher
	Journal  registry.Journal
	Observer registry.Observer
	Rules    []registry.Rule[Report]
}

// Registry is the append-only store of reports.
type Registry struct {
	*registry.Registry[Report]
}

func New(cfg Config) (*Registry, error) {
	reg, err := registry.New(registry.Config[Report]{
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

// File normalizes in and appends it as a new report.
func (r *Registry) File(in Input) (Record, error) {
	return r.Append(in.CreatedAt, in.payload())
}
