package report

import (
	"testing"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

func newRegistry(t *testing.T) *Registry {
	t.Helper()
	reg, err := New(Config{})
	if err != nil {
		t.Fatalf("new registry: %v", err)
	}
	return reg
}

func incident(outcome Outcome, ts int64, refs ...string) Input {
	return Input{
		Classification: ClassificationIncident,
		Outcome:        outcome,
		ReportedBy:     "OP1",
		Subject:        "SIG-1",
		Summary:        "Pump pressure dropped",
		EvidenceRefs:   refs,
		CreatedAt:      ts,
	}
}

func TestFileEvidenceFloor(t *testing.T) {
	cases := []struct {
		outcome Outcome
		refs    []string
		want    apperrors.Code
	}{
		{OutcomeConfirmed, nil, apperrors.CodeMissingRequiredReference},
		{OutcomeRefuted, nil, apperrors.CodeMissingRequiredReference},
		{OutcomeInconclusive, nil, ""},
		{OutcomeConfirmed, []string{"E1"}, ""},
		{OutcomeRefuted, []string{"E1", "E2"}, ""},
	}
	for _, tc := range cases {
		reg := newRegistry(t)
		_, err := reg.File(incident(tc.outcome, 100, tc.refs...))
		if got := apperrors.CodeOf(err); got != tc.want {
			t.Fatalf("%s with %d refs: code = %q, want %q", tc.outcome, len(tc.refs), got, tc.want)
		}
	}
}

func TestFileValidation(t *testing.T) {
	cases := map[string]func(*Input){
		"classification": func(in *Input) { in.Classification = "RUMOR" },
		"outcome":        func(in *Input) { in.Outcome = "" },
		"reporter":       func(in *Input) { in.ReportedBy = "" },
		"subject":        func(in *Input) { in.Subject = " " },
		"summary":        func(in *Input) { in.Summary = "" },
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			in := incident(OutcomeConfirmed, 100, "E1")
			mutate(&in)
			_, err := newRegistry(t).File(in)
			if !apperrors.HasCode(err, apperrors.CodeInvalidInput) {
				t.Fatalf("error = %v, want %s", err, apperrors.CodeInvalidInput)
			}
		})
	}
}

func TestFileDuplicateBySubjectActorAndTime(t *testing.T) {
	reg := newRegistry(t)
	first, err := reg.File(incident(OutcomeConfirmed, 100, "E1"))
	if err != nil {
		t.Fatalf("file: %v", err)
	}
	if first.ID != "RPT-SIG%2D1-OP1-100" {
		t.Fatalf("id = %q", first.ID)
	}

	again := incident(OutcomeRefuted, 100, "E2")
	_, err = reg.File(again)
	if !apperrors.HasCode(err, apperrors.CodeDuplicateRecord) {
		t.Fatalf("error = %v, want %s", err, apperrors.CodeDuplicateRecord)
	}

	other := incident(OutcomeRefuted, 100, "E2")
	other.ReportedBy = "OP2"
	if _, err := reg.File(other); err != nil {
		t.Fatalf("file by another reporter: %v", err)
	}
}

func TestOutcomeIndexAndCounts(t *testing.T) {
	reg := newRegistry(t)
	inputs := []Input{
		incident(OutcomeConfirmed, 100, "E1"),
		incident(OutcomeInconclusive, 200),
		incident(OutcomeConfirmed, 300, "E3"),
	}
	for _, in := range inputs {
		if _, err := reg.File(in); err != nil {
			t.Fatalf("file: %v", err)
		}
	}

	counts, err := reg.Counts(registry.IndexOutcome)
	if err != nil {
		t.Fatalf("counts: %v", err)
	}
	if counts[string(OutcomeConfirmed)] != 2 || counts[string(OutcomeInconclusive)] != 1 {
		t.Fatalf("counts = %v", counts)
	}

	page, err := reg.List(registry.Query{Filter: `outcome = "CONFIRMED" AND created_at > 100`})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if page.Total != 1 || page.Records[0].CreatedAt != 300 {
		t.Fatalf("page = %+v", page)
	}
	if err := reg.VerifyChainIntegrity(); err != nil {
		t.Fatalf("verify: %v", err)
	}
}
