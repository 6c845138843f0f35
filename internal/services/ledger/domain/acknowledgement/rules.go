package acknowledgement

import (
	"fmt"

	apperrors "github.com/louisbranch/oversight/internal/platform/errors"
	"github.com/louisbranch/oversight/internal/services/ledger/domain/registry"
)

// Conflicts reports whether an actor who recorded a may not also record b on
// the same signal. Acknowledging excludes escalating and rejecting; reject
// and escalate may coexist.
func Conflicts(a, b Decision) bool {
	switch {
	case a == DecisionAcknowledge:
		return b == DecisionEscalate || b == DecisionReject
	case b == DecisionAcknowledge:
		return a == DecisionEscalate || a == DecisionReject
	default:
		return false
	}
}

// RoleGate refuses decisions the actor's role does not permit.
func RoleGate() registry.Rule[Acknowledgement] {
	return registry.RuleFunc[Acknowledgement](func(_ registry.View[Acknowledgement], candidate Record) error {
		ack := candidate.Payload
		if ack.ActorRole.Permits(ack.Decision) {
			return nil
		}
		return apperrors.WithMetadata(
			apperrors.CodeRoleNotPermitted,
			fmt.Sprintf("%s: role %s cannot %s", Kind, ack.ActorRole, ack.Decision),
			map[string]string{"role": string(ack.ActorRole), "decision": string(ack.Decision), "actor": ack.ActorID},
		)
	})
}

// ExclusiveDecisions refuses a decision that conflicts with one the same
// actor already recorded on the same signal. Other actors never conflict.
func ExclusiveDecisions() registry.Rule[Acknowledgement] {
	return registry.RuleFunc[Acknowledgement](func(view registry.View[Acknowledgement], candidate Record) error {
		ack := candidate.Payload
		prior, err := view.ListBy(registry.IndexSubject, ack.SignalID)
		if err != nil {
			return err
		}
		for _, rec := range prior {
			existing := rec.Payload
			if existing.ActorID != ack.ActorID || !Conflicts(existing.Decision, ack.Decision) {
				continue
			}
			return apperrors.WithMetadata(
				apperrors.CodeConflictingDecision,
				fmt.Sprintf("%s: %s already recorded %s on %s in %s", Kind, ack.ActorID, existing.Decision, ack.SignalID, rec.ID),
				map[string]string{
					"actor":             ack.ActorID,
					"subject":           ack.SignalID,
					"decision":          string(ack.Decision),
					"existing_decision": string(existing.Decision),
					"record_id":         rec.ID,
				},
			)
		}
		return nil
	})
}
