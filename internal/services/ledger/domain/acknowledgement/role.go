package acknowledgement

// Role is the actor's position in the escalation hierarchy.
type Role string

const (
	RoleOperator   Role = "OPERATOR"
	RoleSupervisor Role = "SUPERVISOR"
	RoleExecutive  Role = "EXECUTIVE"
)

// Roles lists every role from lowest to highest.
var Roles = []Role{RoleOperator, RoleSupervisor, RoleExecutive}

// Rank returns the role's position in Roles, or -1 for unknown roles.
func (r Role) Rank() int {
	for i, known := range Roles {
		if r == known {
			return i
		}
	}
	return -1
}

func (r Role) Valid() bool { return r.Rank() >= 0 }

// CanEscalate reports whether a role above r exists to escalate to.
func (r Role) CanEscalate() bool {
	rank := r.Rank()
	return rank >= 0 && rank < len(Roles)-1
}

// Permits reports whether r may record decision d.
func (r Role) Permits(d Decision) bool {
	if d == DecisionEscalate {
		return r.CanEscalate()
	}
	return r.Valid()
}
