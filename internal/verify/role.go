// role.go -- Closed set of onboarding roles and their redirect destinations.
package verify

import "fmt"

// Role selects the post-verification destination. Values are the user_type query values.
type Role string

const (
	RoleAgentSelf   Role = "agent_self" // self-onboarding agent
	RoleAgentTM     Role = "agent_tm"   // agent onboarded by a team member
	RoleDistributor Role = "ds"
	RoleTeamMember  Role = "tm"
)

// invalidRoleMessage is returned verbatim to callers passing an unknown user_type.
const invalidRoleMessage = "User type is invalid. Allowed values are 'agent_self', 'agent_tm', 'ds', 'tm'"

// ParseRole validates a user_type value. Unknown values wrap ErrValidation.
func ParseRole(s string) (Role, error) {
	r := Role(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: unknown user type %q", ErrValidation, s)
	}
	return r, nil
}

// Valid reports whether r is one of the four known roles.
func (r Role) Valid() bool {
	switch r {
	case RoleAgentSelf, RoleAgentTM, RoleDistributor, RoleTeamMember:
		return true
	}
	return false
}

// carriesPayload reports whether the destination expects the ?data= identity payload.
func (r Role) carriesPayload() bool {
	return r == RoleAgentSelf || r == RoleAgentTM
}

// Destinations maps each role to its front-end URL. A missing or empty entry
// makes callbacks for that role fail with ErrInternalInconsistency.
type Destinations map[Role]string
