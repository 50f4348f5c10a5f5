package domain

// Role is an authorization role of a principal.
type Role string

const (
	RoleAdmin          Role = "admin"
	RoleDepartmentHead Role = "department_head"
	RoleTeamLeader     Role = "team_leader"
	RoleUser           Role = "user"
)

// Principal is the authenticated caller of an operation.
type Principal interface {
	Email() string
	Roles() []Role
	Department() string
	Team() string
}

// HasRole reports whether p holds role r.
func HasRole(p Principal, r Role) bool {
	if p == nil {
		return false
	}
	for _, role := range p.Roles() {
		if role == r {
			return true
		}
	}
	return false
}

// ServicePrincipal is the principal of API key callers. It always has the
// admin role.
type ServicePrincipal struct {
	Name string
}

func (s *ServicePrincipal) Email() string      { return "" }
func (s *ServicePrincipal) Roles() []Role      { return []Role{RoleAdmin} }
func (s *ServicePrincipal) Department() string { return "" }
func (s *ServicePrincipal) Team() string       { return "" }

// SessionPrincipal is a principal restored from a login session.
type SessionPrincipal struct {
	UserEmail      string `json:"email"`
	UserRoles      []Role `json:"roles"`
	UserDepartment string `json:"department,omitempty"`
	UserTeam       string `json:"team,omitempty"`
}

func (s *SessionPrincipal) Email() string      { return s.UserEmail }
func (s *SessionPrincipal) Roles() []Role      { return s.UserRoles }
func (s *SessionPrincipal) Department() string { return s.UserDepartment }
func (s *SessionPrincipal) Team() string       { return s.UserTeam }
