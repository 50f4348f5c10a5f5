package domain

import "time"

// User is a person known to the system, either from the directory or from a
// previous login.
type User struct {
	Email      string    `json:"email" db:"email"`
	FirstName  string    `json:"first_name" db:"first_name"`
	LastName   string    `json:"last_name" db:"last_name"`
	Department string    `json:"department,omitempty" db:"department"`
	Team       string    `json:"team,omitempty" db:"team"`
	Roles      []Role    `json:"roles,omitempty" db:"-"`
	LastSeenAt time.Time `json:"last_seen_at,omitempty" db:"last_seen_at"`
}

// Principal returns the user as an authenticated principal.
func (u *User) Principal() Principal {
	roles := u.Roles
	if len(roles) == 0 {
		roles = []Role{RoleUser}
	}
	return &SessionPrincipal{
		UserEmail:      u.Email,
		UserRoles:      roles,
		UserDepartment: u.Department,
		UserTeam:       u.Team,
	}
}

// Notification is an in-app message addressed to a user.
type Notification struct {
	ID        string    `json:"id" db:"id"`
	UserEmail string    `json:"user_email" db:"user_email"`
	HostName  string    `json:"host_name,omitempty" db:"host_name"`
	Title     string    `json:"title" db:"title"`
	Message   string    `json:"message" db:"message"`
	Read      bool      `json:"read" db:"is_read"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
}

// SendNotificationRequest is the request body for sending a notification.
type SendNotificationRequest struct {
	Email   string `json:"email" validate:"required,email"`
	Title   string `json:"title" validate:"required,max=200"`
	Message string `json:"message" validate:"required"`
}

// InstallAgentRequest is the request body for installing the monitoring agent.
type InstallAgentRequest struct {
	Address  string `json:"address" validate:"required,hostname|ip"`
	Port     int    `json:"port,omitempty" validate:"omitempty,min=1,max=65535"`
	Username string `json:"username" validate:"required"`
	Password string `json:"password" validate:"required"`
}

// InstallAgentResponse carries the installer output.
type InstallAgentResponse struct {
	OS      string `json:"os"`
	Command string `json:"command"`
	Output  string `json:"output"`
}
