package model

import "time"

// Roles understood by the authorization gates.
const (
	RoleUser  = "user"
	RoleAdmin = "admin"
)

// User represents a registered user account.
//
// A user signs in either through GitHub OAuth (GitHubID is set) or with a
// local login and password (PasswordHash is set). Both kinds share the same
// internal string ID (xid), which is what List.By points at.
//
// WHY json:"-" ON PasswordHash?
// The hash must never leave the server: not even in the /api/me response.
// The "-" tag tells encoding/json to skip the field entirely.
type User struct {
	ID           string    `json:"id"        db:"id"`
	GitHubID     int64     `json:"githubId"  db:"github_id"` // 0 for local accounts
	Login        string    `json:"login"     db:"login"`
	Email        string    `json:"email"     db:"email"`
	AvatarURL    string    `json:"avatarUrl" db:"avatar_url"`
	Role         string    `json:"role"      db:"role"`
	PasswordHash string    `json:"-"         db:"password_hash"`
	CreatedAt    time.Time `json:"createdAt" db:"created_at"`
	UpdatedAt    time.Time `json:"updatedAt" db:"updated_at"`
}

// IsAdmin reports whether the user carries the admin role.
func (u *User) IsAdmin() bool {
	return u.Role == RoleAdmin
}

// Requester is the authenticated caller of a request: who they are and
// which role their token grants. The auth middleware attaches it to the
// request context; services use it for ownership checks.
type Requester struct {
	ID   string
	Role string
}

// IsAdmin reports whether the requester carries the admin role.
func (r Requester) IsAdmin() bool {
	return r.Role == RoleAdmin
}
