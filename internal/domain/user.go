package domain

import "time"

// User is a platform operator (agent, admin or service account).
type User struct {
	ID        string
	Email     string
	FirstName string
	LastName  string
	// TokenHash is set for service accounts authenticated through the
	// database token path; nil for OIDC-backed users.
	TokenHash *string
	CreatedAt time.Time
}

// Anonymous principals are attached when authentication fails or the
// identity backends are degraded; they are never cached.
func (u *User) Anonymous() bool {
	return u == nil || u.ID == ""
}

// Contact is the external end-user correspondent.
type Contact struct {
	ID         string
	Name       string
	ExternalID string
	CreatedAt  time.Time
}

// FlowStart references an external automation run that opened (or
// re-engaged) a room.
type FlowStart struct {
	ID        string
	ProjectID string
	FlowUUID  string
	RoomID    *string
	ContactID string
	IsActive  bool
	CreatedAt time.Time
}
