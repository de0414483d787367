package domain

import "time"

// Role enumerates project-level roles.
type Role string

const (
	RoleAdmin     Role = "admin"
	RoleAttendant Role = "attendant"
	RoleExternal  Role = "external"
)

// PresenceStatus enumerates agent presence states.
type PresenceStatus string

const (
	StatusOnline  PresenceStatus = "ONLINE"
	StatusOffline PresenceStatus = "OFFLINE"
	StatusBusy    PresenceStatus = "BUSY"
)

// ProjectPermission binds a user to a project with a role and a presence
// status. Unique per (project, user).
type ProjectPermission struct {
	ID         string
	ProjectID  string
	UserID     string
	Role       Role
	Status     PresenceStatus
	LastSeenAt time.Time
	CreatedAt  time.Time
}

// CanCommunicateInternally reports whether the permission grants the
// external-facade capability.
func (p *ProjectPermission) CanCommunicateInternally() bool {
	return p != nil && (p.Role == RoleAdmin || p.Role == RoleExternal)
}

// Scope roles for sector and queue authorizations.
const (
	ScopeRoleAgent   = "agent"
	ScopeRoleManager = "manager"
)

// SectorAuthorization refines a ProjectPermission with a role on a sector.
type SectorAuthorization struct {
	ID           string
	SectorID     string
	PermissionID string
	Role         string
}

// QueueAuthorization refines a ProjectPermission with a role on a queue.
type QueueAuthorization struct {
	ID           string
	QueueID      string
	PermissionID string
	Role         string
}

// InServiceStatusName is the one custom status that does not disqualify
// an agent from routing.
const InServiceStatusName = "In-Service"

// CustomStatus is a user-defined presence modifier attached to a
// permission (e.g. "Lunch", "In-Service").
type CustomStatus struct {
	ID           string
	PermissionID string
	Name         string
	IsActive     bool
	CreatedAt    time.Time
}
