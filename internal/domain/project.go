package domain

import "time"

// RoutingPolicy selects the agent ordering strategy for a project.
type RoutingPolicy string

const (
	RoutingQueuePriority RoutingPolicy = "QUEUE_PRIORITY"
	RoutingGeneral       RoutingPolicy = "GENERAL"
)

// Project config keys.
const (
	ConfigFilterOfflineAgents = "filter_offline_agents"
	ConfigPrincipalProject    = "its_principal"
	ConfigSecondaryOf         = "secondary_project"
)

// Project is the tenant boundary. Immutable after creation except for
// Config.
type Project struct {
	ID            string
	Name          string
	Timezone      string
	RoutingPolicy RoutingPolicy
	Config        map[string]any
	CreatedAt     time.Time
}

// ConfigBool reads a boolean flag from the project config map.
func (p *Project) ConfigBool(key string) bool {
	if p == nil || p.Config == nil {
		return false
	}
	v, ok := p.Config[key].(bool)
	return ok && v
}

// ConfigString reads a string value from the project config map.
func (p *Project) ConfigString(key string) string {
	if p == nil || p.Config == nil {
		return ""
	}
	v, _ := p.Config[key].(string)
	return v
}

// Location resolves the project timezone, falling back to UTC.
func (p *Project) Location() *time.Location {
	if p != nil && p.Timezone != "" {
		if loc, err := time.LoadLocation(p.Timezone); err == nil {
			return loc
		}
	}
	return time.UTC
}
