package domain

import "time"

// DeletedNameTag is embedded into the name of every soft-deleted queue to
// keep the (sector, name) pair unique.
const DeletedNameTag = "_is_deleted_"

// Queue is a routable bucket inside a sector.
type Queue struct {
	ID          string
	SectorID    string
	Name        string
	RoomsLimit  int
	LimitActive bool
	IsDeleted   bool
	CreatedAt   time.Time
}

// ConcurrencyLimit returns the applicable per-agent concurrent-room limit:
// the queue override when active, else the sector limit.
func (q *Queue) ConcurrencyLimit(sector *Sector) int {
	if q.LimitActive && q.RoomsLimit > 0 {
		return q.RoomsLimit
	}
	return sector.RoomsLimit
}

// DeletedName returns the renamed form used on soft delete. The actor is
// the identifier of whoever requested the deletion, or "system".
func (q *Queue) DeletedName(actor string) string {
	if actor == "" {
		actor = "system"
	}
	return q.Name + DeletedNameTag + actor
}
