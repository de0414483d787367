package domain

import "time"

// TimeWindow is a daily attending window expressed as "HH:MM" strings in
// the project's local timezone.
type TimeWindow struct {
	Start string `json:"start"`
	End   string `json:"end"`
}

// Contains reports whether the clock time of t falls inside the window.
func (w TimeWindow) Contains(t time.Time) bool {
	start, err := time.Parse("15:04", w.Start)
	if err != nil {
		return false
	}
	end, err := time.Parse("15:04", w.End)
	if err != nil {
		return false
	}
	minute := t.Hour()*60 + t.Minute()
	return minute >= start.Hour()*60+start.Minute() && minute < end.Hour()*60+end.Minute()
}

// WorkingHours describes a sector's attending schedule: one window for
// weekdays plus optional weekend windows. OpenInOffHours lets rooms open
// while the schedule says closed.
type WorkingHours struct {
	Weekdays       *TimeWindow `json:"schedules,omitempty"`
	Saturday       *TimeWindow `json:"saturday,omitempty"`
	Sunday         *TimeWindow `json:"sunday,omitempty"`
	OpenInOffHours bool        `json:"open_in_off_hours"`
}

// Attending reports whether t falls inside the schedule.
func (w WorkingHours) Attending(t time.Time) bool {
	var window *TimeWindow
	switch t.Weekday() {
	case time.Saturday:
		window = w.Saturday
	case time.Sunday:
		window = w.Sunday
	default:
		window = w.Weekdays
	}
	if window == nil {
		return false
	}
	return window.Contains(t)
}

// Sector is an operational unit within a project.
type Sector struct {
	ID                    string
	ProjectID             string
	Name                  string
	RoomsLimit            int
	WorkingHours          WorkingHours
	RequiredTags          bool
	AllowEditCustomFields bool
	OpenOffline           bool
	IsDeleted             bool
	CreatedAt             time.Time
}

// CanAttend reports whether the sector accepts new rooms at t, honoring
// the open-in-off-hours escape hatch.
func (s *Sector) CanAttend(t time.Time) bool {
	if s.WorkingHours.OpenInOffHours {
		return true
	}
	return s.WorkingHours.Attending(t)
}
