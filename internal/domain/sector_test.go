package domain

import (
	"testing"
	"time"
)

// dayAt builds a fixed UTC timestamp on the given weekday.
func dayAt(t *testing.T, weekday time.Weekday, clock string) time.Time {
	t.Helper()
	// 2026-08-31 is a Monday.
	base := time.Date(2026, 8, 31, 0, 0, 0, 0, time.UTC)
	for base.Weekday() != weekday {
		base = base.AddDate(0, 0, 1)
	}
	parsed, err := time.Parse("15:04", clock)
	if err != nil {
		t.Fatalf("bad clock %q: %v", clock, err)
	}
	return base.Add(time.Duration(parsed.Hour())*time.Hour + time.Duration(parsed.Minute())*time.Minute)
}

func TestWorkingHoursAttending(t *testing.T) {
	hours := WorkingHours{
		Weekdays: &TimeWindow{Start: "09:00", End: "18:00"},
		Saturday: &TimeWindow{Start: "10:00", End: "14:00"},
	}

	cases := []struct {
		name string
		at   time.Time
		want bool
	}{
		{"weekday inside", dayAt(t, time.Tuesday, "10:30"), true},
		{"weekday at open", dayAt(t, time.Tuesday, "09:00"), true},
		{"weekday at close", dayAt(t, time.Tuesday, "18:00"), false},
		{"weekday before open", dayAt(t, time.Tuesday, "08:59"), false},
		{"saturday inside", dayAt(t, time.Saturday, "11:00"), true},
		{"saturday outside", dayAt(t, time.Saturday, "15:00"), false},
		{"sunday no window", dayAt(t, time.Sunday, "11:00"), false},
	}
	for _, tc := range cases {
		if got := hours.Attending(tc.at); got != tc.want {
			t.Errorf("%s: attending = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestCanAttendOffHoursEscape(t *testing.T) {
	sector := &Sector{
		WorkingHours: WorkingHours{
			Weekdays:       &TimeWindow{Start: "09:00", End: "18:00"},
			OpenInOffHours: true,
		},
	}
	if !sector.CanAttend(dayAt(t, time.Sunday, "03:00")) {
		t.Fatal("open_in_off_hours sector refused an off-hours room")
	}

	sector.WorkingHours.OpenInOffHours = false
	if sector.CanAttend(dayAt(t, time.Sunday, "03:00")) {
		t.Fatal("closed sector accepted an off-hours room")
	}
	if !sector.CanAttend(dayAt(t, time.Wednesday, "12:00")) {
		t.Fatal("sector refused a room inside its schedule")
	}
}

func TestTimeWindowRejectsMalformedClock(t *testing.T) {
	w := TimeWindow{Start: "9am", End: "6pm"}
	if w.Contains(dayAt(t, time.Monday, "12:00")) {
		t.Fatal("malformed window matched")
	}
}
