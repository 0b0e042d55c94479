package scheduling

import (
	"time"

	"github.com/clinic/clinic/pkg/civil"
)

// SlotLength is the booking granularity.
const SlotLength = 30 * time.Minute

// Window is a doctor's working hours, [From, Until).
type Window struct {
	From  civil.TimeOfDay
	Until civil.TimeOfDay
}

// OnGrid reports whether t is a slot start inside the window.
func (w Window) OnGrid(t civil.TimeOfDay) bool {
	if t < w.From || t >= w.Until {
		return false
	}
	return (int(t)-int(w.From))%int(SlotLength/time.Minute) == 0
}

// NextBoundary rounds t up to the next slot boundary of the day. A time
// already on a boundary moves to the following one.
func NextBoundary(t civil.TimeOfDay) civil.TimeOfDay {
	step := civil.TimeOfDay(SlotLength / time.Minute)
	return (t/step + 1) * step
}

// ComputeSlots returns the free slot starts of w on date, in ascending
// order. booked holds the times of appointments that occupy a slot. now is
// the current instant in the clinic timezone: past dates have no slots, and
// on today's date every slot before the next boundary after now is dropped.
func ComputeSlots(w Window, date civil.Date, booked []civil.TimeOfDay, now time.Time) []civil.TimeOfDay {
	slots := []civil.TimeOfDay{}
	today := civil.DateOf(now)
	if date.Before(today) || w.From >= w.Until {
		return slots
	}

	taken := make(map[civil.TimeOfDay]bool, len(booked))
	for _, t := range booked {
		taken[t] = true
	}

	var cutoff civil.TimeOfDay
	if date.Equal(today) {
		cutoff = NextBoundary(civil.TimeOfDayOf(now))
	}

	for t := w.From; t < w.Until; t = t.Add(SlotLength) {
		if t < cutoff || taken[t] {
			continue
		}
		slots = append(slots, t)
	}
	return slots
}
