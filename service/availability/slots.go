package availability

import (
	"fmt"
	"time"

	"github.com/wayne-blip/agromedicana-server/cmd/models"
)

// Slot is a computed bookable interval. Slots are derived from the weekly
// schedule plus existing bookings and are never stored.
type Slot struct {
	Start  string `json:"start"`
	End    string `json:"end"`
	Booked bool   `json:"booked"`
	Past   bool   `json:"past"`
}

// GenerateSlots walks the schedule entry for one day and emits contiguous,
// left-aligned slots of the effective duration. A slot shorter than the
// remaining tail of the window is dropped. requestedDuration overrides the
// entry's slot duration when positive.
//
// A slot counts as booked when its start time exactly matches one of
// bookedStarts (the HH:MM starts of pending/accepted consultations for that
// expert and date). Overlap of misaligned bookings is deliberately not
// detected; see the schedule documentation.
//
// A slot is past only when date is the same calendar day as now and the slot
// starts at or before now's time of day.
func GenerateSlots(entry *models.Availability, date time.Time, requestedDuration int, bookedStarts map[string]bool, now time.Time) []Slot {
	if entry == nil || !entry.Enabled {
		return []Slot{}
	}

	start, err := parseClock(entry.StartTime)
	if err != nil {
		return []Slot{}
	}
	end, err := parseClock(entry.EndTime)
	if err != nil {
		return []Slot{}
	}

	length := entry.SlotDuration
	if requestedDuration > 0 {
		length = requestedDuration
	}
	if length <= 0 || start >= end {
		return []Slot{}
	}

	sameDay := date.Year() == now.Year() && date.YearDay() == now.YearDay()
	nowMinutes := now.Hour()*60 + now.Minute()

	slots := []Slot{}
	for cursor := start; cursor+length <= end; cursor += length {
		startClock := formatClock(cursor)
		slots = append(slots, Slot{
			Start:  startClock,
			End:    formatClock(cursor + length),
			Booked: bookedStarts[startClock],
			Past:   sameDay && cursor <= nowMinutes,
		})
	}
	return slots
}

// parseClock converts an HH:MM string to minutes since midnight. The shape
// is exact: two digits, a colon, two digits, nothing else.
func parseClock(clock string) (int, error) {
	if len(clock) != 5 || clock[2] != ':' {
		return 0, fmt.Errorf("invalid time %q", clock)
	}
	var h, m int
	if _, err := fmt.Sscanf(clock, "%d:%d", &h, &m); err != nil {
		return 0, fmt.Errorf("invalid time %q: %v", clock, err)
	}
	if h < 0 || h > 23 || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid time %q", clock)
	}
	return h*60 + m, nil
}

func formatClock(minutes int) string {
	return fmt.Sprintf("%02d:%02d", minutes/60, minutes%60)
}
