// Package availability computes free meeting slots from a set of busy
// calendar intervals. It is pure computation: callers fetch the busy
// intervals from the calendar backend and interpret the resulting slots.
package availability

import (
	"fmt"
	"sort"
	"time"
)

// Step is the granularity of the candidate scan. Every proposed slot starts
// on a Step boundary relative to the window start.
const Step = 15 * time.Minute

// Default working window, expressed as offsets from midnight UTC.
const (
	DefaultWindowStart = 8 * time.Hour
	DefaultWindowEnd   = 18 * time.Hour
)

// Interval is a busy period on a calendar. Intervals are half-open: an
// interval ending at 10:00 does not conflict with one starting at 10:00.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Overlaps reports whether two half-open intervals share any instant.
func (i Interval) Overlaps(other Interval) bool {
	return i.Start.Before(other.End) && i.End.After(other.Start)
}

// Slot is a proposed free meeting slot.
type Slot struct {
	Start time.Time
	End   time.Time
}

// Duration returns the length of the slot.
func (s Slot) Duration() time.Duration {
	return s.End.Sub(s.Start)
}

// Window is the span of a day in which meetings may be proposed.
type Window struct {
	Start time.Time
	End   time.Time
}

// DayWindow returns the default working window for the day containing t,
// anchored at midnight in t's location.
func DayWindow(t time.Time) Window {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	return Window{
		Start: midnight.Add(DefaultWindowStart),
		End:   midnight.Add(DefaultWindowEnd),
	}
}

// DayWindowFrom returns a working window for the day containing t that
// opens at the given offset from midnight instead of the default. The end
// of the window is unchanged.
func DayWindowFrom(t time.Time, start time.Duration) Window {
	w := DayWindow(t)
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	w.Start = midnight.Add(start)
	return w
}

// FindFreeSlots scans the window in Step increments and returns every
// candidate slot of the given duration that overlaps no busy interval,
// ordered earliest first.
//
// Busy intervals may be unsorted and may overlap each other. A zero or
// negative duration is an error, as is a window too short to hold one slot.
// Zero-value instants in the window or a busy interval are rejected rather
// than scanned from year 1.
func FindFreeSlots(busy []Interval, window Window, duration time.Duration) ([]Slot, error) {
	if duration <= 0 {
		return nil, fmt.Errorf("slot duration must be positive, got %s", duration)
	}
	if window.Start.IsZero() || window.End.IsZero() {
		return nil, fmt.Errorf("window bounds must be real instants, got start %s end %s", window.Start, window.End)
	}
	for _, b := range busy {
		if b.Start.IsZero() || b.End.IsZero() {
			return nil, fmt.Errorf("busy interval has an unset bound: %s to %s", b.Start, b.End)
		}
	}
	if !window.Start.Before(window.End) {
		return nil, fmt.Errorf("window start %s is not before end %s", window.Start, window.End)
	}
	if window.End.Sub(window.Start) < duration {
		return nil, fmt.Errorf("window %s is shorter than the requested %s slot", window.End.Sub(window.Start), duration)
	}

	sorted := make([]Interval, len(busy))
	copy(sorted, busy)
	sort.Slice(sorted, func(i, j int) bool {
		return sorted[i].Start.Before(sorted[j].Start)
	})

	var free []Slot
	for start := window.Start; !start.Add(duration).After(window.End); start = start.Add(Step) {
		cand := Interval{Start: start, End: start.Add(duration)}

		conflict := false
		for _, b := range sorted {
			if !b.Start.Before(cand.End) {
				// Sorted by start, nothing later can overlap.
				break
			}
			if b.Overlaps(cand) {
				conflict = true
				break
			}
		}
		if !conflict {
			free = append(free, Slot(cand))
		}
	}

	return free, nil
}

// FirstFreeSlot returns the earliest free slot in the window, or ok=false
// when the day has no opening of the requested length.
func FirstFreeSlot(busy []Interval, window Window, duration time.Duration) (Slot, bool, error) {
	slots, err := FindFreeSlots(busy, window, duration)
	if err != nil {
		return Slot{}, false, err
	}
	if len(slots) == 0 {
		return Slot{}, false, nil
	}
	return slots[0], true, nil
}
