// Package analytics derives read-only views from the urge event log.
// Every function is pure: the same events, clock and location always give
// the same result.
package analytics

import (
	"math"
	"sort"
	"time"

	"github.com/hpungsan/nami/internal/tracker"
)

const day = 24 * time.Hour

// StreakDays returns whole days between now and the start of the last
// event in append order (not the chronologically latest one).
func StreakDays(events []tracker.UrgeEvent, now time.Time) int {
	if len(events) == 0 {
		return 0
	}
	last := events[len(events)-1]
	diff := now.Sub(last.StartTime)
	if diff < 0 {
		diff = -diff
	}
	return int(diff / day)
}

// TotalSaved sums the saved amounts of all events.
func TotalSaved(events []tracker.UrgeEvent) float64 {
	total := 0.0
	for _, e := range events {
		if e.SavedAmount > 0 && !math.IsInf(e.SavedAmount, 0) {
			total += e.SavedAmount
		}
	}
	return total
}

// TriggerHistogram counts events per trigger. All triggers are present,
// zero counts included. An event with several triggers counts in each.
func TriggerHistogram(events []tracker.UrgeEvent) map[tracker.Trigger]int {
	hist := make(map[tracker.Trigger]int, len(tracker.AllTriggers))
	for _, t := range tracker.AllTriggers {
		hist[t] = 0
	}
	for _, e := range events {
		for _, t := range e.Triggers.Triggers() {
			hist[t]++
		}
	}
	return hist
}

// TriggerCount is one histogram bar.
type TriggerCount struct {
	Trigger tracker.Trigger `json:"trigger"`
	Label   string          `json:"label"`
	Count   int             `json:"count"`
}

// TriggerCounts returns the histogram in canonical trigger order.
func TriggerCounts(events []tracker.UrgeEvent) []TriggerCount {
	hist := TriggerHistogram(events)
	out := make([]TriggerCount, 0, len(tracker.AllTriggers))
	for _, t := range tracker.AllTriggers {
		out = append(out, TriggerCount{Trigger: t, Label: t.Label(), Count: hist[t]})
	}
	return out
}

// TimeSlot is a quarter of the day.
type TimeSlot int

const (
	SlotMorning   TimeSlot = iota // [6,12)
	SlotAfternoon                 // [12,18)
	SlotEvening                   // [18,24)
	SlotNight                     // [0,6)
)

// SlotLabels are the display labels of the time slots, by index.
var SlotLabels = [4]string{"朝", "昼", "夜", "深夜"}

// DayLabels are the display labels of the weekdays, Sunday first.
var DayLabels = [7]string{"日", "月", "火", "水", "木", "金", "土"}

// SlotForHour maps a wall-clock hour to its time slot.
func SlotForHour(hour int) TimeSlot {
	switch {
	case hour >= 6 && hour < 12:
		return SlotMorning
	case hour >= 12 && hour < 18:
		return SlotAfternoon
	case hour >= 18:
		return SlotEvening
	default:
		return SlotNight
	}
}

// Heatmap is a weekday x time-slot frequency grid.
// Cells is indexed [weekday][slot] with Sunday = 0.
type Heatmap struct {
	Cells [7][4]int `json:"cells"`
	// Max is the largest cell value, at least 1. Used for scaling only.
	Max int `json:"max"`
}

// Total returns the sum of all cells.
func (h Heatmap) Total() int {
	n := 0
	for _, row := range h.Cells {
		for _, c := range row {
			n += c
		}
	}
	return n
}

// ActivityHeatmap buckets each event once by the weekday and hour of its
// start time in loc. A nil loc means time.Local.
func ActivityHeatmap(events []tracker.UrgeEvent, loc *time.Location) Heatmap {
	if loc == nil {
		loc = time.Local
	}
	var h Heatmap
	for _, e := range events {
		t := e.StartTime.In(loc)
		h.Cells[t.Weekday()][SlotForHour(t.Hour())]++
	}
	h.Max = 1
	for _, row := range h.Cells {
		for _, c := range row {
			h.Max = max(h.Max, c)
		}
	}
	return h
}

// SummaryKind classifies the event log for the summary message.
type SummaryKind string

const (
	SummaryEncourage SummaryKind = "encourage"
	SummaryCaution   SummaryKind = "caution"
	SummaryReassure  SummaryKind = "reassure"
)

const (
	summaryMinEvents    = 3
	summaryHighStrength = 7
)

var summaryMessages = map[SummaryKind]string{
	SummaryEncourage: "記録を続けると、あなたのパターンが見えてきます。",
	SummaryCaution:   "強い衝動を感じることが多いようです。大変な時はSOSページも頼ってください。",
	SummaryReassure:  "落ち着いて対処できている日が多いようです。その調子です。",
}

// Message returns the display text for the kind.
func (k SummaryKind) Message() string {
	return summaryMessages[k]
}

// Summary classifies the log: fewer than 3 events encourages, more than
// half with strength above 7 cautions, otherwise reassures.
func Summary(events []tracker.UrgeEvent) SummaryKind {
	if len(events) < summaryMinEvents {
		return SummaryEncourage
	}
	high := 0
	for _, e := range events {
		if e.Strength > summaryHighStrength {
			high++
		}
	}
	if 2*high > len(events) {
		return SummaryCaution
	}
	return SummaryReassure
}

// TrendPoint is one urge strength sample.
type TrendPoint struct {
	Date     string    `json:"date"` // MM/DD in the report location
	Time     time.Time `json:"time"`
	Strength int       `json:"strength"`
}

// StrengthTrend returns strength samples sorted by start time.
func StrengthTrend(events []tracker.UrgeEvent, loc *time.Location) []TrendPoint {
	if loc == nil {
		loc = time.Local
	}
	points := make([]TrendPoint, 0, len(events))
	for _, e := range events {
		t := e.StartTime.In(loc)
		points = append(points, TrendPoint{
			Date:     t.Format("01/02"),
			Time:     t,
			Strength: e.Strength,
		})
	}
	sort.SliceStable(points, func(i, j int) bool {
		return points[i].Time.Before(points[j].Time)
	})
	return points
}
