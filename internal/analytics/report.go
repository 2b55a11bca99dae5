package analytics

import (
	"sort"
	"time"

	"github.com/hpungsan/nami/internal/tracker"
)

// EntryKind distinguishes timeline entries.
type EntryKind string

const (
	EntryUrge EntryKind = "urge"
	EntryMood EntryKind = "mood"
)

// TimelineEntry is one item of the merged history. Exactly one of Urge
// and Mood is set, matching Kind.
type TimelineEntry struct {
	Kind      EntryKind          `json:"kind"`
	Timestamp time.Time          `json:"timestamp"`
	Urge      *tracker.UrgeEvent `json:"urge,omitempty"`
	Mood      *tracker.MoodLog   `json:"mood,omitempty"`
}

// Timeline merges urge events (by start time) and mood logs (by
// timestamp), newest first.
func Timeline(urges []tracker.UrgeEvent, moods []tracker.MoodLog) []TimelineEntry {
	entries := make([]TimelineEntry, 0, len(urges)+len(moods))
	for i := range urges {
		u := urges[i].Clone()
		entries = append(entries, TimelineEntry{Kind: EntryUrge, Timestamp: u.StartTime, Urge: &u})
	}
	for i := range moods {
		m := moods[i]
		entries = append(entries, TimelineEntry{Kind: EntryMood, Timestamp: m.Timestamp, Mood: &m})
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries
}

// Report bundles every derived view for one snapshot.
type Report struct {
	Nickname       string         `json:"nickname"`
	EventCount     int            `json:"event_count"`
	StreakDays     int            `json:"streak_days"`
	TotalSaved     float64        `json:"total_saved"`
	Triggers       []TriggerCount `json:"triggers"`
	Heatmap        Heatmap        `json:"heatmap"`
	Summary        SummaryKind    `json:"summary"`
	SummaryMessage string         `json:"summary_message"`
	Trend          []TrendPoint   `json:"trend"`
	Timezone       string         `json:"timezone"`
	GeneratedAt    time.Time      `json:"generated_at"`
}

// Build computes the report for data at now, bucketing times in loc.
func Build(data tracker.AppData, now time.Time, loc *time.Location) Report {
	if loc == nil {
		loc = time.Local
	}
	events := data.UrgeEvents
	summary := Summary(events)
	return Report{
		Nickname:       data.Settings.Nickname,
		EventCount:     len(events),
		StreakDays:     StreakDays(events, now),
		TotalSaved:     TotalSaved(events),
		Triggers:       TriggerCounts(events),
		Heatmap:        ActivityHeatmap(events, loc),
		Summary:        summary,
		SummaryMessage: summary.Message(),
		Trend:          StrengthTrend(events, loc),
		Timezone:       loc.String(),
		GeneratedAt:    now,
	}
}
