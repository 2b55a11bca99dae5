package ops

import (
	"github.com/hpungsan/nami/internal/analytics"
	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

// HistoryInput contains parameters for the History operation.
type HistoryInput struct {
	Kind   string `name:"kind" validate:"omitempty,oneof=urge mood"` // empty: both
	Limit  int    // default: 20, max: 100
	Offset int    // default: 0
}

// HistoryOutput contains the result of the History operation.
type HistoryOutput struct {
	Items      []analytics.TimelineEntry `json:"items"`
	Pagination Pagination                `json:"pagination"`
	Sort       string                    `json:"sort"`
}

// History returns urge events and mood logs merged, newest first.
func History(st *store.Store, input HistoryInput) (*HistoryOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	data := st.Snapshot()
	urges, moods := data.UrgeEvents, data.MoodLogs
	switch analytics.EntryKind(input.Kind) {
	case analytics.EntryUrge:
		moods = nil
	case analytics.EntryMood:
		urges = nil
	}

	entries := analytics.Timeline(urges, moods)
	lo, hi, p := page(input.Limit, input.Offset, len(entries))

	items := entries[lo:hi]
	if items == nil {
		items = []analytics.TimelineEntry{}
	}
	return &HistoryOutput{
		Items:      items,
		Pagination: p,
		Sort:       "timestamp_desc",
	}, nil
}

// ChatHistoryInput contains parameters for the ChatHistory operation.
type ChatHistoryInput struct {
	Limit  int // default: 20, max: 100
	Offset int // counted from the newest message
}

// ChatHistoryOutput contains the result of the ChatHistory operation.
type ChatHistoryOutput struct {
	Items      []tracker.ChatMessage `json:"items"`
	Pagination Pagination            `json:"pagination"`
}

// ChatHistory returns a window of the conversation in chronological order.
// Offset 0 is the most recent window.
func ChatHistory(st *store.Store, input ChatHistoryInput) *ChatHistoryOutput {
	msgs := st.ChatHistory()
	total := len(msgs)
	lo, hi, p := page(input.Limit, input.Offset, total)

	// Window counted from the end, returned oldest first.
	items := append([]tracker.ChatMessage{}, msgs[total-hi:total-lo]...)
	return &ChatHistoryOutput{Items: items, Pagination: p}
}
