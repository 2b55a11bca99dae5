package ops

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/hpungsan/nami/internal/analytics"
	"github.com/hpungsan/nami/internal/config"
	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

var baseTime = time.Date(2026, 5, 10, 12, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	return store.New(store.NewMemoryBackend(), store.WithClock(func() time.Time { return baseTime }))
}

func intPtr(n int) *int { return &n }

func requireInvalidField(t *testing.T, err error, field string) {
	t.Helper()
	require.True(t, errors.Is(err, errors.ErrInvalidRequest), "expected INVALID_REQUEST, got %v", err)
	ne, ok := err.(*errors.NamiError)
	require.True(t, ok)
	fields, ok := ne.Details["fields"].(map[string]any)
	require.True(t, ok, "details missing fields: %v", ne.Details)
	require.Contains(t, fields, field)
}

func TestPage(t *testing.T) {
	tests := []struct {
		name          string
		limit, offset int
		total         int
		lo, hi        int
		p             Pagination
	}{
		{"defaults", 0, 0, 50, 0, 20, Pagination{Limit: 20, Offset: 0, HasMore: true, Total: 50}},
		{"max clamp", 500, 0, 150, 0, 100, Pagination{Limit: 100, Offset: 0, HasMore: true, Total: 150}},
		{"last page", 20, 40, 50, 40, 50, Pagination{Limit: 20, Offset: 40, HasMore: false, Total: 50}},
		{"past end", 20, 80, 50, 50, 50, Pagination{Limit: 20, Offset: 80, HasMore: false, Total: 50}},
		{"negative offset", 5, -3, 3, 0, 3, Pagination{Limit: 5, Offset: 0, HasMore: false, Total: 3}},
		{"empty", 10, 0, 0, 0, 0, Pagination{Limit: 10, Offset: 0, HasMore: false, Total: 0}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			lo, hi, p := page(tc.limit, tc.offset, tc.total)
			require.Equal(t, tc.lo, lo)
			require.Equal(t, tc.hi, hi)
			require.Equal(t, tc.p, p)
		})
	}
}

func TestRecordUrge_Defaults(t *testing.T) {
	st := newTestStore(t)

	out, err := RecordUrge(context.Background(), st, RecordUrgeInput{StartTime: baseTime})
	require.NoError(t, err)
	require.NotEmpty(t, out.Event.ID)
	require.Equal(t, tracker.DefaultStrength, out.Event.Strength)
	require.Zero(t, out.Event.Triggers.Len())
	require.Empty(t, out.Event.UsedStrategies)
	require.Zero(t, out.Event.SavedAmount)
	require.Equal(t, 1, out.EventCount)
	require.Len(t, st.Snapshot().UrgeEvents, 1)
}

func TestRecordUrge_AllAnswers(t *testing.T) {
	st := newTestStore(t)

	out, err := RecordUrge(context.Background(), st, RecordUrgeInput{
		Strength:      intPtr(8),
		Triggers:      []string{"money", "人", "money"},
		Strategy:      "breathing",
		SavedAmount:   " 1500.5 ",
		Memo:          "pay day",
		Effectiveness: 2,
		StartTime:     baseTime,
		EndTime:       baseTime.Add(10 * time.Minute),
	})
	require.NoError(t, err)

	e := out.Event
	require.Equal(t, 8, e.Strength)
	require.Equal(t, []tracker.Trigger{tracker.TriggerPerson, tracker.TriggerMoney}, e.Triggers.Triggers())
	require.Equal(t, []tracker.StrategyKind{tracker.StrategyBreathing}, e.UsedStrategies)
	require.Equal(t, 1500.5, e.SavedAmount)
	require.Equal(t, "pay day", e.Memo)
	require.Equal(t, 2, e.Effectiveness)
	require.Equal(t, baseTime.Add(10*time.Minute), e.EndTime)
	require.Equal(t, 1500.5, out.TotalSaved)
}

func TestRecordUrge_BadAmountIsZero(t *testing.T) {
	st := newTestStore(t)
	for _, raw := range []string{"abc", "-20", "NaN", ""} {
		out, err := RecordUrge(context.Background(), st, RecordUrgeInput{SavedAmount: raw, StartTime: baseTime})
		require.NoError(t, err, raw)
		require.Zero(t, out.Event.SavedAmount, raw)
	}
}

func TestRecordUrge_EndBeforeStartIsClamped(t *testing.T) {
	st := newTestStore(t)
	out, err := RecordUrge(context.Background(), st, RecordUrgeInput{
		StartTime: baseTime,
		EndTime:   baseTime.Add(-time.Hour),
	})
	require.NoError(t, err)
	require.Equal(t, baseTime, out.Event.EndTime)
}

func TestRecordUrge_Validation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		in    RecordUrgeInput
		field string
	}{
		{"strength high", RecordUrgeInput{Strength: intPtr(11)}, "strength"},
		{"strength low", RecordUrgeInput{Strength: intPtr(-1)}, "strength"},
		{"unknown trigger", RecordUrgeInput{Triggers: []string{"weather"}}, "triggers[0]"},
		{"unknown strategy", RecordUrgeInput{Strategy: "nap"}, "strategy"},
		{"effectiveness", RecordUrgeInput{Effectiveness: 4}, "effectiveness"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := RecordUrge(ctx, st, tc.in)
			requireInvalidField(t, err, tc.field)
		})
	}
	require.Empty(t, st.Snapshot().UrgeEvents)
}

func TestLogMood_Defaults(t *testing.T) {
	st := newTestStore(t)

	out, err := LogMood(context.Background(), st, LogMoodInput{Timestamp: baseTime})
	require.NoError(t, err)
	require.NotEmpty(t, out.Mood.ID)
	require.Equal(t, tracker.DefaultMoodIcon, out.Mood.MoodIcon)
	require.Equal(t, tracker.DefaultMoodColor, out.Mood.Color)
	require.Equal(t, tracker.DefaultStrength, out.Mood.Strength)
	require.Len(t, st.Snapshot().MoodLogs, 1)
}

func TestLogMood_Values(t *testing.T) {
	st := newTestStore(t)

	out, err := LogMood(context.Background(), st, LogMoodInput{
		MoodIcon:      "😔",
		BodySensation: "tight chest",
		Color:         "#F56565",
		Strength:      intPtr(0),
		Memo:          "after work",
		Timestamp:     baseTime,
	})
	require.NoError(t, err)
	require.Equal(t, "😔", out.Mood.MoodIcon)
	require.Equal(t, "tight chest", out.Mood.BodySensation)
	require.Equal(t, "#F56565", out.Mood.Color)
	require.Equal(t, 0, out.Mood.Strength)
}

func TestLogMood_Validation(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := LogMood(ctx, st, LogMoodInput{MoodIcon: "🤖"})
	requireInvalidField(t, err, "mood_icon")

	_, err = LogMood(ctx, st, LogMoodInput{Color: "blue"})
	requireInvalidField(t, err, "color")

	_, err = LogMood(ctx, st, LogMoodInput{Strength: intPtr(12)})
	requireInvalidField(t, err, "strength")

	require.Empty(t, st.Snapshot().MoodLogs)
}

func TestStats(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for i, amount := range []string{"100", "250"} {
		_, err := RecordUrge(ctx, st, RecordUrgeInput{
			Strength:    intPtr(8),
			Triggers:    []string{"money"},
			SavedAmount: amount,
			StartTime:   baseTime.Add(time.Duration(i) * time.Hour),
		})
		require.NoError(t, err)
	}

	cfg := config.DefaultConfig()
	cfg.Timezone = "UTC"
	out, err := Stats(st, cfg, StatsInput{Now: baseTime.Add(72 * time.Hour)})
	require.NoError(t, err)
	require.Equal(t, 2, out.EventCount)
	require.Equal(t, 350.0, out.TotalSaved)
	require.Equal(t, 2, out.StreakDays)
	require.Equal(t, "UTC", out.Timezone)
	require.Equal(t, 2, out.Heatmap.Total())
	require.Equal(t, tracker.DefaultNickname, out.Nickname)
}

func TestStats_InvalidTimezone(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Timezone = "Mars/Olympus"
	_, err := Stats(newTestStore(t), cfg, StatsInput{})
	require.True(t, errors.Is(err, errors.ErrInvalidRequest))
}

func TestHistory(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	_, err := RecordUrge(ctx, st, RecordUrgeInput{StartTime: baseTime})
	require.NoError(t, err)
	_, err = LogMood(ctx, st, LogMoodInput{Timestamp: baseTime.Add(time.Hour)})
	require.NoError(t, err)
	_, err = RecordUrge(ctx, st, RecordUrgeInput{StartTime: baseTime.Add(2 * time.Hour)})
	require.NoError(t, err)

	out, err := History(st, HistoryInput{})
	require.NoError(t, err)
	require.Equal(t, "timestamp_desc", out.Sort)
	require.Len(t, out.Items, 3)
	require.Equal(t, analytics.EntryUrge, out.Items[0].Kind)
	require.Equal(t, analytics.EntryMood, out.Items[1].Kind)
	require.Equal(t, 3, out.Pagination.Total)

	urges, err := History(st, HistoryInput{Kind: "urge"})
	require.NoError(t, err)
	require.Len(t, urges.Items, 2)

	moods, err := History(st, HistoryInput{Kind: "mood"})
	require.NoError(t, err)
	require.Len(t, moods.Items, 1)

	paged, err := History(st, HistoryInput{Limit: 2, Offset: 2})
	require.NoError(t, err)
	require.Len(t, paged.Items, 1)
	require.False(t, paged.Pagination.HasMore)

	_, err = History(st, HistoryInput{Kind: "chat"})
	requireInvalidField(t, err, "kind")
}

func TestHistory_EmptyItemsNotNil(t *testing.T) {
	out, err := History(newTestStore(t), HistoryInput{})
	require.NoError(t, err)
	require.NotNil(t, out.Items)
	require.Empty(t, out.Items)
}

func TestChatHistory_WindowsFromNewest(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()
	for _, text := range []string{"a", "b", "c", "d", "e"} {
		st.AddChatMessage(ctx, tracker.ChatMessage{Role: tracker.RoleUser, Text: text})
	}

	texts := func(msgs []tracker.ChatMessage) []string {
		out := make([]string, len(msgs))
		for i, m := range msgs {
			out[i] = m.Text
		}
		return out
	}

	out := ChatHistory(st, ChatHistoryInput{Limit: 2})
	require.Equal(t, []string{"d", "e"}, texts(out.Items))
	require.True(t, out.Pagination.HasMore)

	out = ChatHistory(st, ChatHistoryInput{Limit: 2, Offset: 4})
	require.Equal(t, []string{"a"}, texts(out.Items))
	require.False(t, out.Pagination.HasMore)

	out = ChatHistory(st, ChatHistoryInput{Limit: 2, Offset: 9})
	require.Empty(t, out.Items)
}

func TestSettings(t *testing.T) {
	st := newTestStore(t)
	ctx := context.Background()

	require.Equal(t, tracker.DefaultNickname, GetSettings(st).Settings.Nickname)

	out, err := UpdateSettings(ctx, st, UpdateSettingsInput{Nickname: "  なみ  "})
	require.NoError(t, err)
	require.Equal(t, "なみ", out.Settings.Nickname)
	require.Equal(t, "なみ", GetSettings(st).Settings.Nickname)

	_, err = UpdateSettings(ctx, st, UpdateSettingsInput{Nickname: "   "})
	requireInvalidField(t, err, "nickname")
	require.Equal(t, "なみ", GetSettings(st).Settings.Nickname)
}

func TestListStrategies(t *testing.T) {
	out := ListStrategies()
	require.Len(t, out.Items, len(tracker.Strategies))
	require.Equal(t, "timer", out.Items[0].ID)

	out.Items[0].Title = "changed"
	require.NotEqual(t, "changed", tracker.Strategies[0].Title)
}
