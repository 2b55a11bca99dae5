package ops

import (
	"context"
	"time"

	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

// LogMoodInput contains parameters for the LogMood operation.
type LogMoodInput struct {
	MoodIcon      string `name:"mood_icon" validate:"omitempty,moodicon"`   // default: 😊
	BodySensation string `name:"body_sensation" validate:"max=500"`
	Color         string `name:"color" validate:"omitempty,hexcolor"`       // default: #63B3ED
	Strength      *int   `name:"strength" validate:"omitempty,min=0,max=10"` // default: 5
	Memo          string `name:"memo" validate:"max=2000"`
	Timestamp     time.Time // default: now
}

// LogMoodOutput contains the result of the LogMood operation.
type LogMoodOutput struct {
	Mood tracker.MoodLog `json:"mood"`
}

// LogMood appends a standalone mood snapshot.
func LogMood(ctx context.Context, st *store.Store, input LogMoodInput) (*LogMoodOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	m := tracker.MoodLog{
		MoodIcon:      input.MoodIcon,
		BodySensation: input.BodySensation,
		Color:         input.Color,
		Strength:      tracker.DefaultStrength,
		Memo:          input.Memo,
		Timestamp:     input.Timestamp,
	}
	if m.MoodIcon == "" {
		m.MoodIcon = tracker.DefaultMoodIcon
	}
	if m.Color == "" {
		m.Color = tracker.DefaultMoodColor
	}
	if input.Strength != nil {
		m.Strength = *input.Strength
	}
	if m.Timestamp.IsZero() {
		m.Timestamp = time.Now()
	}

	return &LogMoodOutput{Mood: st.AddMoodLog(ctx, m)}, nil
}
