package ops

import (
	"context"
	"time"

	"github.com/hpungsan/nami/internal/analytics"
	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/recorder"
	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

// RecordUrgeInput contains parameters for the RecordUrge operation.
// It carries every answer of the wizard at once.
type RecordUrgeInput struct {
	Strength      *int     `name:"strength" validate:"omitempty,min=0,max=10"` // default: 5
	Triggers      []string `name:"triggers" validate:"dive,trigger"`           // ids or labels
	Strategy      string   `name:"strategy" validate:"omitempty,strategy"`     // empty: skipped
	SavedAmount   string   `name:"saved_amount"`                               // free text; invalid means 0
	Memo          string   `name:"memo" validate:"max=2000"`
	Effectiveness int      `name:"effectiveness" validate:"min=-3,max=3"`
	StartTime     time.Time // default: now
	EndTime       time.Time // default: now
}

// RecordUrgeOutput contains the result of the RecordUrge operation.
type RecordUrgeOutput struct {
	Event      tracker.UrgeEvent `json:"event"`
	TotalSaved float64           `json:"total_saved"`
	EventCount int               `json:"event_count"`
}

// RecordUrge runs the urge wizard to completion with the given answers and
// appends the resulting event.
func RecordUrge(ctx context.Context, st *store.Store, input RecordUrgeInput) (*RecordUrgeOutput, error) {
	if err := validateInput(input); err != nil {
		return nil, err
	}

	now := time.Now()
	start := input.StartTime
	if start.IsZero() {
		start = now
	}
	end := input.EndTime
	if end.IsZero() {
		end = now
	}
	strength := tracker.DefaultStrength
	if input.Strength != nil {
		strength = *input.Strength
	}

	var triggers tracker.TriggerSet
	for _, raw := range input.Triggers {
		t, err := tracker.ParseTrigger(raw)
		if err != nil {
			return nil, errors.NewInvalidRequest(err.Error())
		}
		triggers = triggers.With(t)
	}

	f := recorder.Start(start)
	steps := []func(recorder.Flow) (recorder.Flow, error){
		func(f recorder.Flow) (recorder.Flow, error) { return f.SetStrength(strength) },
	}
	for _, t := range triggers.Triggers() {
		steps = append(steps, func(f recorder.Flow) (recorder.Flow, error) { return f.ToggleTrigger(t) })
	}
	steps = append(steps, recorder.Flow.Next)
	if input.Strategy != "" {
		steps = append(steps, func(f recorder.Flow) (recorder.Flow, error) { return f.SelectStrategy(input.Strategy) })
	} else {
		steps = append(steps, recorder.Flow.SkipStrategy)
	}
	steps = append(steps,
		func(f recorder.Flow) (recorder.Flow, error) { return f.SetSavedAmount(input.SavedAmount) },
		func(f recorder.Flow) (recorder.Flow, error) { return f.SetMemo(input.Memo) },
		func(f recorder.Flow) (recorder.Flow, error) { return f.SetEffectiveness(input.Effectiveness) },
	)

	var err error
	for _, step := range steps {
		if f, err = step(f); err != nil {
			return nil, err
		}
	}

	_, event, err := f.Complete(end)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, errors.NewInvalidRequest("start time is required")
	}

	saved := st.AddUrgeEvent(ctx, *event)
	events := st.Snapshot().UrgeEvents
	return &RecordUrgeOutput{
		Event:      saved,
		TotalSaved: analytics.TotalSaved(events),
		EventCount: len(events),
	}, nil
}
