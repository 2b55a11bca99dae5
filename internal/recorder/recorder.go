// Package recorder implements the urge-recording wizard as an immutable
// state machine. Each transition returns a new Flow; a Flow value is never
// modified after it is returned.
//
//	StrengthTriggers -> Strategy -> Feedback -> Committed
//	        \______________\___________\-----> Cancelled
package recorder

import (
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/hpungsan/nami/internal/errors"
	"github.com/hpungsan/nami/internal/tracker"
)

// Step is a wizard state.
type Step int

const (
	StepIdle Step = iota
	StepStrengthTriggers
	StepStrategy
	StepFeedback
	StepCommitted
	StepCancelled
)

var stepNames = map[Step]string{
	StepIdle:             "idle",
	StepStrengthTriggers: "strength_triggers",
	StepStrategy:         "strategy",
	StepFeedback:         "feedback",
	StepCommitted:        "committed",
	StepCancelled:        "cancelled",
}

func (s Step) String() string {
	if name, ok := stepNames[s]; ok {
		return name
	}
	return "unknown"
}

// Active reports whether the wizard is collecting input.
func (s Step) Active() bool {
	return s == StepStrengthTriggers || s == StepStrategy || s == StepFeedback
}

// Draft holds the fields collected so far.
type Draft struct {
	StartTime     time.Time
	Strength      int
	Triggers      tracker.TriggerSet
	Strategies    []tracker.StrategyKind
	SavedAmount   float64
	Memo          string
	Effectiveness int
}

// Flow is the wizard state: the current step plus the draft.
// The zero Flow is idle.
type Flow struct {
	step  Step
	draft Draft
}

// Start begins a new flow captured at startTime.
func Start(startTime time.Time) Flow {
	return Flow{
		step: StepStrengthTriggers,
		draft: Draft{
			StartTime:  startTime,
			Strength:   tracker.DefaultStrength,
			Strategies: []tracker.StrategyKind{},
		},
	}
}

// Step returns the current step.
func (f Flow) Step() Step { return f.step }

// Draft returns a copy of the collected fields.
func (f Flow) Draft() Draft {
	d := f.draft
	d.Strategies = slices.Clone(d.Strategies)
	return d
}

// SetStrength records the urge strength, clamped to 0..10.
func (f Flow) SetStrength(n int) (Flow, error) {
	if err := f.expect("set_strength", StepStrengthTriggers); err != nil {
		return f, err
	}
	next := f.clone()
	next.draft.Strength = clamp(n, tracker.MinStrength, tracker.MaxStrength)
	return next, nil
}

// ToggleTrigger flips membership of t in the trigger set.
func (f Flow) ToggleTrigger(t tracker.Trigger) (Flow, error) {
	if err := f.expect("toggle_trigger", StepStrengthTriggers); err != nil {
		return f, err
	}
	if !t.Valid() {
		return f, errors.NewInvalidRequest("unknown trigger")
	}
	next := f.clone()
	next.draft.Triggers = next.draft.Triggers.Toggle(t)
	return next, nil
}

// Next advances from strength/triggers to strategy selection.
func (f Flow) Next() (Flow, error) {
	if err := f.expect("next", StepStrengthTriggers); err != nil {
		return f, err
	}
	next := f.clone()
	next.step = StepStrategy
	return next, nil
}

// SelectStrategy records the kind of the catalog entry id and advances.
func (f Flow) SelectStrategy(id string) (Flow, error) {
	if err := f.expect("select_strategy", StepStrategy); err != nil {
		return f, err
	}
	s, ok := tracker.LookupStrategy(id)
	if !ok {
		return f, errors.NewInvalidRequest("unknown strategy: " + id)
	}
	next := f.clone()
	next.draft.Strategies = append(next.draft.Strategies, s.Kind)
	next.step = StepFeedback
	return next, nil
}

// SkipStrategy advances without recording a strategy.
func (f Flow) SkipStrategy() (Flow, error) {
	if err := f.expect("skip_strategy", StepStrategy); err != nil {
		return f, err
	}
	next := f.clone()
	next.step = StepFeedback
	return next, nil
}

// SetSavedAmount parses raw as a non-negative amount. Empty, malformed,
// negative or non-finite input becomes 0.
func (f Flow) SetSavedAmount(raw string) (Flow, error) {
	if err := f.expect("set_saved_amount", StepFeedback); err != nil {
		return f, err
	}
	next := f.clone()
	next.draft.SavedAmount = ParseAmount(raw)
	return next, nil
}

// SetMemo records free text.
func (f Flow) SetMemo(memo string) (Flow, error) {
	if err := f.expect("set_memo", StepFeedback); err != nil {
		return f, err
	}
	next := f.clone()
	next.draft.Memo = memo
	return next, nil
}

// SetEffectiveness records the self-rating, clamped to -3..+3.
func (f Flow) SetEffectiveness(n int) (Flow, error) {
	if err := f.expect("set_effectiveness", StepFeedback); err != nil {
		return f, err
	}
	next := f.clone()
	next.draft.Effectiveness = clamp(n, tracker.MinEffectiveness, tracker.MaxEffectiveness)
	return next, nil
}

// Complete builds the final event with EndTime = endTime and moves to
// Committed. A draft without a StartTime completes to nothing: the flow is
// returned unchanged with a nil event and nil error.
//
// The returned event has no ID; the store assigns one on append.
func (f Flow) Complete(endTime time.Time) (Flow, *tracker.UrgeEvent, error) {
	if err := f.expect("complete", StepFeedback); err != nil {
		return f, nil, err
	}
	if f.draft.StartTime.IsZero() {
		return f, nil, nil
	}
	if endTime.Before(f.draft.StartTime) {
		endTime = f.draft.StartTime
	}

	event := &tracker.UrgeEvent{
		Strength:       f.draft.Strength,
		Triggers:       f.draft.Triggers,
		Memo:           f.draft.Memo,
		StartTime:      f.draft.StartTime,
		EndTime:        endTime,
		UsedStrategies: slices.Clone(f.draft.Strategies),
		Effectiveness:  f.draft.Effectiveness,
		SavedAmount:    f.draft.SavedAmount,
	}

	next := f.clone()
	next.step = StepCommitted
	return next, event, nil
}

// Cancel discards the draft. Allowed from any active step.
func (f Flow) Cancel() (Flow, error) {
	if !f.step.Active() {
		return f, errors.NewInvalidTransition("cancel", f.step.String())
	}
	return Flow{step: StepCancelled}, nil
}

// ParseAmount converts user input to a non-negative finite amount, or 0.
func ParseAmount(raw string) float64 {
	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
		return 0
	}
	return v
}

func (f Flow) expect(action string, step Step) error {
	if f.step != step {
		return errors.NewInvalidTransition(action, f.step.String())
	}
	return nil
}

func (f Flow) clone() Flow {
	f.draft.Strategies = slices.Clone(f.draft.Strategies)
	return f
}

func clamp(n, lo, hi int) int {
	return max(lo, min(n, hi))
}
