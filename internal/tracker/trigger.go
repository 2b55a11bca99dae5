package tracker

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Trigger is a contextual cause associated with an urge event.
type Trigger uint8

const (
	TriggerPerson Trigger = iota
	TriggerPlace
	TriggerEmotion
	TriggerMoney
	TriggerOther

	triggerCount
)

// AllTriggers lists every trigger in canonical order.
var AllTriggers = []Trigger{
	TriggerPerson,
	TriggerPlace,
	TriggerEmotion,
	TriggerMoney,
	TriggerOther,
}

var triggerIDs = [triggerCount]string{"person", "place", "emotion", "money", "other"}

// Legacy display labels, accepted on decode. Older snapshots store these.
var triggerLabels = [triggerCount]string{"人", "場所", "感情", "お金", "その他"}

// Valid reports whether t is one of the known triggers.
func (t Trigger) Valid() bool {
	return t < triggerCount
}

// String returns the stable id of the trigger.
func (t Trigger) String() string {
	if !t.Valid() {
		return fmt.Sprintf("trigger(%d)", uint8(t))
	}
	return triggerIDs[t]
}

// Label returns the display label of the trigger.
func (t Trigger) Label() string {
	if !t.Valid() {
		return t.String()
	}
	return triggerLabels[t]
}

// ParseTrigger accepts a trigger id or display label.
func ParseTrigger(s string) (Trigger, error) {
	s = strings.TrimSpace(s)
	for i := Trigger(0); i < triggerCount; i++ {
		if strings.EqualFold(s, triggerIDs[i]) || s == triggerLabels[i] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown trigger %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (t Trigger) MarshalText() ([]byte, error) {
	if !t.Valid() {
		return nil, fmt.Errorf("invalid trigger %d", uint8(t))
	}
	return []byte(triggerIDs[t]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (t *Trigger) UnmarshalText(b []byte) error {
	parsed, err := ParseTrigger(string(b))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// TriggerSet is a set of triggers. The zero value is the empty set.
// Being a plain value, a TriggerSet is never shared between copies.
type TriggerSet uint8

// NewTriggerSet returns a set containing ts. Duplicates collapse.
func NewTriggerSet(ts ...Trigger) TriggerSet {
	var s TriggerSet
	for _, t := range ts {
		s = s.With(t)
	}
	return s
}

// Has reports whether t is in the set.
func (s TriggerSet) Has(t Trigger) bool {
	return t.Valid() && s&(1<<t) != 0
}

// With returns the set with t added.
func (s TriggerSet) With(t Trigger) TriggerSet {
	if !t.Valid() {
		return s
	}
	return s | 1<<t
}

// Toggle returns the set with t's membership flipped.
func (s TriggerSet) Toggle(t Trigger) TriggerSet {
	if !t.Valid() {
		return s
	}
	return s ^ 1<<t
}

// Len returns the number of triggers in the set.
func (s TriggerSet) Len() int {
	n := 0
	for _, t := range AllTriggers {
		if s.Has(t) {
			n++
		}
	}
	return n
}

// Triggers returns the members in canonical order.
func (s TriggerSet) Triggers() []Trigger {
	out := make([]Trigger, 0, s.Len())
	for _, t := range AllTriggers {
		if s.Has(t) {
			out = append(out, t)
		}
	}
	return out
}

// Labels returns the display labels of the members in canonical order.
func (s TriggerSet) Labels() []string {
	out := make([]string, 0, s.Len())
	for _, t := range s.Triggers() {
		out = append(out, t.Label())
	}
	return out
}

// MarshalJSON encodes the set as an array of trigger ids.
func (s TriggerSet) MarshalJSON() ([]byte, error) {
	return json.Marshal(s.Triggers())
}

// UnmarshalJSON decodes an array of trigger ids or labels. null is the empty set.
func (s *TriggerSet) UnmarshalJSON(b []byte) error {
	var ts []Trigger
	if err := json.Unmarshal(b, &ts); err != nil {
		return err
	}
	*s = NewTriggerSet(ts...)
	return nil
}
