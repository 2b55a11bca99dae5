// Package tracker defines the urge-tracking data model: urge events, mood
// logs, the assistant conversation, user settings and the AppData aggregate
// that is persisted as one snapshot.
package tracker

import (
	"fmt"
	"slices"
	"time"
)

// Value ranges.
const (
	MinStrength      = 0
	MaxStrength      = 10
	DefaultStrength  = 5
	MinEffectiveness = -3
	MaxEffectiveness = 3
)

// DefaultNickname is used when no nickname has been configured.
const DefaultNickname = "あなた"

// UrgeEvent is one recorded urge episode, start to resolution.
// It is immutable once appended to the store.
type UrgeEvent struct {
	ID             string         `json:"id"`
	Strength       int            `json:"strength"`
	Triggers       TriggerSet     `json:"triggers"`
	Memo           string         `json:"memo"`
	StartTime      time.Time      `json:"startTime"`
	EndTime        time.Time      `json:"endTime"`
	UsedStrategies []StrategyKind `json:"usedStrategies"`
	Effectiveness  int            `json:"effectiveness"`
	SavedAmount    float64        `json:"savedAmount"`
}

// Clone returns a copy that shares no memory with e.
func (e UrgeEvent) Clone() UrgeEvent {
	e.UsedStrategies = slices.Clone(e.UsedStrategies)
	if e.UsedStrategies == nil {
		e.UsedStrategies = []StrategyKind{}
	}
	return e
}

// MoodLog is a standalone mood snapshot.
type MoodLog struct {
	ID            string    `json:"id"`
	MoodIcon      string    `json:"moodIcon"`
	BodySensation string    `json:"bodySensation"`
	Color         string    `json:"color"`
	Strength      int       `json:"strength"`
	Memo          string    `json:"memo"`
	Timestamp     time.Time `json:"timestamp"`
}

// Role is the author of a chat message.
type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

// Valid reports whether r is a known role.
func (r Role) Valid() bool {
	return r == RoleUser || r == RoleAssistant
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (r *Role) UnmarshalText(b []byte) error {
	role := Role(b)
	if !role.Valid() {
		return fmt.Errorf("unknown role %q", string(b))
	}
	*r = role
	return nil
}

// ChatMessage is one turn in the assistant conversation. The ordered
// sequence of messages is the whole conversation state.
type ChatMessage struct {
	ID        string    `json:"id"`
	Role      Role      `json:"role"`
	Text      string    `json:"text"`
	Timestamp time.Time `json:"timestamp"`
}

// Settings holds user preferences.
type Settings struct {
	Nickname string `json:"nickname"`
}

// AppData is the aggregate root and the unit of persistence.
type AppData struct {
	UrgeEvents    []UrgeEvent   `json:"urgeEvents"`
	MoodLogs      []MoodLog     `json:"moodLogs"`
	AIChatHistory []ChatMessage `json:"aiChatHistory"`
	Settings      Settings      `json:"settings"`
}

// DefaultAppData returns an empty aggregate with the given nickname.
// An empty nickname falls back to DefaultNickname.
func DefaultAppData(nickname string) AppData {
	if nickname == "" {
		nickname = DefaultNickname
	}
	return AppData{
		UrgeEvents:    []UrgeEvent{},
		MoodLogs:      []MoodLog{},
		AIChatHistory: []ChatMessage{},
		Settings:      Settings{Nickname: nickname},
	}
}

// Normalize replaces nil sequences with empty ones so every field is
// present when serialised.
func (d *AppData) Normalize() {
	if d.UrgeEvents == nil {
		d.UrgeEvents = []UrgeEvent{}
	}
	for i := range d.UrgeEvents {
		if d.UrgeEvents[i].UsedStrategies == nil {
			d.UrgeEvents[i].UsedStrategies = []StrategyKind{}
		}
	}
	if d.MoodLogs == nil {
		d.MoodLogs = []MoodLog{}
	}
	if d.AIChatHistory == nil {
		d.AIChatHistory = []ChatMessage{}
	}
}

// Clone returns a deep copy of d.
func (d AppData) Clone() AppData {
	out := AppData{
		UrgeEvents:    make([]UrgeEvent, len(d.UrgeEvents)),
		MoodLogs:      slices.Clone(d.MoodLogs),
		AIChatHistory: slices.Clone(d.AIChatHistory),
		Settings:      d.Settings,
	}
	for i, e := range d.UrgeEvents {
		out.UrgeEvents[i] = e.Clone()
	}
	out.Normalize()
	return out
}
