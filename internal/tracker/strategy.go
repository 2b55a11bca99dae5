package tracker

import (
	"fmt"
	"strings"
)

// StrategyKind identifies a coping technique offered during the urge flow.
type StrategyKind uint8

const (
	StrategyTimer StrategyKind = iota
	StrategyBreathing
	StrategyAlternative
	StrategyUrgeSurfing
	StrategyContact

	strategyKindCount
)

var strategyKindIDs = [strategyKindCount]string{"timer", "breathing", "alternative", "urge-surfing", "contact"}

var strategyKindLabels = [strategyKindCount]string{"10分待つ", "1分呼吸法", "置き換え行動", "衝動の波乗り", "誰かに連絡"}

// Valid reports whether k is one of the known kinds.
func (k StrategyKind) Valid() bool {
	return k < strategyKindCount
}

// String returns the stable id of the kind.
func (k StrategyKind) String() string {
	if !k.Valid() {
		return fmt.Sprintf("strategy(%d)", uint8(k))
	}
	return strategyKindIDs[k]
}

// Label returns the short display label of the kind.
func (k StrategyKind) Label() string {
	if !k.Valid() {
		return k.String()
	}
	return strategyKindLabels[k]
}

// ParseStrategyKind accepts a kind id or display label.
func ParseStrategyKind(s string) (StrategyKind, error) {
	s = strings.TrimSpace(s)
	for i := StrategyKind(0); i < strategyKindCount; i++ {
		if strings.EqualFold(s, strategyKindIDs[i]) || s == strategyKindLabels[i] {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown strategy kind %q", s)
}

// MarshalText implements encoding.TextMarshaler.
func (k StrategyKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid strategy kind %d", uint8(k))
	}
	return []byte(strategyKindIDs[k]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *StrategyKind) UnmarshalText(b []byte) error {
	parsed, err := ParseStrategyKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

// Strategy is a catalog entry. Static reference data, never user data.
type Strategy struct {
	ID          string       `json:"id"`
	Kind        StrategyKind `json:"kind"`
	Title       string       `json:"title"`
	Description string       `json:"description"`
}

// Strategies is the fixed coping-strategy catalog in presentation order.
var Strategies = []Strategy{
	{
		ID:          "timer",
		Kind:        StrategyTimer,
		Title:       "10分待つタイマー",
		Description: "衝動は一時的なもの。10分だけ時間を置いて、波が過ぎ去るのを待ってみましょう。",
	},
	{
		ID:          "breathing",
		Kind:        StrategyBreathing,
		Title:       "1分間の深呼吸",
		Description: "ゆっくりと息を吸い、長く吐き出します。心を落ち着かせ、今この瞬間に集中しましょう。",
	},
	{
		ID:          "alternative",
		Kind:        StrategyAlternative,
		Title:       "別の行動をする",
		Description: "散歩、音楽、簡単な片付けなど、少しでも気持ちが切り替わることを試してみませんか。",
	},
	{
		ID:          "urge-surfing",
		Kind:        StrategyUrgeSurfing,
		Title:       "衝動の波乗り",
		Description: "この衝動を観察してみましょう。どんな感覚ですか？判断せず、ただ波のように現れては消えるのを見守ります。",
	},
	{
		ID:          "contact",
		Kind:        StrategyContact,
		Title:       "誰かに一言連絡",
		Description: "信頼できる友人や家族に「今、少し大変」と一言送るだけでも、気持ちが楽になることがあります。",
	},
}

// LookupStrategy finds a catalog entry by id.
func LookupStrategy(id string) (Strategy, bool) {
	id = strings.TrimSpace(id)
	for _, s := range Strategies {
		if s.ID == id {
			return s, true
		}
	}
	return Strategy{}, false
}
