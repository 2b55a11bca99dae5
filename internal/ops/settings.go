package ops

import (
	"context"
	"strings"

	"github.com/hpungsan/nami/internal/store"
	"github.com/hpungsan/nami/internal/tracker"
)

// SettingsOutput contains the current settings.
type SettingsOutput struct {
	Settings tracker.Settings `json:"settings"`
}

// GetSettings returns the current settings.
func GetSettings(st *store.Store) *SettingsOutput {
	return &SettingsOutput{Settings: st.Snapshot().Settings}
}

// UpdateSettingsInput contains parameters for the UpdateSettings operation.
type UpdateSettingsInput struct {
	Nickname string `name:"nickname" validate:"required,max=30"`
}

// UpdateSettings changes the nickname.
func UpdateSettings(ctx context.Context, st *store.Store, input UpdateSettingsInput) (*SettingsOutput, error) {
	input.Nickname = strings.TrimSpace(input.Nickname)
	if err := validateInput(input); err != nil {
		return nil, err
	}
	settings := st.UpdateSettings(ctx, func(s *tracker.Settings) {
		s.Nickname = input.Nickname
	})
	return &SettingsOutput{Settings: settings}, nil
}

// StrategiesOutput lists the coping-strategy catalog.
type StrategiesOutput struct {
	Items []tracker.Strategy `json:"items"`
}

// ListStrategies returns the fixed catalog in presentation order.
func ListStrategies() *StrategiesOutput {
	return &StrategiesOutput{Items: append([]tracker.Strategy(nil), tracker.Strategies...)}
}
