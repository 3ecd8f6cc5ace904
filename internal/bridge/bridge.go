// Package bridge carries settings and triggers from outside the process to
// the controller: an HTTP API and a watched YAML settings file.
package bridge

import (
	"context"
	"fmt"
	"log/slog"

	"autokudo/internal/domain"
)

// Controller is the part of the kudo controller the bridge drives.
type Controller interface {
	Settings() domain.Settings
	State() domain.ExecutionState
	UpdateSettings(patch domain.SettingsPatch) (domain.Settings, error)
	RunDepth(ctx context.Context, depth int) (*domain.RunSummary, error)
}

type SettingsSaver interface {
	Save(ctx context.Context, settings domain.Settings) error
}

// Applier clamps submitted forms, persists them and delivers them to the
// controller. Every settings surface goes through it.
type Applier struct {
	controller Controller
	store      SettingsSaver
	logger     *slog.Logger
}

// NewApplier creates an Applier. store may be nil, in which case settings are
// only delivered.
func NewApplier(controller Controller, store SettingsSaver, logger *slog.Logger) *Applier {
	return &Applier{
		controller: controller,
		store:      store,
		logger:     logger.With("component", "bridge"),
	}
}

func (a *Applier) Apply(ctx context.Context, form domain.SettingsForm, origin string) (domain.Settings, error) {
	settings := form.Settings()

	if a.store != nil {
		if err := a.store.Save(ctx, settings); err != nil {
			return domain.Settings{}, fmt.Errorf("save settings: %w", err)
		}
	}

	applied, err := a.controller.UpdateSettings(settings.Patch())
	if err != nil {
		return domain.Settings{}, fmt.Errorf("deliver settings: %w", err)
	}

	a.logger.Info("settings applied", "origin", origin)
	return applied, nil
}
