package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jmoiron/sqlx"

	"autokudo/internal/domain"
)

// settingsRow is the fixed primary key of the single settings row.
const settingsRow = 1

type SettingsStore struct {
	db *sqlx.DB
}

func NewSettingsStore(db *sqlx.DB) *SettingsStore {
	return &SettingsStore{db: db}
}

// Load returns nil settings when nothing has been saved yet.
func (s *SettingsStore) Load(ctx context.Context) (*domain.Settings, error) {
	var settings domain.Settings
	query := `
		SELECT feed_search_depth, auto_kudo_enabled, auto_kudo_check_seconds, hide_button_when_auto
		FROM autokudo_settings
		WHERE id = $1`

	err := sqlx.GetContext(ctx, GetExecutor(ctx, s.db), &settings, query, settingsRow)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &settings, nil
}

func (s *SettingsStore) Save(ctx context.Context, settings domain.Settings) error {
	query := `
		INSERT INTO autokudo_settings (id, feed_search_depth, auto_kudo_enabled, auto_kudo_check_seconds, hide_button_when_auto, updated_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		ON CONFLICT (id) DO UPDATE SET
			feed_search_depth = EXCLUDED.feed_search_depth,
			auto_kudo_enabled = EXCLUDED.auto_kudo_enabled,
			auto_kudo_check_seconds = EXCLUDED.auto_kudo_check_seconds,
			hide_button_when_auto = EXCLUDED.hide_button_when_auto,
			updated_at = EXCLUDED.updated_at`

	_, err := GetExecutor(ctx, s.db).ExecContext(ctx, query,
		settingsRow,
		settings.FeedSearchDepth,
		settings.AutoKudoEnabled,
		settings.AutoKudoCheckSeconds,
		settings.HideButtonWhenAuto,
	)
	return err
}
