package service

//go:generate mockgen -source=interfaces.go -destination=mocks/mocks.go -package=mocks

import (
	"context"

	"github.com/google/uuid"

	"autokudo/internal/domain"
)

type FeedSource interface {
	FetchPage(ctx context.Context, cursor int64) ([]domain.FeedEntry, error)
}

type KudoSink interface {
	GiveKudo(ctx context.Context, activity domain.Activity) (domain.KudoReceipt, error)
}

// Display shows run progress and the manual trigger.
type Display interface {
	SetStatus(text string)
	SetTriggerVisible(visible bool)
}

// SettingsStore persists settings. Load returns nil, nil when nothing is stored.
type SettingsStore interface {
	Load(ctx context.Context) (*domain.Settings, error)
	Save(ctx context.Context, settings domain.Settings) error
}

type RunRecorder interface {
	Record(ctx context.Context, run *domain.RunRecord) error
}

type Publisher interface {
	Publish(ctx context.Context, runID uuid.UUID, outcome domain.KudoOutcome) error
	Close() error
}
