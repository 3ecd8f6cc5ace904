package bridge

import (
	"context"
	"errors"
	"sync"

	"autokudo/internal/domain"
)

type fakeController struct {
	mu       sync.Mutex
	settings domain.Settings
	state    domain.ExecutionState
	patches  []domain.SettingsPatch
	depths   []int
	summary  *domain.RunSummary
	runErr   error
}

func newFakeController() *fakeController {
	return &fakeController{settings: domain.DefaultSettings()}
}

func (f *fakeController) Settings() domain.Settings {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.settings
}

func (f *fakeController) State() domain.ExecutionState {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeController) UpdateSettings(patch domain.SettingsPatch) (domain.Settings, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.patches = append(f.patches, patch)
	f.settings = f.settings.Merge(patch)
	return f.settings, nil
}

func (f *fakeController) RunDepth(_ context.Context, depth int) (*domain.RunSummary, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.depths = append(f.depths, depth)
	return f.summary, f.runErr
}

func (f *fakeController) updates() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.patches)
}

type fakeStore struct {
	mu    sync.Mutex
	saved []domain.Settings
	err   error
}

func (f *fakeStore) Save(_ context.Context, settings domain.Settings) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.saved = append(f.saved, settings)
	return nil
}

type fakeStatus struct {
	text    string
	visible bool
}

func (f fakeStatus) Text() string         { return f.text }
func (f fakeStatus) TriggerVisible() bool { return f.visible }

type fakeRuns struct {
	runs  []domain.RunRecord
	limit int
	err   error
}

func (f *fakeRuns) Recent(_ context.Context, limit int) ([]domain.RunRecord, error) {
	f.limit = limit
	return f.runs, f.err
}

var errBoom = errors.New("boom")
