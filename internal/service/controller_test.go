package service

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"
	"go.uber.org/mock/gomock"

	"autokudo/internal/config"
	"autokudo/internal/domain"
	"autokudo/internal/service/mocks"
)

type ControllerTestSuite struct {
	suite.Suite
	ctrl *gomock.Controller

	source    *mocks.MockFeedSource
	sink      *mocks.MockKudoSink
	display   *mocks.MockDisplay
	recorder  *mocks.MockRunRecorder
	publisher *mocks.MockPublisher

	controller *Controller
	logger     *slog.Logger
}

func (s *ControllerTestSuite) SetupTest() {
	s.ctrl = gomock.NewController(s.T())

	s.source = mocks.NewMockFeedSource(s.ctrl)
	s.sink = mocks.NewMockKudoSink(s.ctrl)
	s.display = mocks.NewMockDisplay(s.ctrl)
	s.recorder = mocks.NewMockRunRecorder(s.ctrl)
	s.publisher = mocks.NewMockPublisher(s.ctrl)

	s.logger = slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))

	s.controller = NewController(
		s.source,
		s.sink,
		s.display,
		s.recorder,
		s.publisher,
		s.logger,
		config.RunConfig{Timeout: time.Minute},
	)
}

func (s *ControllerTestSuite) TearDownTest() {
	s.controller.Close()
	s.ctrl.Finish()
}

func TestControllerTestSuite(t *testing.T) {
	suite.Run(t, new(ControllerTestSuite))
}

func single(id string, cursor int64, canKudo, hasKudo bool) domain.SingleEntry {
	return domain.SingleEntry{
		ID:      id,
		Name:    "activity " + id,
		Athlete: "athlete " + id,
		Cursor:  cursor,
		Kudos:   &domain.KudoStatus{CanKudo: canKudo, HasKudoed: hasKudo},
	}
}

func echo(ctx context.Context, a domain.Activity) (domain.KudoReceipt, error) {
	return domain.KudoReceipt{ActivityID: a.ID, Athlete: a.Athlete, Name: a.Name}, nil
}

func (s *ControllerTestSuite) TestRunDepth_EndToEnd() {
	ctx := context.Background()

	gomock.InOrder(
		s.source.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return([]domain.FeedEntry{
			single("1", 60, true, false),
			single("2", 50, false, true),
		}, nil),
		s.source.EXPECT().FetchPage(gomock.Any(), int64(50)).Return([]domain.FeedEntry{
			single("3", 10, true, false),
		}, nil),
	)

	s.sink.EXPECT().GiveKudo(gomock.Any(), gomock.Any()).DoAndReturn(echo).Times(2)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(2)

	gomock.InOrder(
		s.display.EXPECT().SetStatus("Fetching..."),
		s.display.EXPECT().SetStatus("Fetch (1/2)"),
		s.display.EXPECT().SetStatus("Fetch (2/2)"),
		s.display.EXPECT().SetStatus("Kudo (1/2)"),
		s.display.EXPECT().SetStatus("Kudo (2/2)"),
		s.display.EXPECT().SetStatus(""),
	)

	var recorded *domain.RunRecord
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, run *domain.RunRecord) error {
			recorded = run
			return nil
		},
	)

	summary, err := s.controller.RunDepth(ctx, 2)

	s.Require().NoError(err)
	s.Equal(&domain.RunSummary{Total: 3, Eligible: 2, Succeeded: 2, Failed: 0}, summary)
	s.False(s.controller.Running())

	s.Require().NotNil(recorded)
	s.Equal(domain.TriggerManual, recorded.Trigger)
	s.Equal(2, recorded.Depth)
	s.Empty(recorded.Error)
	s.Require().Len(recorded.Outcomes, 2)

	delays := map[string]time.Duration{}
	for _, o := range recorded.Outcomes {
		delays[o.Activity.ID] = o.Delay
	}
	// Stagger follows the position in the whole activity list.
	s.Equal(map[string]time.Duration{"1": 0, "3": 600 * time.Millisecond}, delays)
}

func (s *ControllerTestSuite) TestRunOnce_UsesConfiguredDepth() {
	ctx := context.Background()
	depth := 1
	s.display.EXPECT().SetTriggerVisible(true)
	_, err := s.controller.UpdateSettings(domain.SettingsPatch{FeedSearchDepth: &depth})
	s.Require().NoError(err)

	s.source.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return([]domain.FeedEntry{
		single("1", 60, false, true),
	}, nil)
	s.display.EXPECT().SetStatus(gomock.Any()).AnyTimes()
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil)

	summary, err := s.controller.RunOnce(ctx)

	s.Require().NoError(err)
	s.Equal(&domain.RunSummary{Total: 1}, summary)
}

func (s *ControllerTestSuite) TestRunDepth_WalkFailure() {
	ctx := context.Background()

	s.source.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return(nil, errors.New("unauthorized"))

	gomock.InOrder(
		s.display.EXPECT().SetStatus("Fetching..."),
		s.display.EXPECT().SetStatus(""),
	)

	var recorded *domain.RunRecord
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, run *domain.RunRecord) error {
			recorded = run
			return nil
		},
	)

	summary, err := s.controller.RunDepth(ctx, 3)

	s.Error(err)
	s.Nil(summary)
	s.Contains(err.Error(), "walk feed")
	s.False(s.controller.Running())
	s.Require().NotNil(recorded)
	s.Contains(recorded.Error, "unauthorized")
}

func (s *ControllerTestSuite) TestRunDepth_FailedKudoStillCompletes() {
	ctx := context.Background()

	s.source.EXPECT().FetchPage(gomock.Any(), gomock.Any()).Return([]domain.FeedEntry{
		single("1", 60, true, false),
	}, nil)
	s.sink.EXPECT().GiveKudo(gomock.Any(), gomock.Any()).Return(domain.KudoReceipt{}, errors.New("rate limited"))
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, runID uuid.UUID, outcome domain.KudoOutcome) error {
			s.False(outcome.OK())
			return errors.New("broker down")
		},
	)
	s.display.EXPECT().SetStatus(gomock.Any()).AnyTimes()
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(errors.New("db down"))

	summary, err := s.controller.RunDepth(ctx, 1)

	s.Require().NoError(err)
	s.Equal(&domain.RunSummary{Total: 1, Eligible: 1, Succeeded: 0, Failed: 1}, summary)
}

func (s *ControllerTestSuite) TestRunDepth_JoinsRunInFlight() {
	ctx := context.Background()
	release := make(chan struct{})

	s.source.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, cursor int64) ([]domain.FeedEntry, error) {
			<-release
			return nil, nil
		},
	).Times(1)
	s.display.EXPECT().SetStatus(gomock.Any()).AnyTimes()
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	var wg sync.WaitGroup
	results := make([]*domain.RunSummary, 2)

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[0], _ = s.controller.RunDepth(ctx, 1)
	}()

	s.Eventually(s.controller.Running, time.Second, time.Millisecond)
	s.Equal(domain.StateRunning, s.controller.State())

	wg.Add(1)
	go func() {
		defer wg.Done()
		results[1], _ = s.controller.RunDepth(ctx, 1)
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.Require().NotNil(results[0])
	s.Same(results[0], results[1])
	s.Equal(domain.StateIdle, s.controller.State())
}

func (s *ControllerTestSuite) TestRunDepth_CallerCancelDoesNotAbortSharedRun() {
	release := make(chan struct{})

	s.source.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, cursor int64) ([]domain.FeedEntry, error) {
			select {
			case <-release:
				return []domain.FeedEntry{single("1", 60, true, false)}, nil
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		},
	).Times(1)
	s.sink.EXPECT().GiveKudo(gomock.Any(), gomock.Any()).DoAndReturn(echo).Times(1)
	s.publisher.EXPECT().Publish(gomock.Any(), gomock.Any(), gomock.Any()).Return(nil).Times(1)
	s.display.EXPECT().SetStatus(gomock.Any()).AnyTimes()
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	type result struct {
		summary *domain.RunSummary
		err     error
	}

	callerCtx, cancel := context.WithCancel(context.Background())
	defer cancel()

	first := make(chan error, 1)
	go func() {
		_, err := s.controller.RunDepth(callerCtx, 1)
		first <- err
	}()
	s.Eventually(s.controller.Running, time.Second, time.Millisecond)

	second := make(chan result, 1)
	go func() {
		summary, err := s.controller.RunDepth(context.Background(), 1)
		second <- result{summary, err}
	}()
	time.Sleep(50 * time.Millisecond)

	cancel()
	s.ErrorIs(<-first, context.Canceled)
	s.True(s.controller.Running())

	close(release)
	got := <-second
	s.Require().NoError(got.err)
	s.Equal(&domain.RunSummary{Total: 1, Eligible: 1, Succeeded: 1}, got.summary)
	s.False(s.controller.Running())
}

func (s *ControllerTestSuite) TestIdleStatus_SuppressedWhileRunning() {
	s.controller.running.Store(true)
	s.controller.setIdleStatus("09:59")

	s.display.EXPECT().SetStatus("Fetching...")
	s.controller.setRunning(true, "Fetching...")

	s.display.EXPECT().SetStatus("")
	s.controller.setRunning(false, "")

	s.display.EXPECT().SetStatus("09:58")
	s.controller.setIdleStatus("09:58")
}

func (s *ControllerTestSuite) enable(period int) domain.Settings {
	enabled := true
	s.display.EXPECT().SetTriggerVisible(gomock.Any()).AnyTimes()
	s.display.EXPECT().SetStatus(gomock.Any()).AnyTimes()

	settings, err := s.controller.UpdateSettings(domain.SettingsPatch{
		AutoKudoEnabled:      &enabled,
		AutoKudoCheckSeconds: &period,
	})
	s.Require().NoError(err)
	return settings
}

func (s *ControllerTestSuite) TestUpdateSettings_IdenticalUpdateKeepsSchedule() {
	settings := s.enable(600)

	first := s.controller.schedule
	s.Require().NotNil(first)
	s.Equal(domain.StateScheduledIdle, s.controller.State())

	_, err := s.controller.UpdateSettings(settings.Patch())
	s.Require().NoError(err)
	_, err = s.controller.UpdateSettings(settings.Patch())
	s.Require().NoError(err)

	s.Same(first, s.controller.schedule)
}

func (s *ControllerTestSuite) TestUpdateSettings_DepthChangeKeepsSchedule() {
	s.enable(600)
	first := s.controller.schedule

	depth := 7
	settings, err := s.controller.UpdateSettings(domain.SettingsPatch{FeedSearchDepth: &depth})

	s.Require().NoError(err)
	s.Equal(7, settings.FeedSearchDepth)
	s.Same(first, s.controller.schedule)
}

func (s *ControllerTestSuite) TestUpdateSettings_PeriodChangeRestartsSchedule() {
	s.enable(600)
	first := s.controller.schedule

	s.enable(120)

	s.Require().NotNil(s.controller.schedule)
	s.NotSame(first, s.controller.schedule)
	s.Equal(120*time.Second, s.controller.schedule.Interval())
}

func (s *ControllerTestSuite) TestUpdateSettings_DisableStopsSchedule() {
	s.enable(600)

	disabled := false
	_, err := s.controller.UpdateSettings(domain.SettingsPatch{AutoKudoEnabled: &disabled})

	s.Require().NoError(err)
	s.Nil(s.controller.schedule)
	s.Nil(s.controller.countdown)
	s.Equal(domain.StateIdle, s.controller.State())
}

func (s *ControllerTestSuite) TestUpdateSettings_TriggerVisibility() {
	enabled, hide := true, true

	gomock.InOrder(
		s.display.EXPECT().SetTriggerVisible(true),
		s.display.EXPECT().SetTriggerVisible(false),
	)
	s.display.EXPECT().SetStatus(gomock.Any()).AnyTimes()

	_, err := s.controller.UpdateSettings(domain.SettingsPatch{HideButtonWhenAuto: &hide})
	s.Require().NoError(err)
	_, err = s.controller.UpdateSettings(domain.SettingsPatch{AutoKudoEnabled: &enabled})
	s.Require().NoError(err)
}

func (s *ControllerTestSuite) TestUpdateSettings_RejectsInvalid() {
	depth := 0

	settings, err := s.controller.UpdateSettings(domain.SettingsPatch{FeedSearchDepth: &depth})

	s.Error(err)
	s.Equal(domain.DefaultSettings(), settings)
	s.Equal(domain.DefaultSettings(), s.controller.Settings())
}

func (s *ControllerTestSuite) TestSchedule_RunsPeriodically() {
	s.controller.second = time.Millisecond

	var fetches atomic.Int32
	s.source.EXPECT().FetchPage(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, cursor int64) ([]domain.FeedEntry, error) {
			fetches.Add(1)
			return nil, nil
		},
	).MinTimes(2)

	var triggers sync.Map
	s.recorder.EXPECT().Record(gomock.Any(), gomock.Any()).DoAndReturn(
		func(ctx context.Context, run *domain.RunRecord) error {
			triggers.Store(run.Trigger, true)
			return nil
		},
	).MinTimes(2)

	s.enable(20)

	s.Eventually(func() bool { return fetches.Load() >= 2 }, 2*time.Second, time.Millisecond)

	s.controller.Close()
	_, scheduled := triggers.Load(domain.TriggerScheduled)
	s.True(scheduled)
}

func (s *ControllerTestSuite) TestRestore_SeedsDefaults() {
	store := mocks.NewMockSettingsStore(s.ctrl)
	ctx := context.Background()

	store.EXPECT().Load(ctx).Return(nil, nil)
	store.EXPECT().Save(ctx, domain.DefaultSettings()).Return(nil)
	s.display.EXPECT().SetTriggerVisible(true)

	s.Require().NoError(s.controller.Restore(ctx, store))
	s.Equal(domain.DefaultSettings(), s.controller.Settings())
	s.Equal(domain.StateIdle, s.controller.State())
}

func (s *ControllerTestSuite) TestRestore_AppliesStored() {
	store := mocks.NewMockSettingsStore(s.ctrl)
	ctx := context.Background()
	stored := domain.Settings{
		FeedSearchDepth:      5,
		AutoKudoEnabled:      true,
		AutoKudoCheckSeconds: 900,
		HideButtonWhenAuto:   true,
	}

	store.EXPECT().Load(ctx).Return(&stored, nil)
	s.display.EXPECT().SetTriggerVisible(false)
	s.display.EXPECT().SetStatus(gomock.Any()).AnyTimes()

	s.Require().NoError(s.controller.Restore(ctx, store))
	s.Equal(stored, s.controller.Settings())
	s.Equal(domain.StateScheduledIdle, s.controller.State())
}

func (s *ControllerTestSuite) TestRestore_LoadError() {
	store := mocks.NewMockSettingsStore(s.ctrl)
	ctx := context.Background()

	store.EXPECT().Load(ctx).Return(nil, errors.New("connection refused"))

	err := s.controller.Restore(ctx, store)
	s.Error(err)
	s.Contains(err.Error(), "load settings")
}

func (s *ControllerTestSuite) TestClose_RejectsRuns() {
	s.controller.Close()

	summary, err := s.controller.RunOnce(context.Background())

	s.ErrorIs(err, ErrClosed)
	s.Nil(summary)
}
