package service

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/port"
)

var onboardingTracer = otel.Tracer("service/onboarding")

// OnboardingService drives the wizard's state transitions. The
// onboarding_step field is the single source of truth for position;
// selection payloads are stored alongside but never consulted for
// routing.
type OnboardingService struct {
	store       port.ProfileStore
	broadcaster port.Broadcaster
	// profiles is the gate's cache. A step transition must be visible to
	// the very next gated navigation, or the gate keeps redirecting the
	// user back to a step they already finished.
	profiles port.Cache[*domain.Profile]
	logger   *zap.Logger
}

func NewOnboardingService(store port.ProfileStore, broadcaster port.Broadcaster, profiles port.Cache[*domain.Profile], logger *zap.Logger) *OnboardingService {
	return &OnboardingService{store: store, broadcaster: broadcaster, profiles: profiles, logger: logger}
}

// SaveStep persists a wizard step's selections and advances the step, in
// one storage transaction. Saving a step the user already passed keeps
// the further position (re-saving selections is fine, regressing is
// not); the step after the saved one becomes the new position.
func (s *OnboardingService) SaveStep(ctx context.Context, userID string, step domain.Step, selections []string) (*domain.Profile, error) {
	ctx, span := onboardingTracer.Start(ctx, "OnboardingService.SaveStep")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("onboarding.step", string(step)),
	)

	if !step.Valid() || step == domain.StepComplete {
		return nil, &domain.ErrValidation{Field: "step", Message: "not a savable wizard step"}
	}

	profile, err := s.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if profile.OnboardingComplete {
		return nil, &domain.ErrValidation{Field: "onboarding_step", Message: "onboarding already completed"}
	}

	current := profile.StepOrDefault()
	if step.Index() > current.Index() {
		// Saving a step the user has not reached means the wizard UI and
		// the stored state disagree; refuse rather than skip ahead.
		return nil, &domain.ErrStepOutOfOrder{Position: current, Saved: step}
	}

	// Completing a step moves position to the one after it; storage
	// keeps whichever of stored/target is further.
	target := domain.StepOrder[step.Index()+1]
	profile, err = s.store.AdvanceStep(ctx, userID, target, selections)
	if err != nil {
		return nil, err
	}
	s.profiles.Set(userID, profile)

	s.logger.Info("onboarding step saved",
		zap.String("user_id", userID),
		zap.String("saved", string(step)),
		zap.String("position", string(profile.StepOrDefault())),
	)
	s.announce(ctx, domain.EventUserUpdated)
	return profile, nil
}

// Complete flips the one-shot completion flag. Only reachable from the
// final wizard step; repeat calls return the completed profile.
func (s *OnboardingService) Complete(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, span := onboardingTracer.Start(ctx, "OnboardingService.Complete")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	profile, err := s.store.CompleteOnboarding(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.profiles.Set(userID, profile)

	s.logger.Info("onboarding completed", zap.String("user_id", userID))
	s.announce(ctx, domain.EventUserUpdated)
	return profile, nil
}

func (s *OnboardingService) announce(ctx context.Context, event domain.AuthEvent) {
	sig := domain.SyncSignal{Type: event, At: time.Now(), Origin: "service"}
	if err := s.broadcaster.Publish(ctx, sig); err != nil {
		s.logger.Warn("onboarding: broadcast failed", zap.Error(err))
	}
}
