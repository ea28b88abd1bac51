package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/broadcast"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/cache"
)

func newOnboardingService(store *memStore) *OnboardingService {
	profiles := cache.New[*domain.Profile](time.Minute)
	return NewOnboardingService(store, broadcast.NewMemory(), profiles, zap.NewNop())
}

func wizardProfile(step *domain.Step, complete bool) *domain.Profile {
	return &domain.Profile{
		UserID:             "u1",
		Email:              "w@x.co",
		Role:               domain.RoleUser,
		CurrentRole:        domain.ModePersonal,
		OnboardingStep:     step,
		OnboardingComplete: complete,
	}
}

func TestSaveStepAdvancesToNext(t *testing.T) {
	store := newMemStore(wizardProfile(nil, false))
	svc := newOnboardingService(store)

	profile, err := svc.SaveStep(context.Background(), "u1", domain.StepInterests, []string{"food", "music"})
	if err != nil {
		t.Fatalf("save step: %v", err)
	}
	if got := profile.StepOrDefault(); got != domain.StepSubcategories {
		t.Errorf("position = %q, want %q", got, domain.StepSubcategories)
	}
	if sel := store.selections[domain.StepSubcategories]; len(sel) != 2 {
		t.Errorf("selections = %v, want saved with the advance", sel)
	}
}

func TestSaveStepRedoKeepsFurtherPosition(t *testing.T) {
	step := domain.StepDealBreakers
	store := newMemStore(wizardProfile(&step, false))
	svc := newOnboardingService(store)

	// Re-saving an earlier step must not regress position.
	profile, err := svc.SaveStep(context.Background(), "u1", domain.StepInterests, []string{"coffee"})
	if err != nil {
		t.Fatalf("save step: %v", err)
	}
	if got := profile.StepOrDefault(); got != domain.StepDealBreakers {
		t.Errorf("position = %q, want unchanged %q", got, domain.StepDealBreakers)
	}
}

func TestSaveStepRejectsSkipAhead(t *testing.T) {
	store := newMemStore(wizardProfile(nil, false))
	svc := newOnboardingService(store)

	_, err := svc.SaveStep(context.Background(), "u1", domain.StepDealBreakers, []string{"smoking"})

	var outOfOrder *domain.ErrStepOutOfOrder
	if !errors.As(err, &outOfOrder) {
		t.Fatalf("err = %v, want ErrStepOutOfOrder", err)
	}
}

func TestSaveStepRejectsCompleteAsStep(t *testing.T) {
	step := domain.StepComplete
	store := newMemStore(wizardProfile(&step, false))
	svc := newOnboardingService(store)

	if _, err := svc.SaveStep(context.Background(), "u1", domain.StepComplete, nil); err == nil {
		t.Error("saving the complete pseudo-step succeeded, want validation error")
	}
}

func TestSaveStepRejectedAfterCompletion(t *testing.T) {
	step := domain.StepComplete
	store := newMemStore(wizardProfile(&step, true))
	svc := newOnboardingService(store)

	if _, err := svc.SaveStep(context.Background(), "u1", domain.StepInterests, nil); err == nil {
		t.Error("save after completion succeeded, want error")
	}
}

func TestCompleteOnlyFromFinalStep(t *testing.T) {
	step := domain.StepSubcategories
	store := newMemStore(wizardProfile(&step, false))
	svc := newOnboardingService(store)

	if _, err := svc.Complete(context.Background(), "u1"); err == nil {
		t.Error("complete from mid-wizard succeeded, want error")
	}
}

func TestCompleteIsIdempotent(t *testing.T) {
	step := domain.StepComplete
	store := newMemStore(wizardProfile(&step, false))
	svc := newOnboardingService(store)

	first, err := svc.Complete(context.Background(), "u1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	completedAt := first.OnboardingCompletedAt

	second, err := svc.Complete(context.Background(), "u1")
	if err != nil {
		t.Fatalf("repeat complete: %v", err)
	}
	if !second.OnboardingComplete {
		t.Error("repeat complete lost the flag")
	}
	if second.OnboardingCompletedAt != completedAt {
		t.Error("repeat complete moved the completion timestamp")
	}
}

func TestFullWizardRun(t *testing.T) {
	store := newMemStore(wizardProfile(nil, false))
	svc := newOnboardingService(store)
	ctx := context.Background()

	for _, step := range []domain.Step{domain.StepInterests, domain.StepSubcategories, domain.StepDealBreakers} {
		if _, err := svc.SaveStep(ctx, "u1", step, []string{"x"}); err != nil {
			t.Fatalf("save %s: %v", step, err)
		}
	}

	profile, err := svc.Complete(ctx, "u1")
	if err != nil {
		t.Fatalf("complete: %v", err)
	}
	if !profile.OnboardingComplete {
		t.Error("wizard run did not end complete")
	}
}

func TestSaveStepRefreshesProfileCache(t *testing.T) {
	store := newMemStore(wizardProfile(nil, false))
	svc := newOnboardingService(store)

	// A reader of the shared cache (the navigation gate) sees the old
	// position until the mutation writes the fresh row back.
	stale := wizardProfile(nil, false)
	svc.profiles.Set("u1", stale)

	if _, err := svc.SaveStep(context.Background(), "u1", domain.StepInterests, []string{"food"}); err != nil {
		t.Fatalf("save step: %v", err)
	}

	cached, ok := svc.profiles.Get("u1")
	if !ok {
		t.Fatal("cache empty after step advance")
	}
	if got := cached.StepOrDefault(); got != domain.StepSubcategories {
		t.Errorf("cached position = %q, want %q", got, domain.StepSubcategories)
	}
}

func TestCompleteRefreshesProfileCache(t *testing.T) {
	step := domain.StepComplete
	store := newMemStore(wizardProfile(&step, false))
	svc := newOnboardingService(store)
	svc.profiles.Set("u1", wizardProfile(&step, false))

	if _, err := svc.Complete(context.Background(), "u1"); err != nil {
		t.Fatalf("complete: %v", err)
	}

	cached, ok := svc.profiles.Get("u1")
	if !ok {
		t.Fatal("cache empty after completion")
	}
	if !cached.OnboardingComplete {
		t.Error("cached row still shows the wizard in progress")
	}
}
