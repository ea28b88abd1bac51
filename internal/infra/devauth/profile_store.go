package devauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// Store is the in-memory ProfileStore companion to Provider. It mirrors
// the database semantics: monotonic step advance, widen-only role
// changes, one-shot completion.
type Store struct {
	mu       sync.Mutex
	profiles map[string]*domain.Profile // keyed by user id
}

func NewStore() *Store {
	return &Store{profiles: make(map[string]*domain.Profile)}
}

func (s *Store) get(userID string) (*domain.Profile, error) {
	p, ok := s.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	cp := *p
	return &cp, nil
}

func (s *Store) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.get(userID)
}

func (s *Store) GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.profiles {
		if strings.EqualFold(p.Email, email) {
			cp := *p
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *Store) CreateProfile(ctx context.Context, userID, email string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p, ok := s.profiles[userID]; ok {
		cp := *p
		return &cp, nil
	}

	now := time.Now()
	p := &domain.Profile{
		UserID:      userID,
		Email:       email,
		Role:        domain.RoleUser,
		CurrentRole: domain.ModePersonal,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	s.profiles[userID] = p
	cp := *p
	return &cp, nil
}

func (s *Store) UpgradeRole(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	p.Role = p.Role.Widen(target)
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (s *Store) SwitchMode(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	if !p.Role.Permits(target) {
		return nil, &domain.ErrModeNotPermitted{Role: p.Role, Target: target}
	}
	p.CurrentRole = target
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (s *Store) AdvanceStep(ctx context.Context, userID string, step domain.Step, selections []string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !step.Valid() {
		return nil, &domain.ErrValidation{Field: "step", Message: "unknown step"}
	}
	p, ok := s.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}

	// Monotonic: keep whichever step is further along.
	if step.Index() > p.StepOrDefault().Index() {
		st := step
		p.OnboardingStep = &st
	}
	p.UpdatedAt = time.Now()
	cp := *p
	return &cp, nil
}

func (s *Store) CompleteOnboarding(ctx context.Context, userID string) (*domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	if p.OnboardingComplete {
		cp := *p
		return &cp, nil
	}
	if p.StepOrDefault() != domain.StepComplete {
		return nil, &domain.ErrValidation{Field: "onboarding_step", Message: "cannot complete onboarding before the final step"}
	}

	now := time.Now()
	p.OnboardingComplete = true
	p.OnboardingCompletedAt = &now
	p.UpdatedAt = now
	cp := *p
	return &cp, nil
}
