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

type memProvider struct {
	session  *domain.Session
	identity *domain.Identity

	signInErr error
	signUpErr error

	signOutTokens []string
}

func (m *memProvider) SignIn(ctx context.Context, email, password string) (*domain.Session, *domain.Identity, error) {
	if m.signInErr != nil {
		return nil, nil, m.signInErr
	}
	return m.session, m.identity, nil
}

func (m *memProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error) {
	if m.signUpErr != nil {
		return nil, m.signUpErr
	}
	return m.identity, nil
}

func (m *memProvider) SignOut(ctx context.Context, token string) error {
	m.signOutTokens = append(m.signOutTokens, token)
	return nil
}

func (m *memProvider) GetUser(ctx context.Context, token string) (*domain.Identity, error) {
	return m.identity, nil
}

func (m *memProvider) RefreshSession(ctx context.Context, token string) (*domain.Session, *domain.Identity, error) {
	return m.session, m.identity, nil
}

type memStore struct {
	profiles map[string]*domain.Profile
	byEmail  map[string]*domain.Profile

	upgradeCalls []domain.Mode
	switchCalls  []domain.Mode
	advanceCalls []domain.Step
	selections   map[domain.Step][]string
}

func newMemStore(profiles ...*domain.Profile) *memStore {
	s := &memStore{
		profiles:   make(map[string]*domain.Profile),
		byEmail:    make(map[string]*domain.Profile),
		selections: make(map[domain.Step][]string),
	}
	for _, p := range profiles {
		s.profiles[p.UserID] = p
		s.byEmail[p.Email] = p
	}
	return s
}

func (m *memStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	p, ok := m.profiles[userID]
	if !ok {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	return p, nil
}

func (m *memStore) GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return m.byEmail[email], nil
}

func (m *memStore) CreateProfile(ctx context.Context, userID, email string) (*domain.Profile, error) {
	p := &domain.Profile{UserID: userID, Email: email, Role: domain.RoleUser, CurrentRole: domain.ModePersonal}
	m.profiles[userID] = p
	m.byEmail[email] = p
	return p, nil
}

func (m *memStore) UpgradeRole(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	m.upgradeCalls = append(m.upgradeCalls, target)
	p := m.profiles[userID]
	p.Role = p.Role.Widen(target)
	return p, nil
}

func (m *memStore) SwitchMode(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	m.switchCalls = append(m.switchCalls, target)
	p := m.profiles[userID]
	if !p.Role.Permits(target) {
		return nil, &domain.ErrModeNotPermitted{Role: p.Role, Target: target}
	}
	p.CurrentRole = target
	return p, nil
}

func (m *memStore) AdvanceStep(ctx context.Context, userID string, step domain.Step, selections []string) (*domain.Profile, error) {
	m.advanceCalls = append(m.advanceCalls, step)
	m.selections[step] = selections
	p := m.profiles[userID]
	if step.Index() > p.StepOrDefault().Index() {
		st := step
		p.OnboardingStep = &st
	}
	return p, nil
}

func (m *memStore) CompleteOnboarding(ctx context.Context, userID string) (*domain.Profile, error) {
	p := m.profiles[userID]
	if p.OnboardingComplete {
		return p, nil
	}
	if p.StepOrDefault() != domain.StepComplete {
		return nil, &domain.ErrValidation{Field: "onboarding_step", Message: "not on the final step"}
	}
	now := time.Now()
	p.OnboardingComplete = true
	p.OnboardingCompletedAt = &now
	return p, nil
}

func newAuthService(provider *memProvider, store *memStore) (*AuthService, *cache.InMemory[string]) {
	pending := cache.New[string](time.Minute)
	profiles := cache.New[*domain.Profile](time.Minute)
	return NewAuthService(provider, store, broadcast.NewMemory(), pending, profiles, zap.NewNop()), pending
}

func verifiedAt(t time.Time) *time.Time { return &t }

func TestLoginModeMismatchRevokesSession(t *testing.T) {
	provider := &memProvider{
		session:  &domain.Session{AccessToken: "tok-1", UserID: "u1"},
		identity: &domain.Identity{ID: "u1", Email: "p@x.co", EmailConfirmedAt: verifiedAt(time.Now())},
	}
	store := newMemStore(&domain.Profile{UserID: "u1", Email: "p@x.co", Role: domain.RoleUser, CurrentRole: domain.ModePersonal})
	svc, _ := newAuthService(provider, store)

	_, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email: "p@x.co", Password: "pw", Mode: domain.ModeBusiness,
	})

	var mismatch *domain.ErrModeMismatch
	if !errors.As(err, &mismatch) {
		t.Fatalf("err = %v, want ErrModeMismatch", err)
	}
	if len(provider.signOutTokens) != 1 || provider.signOutTokens[0] != "tok-1" {
		t.Errorf("signOutTokens = %v, want the fresh session revoked", provider.signOutTokens)
	}
	if len(store.switchCalls) != 0 {
		t.Errorf("switchCalls = %v, want none on mismatch", store.switchCalls)
	}
}

func TestLoginSwitchesToRequestedMode(t *testing.T) {
	provider := &memProvider{
		session:  &domain.Session{AccessToken: "tok-1", UserID: "u1"},
		identity: &domain.Identity{ID: "u1", Email: "b@x.co", EmailConfirmedAt: verifiedAt(time.Now())},
	}
	store := newMemStore(&domain.Profile{UserID: "u1", Email: "b@x.co", Role: domain.RoleBoth, CurrentRole: domain.ModePersonal, OnboardingComplete: true})
	svc, _ := newAuthService(provider, store)

	res, err := svc.Login(context.Background(), &domain.LoginRequest{
		Email: "b@x.co", Password: "pw", Mode: domain.ModeBusiness,
	})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Profile.CurrentRole != domain.ModeBusiness {
		t.Errorf("current_role = %q, want business", res.Profile.CurrentRole)
	}
	if res.Destination != domain.RouteMyBusinesses {
		t.Errorf("destination = %q, want %q", res.Destination, domain.RouteMyBusinesses)
	}
}

func TestLoginUnverifiedRoutesToVerifyEmail(t *testing.T) {
	provider := &memProvider{
		session:  &domain.Session{AccessToken: "tok-1", UserID: "u1"},
		identity: &domain.Identity{ID: "u1", Email: "n@x.co"},
	}
	store := newMemStore(&domain.Profile{UserID: "u1", Email: "n@x.co", Role: domain.RoleUser, CurrentRole: domain.ModePersonal})
	svc, _ := newAuthService(provider, store)

	res, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "n@x.co", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Verified {
		t.Error("verified = true for unconfirmed identity")
	}
	if res.Destination != domain.RouteVerifyEmail {
		t.Errorf("destination = %q, want %q", res.Destination, domain.RouteVerifyEmail)
	}
}

func TestLoginMidWizardRoutesToRequiredStep(t *testing.T) {
	step := domain.StepSubcategories
	provider := &memProvider{
		session:  &domain.Session{AccessToken: "tok-1", UserID: "u1"},
		identity: &domain.Identity{ID: "u1", Email: "m@x.co", EmailConfirmedAt: verifiedAt(time.Now())},
	}
	store := newMemStore(&domain.Profile{UserID: "u1", Email: "m@x.co", Role: domain.RoleUser, CurrentRole: domain.ModePersonal, OnboardingStep: &step})
	svc, _ := newAuthService(provider, store)

	res, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "m@x.co", Password: "pw"})
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if res.Destination != domain.RouteSubcategories {
		t.Errorf("destination = %q, want %q", res.Destination, domain.RouteSubcategories)
	}
}

func TestLoginRefreshesProfileCache(t *testing.T) {
	provider := &memProvider{
		session:  &domain.Session{AccessToken: "tok-1", UserID: "u1"},
		identity: &domain.Identity{ID: "u1", Email: "c@x.co", EmailConfirmedAt: verifiedAt(time.Now())},
	}
	store := newMemStore(&domain.Profile{UserID: "u1", Email: "c@x.co", Role: domain.RoleUser, CurrentRole: domain.ModePersonal})
	svc, _ := newAuthService(provider, store)

	if _, err := svc.Login(context.Background(), &domain.LoginRequest{Email: "c@x.co", Password: "pw"}); err != nil {
		t.Fatalf("login: %v", err)
	}

	cached, ok := svc.profiles.Get("u1")
	if !ok || cached.UserID != "u1" {
		t.Errorf("cached profile = (%+v, %v), want the signed-in row", cached, ok)
	}
}

func TestSwitchModeRefreshesProfileCache(t *testing.T) {
	provider := &memProvider{}
	store := newMemStore(&domain.Profile{UserID: "u1", Email: "s@x.co", Role: domain.RoleBoth, CurrentRole: domain.ModePersonal})
	svc, _ := newAuthService(provider, store)

	svc.profiles.Set("u1", &domain.Profile{UserID: "u1", CurrentRole: domain.ModePersonal})

	if _, err := svc.SwitchMode(context.Background(), "u1", domain.ModeBusiness); err != nil {
		t.Fatalf("switch mode: %v", err)
	}

	cached, ok := svc.profiles.Get("u1")
	if !ok {
		t.Fatal("cache empty after mode switch")
	}
	if cached.CurrentRole != domain.ModeBusiness {
		t.Errorf("cached current_role = %q, want business", cached.CurrentRole)
	}
}

func TestRegisterBusinessWidensRoleAndActivatesMode(t *testing.T) {
	provider := &memProvider{identity: &domain.Identity{ID: "u2", Email: "shop@x.co"}}
	store := newMemStore()
	svc, pending := newAuthService(provider, store)

	res, err := svc.Register(context.Background(), &domain.RegisterRequest{
		Email: "Shop@X.co", Password: "longenough", Mode: domain.ModeBusiness,
	})
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(store.upgradeCalls) != 1 || store.upgradeCalls[0] != domain.ModeBusiness {
		t.Errorf("upgradeCalls = %v, want one business widen", store.upgradeCalls)
	}
	if p := store.profiles["u2"]; p.Role != domain.RoleBoth || p.CurrentRole != domain.ModeBusiness {
		t.Errorf("profile = role %q / current %q, want both/business", p.Role, p.CurrentRole)
	}
	if res.Destination != domain.RouteVerifyEmail {
		t.Errorf("destination = %q, want %q", res.Destination, domain.RouteVerifyEmail)
	}
	if email, ok := pending.Get(res.PendingRef); !ok || email != "shop@x.co" {
		t.Errorf("pending email = (%q, %v), want cached normalized email", email, ok)
	}
}

func TestRegisterDuplicateClassification(t *testing.T) {
	existing := &domain.Profile{UserID: "u3", Email: "dup@x.co", Role: domain.RoleUser, CurrentRole: domain.ModePersonal}

	tests := []struct {
		name     string
		mode     domain.Mode
		sameMode bool
	}{
		{"same mode", domain.ModePersonal, true},
		{"other mode has upgrade path", domain.ModeBusiness, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider := &memProvider{signUpErr: &domain.ErrDuplicateAccount{Email: "dup@x.co", SameMode: true}}
			store := newMemStore(existing)
			svc, _ := newAuthService(provider, store)

			_, err := svc.Register(context.Background(), &domain.RegisterRequest{
				Email: "dup@x.co", Password: "longenough", Mode: tt.mode,
			})

			var dup *domain.ErrDuplicateAccount
			if !errors.As(err, &dup) {
				t.Fatalf("err = %v, want ErrDuplicateAccount", err)
			}
			if dup.SameMode != tt.sameMode {
				t.Errorf("SameMode = %v, want %v", dup.SameMode, tt.sameMode)
			}
		})
	}
}

func TestSwitchModeRejectsUnpermittedTarget(t *testing.T) {
	provider := &memProvider{}
	store := newMemStore(&domain.Profile{UserID: "u1", Email: "p@x.co", Role: domain.RoleUser, CurrentRole: domain.ModePersonal})
	svc, _ := newAuthService(provider, store)

	_, err := svc.SwitchMode(context.Background(), "u1", domain.ModeBusiness)

	var notPermitted *domain.ErrModeNotPermitted
	if !errors.As(err, &notPermitted) {
		t.Fatalf("err = %v, want ErrModeNotPermitted", err)
	}
}
