// Package service implements the application use cases: login with mode
// routing, registration, mode switching, onboarding transitions and the
// session snapshot.
package service

import (
	"context"
	"strings"

	"go.opentelemetry.io/otel"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/onboarding"
	"github.com/spotlightza/spotlight-edge-go/internal/port"
)

var authTracer = otel.Tracer("service/auth")

// AuthService handles login, registration, sign-out and mode changes.
type AuthService struct {
	provider    port.IdentityProvider
	store       port.ProfileStore
	broadcaster port.Broadcaster
	// pendingEmails keys a registration's email by an opaque ref so the
	// verification-pending page can re-display it after a reload.
	pendingEmails port.Cache[string]
	// profiles is the same cache the navigation gate reads. Every
	// profile mutation writes the fresh row back, so the next gated
	// navigation routes on post-mutation state instead of a row cached
	// before the change.
	profiles port.Cache[*domain.Profile]
	logger   *zap.Logger
}

func NewAuthService(provider port.IdentityProvider, store port.ProfileStore, broadcaster port.Broadcaster, pendingEmails port.Cache[string], profiles port.Cache[*domain.Profile], logger *zap.Logger) *AuthService {
	return &AuthService{
		provider:      provider,
		store:         store,
		broadcaster:   broadcaster,
		pendingEmails: pendingEmails,
		profiles:      profiles,
		logger:        logger,
	}
}

func normalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// Snapshot resolves the bootstrap payload for an access token: identity,
// profile and the route the user is currently required to be on.
func (s *AuthService) Snapshot(ctx context.Context, accessToken string) (*domain.SessionSnapshot, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Snapshot")
	defer span.End()

	if accessToken == "" {
		return &domain.SessionSnapshot{}, nil
	}

	identity, err := s.provider.GetUser(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	profile, err := s.store.GetProfile(ctx, identity.ID)
	if err != nil {
		return nil, err
	}

	verified := identity.Verified()
	snap := &domain.SessionSnapshot{
		Authenticated: true,
		Verified:      verified,
		Identity:      identity,
		Profile:       profile,
	}
	if verified && profile.CurrentRole == domain.ModePersonal && !profile.OnboardingComplete {
		snap.RequiredRoute = onboarding.RequiredRoute(onboarding.StateOf(profile))
	} else {
		snap.RequiredRoute = domain.LandingRoute(profile, verified)
	}
	return snap, nil
}

// PendingEmail returns the email cached for a registration ref, for the
// verification page to display. Missing or expired refs are ErrNotFound.
func (s *AuthService) PendingEmail(ctx context.Context, ref string) (string, error) {
	_, span := authTracer.Start(ctx, "AuthService.PendingEmail")
	defer span.End()

	email, ok := s.pendingEmails.Get(ref)
	if !ok {
		return "", &domain.ErrNotFound{Resource: "pending registration", ID: ref}
	}
	return email, nil
}
