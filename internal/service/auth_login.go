package service

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// ============================================================
// Login — POST /v1/auth/login
// ============================================================

// Login signs credentials in and routes by desired mode. A mode the
// stored role does not permit is a hard failure: the fresh session is
// revoked and no navigation happens. There is no silent fallback to the
// permitted mode.
func (s *AuthService) Login(ctx context.Context, req *domain.LoginRequest) (*domain.LoginResult, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Login")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "credentials", Message: "email and password are required"}
	}
	span.SetAttributes(attribute.String("login.mode", string(req.Mode)))

	sess, identity, err := s.provider.SignIn(ctx, email, req.Password)
	if err != nil {
		return nil, err
	}

	profile, err := s.store.GetProfile(ctx, identity.ID)
	if err != nil {
		// One identity, one profile; a missing row after sign-in means
		// the provisioning trigger has not run. Create it inline.
		profile, err = s.store.CreateProfile(ctx, identity.ID, identity.Email)
		if err != nil {
			return nil, fmt.Errorf("provision profile: %w", err)
		}
	}

	if req.Mode != "" && !profile.Role.Permits(req.Mode) {
		// The credential was valid but the account type is wrong. Revoke
		// the session so a half-authenticated state cannot persist.
		if signOutErr := s.provider.SignOut(ctx, sess.AccessToken); signOutErr != nil {
			s.logger.Warn("login: revoking mode-mismatched session failed", zap.Error(signOutErr))
		}
		s.logger.Info("login: mode mismatch",
			zap.String("user_id", identity.ID),
			zap.String("role", string(profile.Role)),
			zap.String("wanted", string(req.Mode)),
		)
		return nil, &domain.ErrModeMismatch{Have: profile.Role, Want: req.Mode}
	}

	if req.Mode != "" && profile.CurrentRole != req.Mode {
		profile, err = s.store.SwitchMode(ctx, identity.ID, req.Mode)
		if err != nil {
			return nil, fmt.Errorf("switch mode: %w", err)
		}
	}

	s.profiles.Set(profile.UserID, profile)

	verified := identity.Verified()
	s.logger.Info("user logged in",
		zap.String("user_id", identity.ID),
		zap.String("current_role", string(profile.CurrentRole)),
		zap.Bool("verified", verified),
	)

	s.announce(ctx, domain.EventSignedIn)

	return &domain.LoginResult{
		Session:     sess,
		Profile:     profile,
		Verified:    verified,
		Destination: domain.LandingRoute(profile, verified),
	}, nil
}

// Logout revokes the session and announces the sign-out to other
// execution contexts. Revocation failures still clear local state
// upstream, so they are reported but not fatal to the broadcast.
func (s *AuthService) Logout(ctx context.Context, accessToken string) error {
	ctx, span := authTracer.Start(ctx, "AuthService.Logout")
	defer span.End()

	err := s.provider.SignOut(ctx, accessToken)
	if err != nil {
		s.logger.Warn("logout: provider revocation failed", zap.Error(err))
	}
	s.announce(ctx, domain.EventSignedOut)
	return err
}

// SwitchMode activates another account experience for the current user.
func (s *AuthService) SwitchMode(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.SwitchMode")
	defer span.End()

	if target != domain.ModePersonal && target != domain.ModeBusiness && target != domain.ModeAdmin {
		return nil, &domain.ErrValidation{Field: "mode", Message: fmt.Sprintf("unknown mode %q", target)}
	}

	profile, err := s.store.SwitchMode(ctx, userID, target)
	if err != nil {
		return nil, err
	}
	s.profiles.Set(userID, profile)

	s.logger.Info("mode switched",
		zap.String("user_id", userID),
		zap.String("current_role", string(profile.CurrentRole)),
	)
	s.announce(ctx, domain.EventUserUpdated)
	return profile, nil
}

// announce publishes a cross-context sync signal. Best-effort; a dead
// broker never fails the user-facing operation.
func (s *AuthService) announce(ctx context.Context, event domain.AuthEvent) {
	sig := domain.SyncSignal{Type: event, At: time.Now(), Origin: "service"}
	if err := s.broadcaster.Publish(ctx, sig); err != nil {
		s.logger.Warn("auth: broadcast failed",
			zap.String("event", string(event)),
			zap.Error(err),
		)
	}
}
