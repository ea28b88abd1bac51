package service

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// ============================================================
// Registration — POST /v1/auth/register
// ============================================================

// Register creates an identity and its profile. The provider enforces
// one credential per email, so a duplicate is re-classified against the
// stored role: an email that already covers the desired mode is a hard
// duplicate, an email known only under the other mode gets the
// upgrade-path error instead. Success always routes to the
// verification-pending page.
func (s *AuthService) Register(ctx context.Context, req *domain.RegisterRequest) (*domain.RegisterResult, error) {
	ctx, span := authTracer.Start(ctx, "AuthService.Register")
	defer span.End()

	email := normalizeEmail(req.Email)
	if email == "" || req.Password == "" {
		return nil, &domain.ErrValidation{Field: "credentials", Message: "email and password are required"}
	}
	mode := req.Mode
	if mode == "" {
		mode = domain.ModePersonal
	}
	if mode != domain.ModePersonal && mode != domain.ModeBusiness {
		return nil, &domain.ErrValidation{Field: "mode", Message: fmt.Sprintf("cannot register as %q", mode)}
	}
	span.SetAttributes(attribute.String("register.mode", string(mode)))

	metadata := map[string]any{}
	if req.DisplayName != "" {
		metadata["display_name"] = req.DisplayName
	}

	identity, err := s.provider.SignUp(ctx, email, req.Password, metadata)
	if err != nil {
		var dup *domain.ErrDuplicateAccount
		if errors.As(err, &dup) {
			return nil, s.classifyDuplicate(ctx, email, mode)
		}
		return nil, err
	}

	profile, err := s.store.CreateProfile(ctx, identity.ID, email)
	if err != nil {
		return nil, fmt.Errorf("create profile: %w", err)
	}

	// A business signup starts from the personal base role: widen, then
	// activate business mode so the first login lands on the dashboard.
	if mode == domain.ModeBusiness {
		if _, err := s.store.UpgradeRole(ctx, identity.ID, domain.ModeBusiness); err != nil {
			return nil, fmt.Errorf("upgrade role: %w", err)
		}
		if profile, err = s.store.SwitchMode(ctx, identity.ID, domain.ModeBusiness); err != nil {
			return nil, fmt.Errorf("switch mode: %w", err)
		}
	}

	s.profiles.Set(profile.UserID, profile)

	pendingRef := uuid.New().String()
	s.pendingEmails.Set(pendingRef, email)

	s.logger.Info("user registered",
		zap.String("user_id", identity.ID),
		zap.String("mode", string(profile.CurrentRole)),
	)

	return &domain.RegisterResult{
		UserID:      identity.ID,
		Email:       email,
		PendingRef:  pendingRef,
		Destination: domain.RouteVerifyEmail,
	}, nil
}

// classifyDuplicate decides which duplicate error a taken email gets.
// The provider only knows the email exists; the profile's role decides
// whether the desired mode is already covered.
func (s *AuthService) classifyDuplicate(ctx context.Context, email string, mode domain.Mode) error {
	profile, err := s.store.GetProfileByEmail(ctx, email)
	if err != nil || profile == nil {
		// Identity exists but the profile is unreadable; report the
		// conservative duplicate rather than inviting a retry loop.
		if err != nil {
			s.logger.Warn("register: duplicate classification lookup failed", zap.Error(err))
		}
		return &domain.ErrDuplicateAccount{Email: email, SameMode: true}
	}
	return &domain.ErrDuplicateAccount{Email: email, SameMode: profile.Role.Permits(mode)}
}
