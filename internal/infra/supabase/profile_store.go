package supabase

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/resilience"
)

// ============================================================
// ProfileStore implementation — profiles table via PostgREST
// ============================================================

// profileRow maps the profiles table columns to our domain.
type profileRow struct {
	UserID                string       `json:"user_id"`
	Email                 string       `json:"email"`
	Role                  domain.Role  `json:"role"`
	CurrentRole           domain.Mode  `json:"current_role"`
	OnboardingStep        *domain.Step `json:"onboarding_step"`
	OnboardingComplete    bool         `json:"onboarding_complete"`
	OnboardingCompletedAt *time.Time   `json:"onboarding_completed_at"`
	CreatedAt             time.Time    `json:"created_at"`
	UpdatedAt             time.Time    `json:"updated_at"`
}

func (r *profileRow) toDomain() *domain.Profile {
	return &domain.Profile{
		UserID:                r.UserID,
		Email:                 r.Email,
		Role:                  r.Role,
		CurrentRole:           r.CurrentRole,
		OnboardingStep:        r.OnboardingStep,
		OnboardingComplete:    r.OnboardingComplete,
		OnboardingCompletedAt: r.OnboardingCompletedAt,
		CreatedAt:             r.CreatedAt,
		UpdatedAt:             r.UpdatedAt,
	}
}

func decodeProfileRows(body []byte) ([]profileRow, error) {
	if body == nil || string(body) == "[]" {
		return nil, nil
	}
	var rows []profileRow
	if err := json.Unmarshal(body, &rows); err != nil {
		return nil, fmt.Errorf("decode profiles: %w", err)
	}
	return rows, nil
}

func (c *Client) queryOneProfile(ctx context.Context, path string) (*domain.Profile, error) {
	var profile *domain.Profile

	_, err := c.cb.Execute(func() (any, error) {
		return nil, resilience.RetryWithBackoff(ctx, c.cfg, func() error {
			body, err := c.rest(ctx, http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			rows, err := decodeProfileRows(body)
			if err != nil {
				return err
			}
			if len(rows) == 0 {
				profile = nil
				return nil
			}
			profile = rows[0].toDomain()
			return nil
		})
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profiles", Err: breakerErr("supabase/profiles", err)}
	}
	return profile, nil
}

// GetProfile fetches the profile for an identity. Exactly one row exists
// per identity; a missing row is ErrNotFound.
func (c *Client) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfile")
	defer span.End()
	span.SetAttributes(attribute.String("user.id", userID))

	path := fmt.Sprintf("profiles?user_id=eq.%s&limit=1", url.QueryEscape(userID))
	profile, err := c.queryOneProfile(ctx, path)
	if err != nil {
		return nil, err
	}
	if profile == nil {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	return profile, nil
}

// GetProfileByEmail looks a profile up by email. Used to classify
// duplicate registrations; nil means no profile.
func (c *Client) GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetProfileByEmail")
	defer span.End()

	path := fmt.Sprintf("profiles?email=eq.%s&limit=1", url.QueryEscape(email))
	return c.queryOneProfile(ctx, path)
}

// CreateProfile inserts the initial profile row: personal role, personal
// mode, wizard not started. Normally the database trigger on identity
// creation does this; the explicit call covers providers without the
// trigger (dev mode) and is idempotent via on_conflict.
func (c *Client) CreateProfile(ctx context.Context, userID, email string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CreateProfile")
	defer span.End()

	payload, _ := json.Marshal(map[string]any{
		"user_id":             userID,
		"email":               email,
		"role":                domain.RoleUser,
		"current_role":        domain.ModePersonal,
		"onboarding_step":     nil,
		"onboarding_complete": false,
	})

	res, err := c.cb.Execute(func() (any, error) {
		body, err := c.rest(ctx, http.MethodPost, "profiles?on_conflict=user_id", payload)
		if err != nil {
			return nil, err
		}
		rows, err := decodeProfileRows(body)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("insert returned no row")
		}
		return rows[0].toDomain(), nil
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profiles", Err: breakerErr("supabase/profiles", err)}
	}
	return res.(*domain.Profile), nil
}

// UpgradeRole widens the role so the target mode is permitted. The
// filter on the previous role value keeps a concurrent widen from being
// overwritten with a narrower value; zero matched rows means someone
// else got there first, so the fresh row is read back instead.
func (c *Client) UpgradeRole(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.UpgradeRole")
	defer span.End()

	current, err := c.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}

	widened := current.Role.Widen(target)
	if widened == current.Role {
		return current, nil
	}

	payload, _ := json.Marshal(map[string]any{"role": widened})
	path := fmt.Sprintf("profiles?user_id=eq.%s&role=eq.%s",
		url.QueryEscape(userID), url.QueryEscape(string(current.Role)))

	res, err := c.cb.Execute(func() (any, error) {
		body, err := c.rest(ctx, http.MethodPatch, path, payload)
		if err != nil {
			return nil, err
		}
		return decodeProfileRows(body)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profiles", Err: breakerErr("supabase/profiles", err)}
	}

	rows := res.([]profileRow)
	if len(rows) == 0 {
		return c.GetProfile(ctx, userID)
	}

	c.logger.Info("role widened",
		zap.String("user_id", userID),
		zap.String("from", string(current.Role)),
		zap.String("to", string(widened)),
	)
	return rows[0].toDomain(), nil
}

// SwitchMode activates a mode the stored role already permits.
func (c *Client) SwitchMode(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SwitchMode")
	defer span.End()

	current, err := c.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if !current.Role.Permits(target) {
		return nil, &domain.ErrModeNotPermitted{Role: current.Role, Target: target}
	}
	if current.CurrentRole == target {
		return current, nil
	}

	payload, _ := json.Marshal(map[string]any{"current_role": target})
	path := fmt.Sprintf("profiles?user_id=eq.%s", url.QueryEscape(userID))

	res, err := c.cb.Execute(func() (any, error) {
		body, err := c.rest(ctx, http.MethodPatch, path, payload)
		if err != nil {
			return nil, err
		}
		return decodeProfileRows(body)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/profiles", Err: breakerErr("supabase/profiles", err)}
	}

	rows := res.([]profileRow)
	if len(rows) == 0 {
		return nil, &domain.ErrNotFound{Resource: "profile", ID: userID}
	}
	return rows[0].toDomain(), nil
}

// AdvanceStep persists a step's selections and moves the step forward in
// one database transaction (rpc/advance_onboarding_step). The function
// takes GREATEST of the stored and requested step, so a redo of an
// earlier step re-saves its selections without regressing the position.
func (c *Client) AdvanceStep(ctx context.Context, userID string, step domain.Step, selections []string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.AdvanceStep")
	defer span.End()
	span.SetAttributes(
		attribute.String("user.id", userID),
		attribute.String("onboarding.step", string(step)),
	)

	if !step.Valid() {
		return nil, &domain.ErrValidation{Field: "step", Message: fmt.Sprintf("unknown step %q", step)}
	}

	payload, _ := json.Marshal(map[string]any{
		"p_user_id":    userID,
		"p_step":       step,
		"p_selections": selections,
	})

	res, err := c.cb.Execute(func() (any, error) {
		body, err := c.rest(ctx, http.MethodPost, "rpc/advance_onboarding_step", payload)
		if err != nil {
			return nil, err
		}
		return decodeRPCProfile(body)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/onboarding", Err: breakerErr("supabase/onboarding", err)}
	}
	return res.(*domain.Profile), nil
}

// CompleteOnboarding flips onboarding_complete exactly once. The filter
// on onboarding_complete=false makes repeat calls no-ops; the fresh row
// is read back so callers always get the completed profile.
func (c *Client) CompleteOnboarding(ctx context.Context, userID string) (*domain.Profile, error) {
	ctx, span := tracer.Start(ctx, "Supabase.CompleteOnboarding")
	defer span.End()

	payload, _ := json.Marshal(map[string]any{
		"onboarding_complete":     true,
		"onboarding_completed_at": time.Now().UTC().Format(time.RFC3339),
	})
	path := fmt.Sprintf(
		"profiles?user_id=eq.%s&onboarding_step=eq.%s&onboarding_complete=eq.false",
		url.QueryEscape(userID), url.QueryEscape(string(domain.StepComplete)))

	res, err := c.cb.Execute(func() (any, error) {
		body, err := c.rest(ctx, http.MethodPatch, path, payload)
		if err != nil {
			return nil, err
		}
		return decodeProfileRows(body)
	})
	if err != nil {
		return nil, &domain.ErrExternalService{Service: "supabase/onboarding", Err: breakerErr("supabase/onboarding", err)}
	}

	rows := res.([]profileRow)
	if len(rows) > 0 {
		c.logger.Info("onboarding completed", zap.String("user_id", userID))
		return rows[0].toDomain(), nil
	}

	// No row matched: either already complete (fine) or the user has
	// not reached the final step yet.
	fresh, err := c.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	if fresh.OnboardingComplete {
		return fresh, nil
	}
	return nil, &domain.ErrValidation{
		Field:   "onboarding_step",
		Message: fmt.Sprintf("cannot complete onboarding from step %q", fresh.StepOrDefault()),
	}
}

// decodeRPCProfile handles both a bare object and a one-row set, the two
// shapes PostgREST uses for function results.
func decodeRPCProfile(body []byte) (*domain.Profile, error) {
	if body == nil {
		return nil, fmt.Errorf("rpc returned no row")
	}
	if len(body) > 0 && body[0] == '[' {
		rows, err := decodeProfileRows(body)
		if err != nil {
			return nil, err
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("rpc returned no row")
		}
		return rows[0].toDomain(), nil
	}
	var row profileRow
	if err := json.Unmarshal(body, &row); err != nil {
		return nil, fmt.Errorf("decode rpc profile: %w", err)
	}
	return row.toDomain(), nil
}
