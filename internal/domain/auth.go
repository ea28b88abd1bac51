package domain

import "time"

// ============================================================
// Identity / Session — external auth provider types
// ============================================================

// Identity is the auth provider's record of an email+credential pair.
type Identity struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at,omitempty"`
	CreatedAt        time.Time  `json:"created_at"`
}

// Verified reports whether the identity's email has been confirmed.
// Verification gates all protected routes independent of onboarding.
func (i *Identity) Verified() bool {
	return i != nil && i.EmailConfirmedAt != nil && !i.EmailConfirmedAt.IsZero()
}

// Session is the provider's persisted credential pair.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	ExpiresAt    time.Time `json:"expires_at"`
	UserID       string    `json:"user_id"`
}

// AuthEvent is a credential-state change reported by the provider
// transport.
type AuthEvent string

const (
	EventInitialSession AuthEvent = "INITIAL_SESSION"
	EventSignedIn       AuthEvent = "SIGNED_IN"
	EventSignedOut      AuthEvent = "SIGNED_OUT"
	EventTokenRefreshed AuthEvent = "TOKEN_REFRESHED"
	EventUserUpdated    AuthEvent = "USER_UPDATED"
)

// SyncSignal is the cross-context broadcast payload. Receivers re-fetch
// their own state rather than trusting the payload; it carries no
// credentials.
type SyncSignal struct {
	Type   AuthEvent `json:"type"`
	At     time.Time `json:"at"`
	Origin string    `json:"origin"`
}

// ============================================================
// Action API request / response types
// ============================================================

// LoginRequest is the body for POST /v1/auth/login. Mode is the desired
// account experience; empty keeps whatever is active.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
	Mode     Mode   `json:"mode,omitempty"`
}

// LoginResult is returned from a successful login: the credential pair,
// the (possibly mode-switched) profile and the client-side destination.
type LoginResult struct {
	Session     *Session `json:"session"`
	Profile     *Profile `json:"profile"`
	Verified    bool     `json:"verified"`
	Destination Route    `json:"destination"`
}

// RegisterRequest is the body for POST /v1/auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name,omitempty"`
	Mode        Mode   `json:"mode,omitempty"`
}

// RegisterResult always routes to the verification-pending page; the
// account is unusable until the email is confirmed. PendingRef keys the
// cached registration email so the verification page can re-display it
// after a reload.
type RegisterResult struct {
	UserID      string `json:"user_id"`
	Email       string `json:"email"`
	PendingRef  string `json:"pending_ref"`
	Destination Route  `json:"destination"`
}

// SwitchModeRequest is the body for POST /v1/auth/switch-mode.
type SwitchModeRequest struct {
	Mode Mode `json:"mode"`
}

// StepRequest is the body for POST /v1/onboarding/{step}: the step's
// selections, persisted atomically with the step advance.
type StepRequest struct {
	Selections []string `json:"selections"`
}

// SessionSnapshot is the app-shell bootstrap payload: current identity,
// profile and the wizard route the user is currently required to be on.
type SessionSnapshot struct {
	Authenticated bool      `json:"authenticated"`
	Verified      bool      `json:"verified"`
	Identity      *Identity `json:"identity,omitempty"`
	Profile       *Profile  `json:"profile,omitempty"`
	RequiredRoute Route     `json:"required_route,omitempty"`
}

// GateMetrics is the snapshot served by GET /v1/metrics/gate.
type GateMetrics struct {
	Allowed         int64   `json:"allowed"`
	Redirected      int64   `json:"redirected"`
	RedirectRate    float64 `json:"redirect_rate"`
	SessionFetches  int64   `json:"session_fetches"`
	SessionFailures int64   `json:"session_failures"`
	CacheHitRate    float64 `json:"cache_hit_rate"`
	Period          string  `json:"period"`
}
