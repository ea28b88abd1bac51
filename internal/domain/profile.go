package domain

import "time"

// ============================================================
// Profile — role / mode / onboarding state per identity
// ============================================================

// Role describes which account types exist for an identity.
// It only ever widens; there is no narrowing operation.
type Role string

const (
	RoleUser          Role = "user"
	RoleBusinessOwner Role = "business_owner"
	RoleBoth          Role = "both"
	RoleAdmin         Role = "admin"
)

// Mode is the account experience currently active (stored as current_role).
type Mode string

const (
	ModePersonal Mode = "user"
	ModeBusiness Mode = "business_owner"
	ModeAdmin    Mode = "admin"
)

// Permits reports whether this role allows activating the given mode.
func (r Role) Permits(m Mode) bool {
	switch r {
	case RoleAdmin:
		return true
	case RoleBoth:
		return m == ModePersonal || m == ModeBusiness
	case RoleUser:
		return m == ModePersonal
	case RoleBusinessOwner:
		return m == ModeBusiness
	}
	return false
}

// Widen returns the role after adding the account type for the given mode.
// Existing capability is always preserved: user + business becomes both,
// never business_owner alone.
func (r Role) Widen(m Mode) Role {
	if r.Permits(m) {
		return r
	}
	switch {
	case r == RoleUser && m == ModeBusiness:
		return RoleBoth
	case r == RoleBusinessOwner && m == ModePersonal:
		return RoleBoth
	}
	return r
}

// Step is a stage of the onboarding wizard. A nil step is equivalent
// to StepInterests.
type Step string

const (
	StepInterests     Step = "interests"
	StepSubcategories Step = "subcategories"
	StepDealBreakers  Step = "deal-breakers"
	StepComplete      Step = "complete"
)

// StepOrder is the wizard sequence. Routing decisions compare indexes in
// this slice and nothing else; selection counts are display data only.
var StepOrder = []Step{StepInterests, StepSubcategories, StepDealBreakers, StepComplete}

// Index returns the position of s in StepOrder, or -1 for unknown values.
func (s Step) Index() int {
	for i, v := range StepOrder {
		if v == s {
			return i
		}
	}
	return -1
}

// Valid reports whether s is a known wizard step.
func (s Step) Valid() bool { return s.Index() >= 0 }

// NormalizeStep maps a missing step to the earliest stage.
func NormalizeStep(s *Step) Step {
	if s == nil || *s == "" {
		return StepInterests
	}
	return *s
}

// Profile is the durable per-identity record. Exactly one exists per
// identity; it is created the moment the identity is created and is
// never deleted by this service.
type Profile struct {
	UserID                string     `json:"user_id"`
	Email                 string     `json:"email"`
	Role                  Role       `json:"role"`
	CurrentRole           Mode       `json:"current_role"`
	OnboardingStep        *Step      `json:"onboarding_step"`
	OnboardingComplete    bool       `json:"onboarding_complete"`
	OnboardingCompletedAt *time.Time `json:"onboarding_completed_at,omitempty"`
	CreatedAt             time.Time  `json:"created_at"`
	UpdatedAt             time.Time  `json:"updated_at"`
}

// StepOrDefault returns the profile's onboarding step, treating nil as
// the earliest stage.
func (p *Profile) StepOrDefault() Step { return NormalizeStep(p.OnboardingStep) }
