// Package onboarding holds the access resolver for the onboarding
// wizard: a pure function from profile state and requested route to an
// allow-or-redirect verdict. It performs no I/O so the edge gate and the
// client-facing session endpoint can share one implementation, and so
// the whole state space can be tested exhaustively.
package onboarding

import (
	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// State is the Profile subset the resolver depends on.
type State struct {
	Step     *domain.Step
	Complete bool
}

// StateOf extracts resolver input from a profile.
func StateOf(p *domain.Profile) State {
	return State{Step: p.OnboardingStep, Complete: p.OnboardingComplete}
}

// Decision is the verdict for a single requested route.
type Decision struct {
	// Required is the route the user is currently expected to be on.
	Required domain.Route
	// Allow reports whether the requested route may render.
	Allow bool
	// Redirect is the route to send the user to when Allow is false.
	// After completion the resolver points at /complete; the gate
	// substitutes the role-appropriate landing, which the resolver is
	// deliberately agnostic to.
	Redirect domain.Route
}

// RequiredRoute returns the wizard route for the current state.
func RequiredRoute(st State) domain.Route {
	if st.Complete {
		return domain.RouteOnboardingComplete
	}
	return domain.RouteForStep(domain.NormalizeStep(st.Step))
}

// Resolve decides whether the requested onboarding path may render.
// Ordering rule: a route is allowed when its step index is at or before
// the current step's index — back-navigation is permitted, skipping
// ahead is not. The step field is the single source of truth; selection
// counts are never consulted.
func Resolve(st State, requestedPath string) Decision {
	required := RequiredRoute(st)

	reqStep, ok := domain.StepForRoute(requestedPath)
	if !ok {
		// Not an onboarding route; nothing for the resolver to gate.
		return Decision{Required: required, Allow: true}
	}

	if st.Complete {
		if reqStep == domain.StepComplete {
			return Decision{Required: required, Allow: true}
		}
		return Decision{Required: required, Redirect: required}
	}

	current := domain.NormalizeStep(st.Step)

	// /complete before the completion action is only reachable once the
	// user is actually on the final step.
	if reqStep == domain.StepComplete {
		if current == domain.StepComplete {
			return Decision{Required: required, Allow: true}
		}
		return Decision{Required: required, Redirect: required}
	}

	if reqStep.Index() <= current.Index() {
		return Decision{Required: required, Allow: true}
	}
	return Decision{Required: required, Redirect: required}
}

// CanAccess is a convenience predicate over Resolve.
func CanAccess(st State, requestedPath string) bool {
	return Resolve(st, requestedPath).Allow
}

// RedirectFor returns the redirect target for a disallowed path, or
// ok=false when the path is allowed.
func RedirectFor(st State, requestedPath string) (domain.Route, bool) {
	d := Resolve(st, requestedPath)
	if d.Allow {
		return "", false
	}
	return d.Redirect, true
}
