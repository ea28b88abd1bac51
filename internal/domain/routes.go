package domain

import "strings"

// ============================================================
// Route families consumed by the gate and the login router
// ============================================================

// Route is an application path the gate can allow or redirect to.
type Route string

const (
	// Auth entry
	RouteLogin       Route = "/login"
	RouteRegister    Route = "/register"
	RouteVerifyEmail Route = "/verify-email"

	// Onboarding wizard
	RouteInterests          Route = "/interests"
	RouteSubcategories      Route = "/subcategories"
	RouteDealBreakers       Route = "/deal-breakers"
	RouteOnboardingComplete Route = "/complete"

	// Personal experience
	RouteHome           Route = "/home"
	RouteProfile        Route = "/profile"
	RouteSaved          Route = "/saved"
	RouteReviews        Route = "/reviews"
	RouteLeaderboard    Route = "/leaderboard"
	RouteForYou         Route = "/for-you"
	RouteTrending       Route = "/trending"
	RouteEventsSpecials Route = "/events-specials"

	// Business experience
	RouteMyBusinesses     Route = "/my-businesses"
	RouteClaimBusiness    Route = "/claim-business"
	RouteAddBusiness      Route = "/add-business"
	RouteBusinessSettings Route = "/settings"

	// Shared / other
	RouteAdmin    Route = "/admin"
	RouteExplore  Route = "/explore"
	RouteMessages Route = "/messages"
)

// RouteForStep maps a wizard step to its page route.
func RouteForStep(s Step) Route {
	switch s {
	case StepSubcategories:
		return RouteSubcategories
	case StepDealBreakers:
		return RouteDealBreakers
	case StepComplete:
		return RouteOnboardingComplete
	default:
		return RouteInterests
	}
}

// StepForRoute is the inverse of RouteForStep. ok is false for paths that
// are not onboarding routes.
func StepForRoute(path string) (Step, bool) {
	switch Route(path) {
	case RouteInterests:
		return StepInterests, true
	case RouteSubcategories:
		return StepSubcategories, true
	case RouteDealBreakers:
		return StepDealBreakers, true
	case RouteOnboardingComplete:
		return StepComplete, true
	}
	return "", false
}

// IsOnboardingPath reports whether path is one of the four wizard routes.
func IsOnboardingPath(path string) bool {
	_, ok := StepForRoute(path)
	return ok
}

// IsAuthEntryPath reports whether path is a login/register form.
// /verify-email is not an entry path: an authenticated-but-unverified
// user must be able to sit on it.
func IsAuthEntryPath(path string) bool {
	return Route(path) == RouteLogin || Route(path) == RouteRegister
}

// IsBusinessPath reports whether path belongs to the business-management
// experience.
func IsBusinessPath(path string) bool {
	switch Route(path) {
	case RouteMyBusinesses, RouteClaimBusiness, RouteAddBusiness, RouteBusinessSettings:
		return true
	}
	return strings.HasPrefix(path, "/my-businesses/")
}

// IsPersonalPath reports whether path is part of the personal-only
// discovery/profile experience (business-mode users are redirected away).
func IsPersonalPath(path string) bool {
	switch Route(path) {
	case RouteHome, RouteProfile, RouteSaved, RouteReviews, RouteLeaderboard,
		RouteForYou, RouteTrending, RouteEventsSpecials:
		return true
	}
	return false
}

// IsPublicPath reports whether path tolerates anonymous access:
// detail pages, explore/category listings and static assets.
func IsPublicPath(path string) bool {
	if path == "/" || Route(path) == RouteExplore {
		return true
	}
	for _, prefix := range []string{
		"/business/", "/events/", "/specials/", "/category/", "/explore/",
		"/_next/", "/static/", "/assets/", "/favicon",
	} {
		if strings.HasPrefix(path, prefix) {
			return true
		}
	}
	return false
}

// IsProtectedPath reports whether path requires an authenticated,
// verified identity.
func IsProtectedPath(path string) bool {
	return !IsPublicPath(path) && !IsAuthEntryPath(path) && Route(path) != RouteVerifyEmail
}

// LandingRoute is the post-auth destination for a profile, in precedence
// order: unverified, admin, business mode, personal complete, personal
// mid-wizard.
func LandingRoute(p *Profile, emailVerified bool) Route {
	if !emailVerified {
		return RouteVerifyEmail
	}
	switch p.CurrentRole {
	case ModeAdmin:
		return RouteAdmin
	case ModeBusiness:
		return RouteMyBusinesses
	}
	if p.OnboardingComplete {
		return RouteHome
	}
	return RouteForStep(p.StepOrDefault())
}
