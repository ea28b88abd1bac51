// Package gate implements the edge navigation gate: middleware that
// decides, before a page renders, whether the request may proceed or
// must redirect. Every decision is bounded in time, performs at most
// one profile read and at most one silent token refresh, and never
// panics through to the page.
package gate

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/observability"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/resilience"
	"github.com/spotlightza/spotlight-edge-go/internal/onboarding"
	"github.com/spotlightza/spotlight-edge-go/internal/port"
)

var tracer = otel.Tracer("gate")

const (
	// Cookie names follow the Supabase client convention so the web app
	// and the edge read the same credential pair.
	accessCookie  = "sb-access-token"
	refreshCookie = "sb-refresh-token"

	defaultBudget = 3 * time.Second
)

// Options tunes the gate.
type Options struct {
	// Budget caps the wall time of a single gate evaluation.
	Budget time.Duration
	// JWTSecret, when set, enables the local HS256 expiry pre-check so
	// obviously-stale tokens skip the provider round trip.
	JWTSecret string
	// SecureCookies controls the Secure attribute on rewritten cookies.
	SecureCookies bool
}

// Gate decides navigation requests.
type Gate struct {
	provider port.IdentityProvider
	store    port.ProfileStore
	profiles port.Cache[*domain.Profile]
	metrics  *observability.Metrics
	logger   *zap.Logger
	opts     Options
}

func New(provider port.IdentityProvider, store port.ProfileStore, profiles port.Cache[*domain.Profile], metrics *observability.Metrics, logger *zap.Logger, opts Options) *Gate {
	if opts.Budget == 0 {
		opts.Budget = defaultBudget
	}
	return &Gate{
		provider: provider,
		store:    store,
		profiles: profiles,
		metrics:  metrics,
		logger:   logger,
		opts:     opts,
	}
}

// visitor is the resolved auth state for one request.
type visitor struct {
	identity *domain.Identity
	profile  *domain.Profile
	// refreshed holds a new credential pair when the silent refresh ran.
	refreshed *domain.Session
	// transient marks that auth state could not be determined right now.
	transient bool
	// gone marks a session pointing at a deleted identity.
	gone bool
}

func (v *visitor) authenticated() bool { return v.identity != nil }

// Middleware wraps a page handler with the navigation gate.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		// Gate verdicts are per-request and must never be cached by the
		// browser or an intermediary.
		w.Header().Set("Cache-Control", "no-store")

		path := r.URL.Path
		if domain.IsPublicPath(path) {
			g.decide(w, r, next, "allow", "public")
			g.metrics.RecordGateLatency(time.Since(start))
			return
		}

		ctx, span := tracer.Start(r.Context(), "Gate.Evaluate")
		span.SetAttributes(attribute.String("http.path", path))

		v := g.resolveVisitor(ctx, w, r)

		decision, reason, target := g.verdict(v, path)
		span.SetAttributes(
			attribute.String("gate.decision", decision),
			attribute.String("gate.reason", reason),
		)
		span.End()

		if decision == "allow" {
			if v.authenticated() {
				forwardIdentity(r, v)
			}
			g.decide(w, r, next, decision, reason)
		} else {
			g.redirect(w, r, target, reason, path)
		}
		g.metrics.RecordGateLatency(time.Since(start))
	})
}

func (g *Gate) decide(w http.ResponseWriter, r *http.Request, next http.Handler, decision, reason string) {
	g.metrics.RecordGateDecision(decision, reason)
	next.ServeHTTP(w, r)
}

func (g *Gate) redirect(w http.ResponseWriter, r *http.Request, target domain.Route, reason, fromPath string) {
	g.metrics.RecordGateDecision("redirect", reason)

	loc := string(target)
	if reason == "no_session" || reason == "transient" {
		loc = fmt.Sprintf("%s?next=%s", target, url.QueryEscape(fromPath))
	}
	g.logger.Debug("gate: redirect",
		zap.String("from", fromPath),
		zap.String("to", loc),
		zap.String("reason", reason),
	)
	http.Redirect(w, r, loc, http.StatusTemporaryRedirect)
}

// resolveVisitor turns request cookies into auth state within the time
// budget. Cookie side effects (refresh rewrite, fatal clear) happen
// here so the verdict stays pure.
func (g *Gate) resolveVisitor(ctx context.Context, w http.ResponseWriter, r *http.Request) *visitor {
	v := &visitor{}

	access := cookieValue(r, accessCookie)
	refresh := cookieValue(r, refreshCookie)
	if access == "" && refresh == "" {
		return v
	}

	err := resilience.WithinDeadline(ctx, g.opts.Budget, "gate.resolve", func(ctx context.Context) error {
		return g.resolve(ctx, v, access, refresh)
	})
	if err == nil {
		if v.refreshed != nil {
			g.setSessionCookies(w, v.refreshed)
		}
		if v.profile != nil || v.identity == nil {
			return v
		}
		// Identity without profile: treat as transient rather than
		// guessing at routing state.
		v.identity = nil
		v.transient = true
		return v
	}

	switch classify(err) {
	case classFatal:
		g.clearSessionCookies(w)
		v.identity, v.profile = nil, nil
		v.gone = true
	case classRecoverable:
		// Refresh already failed inside resolve; degrade to anonymous.
		g.clearSessionCookies(w)
		v.identity, v.profile = nil, nil
	default:
		g.logger.Warn("gate: transient auth failure", zap.Error(err))
		v.identity, v.profile = nil, nil
		v.transient = true
	}
	return v
}

// resolve performs the bounded lookup sequence: local expiry pre-check,
// provider user fetch, at most one silent refresh, one profile read.
func (g *Gate) resolve(ctx context.Context, v *visitor, access, refresh string) error {
	var identity *domain.Identity
	var err error

	expiredLocally := access == "" || g.locallyExpired(access)
	if !expiredLocally {
		identity, err = g.provider.GetUser(ctx, access)
	} else {
		err = &domain.ErrSessionExpired{}
	}

	var expired *domain.ErrSessionExpired
	if err != nil && errors.As(err, &expired) {
		if refresh == "" {
			return err
		}
		sess, refreshedIdentity, refreshErr := g.provider.RefreshSession(ctx, refresh)
		if refreshErr != nil {
			return refreshErr
		}
		v.refreshed = sess
		identity = refreshedIdentity
		err = nil
	}
	if err != nil {
		return err
	}

	v.identity = identity

	profile, err := g.lookupProfile(ctx, identity.ID)
	if err != nil {
		var notFound *domain.ErrNotFound
		if errors.As(err, &notFound) {
			return &domain.ErrIdentityGone{UserID: identity.ID}
		}
		return err
	}
	v.profile = profile
	return nil
}

// lookupProfile serves the single profile read per request, preferring
// the short-TTL cache.
func (g *Gate) lookupProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	if p, ok := g.profiles.Get(userID); ok {
		g.metrics.IncrCacheHit("profile")
		return p, nil
	}
	g.metrics.IncrCacheMiss("profile")

	p, err := g.store.GetProfile(ctx, userID)
	if err != nil {
		return nil, err
	}
	g.profiles.Set(userID, p)
	return p, nil
}

// verdict maps resolved auth state + path to a gate decision. Returns
// decision ("allow"/"redirect"), the metrics reason, and the redirect
// target when applicable.
func (g *Gate) verdict(v *visitor, path string) (string, string, domain.Route) {
	// Anonymous (including degraded-to-anonymous).
	if !v.authenticated() {
		if !domain.IsProtectedPath(path) {
			return "allow", "anonymous", ""
		}
		switch {
		case v.transient:
			return "redirect", "transient", domain.RouteLogin
		case v.gone:
			return "redirect", "identity_gone", domain.RouteLogin
		default:
			return "redirect", "no_session", domain.RouteLogin
		}
	}

	verified := v.identity.Verified()
	landing := domain.LandingRoute(v.profile, verified)

	// Authenticated users have no business on the login/register forms.
	if domain.IsAuthEntryPath(path) {
		return "redirect", "auth_entry", landing
	}

	// Verification gates everything protected, independent of onboarding.
	if !verified {
		if domain.Route(path) == domain.RouteVerifyEmail {
			return "allow", "ok", ""
		}
		return "redirect", "unverified", domain.RouteVerifyEmail
	}
	if domain.Route(path) == domain.RouteVerifyEmail {
		// Already verified; nothing to do on this page.
		return "redirect", "already_verified", landing
	}

	switch v.profile.CurrentRole {
	case domain.ModeAdmin:
		return "allow", "ok", ""
	case domain.ModeBusiness:
		// Business mode has no onboarding wizard and no personal surface.
		if domain.IsOnboardingPath(path) || domain.IsPersonalPath(path) {
			return "redirect", "business_block", domain.RouteMyBusinesses
		}
		return "allow", "ok", ""
	}

	st := onboarding.StateOf(v.profile)
	if domain.IsOnboardingPath(path) {
		d := onboarding.Resolve(st, path)
		if d.Allow {
			return "allow", "ok", ""
		}
		if st.Complete {
			// The resolver points completed users at /complete; the gate
			// substitutes the real landing.
			return "redirect", "completed", landing
		}
		return "redirect", "step_skip", d.Redirect
	}

	// Any other protected page requires a finished wizard.
	if !st.Complete {
		return "redirect", "step_skip", onboarding.RequiredRoute(st)
	}
	return "allow", "ok", ""
}

// locallyExpired checks token expiry without a provider round trip.
// Returns false (not expired) whenever the check cannot be performed, so
// the provider remains the authority.
func (g *Gate) locallyExpired(access string) bool {
	if g.opts.JWTSecret == "" {
		return false
	}
	token, err := jwt.Parse(access, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return []byte(g.opts.JWTSecret), nil
	}, jwt.WithValidMethods([]string{"HS256"}))
	if err != nil {
		return errors.Is(err, jwt.ErrTokenExpired)
	}
	exp, err := token.Claims.GetExpirationTime()
	if err != nil || exp == nil {
		return false
	}
	return time.Now().After(exp.Time)
}

func (g *Gate) setSessionCookies(w http.ResponseWriter, sess *domain.Session) {
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name: accessCookie, Value: sess.AccessToken, Path: "/",
		MaxAge: maxAge, HttpOnly: true, Secure: g.opts.SecureCookies, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: refreshCookie, Value: sess.RefreshToken, Path: "/",
		HttpOnly: true, Secure: g.opts.SecureCookies, SameSite: http.SameSiteLaxMode,
	})
}

func (g *Gate) clearSessionCookies(w http.ResponseWriter) {
	for _, name := range []string{accessCookie, refreshCookie} {
		http.SetCookie(w, &http.Cookie{
			Name: name, Value: "", Path: "/", MaxAge: -1,
			HttpOnly: true, Secure: g.opts.SecureCookies, SameSite: http.SameSiteLaxMode,
		})
	}
}

// forwardIdentity annotates the proxied request so downstream rendering
// can skip its own auth lookup.
func forwardIdentity(r *http.Request, v *visitor) {
	r.Header.Set("X-User-Id", v.identity.ID)
	r.Header.Set("X-User-Email", v.identity.Email)
	if v.profile != nil {
		r.Header.Set("X-User-Role", string(v.profile.Role))
		r.Header.Set("X-Current-Role", string(v.profile.CurrentRole))
	}
}

func cookieValue(r *http.Request, name string) string {
	c, err := r.Cookie(name)
	if err != nil {
		return ""
	}
	return c.Value
}

type errorClass int

const (
	classTransient errorClass = iota
	classRecoverable
	classFatal
)

// classify buckets resolver errors into the gate taxonomy: fatal clears
// credentials, recoverable degrades to anonymous after the failed
// refresh, transient keeps credentials and fails open on tolerant routes.
func classify(err error) errorClass {
	var gone *domain.ErrIdentityGone
	if errors.As(err, &gone) {
		return classFatal
	}
	var expired *domain.ErrSessionExpired
	var unauthorized *domain.ErrUnauthorized
	if errors.As(err, &expired) || errors.As(err, &unauthorized) {
		return classRecoverable
	}
	return classTransient
}
