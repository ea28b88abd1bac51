package handler

import (
	"encoding/json"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/service"
	"github.com/spotlightza/spotlight-edge-go/internal/session"
)

// ============================================================
// Auth — /v1/auth/*
// ============================================================

func authLoginHandler(svc *service.AuthService, sessions *session.Controller, secureCookies bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/login")
		defer span.End()

		var req domain.LoginRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.Login(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		if sessions != nil {
			sessions.OnAuthEvent(domain.EventSignedIn, result.Session)
		}
		setSessionCookies(w, result.Session, secureCookies)
		writeJSON(w, http.StatusOK, result)
	}
}

func authRegisterHandler(svc *service.AuthService, secureCookies bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/register")
		defer span.End()

		var req domain.RegisterRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		result, err := svc.Register(ctx, &req)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusCreated, result)
	}
}

func authLogoutHandler(svc *service.AuthService, sessions *session.Controller, secureCookies bool, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/logout")
		defer span.End()

		token := AccessTokenFromContext(ctx)
		err := svc.Logout(ctx, token)
		if sessions != nil {
			sessions.OnAuthEvent(domain.EventSignedOut, nil)
		}
		clearSessionCookies(w, secureCookies)
		if err != nil {
			// Local credentials are cleared either way; report the
			// provider failure without blocking the sign-out.
			logger.Warn("logout: provider revocation failed", zap.Error(err))
		}
		writeJSON(w, http.StatusOK, map[string]string{"destination": string(domain.RouteLogin)})
	}
}

func switchModeHandler(svc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/auth/switch-mode")
		defer span.End()

		var req domain.SwitchModeRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		profile, err := svc.SwitchMode(ctx, UserIDFromContext(ctx), req.Mode)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"profile":     profile,
			"destination": domain.LandingRoute(profile, IdentityFromContext(ctx).Verified()),
		})
	}
}

func pendingEmailHandler(svc *service.AuthService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/auth/pending-email")
		defer span.End()

		ref := r.URL.Query().Get("ref")
		if ref == "" {
			writeError(w, http.StatusBadRequest, "ref is required")
			return
		}

		email, err := svc.PendingEmail(ctx, ref)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, map[string]string{"email": email})
	}
}

func setSessionCookies(w http.ResponseWriter, sess *domain.Session, secure bool) {
	if sess == nil {
		return
	}
	maxAge := int(time.Until(sess.ExpiresAt).Seconds())
	http.SetCookie(w, &http.Cookie{
		Name: "sb-access-token", Value: sess.AccessToken, Path: "/",
		MaxAge: maxAge, HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode,
	})
	http.SetCookie(w, &http.Cookie{
		Name: "sb-refresh-token", Value: sess.RefreshToken, Path: "/",
		HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode,
	})
}

func clearSessionCookies(w http.ResponseWriter, secure bool) {
	for _, name := range []string{"sb-access-token", "sb-refresh-token"} {
		http.SetCookie(w, &http.Cookie{
			Name: name, Value: "", Path: "/", MaxAge: -1,
			HttpOnly: true, Secure: secure, SameSite: http.SameSiteLaxMode,
		})
	}
}
