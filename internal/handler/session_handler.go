package handler

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/service"
	"github.com/spotlightza/spotlight-edge-go/internal/session"
)

// ============================================================
// Session snapshot — GET /v1/session
// ============================================================

// sessionHandler serves the app-shell bootstrap. The session controller
// answers for the session it tracks (so the debounced, deduped state it
// maintains is what the shell sees); callers with other credentials get
// a direct provider lookup. Anonymous callers get an empty snapshot, not
// an error; a dead or revoked token degrades the same way so the shell
// can always render something.
func sessionHandler(svc *service.AuthService, sessions *session.Controller, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "GET /v1/session")
		defer span.End()

		token := bearerToken(r)
		if token == "" {
			if c, err := r.Cookie("sb-access-token"); err == nil {
				token = c.Value
			}
		}

		w.Header().Set("Cache-Control", "no-store")

		if sessions != nil {
			if snap, ok := sessions.SnapshotFor(token); ok {
				writeJSON(w, http.StatusOK, &snap)
				return
			}
		}

		snap, err := svc.Snapshot(ctx, token)
		if err != nil {
			var expired *domain.ErrSessionExpired
			var gone *domain.ErrIdentityGone
			var unauthorized *domain.ErrUnauthorized
			if errors.As(err, &expired) || errors.As(err, &gone) || errors.As(err, &unauthorized) {
				writeJSON(w, http.StatusOK, &domain.SessionSnapshot{})
				return
			}
			handleServiceError(w, err, logger)
			return
		}
		writeJSON(w, http.StatusOK, snap)
	}
}
