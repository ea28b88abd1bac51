package handler

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/onboarding"
	"github.com/spotlightza/spotlight-edge-go/internal/service"
)

// ============================================================
// Onboarding — /v1/onboarding/*
// ============================================================

func onboardingStepHandler(svc *service.OnboardingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/onboarding/{step}")
		defer span.End()

		step := domain.Step(chi.URLParam(r, "step"))
		span.SetAttributes(attribute.String("onboarding.step", string(step)))

		var req domain.StepRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "invalid request body")
			return
		}

		profile, err := svc.SaveStep(ctx, UserIDFromContext(ctx), step, req.Selections)
		if err != nil {
			handleServiceError(w, err, logger)
			return
		}

		writeJSON(w, http.StatusOK, map[string]any{
			"profile":    profile,
			"next_route": onboarding.RequiredRoute(onboarding.StateOf(profile)),
		})
	}
}

func onboardingCompleteHandler(svc *service.OnboardingService, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, span := tracer.Start(r.Context(), "POST /v1/onboarding/complete")
		defer span.End()

		profile, err := svc.Complete(ctx, UserIDFromContext(ctx))
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
