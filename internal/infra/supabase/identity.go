package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// ============================================================
// IdentityProvider implementation — GoTrue auth API
// ============================================================

type gotrueUser struct {
	ID               string     `json:"id"`
	Email            string     `json:"email"`
	EmailConfirmedAt *time.Time `json:"email_confirmed_at"`
	CreatedAt        time.Time  `json:"created_at"`
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	ExpiresIn    int        `json:"expires_in"`
	User         gotrueUser `json:"user"`
}

type gotrueError struct {
	Message          string `json:"msg"`
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e *gotrueError) text() string {
	for _, s := range []string{e.Message, e.ErrorDescription, e.Error} {
		if s != "" {
			return s
		}
	}
	return ""
}

func (u *gotrueUser) toDomain() *domain.Identity {
	return &domain.Identity{
		ID:               u.ID,
		Email:            u.Email,
		EmailConfirmedAt: u.EmailConfirmedAt,
		CreatedAt:        u.CreatedAt,
	}
}

func (s *gotrueSession) toDomain() *domain.Session {
	return &domain.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		ExpiresAt:    time.Now().Add(time.Duration(s.ExpiresIn) * time.Second),
		UserID:       s.User.ID,
	}
}

func parseGotrueError(body []byte) string {
	var ge gotrueError
	if err := json.Unmarshal(body, &ge); err != nil {
		return string(body)
	}
	return ge.text()
}

// SignIn exchanges email+password for a session.
func (c *Client) SignIn(ctx context.Context, email, password string) (*domain.Session, *domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignIn")
	defer span.End()

	payload, _ := json.Marshal(map[string]string{"email": email, "password": password})

	res, err := c.cb.Execute(func() (any, error) {
		status, body, err := c.auth(ctx, http.MethodPost, "token?grant_type=password", payload, "")
		if err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/token", Err: err}
		}
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
		}
		if status < 200 || status >= 300 {
			return nil, &domain.ErrExternalService{Service: "gotrue/token", Err: statusErr(status, body)}
		}

		var sess gotrueSession
		if err := json.Unmarshal(body, &sess); err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/token", Err: err}
		}
		return &sess, nil
	})
	if err != nil {
		return nil, nil, breakerErr("gotrue/token", err)
	}

	sess := res.(*gotrueSession)
	return sess.toDomain(), sess.User.toDomain(), nil
}

// SignUp creates a new identity. The identity is unusable until the
// email is confirmed.
func (c *Client) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.SignUp")
	defer span.End()

	payload, _ := json.Marshal(map[string]any{
		"email":    email,
		"password": password,
		"data":     metadata,
	})

	res, err := c.cb.Execute(func() (any, error) {
		status, body, err := c.auth(ctx, http.MethodPost, "signup", payload, "")
		if err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/signup", Err: err}
		}
		if status == http.StatusUnprocessableEntity || status == http.StatusBadRequest {
			msg := parseGotrueError(body)
			if strings.Contains(strings.ToLower(msg), "already registered") {
				return nil, &domain.ErrDuplicateAccount{Email: email, SameMode: true}
			}
			return nil, &domain.ErrValidation{Field: "credentials", Message: msg}
		}
		if status < 200 || status >= 300 {
			return nil, &domain.ErrExternalService{Service: "gotrue/signup", Err: statusErr(status, body)}
		}

		var user gotrueUser
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/signup", Err: err}
		}
		return &user, nil
	})
	if err != nil {
		return nil, breakerErr("gotrue/signup", err)
	}

	return res.(*gotrueUser).toDomain(), nil
}

// GetUser resolves the identity behind an access token. Error classes:
// 401 is recoverable (refresh may still work), 403/404 means the
// identity is gone, anything else is transient.
func (c *Client) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.GetUser")
	defer span.End()

	res, err := c.cb.Execute(func() (any, error) {
		status, body, err := c.auth(ctx, http.MethodGet, "user", nil, accessToken)
		if err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/user", Err: err}
		}
		switch {
		case status == http.StatusUnauthorized:
			return nil, &domain.ErrSessionExpired{}
		case status == http.StatusForbidden || status == http.StatusNotFound:
			return nil, &domain.ErrIdentityGone{}
		case status < 200 || status >= 300:
			return nil, &domain.ErrExternalService{Service: "gotrue/user", Err: statusErr(status, body)}
		}

		var user gotrueUser
		if err := json.Unmarshal(body, &user); err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/user", Err: err}
		}
		return &user, nil
	})
	if err != nil {
		return nil, breakerErr("gotrue/user", err)
	}

	user := res.(*gotrueUser)
	span.SetAttributes(attribute.String("user.id", user.ID))
	return user.toDomain(), nil
}

// RefreshSession exchanges a refresh token for a fresh session. Used for
// the gate's single silent refresh attempt.
func (c *Client) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, *domain.Identity, error) {
	ctx, span := tracer.Start(ctx, "Supabase.RefreshSession")
	defer span.End()

	payload, _ := json.Marshal(map[string]string{"refresh_token": refreshToken})

	res, err := c.cb.Execute(func() (any, error) {
		status, body, err := c.auth(ctx, http.MethodPost, "token?grant_type=refresh_token", payload, "")
		if err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/refresh", Err: err}
		}
		if status == http.StatusBadRequest || status == http.StatusUnauthorized {
			return nil, &domain.ErrSessionExpired{}
		}
		if status < 200 || status >= 300 {
			return nil, &domain.ErrExternalService{Service: "gotrue/refresh", Err: statusErr(status, body)}
		}

		var sess gotrueSession
		if err := json.Unmarshal(body, &sess); err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/refresh", Err: err}
		}
		return &sess, nil
	})
	if err != nil {
		return nil, nil, breakerErr("gotrue/refresh", err)
	}

	sess := res.(*gotrueSession)
	return sess.toDomain(), sess.User.toDomain(), nil
}

// SignOut revokes the session behind the access token.
func (c *Client) SignOut(ctx context.Context, accessToken string) error {
	ctx, span := tracer.Start(ctx, "Supabase.SignOut")
	defer span.End()

	_, err := c.cb.Execute(func() (any, error) {
		status, body, err := c.auth(ctx, http.MethodPost, "logout", nil, accessToken)
		if err != nil {
			return nil, &domain.ErrExternalService{Service: "gotrue/logout", Err: err}
		}
		// 401 on logout means the session is already dead; fine.
		if status != http.StatusUnauthorized && (status < 200 || status >= 300) {
			return nil, &domain.ErrExternalService{Service: "gotrue/logout", Err: statusErr(status, body)}
		}
		return nil, nil
	})
	if err != nil {
		return breakerErr("gotrue/logout", err)
	}
	return nil
}
