// Package devauth is an in-memory identity provider for local
// development. Enabled with DEV_AUTH=true; every account is created
// pre-verified so the full flow works without a mail loop.
package devauth

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

const sessionTTL = time.Hour

type devUser struct {
	id           string
	email        string
	passwordHash []byte
	createdAt    time.Time
	confirmedAt  time.Time
}

type devSession struct {
	accessToken  string
	refreshToken string
	userID       string
	expiresAt    time.Time
}

// Provider implements port.IdentityProvider against process memory.
type Provider struct {
	// AutoVerify confirms new accounts immediately. On by default so the
	// full flow runs without a mail loop; switch off to exercise the
	// unverified paths.
	AutoVerify bool

	mu       sync.Mutex
	users    map[string]*devUser    // keyed by lowercase email
	sessions map[string]*devSession // keyed by access token
	refresh  map[string]*devSession // keyed by refresh token
	logger   *zap.Logger
}

func New(logger *zap.Logger) *Provider {
	return &Provider{
		AutoVerify: true,
		users:      make(map[string]*devUser),
		sessions:   make(map[string]*devSession),
		refresh:    make(map[string]*devSession),
		logger:     logger,
	}
}

func (u *devUser) toDomain() *domain.Identity {
	id := &domain.Identity{
		ID:        u.id,
		Email:     u.email,
		CreatedAt: u.createdAt,
	}
	if !u.confirmedAt.IsZero() {
		confirmed := u.confirmedAt
		id.EmailConfirmedAt = &confirmed
	}
	return id
}

func (p *Provider) newSession(userID string) *devSession {
	s := &devSession{
		accessToken:  uuid.New().String(),
		refreshToken: uuid.New().String(),
		userID:       userID,
		expiresAt:    time.Now().Add(sessionTTL),
	}
	p.sessions[s.accessToken] = s
	p.refresh[s.refreshToken] = s
	return s
}

func (s *devSession) toDomain() *domain.Session {
	return &domain.Session{
		AccessToken:  s.accessToken,
		RefreshToken: s.refreshToken,
		ExpiresAt:    s.expiresAt,
		UserID:       s.userID,
	}
}

func (p *Provider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := strings.ToLower(email)
	if _, ok := p.users[key]; ok {
		return nil, &domain.ErrDuplicateAccount{Email: email, SameMode: true}
	}
	if len(password) < 8 {
		return nil, &domain.ErrValidation{Field: "password", Message: "password must be at least 8 characters"}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	now := time.Now()
	u := &devUser{
		id:           uuid.New().String(),
		email:        email,
		passwordHash: hash,
		createdAt:    now,
	}
	if p.AutoVerify {
		u.confirmedAt = now
	}
	p.users[key] = u

	p.logger.Info("devauth: user created", zap.String("email", email), zap.String("user_id", u.id))
	return u.toDomain(), nil
}

func (p *Provider) SignIn(ctx context.Context, email, password string) (*domain.Session, *domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	u, ok := p.users[strings.ToLower(email)]
	if !ok {
		return nil, nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}
	if err := bcrypt.CompareHashAndPassword(u.passwordHash, []byte(password)); err != nil {
		return nil, nil, &domain.ErrUnauthorized{Message: "invalid email or password"}
	}

	s := p.newSession(u.id)
	return s.toDomain(), u.toDomain(), nil
}

func (p *Provider) GetUser(ctx context.Context, accessToken string) (*domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	s, ok := p.sessions[accessToken]
	if !ok || time.Now().After(s.expiresAt) {
		return nil, &domain.ErrSessionExpired{}
	}
	for _, u := range p.users {
		if u.id == s.userID {
			return u.toDomain(), nil
		}
	}
	return nil, &domain.ErrIdentityGone{UserID: s.userID}
}

func (p *Provider) RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, *domain.Identity, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	old, ok := p.refresh[refreshToken]
	if !ok {
		return nil, nil, &domain.ErrSessionExpired{}
	}
	delete(p.refresh, refreshToken)
	delete(p.sessions, old.accessToken)

	var user *devUser
	for _, u := range p.users {
		if u.id == old.userID {
			user = u
			break
		}
	}
	if user == nil {
		return nil, nil, &domain.ErrIdentityGone{UserID: old.userID}
	}

	s := p.newSession(user.id)
	return s.toDomain(), user.toDomain(), nil
}

func (p *Provider) SignOut(ctx context.Context, accessToken string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if s, ok := p.sessions[accessToken]; ok {
		delete(p.sessions, s.accessToken)
		delete(p.refresh, s.refreshToken)
	}
	return nil
}
