// Package port defines the interfaces (ports) for external dependencies.
// Following hexagonal architecture, these ports decouple the gate,
// session controller and services from concrete implementations.
package port

import (
	"context"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

// IdentityProvider is the external auth system: one credential per email
// address, enforced by the provider. The edge never stores passwords.
type IdentityProvider interface {
	SignIn(ctx context.Context, email, password string) (*domain.Session, *domain.Identity, error)
	SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error)
	SignOut(ctx context.Context, accessToken string) error
	GetUser(ctx context.Context, accessToken string) (*domain.Identity, error)
	RefreshSession(ctx context.Context, refreshToken string) (*domain.Session, *domain.Identity, error)
}

// ProfileStore reads and mutates the per-identity profile record. All
// onboarding-field writes go through the named transition operations;
// there is no arbitrary field update.
type ProfileStore interface {
	GetProfile(ctx context.Context, userID string) (*domain.Profile, error)
	GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error)
	CreateProfile(ctx context.Context, userID, email string) (*domain.Profile, error)

	// UpgradeRole widens the role to permit the target mode. Widening
	// only: user + business yields both.
	UpgradeRole(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error)

	// SwitchMode mutates current_role. The target must already be
	// permitted by the stored role.
	SwitchMode(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error)

	// AdvanceStep persists a wizard step's selections and advances the
	// step in one transaction. The step never advances without its data
	// and the data is not considered saved unless the step advanced.
	AdvanceStep(ctx context.Context, userID string, step domain.Step, selections []string) (*domain.Profile, error)

	// CompleteOnboarding flips onboarding_complete exactly once.
	// Idempotent: repeat calls return the already-completed profile.
	CompleteOnboarding(ctx context.Context, userID string) (*domain.Profile, error)
}

// Broadcaster fans auth sync signals out to other execution contexts of
// the same user (other tabs, other edge instances). Fire-and-forget,
// at-most-once, no ordering guarantee.
type Broadcaster interface {
	Publish(ctx context.Context, sig domain.SyncSignal) error
	Subscribe(fn func(domain.SyncSignal)) (unsubscribe func(), err error)
}

// Cache provides generic caching with TTL.
type Cache[T any] interface {
	Get(key string) (T, bool)
	Set(key string, value T)
	Delete(key string)
}
