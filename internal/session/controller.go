// Package session holds the client session controller: the single
// in-process owner of auth state. It serializes initialization,
// debounces provider auth events into coalesced state fetches, and
// keeps other execution contexts in sync through the broadcaster.
package session

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/observability"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/resilience"
	"github.com/spotlightza/spotlight-edge-go/internal/port"
)

const (
	defaultDebounceWindow = 300 * time.Millisecond
	defaultInitRetries    = 3
	defaultInitialBackoff = 200 * time.Millisecond
)

// Options tunes controller behavior.
type Options struct {
	InitRetries    int
	InitialBackoff time.Duration
	DebounceWindow time.Duration

	// Constrained halves the retry budget for low-resource contexts
	// where repeated provider calls hurt more than a degraded start.
	Constrained bool
}

func (o Options) withDefaults() Options {
	if o.InitRetries == 0 {
		o.InitRetries = defaultInitRetries
	}
	if o.InitialBackoff == 0 {
		o.InitialBackoff = defaultInitialBackoff
	}
	if o.DebounceWindow == 0 {
		o.DebounceWindow = defaultDebounceWindow
	}
	if o.Constrained {
		o.InitRetries = o.InitRetries / 2
	}
	return o
}

// Controller owns the in-process auth state.
type Controller struct {
	provider    port.IdentityProvider
	store       port.ProfileStore
	broadcaster port.Broadcaster
	logger      *zap.Logger
	metrics     *observability.Metrics
	opts        Options

	// origin identifies this controller instance in broadcast signals so
	// it can ignore its own.
	origin string

	group singleflight.Group

	mu          sync.Mutex
	initialized bool
	generation  uint64
	session     *domain.Session
	identity    *domain.Identity
	profile     *domain.Profile

	pendingSession *domain.Session
	timer          *time.Timer

	unsubscribe func()
	closed      bool
}

// New creates a controller. Initialize must run before auth events are
// honored.
func New(provider port.IdentityProvider, store port.ProfileStore, broadcaster port.Broadcaster, logger *zap.Logger, metrics *observability.Metrics, opts Options) *Controller {
	return &Controller{
		provider:    provider,
		store:       store,
		broadcaster: broadcaster,
		logger:      logger,
		metrics:     metrics,
		opts:        opts.withDefaults(),
		origin:      uuid.New().String(),
	}
}

// Initialize restores state from an existing credential pair (nil means
// start anonymous) and subscribes to cross-context signals. Concurrent
// callers share one execution; repeat calls are no-ops.
func (c *Controller) Initialize(ctx context.Context, initial *domain.Session) error {
	_, err, _ := c.group.Do("init", func() (any, error) {
		c.mu.Lock()
		if c.initialized {
			c.mu.Unlock()
			return nil, nil
		}
		c.mu.Unlock()

		if initial != nil {
			cfg := resilience.Config{MaxRetries: c.opts.InitRetries, InitialBackoff: c.opts.InitialBackoff}
			err := resilience.RetryWithBackoff(ctx, cfg, func() error {
				return c.fetchState(ctx, initial)
			})
			if err != nil {
				// Degrade to anonymous rather than blocking startup.
				c.logger.Warn("session: initialization fetch failed, starting anonymous", zap.Error(err))
				c.mu.Lock()
				c.clearStateLocked()
				c.mu.Unlock()
			}
		}

		unsub, err := c.broadcaster.Subscribe(c.onSyncSignal)
		if err != nil {
			return nil, err
		}

		c.mu.Lock()
		c.unsubscribe = unsub
		c.initialized = true
		c.mu.Unlock()

		c.logger.Info("session: controller initialized", zap.Bool("authenticated", initial != nil))
		return nil, nil
	})
	return err
}

// OnAuthEvent reports a credential-state change. Events before
// initialization are dropped. SIGNED_OUT applies synchronously; all
// other events are debounced, and a burst collapses into one fetch with
// the latest session.
func (c *Controller) OnAuthEvent(event domain.AuthEvent, sess *domain.Session) {
	c.mu.Lock()

	if !c.initialized || c.closed {
		c.mu.Unlock()
		c.logger.Debug("session: event before initialization dropped", zap.String("event", string(event)))
		return
	}

	if event == domain.EventSignedOut {
		if c.timer != nil {
			c.timer.Stop()
			c.timer = nil
		}
		c.pendingSession = nil
		c.clearStateLocked()
		c.mu.Unlock()

		c.publish(domain.EventSignedOut)
		return
	}

	c.pendingSession = sess
	if c.timer != nil {
		c.timer.Reset(c.opts.DebounceWindow)
	} else {
		c.timer = time.AfterFunc(c.opts.DebounceWindow, c.flushPending)
	}
	c.mu.Unlock()
}

// SignOut revokes the provider session and clears local state. The local
// clear happens regardless of the provider call's outcome.
func (c *Controller) SignOut(ctx context.Context) error {
	c.mu.Lock()
	sess := c.session
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.pendingSession = nil
	c.clearStateLocked()
	c.mu.Unlock()

	var err error
	if sess != nil {
		err = c.provider.SignOut(ctx, sess.AccessToken)
		if err != nil {
			c.logger.Warn("session: provider sign-out failed", zap.Error(err))
		}
	}

	c.publish(domain.EventSignedOut)
	return err
}

// Refresh re-fetches identity and profile for the current session.
// Best-effort: failures are logged and existing state kept.
func (c *Controller) Refresh(ctx context.Context) {
	c.mu.Lock()
	sess := c.session
	c.mu.Unlock()

	if sess == nil {
		return
	}
	if err := c.fetchState(ctx, sess); err != nil {
		c.logger.Warn("session: refresh failed", zap.Error(err))
	}
}

// Current returns a point-in-time snapshot of auth state.
func (c *Controller) Current() domain.SessionSnapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := domain.SessionSnapshot{
		Authenticated: c.session != nil,
		Verified:      c.identity.Verified(),
		Identity:      c.identity,
		Profile:       c.profile,
	}
	if c.profile != nil {
		snap.RequiredRoute = domain.LandingRoute(c.profile, snap.Verified)
	}
	return snap
}

// SnapshotFor returns the controller's snapshot when it owns the given
// access token, or an empty-token request against an anonymous
// controller. ok is false when the caller's credentials belong to a
// session this controller is not tracking; those callers need their own
// provider lookup.
func (c *Controller) SnapshotFor(accessToken string) (domain.SessionSnapshot, bool) {
	c.mu.Lock()
	owns := (c.session == nil && accessToken == "") ||
		(c.session != nil && c.session.AccessToken == accessToken)
	c.mu.Unlock()

	if !owns {
		return domain.SessionSnapshot{}, false
	}
	return c.Current(), true
}

// Close tears the controller down: unsubscribes, stops the debounce
// timer, and drops state.
func (c *Controller) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	unsub := c.unsubscribe
	c.unsubscribe = nil
	c.clearStateLocked()
	c.mu.Unlock()

	if unsub != nil {
		unsub()
	}
}

func (c *Controller) flushPending() {
	c.mu.Lock()
	sess := c.pendingSession
	c.pendingSession = nil
	c.timer = nil
	closed := c.closed
	c.mu.Unlock()

	if closed {
		return
	}
	if sess == nil {
		return
	}
	if err := c.fetchState(context.Background(), sess); err != nil {
		c.logger.Warn("session: debounced fetch failed", zap.Error(err))
	}
}

// fetchState resolves identity + profile for a session and installs the
// result, unless a newer fetch started or a sign-out landed while this
// one was in flight. Each fetch claims a fresh generation up front, so
// an older fetch that finishes last can never overwrite the state a
// newer one installed.
func (c *Controller) fetchState(ctx context.Context, sess *domain.Session) error {
	c.mu.Lock()
	c.generation++
	gen := c.generation
	c.mu.Unlock()

	res, err, _ := c.group.Do("fetch:"+sess.AccessToken, func() (any, error) {
		identity, err := c.provider.GetUser(ctx, sess.AccessToken)
		if err != nil {
			return nil, err
		}
		profile, err := c.store.GetProfile(ctx, identity.ID)
		if err != nil {
			return nil, err
		}
		return &fetched{identity: identity, profile: profile}, nil
	})
	if err != nil {
		c.metrics.RecordSessionFetch("error")
		return err
	}
	c.metrics.RecordSessionFetch("ok")

	f := res.(*fetched)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.generation != gen {
		// A sign-out or newer event won the race; this result is stale.
		c.logger.Debug("session: discarding stale fetch", zap.String("user_id", f.identity.ID))
		return nil
	}
	c.session = sess
	c.identity = f.identity
	c.profile = f.profile
	return nil
}

type fetched struct {
	identity *domain.Identity
	profile  *domain.Profile
}

func (c *Controller) clearStateLocked() {
	c.generation++
	c.session = nil
	c.identity = nil
	c.profile = nil
}

func (c *Controller) publish(event domain.AuthEvent) {
	sig := domain.SyncSignal{Type: event, At: time.Now(), Origin: c.origin}
	if err := c.broadcaster.Publish(context.Background(), sig); err != nil {
		c.logger.Warn("session: broadcast publish failed", zap.Error(err))
		return
	}
	c.metrics.RecordSyncSignal(string(event), "sent")
}

// onSyncSignal handles signals from other execution contexts. Own
// signals are ignored; a SIGNED_OUT clears local state, anything else
// triggers a best-effort refresh of this context's own view.
func (c *Controller) onSyncSignal(sig domain.SyncSignal) {
	if sig.Origin == c.origin {
		return
	}
	c.metrics.RecordSyncSignal(string(sig.Type), "received")

	if sig.Type == domain.EventSignedOut {
		c.mu.Lock()
		c.clearStateLocked()
		c.mu.Unlock()
		return
	}
	c.Refresh(context.Background())
}
