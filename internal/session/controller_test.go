package session

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/broadcast"
	"github.com/spotlightza/spotlight-edge-go/internal/infra/observability"
)

type fakeProvider struct {
	mu           sync.Mutex
	getUserCalls int32
	lastToken    string
	identity     *domain.Identity
	block        chan struct{} // when non-nil, GetUser waits on it
	signOutCalls int32
}

func (f *fakeProvider) GetUser(ctx context.Context, token string) (*domain.Identity, error) {
	f.mu.Lock()
	block := f.block
	f.lastToken = token
	f.mu.Unlock()

	if block != nil {
		<-block
	}
	atomic.AddInt32(&f.getUserCalls, 1)
	return f.identity, nil
}

func (f *fakeProvider) SignIn(ctx context.Context, email, password string) (*domain.Session, *domain.Identity, error) {
	return nil, nil, nil
}

func (f *fakeProvider) SignUp(ctx context.Context, email, password string, metadata map[string]any) (*domain.Identity, error) {
	return nil, nil
}

func (f *fakeProvider) SignOut(ctx context.Context, token string) error {
	atomic.AddInt32(&f.signOutCalls, 1)
	return nil
}

func (f *fakeProvider) RefreshSession(ctx context.Context, token string) (*domain.Session, *domain.Identity, error) {
	return nil, nil, &domain.ErrSessionExpired{}
}

type fakeStore struct {
	profile *domain.Profile
}

func (f *fakeStore) GetProfile(ctx context.Context, userID string) (*domain.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) GetProfileByEmail(ctx context.Context, email string) (*domain.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) CreateProfile(ctx context.Context, userID, email string) (*domain.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) UpgradeRole(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) SwitchMode(ctx context.Context, userID string, target domain.Mode) (*domain.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) AdvanceStep(ctx context.Context, userID string, step domain.Step, selections []string) (*domain.Profile, error) {
	return f.profile, nil
}

func (f *fakeStore) CompleteOnboarding(ctx context.Context, userID string) (*domain.Profile, error) {
	return f.profile, nil
}

func verifiedIdentity() *domain.Identity {
	now := time.Now()
	return &domain.Identity{ID: "user-1", Email: "a@b.co", EmailConfirmedAt: &now, CreatedAt: now}
}

func testProfile() *domain.Profile {
	return &domain.Profile{
		UserID:             "user-1",
		Email:              "a@b.co",
		Role:               domain.RoleUser,
		CurrentRole:        domain.ModePersonal,
		OnboardingComplete: true,
	}
}

func newTestController(provider *fakeProvider, store *fakeStore, b *broadcast.Memory, opts Options) *Controller {
	return New(provider, store, b, zap.NewNop(), observability.NewMetrics(), opts)
}

func session(token string) *domain.Session {
	return &domain.Session{AccessToken: token, RefreshToken: "r-" + token, UserID: "user-1"}
}

func TestInitializeIsIdempotent(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	c := newTestController(provider, &fakeStore{profile: testProfile()}, broadcast.NewMemory(), Options{})
	defer c.Close()

	var wg sync.WaitGroup
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := c.Initialize(context.Background(), session("tok-1")); err != nil {
				t.Errorf("initialize: %v", err)
			}
		}()
	}
	wg.Wait()

	if n := atomic.LoadInt32(&provider.getUserCalls); n != 1 {
		t.Errorf("getUserCalls = %d, want 1", n)
	}
	if snap := c.Current(); !snap.Authenticated || !snap.Verified {
		t.Errorf("snapshot = %+v, want authenticated+verified", snap)
	}
}

func TestEventsBeforeInitializeAreDropped(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	c := newTestController(provider, &fakeStore{profile: testProfile()}, broadcast.NewMemory(), Options{DebounceWindow: 5 * time.Millisecond})
	defer c.Close()

	c.OnAuthEvent(domain.EventSignedIn, session("tok-1"))
	time.Sleep(30 * time.Millisecond)

	if n := atomic.LoadInt32(&provider.getUserCalls); n != 0 {
		t.Errorf("getUserCalls = %d, want 0 for pre-init event", n)
	}
}

func TestDebounceCoalescesEventBurst(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	c := newTestController(provider, &fakeStore{profile: testProfile()}, broadcast.NewMemory(), Options{DebounceWindow: 20 * time.Millisecond})
	defer c.Close()

	if err := c.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	for i := 0; i < 5; i++ {
		c.OnAuthEvent(domain.EventTokenRefreshed, session("tok-latest"))
		time.Sleep(2 * time.Millisecond)
	}
	time.Sleep(100 * time.Millisecond)

	if n := atomic.LoadInt32(&provider.getUserCalls); n != 1 {
		t.Errorf("getUserCalls = %d, want 1 coalesced fetch", n)
	}
	provider.mu.Lock()
	last := provider.lastToken
	provider.mu.Unlock()
	if last != "tok-latest" {
		t.Errorf("fetched token = %q, want latest", last)
	}
}

func TestSignedOutAppliesSynchronously(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	b := broadcast.NewMemory()
	c := newTestController(provider, &fakeStore{profile: testProfile()}, b, Options{DebounceWindow: time.Hour})
	defer c.Close()

	if err := c.Initialize(context.Background(), session("tok-1")); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	var published []domain.SyncSignal
	var mu sync.Mutex
	unsub, _ := b.Subscribe(func(sig domain.SyncSignal) {
		mu.Lock()
		published = append(published, sig)
		mu.Unlock()
	})
	defer unsub()

	// A pending signed-in event must not survive the sign-out.
	c.OnAuthEvent(domain.EventSignedIn, session("tok-2"))
	c.OnAuthEvent(domain.EventSignedOut, nil)

	if snap := c.Current(); snap.Authenticated {
		t.Error("still authenticated immediately after SIGNED_OUT")
	}
	mu.Lock()
	defer mu.Unlock()
	if len(published) != 1 || published[0].Type != domain.EventSignedOut {
		t.Errorf("published = %+v, want one SIGNED_OUT signal", published)
	}
}

func TestCrossContextSignalClearsState(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	store := &fakeStore{profile: testProfile()}
	b := broadcast.NewMemory()

	a := newTestController(provider, store, b, Options{})
	other := newTestController(provider, store, b, Options{})
	defer a.Close()
	defer other.Close()

	if err := a.Initialize(context.Background(), session("tok-a")); err != nil {
		t.Fatalf("initialize a: %v", err)
	}
	if err := other.Initialize(context.Background(), session("tok-b")); err != nil {
		t.Fatalf("initialize other: %v", err)
	}

	if err := other.SignOut(context.Background()); err != nil {
		t.Fatalf("sign out: %v", err)
	}

	if snap := a.Current(); snap.Authenticated {
		t.Error("controller a still authenticated after cross-context SIGNED_OUT")
	}
}

func TestStaleFetchIsDiscarded(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	c := newTestController(provider, &fakeStore{profile: testProfile()}, broadcast.NewMemory(), Options{})
	defer c.Close()

	if err := c.Initialize(context.Background(), session("tok-1")); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	block := make(chan struct{})
	provider.mu.Lock()
	provider.block = block
	provider.mu.Unlock()

	done := make(chan struct{})
	go func() {
		c.Refresh(context.Background())
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	c.OnAuthEvent(domain.EventSignedOut, nil)
	close(block)
	<-done

	if snap := c.Current(); snap.Authenticated {
		t.Error("stale refresh result overwrote the sign-out")
	}
}

func TestNewerFetchWinsOverSlowerOlderFetch(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	c := newTestController(provider, &fakeStore{profile: testProfile()}, broadcast.NewMemory(), Options{})
	defer c.Close()

	if err := c.Initialize(context.Background(), nil); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	block := make(chan struct{})
	provider.mu.Lock()
	provider.block = block
	provider.mu.Unlock()

	done := make(chan struct{})
	go func() {
		_ = c.fetchState(context.Background(), session("tok-old"))
		close(done)
	}()
	time.Sleep(10 * time.Millisecond)

	// A newer fetch starts while the older one hangs in the provider,
	// runs unblocked, and installs its result first.
	provider.mu.Lock()
	provider.block = nil
	provider.mu.Unlock()
	if err := c.fetchState(context.Background(), session("tok-new")); err != nil {
		t.Fatalf("newer fetch: %v", err)
	}

	close(block)
	<-done

	if _, ok := c.SnapshotFor("tok-new"); !ok {
		t.Error("newer session lost to the slower, older fetch")
	}
	if _, ok := c.SnapshotFor("tok-old"); ok {
		t.Error("older fetch overwrote the newer session")
	}
}

func TestSnapshotForChecksOwnership(t *testing.T) {
	provider := &fakeProvider{identity: verifiedIdentity()}
	c := newTestController(provider, &fakeStore{profile: testProfile()}, broadcast.NewMemory(), Options{})
	defer c.Close()

	if snap, ok := c.SnapshotFor(""); !ok || snap.Authenticated {
		t.Errorf("anonymous snapshot = (%+v, %v), want empty snapshot owned", snap, ok)
	}

	if err := c.Initialize(context.Background(), session("tok-1")); err != nil {
		t.Fatalf("initialize: %v", err)
	}

	if snap, ok := c.SnapshotFor("tok-1"); !ok || !snap.Authenticated {
		t.Errorf("own-token snapshot = (%+v, %v), want authenticated", snap, ok)
	}
	if _, ok := c.SnapshotFor("tok-other"); ok {
		t.Error("snapshot handed out for a session this controller is not tracking")
	}
	if _, ok := c.SnapshotFor(""); ok {
		t.Error("anonymous request owned while a session is tracked")
	}
}
