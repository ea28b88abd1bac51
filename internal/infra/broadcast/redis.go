// Package broadcast fans auth sync signals out to other execution
// contexts of the same user: other tabs via the app shell, other edge
// instances via Redis pub/sub. Delivery is fire-and-forget and
// at-most-once; receivers reconcile against the authoritative server
// state instead of trusting the payload.
package broadcast

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

const markerTTL = 30 * time.Second

// Redis broadcasts signals on a pub/sub channel and drops a short-lived
// marker key per signal, so a context that was offline during the
// publish can still notice a recent credential change.
type Redis struct {
	rdb     *redis.Client
	channel string
	logger  *zap.Logger

	mu   sync.Mutex
	subs []*redis.PubSub
}

// NewRedis creates a Redis-backed broadcaster on the given channel.
func NewRedis(rdb *redis.Client, channel string, logger *zap.Logger) *Redis {
	return &Redis{rdb: rdb, channel: channel, logger: logger}
}

// Publish sends a signal to all subscribed contexts. Failures are
// logged, not returned as fatal: sync is best-effort.
func (b *Redis) Publish(ctx context.Context, sig domain.SyncSignal) error {
	payload, err := json.Marshal(sig)
	if err != nil {
		return err
	}

	if err := b.rdb.Publish(ctx, b.channel, payload).Err(); err != nil {
		b.logger.Warn("broadcast: publish failed",
			zap.String("type", string(sig.Type)),
			zap.Error(err),
		)
		return err
	}

	// Self-deleting marker; readers only check existence.
	marker := fmt.Sprintf("%s:marker:%s:%s", b.channel, sig.Type, uuid.New().String())
	if err := b.rdb.Set(ctx, marker, sig.At.Format(time.RFC3339), markerTTL).Err(); err != nil {
		b.logger.Warn("broadcast: marker write failed", zap.Error(err))
	}

	return nil
}

// Subscribe registers fn for every signal published by any context.
// The returned func tears the subscription down.
func (b *Redis) Subscribe(fn func(domain.SyncSignal)) (func(), error) {
	ps := b.rdb.Subscribe(context.Background(), b.channel)
	if _, err := ps.Receive(context.Background()); err != nil {
		_ = ps.Close()
		return nil, err
	}

	b.mu.Lock()
	b.subs = append(b.subs, ps)
	b.mu.Unlock()

	go func() {
		for msg := range ps.Channel() {
			var sig domain.SyncSignal
			if err := json.Unmarshal([]byte(msg.Payload), &sig); err != nil {
				b.logger.Warn("broadcast: bad signal payload", zap.Error(err))
				continue
			}
			fn(sig)
		}
	}()

	return func() { _ = ps.Close() }, nil
}

// Close tears down all active subscriptions.
func (b *Redis) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ps := range b.subs {
		_ = ps.Close()
	}
	b.subs = nil
}
