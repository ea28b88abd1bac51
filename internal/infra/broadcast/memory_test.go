package broadcast

import (
	"context"
	"testing"
	"time"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

func TestMemoryPublishReachesSubscribers(t *testing.T) {
	b := NewMemory()

	received := make([]domain.SyncSignal, 0)
	unsub, err := b.Subscribe(func(sig domain.SyncSignal) {
		received = append(received, sig)
	})
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}
	defer unsub()

	sig := domain.SyncSignal{Type: domain.EventSignedOut, At: time.Now(), Origin: "tab-a"}
	if err := b.Publish(context.Background(), sig); err != nil {
		t.Fatalf("publish: %v", err)
	}

	if len(received) != 1 || received[0].Type != domain.EventSignedOut {
		t.Errorf("received = %+v, want one SIGNED_OUT signal", received)
	}
}

func TestMemoryUnsubscribeStopsDelivery(t *testing.T) {
	b := NewMemory()

	count := 0
	unsub, _ := b.Subscribe(func(domain.SyncSignal) { count++ })
	unsub()

	b.Publish(context.Background(), domain.SyncSignal{Type: domain.EventSignedIn})
	if count != 0 {
		t.Errorf("delivered %d signals after unsubscribe", count)
	}
}
