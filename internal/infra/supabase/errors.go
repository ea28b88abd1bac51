package supabase

import (
	"errors"
	"fmt"

	"github.com/sony/gobreaker"

	"github.com/spotlightza/spotlight-edge-go/internal/domain"
)

func statusErr(status int, body []byte) error {
	return fmt.Errorf("status %d: %s", status, string(body))
}

// breakerErr maps gobreaker sentinels to the typed circuit-open error
// and passes everything else through.
func breakerErr(service string, err error) error {
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return &domain.ErrCircuitOpen{Service: service}
	}
	return err
}
