package identity

import (
	"context"
	"errors"
	"sync"
	"time"

	"wallet-service/internal/domain"
)

var ErrCircuitOpen = errors.New("identity circuit open")

type BreakerConfig struct {
	FailureThreshold int
	OpenTimeout      time.Duration
}

const (
	cbClosed = iota
	cbOpen
	cbHalfOpen
)

// CircuitBreaker short-circuits to Unavailable after FailureThreshold
// consecutive Unavailable outcomes. Found, NotFound and Unauthorized all
// count as healthy answers from the identity service.
type CircuitBreaker struct {
	next domain.IdentityVerifier
	cfg  BreakerConfig
	now  func() time.Time

	mu           sync.Mutex
	state        int
	failures     int
	openedAt     time.Time
	halfInFlight bool
}

func NewCircuitBreaker(next domain.IdentityVerifier, cfg BreakerConfig) *CircuitBreaker {
	if cfg.FailureThreshold <= 0 {
		cfg.FailureThreshold = 5
	}
	if cfg.OpenTimeout <= 0 {
		cfg.OpenTimeout = 10 * time.Second
	}
	return &CircuitBreaker{next: next, cfg: cfg, now: time.Now, state: cbClosed}
}

func (b *CircuitBreaker) Exists(ctx context.Context, ownerID int64, cred domain.Credential) (domain.VerificationResult, error) {
	if err := b.beforeCall(); err != nil {
		return domain.VerificationUnavailable, err
	}

	result, err := b.next.Exists(ctx, ownerID, cred)
	if ctx.Err() != nil {
		// A cancelled caller is not an identity service failure.
		b.abandonCall()
		return result, err
	}
	b.afterCall(result == domain.VerificationUnavailable)
	return result, err
}

// abandonCall releases a half-open probe slot without recording an outcome.
func (b *CircuitBreaker) abandonCall() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == cbHalfOpen {
		b.halfInFlight = false
	}
}

func (b *CircuitBreaker) beforeCall() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case cbClosed:
		return nil
	case cbOpen:
		if b.now().Sub(b.openedAt) < b.cfg.OpenTimeout {
			return ErrCircuitOpen
		}
		b.state = cbHalfOpen
		b.halfInFlight = false
		fallthrough
	case cbHalfOpen:
		if b.halfInFlight {
			return ErrCircuitOpen
		}
		b.halfInFlight = true
		return nil
	default:
		return ErrCircuitOpen
	}
}

func (b *CircuitBreaker) afterCall(failed bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.state == cbHalfOpen {
		b.halfInFlight = false
		if failed {
			b.state = cbOpen
			b.openedAt = b.now()
			return
		}
		b.state = cbClosed
		b.failures = 0
		return
	}

	if !failed {
		b.failures = 0
		return
	}

	b.failures++
	if b.failures >= b.cfg.FailureThreshold {
		b.state = cbOpen
		b.openedAt = b.now()
	}
}
