package pool

import (
	"sync"
	"time"

	"github.com/foofork/riptide/engine/models"
)

// breaker is a pool-scoped circuit breaker, adapted from the domain-scoped
// breaker in the fetcher's adaptive rate limiter: the same
// closed/open/half-open state machine and consecutive-failure counting,
// retargeted at pool acquisition failures instead of per-domain fetch
// failures.
type breaker struct {
	mu               sync.Mutex
	state            models.CircuitState
	failures         int
	halfOpenInFlight int

	failureThreshold int
	openCooldown     time.Duration
	nextAttempt      time.Time
	now              func() time.Time
}

func newBreaker(failureThreshold int, openCooldown time.Duration) *breaker {
	return &breaker{
		state:            models.CircuitClosed,
		failureThreshold: failureThreshold,
		openCooldown:     openCooldown,
		now:              time.Now,
	}
}

// allow reports whether a new acquisition may proceed, and whether this
// call consumes the single half-open probe slot.
func (b *breaker) allow() (ok bool, isProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case models.CircuitOpen:
		if b.now().Before(b.nextAttempt) {
			return false, false
		}
		b.state = models.CircuitHalfOpen
		b.halfOpenInFlight = 0
		fallthrough
	case models.CircuitHalfOpen:
		if b.halfOpenInFlight >= 1 {
			return false, false
		}
		b.halfOpenInFlight++
		return true, true
	default:
		return true, false
	}
}

func (b *breaker) recordSuccess(wasProbe bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wasProbe {
		b.halfOpenInFlight--
	}
	if b.state == models.CircuitHalfOpen {
		b.state = models.CircuitClosed
	}
	b.failures = 0
}

// recordFailure returns true if this failure tripped the breaker open.
func (b *breaker) recordFailure(wasProbe bool) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if wasProbe {
		b.halfOpenInFlight--
		b.state = models.CircuitOpen
		b.nextAttempt = b.now().Add(b.openCooldown)
		return true
	}
	b.failures++
	if b.state == models.CircuitClosed && b.failures >= b.failureThreshold {
		b.state = models.CircuitOpen
		b.nextAttempt = b.now().Add(b.openCooldown)
		return true
	}
	return false
}

func (b *breaker) snapshot() models.CircuitState {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}
