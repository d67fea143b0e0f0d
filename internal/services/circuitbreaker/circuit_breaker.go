// Package circuitbreaker stops calling a failing upstream for a while.
//
// Closed passes every call and counts consecutive failures. Reaching the
// failure threshold opens the breaker, which rejects calls until the open
// timeout has passed. The next call then runs half-open: any failure reopens
// the breaker, and enough successes close it again.
package circuitbreaker

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/Egham-7/medchat/internal/models"

	fiberlog "github.com/gofiber/fiber/v2/log"
)

// ErrOpen is returned in place of an upstream call while the breaker is open
var ErrOpen = errors.New("circuit breaker is open")

type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

type Config struct {
	FailureThreshold int
	SuccessThreshold int
	OpenTimeout      time.Duration
}

// ConfigFrom converts the YAML settings
func ConfigFrom(cfg models.CircuitBreakerConfig) Config {
	return Config{
		FailureThreshold: max(cfg.FailureThreshold, 1),
		SuccessThreshold: max(cfg.SuccessThreshold, 1),
		OpenTimeout:      time.Duration(cfg.OpenTimeoutMs) * time.Millisecond,
	}
}

// Local keeps breaker state in process memory
type Local struct {
	mu        sync.Mutex
	name      string
	config    Config
	state     State
	failures  int
	successes int
	openedAt  time.Time
	now       func() time.Time
}

func NewLocal(name string, config Config) *Local {
	return &Local{name: name, config: config, now: time.Now}
}

// Allow reports whether a call may proceed, moving an expired open breaker to half-open
func (cb *Local) Allow(_ context.Context) bool {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	if cb.state != Open {
		return true
	}
	if cb.now().Sub(cb.openedAt) < cb.config.OpenTimeout {
		return false
	}
	cb.state = HalfOpen
	cb.successes = 0
	fiberlog.Infof("CircuitBreaker: %s is half-open", cb.name)
	return true
}

func (cb *Local) RecordSuccess(_ context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures = 0
	if cb.state != HalfOpen {
		return
	}
	cb.successes++
	if cb.successes >= cb.config.SuccessThreshold {
		cb.state = Closed
		cb.successes = 0
		fiberlog.Infof("CircuitBreaker: %s closed", cb.name)
	}
}

func (cb *Local) RecordFailure(_ context.Context) {
	cb.mu.Lock()
	defer cb.mu.Unlock()

	cb.failures++
	if cb.state == HalfOpen || (cb.state == Closed && cb.failures >= cb.config.FailureThreshold) {
		cb.state = Open
		cb.openedAt = cb.now()
		cb.successes = 0
		fiberlog.Warnf("CircuitBreaker: %s opened after %d failures", cb.name, cb.failures)
	}
}

func (cb *Local) State(_ context.Context) State {
	cb.mu.Lock()
	defer cb.mu.Unlock()
	return cb.state
}
