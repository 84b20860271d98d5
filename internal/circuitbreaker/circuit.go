// Package circuitbreaker protects tool dispatch from repeatedly invoking a
// failing (plugin, action) pair, keyed per-action rather than globally per
// service.
package circuitbreaker

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/haasonsaas/assistant-core/pkg/models"
)

// Circuit breaker states.
const (
	Closed   = "closed"
	Open     = "open"
	HalfOpen = "half-open"
)

// ErrOpen is returned by Execute when the circuit is open and the cooldown
// timeout has not yet elapsed.
var ErrOpen = errors.New("circuit breaker is open")

// Config configures a single circuit breaker.
type Config struct {
	Name             string
	FailureThreshold int
	SuccessThreshold int
	Timeout          time.Duration
	OnStateChange    func(from, to string)
}

func (c Config) withDefaults() Config {
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.SuccessThreshold <= 0 {
		c.SuccessThreshold = 2
	}
	if c.Timeout <= 0 {
		c.Timeout = 30 * time.Second
	}
	return c
}

// Breaker implements the circuit breaker pattern for one (plugin, action)
// pair.
type Breaker struct {
	config Config

	mu              sync.RWMutex
	state           string
	failures        int
	successes       int
	lastFailure     time.Time
	lastStateChange time.Time
}

// New creates a breaker with the given config, in the closed state.
func New(config Config) *Breaker {
	config = config.withDefaults()
	return &Breaker{
		config:          config,
		state:           Closed,
		lastStateChange: time.Now(),
	}
}

// Execute runs fn with circuit breaker protection.
func (b *Breaker) Execute(ctx context.Context, fn func(context.Context) error) error {
	if err := b.canExecute(); err != nil {
		return err
	}
	err := fn(ctx)
	b.recordResult(err)
	return err
}

// ExecuteWithResult runs a value-returning fn with circuit breaker
// protection.
func ExecuteWithResult[T any](b *Breaker, ctx context.Context, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	if err := b.canExecute(); err != nil {
		return zero, err
	}
	result, err := fn(ctx)
	b.recordResult(err)
	return result, err
}

func (b *Breaker) canExecute() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return nil
	case Open:
		if time.Since(b.lastStateChange) >= b.config.Timeout {
			b.transitionTo(HalfOpen)
			return nil
		}
		return ErrOpen
	case HalfOpen:
		return nil
	default:
		return nil
	}
}

func (b *Breaker) recordResult(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err != nil {
		b.recordFailure()
	} else {
		b.recordSuccess()
	}
}

func (b *Breaker) recordFailure() {
	b.failures++
	b.successes = 0
	b.lastFailure = time.Now()

	switch b.state {
	case Closed:
		if b.failures >= b.config.FailureThreshold {
			b.transitionTo(Open)
		}
	case HalfOpen:
		b.transitionTo(Open)
	}
}

func (b *Breaker) recordSuccess() {
	switch b.state {
	case Closed:
		b.failures = 0
	case HalfOpen:
		b.successes++
		if b.successes >= b.config.SuccessThreshold {
			b.transitionTo(Closed)
		}
	}
}

func (b *Breaker) transitionTo(newState string) {
	oldState := b.state
	b.state = newState
	b.lastStateChange = time.Now()
	b.failures = 0
	b.successes = 0

	if b.config.OnStateChange != nil {
		go b.config.OnStateChange(oldState, newState)
	}
}

// State returns the breaker's current state.
func (b *Breaker) State() string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

// Snapshot returns a ToolMetricsSnapshot for the given plugin/action, for
// exposure via the tool router's metrics endpoint.
func (b *Breaker) Snapshot(plugin, action string) models.ToolMetricsSnapshot {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return models.ToolMetricsSnapshot{
		Plugin:          plugin,
		Action:          action,
		State:           b.state,
		Failures:        b.failures,
		LastFailure:     b.lastFailure,
		LastStateChange: b.lastStateChange,
	}
}

// Reset manually forces the breaker back to closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.successes = 0
	b.lastStateChange = time.Now()
}

// Registry manages one Breaker per (plugin, action) key.
type Registry struct {
	mu       sync.RWMutex
	breakers map[string]*Breaker
	defaults Config
}

// NewRegistry creates a registry that lazily creates breakers using
// defaults.
func NewRegistry(defaults Config) *Registry {
	defaults = defaults.withDefaults()
	return &Registry{
		breakers: make(map[string]*Breaker),
		defaults: defaults,
	}
}

// Key builds the registry key for a (plugin, action) pair.
func Key(plugin, action string) string {
	return plugin + "." + action
}

// Get returns or lazily creates the breaker for key.
func (r *Registry) Get(key string) *Breaker {
	r.mu.RLock()
	b, ok := r.breakers[key]
	r.mu.RUnlock()
	if ok {
		return b
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	config := r.defaults
	config.Name = key
	b = New(config)
	r.breakers[key] = b
	return b
}

// GetWithConfig returns or creates a breaker for key with a custom config,
// used for actions that declare their own failure_threshold/timeout.
func (r *Registry) GetWithConfig(key string, config Config) *Breaker {
	r.mu.Lock()
	defer r.mu.Unlock()
	if b, ok := r.breakers[key]; ok {
		return b
	}
	config.Name = key
	b := New(config)
	r.breakers[key] = b
	return b
}

// Snapshots returns a metrics snapshot for every tracked breaker, keyed by
// plugin.action.
func (r *Registry) Snapshots() []models.ToolMetricsSnapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]models.ToolMetricsSnapshot, 0, len(r.breakers))
	for key, b := range r.breakers {
		plugin, action := splitKey(key)
		out = append(out, b.Snapshot(plugin, action))
	}
	return out
}

// OpenCircuits returns the keys of every breaker currently open.
func (r *Registry) OpenCircuits() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var open []string
	for key, b := range r.breakers {
		if b.State() == Open {
			open = append(open, key)
		}
	}
	return open
}

// ResetAll forces every tracked breaker back to closed.
func (r *Registry) ResetAll() {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, b := range r.breakers {
		b.Reset()
	}
}

func splitKey(key string) (plugin, action string) {
	for i := 0; i < len(key); i++ {
		if key[i] == '.' {
			return key[:i], key[i+1:]
		}
	}
	return key, ""
}
