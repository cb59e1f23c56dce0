package scheduler

import (
	"context"
	"sync"
	"time"

	"github.com/joshu-sajeev/goqueue/internal/schedule"
	"github.com/rs/zerolog/log"
)

// Policy is the resolved backend policy.
type Policy struct {
	PreferClaimStore bool
}

// Selector picks the active backend once and remembers it.
type Selector struct {
	mu       sync.Mutex
	policy   Policy
	claim    Scheduler
	host     Scheduler
	registry *schedule.Registry
	active   Scheduler
}

// NewSelector builds a selector. claim may be nil when no claim store is
// configured; host must not be.
func NewSelector(policy Policy, claim, host Scheduler, registry *schedule.Registry) *Selector {
	if registry == nil {
		registry = schedule.Default()
	}
	return &Selector{policy: policy, claim: claim, host: host, registry: registry}
}

// Active returns the cached backend, choosing it on first use.
func (s *Selector) Active(ctx context.Context) Scheduler {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.active != nil {
		return s.active
	}

	s.active = s.host
	if s.policy.PreferClaimStore && s.claim != nil && s.claim.Available(ctx) {
		s.active = s.claim
	}
	log.Info().Str("backend", s.active.Name()).Bool("prefer_claim_store", s.policy.PreferClaimStore).Msg("scheduler backend selected")
	return s.active
}

// Reset forgets the cached backend.
func (s *Selector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.active = nil
}

// SetPolicy replaces the policy and forgets the cached backend.
func (s *Selector) SetPolicy(p Policy) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.policy = p
	s.active = nil
}

func (s *Selector) ActiveName(ctx context.Context) string {
	return s.Active(ctx).Name()
}

// ClaimStoreActive reports whether the claim store backend is in use.
func (s *Selector) ClaimStoreActive(ctx context.Context) bool {
	active := s.Active(ctx)
	return s.claim != nil && active == s.claim
}

// Interval resolves a schedule name, host registry first.
func (s *Selector) Interval(name string) (time.Duration, error) {
	return s.registry.Resolve(name)
}

// Registry exposes the schedule registry in use.
func (s *Selector) Registry() *schedule.Registry {
	return s.registry
}
