package guardrails

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"netwarden/internal/models"
)

// DefaultTTL is how long a pending action stays confirmable.
const DefaultTTL = 5 * time.Minute

// PendingStore owns all pending actions. Expiry is enforced by
// wall-clock comparison at access time: a lookup immediately after the
// deadline is deterministic even if no sweep has run. The opportunistic
// sweep on Add only bounds memory, never correctness.
type PendingStore struct {
	ttl time.Duration
	now func() time.Time

	mu      sync.Mutex
	actions map[string]*models.PendingAction
}

// NewPendingStore creates a store with the given TTL. A zero ttl uses
// DefaultTTL.
func NewPendingStore(ttl time.Duration) *PendingStore {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &PendingStore{
		ttl:     ttl,
		now:     time.Now,
		actions: make(map[string]*models.PendingAction),
	}
}

// Add creates a pending action with an unguessable token. The TTL clock
// starts immediately.
func (s *PendingStore) Add(tool string, params map[string]string, description, riskReason string) *models.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.sweepLocked()

	now := s.now()
	a := &models.PendingAction{
		ID:          uuid.New().String(),
		ToolName:    tool,
		Params:      copyParams(params),
		Description: description,
		RiskReason:  riskReason,
		CreatedAt:   now,
		ExpiresAt:   now.Add(s.ttl),
		Status:      models.ActionPending,
	}
	s.actions[a.ID] = a

	return snapshot(a)
}

// Get returns a copy of the action, applying lazy expiry first.
func (s *PendingStore) Get(id string) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, models.ErrNotFound)
	}

	s.expireLocked(a)
	return snapshot(a), nil
}

// Confirm transitions the action from pending to confirmed. Exactly one
// of a concurrent Confirm/Cancel pair wins; the loser observes
// ErrAlreadyResolved. After the TTL both observe ErrExpired.
func (s *PendingStore) Confirm(id string) (*models.PendingAction, error) {
	return s.resolve(id, models.ActionConfirmed)
}

// Cancel transitions the action from pending to cancelled.
func (s *PendingStore) Cancel(id string) (*models.PendingAction, error) {
	return s.resolve(id, models.ActionCancelled)
}

func (s *PendingStore) resolve(id string, target models.ActionStatus) (*models.PendingAction, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.actions[id]
	if !ok {
		return nil, fmt.Errorf("action %s: %w", id, models.ErrNotFound)
	}

	s.expireLocked(a)

	switch a.Status {
	case models.ActionPending:
		a.Status = target
		return snapshot(a), nil
	case models.ActionExpired:
		return nil, fmt.Errorf("action %s: %w", id, models.ErrExpired)
	default:
		return nil, fmt.Errorf("action %s is %s: %w", id, a.Status, models.ErrAlreadyResolved)
	}
}

// ListPending returns copies of all actions still pending and not
// expired, oldest first.
func (s *PendingStore) ListPending() []*models.PendingAction {
	s.mu.Lock()
	defer s.mu.Unlock()

	var pending []*models.PendingAction
	for _, a := range s.actions {
		s.expireLocked(a)
		if a.Status == models.ActionPending {
			pending = append(pending, snapshot(a))
		}
	}

	// Deterministic order for callers
	for i := 1; i < len(pending); i++ {
		for j := i; j > 0 && pending[j].CreatedAt.Before(pending[j-1].CreatedAt); j-- {
			pending[j], pending[j-1] = pending[j-1], pending[j]
		}
	}

	return pending
}

// expireLocked applies lazy expiry to a single action. Only a pending
// action can expire; terminal states are never rewritten.
func (s *PendingStore) expireLocked(a *models.PendingAction) {
	if a.Status == models.ActionPending && s.now().After(a.ExpiresAt) {
		a.Status = models.ActionExpired
	}
}

// sweepLocked drops actions that left pending long ago. Memory bound
// only; expiry itself never depends on the sweep.
func (s *PendingStore) sweepLocked() {
	cutoff := s.now().Add(-2 * s.ttl)
	for id, a := range s.actions {
		s.expireLocked(a)
		if a.Status != models.ActionPending && a.CreatedAt.Before(cutoff) {
			delete(s.actions, id)
		}
	}
}

func copyParams(params map[string]string) map[string]string {
	out := make(map[string]string, len(params))
	for k, v := range params {
		out[k] = v
	}
	return out
}

func snapshot(a *models.PendingAction) *models.PendingAction {
	c := *a
	c.Params = copyParams(a.Params)
	return &c
}
