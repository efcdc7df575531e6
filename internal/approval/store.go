package approval

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/nik-kale/Secure-MCP-Gateway/internal/model"
)

// Status represents the state of a pending approval.
type Status string

const (
	StatusPending  Status = "pending"
	StatusApproved Status = "approved"
	StatusDenied   Status = "denied"
	StatusExpired  Status = "expired"
)

// ErrMissingApprovalToken is returned when a decision registered for
// approval carries no token. The decision engine always attaches one to a
// review decision, so hitting this means the engine and orchestrator are out
// of sync.
var ErrMissingApprovalToken = errors.New("decision carries no approval token")

// ErrNotFound is returned for operations on unknown tokens.
var ErrNotFound = errors.New("approval not found")

// AlreadyProcessedError is returned when granting or denying a record whose
// status has already left pending.
type AlreadyProcessedError struct {
	Status Status
}

func (e *AlreadyProcessedError) Error() string {
	return fmt.Sprintf("approval already processed (status: %s)", e.Status)
}

// ExpiredError is returned by Grant when the record's deadline has passed.
type ExpiredError struct {
	Token string
}

func (e *ExpiredError) Error() string {
	return fmt.Sprintf("approval %s expired", e.Token)
}

// PendingApproval is one suspended tool call awaiting a human decision.
type PendingApproval struct {
	Token      string                 `json:"token"`
	Context    *model.ToolCallContext `json:"context"`
	Decision   *model.Decision        `json:"decision"`
	Status     Status                 `json:"status"`
	CreatedAt  time.Time              `json:"created_at"`
	ExpiresAt  *time.Time             `json:"expires_at,omitempty"`
	ResolvedBy string                 `json:"resolved_by,omitempty"`
	ResolvedAt *time.Time             `json:"resolved_at,omitempty"`
}

// Store owns the lifecycle of approval tokens. Per token the state machine
// is pending → approved | denied | expired; every transition away from
// pending is one-way and one-time. Records live in memory until removed by
// Cleanup.
type Store struct {
	mu         sync.Mutex
	byToken    map[string]*PendingApproval
	defaultTTL time.Duration
	now        func() time.Time
}

// Option configures a Store.
type Option func(*Store)

// WithDefaultTTL sets the TTL applied by Create when the caller does not
// supply one. Zero means approvals never auto-expire.
func WithDefaultTTL(ttl time.Duration) Option {
	return func(s *Store) { s.defaultTTL = ttl }
}

// withNow overrides the clock. Tests only.
func withNow(now func() time.Time) Option {
	return func(s *Store) { s.now = now }
}

// NewStore creates an empty in-memory approval store.
func NewStore(opts ...Option) *Store {
	s := &Store{
		byToken: make(map[string]*PendingApproval),
		now:     func() time.Time { return time.Now().UTC() },
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Create registers a pending approval for a review decision using the
// store's default TTL. A decision without a token fails with
// ErrMissingApprovalToken.
func (s *Store) Create(call *model.ToolCallContext, decision *model.Decision) (*PendingApproval, error) {
	return s.create(call, decision, s.defaultTTL, s.defaultTTL > 0)
}

// CreateWithTTL registers a pending approval with an explicit TTL.
// The deadline is now+ttl even when ttl is zero or negative, so a zero TTL
// yields a record that is already expired by the time anyone grants it.
func (s *Store) CreateWithTTL(call *model.ToolCallContext, decision *model.Decision, ttl time.Duration) (*PendingApproval, error) {
	return s.create(call, decision, ttl, true)
}

func (s *Store) create(call *model.ToolCallContext, decision *model.Decision, ttl time.Duration, hasTTL bool) (*PendingApproval, error) {
	if decision == nil || decision.ApprovalToken == "" {
		return nil, ErrMissingApprovalToken
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	token := decision.ApprovalToken
	if _, exists := s.byToken[token]; exists {
		return nil, fmt.Errorf("approval token %s already registered", token)
	}

	pa := &PendingApproval{
		Token:     token,
		Context:   call,
		Decision:  decision,
		Status:    StatusPending,
		CreatedAt: s.now(),
	}
	if hasTTL {
		exp := pa.CreatedAt.Add(ttl)
		pa.ExpiresAt = &exp
	}

	s.byToken[token] = pa
	return pa.clone(), nil
}

// Get returns a snapshot of the record, or nil when the token is unknown.
// Absence is a normal outcome, not an error.
func (s *Store) Get(token string) *PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.byToken[token]
	if !ok {
		return nil
	}
	return pa.clone()
}

// ListPending returns snapshots of every record still in pending status,
// in no particular order.
func (s *Store) ListPending() []*PendingApproval {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*PendingApproval
	for _, pa := range s.byToken {
		if pa.Status == StatusPending {
			out = append(out, pa.clone())
		}
	}
	return out
}

// Grant flips a pending record to approved and returns the updated record.
// Unknown token → ErrNotFound; non-pending status → AlreadyProcessedError.
// A pending record whose deadline has passed is first flipped to expired,
// then the call fails with ExpiredError; expiry is checked lazily here, not
// only by the sweep.
func (s *Store) Grant(token, approver string) (*PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	if pa.Status != StatusPending {
		return nil, &AlreadyProcessedError{Status: pa.Status}
	}

	now := s.now()
	if pa.ExpiresAt != nil && !now.Before(*pa.ExpiresAt) {
		pa.Status = StatusExpired
		pa.ResolvedAt = &now
		return nil, &ExpiredError{Token: token}
	}

	pa.Status = StatusApproved
	pa.ResolvedBy = approver
	pa.ResolvedAt = &now
	return pa.clone(), nil
}

// Deny flips a pending record to denied and returns the updated record.
// Unlike Grant, Deny does not check the deadline first: a denial on a
// time-expired-but-not-yet-swept pending record succeeds as a normal denial.
func (s *Store) Deny(token, denier string) (*PendingApproval, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	pa, ok := s.byToken[token]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, token)
	}
	if pa.Status != StatusPending {
		return nil, &AlreadyProcessedError{Status: pa.Status}
	}

	now := s.now()
	pa.Status = StatusDenied
	pa.ResolvedBy = denier
	pa.ResolvedAt = &now
	return pa.clone(), nil
}

// ExpireStale flips every pending record whose deadline has passed to
// expired and returns how many were flipped. Invoked by the periodic sweep
// instead of one timer per token.
func (s *Store) ExpireStale() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	count := 0
	for _, pa := range s.byToken {
		if pa.Status != StatusPending || pa.ExpiresAt == nil {
			continue
		}
		if !now.Before(*pa.ExpiresAt) {
			resolved := now
			pa.Status = StatusExpired
			pa.ResolvedAt = &resolved
			count++
		}
	}
	return count
}

// Cleanup removes every record whose status is not pending and whose
// CreatedAt is strictly before cutoff, and returns the number removed.
// A zero cutoff means 24 hours ago. Pending records are never removed
// regardless of age. This is the only way records are ever deleted.
func (s *Store) Cleanup(cutoff time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cutoff.IsZero() {
		cutoff = s.now().Add(-24 * time.Hour)
	}

	count := 0
	for token, pa := range s.byToken {
		if pa.Status == StatusPending {
			continue
		}
		if pa.CreatedAt.Before(cutoff) {
			delete(s.byToken, token)
			count++
		}
	}
	return count
}

// clone returns a shallow copy. Context and Decision are immutable once
// attached, so sharing them is safe; the record fields themselves must not
// be observable mid-transition.
func (pa *PendingApproval) clone() *PendingApproval {
	cp := *pa
	return &cp
}
