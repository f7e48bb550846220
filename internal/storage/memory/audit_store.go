package memory

import (
	"context"
	"fmt"
	"sync"

	"github.com/JakeFAU/site-auditor/internal/audit"
)

// AuditStore provides an in-memory implementation for development/testing.
// Stored records are never mutated in place; every update replaces the
// value, so reports handed out by GetAudit stay stable.
type AuditStore struct {
	mu     sync.RWMutex
	audits map[string]audit.Audit
}

// NewAuditStore constructs an AuditStore.
func NewAuditStore() *AuditStore {
	return &AuditStore{audits: make(map[string]audit.Audit)}
}

// CreateAudit stores a new audit.
func (s *AuditStore) CreateAudit(_ context.Context, a audit.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.audits[a.ID]; exists {
		return fmt.Errorf("%w: %s", audit.ErrAlreadyExists, a.ID)
	}
	s.audits[a.ID] = a
	return nil
}

// UpdateAudit replaces the audit when the stored status may move to
// a.Status.
func (s *AuditStore) UpdateAudit(_ context.Context, a audit.Audit) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.audits[a.ID]
	if !ok {
		return fmt.Errorf("%w: %s", audit.ErrNotFound, a.ID)
	}
	if !audit.CanTransition(current.Status, a.Status) {
		return fmt.Errorf("%w: %s -> %s", audit.ErrInvalidTransition, current.Status, a.Status)
	}
	a.CreatedAt = current.CreatedAt
	s.audits[a.ID] = a
	return nil
}

// GetAudit fetches an audit by ID.
func (s *AuditStore) GetAudit(_ context.Context, id string) (audit.Audit, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.audits[id]
	if !ok {
		return audit.Audit{}, fmt.Errorf("%w: %s", audit.ErrNotFound, id)
	}
	return a, nil
}

// DeleteAudit removes an audit.
func (s *AuditStore) DeleteAudit(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.audits[id]; !ok {
		return fmt.Errorf("%w: %s", audit.ErrNotFound, id)
	}
	delete(s.audits, id)
	return nil
}

// Ping always succeeds.
func (s *AuditStore) Ping(context.Context) error {
	return nil
}
