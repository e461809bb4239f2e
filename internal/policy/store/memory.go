// Package store persists policy fingerprints and alerts.
package store

import (
	"context"
	"sync"
	"time"

	"scholarship/internal/application/ports"
	"scholarship/internal/policy"
	id "scholarship/pkg/domain"
)

type fingerprintKey struct {
	kind        policy.FingerprintKind
	fingerprint string
}

type InMemory struct {
	mu     sync.Mutex
	seen   map[fingerprintKey][]id.UserID
	alerts []ports.PolicyAlert
}

func NewInMemory() *InMemory {
	return &InMemory{seen: make(map[fingerprintKey][]id.UserID)}
}

func (s *InMemory) Register(_ context.Context, kind policy.FingerprintKind, fingerprint string, studentID id.UserID, _ time.Time) ([]id.UserID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := fingerprintKey{kind: kind, fingerprint: fingerprint}
	var others []id.UserID
	known := false
	for _, sid := range s.seen[key] {
		if sid == studentID {
			known = true
			continue
		}
		others = append(others, sid)
	}
	if !known {
		s.seen[key] = append(s.seen[key], studentID)
	}
	return others, nil
}

func (s *InMemory) Save(_ context.Context, alert ports.PolicyAlert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, alert)
	return nil
}

func (s *InMemory) ListByStudent(_ context.Context, studentID id.UserID) ([]ports.PolicyAlert, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []ports.PolicyAlert
	for _, a := range s.alerts {
		if a.StudentID == studentID {
			out = append(out, a)
		}
	}
	return out, nil
}
