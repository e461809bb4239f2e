// Package store persists document records. Blob contents live behind the
// BlobStore port; only the locator is kept here.
package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"scholarship/internal/document/models"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/sentinel"
)

// InMemory is a map-backed document store guarded by one RWMutex.
type InMemory struct {
	mu   sync.RWMutex
	docs map[id.DocumentID]*models.Document
}

func NewInMemory() *InMemory {
	return &InMemory{docs: make(map[id.DocumentID]*models.Document)}
}

func (s *InMemory) CreateMany(_ context.Context, docs []*models.Document) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, d := range docs {
		if _, exists := s.docs[d.ID]; exists {
			return sentinel.ErrConflict
		}
	}
	for _, d := range docs {
		s.docs[d.ID] = d.Clone()
	}
	return nil
}

func (s *InMemory) FindByID(_ context.Context, docID id.DocumentID) (*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	d, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return d.Clone(), nil
}

func (s *InMemory) ListByApplication(_ context.Context, appID id.ApplicationID) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, d := range s.docs {
		if d.ApplicationID == appID {
			out = append(out, d.Clone())
		}
	}
	sortByCreated(out)
	return out, nil
}

// ListExpired returns approved documents whose expiry is before now and that
// sort after the cursor, in (expires_at, id) order.
func (s *InMemory) ListExpired(_ context.Context, now time.Time, after *models.ExpiryCursor, limit int) ([]*models.Document, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Document
	for _, d := range s.docs {
		if d.IsExpiredAt(now) && after.Precedes(d) {
			out = append(out, d.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool { return models.CursorAt(out[i]).Precedes(out[j]) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// Execute runs validate and mutate against a copy of the document under the
// store lock and persists the copy only when validate succeeds.
func (s *InMemory) Execute(
	ctx context.Context,
	docID id.DocumentID,
	validate func(*models.Document) error,
	mutate func(*models.Document),
) (*models.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.docs[docID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	s.docs[docID] = working
	return working.Clone(), nil
}

func (s *InMemory) DeleteByApplication(_ context.Context, appID id.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for docID, d := range s.docs {
		if d.ApplicationID == appID {
			delete(s.docs, docID)
		}
	}
	return nil
}

func sortByCreated(docs []*models.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		if docs[i].CreatedAt.Equal(docs[j].CreatedAt) {
			return docs[i].ID.String() < docs[j].ID.String()
		}
		return docs[i].CreatedAt.Before(docs[j].CreatedAt)
	})
}
