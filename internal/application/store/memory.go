// Package store persists applications and their disbursement ledger.
package store

import (
	"context"
	"sort"
	"sync"

	"scholarship/internal/application/models"
	id "scholarship/pkg/domain"
	"scholarship/pkg/platform/sentinel"
)

// InMemory keeps applications and disbursements in maps. Every read returns
// a deep copy.
type InMemory struct {
	mu            sync.RWMutex
	apps          map[id.ApplicationID]*models.Application
	disbursements map[id.ApplicationID][]*models.Disbursement
}

func NewInMemory() *InMemory {
	return &InMemory{
		apps:          make(map[id.ApplicationID]*models.Application),
		disbursements: make(map[id.ApplicationID][]*models.Disbursement),
	}
}

// Create inserts app. It rejects a second open application for the same
// student and year.
func (s *InMemory) Create(_ context.Context, app *models.Application) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[app.ID]; ok {
		return sentinel.ErrConflict
	}
	if !app.Status.IsTerminal() {
		for _, existing := range s.apps {
			if existing.StudentID == app.StudentID && existing.Year == app.Year && !existing.Status.IsTerminal() {
				return sentinel.ErrConflict
			}
		}
	}
	s.apps[app.ID] = app.Clone()
	return nil
}

func (s *InMemory) FindByID(_ context.Context, appID id.ApplicationID) (*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	app, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return app.Clone(), nil
}

// ListByStudent returns the student's applications, newest first.
func (s *InMemory) ListByStudent(_ context.Context, studentID id.UserID) ([]*models.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*models.Application
	for _, app := range s.apps {
		if app.StudentID == studentID {
			out = append(out, app.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].Year > out[j].Year
		}
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	return out, nil
}

// Queue returns one page of matching applications, oldest first, and the
// total number of matches.
func (s *InMemory) Queue(_ context.Context, filter models.QueueFilter) ([]*models.Application, int, error) {
	filter = filter.Normalize()
	s.mu.RLock()
	defer s.mu.RUnlock()
	var matched []*models.Application
	for _, app := range s.apps {
		if filter.Matches(app) {
			matched = append(matched, app)
		}
	}
	sort.SliceStable(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID.String() < matched[j].ID.String()
		}
		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})
	total := len(matched)
	if filter.Offset >= total {
		return []*models.Application{}, total, nil
	}
	end := min(filter.Offset+filter.Limit, total)
	page := make([]*models.Application, 0, end-filter.Offset)
	for _, app := range matched[filter.Offset:end] {
		page = append(page, app.Clone())
	}
	return page, total, nil
}

// Execute applies validate then mutate to a copy under the store lock, bumps
// the version and stores the copy. validate errors are returned unchanged.
func (s *InMemory) Execute(
	ctx context.Context,
	appID id.ApplicationID,
	validate func(*models.Application) error,
	mutate func(*models.Application),
) (*models.Application, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	current, ok := s.apps[appID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	working := current.Clone()
	if err := validate(working); err != nil {
		return nil, err
	}
	mutate(working)
	working.Version = current.Version + 1
	s.apps[appID] = working
	return working.Clone(), nil
}

func (s *InMemory) Delete(_ context.Context, appID id.ApplicationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[appID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.apps, appID)
	delete(s.disbursements, appID)
	return nil
}

func (s *InMemory) CreateDisbursement(_ context.Context, d *models.Disbursement) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.apps[d.ApplicationID]; !ok {
		return sentinel.ErrNotFound
	}
	c := *d
	s.disbursements[d.ApplicationID] = append(s.disbursements[d.ApplicationID], &c)
	return nil
}

func (s *InMemory) ListDisbursements(_ context.Context, appID id.ApplicationID) ([]*models.Disbursement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rows := s.disbursements[appID]
	out := make([]*models.Disbursement, 0, len(rows))
	for _, d := range rows {
		c := *d
		out = append(out, &c)
	}
	return out, nil
}
