package models

const (
	DefaultPageSize = 50
	MaxPageSize     = 200
)

// QueueFilter selects applications for a reviewer's work queue.
type QueueFilter struct {
	Stage    Stage
	Status   Status
	District string
	Year     int
	Limit    int
	Offset   int
}

// Normalize clamps pagination to sane bounds.
func (f QueueFilter) Normalize() QueueFilter {
	if f.Limit <= 0 {
		f.Limit = DefaultPageSize
	}
	if f.Limit > MaxPageSize {
		f.Limit = MaxPageSize
	}
	if f.Offset < 0 {
		f.Offset = 0
	}
	return f
}

// Matches reports whether app satisfies every set criterion.
func (f QueueFilter) Matches(app *Application) bool {
	if f.Stage != "" && app.Stage != f.Stage {
		return false
	}
	if f.Status != "" && app.Status != f.Status {
		return false
	}
	if f.District != "" && app.District != f.District {
		return false
	}
	if f.Year != 0 && app.Year != f.Year {
		return false
	}
	return true
}
