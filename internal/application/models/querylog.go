package models

import (
	"encoding/json"
	"slices"
	"time"

	id "scholarship/pkg/domain"
)

// EntryKind distinguishes records in the query log.
type EntryKind string

const (
	EntryRaised    EntryKind = "raised"
	EntryResolved  EntryKind = "resolved"
	EntryRejection EntryKind = "rejection"
)

// QueryEntry is one immutable record in an application's query log.
// Raised and rejection entries open a query record; resolved entries refer
// back to a raised entry by QueryID.
type QueryEntry struct {
	Kind      EntryKind  `json:"kind"`
	QueryID   id.QueryID `json:"query_id"`
	At        time.Time  `json:"at"`
	ActorID   id.UserID  `json:"actor_id"`
	ActorRole id.Role    `json:"actor_role"`
	Field     string     `json:"field,omitempty"`
	Title     string     `json:"title,omitempty"`
	Message   string     `json:"message,omitempty"`
	Response  string     `json:"response,omitempty"`
}

// QueryLog is an append-only sequence of query entries. Every mutating method
// returns a new log; existing entries are never modified.
type QueryLog struct {
	entries []QueryEntry
}

func NewQueryLog(entries ...QueryEntry) QueryLog {
	return QueryLog{entries: slices.Clone(entries)}
}

func (l QueryLog) Entries() []QueryEntry {
	return slices.Clone(l.entries)
}

func (l QueryLog) Len() int {
	return len(l.entries)
}

// Append returns a log with e added at the end.
func (l QueryLog) Append(e QueryEntry) QueryLog {
	next := make([]QueryEntry, len(l.entries), len(l.entries)+1)
	copy(next, l.entries)
	return QueryLog{entries: append(next, e)}
}

type QueryKind string

const (
	QueryKindClarification QueryKind = "clarification"
	QueryKindRejection     QueryKind = "rejection"
)

type QueryStatus string

const (
	QueryStatusOpen     QueryStatus = "open"
	QueryStatusResolved QueryStatus = "resolved"
)

// Query is the projected view of a query and its resolution.
type Query struct {
	ID           id.QueryID
	RaisedBy     id.UserID
	RaisedByRole id.Role
	Kind         QueryKind
	Field        string
	Title        string
	Message      string
	Status       QueryStatus
	Response     string
	RespondedAt  *time.Time
	RaisedAt     time.Time
}

// Queries folds the log into one Query per raised or rejection entry, in the
// order they were raised.
func (l QueryLog) Queries() []Query {
	out := make([]Query, 0, len(l.entries))
	index := make(map[id.QueryID]int, len(l.entries))
	for _, e := range l.entries {
		switch e.Kind {
		case EntryRaised:
			index[e.QueryID] = len(out)
			out = append(out, Query{
				ID:           e.QueryID,
				RaisedBy:     e.ActorID,
				RaisedByRole: e.ActorRole,
				Kind:         QueryKindClarification,
				Field:        e.Field,
				Title:        e.Title,
				Message:      e.Message,
				Status:       QueryStatusOpen,
				RaisedAt:     e.At,
			})
		case EntryRejection:
			at := e.At
			out = append(out, Query{
				ID:           e.QueryID,
				RaisedBy:     e.ActorID,
				RaisedByRole: e.ActorRole,
				Kind:         QueryKindRejection,
				Title:        e.Title,
				Message:      e.Message,
				Status:       QueryStatusResolved,
				Response:     e.Response,
				RespondedAt:  &at,
				RaisedAt:     e.At,
			})
		case EntryResolved:
			i, ok := index[e.QueryID]
			if !ok || out[i].Status == QueryStatusResolved {
				continue
			}
			at := e.At
			out[i].Status = QueryStatusResolved
			out[i].Response = e.Response
			out[i].RespondedAt = &at
		}
	}
	return out
}

// OpenCount returns the number of unresolved clarification queries.
func (l QueryLog) OpenCount() int {
	n := 0
	for _, q := range l.Queries() {
		if q.Status == QueryStatusOpen {
			n++
		}
	}
	return n
}

// ResolveAll appends one resolution entry per open query.
func (l QueryLog) ResolveAll(actor id.Actor, response string, now time.Time) QueryLog {
	next := l
	for _, q := range l.Queries() {
		if q.Status != QueryStatusOpen {
			continue
		}
		next = next.Append(QueryEntry{
			Kind:      EntryResolved,
			QueryID:   q.ID,
			At:        now,
			ActorID:   actor.ID,
			ActorRole: actor.Role,
			Response:  response,
		})
	}
	return next
}

func (l QueryLog) MarshalJSON() ([]byte, error) {
	if l.entries == nil {
		return []byte("[]"), nil
	}
	return json.Marshal(l.entries)
}

func (l *QueryLog) UnmarshalJSON(b []byte) error {
	var entries []QueryEntry
	if err := json.Unmarshal(b, &entries); err != nil {
		return err
	}
	l.entries = entries
	return nil
}
