package domain

import "time"

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 200
)

// ListFilter narrows the read-side collections. Empty fields do not filter.
type ListFilter struct {
	From    *time.Time `json:"from,omitempty"`
	To      *time.Time `json:"to,omitempty"`
	ActorID string     `json:"actor_id,omitempty"`
	State   string     `json:"state,omitempty"`
	Page    int        `json:"page"`
	Limit   int        `json:"limit"`
}

func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit < 1 {
		f.Limit = DefaultPageLimit
	}
	if f.Limit > MaxPageLimit {
		f.Limit = MaxPageLimit
	}
	return f
}

func (f ListFilter) Offset() int {
	n := f.Normalize()
	return (n.Page - 1) * n.Limit
}

// Matches applies the date range (From inclusive, To exclusive), actor and state.
func (f ListFilter) Matches(at time.Time, actorID string, state string) bool {
	if f.From != nil && at.Before(*f.From) {
		return false
	}
	if f.To != nil && !at.Before(*f.To) {
		return false
	}
	if f.ActorID != "" && f.ActorID != actorID {
		return false
	}
	if f.State != "" && f.State != state {
		return false
	}
	return true
}

type MovementFilter struct {
	ListFilter
	ProductID string       `json:"product_id,omitempty"`
	Kind      MovementKind `json:"kind,omitempty"`
}

type Page[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
	Page  int `json:"page"`
	Limit int `json:"limit"`
}

// Paginate slices an already filtered and ordered collection.
func Paginate[T any](items []T, f ListFilter) Page[T] {
	f = f.Normalize()
	start := f.Offset()
	if start > len(items) {
		start = len(items)
	}
	end := start + f.Limit
	if end > len(items) {
		end = len(items)
	}
	out := make([]T, end-start)
	copy(out, items[start:end])
	return Page[T]{Items: out, Total: len(items), Page: f.Page, Limit: f.Limit}
}
