package account

import (
	"sync"

	"github.com/go-faster/errors"
)

// ErrStaleSelection is returned when a selected id is not present in the
// latest snapshot. The stale id is treated as "no selection": the caller must
// re-pick rather than silently proceed with data that no longer exists.
var ErrStaleSelection = errors.New("selection not in latest snapshot")

// Keyed is any record addressable by a stable id.
type Keyed interface {
	Key() string
}

// Selector tracks the "currently selected" choice over a live, read-only
// projection of account records. Each applied snapshot fully replaces the
// prior projection.
//
// Selection rules:
//   - When nothing has ever been selected, the first item of the snapshot is
//     auto-selected as a convenience default.
//   - An explicit selection survives snapshots as long as its id is present.
//   - When the selected id vanishes from a snapshot, the selection is
//     cleared and never re-picked automatically, no matter how many
//     snapshots follow: the user chose a record that no longer exists and
//     must choose again. The convenience auto-pick applies only before the
//     first selection of the selector's lifetime.
type Selector[T Keyed] struct {
	mu       sync.Mutex
	items    []T
	selected string
	picked   bool

	// everPicked stays true once any selection has been made, so a stale
	// clear cannot re-arm the auto-pick.
	everPicked bool
}

// NewSelector returns a Selector with an empty projection.
func NewSelector[T Keyed]() *Selector[T] {
	return &Selector[T]{}
}

// Apply replaces the projection with snapshot and reconciles the selection.
func (s *Selector[T]) Apply(snapshot []T) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.items = make([]T, len(snapshot))
	copy(s.items, snapshot)

	if s.picked {
		for _, item := range s.items {
			if item.Key() == s.selected {
				return
			}
		}
		// Stale: the chosen record is gone. Force a re-pick.
		s.picked = false
		s.selected = ""
		return
	}

	if !s.everPicked && len(s.items) > 0 {
		s.selected = s.items[0].Key()
		s.picked = true
		s.everPicked = true
	}
}

// Select sets the current selection. The id must be present in the latest
// snapshot; otherwise ErrStaleSelection is returned and the selection is
// unchanged.
func (s *Selector[T]) Select(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.Key() == id {
			s.selected = id
			s.picked = true
			s.everPicked = true
			return nil
		}
	}
	return errors.Wrapf(ErrStaleSelection, "id %s", id)
}

// Selected returns the currently selected record, if any.
func (s *Selector[T]) Selected() (T, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var zero T
	if !s.picked {
		return zero, false
	}
	for _, item := range s.items {
		if item.Key() == s.selected {
			return item, true
		}
	}
	return zero, false
}

// Items returns a copy of the latest projection.
func (s *Selector[T]) Items() []T {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]T, len(s.items))
	copy(out, s.items)
	return out
}
