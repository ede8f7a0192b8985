package state

import (
	"slices"
	"time"
)

// Status of a server-fetched collection
type Status int

const (
	StatusIdle Status = iota
	StatusLoading
	StatusReady
	StatusStale
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusReady:
		return "ready"
	case StatusStale:
		return "stale"
	case StatusFailed:
		return "failed"
	default:
		return "idle"
	}
}

// Keyed is implemented by collection items.
type Keyed interface {
	ItemKey() string
}

// Collection mirrors a list of items owned by some backing store.
// Items keep the order they were loaded or inserted in.
type Collection[T Keyed] struct {
	Items    []T
	Status   Status
	Err      error
	LoadedAt time.Time
}

// Find returns the item with key.
func (c Collection[T]) Find(key string) (T, bool) {
	i := c.index(key)
	if i < 0 {
		var zero T
		return zero, false
	}
	return c.Items[i], true
}

func (c Collection[T]) index(key string) int {
	return slices.IndexFunc(c.Items, func(item T) bool { return item.ItemKey() == key })
}

// Action is a collection transition. The concrete types below are the only
// implementations.
type Action interface {
	collectionAction()
}

// Loading marks a fetch in flight. Items stay visible.
type Loading struct{}

// Loaded replaces the items with a complete fetch result.
type Loaded[T Keyed] struct {
	Items []T
	At    time.Time
}

// Upserted replaces the item with the same key or appends it.
type Upserted[T Keyed] struct {
	Item T
}

// Removed drops the item with Key.
type Removed struct {
	Key string
}

// Invalidated marks the items as needing a refetch.
type Invalidated struct{}

// Failed records a fetch error. Items from the last load stay visible.
type Failed struct {
	Err error
}

func (Loading) collectionAction()     {}
func (Loaded[T]) collectionAction()   {}
func (Upserted[T]) collectionAction() {}
func (Removed) collectionAction()     {}
func (Invalidated) collectionAction() {}
func (Failed) collectionAction()      {}

// ReduceCollection is the transition function for Collection. It never
// mutates the input collection's item slice.
func ReduceCollection[T Keyed](c Collection[T], action Action) Collection[T] {
	switch a := action.(type) {
	case Loading:
		c.Status = StatusLoading
		c.Err = nil
	case Loaded[T]:
		c.Items = slices.Clone(a.Items)
		c.Status = StatusReady
		c.Err = nil
		c.LoadedAt = a.At
	case Upserted[T]:
		items := slices.Clone(c.Items)
		if i := c.index(a.Item.ItemKey()); i >= 0 {
			items[i] = a.Item
		} else {
			items = append(items, a.Item)
		}
		c.Items = items
	case Removed:
		if i := c.index(a.Key); i >= 0 {
			c.Items = slices.Delete(slices.Clone(c.Items), i, i+1)
		}
	case Invalidated:
		if c.Status == StatusReady {
			c.Status = StatusStale
		}
	case Failed:
		c.Status = StatusFailed
		c.Err = a.Err
	}
	return c
}

// NewCollectionStore creates a store over an empty collection.
func NewCollectionStore[T Keyed]() *Store[Collection[T], Action] {
	return NewStore(Collection[T]{}, ReduceCollection[T])
}
