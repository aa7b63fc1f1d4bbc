package paging

import "reflect"

// Status tags the variant held by a State.
type Status int

const (
	// StatusLoading means no data is available yet, or a reload from an
	// empty or failed state is in progress.
	StatusLoading Status = iota

	// StatusError means the first load failed and nothing is held.
	StatusError

	// StatusContent means items are held and edge markers describe what
	// lies beyond them.
	StatusContent
)

func (s Status) String() string {
	switch s {
	case StatusLoading:
		return "loading"
	case StatusError:
		return "error"
	case StatusContent:
		return "content"
	default:
		return "unknown"
	}
}

// Edge describes what is shown before the first or after the last held item.
type Edge int

const (
	// EdgeNone means nothing is shown at the edge.
	EdgeNone Edge = iota

	// EdgeLoading means more items may exist and are (about to be) fetched.
	EdgeLoading

	// EdgeError means the last fetch toward this edge failed.
	EdgeError

	// EdgeNoMoreContent means the backend is exhausted in this direction.
	EdgeNoMoreContent
)

func (e Edge) String() string {
	switch e {
	case EdgeNone:
		return "none"
	case EdgeLoading:
		return "loading"
	case EdgeError:
		return "error"
	case EdgeNoMoreContent:
		return "no_more_content"
	default:
		return "unknown"
	}
}

// State is the value observed by consumers of an Engine. Only the fields
// belonging to Status are meaningful: Err for StatusError, the rest for
// StatusContent.
type State[D Indexed, T any] struct {
	Status      Status
	Err         error
	Items       []D
	BeforeStart Edge
	AfterEnd    Edge
	StaticData  T
}

// Loading returns the loading state.
func Loading[D Indexed, T any]() State[D, T] {
	return State[D, T]{Status: StatusLoading}
}

// Failed returns the error state for a first load that failed.
func Failed[D Indexed, T any](err error) State[D, T] {
	return State[D, T]{Status: StatusError, Err: err}
}

// Content returns a content state.
func Content[D Indexed, T any](items []D, beforeStart, afterEnd Edge, staticData T) State[D, T] {
	return State[D, T]{
		Status:      StatusContent,
		Items:       items,
		BeforeStart: beforeStart,
		AfterEnd:    afterEnd,
		StaticData:  staticData,
	}
}

// HeldItems returns the items of a content state and nil otherwise.
func (s State[D, T]) HeldItems() []D {
	if s.Status != StatusContent {
		return nil
	}
	return s.Items
}

// Equal compares two states by value. Loading states are always equal,
// errors compare by identity, items and static data compare deeply.
func (s State[D, T]) Equal(other State[D, T]) bool {
	if s.Status != other.Status {
		return false
	}
	switch s.Status {
	case StatusLoading:
		return true
	case StatusError:
		return sameError(s.Err, other.Err)
	default:
		return s.BeforeStart == other.BeforeStart &&
			s.AfterEnd == other.AfterEnd &&
			itemsEqual(s.Items, other.Items) &&
			reflect.DeepEqual(s.StaticData, other.StaticData)
	}
}

func itemsEqual[D Indexed](a, b []D) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !reflect.DeepEqual(a[i], b[i]) {
			return false
		}
	}
	return true
}

func sameError(a, b error) bool {
	if a == nil || b == nil {
		return a == b
	}
	if reflect.TypeOf(a) != reflect.TypeOf(b) {
		return false
	}
	if !reflect.TypeOf(a).Comparable() {
		return reflect.DeepEqual(a, b)
	}
	return a == b
}

// enteringFetch is the state published right before a fetch starts.
// Held content stays visible and failed edges show loading again.
func enteringFetch[D Indexed, T any](current State[D, T]) State[D, T] {
	if current.Status != StatusContent {
		return Loading[D, T]()
	}
	next := current
	next.BeforeStart = retryEdge(current.BeforeStart)
	next.AfterEnd = retryEdge(current.AfterEnd)
	return next
}

func retryEdge(e Edge) Edge {
	if e == EdgeError {
		return EdgeLoading
	}
	return e
}

// loadedContent builds the state after a successful fetch.
func loadedContent[D Indexed, T any](items []D, staticData T, lastPageLoaded bool, pageSize int64) State[D, T] {
	before, after := edges(items, lastPageLoaded, pageSize)
	return Content(items, before, after, staticData)
}

// failedFetch builds the state after a fetch for the given window failed.
// Without held items the result is an error state. Otherwise the held
// items stay and the edges the fetch was aimed at are marked failed.
func failedFetch[D Indexed, T any](current State[D, T], fetched Bounds, err error, lastPageLoaded bool, pageSize int64) State[D, T] {
	items := current.HeldItems()
	if len(items) == 0 {
		return Failed[D, T](err)
	}

	before, after := edges(items, lastPageLoaded, pageSize)
	// The edge the fetch was not aimed at keeps its marker. EdgeLoading
	// there means more items can be loaded, not that a fetch is running,
	// even though listview shows it as a loader row.
	next := current
	if fetched.Offset < items[0].AbsoluteIndex() {
		next.BeforeStart = failEdge(before)
	}
	if fetched.LastIndex() > items[len(items)-1].AbsoluteIndex() {
		next.AfterEnd = failEdge(after)
	}
	return next
}

func failEdge(e Edge) Edge {
	if e == EdgeLoading {
		return EdgeError
	}
	return e
}

// edges derives the edge markers for a merged item list.
func edges[D Indexed](items []D, lastPageLoaded bool, pageSize int64) (before, after Edge) {
	switch len(items) {
	case 0:
		return EdgeNone, EdgeNone
	case 1:
		if lastPageLoaded {
			return EdgeNone, EdgeNoMoreContent
		}
		return EdgeNone, EdgeLoading
	}

	if items[0].AbsoluteIndex() > 0 {
		before = EdgeLoading
	}
	switch {
	case !lastPageLoaded:
		after = EdgeLoading
	case int64(len(items)) > pageSize:
		after = EdgeNoMoreContent
	}
	return before, after
}
