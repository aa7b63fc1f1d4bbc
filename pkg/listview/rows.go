// Package listview flattens paging states into list rows and maps a
// visible row span back to the items a paging engine should track.
package listview

import "github.com/Sternrassler/pagewindow/pkg/paging"

// RowKind tags what a Row displays.
type RowKind int

const (
	// RowItem holds a paged item.
	RowItem RowKind = iota

	// RowLoader is a progress indicator at an edge or for the whole list.
	RowLoader

	// RowError offers a retry after a failed fetch.
	RowError

	// RowNoMoreContent tells the user the list has ended.
	RowNoMoreContent
)

func (k RowKind) String() string {
	switch k {
	case RowItem:
		return "item"
	case RowLoader:
		return "loader"
	case RowError:
		return "error"
	case RowNoMoreContent:
		return "no_more_content"
	default:
		return "unknown"
	}
}

// Row is one line of a rendered list.
type Row[D paging.Indexed] struct {
	Kind RowKind

	// Item is set for RowItem rows.
	Item D

	// Err is set for a RowError that replaces the whole list.
	Err error
}

// Labels holds the texts shown on non-item rows.
type Labels struct {
	Loading       string
	Retry         string
	NoMoreContent string
}

// DefaultLabels returns English labels.
func DefaultLabels() Labels {
	return Labels{
		Loading:       "Loading…",
		Retry:         "Failed to load. Press r to retry",
		NoMoreContent: "No more items",
	}
}

// Label returns the text for a non-item row, or "" for item rows.
func (r Row[D]) Label(labels Labels) string {
	switch r.Kind {
	case RowLoader:
		return labels.Loading
	case RowError:
		if r.Err != nil {
			return labels.Retry + " (" + r.Err.Error() + ")"
		}
		return labels.Retry
	case RowNoMoreContent:
		return labels.NoMoreContent
	default:
		return ""
	}
}

// EdgeRow returns the row shown for an edge marker. EdgeNone has no row.
func EdgeRow[D paging.Indexed](edge paging.Edge) (Row[D], bool) {
	switch edge {
	case paging.EdgeLoading:
		return Row[D]{Kind: RowLoader}, true
	case paging.EdgeError:
		return Row[D]{Kind: RowError}, true
	case paging.EdgeNoMoreContent:
		return Row[D]{Kind: RowNoMoreContent}, true
	default:
		return Row[D]{}, false
	}
}

// Rows flattens a state into display rows. A loading state is a single
// loader row, a failed first load a single error row, and content is its
// items framed by the edge rows that apply.
func Rows[D paging.Indexed, T any](state paging.State[D, T]) []Row[D] {
	switch state.Status {
	case paging.StatusLoading:
		return []Row[D]{{Kind: RowLoader}}
	case paging.StatusError:
		return []Row[D]{{Kind: RowError, Err: state.Err}}
	}

	rows := make([]Row[D], 0, len(state.Items)+2)
	if row, ok := EdgeRow[D](state.BeforeStart); ok {
		rows = append(rows, row)
	}
	for _, item := range state.Items {
		rows = append(rows, Row[D]{Kind: RowItem, Item: item})
	}
	if row, ok := EdgeRow[D](state.AfterEnd); ok {
		rows = append(rows, row)
	}
	return rows
}

// VisibleItems returns the first and last item rows within rows[firstRow]
// through rows[lastRow], skipping edge rows. lastRow is clamped to the
// list; ok is false when firstRow is out of range or the span holds no
// item.
func VisibleItems[D paging.Indexed](rows []Row[D], firstRow, lastRow int) (first, last D, ok bool) {
	if firstRow < 0 || firstRow >= len(rows) || lastRow < firstRow {
		return first, last, false
	}
	lastRow = min(lastRow, len(rows)-1)

	firstFound := false
	for i := firstRow; i <= lastRow; i++ {
		if rows[i].Kind == RowItem {
			first, firstFound = rows[i].Item, true
			break
		}
	}
	if !firstFound {
		return first, last, false
	}
	for i := lastRow; i >= firstRow; i-- {
		if rows[i].Kind == RowItem {
			last = rows[i].Item
			break
		}
	}
	return first, last, true
}

// Tracker is the part of a paging engine VisibleItems feeds.
type Tracker interface {
	SetVisibleItems(first, last paging.Indexed)
}

// Track reports the items visible in the row span to t. It does nothing
// when the span holds no item.
func Track[D paging.Indexed](t Tracker, rows []Row[D], firstRow, lastRow int) bool {
	first, last, ok := VisibleItems(rows, firstRow, lastRow)
	if !ok {
		return false
	}
	t.SetVisibleItems(first, last)
	return true
}
