package paging

import "fmt"

// Bounds is a window over absolute indices: [Offset, Offset+Limit).
type Bounds struct {
	Offset int64
	Limit  int64
}

// IsEmpty reports whether the window contains no indices.
func (b Bounds) IsEmpty() bool {
	return b.Limit <= 0
}

// LastIndex returns the last absolute index covered by the window.
// For an empty window it is smaller than Offset.
func (b Bounds) LastIndex() int64 {
	return b.Offset + b.Limit - 1
}

// End returns the exclusive end of the window.
func (b Bounds) End() int64 {
	return b.Offset + b.Limit
}

// String renders the window as offset/limit for logs.
func (b Bounds) String() string {
	return fmt.Sprintf("[%d+%d]", b.Offset, b.Limit)
}
