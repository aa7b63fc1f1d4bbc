package paging

// ComputeRequestedBounds turns the first and last visible absolute indices
// into the window that should be held. The window is padded by tolerance
// on both sides and snapped to page boundaries, so scrolling inside a page
// yields the same value and causes no new request.
func ComputeRequestedBounds(firstVisible, lastVisible, tolerance, pageSize int64) Bounds {
	offset := max(floorDiv(firstVisible-tolerance, pageSize)*pageSize, 0)
	lastIndex := (floorDiv(lastVisible+tolerance+1, pageSize)+1)*pageSize - 1

	return Bounds{
		Offset: offset,
		Limit:  lastIndex - offset + 1,
	}
}

func floorDiv(a, b int64) int64 {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}
