package paging

// Reduce reconciles a requested window against the items already held and
// returns the part of it that still has to be fetched. The second result is
// false when nothing needs fetching.
//
// held must be sorted by absolute index. When it is empty the requested
// window is returned unchanged. Indices already held are never part of the
// result: a request starting inside or after the held block skips past it,
// and a request ending inside the held block (or past it when the backend
// is exhausted) is cut short before it.
func Reduce[D Indexed](held []D, requested Bounds, lastPageLoaded bool) (Bounds, bool) {
	if len(held) == 0 {
		return requested, !requested.IsEmpty()
	}

	firstHeld := held[0].AbsoluteIndex()
	lastHeld := held[len(held)-1].AbsoluteIndex()

	start := requested.Offset
	if requested.Offset >= firstHeld {
		start = max(requested.Offset, lastHeld+1)
	}

	end := requested.LastIndex()
	if end <= lastHeld || lastPageLoaded {
		end = min(end, firstHeld-1)
	}

	candidate := Bounds{Offset: start, Limit: end - start + 1}
	if candidate.IsEmpty() {
		return Bounds{}, false
	}
	return candidate, true
}
