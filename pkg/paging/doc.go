// Package paging keeps a window of a large, indexable sequence loaded from
// a paged backend and publishes a single coherent state for it.
//
// A consumer reports which absolute indices are visible. The engine pads
// and page-aligns that range into a requested window, works out which part
// of the window is not held yet, fetches exactly that part and merges the
// result into the held items. Consumers observe a stream of State values:
//
//	Loading -> Content(items, beforeStart, afterEnd, staticData)
//	        -> Error(cause)
//
// The edges of a Content state tell a list view what to render around the
// held items: a loader while more data may exist, a retry affordance when
// the last fetch toward that edge failed, or a no-more-content label.
//
// Basic usage:
//
//	engine, err := paging.New(source, mapper, nil, paging.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	go engine.Run(ctx)
//
//	for state := range engine.Observe(ctx) {
//		render(state)
//	}
//
//	// from the UI side
//	engine.SetVisibleRange(firstVisible, lastVisible)
//	engine.ReloadCurrentWindow() // retry after an error edge
//	engine.ResetAndReload()      // pull-to-refresh
//
// Concurrency: commands may be called from any goroutine. Requested windows
// are applied in order; a newer window cancels the fetch of an older one
// and the older result is never merged. Only the goroutine running Run
// touches the held items.
package paging
