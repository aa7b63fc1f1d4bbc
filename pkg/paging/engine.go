package paging

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Sternrassler/pagewindow/pkg/logging"
)

type commandKind int

const (
	cmdWindow commandKind = iota
	cmdReset
	cmdFlush
)

type command struct {
	kind   commandKind
	bounds Bounds
	done   chan struct{}
}

type fetchResult[S any, T any] struct {
	generation uint64
	page       Page[S, T]
	err        error
	duration   time.Duration
}

type inflightFetch[D Indexed, S any, T any] struct {
	generation uint64
	bounds     Bounds
	before     State[D, T]
	cancel     context.CancelFunc
	result     chan fetchResult[S, T]
}

// Engine keeps a window of items from a paged DataSource and publishes the
// resulting State. Commands may be issued from any goroutine; all state
// changes happen on the goroutine running Run.
type Engine[S any, D Indexed, T any] struct {
	source  DataSource[S, T]
	mapper  Mapper[S, D]
	handler ErrorHandler
	config  Config
	logger  zerolog.Logger
	states  *publisher[D, T]
	id      string

	mu        sync.Mutex
	requested Bounds
	queue     []command
	wake      chan struct{}
	running   bool

	// Owned by the Run goroutine.
	current        State[D, T]
	lastPageLoaded bool
	generation     uint64
}

// New creates an engine. The first window is requested immediately and is
// fetched once Run starts.
func New[S any, D Indexed, T any](source DataSource[S, T], mapper Mapper[S, D], handler ErrorHandler, cfg Config) (*Engine[S, D, T], error) {
	if source == nil {
		return nil, fmt.Errorf("data source is required")
	}
	if mapper == nil {
		return nil, fmt.Errorf("mapper is required")
	}

	cfg = cfg.withDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}

	id := uuid.NewString()
	logger := logging.NewLogger("paging").With().
		Str("engine", cfg.Name).
		Str("engine_id", id).
		Logger()

	if handler == nil {
		handler = LogErrors(logger)
	}

	e := &Engine[S, D, T]{
		source:    source,
		mapper:    mapper,
		handler:   handler,
		config:    cfg,
		logger:    logger,
		states:    newPublisher(Loading[D, T]()),
		id:        id,
		requested: cfg.InitialBounds(),
		wake:      make(chan struct{}, 1),
		current:   Loading[D, T](),
	}
	e.enqueue(command{kind: cmdWindow, bounds: e.requested})

	return e, nil
}

// NewWithoutStaticData creates an engine for sources without static data.
func NewWithoutStaticData[S any, D Indexed](source DataSource[S, NoStaticData], mapper Mapper[S, D], handler ErrorHandler, cfg Config) (*Engine[S, D, NoStaticData], error) {
	return New[S, D, NoStaticData](source, mapper, handler, cfg)
}

// ID returns the engine's instance id as used in logs.
func (e *Engine[S, D, T]) ID() string {
	return e.id
}

// Config returns the engine's effective configuration.
func (e *Engine[S, D, T]) Config() Config {
	return e.config
}

// Observe streams states to the caller, starting with the latest one.
// No two consecutive values are equal. The channel closes when ctx is done.
func (e *Engine[S, D, T]) Observe(ctx context.Context) <-chan State[D, T] {
	return e.states.subscribe(ctx)
}

// Current returns the most recently published state.
func (e *Engine[S, D, T]) Current() State[D, T] {
	return e.states.current()
}

// RequestedBounds returns the window currently asked for.
func (e *Engine[S, D, T]) RequestedBounds() Bounds {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.requested
}

// SetVisibleRange reports the first and last visible absolute indices.
// A new window is requested only if the padded, page-aligned range differs
// from the current one.
func (e *Engine[S, D, T]) SetVisibleRange(firstVisible, lastVisible int64) {
	b := ComputeRequestedBounds(firstVisible, lastVisible, e.config.LoadTolerance, e.config.PageSize)

	e.mu.Lock()
	defer e.mu.Unlock()

	if b == e.requested {
		return
	}
	e.requested = b
	e.enqueueLocked(command{kind: cmdWindow, bounds: b})
}

// SetVisibleItems is SetVisibleRange for the first and last visible items.
func (e *Engine[S, D, T]) SetVisibleItems(first, last Indexed) {
	e.SetVisibleRange(first.AbsoluteIndex(), last.AbsoluteIndex())
}

// ResetAndReload drops everything held, goes back to the initial window
// and fetches it again.
func (e *Engine[S, D, T]) ResetAndReload() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.requested = e.config.InitialBounds()
	e.enqueueLocked(command{kind: cmdReset, bounds: e.requested})
}

// ReloadCurrentWindow reconciles the current window again, which retries
// a fetch that failed for it.
func (e *Engine[S, D, T]) ReloadCurrentWindow() {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.enqueueLocked(command{kind: cmdWindow, bounds: e.requested})
}

// Flush blocks until every command issued before it has been reconciled,
// meaning its fetch completed or was superseded. It needs Run to be active.
func (e *Engine[S, D, T]) Flush(ctx context.Context) error {
	done := make(chan struct{})
	e.enqueue(command{kind: cmdFlush, done: done})

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (e *Engine[S, D, T]) enqueue(cmd command) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.enqueueLocked(cmd)
}

func (e *Engine[S, D, T]) enqueueLocked(cmd command) {
	e.queue = append(e.queue, cmd)
	select {
	case e.wake <- struct{}{}:
	default:
	}
}

func (e *Engine[S, D, T]) next() (command, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if len(e.queue) == 0 {
		return command{}, false
	}
	cmd := e.queue[0]
	e.queue = e.queue[1:]
	return cmd, true
}

// windowPending reports whether a newer window is waiting in the queue.
func (e *Engine[S, D, T]) windowPending() bool {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, cmd := range e.queue {
		if cmd.kind != cmdFlush {
			return true
		}
	}
	return false
}

// Run processes commands until ctx is done or the ErrorHandler asks to
// stop. Only one Run may be active at a time.
func (e *Engine[S, D, T]) Run(ctx context.Context) error {
	e.mu.Lock()
	if e.running {
		e.mu.Unlock()
		return ErrAlreadyRunning
	}
	e.running = true
	e.mu.Unlock()

	defer func() {
		e.mu.Lock()
		e.running = false
		e.mu.Unlock()
	}()

	e.logger.Debug().
		Str("requested", e.RequestedBounds().String()).
		Msg("Paging engine started")

	var inflight *inflightFetch[D, S, T]
	defer func() {
		if inflight != nil {
			inflight.cancel()
		}
	}()

	for {
		if inflight != nil {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wake:
				if e.windowPending() {
					e.supersede(inflight)
					inflight = nil
				}
			case res := <-inflight.result:
				fetch := inflight
				inflight = nil
				fetch.cancel()
				if err := e.apply(fetch, res); err != nil {
					return err
				}
			}
			continue
		}

		cmd, ok := e.next()
		if !ok {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-e.wake:
			}
			continue
		}

		switch cmd.kind {
		case cmdFlush:
			close(cmd.done)
		case cmdReset:
			e.current = Loading[D, T]()
			e.lastPageLoaded = false
			heldItems.WithLabelValues(e.config.Name).Set(0)
			e.logger.Debug().Msg("Reset to initial window")
			inflight = e.reconcile(ctx, cmd.bounds)
		case cmdWindow:
			inflight = e.reconcile(ctx, cmd.bounds)
		}
	}
}

// reconcile handles one requested window. It returns the started fetch,
// or nil if nothing had to be fetched or a newer window is already queued.
func (e *Engine[S, D, T]) reconcile(ctx context.Context, requested Bounds) *inflightFetch[D, S, T] {
	e.generation++
	before := e.current

	fetch, ok := Reduce(before.HeldItems(), requested, e.lastPageLoaded)
	if !ok {
		reconciliationsTotal.WithLabelValues(e.config.Name, resultNoop).Inc()
		e.logger.Debug().
			Str("requested", requested.String()).
			Msg("Requested window already held")
		// Restores the held state if a superseded fetch left its
		// intermediate state published.
		e.states.publish(before)
		return nil
	}

	reconciliationsTotal.WithLabelValues(e.config.Name, resultFetch).Inc()
	e.states.publish(enteringFetch(before))

	if e.windowPending() {
		fetchesTotal.WithLabelValues(e.config.Name, outcomeSuperseded).Inc()
		e.logger.Debug().
			Str("fetch", fetch.String()).
			Msg("Window superseded before fetch started")
		return nil
	}

	e.logger.Debug().
		Str("requested", requested.String()).
		Str("fetch", fetch.String()).
		Uint64("generation", e.generation).
		Msg("Fetching page")

	fetchCtx, cancel := context.WithCancel(ctx)
	inflight := &inflightFetch[D, S, T]{
		generation: e.generation,
		bounds:     fetch,
		before:     before,
		cancel:     cancel,
		result:     make(chan fetchResult[S, T], 1),
	}

	go func(generation uint64) {
		start := time.Now()
		page, err := e.source.FetchPage(fetchCtx, fetch)
		inflight.result <- fetchResult[S, T]{
			generation: generation,
			page:       page,
			err:        err,
			duration:   time.Since(start),
		}
	}(e.generation)

	return inflight
}

func (e *Engine[S, D, T]) supersede(inflight *inflightFetch[D, S, T]) {
	inflight.cancel()
	fetchesTotal.WithLabelValues(e.config.Name, outcomeSuperseded).Inc()
	e.logger.Debug().
		Str("fetch", inflight.bounds.String()).
		Uint64("generation", inflight.generation).
		Msg("In-flight fetch superseded by newer window")
}

// apply merges a finished fetch into the held state and publishes it.
func (e *Engine[S, D, T]) apply(fetch *inflightFetch[D, S, T], res fetchResult[S, T]) error {
	if res.generation != e.generation {
		e.logger.Debug().
			Uint64("generation", res.generation).
			Uint64("current_generation", e.generation).
			Msg("Dropping stale fetch result")
		return nil
	}

	fetchDuration.WithLabelValues(e.config.Name).Observe(res.duration.Seconds())

	if res.err != nil {
		fetchesTotal.WithLabelValues(e.config.Name, outcomeError).Inc()
		e.logger.Warn().
			Err(res.err).
			Str("fetch", fetch.bounds.String()).
			Dur("duration", res.duration).
			Msg("Page fetch failed")

		if err := e.handler.OnFetchError(res.err); err != nil {
			return fmt.Errorf("%w: %w", ErrHandlerAborted, err)
		}

		e.current = failedFetch(fetch.before, fetch.bounds, res.err, e.lastPageLoaded, e.config.PageSize)
		e.states.publish(e.current)
		return nil
	}

	fetchesTotal.WithLabelValues(e.config.Name, outcomeSuccess).Inc()

	if isLastPage(res.page, fetch.bounds) {
		e.lastPageLoaded = true
	}

	fetched := make([]D, len(res.page.Items))
	for i, record := range res.page.Items {
		fetched[i] = e.mapper.MapRecord(record, fetch.bounds.Offset+int64(i))
	}
	items := mergeItems(fetch.before.HeldItems(), fetched)

	e.current = loadedContent(items, res.page.StaticData, e.lastPageLoaded, e.config.PageSize)
	heldItems.WithLabelValues(e.config.Name).Set(float64(len(items)))

	e.logger.Debug().
		Str("fetch", fetch.bounds.String()).
		Int("fetched", len(fetched)).
		Int("held", len(items)).
		Bool("last_page_loaded", e.lastPageLoaded).
		Dur("duration", res.duration).
		Msg("Page merged")

	e.states.publish(e.current)
	return nil
}

// isLastPage reports whether a page proves the backend has nothing past it.
func isLastPage[S any, T any](page Page[S, T], fetched Bounds) bool {
	if page.TotalItemCount == nil {
		return int64(len(page.Items)) < fetched.Limit
	}
	return *page.TotalItemCount <= fetched.End()
}

// mergeItems combines held and fetched items into one list sorted by
// absolute index without duplicates. Held items win over fetched ones.
func mergeItems[D Indexed](held, fetched []D) []D {
	merged := make([]D, 0, len(held)+len(fetched))
	merged = append(merged, held...)
	merged = append(merged, fetched...)

	slices.SortStableFunc(merged, func(a, b D) int {
		switch {
		case a.AbsoluteIndex() < b.AbsoluteIndex():
			return -1
		case a.AbsoluteIndex() > b.AbsoluteIndex():
			return 1
		default:
			return 0
		}
	})
	return slices.CompactFunc(merged, func(a, b D) bool {
		return a.AbsoluteIndex() == b.AbsoluteIndex()
	})
}

// IsHandlerAbort reports whether err came from an ErrorHandler stopping Run.
func IsHandlerAbort(err error) bool {
	return errors.Is(err, ErrHandlerAborted)
}
