package paging

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type sourceItem struct {
	ID string
}

type pagedItem struct {
	ID    string
	Index int64
}

func (p pagedItem) AbsoluteIndex() int64 { return p.Index }

var itemMapper = MapperFunc[sourceItem, pagedItem](func(s sourceItem, absoluteIndex int64) pagedItem {
	return pagedItem{ID: s.ID, Index: absoluteIndex}
})

func items(from, to int64) []pagedItem {
	out := make([]pagedItem, 0, to-from)
	for i := from; i < to; i++ {
		out = append(out, pagedItem{ID: fmt.Sprint(i), Index: i})
	}
	return out
}

func content(from, to int64, before, after Edge) State[pagedItem, NoStaticData] {
	return Content(items(from, to), before, after, NoStaticData{})
}

func loading() State[pagedItem, NoStaticData] {
	return Loading[pagedItem, NoStaticData]()
}

// fakeBackend serves itemCount records and records every request.
type fakeBackend struct {
	itemCount int64
	withTotal bool
	fail      func(call int, b Bounds) error

	mu       sync.Mutex
	requests []Bounds
}

func (f *fakeBackend) FetchPage(ctx context.Context, b Bounds) (Page[sourceItem, NoStaticData], error) {
	f.mu.Lock()
	f.requests = append(f.requests, b)
	call := len(f.requests)
	f.mu.Unlock()

	if f.fail != nil {
		if err := f.fail(call, b); err != nil {
			return Page[sourceItem, NoStaticData]{}, err
		}
	}

	var records []sourceItem
	for i := b.Offset; i < b.End() && i < f.itemCount; i++ {
		records = append(records, sourceItem{ID: fmt.Sprint(i)})
	}
	page := Page[sourceItem, NoStaticData]{Items: records}
	if f.withTotal {
		page.TotalItemCount = Total(f.itemCount)
	}
	return page, nil
}

func (f *fakeBackend) Requests() []Bounds {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Bounds(nil), f.requests...)
}

// collector records every state observed on an engine stream.
type collector struct {
	mu     sync.Mutex
	states []State[pagedItem, NoStaticData]
}

func (c *collector) snapshot() []State[pagedItem, NoStaticData] {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]State[pagedItem, NoStaticData](nil), c.states...)
}

func describe(states []State[pagedItem, NoStaticData]) string {
	parts := make([]string, 0, len(states))
	for _, s := range states {
		switch s.Status {
		case StatusContent:
			if len(s.Items) == 0 {
				parts = append(parts, fmt.Sprintf("Content([], %v, %v)", s.BeforeStart, s.AfterEnd))
				continue
			}
			parts = append(parts, fmt.Sprintf("Content(%d..%d, %v, %v)",
				s.Items[0].Index, s.Items[len(s.Items)-1].Index, s.BeforeStart, s.AfterEnd))
		case StatusError:
			parts = append(parts, fmt.Sprintf("Error(%v)", s.Err))
		default:
			parts = append(parts, "Loading")
		}
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func statesEqual(a, b []State[pagedItem, NoStaticData]) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if !a[i].Equal(b[i]) {
			return false
		}
	}
	return true
}

func (c *collector) requireStates(t *testing.T, want ...State[pagedItem, NoStaticData]) {
	t.Helper()
	ok := assert.Eventually(t, func() bool {
		return statesEqual(c.snapshot(), want)
	}, 2*time.Second, 5*time.Millisecond)
	if !ok {
		t.Fatalf("stream = %s\nwant     %s", describe(c.snapshot()), describe(want))
	}
}

type harness struct {
	engine  *Engine[sourceItem, pagedItem, NoStaticData]
	states  *collector
	runErr  chan error
	ctx     context.Context
	stopRun context.CancelFunc
}

func startEngine(t *testing.T, source DataSource[sourceItem, NoStaticData], handler ErrorHandler, cfg Config) *harness {
	t.Helper()

	engine, err := NewWithoutStaticData[sourceItem, pagedItem](source, itemMapper, handler, cfg)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	h := &harness{
		engine:  engine,
		states:  &collector{},
		runErr:  make(chan error, 1),
		ctx:     ctx,
		stopRun: cancel,
	}

	stream := engine.Observe(ctx)
	go func() {
		for s := range stream {
			h.states.mu.Lock()
			h.states.states = append(h.states.states, s)
			h.states.mu.Unlock()
		}
	}()
	go func() {
		h.runErr <- engine.Run(ctx)
	}()

	return h
}

func (h *harness) flush(t *testing.T) {
	t.Helper()
	ctx, cancel := context.WithTimeout(h.ctx, 2*time.Second)
	defer cancel()
	require.NoError(t, h.engine.Flush(ctx))
}

func pagingConfig(pageSize, initialOffset, tolerance int64) Config {
	cfg := DefaultConfig()
	cfg.Name = "test"
	cfg.PageSize = pageSize
	cfg.InitialOffset = initialOffset
	cfg.InitialPageCount = 1
	cfg.LoadTolerance = tolerance
	return cfg
}

func failOnError(t *testing.T) ErrorHandler {
	return ErrorHandlerFunc(func(err error) error {
		t.Errorf("unexpected fetch error: %v", err)
		return err
	})
}

func TestEngine_ScrollDown(t *testing.T) {
	tests := []struct {
		name         string
		itemCount    int64
		withTotal    bool
		tolerance    int64
		wantStates   []State[pagedItem, NoStaticData]
		wantRequests []Bounds
	}{
		{
			name:      "three pages",
			itemCount: 51,
			withTotal: true,
			tolerance: 3,
			wantStates: []State[pagedItem, NoStaticData]{
				loading(),
				content(0, 25, EdgeNone, EdgeLoading),
				content(0, 50, EdgeNone, EdgeLoading),
				content(0, 51, EdgeNone, EdgeNoMoreContent),
			},
			wantRequests: []Bounds{{0, 25}, {25, 25}, {50, 25}},
		},
		{
			name:      "exactly three pages",
			itemCount: 75,
			withTotal: true,
			tolerance: 3,
			wantStates: []State[pagedItem, NoStaticData]{
				loading(),
				content(0, 25, EdgeNone, EdgeLoading),
				content(0, 50, EdgeNone, EdgeLoading),
				content(0, 75, EdgeNone, EdgeNoMoreContent),
			},
			wantRequests: []Bounds{{0, 25}, {25, 25}, {50, 25}},
		},
		{
			name:      "zero tolerance",
			itemCount: 51,
			withTotal: true,
			tolerance: 0,
			wantStates: []State[pagedItem, NoStaticData]{
				loading(),
				content(0, 25, EdgeNone, EdgeLoading),
				content(0, 50, EdgeNone, EdgeLoading),
				content(0, 51, EdgeNone, EdgeNoMoreContent),
			},
			wantRequests: []Bounds{{0, 25}, {25, 25}, {50, 25}},
		},
		{
			name:      "zero tolerance exactly three pages",
			itemCount: 75,
			withTotal: true,
			tolerance: 0,
			wantStates: []State[pagedItem, NoStaticData]{
				loading(),
				content(0, 25, EdgeNone, EdgeLoading),
				content(0, 50, EdgeNone, EdgeLoading),
				content(0, 75, EdgeNone, EdgeNoMoreContent),
			},
			wantRequests: []Bounds{{0, 25}, {25, 25}, {50, 25}},
		},
		{
			name:      "without total",
			itemCount: 55,
			withTotal: false,
			tolerance: 0,
			wantStates: []State[pagedItem, NoStaticData]{
				loading(),
				content(0, 25, EdgeNone, EdgeLoading),
				content(0, 50, EdgeNone, EdgeLoading),
				content(0, 55, EdgeNone, EdgeNoMoreContent),
			},
			wantRequests: []Bounds{{0, 25}, {25, 25}, {50, 25}},
		},
		{
			name:      "without total exactly three pages",
			itemCount: 75,
			withTotal: false,
			tolerance: 0,
			wantStates: []State[pagedItem, NoStaticData]{
				loading(),
				content(0, 25, EdgeNone, EdgeLoading),
				content(0, 50, EdgeNone, EdgeLoading),
				content(0, 75, EdgeNone, EdgeLoading),
				content(0, 75, EdgeNone, EdgeNoMoreContent),
			},
			wantRequests: []Bounds{{0, 25}, {25, 25}, {50, 25}, {75, 25}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{itemCount: tt.itemCount, withTotal: tt.withTotal}
			h := startEngine(t, backend, failOnError(t), pagingConfig(25, 0, tt.tolerance))
			h.flush(t)

			for i := int64(0); i < tt.itemCount; i++ {
				h.engine.SetVisibleRange(0, i)
				h.flush(t)
			}

			h.states.requireStates(t, tt.wantStates...)
			assert.Equal(t, tt.wantRequests, backend.Requests())
		})
	}
}

func TestEngine_SinglePage(t *testing.T) {
	backend := &fakeBackend{itemCount: 15, withTotal: true}
	h := startEngine(t, backend, failOnError(t), DefaultConfig())
	h.flush(t)

	for i := int64(0); i < 15; i++ {
		h.engine.SetVisibleRange(0, i)
		h.flush(t)
	}

	h.states.requireStates(t,
		loading(),
		content(0, 15, EdgeNone, EdgeNone),
	)
	assert.Equal(t, []Bounds{{0, 25}}, backend.Requests())
}

func TestEngine_ScrollUp(t *testing.T) {
	backend := &fakeBackend{itemCount: 101, withTotal: true}
	h := startEngine(t, backend, failOnError(t), pagingConfig(25, 75, 3))
	h.flush(t)

	for i := int64(75); i >= 0; i-- {
		h.engine.SetVisibleRange(i, 90)
		h.flush(t)
	}

	h.states.requireStates(t,
		loading(),
		content(75, 100, EdgeLoading, EdgeLoading),
		content(50, 100, EdgeLoading, EdgeLoading),
		content(25, 100, EdgeLoading, EdgeLoading),
		content(0, 100, EdgeNone, EdgeLoading),
	)
	assert.Equal(t, []Bounds{{75, 25}, {50, 25}, {25, 25}, {0, 25}}, backend.Requests())
}

func TestEngine_LoadingFromStartAndEndAtOnce(t *testing.T) {
	backend := &fakeBackend{itemCount: 101, withTotal: true}
	h := startEngine(t, backend, failOnError(t), pagingConfig(25, 50, 3))
	h.flush(t)

	h.engine.SetVisibleRange(50, 75)
	h.flush(t)

	h.states.requireStates(t,
		loading(),
		content(50, 75, EdgeLoading, EdgeLoading),
		content(25, 100, EdgeLoading, EdgeLoading),
	)
	assert.Equal(t, []Bounds{{50, 25}, {25, 75}}, backend.Requests())
}

func TestEngine_InitialErrorThenRetry(t *testing.T) {
	cause := errors.New("backend unavailable")
	backend := &fakeBackend{
		itemCount: 35,
		withTotal: true,
		fail: func(call int, _ Bounds) error {
			if call == 1 {
				return cause
			}
			return nil
		},
	}

	var reported []error
	handler := ErrorHandlerFunc(func(err error) error {
		reported = append(reported, err)
		if !errors.Is(err, cause) {
			return err
		}
		return nil
	})

	h := startEngine(t, backend, handler, DefaultConfig())
	h.flush(t)
	h.states.requireStates(t, loading(), Failed[pagedItem, NoStaticData](cause))

	h.engine.ReloadCurrentWindow()
	h.flush(t)
	h.engine.SetVisibleRange(0, 25)
	h.flush(t)

	h.states.requireStates(t,
		loading(),
		Failed[pagedItem, NoStaticData](cause),
		loading(),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 35, EdgeNone, EdgeNoMoreContent),
	)
	assert.Equal(t, []Bounds{{0, 25}, {0, 25}, {25, 25}}, backend.Requests())
	assert.Equal(t, []error{cause}, reported)
}

func TestEngine_ErrorWhileScrolling(t *testing.T) {
	cause := errors.New("page failed")
	failed := false
	backend := &fakeBackend{
		itemCount: 35,
		withTotal: true,
		fail: func(_ int, b Bounds) error {
			if b.Offset > 0 && !failed {
				failed = true
				return cause
			}
			return nil
		},
	}

	h := startEngine(t, backend, ErrorHandlerFunc(func(error) error { return nil }), DefaultConfig())
	h.flush(t)

	h.engine.SetVisibleRange(0, 25)
	h.flush(t)
	h.states.requireStates(t,
		loading(),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 25, EdgeNone, EdgeError),
	)

	h.engine.ReloadCurrentWindow()
	h.flush(t)

	h.states.requireStates(t,
		loading(),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 25, EdgeNone, EdgeError),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 35, EdgeNone, EdgeNoMoreContent),
	)
	assert.Equal(t, []Bounds{{0, 25}, {25, 25}, {25, 25}}, backend.Requests())
}

// pageStamp is static data that differs on every fetch.
type pageStamp struct {
	Seq  int
	Tags []string
}

type stampedBackend struct {
	itemCount int64

	mu      sync.Mutex
	calls   int
	failing bool
}

func (s *stampedBackend) FetchPage(ctx context.Context, b Bounds) (Page[sourceItem, pageStamp], error) {
	s.mu.Lock()
	s.calls++
	call, failing := s.calls, s.failing
	s.mu.Unlock()

	if failing {
		return Page[sourceItem, pageStamp]{}, errors.New("stamp service down")
	}

	var records []sourceItem
	for i := b.Offset; i < b.End() && i < s.itemCount; i++ {
		records = append(records, sourceItem{ID: fmt.Sprint(i)})
	}
	return Page[sourceItem, pageStamp]{
		Items:          records,
		TotalItemCount: Total(s.itemCount),
		StaticData:     pageStamp{Seq: call, Tags: []string{fmt.Sprintf("fetch-%d", call)}},
	}, nil
}

func TestEngine_StaticDataReplacedPerFetch(t *testing.T) {
	backend := &stampedBackend{itemCount: 100}
	engine, err := New[sourceItem, pagedItem, pageStamp](backend, itemMapper, ErrorHandlerFunc(func(error) error { return nil }), pagingConfig(25, 0, 0))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)

	var (
		mu       sync.Mutex
		observed []pageStamp
	)
	stream := engine.Observe(ctx)
	go func() {
		for s := range stream {
			if s.Status == StatusContent {
				mu.Lock()
				observed = append(observed, s.StaticData)
				mu.Unlock()
			}
		}
	}()
	go func() { _ = engine.Run(ctx) }()

	flush := func() {
		t.Helper()
		flushCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
		defer cancel()
		require.NoError(t, engine.Flush(flushCtx))
	}

	first := pageStamp{Seq: 1, Tags: []string{"fetch-1"}}
	second := pageStamp{Seq: 2, Tags: []string{"fetch-2"}}

	flush()
	assert.Equal(t, first, engine.Current().StaticData)

	engine.SetVisibleRange(0, 30)
	flush()
	current := engine.Current()
	require.Len(t, current.Items, 50)
	assert.Equal(t, second, current.StaticData)

	backend.mu.Lock()
	backend.failing = true
	backend.mu.Unlock()

	engine.SetVisibleRange(0, 60)
	flush()
	current = engine.Current()
	require.Equal(t, StatusContent, current.Status)
	assert.Equal(t, EdgeError, current.AfterEnd)
	assert.Len(t, current.Items, 50)
	assert.Equal(t, second, current.StaticData)

	mu.Lock()
	defer mu.Unlock()
	for _, stamp := range observed {
		if !assert.Len(t, stamp.Tags, 1, "static data must not accumulate across fetches") {
			continue
		}
		assert.Contains(t, []pageStamp{first, second}, stamp)
	}
}

func TestEngine_SetVisibleRangeIsIdempotent(t *testing.T) {
	backend := &fakeBackend{itemCount: 500, withTotal: true}
	h := startEngine(t, backend, failOnError(t), DefaultConfig())
	h.flush(t)

	h.engine.SetVisibleRange(10, 30)
	h.flush(t)
	requested := h.engine.RequestedBounds()

	h.engine.SetVisibleRange(11, 31)
	h.engine.SetVisibleRange(10, 30)
	h.flush(t)

	assert.Equal(t, requested, h.engine.RequestedBounds())
	assert.Equal(t, []Bounds{{0, 25}, {25, 25}}, backend.Requests())
}

func TestEngine_ResetAndReload(t *testing.T) {
	backend := &fakeBackend{itemCount: 51, withTotal: true}
	h := startEngine(t, backend, failOnError(t), DefaultConfig())
	h.flush(t)

	h.engine.SetVisibleRange(0, 50)
	h.flush(t)
	h.engine.SetVisibleRange(0, 25)
	h.flush(t)
	require.Equal(t, StatusContent, h.engine.Current().Status)
	require.Len(t, h.engine.Current().Items, 51)

	h.engine.ResetAndReload()
	h.flush(t)
	assert.Equal(t, Bounds{Offset: 0, Limit: 25}, h.engine.RequestedBounds())

	// Exhaustion was cleared, so scrolling fetches forward again.
	h.engine.SetVisibleRange(0, 21)
	h.flush(t)

	h.states.requireStates(t,
		loading(),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 51, EdgeNone, EdgeNoMoreContent),
		loading(),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 50, EdgeNone, EdgeLoading),
	)
	assert.Equal(t, []Bounds{{0, 25}, {25, 50}, {0, 25}, {25, 25}}, backend.Requests())
}

func TestEngine_ExhaustionIsMonotonic(t *testing.T) {
	backend := &fakeBackend{itemCount: 100, withTotal: true}
	h := startEngine(t, backend, failOnError(t), pagingConfig(25, 75, 3))
	h.flush(t)

	h.engine.SetVisibleRange(60, 90)
	h.flush(t)
	h.engine.SetVisibleRange(60, 99)
	h.flush(t)

	h.states.requireStates(t,
		loading(),
		content(75, 100, EdgeLoading, EdgeNone),
		content(50, 100, EdgeLoading, EdgeNoMoreContent),
	)
	assert.Equal(t, []Bounds{{75, 25}, {50, 25}}, backend.Requests())
}

func TestEngine_MergedItemsStaySortedAndUnique(t *testing.T) {
	backend := &fakeBackend{itemCount: 1000, withTotal: false}
	h := startEngine(t, backend, failOnError(t), pagingConfig(10, 500, 2))
	h.flush(t)

	visible := [][2]int64{{495, 510}, {480, 530}, {300, 320}, {520, 560}, {470, 480}}
	for _, v := range visible {
		h.engine.SetVisibleRange(v[0], v[1])
		h.flush(t)
	}

	got := h.engine.Current()
	require.Equal(t, StatusContent, got.Status)
	for i := 1; i < len(got.Items); i++ {
		require.Greater(t, got.Items[i].Index, got.Items[i-1].Index, "items must be strictly increasing")
	}
}

// blockingBackend hands every call to the test and waits for its answer,
// ignoring cancellation like a backend that cannot be interrupted.
type blockingBackend struct {
	calls chan *blockingCall
}

type blockingCall struct {
	bounds Bounds
	ctx    context.Context
	reply  chan blockingReply
}

type blockingReply struct {
	page Page[sourceItem, NoStaticData]
	err  error
}

func (b *blockingBackend) FetchPage(ctx context.Context, bounds Bounds) (Page[sourceItem, NoStaticData], error) {
	call := &blockingCall{bounds: bounds, ctx: ctx, reply: make(chan blockingReply)}
	b.calls <- call
	r := <-call.reply
	return r.page, r.err
}

func (b *blockingBackend) next(t *testing.T) *blockingCall {
	t.Helper()
	select {
	case call := <-b.calls:
		return call
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for fetch")
	}
	return nil
}

func (c *blockingCall) respond(prefix string) {
	records := make([]sourceItem, 0, c.bounds.Limit)
	for i := c.bounds.Offset; i < c.bounds.End(); i++ {
		records = append(records, sourceItem{ID: fmt.Sprintf("%s%d", prefix, i)})
	}
	c.reply <- blockingReply{page: Page[sourceItem, NoStaticData]{Items: records, TotalItemCount: Total(1000)}}
}

func (c *blockingCall) fail(err error) {
	c.reply <- blockingReply{err: err}
}

func TestEngine_NewerWindowSupersedesInflightFetch(t *testing.T) {
	backend := &blockingBackend{calls: make(chan *blockingCall)}
	h := startEngine(t, backend, failOnError(t), DefaultConfig())

	first := backend.next(t)
	require.Equal(t, Bounds{Offset: 0, Limit: 25}, first.bounds)

	h.engine.SetVisibleRange(0, 30)

	second := backend.next(t)
	require.Equal(t, Bounds{Offset: 0, Limit: 50}, second.bounds)

	select {
	case <-first.ctx.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("superseded fetch was not cancelled")
	}

	second.respond("")
	h.flush(t)

	// The first backend call completes late; its result must be dropped.
	first.respond("stale-")
	h.engine.ReloadCurrentWindow()
	h.flush(t)

	current := h.engine.Current()
	require.Equal(t, StatusContent, current.Status)
	require.Len(t, current.Items, 50)
	for _, s := range h.states.snapshot() {
		for _, item := range s.Items {
			require.False(t, strings.HasPrefix(item.ID, "stale-"), "stale item %v was merged", item)
		}
	}
	h.states.requireStates(t,
		loading(),
		content(0, 50, EdgeNone, EdgeLoading),
	)
}

func TestEngine_RetryShowsLoadingEdgeWhileFetching(t *testing.T) {
	cause := errors.New("timeout")
	backend := &blockingBackend{calls: make(chan *blockingCall)}
	h := startEngine(t, backend, ErrorHandlerFunc(func(error) error { return nil }), DefaultConfig())

	backend.next(t).respond("")
	h.flush(t)

	h.engine.SetVisibleRange(0, 30)
	second := backend.next(t)
	require.Equal(t, Bounds{Offset: 25, Limit: 25}, second.bounds)
	second.fail(cause)
	h.flush(t)

	h.engine.ReloadCurrentWindow()
	third := backend.next(t)
	require.Equal(t, Bounds{Offset: 25, Limit: 25}, third.bounds)

	// While the retry is blocked the failed edge already shows loading.
	h.states.requireStates(t,
		loading(),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 25, EdgeNone, EdgeError),
		content(0, 25, EdgeNone, EdgeLoading),
	)

	third.respond("")
	h.flush(t)
	h.states.requireStates(t,
		loading(),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 25, EdgeNone, EdgeError),
		content(0, 25, EdgeNone, EdgeLoading),
		content(0, 50, EdgeNone, EdgeLoading),
	)
}

func TestEngine_HandlerAbortStopsRun(t *testing.T) {
	cause := errors.New("fatal backend error")
	backend := &fakeBackend{
		itemCount: 10,
		fail:      func(int, Bounds) error { return cause },
	}

	h := startEngine(t, backend, ErrorHandlerFunc(func(err error) error { return err }), DefaultConfig())

	select {
	case err := <-h.runErr:
		require.Error(t, err)
		assert.True(t, IsHandlerAbort(err))
		assert.ErrorIs(t, err, cause)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop after handler abort")
	}
}

func TestEngine_RunTwice(t *testing.T) {
	backend := &fakeBackend{itemCount: 10, withTotal: true}
	h := startEngine(t, backend, failOnError(t), DefaultConfig())
	h.flush(t)

	err := h.engine.Run(context.Background())
	assert.ErrorIs(t, err, ErrAlreadyRunning)

	h.stopRun()
	select {
	case err := <-h.runErr:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not stop on cancel")
	}
}

func TestNew_Validation(t *testing.T) {
	backend := &fakeBackend{}

	tests := []struct {
		name     string
		source   DataSource[sourceItem, NoStaticData]
		mapper   Mapper[sourceItem, pagedItem]
		config   Config
		errorMsg string
	}{
		{
			name:   "valid config",
			source: backend,
			mapper: itemMapper,
			config: DefaultConfig(),
		},
		{
			name:     "nil source",
			mapper:   itemMapper,
			config:   DefaultConfig(),
			errorMsg: "data source is required",
		},
		{
			name:     "nil mapper",
			source:   backend,
			config:   DefaultConfig(),
			errorMsg: "mapper is required",
		},
		{
			name:     "negative tolerance",
			source:   backend,
			mapper:   itemMapper,
			config:   Config{LoadTolerance: -1},
			errorMsg: "load tolerance must be >= 0 (got -1)",
		},
		{
			name:     "negative offset",
			source:   backend,
			mapper:   itemMapper,
			config:   Config{InitialOffset: -5},
			errorMsg: "initial offset must be >= 0 (got -5)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine, err := New(tt.source, tt.mapper, nil, tt.config)
			if tt.errorMsg != "" {
				require.Error(t, err)
				assert.Equal(t, tt.errorMsg, err.Error())
				return
			}
			require.NoError(t, err)
			assert.NotEmpty(t, engine.ID())
			assert.Equal(t, Bounds{Offset: 0, Limit: 25}, engine.RequestedBounds())
			assert.Equal(t, StatusLoading, engine.Current().Status)
		})
	}
}

func TestNew_FillsDefaults(t *testing.T) {
	engine, err := New[sourceItem, pagedItem, NoStaticData](&fakeBackend{}, itemMapper, nil, Config{InitialPageCount: 2})
	require.NoError(t, err)

	cfg := engine.Config()
	assert.Equal(t, "default", cfg.Name)
	assert.Equal(t, int64(25), cfg.PageSize)
	assert.Equal(t, int64(0), cfg.LoadTolerance)
	assert.Equal(t, Bounds{Offset: 0, Limit: 50}, engine.RequestedBounds())
}
