package main

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sternrassler/pagewindow/internal/backend"
	"github.com/Sternrassler/pagewindow/pkg/client"
	"github.com/Sternrassler/pagewindow/pkg/paging"
)

type fakeEngine struct {
	mu      sync.Mutex
	visible [][2]int64
	reloads int
	resets  int
	states  chan viewState
}

func newFakeEngine() *fakeEngine {
	return &fakeEngine{states: make(chan viewState, 8)}
}

func (f *fakeEngine) Run(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (f *fakeEngine) Observe(context.Context) <-chan viewState { return f.states }

func (f *fakeEngine) SetVisibleItems(first, last paging.Indexed) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.visible = append(f.visible, [2]int64{first.AbsoluteIndex(), last.AbsoluteIndex()})
}

func (f *fakeEngine) ReloadCurrentWindow() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reloads++
}

func (f *fakeEngine) ResetAndReload() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resets++
}

func (f *fakeEngine) lastVisible() [2]int64 {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.visible) == 0 {
		return [2]int64{-1, -1}
	}
	return f.visible[len(f.visible)-1]
}

type fakePurger struct {
	calls int
	err   error
}

func (p *fakePurger) Purge(context.Context) error {
	p.calls++
	return p.err
}

func newTestScreen(t *testing.T, w, h int) tcell.SimulationScreen {
	t.Helper()
	s := tcell.NewSimulationScreen("UTF-8")
	require.NoError(t, s.Init())
	s.SetSize(w, h)
	return s
}

func screenLine(s tcell.Screen, y int) string {
	w, _ := s.Size()
	var b strings.Builder
	for x := 0; x < w; x++ {
		r, _, _, _ := s.GetContent(x, y)
		b.WriteRune(r)
	}
	return strings.TrimRight(b.String(), " ")
}

func contentState(from, to int64, before, after paging.Edge) viewState {
	items := make([]listItem, 0, to-from)
	for i := from; i < to; i++ {
		items = append(items, newListItem(backend.Record{ID: strconv.FormatInt(i, 10), Index: i, Title: "Item " + strconv.FormatInt(i, 10)}, i))
	}
	return paging.Content(items, before, after, client.PageMeta{})
}

func key(r rune) *tcell.EventKey {
	return tcell.NewEventKey(tcell.KeyRune, r, tcell.ModNone)
}

func TestViewer_RendersStates(t *testing.T) {
	screen := newTestScreen(t, 60, 6)
	v := newViewer(screen, newFakeEngine(), nil, "items")

	v.render()
	assert.Equal(t, "items  loading", screenLine(screen, 0))
	assert.Equal(t, "  "+v.labels.Loading, screenLine(screen, 1))

	v.setState(paging.Failed[listItem, client.PageMeta](errors.New("boom")))
	v.render()
	assert.Equal(t, "items  failed", screenLine(screen, 0))
	assert.Contains(t, screenLine(screen, 1), "(boom)")

	v.setState(contentState(0, 25, paging.EdgeNone, paging.EdgeLoading))
	v.render()
	assert.Equal(t, "items  25 held [0..24]", screenLine(screen, 0))
	assert.Equal(t, "      0  Item 0", screenLine(screen, 1))
	assert.Equal(t, "      3  Item 3", screenLine(screen, 4))
	assert.Contains(t, screenLine(screen, 5), helpText[:10])
}

func TestViewer_TracksVisibleItems(t *testing.T) {
	screen := newTestScreen(t, 40, 12) // ten list rows
	engine := newFakeEngine()
	v := newViewer(screen, engine, nil, "items")

	v.setState(contentState(0, 25, paging.EdgeNone, paging.EdgeLoading))
	assert.Equal(t, [2]int64{0, 9}, engine.lastVisible())

	v.handleEvent(context.Background(), key('j'))
	assert.Equal(t, [2]int64{1, 10}, engine.lastVisible())

	v.handleEvent(context.Background(), tcell.NewEventKey(tcell.KeyPgDn, 0, tcell.ModNone))
	assert.Equal(t, [2]int64{11, 20}, engine.lastVisible())

	// The trailing loader row is visible but is not an item
	v.handleEvent(context.Background(), tcell.NewEventKey(tcell.KeyEnd, 0, tcell.ModNone))
	assert.Equal(t, [2]int64{16, 24}, engine.lastVisible())

	calls := len(engine.visible)
	v.handleEvent(context.Background(), tcell.NewEventKey(tcell.KeyEnd, 0, tcell.ModNone))
	assert.Len(t, engine.visible, calls, "unchanged span must not be reported again")
}

func TestViewer_AnchorSurvivesLeadingEdgeRow(t *testing.T) {
	screen := newTestScreen(t, 40, 7) // five list rows
	engine := newFakeEngine()
	v := newViewer(screen, engine, nil, "items")

	v.setState(contentState(50, 75, paging.EdgeNone, paging.EdgeLoading))
	v.scroll(2)
	require.Equal(t, [2]int64{52, 56}, engine.lastVisible())

	// A loader row appears before the first item
	v.setState(contentState(50, 75, paging.EdgeLoading, paging.EdgeLoading))
	assert.Equal(t, 3, v.top)
	assert.Equal(t, [2]int64{52, 56}, engine.lastVisible())
}

func TestViewer_ReloadAndReset(t *testing.T) {
	screen := newTestScreen(t, 40, 8)
	engine := newFakeEngine()
	purger := &fakePurger{}
	v := newViewer(screen, engine, purger, "items")
	v.setState(contentState(0, 25, paging.EdgeNone, paging.EdgeLoading))
	v.scroll(5)

	assert.True(t, v.handleEvent(context.Background(), key('r')))
	assert.Equal(t, 1, engine.reloads)

	assert.True(t, v.handleEvent(context.Background(), key('R')))
	assert.Equal(t, 1, purger.calls)
	assert.Equal(t, 1, engine.resets)
	assert.Equal(t, 0, v.top)

	purger.err = errors.New("redis down")
	v.handleEvent(context.Background(), key('R'))
	assert.Equal(t, 2, engine.resets)
	assert.Contains(t, v.status, "redis down")
}

func TestViewer_QuitKeys(t *testing.T) {
	tests := []struct {
		name string
		ev   *tcell.EventKey
	}{
		{"q", key('q')},
		{"escape", tcell.NewEventKey(tcell.KeyEscape, 0, tcell.ModNone)},
		{"ctrl-c", tcell.NewEventKey(tcell.KeyCtrlC, 0, tcell.ModCtrl)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v := newViewer(newTestScreen(t, 20, 5), newFakeEngine(), nil, "items")
			if got := v.handleEvent(context.Background(), tt.ev); got {
				t.Errorf("handleEvent(%s) = %v, want %v", tt.name, got, false)
			}
		})
	}
}

func TestViewer_RunAppliesStatesUntilQuit(t *testing.T) {
	screen := newTestScreen(t, 40, 6)
	engine := newFakeEngine()
	v := newViewer(screen, engine, nil, "items")

	engine.states <- contentState(0, 3, paging.EdgeNone, paging.EdgeNoMoreContent)

	done := make(chan error, 1)
	go func() { done <- v.run(context.Background()) }()

	assert.Eventually(t, func() bool {
		return engine.lastVisible() == [2]int64{0, 2}
	}, 2*time.Second, 10*time.Millisecond)

	screen.InjectKey(tcell.KeyRune, 'q', tcell.ModNone)
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("viewer did not quit")
	}
}
