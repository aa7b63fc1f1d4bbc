package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/mattn/go-runewidth"

	"github.com/Sternrassler/pagewindow/pkg/client"
	"github.com/Sternrassler/pagewindow/pkg/listview"
	"github.com/Sternrassler/pagewindow/pkg/paging"
)

const helpText = "j/k scroll  PgUp/PgDn page  r reload  R reset  q quit"

type viewState = paging.State[listItem, client.PageMeta]

// windowEngine is the part of the paging engine the viewer drives.
type windowEngine interface {
	Run(ctx context.Context) error
	Observe(ctx context.Context) <-chan viewState
	SetVisibleItems(first, last paging.Indexed)
	ReloadCurrentWindow()
	ResetAndReload()
}

type cachePurger interface {
	Purge(ctx context.Context) error
}

var (
	headerStyle = tcell.StyleDefault.Reverse(true)
	itemStyle   = tcell.StyleDefault
	indexStyle  = tcell.StyleDefault.Foreground(tcell.ColorGray)
	loaderStyle = tcell.StyleDefault.Foreground(tcell.ColorYellow)
	errorStyle  = tcell.StyleDefault.Foreground(tcell.ColorRed)
	endStyle    = tcell.StyleDefault.Foreground(tcell.ColorGray).Italic(true)
	footerStyle = tcell.StyleDefault.Foreground(tcell.ColorGray)
)

// viewer renders engine states as a scrollable list and feeds the visible
// span back to the engine.
type viewer struct {
	screen tcell.Screen
	engine windowEngine
	purger cachePurger
	title  string
	labels listview.Labels

	state viewState
	rows  []listview.Row[listItem]
	top   int

	// anchor is the absolute index of the first visible item, -1 if none.
	// It keeps the view steady when edge rows come and go.
	anchor int64

	tracked    [2]int64
	hasTracked bool
	status     string
}

func newViewer(screen tcell.Screen, engine windowEngine, purger cachePurger, title string) *viewer {
	v := &viewer{
		screen: screen,
		engine: engine,
		purger: purger,
		title:  title,
		labels: listview.DefaultLabels(),
		anchor: -1,
	}
	v.setState(paging.Loading[listItem, client.PageMeta]())
	return v
}

func (v *viewer) run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	defer v.screen.Fini()

	runErr := make(chan error, 1)
	go func() {
		runErr <- v.engine.Run(ctx)
	}()

	states := v.engine.Observe(ctx)

	events := make(chan tcell.Event)
	go func() {
		for {
			ev := v.screen.PollEvent()
			if ev == nil {
				return
			}
			select {
			case events <- ev:
			case <-ctx.Done():
				return
			}
		}
	}()

	v.render()
	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-runErr:
			if err != nil && !errors.Is(err, context.Canceled) {
				return err
			}
			return nil
		case state, ok := <-states:
			if !ok {
				return nil
			}
			v.setState(state)
		case ev := <-events:
			if !v.handleEvent(ctx, ev) {
				return nil
			}
		}
		v.render()
	}
}

// pageHeight is the number of list rows between header and footer.
func (v *viewer) pageHeight() int {
	_, h := v.screen.Size()
	return max(h-2, 1)
}

func (v *viewer) setState(state viewState) {
	v.state = state
	v.rows = listview.Rows(state)

	if v.anchor >= 0 {
		for i, row := range v.rows {
			if row.Kind == listview.RowItem && row.Item.Position == v.anchor {
				v.top = i
				break
			}
		}
	}
	v.top = v.clampTop(v.top)
	v.track()
}

func (v *viewer) clampTop(top int) int {
	return max(0, min(top, len(v.rows)-v.pageHeight()))
}

func (v *viewer) scroll(delta int) {
	v.top = v.clampTop(v.top + delta)
	v.anchor = -1
	if first, _, ok := listview.VisibleItems(v.rows, v.top, v.top+v.pageHeight()-1); ok {
		v.anchor = first.Position
	}
	v.track()
}

// track reports the visible items to the engine when they changed.
func (v *viewer) track() {
	first, last, ok := listview.VisibleItems(v.rows, v.top, v.top+v.pageHeight()-1)
	if !ok {
		return
	}
	span := [2]int64{first.Position, last.Position}
	if v.hasTracked && span == v.tracked {
		return
	}
	v.tracked, v.hasTracked = span, true
	v.engine.SetVisibleItems(first, last)
}

// handleEvent applies one terminal event. It returns false to quit.
func (v *viewer) handleEvent(ctx context.Context, ev tcell.Event) bool {
	switch ev := ev.(type) {
	case *tcell.EventResize:
		v.screen.Sync()
		v.top = v.clampTop(v.top)
		v.track()
	case *tcell.EventKey:
		return v.handleKey(ctx, ev)
	}
	return true
}

func (v *viewer) handleKey(ctx context.Context, ev *tcell.EventKey) bool {
	switch ev.Key() {
	case tcell.KeyEscape, tcell.KeyCtrlC:
		return false
	case tcell.KeyUp:
		v.scroll(-1)
	case tcell.KeyDown:
		v.scroll(1)
	case tcell.KeyPgUp:
		v.scroll(-v.pageHeight())
	case tcell.KeyPgDn:
		v.scroll(v.pageHeight())
	case tcell.KeyHome:
		v.scroll(-len(v.rows))
	case tcell.KeyEnd:
		v.scroll(len(v.rows))
	case tcell.KeyRune:
		switch ev.Rune() {
		case 'q':
			return false
		case 'k':
			v.scroll(-1)
		case 'j':
			v.scroll(1)
		case 'r':
			v.status = "Reloading current window"
			v.engine.ReloadCurrentWindow()
		case 'R':
			v.reset(ctx)
		}
	}
	return true
}

func (v *viewer) reset(ctx context.Context) {
	v.status = "Reset to first page"
	if v.purger != nil {
		purgeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := v.purger.Purge(purgeCtx)
		cancel()
		if err != nil {
			v.status = "Cache purge failed: " + err.Error()
		}
	}

	v.top = 0
	v.anchor = -1
	v.hasTracked = false
	v.engine.ResetAndReload()
}

func (v *viewer) render() {
	v.screen.Clear()
	w, h := v.screen.Size()

	drawLine(v.screen, 0, w, v.header(), headerStyle)

	for y := 1; y < h-1; y++ {
		i := v.top + y - 1
		if i >= len(v.rows) {
			break
		}
		v.drawRow(y, w, v.rows[i])
	}

	footer := helpText
	if v.status != "" {
		footer = v.status + "  |  " + helpText
	}
	drawLine(v.screen, h-1, w, footer, footerStyle)
	v.screen.Show()
}

func (v *viewer) header() string {
	switch v.state.Status {
	case paging.StatusLoading:
		return v.title + "  loading"
	case paging.StatusError:
		return v.title + "  failed"
	}

	items := v.state.Items
	summary := fmt.Sprintf("%s  %d held", v.title, len(items))
	if len(items) > 0 {
		summary += fmt.Sprintf(" [%d..%d]", items[0].Position, items[len(items)-1].Position)
	}
	if v.state.StaticData.FromCache {
		summary += "  cached"
	}
	return summary
}

func (v *viewer) drawRow(y, w int, row listview.Row[listItem]) {
	switch row.Kind {
	case listview.RowItem:
		index := fmt.Sprintf("%7d  ", row.Item.Position)
		x := drawText(v.screen, 0, y, w, index, indexStyle)
		drawText(v.screen, x, y, w-x, row.Item.Title, itemStyle)
	case listview.RowLoader:
		drawText(v.screen, 2, y, w-2, row.Label(v.labels), loaderStyle)
	case listview.RowError:
		drawText(v.screen, 2, y, w-2, row.Label(v.labels), errorStyle)
	case listview.RowNoMoreContent:
		drawText(v.screen, 2, y, w-2, row.Label(v.labels), endStyle)
	}
}

// drawLine draws text across the full width, padding with the style.
func drawLine(s tcell.Screen, y, w int, text string, style tcell.Style) {
	x := drawText(s, 0, y, w, text, style)
	for ; x < w; x++ {
		s.SetContent(x, y, ' ', nil, style)
	}
}

// drawText draws text truncated to width cells and returns the column
// after the last drawn cell.
func drawText(s tcell.Screen, x, y, width int, text string, style tcell.Style) int {
	if width <= 0 {
		return x
	}
	text = runewidth.Truncate(text, width, "…")
	for _, r := range text {
		s.SetContent(x, y, r, nil, style)
		x += max(runewidth.RuneWidth(r), 1)
	}
	return x
}
