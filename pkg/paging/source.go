package paging

import (
	"context"

	"github.com/rs/zerolog"
)

// Indexed is implemented by display items. The absolute index is the
// item's stable position in the full backend sequence.
type Indexed interface {
	AbsoluteIndex() int64
}

// Page is the result of one backend fetch.
type Page[S any, T any] struct {
	// Items are the records in backend order, starting at the fetched offset.
	Items []S

	// TotalItemCount is the size of the full sequence, nil when unknown.
	TotalItemCount *int64

	// StaticData travels with the page and replaces any earlier value.
	StaticData T
}

// Total is a helper for building pages with a known total.
func Total(n int64) *int64 {
	return &n
}

// DataSource fetches one window of records. Implementations may block and
// should honour ctx cancellation; retries and timeouts are theirs to apply.
type DataSource[S any, T any] interface {
	FetchPage(ctx context.Context, bounds Bounds) (Page[S, T], error)
}

// DataSourceFunc adapts a function to DataSource.
type DataSourceFunc[S any, T any] func(ctx context.Context, bounds Bounds) (Page[S, T], error)

// FetchPage implements DataSource.
func (f DataSourceFunc[S, T]) FetchPage(ctx context.Context, bounds Bounds) (Page[S, T], error) {
	return f(ctx, bounds)
}

// Mapper turns a backend record into a display item at an absolute index.
type Mapper[S any, D Indexed] interface {
	MapRecord(record S, absoluteIndex int64) D
}

// MapperFunc adapts a function to Mapper.
type MapperFunc[S any, D Indexed] func(record S, absoluteIndex int64) D

// MapRecord implements Mapper.
func (f MapperFunc[S, D]) MapRecord(record S, absoluteIndex int64) D {
	return f(record, absoluteIndex)
}

// ErrorHandler is notified once per failed fetch. Returning a non-nil
// error stops the engine's Run loop with that error.
type ErrorHandler interface {
	OnFetchError(err error) error
}

// ErrorHandlerFunc adapts a function to ErrorHandler.
type ErrorHandlerFunc func(err error) error

// OnFetchError implements ErrorHandler.
func (f ErrorHandlerFunc) OnFetchError(err error) error {
	return f(err)
}

// LogErrors returns an ErrorHandler that logs failures and keeps running.
func LogErrors(logger zerolog.Logger) ErrorHandler {
	return ErrorHandlerFunc(func(err error) error {
		logger.Warn().Err(err).Msg("Page fetch failed")
		return nil
	})
}

// NoStaticData is the static data type for sources that carry none.
type NoStaticData struct{}
