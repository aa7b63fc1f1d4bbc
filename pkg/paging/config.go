package paging

import "fmt"

// Config holds the engine's fixed paging constants.
type Config struct {
	// Name labels the engine in logs and metrics.
	Name string

	// PageSize is the page granularity used for window snapping and the
	// no-more-content threshold.
	PageSize int64

	// InitialOffset is the offset of the first window.
	InitialOffset int64

	// InitialPageCount is how many pages the first window spans.
	InitialPageCount int64

	// LoadTolerance pads the visible range before snapping it to pages.
	LoadTolerance int64
}

// DefaultConfig returns the default paging constants.
func DefaultConfig() Config {
	return Config{
		Name:             "default",
		PageSize:         25,
		InitialOffset:    0,
		InitialPageCount: 1,
		LoadTolerance:    3,
	}
}

// InitialBounds returns the window requested on start and after a reset.
func (c Config) InitialBounds() Bounds {
	return Bounds{Offset: c.InitialOffset, Limit: c.PageSize * c.InitialPageCount}
}

// withDefaults fills unset values. LoadTolerance is left alone since zero
// is a meaningful setting.
func (c Config) withDefaults() Config {
	if c.Name == "" {
		c.Name = "default"
	}
	if c.PageSize <= 0 {
		c.PageSize = 25
	}
	if c.InitialPageCount <= 0 {
		c.InitialPageCount = 1
	}
	return c
}

func (c Config) validate() error {
	if c.InitialOffset < 0 {
		return fmt.Errorf("initial offset must be >= 0 (got %d)", c.InitialOffset)
	}
	if c.LoadTolerance < 0 {
		return fmt.Errorf("load tolerance must be >= 0 (got %d)", c.LoadTolerance)
	}
	return nil
}
