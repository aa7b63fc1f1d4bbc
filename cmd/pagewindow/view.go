package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/gdamore/tcell/v2"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"github.com/Sternrassler/pagewindow/internal/backend"
	"github.com/Sternrassler/pagewindow/pkg/client"
	"github.com/Sternrassler/pagewindow/pkg/logging"
	"github.com/Sternrassler/pagewindow/pkg/pagination"
	"github.com/Sternrassler/pagewindow/pkg/paging"
)

var viewOpts struct {
	logFile string
}

var viewCmd = &cobra.Command{
	Use:   "view",
	Short: "Browse a paged collection in the terminal",
	Long: `Open a scrollable list over the configured backend endpoint. Pages are
fetched as the visible window moves.

Keys: arrows/j/k scroll, PgUp/PgDn page, Home/End jump, r reloads the
current window, R purges the cache and starts over, q quits.`,
	RunE: runView,
}

func init() {
	viewCmd.Flags().StringVar(&viewOpts.logFile, "log-file", "", "write logs to this file (logging is off otherwise)")
	rootCmd.AddCommand(viewCmd)
}

// listItem is a backend record placed at its position in the collection.
type listItem struct {
	backend.Record
	Position int64
}

func (i listItem) AbsoluteIndex() int64 { return i.Position }

func newListItem(record backend.Record, absoluteIndex int64) listItem {
	return listItem{Record: record, Position: absoluteIndex}
}

func runView(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	logCfg := cfg.LoggingConfig()
	logCfg.Level = logging.LevelDisabled
	if viewOpts.logFile != "" {
		f, err := os.OpenFile(viewOpts.logFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		defer f.Close()
		logCfg = cfg.LoggingConfig()
		logCfg.Output = f
		logCfg.Pretty = false
	}
	logging.Setup(logCfg)

	ctx := cmd.Context()

	var rc *redis.Client
	if opts := cfg.RedisOptions(); opts != nil {
		rc = redis.NewClient(opts)
		defer rc.Close()

		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		err := rc.Ping(pingCtx).Err()
		cancel()
		if err != nil {
			return fmt.Errorf("connect to redis at %s: %w", opts.Addr, err)
		}
	}

	c, err := client.New(cfg.ClientConfig(rc))
	if err != nil {
		return fmt.Errorf("create client: %w", err)
	}

	source := client.NewSource[backend.Record](c, cfg.Backend.Endpoint, nil)
	var ds paging.DataSource[backend.Record, client.PageMeta] = source
	if chunk, ok := cfg.ChunkConfig(); ok {
		ds = pagination.NewBatchFetcher(ds, chunk, logging.NewLogger("pagination"))
	}

	engine, err := paging.New[backend.Record, listItem, client.PageMeta](
		ds,
		paging.MapperFunc[backend.Record, listItem](newListItem),
		nil,
		cfg.EngineConfig(),
	)
	if err != nil {
		return fmt.Errorf("create engine: %w", err)
	}

	screen, err := tcell.NewScreen()
	if err != nil {
		return err
	}
	if err := screen.Init(); err != nil {
		return err
	}

	v := newViewer(screen, engine, source, cfg.Backend.BaseURL+cfg.Backend.Endpoint)
	return v.run(ctx)
}
