package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/normanking/cortexportrait/internal/audio"
	"github.com/normanking/cortexportrait/internal/bus"
	"github.com/normanking/cortexportrait/internal/config"
	"github.com/normanking/cortexportrait/internal/feed"
	"github.com/normanking/cortexportrait/internal/ingest"
	"github.com/normanking/cortexportrait/internal/logging"
	"github.com/normanking/cortexportrait/internal/portrait"
	"github.com/normanking/cortexportrait/internal/random"
	"github.com/normanking/cortexportrait/internal/rendertree"
)

var (
	_ ingest.Target    = (*portrait.Director)(nil)
	_ ingest.AudioSink = (*audio.Playback)(nil)
)

// engine is everything a running session needs.
type engine struct {
	cfg      *config.Config
	logger   zerolog.Logger
	eventBus *bus.EventBus
	trees    *rendertree.Registry
	watcher  *rendertree.Watcher
	playback *audio.Playback
	director *portrait.Director
}

func directorConfig(cfg *config.Config) portrait.Config {
	return portrait.Config{
		Expression: cfg.Expression.Machine(),
		LipSync:    cfg.LipSync,
		Blink:      cfg.Blink,
		Idle:       cfg.Idle,
		Crossfade:  cfg.Crossfade,
		Breathing:  cfg.Breathing,
	}
}

func rngFor(cfg *config.Config) random.Source {
	if cfg.Expression.Seed != 0 {
		return random.New(cfg.Expression.Seed)
	}
	return random.NewTimeSeeded()
}

// loadTrees fills a registry from the configured directory. A missing
// directory is not an error: the built-in tree covers every expression.
func loadTrees(cfg config.RenderTreeConfig, trees *rendertree.Registry, logger zerolog.Logger) error {
	if cfg.Dir == "" {
		return nil
	}
	if _, err := trees.LoadDir(cfg.Dir); err != nil {
		if errors.Is(err, rendertree.ErrConfigNotFound) {
			logger.Info().Str("dir", cfg.Dir).Msg("No render tree directory, using built-in tree")
			return nil
		}
		logger.Warn().Err(err).Msg("Some render trees failed to load")
	}
	if cfg.DefaultFile != "" && filepath.Base(cfg.DefaultFile) != rendertree.DefaultFileName {
		path := cfg.DefaultFile
		if !filepath.IsAbs(path) {
			path = filepath.Join(cfg.Dir, path)
		}
		t, err := rendertree.LoadFile(path)
		if err != nil {
			return fmt.Errorf("load default render tree: %w", err)
		}
		trees.SetDefault(t)
	}
	return nil
}

func newEngine(cfg *config.Config, logger zerolog.Logger, watch bool) (*engine, error) {
	e := &engine{
		cfg:      cfg,
		logger:   logger,
		eventBus: bus.NewEventBus(),
	}
	e.trees = rendertree.NewRegistry(logger.With().Str("component", "rendertree").Logger())
	if err := loadTrees(cfg.RenderTree, e.trees, logger); err != nil {
		return nil, err
	}

	if watch && cfg.RenderTree.Watch && cfg.RenderTree.Dir != "" {
		if err := os.MkdirAll(cfg.RenderTree.Dir, 0755); err != nil {
			return nil, err
		}
		w, err := rendertree.NewWatcher(e.trees, cfg.RenderTree.Dir, logger.With().Str("component", "watcher").Logger())
		if err != nil {
			return nil, fmt.Errorf("watch render trees: %w", err)
		}
		w.SetOnReload(func(r rendertree.Reload) {
			t := bus.EventTypeRenderTreeReloaded
			if r.Removed {
				t = bus.EventTypeRenderTreeRemoved
			}
			data := map[string]any{"path": r.Path}
			if r.Err != nil {
				data["error"] = r.Err.Error()
			}
			e.eventBus.Publish(bus.Event{Type: t, Data: data})
		})
		e.watcher = w
	}

	e.playback = audio.NewPlayback(cfg.Audio, e.eventBus, logger)
	e.director = portrait.New(directorConfig(cfg), e.trees, e.playback, e.eventBus, rngFor(cfg),
		logger.With().Str("component", "portrait").Logger())
	return e, nil
}

func (e *engine) Close() {
	if e.watcher != nil {
		e.watcher.Close()
	}
}

func newRunCmd(g *globals) *cobra.Command {
	var characters []string
	var addr, upstream string

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the update loop and stream frames",
		Long:  "Runs the tick loop at the configured rate, hot-reloads render trees and serves frames and events over a websocket feed.",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, syslog, err := g.load()
			if err != nil {
				return err
			}
			defer syslog.Close()
			log := syslog.Component("main")

			if addr != "" {
				cfg.Feed.Enabled = true
				cfg.Feed.Addr = addr
			}
			if upstream != "" {
				cfg.Ingest.Enabled = true
				cfg.Ingest.URL = upstream
			}

			eng, err := newEngine(cfg, syslog.Zerolog(), true)
			if err != nil {
				return err
			}
			defer eng.Close()
			for _, id := range characters {
				eng.director.Add(id)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			var hub *feed.Hub
			if cfg.Feed.Enabled {
				hub = feed.NewHub(feed.DefaultConfig(), syslog.Component("feed"))
				hub.Attach(eng.eventBus,
					bus.EventTypeExpressionChanged,
					bus.EventTypeCacheInvalidated,
					bus.EventTypeSpeakingStarted,
					bus.EventTypeSpeakingStopped,
					bus.EventTypeRestingStarted,
					bus.EventTypeRestingEnded,
					bus.EventTypeContentmentStarted,
					bus.EventTypeContentmentEnded,
					bus.EventTypeRenderTreeReloaded,
					bus.EventTypeRenderTreeRemoved,
				)
				syslog.SetOnLog(func(e logging.LogEntry) {
					if lvl, err := zerolog.ParseLevel(e.Level); err == nil && lvl >= zerolog.WarnLevel {
						hub.PublishLog(e)
					}
				})
				go func() {
					if err := hub.ListenAndServe(ctx, cfg.Feed.Addr, cfg.Feed.Path); err != nil {
						log.Error().Err(err).Msg("Frame feed stopped")
						stop()
					}
				}()
			}

			if cfg.Ingest.Enabled {
				client := ingest.NewClient(cfg.Ingest, eng.director, syslog.Zerolog())
				client.SetAudioSink(eng.playback)
				if err := client.Health(ctx); err != nil {
					log.Warn().Err(err).Str("url", cfg.Ingest.URL).Msg("Upstream health check failed")
				} else if _, err := client.Snapshot(ctx); err != nil {
					log.Debug().Err(err).Msg("No upstream snapshot")
				}
				if err := client.Connect(ctx); err != nil {
					return err
				}
				defer client.Disconnect()
			}

			log.Info().
				Str("session", eng.director.Session().String()).
				Dur("tick", cfg.Expression.TickInterval()).
				Strs("characters", characters).
				Msg("Portrait engine running")

			runLoop(ctx, eng.director, cfg.Expression.TickInterval(), func(frames []portrait.Frame) {
				if hub != nil {
					hub.Broadcast(frames)
				}
			})

			log.Info().Int64("ticks", eng.director.Tick()).Msg("Portrait engine stopped")
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&characters, "character", "c", nil, "characters to animate from the start")
	cmd.Flags().StringVar(&addr, "feed", "", "serve the frame feed on this address (enables the feed)")
	cmd.Flags().StringVar(&upstream, "upstream", "", "follow an upstream state stream at this base URL (enables ingest)")
	return cmd
}

// runLoop ticks d every interval until ctx is done.
func runLoop(ctx context.Context, d *portrait.Director, interval time.Duration, sink func([]portrait.Frame)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sink(d.Update(now))
		}
	}
}
