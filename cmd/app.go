package cmd

import (
	"context"
	"errors"
	"sync"

	"github.com/mdobak/go-xerrors"

	"song-recognition/config"
	"song-recognition/db"
	"song-recognition/links"
	"song-recognition/logger"
	"song-recognition/network"
	"song-recognition/recognizer"
	"song-recognition/wav"
)

// app holds the wired components shared by every command.
type app struct {
	cfg        *config.Config
	store      db.Store
	monitor    *network.Monitor
	recordings *recognizer.Recordings
	recognizer *recognizer.Recognizer
}

// newApp opens the store and wires the recognizer. with probe set the
// connectivity is checked once before the recognizer reads it.
func newApp(ctx context.Context, cfg *config.Config, probe bool) (*app, error) {
	wav.FFmpegPath = cfg.FFmpegPath

	store, err := db.NewStore(ctx, cfg.DB)
	if err != nil {
		return nil, xerrors.New("failed to open database", err)
	}

	recordings, err := recognizer.LoadRecordings(ctx, store)
	if err != nil {
		store.Close()
		return nil, xerrors.New("failed to load saved recordings", err)
	}

	monitor := network.NewMonitor(cfg.ConnectivityProbe, cfg.ConnectivityInterval)
	if probe {
		logger.Debug("[app] connectivity", logger.String("state", monitor.Probe(ctx).String()))
	}

	opts := recognizer.Options{
		Capturer:    wav.NewRecorder(),
		Network:     monitor,
		Recordings:  recordings,
		Settings:    cfg.Provider,
		AudioSource: cfg.AudioSource,
	}

	yt, err := links.NewYouTube(ctx, cfg.YouTubeAPIKey)
	switch {
	case err == nil:
		opts.Enricher = yt
	case errors.Is(err, links.ErrNoAPIKey):
		logger.Debug("[app] no youtube api key, links disabled")
	default:
		logger.Warn("[app] youtube client unavailable", logger.ErrorField(err))
	}

	logger.Info("[app] ready",
		logger.String("provider", cfg.Provider.Active.String()),
		logger.String("db", cfg.DB.Type),
		logger.Int("saved_recordings", recordings.Len()))

	return &app{
		cfg:        cfg,
		store:      store,
		monitor:    monitor,
		recordings: recordings,
		recognizer: recognizer.New(opts),
	}, nil
}

// watchSettings applies provider changes from the settings file until ctx
// is done. it is a no-op when no settings file is configured.
func (a *app) watchSettings(ctx context.Context) {
	if a.cfg.SettingsFile == "" {
		return
	}
	go func() {
		err := config.WatchProviderSettings(ctx, a.cfg.SettingsFile, a.cfg.Provider, a.recognizer.ApplySettings)
		if err != nil && ctx.Err() == nil {
			logger.Error("[app] settings watcher stopped", logger.ErrorField(err))
		}
	}()
}

// runBackground follows connectivity and retries saved recordings until ctx
// is done. the recognizer must have been built after a probe so the startup
// sweep sees the real network state.
func (a *app) runBackground(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		a.monitor.Run(ctx)
	}()
	go func() {
		defer wg.Done()
		if err := a.recognizer.Run(ctx); err != nil {
			logger.Error("[app] recognizer stopped", logger.ErrorField(err))
		}
	}()
	wg.Wait()
}

func (a *app) close() {
	if err := a.store.Close(); err != nil {
		logger.Warn("[app] failed to close database", logger.ErrorField(err))
	}
}
