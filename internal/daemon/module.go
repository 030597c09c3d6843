package daemon

import (
	"context"

	"github.com/mfadhil/qchat/internal/bus"
	"github.com/mfadhil/qchat/internal/config"
	"github.com/mfadhil/qchat/internal/dispatch"
	"github.com/mfadhil/qchat/internal/lock"
	"github.com/mfadhil/qchat/internal/logging"
	"github.com/mfadhil/qchat/internal/outbox"
	"github.com/mfadhil/qchat/internal/presence"
	"github.com/mfadhil/qchat/internal/sdk"
	"github.com/mfadhil/qchat/internal/session"
	"github.com/mfadhil/qchat/internal/status"
	"github.com/mfadhil/qchat/internal/store"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Params holds the resolved profile configuration passed to the fx module.
type Params struct {
	Profile string
}

// Module returns the fx module for the daemon, composing all providers and lifecycle hooks.
func Module(p Params) fx.Option {
	return fx.Module("daemon",
		fx.Supply(p),
		fx.Provide(
			provideLogger,
			provideBus,
			provideStateMachine,
			provideLock,
			provideProfile,
			provideStore,
			provideClient,
			provideFeed,
			provideEngine,
			provideTracker,
			provideSender,
		),
		fx.Invoke(registerLifecycle),
	)
}

func provideLogger(p Params) (*zap.Logger, error) {
	return logging.New(session.LogPath(p.Profile), p.Profile)
}

func provideBus() *bus.Bus {
	return bus.New()
}

func provideStateMachine(b *bus.Bus) *status.Machine {
	return status.NewMachine(b)
}

func provideLock(p Params, logger *zap.Logger) (*lock.Lock, error) {
	if err := session.EnsureDir(p.Profile); err != nil {
		return nil, err
	}
	logger.Info("acquiring profile lock", zap.String("profile", p.Profile))
	l, err := lock.Acquire(session.Dir(p.Profile))
	if err != nil {
		return nil, err
	}
	logger.Info("profile lock acquired")
	return l, nil
}

func provideProfile(p Params) (*config.Profile, error) {
	prof, err := config.LoadProfile(session.ProfileConfigPath(p.Profile))
	if err != nil {
		return nil, err
	}
	if err := prof.Validate(); err != nil {
		return nil, err
	}
	return prof, nil
}

func provideStore(p Params, logger *zap.Logger) (*store.DB, error) {
	dbPath := session.CacheDBPath(p.Profile)
	db, err := store.Open(dbPath)
	if err != nil {
		return nil, err
	}
	result, err := db.Migrate()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	if result.Changed {
		logger.Info("migrations applied", zap.Uint("version", result.Version))
	} else {
		logger.Info("migrations up to date", zap.Uint("version", result.Version))
	}
	logger.Info("store initialized", zap.String("path", dbPath))
	return db, nil
}

func provideClient(prof *config.Profile) *sdk.Client {
	return sdk.NewClient(prof.BaseURL, sdk.Credentials{
		AppID:  prof.AppID,
		UserID: prof.UserID,
		Token:  prof.Token,
	})
}

func provideFeed(prof *config.Profile, b *bus.Bus, machine *status.Machine, logger *zap.Logger) *sdk.Feed {
	return sdk.NewFeed(prof.RealtimeURL, sdk.Credentials{
		AppID:  prof.AppID,
		UserID: prof.UserID,
		Token:  prof.Token,
	}, b, machine, logger)
}

func provideEngine(db *store.DB, b *bus.Bus, client *sdk.Client, logger *zap.Logger) *dispatch.Engine {
	return dispatch.NewEngine(db, b, client, logger)
}

func provideTracker(b *bus.Bus, logger *zap.Logger) *presence.Tracker {
	return presence.NewTracker(b, logger)
}

func provideSender(db *store.DB, client *sdk.Client, engine *dispatch.Engine, b *bus.Bus, logger *zap.Logger) *outbox.Sender {
	return outbox.NewSender(db, client, engine, b, logger)
}

func registerLifecycle(lc fx.Lifecycle, lk *lock.Lock, engine *dispatch.Engine, tracker *presence.Tracker, sender *outbox.Sender, feed *sdk.Feed, machine *status.Machine, logger *zap.Logger) {
	lc.Append(fx.Hook{
		OnStart: func(_ context.Context) error {
			// Start the engine first so it observes every feed event.
			engine.Start(context.Background())
			tracker.Start(context.Background())
			sender.Start(context.Background())

			_ = machine.Transition(status.Connecting)
			feed.Start(context.Background())

			// Seed the room list before the first realtime event lands.
			go func() {
				if err := engine.Refresh(context.Background()); err != nil {
					logger.Error("initial room list load failed", zap.Error(err))
				}
			}()

			return nil
		},
		OnStop: func(_ context.Context) error {
			feed.Stop()
			sender.Stop()
			tracker.Stop()
			engine.Stop()
			if err := lk.Release(); err != nil {
				logger.Warn("error releasing lock", zap.Error(err))
			}
			logger.Info("daemon stopped")
			return nil
		},
	})
}
