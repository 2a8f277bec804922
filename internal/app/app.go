package app

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"github.com/jonboulle/clockwork"
	_ "github.com/lib/pq"
	"github.com/orgball2608/story-viewer-engine/internal/audiopreview"
	"github.com/orgball2608/story-viewer-engine/internal/conversation/pgxconversation"
	"github.com/orgball2608/story-viewer-engine/internal/engagement/pgxstore"
	"github.com/orgball2608/story-viewer-engine/internal/media/mpvplayer"
	_ "github.com/orgball2608/story-viewer-engine/internal/migrations"
	"github.com/orgball2608/story-viewer-engine/internal/notifier/telegramnotifier"
	"github.com/orgball2608/story-viewer-engine/internal/ratelimit"
	"github.com/orgball2608/story-viewer-engine/internal/session"
	"github.com/orgball2608/story-viewer-engine/internal/source/instagramsource"
	"github.com/orgball2608/story-viewer-engine/pkg/config"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"github.com/orgball2608/story-viewer-engine/pkg/pgx"
	"github.com/pressly/goose/v3"
	"go.uber.org/fx"
)

var App = fx.Options(
	fx.Provide(
		config.New,
		logger.FxOption,
		pgx.New,
		clockwork.NewRealClock,
		session.NewManager,
	),
	fx.Provide(
		fx.Annotate(
			audiopreview.NewITunesResolver,
			fx.As(new(audiopreview.Resolver)),
		),
		func() ratelimit.Limiter {
			return ratelimit.NewInMemoryLimiter(1, 2*time.Second, 5)
		},
	),
	instagramsource.Module,
	mpvplayer.Module,
	pgxstore.Module,
	pgxconversation.Module,
	telegramnotifier.Module,
	fx.Invoke(runMigrations),
	fx.Invoke(run),
)

func runMigrations(c *config.Config) error {
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}

	db, err := sql.Open("postgres", c.GetDSN())
	if err != nil {
		return err
	}
	defer db.Close()

	wd, err := os.Getwd()
	if err != nil {
		return err
	}

	return goose.Up(db, filepath.Join(wd, "internal", "migrations"))
}

func run(lc fx.Lifecycle, log logger.Logger, cfg *config.Config,
	ig *instagramsource.IgSource, store *pgxstore.Pgx, manager *session.Manager) {
	appCtx, cancel := context.WithCancel(context.Background())

	lc.Append(fx.Hook{
		OnStart: func(context.Context) error {
			go startHttpServer(log, cfg)

			if err := ig.Login(appCtx); err != nil {
				cancel()
				return fmt.Errorf("instagram login failed: %w", err)
			}

			if err := store.ScheduleRetentionSweep(appCtx); err != nil {
				cancel()
				return err
			}

			if cfg.Instagram.ViewUser != "" {
				go viewStories(appCtx, log, cfg, ig, manager)
			}

			return nil
		},
		OnStop: func(context.Context) error {
			cancel()
			return nil
		},
	})
}

// viewStories runs one unattended playback session over the configured
// owner's stories and logs how it went. Errors here are not fatal to the
// process; the health endpoint and retention sweep keep running.
func viewStories(ctx context.Context, log logger.Logger, cfg *config.Config,
	ig *instagramsource.IgSource, manager *session.Manager) {
	// Items carry numeric owner ids, so the viewer must be the account's
	// numeric id for self-like and ownership checks to line up.
	viewer := ig.ViewerID()
	if viewer == "" {
		log.Warn("Viewer id unavailable, falling back to username", "username", cfg.Instagram.Username)
		viewer = cfg.Instagram.Username
	}

	ctrl, err := manager.Open(ctx, viewer, cfg.Instagram.ViewUser)
	if err != nil {
		log.Error("Failed to open viewing session", "owner", cfg.Instagram.ViewUser, "error", err)
		return
	}

	log.Info("Viewing session started", "owner", cfg.Instagram.ViewUser)

	select {
	case <-ctrl.Done():
		log.Info("Viewing session finished", "owner", cfg.Instagram.ViewUser)
	case <-ctx.Done():
		ctrl.End()
	}
}

func startHttpServer(log logger.Logger, cfg *config.Config) {
	http.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		healthCheckHandler(w, r, log)
	})

	log.Info(fmt.Sprintf("Starting server on :%d", cfg.App.Port))

	if err := http.ListenAndServe(fmt.Sprintf(":%d", cfg.App.Port), nil); err != nil {
		log.Error("Server failed to start", "error", err)
	}
}

func healthCheckHandler(w http.ResponseWriter, r *http.Request, log logger.Logger) {
	log.Debug("Health check request received", "method", r.Method, "url", r.URL.String())
	w.Header().Set("Content-Type", "text/plain")
	if _, err := w.Write([]byte("ok")); err != nil {
		log.Error("Failed to write response", "error", err)
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
