package config

import (
	"fmt"
	"log"
	"sync"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	App struct {
		Env       string `env:"APP_ENV" env-default:"development"`
		Port      int    `env:"APP_PORT" env-default:"8080"`
		SentryUrl string `env:"SENTRY_URL"`
	}
	Postgres struct {
		Port    int    `env:"POSTGRES_PORT"`
		Host    string `env:"POSTGRES_HOST"`
		User    string `env:"POSTGRES_USER"`
		Pass    string `env:"POSTGRES_PASS"`
		Name    string `env:"POSTGRES_NAME"`
		SslMode string `env:"POSTGRES_SSL_MODE" env-default:"disable"`
	}
	Telegram struct {
		BotToken string `env:"TELEGRAM_TOKEN"`
		Channel  string `env:"TELEGRAM_CHANNEL"`
	}
	Instagram struct {
		Username    string `env:"INSTAGRAM_USER"`
		Password    string `env:"INSTAGRAM_PASS"`
		SessionPath string `env:"INSTAGRAM_SESSION_PATH" env-default:"./goinsta-session"`
		ViewUser    string `env:"INSTAGRAM_VIEW_USER"`
		PollSeconds int    `env:"INSTAGRAM_POLL_SECONDS" env-default:"30"`
	}
	Playback struct {
		ImageDurationMs int  `env:"PLAYBACK_IMAGE_DURATION_MS" env-default:"10000"`
		VideoDurationMs int  `env:"PLAYBACK_VIDEO_DURATION_MS" env-default:"15000"`
		TickIntervalMs  int  `env:"PLAYBACK_TICK_INTERVAL_MS" env-default:"16"`
		HoldDelayMs     int  `env:"PLAYBACK_HOLD_DELAY_MS" env-default:"200"`
		Muted           bool `env:"PLAYBACK_MUTED" env-default:"false"`
	}
	Media struct {
		MpvPath    string `env:"MEDIA_MPV_PATH" env-default:"mpv"`
		SocketPath string `env:"MEDIA_MPV_SOCKET" env-default:"/tmp/story-viewer-mpv.sock"`
	}
}

var (
	once sync.Once
	cfg  *Config
)

func New() (*Config, error) {
	once.Do(func() {
		cfg = &Config{}
		if err := cleanenv.ReadEnv(cfg); err != nil {
			help, _ := cleanenv.GetDescription(cfg, nil)
			log.Fatalf("Failed to read configuration: %v\n%v", err, help)
		}
	})
	return cfg, nil
}

// GetDSN returns the postgres connection string used by goose and the migration CLI.
func (c *Config) GetDSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.Postgres.User,
		c.Postgres.Pass,
		c.Postgres.Host,
		c.Postgres.Port,
		c.Postgres.Name,
		c.Postgres.SslMode,
	)
}
