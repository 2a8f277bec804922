package instagramsource

import (
	"context"
	"fmt"
	"os"
	"strconv"

	"github.com/Davincible/goinsta/v3"
	"github.com/jonboulle/clockwork"
	"github.com/orgball2608/story-viewer-engine/internal/source"
	"github.com/orgball2608/story-viewer-engine/pkg/config"
	apperrors "github.com/orgball2608/story-viewer-engine/pkg/errors"
	"github.com/orgball2608/story-viewer-engine/pkg/logger"
	"github.com/orgball2608/story-viewer-engine/pkg/retry"
	"go.uber.org/fx"
)

type Opts struct {
	fx.In

	Config *config.Config
	Logger logger.Logger
	Clock  clockwork.Clock
}

// IgSource feeds viewing sessions from Instagram's story reels via goinsta.
type IgSource struct {
	Client *goinsta.Instagram
	Logger logger.Logger
	Config *config.Config
	Clock  clockwork.Clock
}

func New(opts Opts) *IgSource {
	client := goinsta.New(opts.Config.Instagram.Username, opts.Config.Instagram.Password)

	return &IgSource{
		Client: client,
		Logger: opts.Logger,
		Config: opts.Config,
		Clock:  opts.Clock,
	}
}

var _ source.Client = (*IgSource)(nil)

// Login connects to Instagram, preferring a saved session over a credential
// login. Credential logins retry with backoff; a failed session save is not
// fatal.
func (s *IgSource) Login(ctx context.Context) error {
	if err := s.reloadSession(); err == nil {
		s.Logger.Info("Logged in using existing Instagram session")
		return nil
	}

	s.Logger.Info("Attempting Instagram login with credentials")
	s.Client = goinsta.New(s.Config.Instagram.Username, s.Config.Instagram.Password)

	loginOperation := func() error {
		return s.Client.Login()
	}
	if err := retry.Do(ctx, s.Logger, "InstagramLogin", loginOperation, retry.DefaultConfig()); err != nil {
		return apperrors.WrapWithCode(err, "IG_LOGIN", "instagram login failed after retries")
	}

	if err := s.Client.Export(s.Config.Instagram.SessionPath); err != nil {
		s.Logger.Warn("Failed to save Instagram session", "error", err)
	}
	return nil
}

func (s *IgSource) reloadSession() error {
	if _, err := os.Stat(s.Config.Instagram.SessionPath); os.IsNotExist(err) {
		return fmt.Errorf("session file not found: %w", err)
	}

	client, err := goinsta.Import(s.Config.Instagram.SessionPath)
	if err != nil {
		return fmt.Errorf("failed to import session: %w", err)
	}
	if err := client.Account.Sync(); err != nil {
		return fmt.Errorf("saved session is stale: %w", err)
	}

	s.Client = client
	return nil
}

// ViewerID returns the logged-in account's numeric Instagram id, the same
// format story items carry in OwnerID. Empty before a successful login.
func (s *IgSource) ViewerID() string {
	if s.Client == nil || s.Client.Account == nil {
		return ""
	}
	return strconv.FormatInt(s.Client.Account.ID, 10)
}
