package audiopreview

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/orgball2608/story-viewer-engine/pkg/logger"
)

const itunesSearchURL = "https://itunes.apple.com/search"

// ITunesResolver resolves preview URLs through the public iTunes search API.
// It is the default upstream behind the session cache.
type ITunesResolver struct {
	httpClient *http.Client
	logger     logger.Logger
}

func NewITunesResolver(log logger.Logger) *ITunesResolver {
	return &ITunesResolver{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		logger:     log,
	}
}

var _ Resolver = (*ITunesResolver)(nil)

type itunesResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		TrackName  string `json:"trackName"`
		ArtistName string `json:"artistName"`
		PreviewURL string `json:"previewUrl"`
	} `json:"results"`
}

func (r *ITunesResolver) Resolve(ctx context.Context, title, artist string) (string, error) {
	q := url.Values{}
	q.Set("term", title+" "+artist)
	q.Set("media", "music")
	q.Set("entity", "song")
	q.Set("limit", "5")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, itunesSearchURL+"?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build preview search request: %w", err)
	}

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("preview search request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("preview search returned status %d", resp.StatusCode)
	}

	var parsed itunesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("failed to decode preview search response: %w", err)
	}

	for _, result := range parsed.Results {
		if result.PreviewURL != "" {
			return result.PreviewURL, nil
		}
	}

	r.logger.Debug("No audio preview found", "title", title, "artist", artist)
	return "", nil
}
