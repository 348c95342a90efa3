package catalog

import (
	"crypto/tls"
	"crypto/x509"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"

	"github.com/samber/lo"
	"github.com/supersonic-app/go-subsonic/subsonic"

	"sonicdeck/pkg/config"
	"sonicdeck/pkg/queue"
)

const (
	clientName = "sonicdeck"
	apiVersion = "1.15.0"
)

// Catalog is the remote music catalog. It lists tracks and produces the
// opaque stream locators the media sink fetches; playback logic never
// interprets them.
type Catalog struct {
	client   *subsonic.Client
	httpc    *http.Client
	baseUrl  string
	username string
	password string
	logger   *slog.Logger
}

func New(cfg *config.Config) (*Catalog, error) {
	pool, err := x509.SystemCertPool()
	if err != nil {
		return nil, err
	}

	if cfg.CustomCa != "" {
		caPEM, err := os.ReadFile(cfg.CustomCa)
		if err != nil {
			return nil, err
		}

		ok := pool.AppendCertsFromPEM(caPEM)
		if !ok {
			return nil, fmt.Errorf("Error decoding pem certificate from custom CA file '%s'", cfg.CustomCa)
		}
	}

	httpClient := &http.Client{
		Transport: &http.Transport{
			TLSClientConfig: &tls.Config{
				RootCAs: pool,
			},
		},
	}

	sc := &subsonic.Client{
		Client:       httpClient,
		BaseUrl:      cfg.ServerUrl,
		User:         cfg.Username,
		ClientName:   clientName,
		PasswordAuth: true,
	}

	if err := sc.Authenticate(cfg.Password); err != nil {
		return nil, fmt.Errorf("authenticating to %s: %w", cfg.ServerUrl, err)
	}

	return &Catalog{
		client:   sc,
		httpc:    httpClient,
		baseUrl:  cfg.ServerUrl,
		username: cfg.Username,
		password: cfg.Password,
		logger:   slog.Default().With("component", "catalog"),
	}, nil
}

// HTTPClient returns the underlying client, shared with the media sink so
// stream fetches reuse the same TLS configuration.
func (c *Catalog) HTTPClient() *http.Client {
	return c.httpc
}

// PlaylistTracks fetches a playlist and maps its entries to queue tracks.
func (c *Catalog) PlaylistTracks(id string) ([]queue.Track, error) {
	pl, err := c.client.GetPlaylist(id)
	if err != nil {
		return nil, fmt.Errorf("fetching playlist %s: %w", id, err)
	}

	tracks := lo.Map(pl.Entry, func(e *subsonic.Child, _ int) queue.Track {
		return c.trackFromEntry(e)
	})
	c.logger.Debug("playlist fetched", "playlist_id", id, "tracks", len(tracks))
	return tracks, nil
}

func (c *Catalog) trackFromEntry(e *subsonic.Child) queue.Track {
	return queue.Track{
		ID:              e.ID,
		Title:           e.Title,
		Artist:          e.Artist,
		Album:           e.Album,
		DurationSeconds: e.Duration,
		Locator:         c.streamURL(e.ID),
	}
}

// streamURL builds the opaque locator for a track.
func (c *Catalog) streamURL(trackID string) string {
	reqUrl, err := url.Parse(c.baseUrl)
	if err != nil {
		return ""
	}

	reqUrl.Path = "/rest/stream"
	q := reqUrl.Query()
	q.Add("u", c.username)
	q.Add("p", c.password)
	q.Add("v", apiVersion)
	q.Add("c", clientName)
	q.Add("id", trackID)
	reqUrl.RawQuery = q.Encode()
	return reqUrl.String()
}

// NowPlaying reports the track as currently playing, without a play-count
// submission. Failures are only logged; playback does not depend on it.
func (c *Catalog) NowPlaying(trackID string) {
	reqUrl, err := url.Parse(c.baseUrl)
	if err != nil {
		c.logger.Warn("now playing report failed", "error", err)
		return
	}

	reqUrl.Path = "/rest/scrobble"
	q := reqUrl.Query()
	q.Add("u", c.username)
	q.Add("p", c.password)
	q.Add("v", apiVersion)
	q.Add("c", clientName)
	q.Add("id", trackID)
	q.Add("submission", "false")
	reqUrl.RawQuery = q.Encode()

	resp, err := c.httpc.Get(reqUrl.String())
	if err != nil {
		c.logger.Warn("now playing report failed", "track_id", trackID, "error", err)
		return
	}

	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)
	c.logger.Debug("now playing reported", "track_id", trackID, "code", resp.StatusCode)
}
