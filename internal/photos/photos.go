// Package photos is the server-side Google Photos proxy for the dashboard
// slideshow. The browser never sees OAuth credentials: the server holds a
// long-lived refresh token, exchanges it for short-lived access tokens, and
// hands out only image URLs. Failures degrade to an empty payload rather
// than an error status so the slideshow falls back gracefully.
package photos

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

const (
	callTimeout = 10 * time.Second
	// tokenExpiryBuffer is subtracted from the reported token lifetime so
	// a token is refreshed before it can expire mid-page.
	tokenExpiryBuffer = 2 * time.Minute

	defaultPageSize = 50
	maxItemPages    = 5
	maxAlbumPages   = 10
)

// Provider identifies the payload source for the dashboard.
const Provider = "google_photos"

// Config holds the OAuth credentials and fetch defaults. Credentials
// missing means the service runs degraded and reports which vars are
// unset.
type Config struct {
	ClientID     string
	ClientSecret string
	RefreshToken string
	AlbumID      string
	PageSize     int
	FetchMode    string // "album" or "library"; empty picks by AlbumID
}

// bases are the Google endpoints, replaceable in tests.
type bases struct {
	token   string
	library string
}

func defaultBases() bases {
	return bases{
		token:   "https://oauth2.googleapis.com",
		library: "https://photoslibrary.googleapis.com",
	}
}

// Image is one slideshow entry.
type Image struct {
	URL       string  `json:"url"`
	Width     *int    `json:"width"`
	Height    *int    `json:"height"`
	MimeType  string  `json:"mimeType"`
	ID        string  `json:"id"`
	Filename  *string `json:"filename"`
	CreatedAt *string `json:"createdAt"`
}

// Album is one entry of the album listing used by the settings UI.
type Album struct {
	ID                string  `json:"id"`
	Title             string  `json:"title"`
	MediaItemsCount   int     `json:"mediaItemsCount"`
	CoverPhotoBaseURL *string `json:"coverPhotoBaseUrl"`
}

// ImagesResult is the images payload. Degraded results still carry the
// full shape with an inline error.
type ImagesResult struct {
	Provider  string    `json:"provider"`
	Images    []Image   `json:"images"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt"`
	Degraded  bool      `json:"degraded"`
	Err       *string   `json:"error"`
}

// AlbumsResult is the album-listing payload.
type AlbumsResult struct {
	Provider  string    `json:"provider"`
	Albums    []Album   `json:"albums"`
	Count     int       `json:"count"`
	FetchedAt time.Time `json:"fetchedAt"`
	Degraded  bool      `json:"degraded"`
	Err       *string   `json:"error"`
}

// Request carries the per-call overrides from query parameters; zero
// values fall back to the configured defaults.
type Request struct {
	AlbumID  string
	PageSize int
	Mode     string
}

// Service proxies the Google Photos Library API.
type Service struct {
	cfg    Config
	bases  bases
	client *resty.Client
	logger *slog.Logger

	mu          sync.Mutex
	token       string
	tokenExpiry time.Time
}

func NewService(cfg Config, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.PageSize <= 0 {
		cfg.PageSize = defaultPageSize
	}
	return &Service{
		cfg:    cfg,
		bases:  defaultBases(),
		client: resty.New().SetTimeout(callTimeout),
		logger: logger,
	}
}

// missingCredentials names the unset credential vars, empty when complete.
func (s *Service) missingCredentials() []string {
	var missing []string
	if s.cfg.ClientID == "" {
		missing = append(missing, "GOOGLE_CLIENT_ID")
	}
	if s.cfg.ClientSecret == "" {
		missing = append(missing, "GOOGLE_CLIENT_SECRET")
	}
	if s.cfg.RefreshToken == "" {
		missing = append(missing, "GOOGLE_REFRESH_TOKEN")
	}
	return missing
}

// Images fetches slideshow images, from the album when one is selected and
// from the whole library otherwise. Any failure is reported inline with an
// empty list.
func (s *Service) Images(ctx context.Context, req Request) ImagesResult {
	result := ImagesResult{Provider: Provider, Images: []Image{}, FetchedAt: time.Now().UTC()}

	if missing := s.missingCredentials(); len(missing) > 0 {
		s.logger.Warn("google photos not configured", "missing", strings.Join(missing, ", "))
		result.Degraded = true
		msg := "missing env vars: " + strings.Join(missing, ", ")
		result.Err = &msg
		return result
	}

	albumID := req.AlbumID
	if albumID == "" {
		albumID = s.cfg.AlbumID
	}
	pageSize := req.PageSize
	if pageSize <= 0 {
		pageSize = s.cfg.PageSize
	}
	mode := req.Mode
	if mode == "" {
		mode = s.cfg.FetchMode
	}
	if mode == "" {
		if albumID != "" {
			mode = "album"
		} else {
			mode = "library"
		}
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		return s.degradedImages(result, err)
	}

	var items []mediaItem
	if mode == "album" && albumID != "" {
		items, err = s.albumItems(ctx, token, albumID, pageSize)
	} else {
		items, err = s.libraryItems(ctx, token, pageSize)
	}
	if err != nil {
		return s.degradedImages(result, err)
	}

	result.Images = normalizeItems(items)
	result.Count = len(result.Images)
	return result
}

// Albums lists the account's albums for the settings UI.
func (s *Service) Albums(ctx context.Context) AlbumsResult {
	result := AlbumsResult{Provider: Provider, Albums: []Album{}, FetchedAt: time.Now().UTC()}

	if missing := s.missingCredentials(); len(missing) > 0 {
		result.Degraded = true
		msg := "missing env vars: " + strings.Join(missing, ", ")
		result.Err = &msg
		return result
	}

	token, err := s.accessToken(ctx)
	if err != nil {
		s.invalidateTokenOnAuthError(err)
		s.logger.Error("album listing failed", "error", err)
		result.Degraded = true
		msg := err.Error()
		result.Err = &msg
		return result
	}

	albums, err := s.fetchAlbums(ctx, token)
	if err != nil {
		s.invalidateTokenOnAuthError(err)
		s.logger.Error("album listing failed", "error", err)
		result.Degraded = true
		msg := err.Error()
		result.Err = &msg
		return result
	}

	result.Albums = albums
	result.Count = len(albums)
	return result
}

func (s *Service) degradedImages(result ImagesResult, err error) ImagesResult {
	s.invalidateTokenOnAuthError(err)
	s.logger.Error("google photos fetch failed", "error", err)
	result.Degraded = true
	msg := err.Error()
	result.Err = &msg
	return result
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	ExpiresIn   int    `json:"expires_in"`
}

// accessToken returns a cached access token or exchanges the refresh token
// for a fresh one.
func (s *Service) accessToken(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.token != "" && time.Now().Before(s.tokenExpiry.Add(-tokenExpiryBuffer)) {
		return s.token, nil
	}

	var tr tokenResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/x-www-form-urlencoded").
		SetBody(url.Values{
			"client_id":     {s.cfg.ClientID},
			"client_secret": {s.cfg.ClientSecret},
			"refresh_token": {s.cfg.RefreshToken},
			"grant_type":    {"refresh_token"},
		}.Encode()).
		SetResult(&tr).
		Post(s.bases.token + "/token")
	if err != nil {
		return "", fmt.Errorf("token exchange: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token exchange: HTTP %d: %s", resp.StatusCode(), truncate(resp.Body()))
	}
	if tr.AccessToken == "" {
		return "", fmt.Errorf("token exchange: empty access token")
	}

	expiresIn := tr.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}
	s.token = tr.AccessToken
	s.tokenExpiry = time.Now().Add(time.Duration(expiresIn) * time.Second)
	return s.token, nil
}

// invalidateTokenOnAuthError drops the cached token after auth failures so
// the next call re-exchanges instead of retrying a revoked token.
func (s *Service) invalidateTokenOnAuthError(err error) {
	msg := err.Error()
	if !strings.Contains(msg, "401") && !strings.Contains(msg, "403") &&
		!strings.Contains(msg, "token exchange") {
		return
	}
	s.mu.Lock()
	s.token = ""
	s.tokenExpiry = time.Time{}
	s.mu.Unlock()
}

type mediaItem struct {
	ID            string `json:"id"`
	BaseURL       string `json:"baseUrl"`
	MimeType      string `json:"mimeType"`
	Filename      string `json:"filename"`
	MediaMetadata struct {
		Width        string `json:"width"`
		Height       string `json:"height"`
		CreationTime string `json:"creationTime"`
	} `json:"mediaMetadata"`
}

type mediaItemsPage struct {
	MediaItems    []mediaItem `json:"mediaItems"`
	NextPageToken string      `json:"nextPageToken"`
}

func (s *Service) albumItems(ctx context.Context, token, albumID string, pageSize int) ([]mediaItem, error) {
	var items []mediaItem
	pageToken := ""
	for page := 0; page < maxItemPages && len(items) < pageSize; page++ {
		body := map[string]any{
			"albumId":  albumID,
			"pageSize": min(100, pageSize-len(items)),
		}
		if pageToken != "" {
			body["pageToken"] = pageToken
		}

		var pg mediaItemsPage
		resp, err := s.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token).
			SetBody(body).
			SetResult(&pg).
			Post(s.bases.library + "/v1/mediaItems:search")
		if err != nil {
			return nil, fmt.Errorf("mediaItems search: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("mediaItems search: HTTP %d: %s", resp.StatusCode(), truncate(resp.Body()))
		}

		items = append(items, pg.MediaItems...)
		pageToken = pg.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return items, nil
}

func (s *Service) libraryItems(ctx context.Context, token string, pageSize int) ([]mediaItem, error) {
	var items []mediaItem
	pageToken := ""
	for page := 0; page < maxItemPages && len(items) < pageSize; page++ {
		req := s.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token).
			SetQueryParam("pageSize", strconv.Itoa(min(100, pageSize-len(items))))
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}

		var pg mediaItemsPage
		resp, err := req.SetResult(&pg).Get(s.bases.library + "/v1/mediaItems")
		if err != nil {
			return nil, fmt.Errorf("mediaItems list: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("mediaItems list: HTTP %d: %s", resp.StatusCode(), truncate(resp.Body()))
		}

		items = append(items, pg.MediaItems...)
		pageToken = pg.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return items, nil
}

type albumsPage struct {
	Albums []struct {
		ID                string `json:"id"`
		Title             string `json:"title"`
		MediaItemsCount   string `json:"mediaItemsCount"`
		CoverPhotoBaseURL string `json:"coverPhotoBaseUrl"`
	} `json:"albums"`
	NextPageToken string `json:"nextPageToken"`
}

func (s *Service) fetchAlbums(ctx context.Context, token string) ([]Album, error) {
	albums := []Album{}
	pageToken := ""
	for page := 0; page < maxAlbumPages; page++ {
		req := s.client.R().
			SetContext(ctx).
			SetHeader("Authorization", "Bearer "+token).
			SetQueryParam("pageSize", "50")
		if pageToken != "" {
			req.SetQueryParam("pageToken", pageToken)
		}

		var pg albumsPage
		resp, err := req.SetResult(&pg).Get(s.bases.library + "/v1/albums")
		if err != nil {
			return nil, fmt.Errorf("albums list: %w", err)
		}
		if resp.IsError() {
			return nil, fmt.Errorf("albums list: HTTP %d: %s", resp.StatusCode(), truncate(resp.Body()))
		}

		for _, a := range pg.Albums {
			title := a.Title
			if title == "" {
				title = "Untitled"
			}
			count, _ := strconv.Atoi(a.MediaItemsCount)
			album := Album{ID: a.ID, Title: title, MediaItemsCount: count}
			if a.CoverPhotoBaseURL != "" {
				cover := a.CoverPhotoBaseURL
				album.CoverPhotoBaseURL = &cover
			}
			albums = append(albums, album)
		}
		pageToken = pg.NextPageToken
		if pageToken == "" {
			break
		}
	}
	return albums, nil
}

// normalizeItems keeps images with a usable base URL and rewrites them to
// the slideshow's display size.
func normalizeItems(items []mediaItem) []Image {
	images := []Image{}
	for _, item := range items {
		if !strings.HasPrefix(item.MimeType, "image/") || item.BaseURL == "" {
			continue
		}
		img := Image{
			URL:      item.BaseURL + "=w1600-h900",
			MimeType: item.MimeType,
			ID:       item.ID,
		}
		if item.Filename != "" {
			name := item.Filename
			img.Filename = &name
		}
		if w, err := strconv.Atoi(item.MediaMetadata.Width); err == nil {
			img.Width = &w
		}
		if h, err := strconv.Atoi(item.MediaMetadata.Height); err == nil {
			img.Height = &h
		}
		if item.MediaMetadata.CreationTime != "" {
			created := item.MediaMetadata.CreationTime
			img.CreatedAt = &created
		}
		images = append(images, img)
	}
	return images
}

func truncate(b []byte) string {
	s := strings.TrimSpace(string(b))
	if len(s) > 300 {
		return s[:300]
	}
	return s
}
