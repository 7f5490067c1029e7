package photos

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func testService(t *testing.T, cfg Config, h http.HandlerFunc) *Service {
	t.Helper()
	server := httptest.NewServer(h)
	t.Cleanup(server.Close)
	s := NewService(cfg, nil)
	s.bases = bases{token: server.URL, library: server.URL}
	return s
}

func fullConfig() Config {
	return Config{ClientID: "id", ClientSecret: "secret", RefreshToken: "refresh"}
}

func tokenHandler(t *testing.T, w http.ResponseWriter, r *http.Request) {
	t.Helper()
	if err := r.ParseForm(); err != nil {
		t.Errorf("parse token form: %v", err)
	}
	if got := r.Form.Get("grant_type"); got != "refresh_token" {
		t.Errorf("grant_type = %q", got)
	}
	if got := r.Form.Get("refresh_token"); got != "refresh" {
		t.Errorf("refresh_token = %q", got)
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]any{"access_token": "tok-1", "expires_in": 3600})
}

func TestImagesMissingCredentials(t *testing.T) {
	s := NewService(Config{ClientID: "id"}, nil)

	res := s.Images(context.Background(), Request{})
	if !res.Degraded || res.Count != 0 {
		t.Fatalf("result = %+v, want degraded empty payload", res)
	}
	if res.Err == nil || !strings.Contains(*res.Err, "GOOGLE_CLIENT_SECRET") ||
		!strings.Contains(*res.Err, "GOOGLE_REFRESH_TOKEN") {
		t.Errorf("err = %v, want the missing vars named", res.Err)
	}
	if strings.Contains(strPtrVal(res.Err), "GOOGLE_CLIENT_ID") {
		t.Error("configured vars must not be reported missing")
	}
}

func TestImagesFromLibrary(t *testing.T) {
	s := testService(t, fullConfig(), func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenHandler(t, w, r)
		case "/v1/mediaItems":
			if got := r.Header.Get("Authorization"); got != "Bearer tok-1" {
				t.Errorf("authorization = %q", got)
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"mediaItems": []map[string]any{
					{"id": "m1", "baseUrl": "http://img/1", "mimeType": "image/jpeg",
						"filename": "a.jpg", "mediaMetadata": map[string]any{"width": "4000", "height": "3000"}},
					{"id": "m2", "baseUrl": "http://img/2", "mimeType": "video/mp4"},
					{"id": "m3", "mimeType": "image/png"},
				},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
			w.WriteHeader(http.StatusNotFound)
		}
	})

	res := s.Images(context.Background(), Request{})
	if res.Degraded {
		t.Fatalf("degraded: %v", strPtrVal(res.Err))
	}
	// Videos and items without a base URL are dropped.
	if res.Count != 1 || len(res.Images) != 1 {
		t.Fatalf("count = %d, images = %+v", res.Count, res.Images)
	}
	img := res.Images[0]
	if img.URL != "http://img/1=w1600-h900" {
		t.Errorf("url = %q, want display-size suffix", img.URL)
	}
	if img.Width == nil || *img.Width != 4000 {
		t.Errorf("width = %v", img.Width)
	}
}

func TestImagesAlbumModePaginates(t *testing.T) {
	searches := 0
	s := testService(t, fullConfig(), func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenHandler(t, w, r)
		case "/v1/mediaItems:search":
			searches++
			var body map[string]any
			json.NewDecoder(r.Body).Decode(&body)
			if body["albumId"] != "alb-1" {
				t.Errorf("albumId = %v", body["albumId"])
			}
			page := map[string]any{
				"mediaItems": []map[string]any{
					{"id": "m1", "baseUrl": "http://img/1", "mimeType": "image/jpeg"},
				},
			}
			if searches == 1 {
				if body["pageToken"] != nil {
					t.Errorf("first page carried a token: %v", body["pageToken"])
				}
				page["nextPageToken"] = "next"
			} else if body["pageToken"] != "next" {
				t.Errorf("second page token = %v", body["pageToken"])
			}
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(page)
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	res := s.Images(context.Background(), Request{AlbumID: "alb-1", Mode: "album"})
	if res.Degraded {
		t.Fatalf("degraded: %v", strPtrVal(res.Err))
	}
	if searches != 2 || res.Count != 2 {
		t.Errorf("searches = %d, count = %d, want pagination followed", searches, res.Count)
	}
}

func TestImagesUpstreamFailureDegrades(t *testing.T) {
	s := testService(t, fullConfig(), func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/token" {
			tokenHandler(t, w, r)
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	res := s.Images(context.Background(), Request{})
	if !res.Degraded || res.Err == nil {
		t.Fatalf("result = %+v, want degraded with inline error", res)
	}
	if res.Count != 0 || len(res.Images) != 0 {
		t.Errorf("images = %+v, want empty", res.Images)
	}
}

func TestAccessTokenCached(t *testing.T) {
	exchanges := 0
	s := testService(t, fullConfig(), func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			exchanges++
			tokenHandler(t, w, r)
		case "/v1/mediaItems":
			json.NewEncoder(w).Encode(map[string]any{})
		}
	})

	s.Images(context.Background(), Request{})
	s.Images(context.Background(), Request{})
	if exchanges != 1 {
		t.Errorf("exchanges = %d, want the token reused within its lifetime", exchanges)
	}
}

func TestAuthFailureInvalidatesToken(t *testing.T) {
	exchanges := 0
	s := testService(t, fullConfig(), func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			exchanges++
			tokenHandler(t, w, r)
		case "/v1/mediaItems":
			w.WriteHeader(http.StatusUnauthorized)
		}
	})

	res := s.Images(context.Background(), Request{})
	if !res.Degraded {
		t.Fatal("expected degraded result")
	}

	s.Images(context.Background(), Request{})
	if exchanges != 2 {
		t.Errorf("exchanges = %d, want the cached token dropped after a 401", exchanges)
	}
}

func TestAlbumsListing(t *testing.T) {
	s := testService(t, fullConfig(), func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/token":
			tokenHandler(t, w, r)
		case "/v1/albums":
			w.Header().Set("Content-Type", "application/json")
			json.NewEncoder(w).Encode(map[string]any{
				"albums": []map[string]any{
					{"id": "a1", "title": "Family", "mediaItemsCount": "12", "coverPhotoBaseUrl": "http://img/c"},
					{"id": "a2"},
				},
			})
		default:
			t.Errorf("unexpected path %q", r.URL.Path)
		}
	})

	res := s.Albums(context.Background())
	if res.Degraded {
		t.Fatalf("degraded: %v", strPtrVal(res.Err))
	}
	if res.Count != 2 {
		t.Fatalf("count = %d", res.Count)
	}
	if res.Albums[0].MediaItemsCount != 12 || res.Albums[0].CoverPhotoBaseURL == nil {
		t.Errorf("album = %+v", res.Albums[0])
	}
	if res.Albums[1].Title != "Untitled" {
		t.Errorf("title = %q, want placeholder for untitled albums", res.Albums[1].Title)
	}
}

func strPtrVal(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
