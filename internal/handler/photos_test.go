package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/homehubapp/homehub/internal/photos"
)

type fakePhotos struct {
	images photos.ImagesResult
	albums photos.AlbumsResult
	gotReq *photos.Request
}

func (f *fakePhotos) Images(_ context.Context, req photos.Request) photos.ImagesResult {
	f.gotReq = &req
	return f.images
}

func (f *fakePhotos) Albums(context.Context) photos.AlbumsResult {
	return f.albums
}

func TestPhotosImages(t *testing.T) {
	svc := &fakePhotos{images: photos.ImagesResult{
		Provider: photos.Provider,
		Images:   []photos.Image{{ID: "m1", URL: "http://img/1=w1600-h900"}},
		Count:    1,
	}}
	h := NewPhotosHandler(svc, nil)

	rec := httptest.NewRecorder()
	h.Google(rec, httptest.NewRequest("GET", "/api/photos/google?albumId=alb-1&pageSize=25&mode=album", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if svc.gotReq == nil || svc.gotReq.AlbumID != "alb-1" || svc.gotReq.PageSize != 25 || svc.gotReq.Mode != "album" {
		t.Errorf("request = %+v, want query overrides passed through", svc.gotReq)
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["provider"] != "google_photos" || resp["count"] != float64(1) {
		t.Errorf("resp = %v", resp)
	}
	if got := rec.Header().Get("Cache-Control"); got != "s-maxage=300, stale-while-revalidate=600" {
		t.Errorf("cache-control = %q", got)
	}
}

func TestPhotosDegradedStillOK(t *testing.T) {
	msg := "missing env vars: GOOGLE_CLIENT_ID"
	svc := &fakePhotos{images: photos.ImagesResult{
		Provider: photos.Provider,
		Images:   []photos.Image{},
		Degraded: true,
		Err:      &msg,
	}}
	h := NewPhotosHandler(svc, nil)

	rec := httptest.NewRecorder()
	h.Google(rec, httptest.NewRequest("GET", "/api/photos/google", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, degraded payloads still answer 200", rec.Code)
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	if resp["degraded"] != true || resp["error"] == nil {
		t.Errorf("resp = %v", resp)
	}
}

func TestPhotosAlbumsAction(t *testing.T) {
	svc := &fakePhotos{albums: photos.AlbumsResult{
		Provider: photos.Provider,
		Albums:   []photos.Album{{ID: "a1", Title: "Family"}},
		Count:    1,
	}}
	h := NewPhotosHandler(svc, nil)

	rec := httptest.NewRecorder()
	h.Google(rec, httptest.NewRequest("GET", "/api/photos/google?action=albums", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}

	var resp map[string]any
	json.NewDecoder(rec.Body).Decode(&resp)
	albums, _ := resp["albums"].([]any)
	if len(albums) != 1 {
		t.Errorf("resp = %v", resp)
	}
	if got := rec.Header().Get("Cache-Control"); got != "s-maxage=60, stale-while-revalidate=120" {
		t.Errorf("cache-control = %q", got)
	}
}
