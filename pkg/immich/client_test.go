package immich

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"immichporter/pkg/config"
	errs "immichporter/pkg/errors"
	"immichporter/pkg/logger"
)

func newTestClient(serverURL string) *Client {
	return NewClient(&config.ImmichConfig{
		Endpoint: serverURL,
		APIKey:   "test-key",
		Timeout:  5 * time.Second,
	}, logger.GetLogger())
}

func TestNormalizeEndpoint(t *testing.T) {
	assert.Equal(t, "http://immich.local/api", NormalizeEndpoint("http://immich.local"))
	assert.Equal(t, "http://immich.local/api", NormalizeEndpoint("http://immich.local/"))
	assert.Equal(t, "http://immich.local/api", NormalizeEndpoint("http://immich.local/api"))
	assert.Equal(t, "http://immich.local/api", NormalizeEndpoint("http://immich.local/api/"))
}

func TestPing(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/server/ping", r.URL.Path)
		assert.Equal(t, "test-key", r.Header.Get("x-api-key"))
		json.NewEncoder(w).Encode(map[string]string{"res": "pong"})
	}))
	defer server.Close()

	err := newTestClient(server.URL).Ping(context.Background())
	assert.NoError(t, err)
}

func TestPingRejectedKey(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	err := newTestClient(server.URL).Ping(context.Background())

	require.Error(t, err)
	var typed *errs.Error
	require.ErrorAs(t, err, &typed)
	assert.Equal(t, errs.ErrorTypeAuth, typed.Type)
	assert.Equal(t, http.StatusUnauthorized, typed.Code)
}

func TestGetAllAlbumsSortedAndLimited(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/albums", r.URL.Path)
		json.NewEncoder(w).Encode([]Album{
			{ID: "3", AlbumName: "zebra"},
			{ID: "1", AlbumName: "Alps"},
			{ID: "2", AlbumName: "beach"},
		})
	}))
	defer server.Close()

	albums, err := newTestClient(server.URL).GetAllAlbums(context.Background(), nil, 2)

	require.NoError(t, err)
	require.Len(t, albums, 2)
	assert.Equal(t, "Alps", albums[0].AlbumName)
	assert.Equal(t, "beach", albums[1].AlbumName)
}

func TestGetAllAlbumsSharedFilter(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "true", r.URL.Query().Get("shared"))
		json.NewEncoder(w).Encode([]Album{})
	}))
	defer server.Close()

	shared := true
	_, err := newTestClient(server.URL).GetAllAlbums(context.Background(), &shared, 0)
	assert.NoError(t, err)
}

func TestSearchAssets(t *testing.T) {
	after := time.Date(2021, 8, 12, 8, 15, 0, 0, time.UTC)
	before := time.Date(2021, 8, 12, 12, 15, 0, 0, time.UTC)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/search/metadata", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		var req metadataSearch
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		assert.Equal(t, "IMG_2041.jpg", req.OriginalFileName)
		require.NotNil(t, req.TakenAfter)
		assert.True(t, req.TakenAfter.Equal(after))
		require.NotNil(t, req.TakenBefore)
		assert.True(t, req.TakenBefore.Equal(before))

		json.NewEncoder(w).Encode(map[string]interface{}{
			"assets": map[string]interface{}{
				"items": []Asset{{ID: "asset-1", OriginalFileName: "IMG_2041.jpg"}},
				"total": 1,
				"count": 1,
			},
		})
	}))
	defer server.Close()

	assets, err := newTestClient(server.URL).SearchAssets(context.Background(), "IMG_2041.jpg", &after, &before)

	require.NoError(t, err)
	require.Len(t, assets, 1)
	assert.Equal(t, "asset-1", assets[0].ID)
}

func TestRequestRetriesServerErrors(t *testing.T) {
	attempts := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts++
		if attempts == 1 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"res": "pong"})
	}))
	defer server.Close()

	err := newTestClient(server.URL).Ping(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 2, attempts)
}

func TestTakenWindowFullTimestamp(t *testing.T) {
	taken := time.Date(2021, 8, 12, 10, 15, 0, 0, time.Local)

	after, before := TakenWindow(taken)

	assert.Equal(t, taken.Add(-2*time.Hour), after)
	assert.Equal(t, taken.Add(2*time.Hour), before)
}

func TestTakenWindowDateOnly(t *testing.T) {
	taken := time.Date(2021, 8, 12, 0, 0, 0, 0, time.Local)

	after, before := TakenWindow(taken)

	assert.Equal(t, taken, after)
	assert.Equal(t, taken.AddDate(0, 0, 1), before)
}
