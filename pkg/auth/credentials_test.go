package auth

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(name string) *Server {
	return &Server{
		Name:     name,
		Endpoint: "http://immich.local:2283",
		APIKey:   "0123456789abcdef0123456789abcdef",
	}
}

func TestManagerStoreAndRetrieve(t *testing.T) {
	manager, _ := NewMockManager()

	require.NoError(t, manager.Store(testServer("home")))

	server, err := manager.Retrieve("home")
	require.NoError(t, err)
	assert.Equal(t, "http://immich.local:2283", server.Endpoint)
	assert.False(t, server.LastModified.IsZero())
}

func TestManagerStoreValidation(t *testing.T) {
	manager, _ := NewMockManager()

	err := manager.Store(&Server{Name: "x", APIKey: "abc"})
	assert.ErrorContains(t, err, "endpoint is required")

	err = manager.Store(&Server{Name: "x", Endpoint: "http://immich.local"})
	assert.ErrorContains(t, err, "API key is required")
}

func TestManagerStoreDefaultsName(t *testing.T) {
	manager, mock := NewMockManager()

	server := testServer("")
	require.NoError(t, manager.Store(server))

	assert.True(t, mock.Exists("default"))
}

func TestManagerFallsBackAcrossStores(t *testing.T) {
	broken := NewMockStore()
	broken.StoreError = ErrStoreUnavailable
	broken.RetrieveError = ErrStoreUnavailable
	working := NewMockStore()
	manager := NewMockManagerWithStores(broken, working)

	require.NoError(t, manager.Store(testServer("home")))
	assert.Equal(t, 1, working.Count())

	server, err := manager.Retrieve("home")
	require.NoError(t, err)
	assert.Equal(t, "home", server.Name)
}

func TestManagerListPrefersNewest(t *testing.T) {
	older := NewMockStore()
	newer := NewMockStore()

	stale := testServer("home")
	stale.APIKey = "stale-key-stale-key-stale-key-00"
	stale.LastModified = time.Now().Add(-time.Hour)
	require.NoError(t, older.Store(stale))

	fresh := testServer("home")
	fresh.LastModified = time.Now()
	require.NoError(t, newer.Store(fresh))

	manager := NewMockManagerWithStores(older, newer)
	servers, err := manager.List()
	require.NoError(t, err)
	require.Len(t, servers, 1)
	assert.Equal(t, fresh.APIKey, servers[0].APIKey)
}

func TestManagerDelete(t *testing.T) {
	manager, mock := NewMockManager()
	require.NoError(t, manager.Store(testServer("home")))

	require.NoError(t, manager.Delete("home"))
	assert.Equal(t, 0, mock.Count())

	err := manager.Delete("home")
	assert.Error(t, err)
}

func TestEnvironmentStore(t *testing.T) {
	t.Setenv("IMMICH_ENDPOINT", "http://immich.local:2283")
	t.Setenv("IMMICH_API_KEY", "env-key")
	t.Setenv("IMMICH_INSECURE", "1")

	store := NewEnvironmentStore()
	server, err := store.Retrieve("")
	require.NoError(t, err)
	assert.Equal(t, "default", server.Name)
	assert.Equal(t, "env-key", server.APIKey)
	assert.True(t, server.Insecure)

	assert.ErrorIs(t, store.Store(server), ErrStoreUnavailable)
	assert.ErrorIs(t, store.Delete("default"), ErrStoreUnavailable)
}

func TestEnvironmentStoreMissing(t *testing.T) {
	t.Setenv("IMMICH_ENDPOINT", "")
	t.Setenv("IMMICH_API_KEY", "")

	_, err := NewEnvironmentStore().Retrieve("")
	assert.ErrorIs(t, err, ErrCredentialsNotFound)
}

func TestEncryptedFileStoreRoundTrip(t *testing.T) {
	t.Setenv("IMPORTER_PASSPHRASE", "test-passphrase")
	path := filepath.Join(t.TempDir(), "servers.enc")

	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	require.NoError(t, store.Store(testServer("home")))
	require.NoError(t, store.Store(testServer("backup")))

	server, err := store.Retrieve("home")
	require.NoError(t, err)
	assert.Equal(t, "http://immich.local:2283", server.Endpoint)

	servers, err := store.List()
	require.NoError(t, err)
	assert.Len(t, servers, 2)

	require.NoError(t, store.Delete("backup"))
	assert.False(t, store.Exists("backup"))
	assert.True(t, store.Exists("home"))
}

func TestEncryptedFileStoreWrongPassphrase(t *testing.T) {
	path := filepath.Join(t.TempDir(), "servers.enc")

	t.Setenv("IMPORTER_PASSPHRASE", "first")
	store, err := NewEncryptedFileStore(path)
	require.NoError(t, err)
	require.NoError(t, store.Store(testServer("home")))

	t.Setenv("IMPORTER_PASSPHRASE", "second")
	store2, err := NewEncryptedFileStore(path)
	require.NoError(t, err)

	_, err = store2.Retrieve("home")
	assert.Error(t, err)
}

func TestSanitizeMasksAPIKey(t *testing.T) {
	server := testServer("home")
	masked := Sanitize(server)

	assert.NotEqual(t, server.APIKey, masked.APIKey)
	assert.Contains(t, masked.APIKey, "...")
	assert.Equal(t, server.Endpoint, masked.Endpoint)

	short := &Server{Name: "x", APIKey: "tiny"}
	assert.Equal(t, "********", Sanitize(short).APIKey)
}
