// Package auth stores Immich server credentials outside the config
// file: system keychain first, an encrypted file as fallback, plain
// environment variables as a last resort.
package auth

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"time"
)

// Server holds the credentials for one Immich server
type Server struct {
	// Name is the operator-chosen label, "default" when unset
	Name         string    `json:"name"`
	Endpoint     string    `json:"endpoint"`
	APIKey       string    `json:"api_key"`
	Insecure     bool      `json:"insecure,omitempty"`
	LastModified time.Time `json:"last_modified"`
}

// CredentialStore is the interface for storing and retrieving server
// credentials
type CredentialStore interface {
	Store(server *Server) error
	Retrieve(name string) (*Server, error)
	List() ([]*Server, error)
	Delete(name string) error
	Exists(name string) bool
}

// Manager handles credential storage with fallback mechanisms
type Manager struct {
	stores []CredentialStore
}

// NewManager creates a credential manager with the available backends
func NewManager() (*Manager, error) {
	var stores []CredentialStore

	keyringStore, err := NewKeyringStore()
	if err == nil {
		stores = append(stores, keyringStore)
	}

	configDir, err := getConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get config directory: %w", err)
	}

	encryptedStore, err := NewEncryptedFileStore(filepath.Join(configDir, "servers.enc"))
	if err != nil {
		return nil, fmt.Errorf("failed to create encrypted store: %w", err)
	}
	stores = append(stores, encryptedStore)

	stores = append(stores, NewEnvironmentStore())

	return &Manager{stores: stores}, nil
}

// Store saves credentials using the first store that accepts them
func (m *Manager) Store(server *Server) error {
	if server.Name == "" {
		server.Name = "default"
	}
	if server.Endpoint == "" {
		return errors.New("endpoint is required")
	}
	if server.APIKey == "" {
		return errors.New("API key is required")
	}

	server.LastModified = time.Now()

	var lastErr error
	for _, store := range m.stores {
		if err := store.Store(server); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}

	if lastErr != nil {
		return fmt.Errorf("failed to store credentials: %w", lastErr)
	}
	return errors.New("no available credential stores")
}

// Retrieve gets credentials from the first store that has them
func (m *Manager) Retrieve(name string) (*Server, error) {
	for _, store := range m.stores {
		if server, err := store.Retrieve(name); err == nil && server != nil {
			return server, nil
		}
	}
	return nil, fmt.Errorf("credentials not found for server: %s", name)
}

// RetrieveDefault gets the default server, preferring environment
// variables so CI and scripted runs override stored entries
func (m *Manager) RetrieveDefault() (*Server, error) {
	if envStore, ok := m.stores[len(m.stores)-1].(*EnvironmentStore); ok {
		if server, err := envStore.Retrieve(""); err == nil && server != nil {
			return server, nil
		}
	}

	if server, err := m.Retrieve("default"); err == nil {
		return server, nil
	}

	servers, err := m.List()
	if err == nil && len(servers) > 0 {
		return servers[0], nil
	}

	return nil, errors.New("no credentials found")
}

// List returns all stored servers across every backend, most recently
// modified entry winning on name collisions
func (m *Manager) List() ([]*Server, error) {
	serverMap := make(map[string]*Server)

	for _, store := range m.stores {
		servers, err := store.List()
		if err != nil {
			continue
		}
		for _, server := range servers {
			if existing, ok := serverMap[server.Name]; !ok || server.LastModified.After(existing.LastModified) {
				serverMap[server.Name] = server
			}
		}
	}

	var result []*Server
	for _, server := range serverMap {
		result = append(result, server)
	}

	return result, nil
}

// Delete removes credentials from all stores
func (m *Manager) Delete(name string) error {
	var deleted bool
	var lastErr error

	for _, store := range m.stores {
		if err := store.Delete(name); err == nil {
			deleted = true
		} else {
			lastErr = err
		}
	}

	if !deleted && lastErr != nil {
		return fmt.Errorf("failed to delete credentials: %w", lastErr)
	}
	if !deleted {
		return fmt.Errorf("credentials not found for server: %s", name)
	}

	return nil
}

// getConfigDir returns the configuration directory path
func getConfigDir() (string, error) {
	var configDir string

	switch runtime.GOOS {
	case "darwin":
		home, err := os.UserHomeDir()
		if err != nil {
			return "", err
		}
		configDir = filepath.Join(home, "Library", "Application Support", "immichporter")
	case "windows":
		configDir = filepath.Join(os.Getenv("APPDATA"), "immichporter")
	default:
		if xdgConfig := os.Getenv("XDG_CONFIG_HOME"); xdgConfig != "" {
			configDir = filepath.Join(xdgConfig, "immichporter")
		} else {
			home, err := os.UserHomeDir()
			if err != nil {
				return "", err
			}
			configDir = filepath.Join(home, ".config", "immichporter")
		}
	}

	if err := os.MkdirAll(configDir, 0700); err != nil {
		return "", fmt.Errorf("failed to create config directory: %w", err)
	}

	return configDir, nil
}

// Sanitize returns a copy of the server with the API key masked
func Sanitize(server *Server) *Server {
	if server == nil {
		return nil
	}

	return &Server{
		Name:         server.Name,
		Endpoint:     server.Endpoint,
		APIKey:       maskString(server.APIKey),
		Insecure:     server.Insecure,
		LastModified: server.LastModified,
	}
}

// maskString masks all but the first 4 and last 4 characters
func maskString(s string) string {
	if len(s) <= 8 {
		return "********"
	}
	return s[:4] + "..." + s[len(s)-4:]
}

// Errors
var (
	ErrCredentialsNotFound = errors.New("credentials not found")
	ErrInvalidCredentials  = errors.New("invalid credentials")
	ErrStoreUnavailable    = errors.New("credential store unavailable")
)
