package auth

import (
	"os"
	"time"
)

// EnvironmentStore implements CredentialStore using environment
// variables, read-only
type EnvironmentStore struct{}

// NewEnvironmentStore creates an environment-based credential store
func NewEnvironmentStore() *EnvironmentStore {
	return &EnvironmentStore{}
}

// Store is not supported for environment variables
func (e *EnvironmentStore) Store(server *Server) error {
	return ErrStoreUnavailable
}

// Retrieve gets credentials from environment variables
func (e *EnvironmentStore) Retrieve(name string) (*Server, error) {
	endpoint := os.Getenv("IMMICH_ENDPOINT")
	apiKey := os.Getenv("IMMICH_API_KEY")

	if endpoint == "" || apiKey == "" {
		return nil, ErrCredentialsNotFound
	}

	if name == "" {
		name = "default"
	}

	return &Server{
		Name:         name,
		Endpoint:     endpoint,
		APIKey:       apiKey,
		Insecure:     os.Getenv("IMMICH_INSECURE") == "1",
		LastModified: time.Now(),
	}, nil
}

// List returns a single server if environment variables are set
func (e *EnvironmentStore) List() ([]*Server, error) {
	server, err := e.Retrieve("")
	if err != nil {
		return []*Server{}, nil
	}
	return []*Server{server}, nil
}

// Delete is not supported for environment variables
func (e *EnvironmentStore) Delete(name string) error {
	return ErrStoreUnavailable
}

// Exists checks if environment credentials exist
func (e *EnvironmentStore) Exists(name string) bool {
	return os.Getenv("IMMICH_ENDPOINT") != "" && os.Getenv("IMMICH_API_KEY") != ""
}
