package petpost

import (
	"context"
	"fmt"
	"strings"
)

// ItemStore is the durable key/attribute store holding one record per item
type ItemStore interface {
	// GetItem returns the item with the given key, or nil if it doesn't exist
	GetItem(ctx context.Context, ref ItemRef) (*Item, error)

	// PutItem writes a new full record
	PutItem(ctx context.Context, item *Item) error

	// SetPosted flips the posted flag of a single record. Setting it to the value it
	// already has is a no-op.
	SetPosted(ctx context.Context, ref ItemRef, posted bool) error

	// ListUnposted returns the keys of all records not yet shown in the current cycle
	ListUnposted(ctx context.Context) ([]ItemRef, error)

	// ListPosted returns the keys of all records already shown in the current cycle
	ListPosted(ctx context.Context) ([]ItemRef, error)
}

// BlobStore is the durable binary object store holding our images
type BlobStore interface {
	PutBlob(ctx context.Context, key string, contentType string, body []byte) error
	GetBlob(ctx context.Context, key string) (string, []byte, error)
	DeleteBlob(ctx context.Context, key string) error
}

// Backend is the part of petpost that deals with durable storage and cross process
// coordination. There is one long lived backend per process, injected into everything
// that needs it.
type Backend interface {
	Start() error
	Stop() error

	ItemStore
	BlobStore

	// GrabCycleLock tries to grab the lock that serializes posting runs, returning the
	// lock value or empty string if it is held elsewhere
	GrabCycleLock(ctx context.Context) (string, error)

	// ReleaseCycleLock releases the lock grabbed with the given value
	ReleaseCycleLock(ctx context.Context, lock string) error

	Health() string
}

// FetchedFile is a remote resource pulled down by a Fetcher
type FetchedFile struct {
	ContentType string
	Extension   string
	Body        []byte
}

// Fetcher fetches a remote resource by URL
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*FetchedFile, error)
}

// Publisher delivers a post to our channel
type Publisher interface {
	Publish(ctx context.Context, post *Post) error
}

// BackendConstructorFunc defines a function to create a particular backend type
type BackendConstructorFunc func(*Config) Backend

var registeredBackends = make(map[string]BackendConstructorFunc)

// NewBackend creates the type of backend passed in
func NewBackend(config *Config) (Backend, error) {
	backendFunc, found := registeredBackends[strings.ToLower(config.Backend)]
	if !found {
		return nil, fmt.Errorf("no such backend type: '%s'", config.Backend)
	}
	return backendFunc(config), nil
}

// RegisterBackend adds a new backend, called by individual backends in their init() func
func RegisterBackend(backendType string, constructorFunc BackendConstructorFunc) {
	registeredBackends[strings.ToLower(backendType)] = constructorFunc
}
