package petpost

import (
	"context"
	"fmt"
	"sync"
)

// MockBackend is a backend keeping everything in memory, used for testing the flows
// that sit on top of the stores
type MockBackend struct {
	mu    sync.Mutex
	items map[ItemRef]*Item
	blobs map[string]*mockBlob

	lockHeld bool

	// calls to SetPosted in order, for asserting on reset behavior
	postedSets []bool

	// errors to inject into specific operations
	ErrorOnPutItem   error
	ErrorOnPutBlob   error
	ErrorOnSetPosted error
	ErrorOnList      error
}

type mockBlob struct {
	contentType string
	body        []byte
}

// NewMockBackend creates a new empty mock backend
func NewMockBackend() *MockBackend {
	return &MockBackend{
		items: make(map[ItemRef]*Item),
		blobs: make(map[string]*mockBlob),
	}
}

func (b *MockBackend) Start() error { return nil }
func (b *MockBackend) Stop() error  { return nil }

func (b *MockBackend) GetItem(ctx context.Context, ref ItemRef) (*Item, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, found := b.items[ref]
	if !found {
		return nil, nil
	}
	cpy := *item
	return &cpy, nil
}

func (b *MockBackend) PutItem(ctx context.Context, item *Item) error {
	if b.ErrorOnPutItem != nil {
		return b.ErrorOnPutItem
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cpy := *item
	b.items[item.Ref()] = &cpy
	return nil
}

func (b *MockBackend) SetPosted(ctx context.Context, ref ItemRef, posted bool) error {
	if b.ErrorOnSetPosted != nil {
		return b.ErrorOnSetPosted
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.postedSets = append(b.postedSets, posted)

	item, found := b.items[ref]
	if !found {
		return fmt.Errorf("no such item %s", ref)
	}
	item.Posted = posted
	return nil
}

func (b *MockBackend) ListUnposted(ctx context.Context) ([]ItemRef, error) {
	return b.listByPosted(false)
}

func (b *MockBackend) ListPosted(ctx context.Context) ([]ItemRef, error) {
	return b.listByPosted(true)
}

func (b *MockBackend) listByPosted(posted bool) ([]ItemRef, error) {
	if b.ErrorOnList != nil {
		return nil, b.ErrorOnList
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	refs := make([]ItemRef, 0, len(b.items))
	for ref, item := range b.items {
		if item.Posted == posted {
			refs = append(refs, ref)
		}
	}
	return refs, nil
}

func (b *MockBackend) PutBlob(ctx context.Context, key string, contentType string, body []byte) error {
	if b.ErrorOnPutBlob != nil {
		return b.ErrorOnPutBlob
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.blobs[key] = &mockBlob{contentType: contentType, body: body}
	return nil
}

func (b *MockBackend) GetBlob(ctx context.Context, key string) (string, []byte, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	blob, found := b.blobs[key]
	if !found {
		return "", nil, fmt.Errorf("no such blob %s", key)
	}
	return blob.contentType, blob.body, nil
}

func (b *MockBackend) DeleteBlob(ctx context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.blobs, key)
	return nil
}

func (b *MockBackend) GrabCycleLock(ctx context.Context) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.lockHeld {
		return "", nil
	}
	b.lockHeld = true
	return "mock-lock", nil
}

func (b *MockBackend) ReleaseCycleLock(ctx context.Context, lock string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lockHeld = false
	return nil
}

func (b *MockBackend) Health() string { return "mock backend: OK" }

// BlobCount returns how many blobs the backend is holding
func (b *MockBackend) BlobCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.blobs)
}

// ItemCount returns how many item records the backend is holding
func (b *MockBackend) ItemCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.items)
}

// PostedSets returns the posted values passed to SetPosted in call order
func (b *MockBackend) PostedSets() []bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]bool{}, b.postedSets...)
}

// MockPublisher records the posts it is asked to publish
type MockPublisher struct {
	mu        sync.Mutex
	published []*Post

	Error error
}

func (p *MockPublisher) Publish(ctx context.Context, post *Post) error {
	if p.Error != nil {
		return p.Error
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, post)
	return nil
}

// Published returns the posts published so far
func (p *MockPublisher) Published() []*Post {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]*Post{}, p.published...)
}

// MockFetcher returns a canned file for any URL
type MockFetcher struct {
	File  *FetchedFile
	Error error
}

func (f *MockFetcher) Fetch(ctx context.Context, url string) (*FetchedFile, error) {
	if f.Error != nil {
		return nil, f.Error
	}
	return f.File, nil
}
