package petpost

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync/atomic"
	"time"

	"github.com/nyaruka/null/v3"
)

var stagingSeq atomic.Int64

// Pipeline moves a newly submitted item through retrieval, durable upload, record
// creation and local cleanup. There is no real transaction across those stages, the one
// invariant we hold is that a record is never written before its image is durable.
type Pipeline struct {
	fetcher    Fetcher
	items      ItemStore
	blobs      BlobStore
	stagingDir string
}

// NewPipeline creates a new submission pipeline staging files under the given directory
func NewPipeline(fetcher Fetcher, items ItemStore, blobs BlobStore, stagingDir string) *Pipeline {
	return &Pipeline{fetcher: fetcher, items: items, blobs: blobs, stagingDir: stagingDir}
}

// EnsureStagingDir checks that our staging directory is present and writable
func (p *Pipeline) EnsureStagingDir() error {
	if _, err := os.Stat(p.stagingDir); os.IsNotExist(err) {
		return os.MkdirAll(p.stagingDir, 0770)
	} else if err != nil {
		return err
	}
	return nil
}

// Submit fetches the file at the given URL, uploads it to blob storage and creates the
// item record for it, returning the key of the new item. Each submission stages into
// its own subdirectory so concurrent submissions can't see each other's files.
func (p *Pipeline) Submit(ctx context.Context, sourceURL, submitterID string, label, note null.String) (*ItemRef, error) {
	log := slog.With("comp", "pipeline", "url", sourceURL, "submitter", submitterID)

	// stage 1: retrieve the file into our own staging subdirectory
	fetched, err := p.fetcher.Fetch(ctx, sourceURL)
	if err != nil {
		return nil, err
	}

	// staged names combine a timestamp with a process wide sequence so submissions
	// landing in the same instant still get distinct directories and keys
	name := fmt.Sprintf("%d-%d", time.Now().UnixNano(), stagingSeq.Add(1))
	stageDir := filepath.Join(p.stagingDir, name)
	if err := os.MkdirAll(stageDir, 0770); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRetrievalFailed, err)
	}

	staged := filepath.Join(stageDir, fmt.Sprintf("%s.%s", name, fetched.Extension))
	if err := os.WriteFile(staged, fetched.Body, 0640); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRetrievalFailed, err)
	}

	// stage 2: push the staged file to blob storage, the staged file name becomes the key
	key, err := p.uploadStaged(ctx, stageDir, fetched.ContentType)
	if err != nil {
		return nil, err
	}

	// stage 3: write the item record, cleaning up the orphaned blob if we can't
	item := &Item{ItemID: key, SubmitterID: submitterID, Posted: false, Label: label, Note: note}
	if err := p.items.PutItem(ctx, item); err != nil {
		log.Error("error writing item record, removing uploaded image", "key", key, "error", err)

		if derr := p.blobs.DeleteBlob(ctx, key); derr != nil {
			log.Error("error removing orphaned image", "key", key, "error", derr)
		}
		return nil, fmt.Errorf("%w: %s", ErrMetadataWriteFailed, err)
	}

	// stage 4: remove our staging subdirectory, a failure here doesn't fail the
	// submission since the record and image are already durable
	if err := os.RemoveAll(stageDir); err != nil {
		log.Error("error cleaning staged file", "dir", stageDir, "error", err)
	}

	log.Info("submission complete", "key", key)
	ref := item.Ref()
	return &ref, nil
}

// uploadStaged uploads the single file staged in the given directory, returning the blob
// key it was stored under. Finding anything other than exactly one file there means a
// submission invariant has been broken and the submission is dead.
func (p *Pipeline) uploadStaged(ctx context.Context, stageDir string, contentType string) (string, error) {
	entries, err := os.ReadDir(stageDir)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBlobUploadFailed, err)
	}
	if len(entries) == 0 {
		return "", ErrEmptyStagingArea
	}
	if len(entries) > 1 {
		return "", ErrMultipleStagedFiles
	}

	name := entries[0].Name()
	body, err := os.ReadFile(filepath.Join(stageDir, name))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrBlobUploadFailed, err)
	}

	if err := p.blobs.PutBlob(ctx, name, contentType, body); err != nil {
		return "", fmt.Errorf("%w: %s", ErrBlobUploadFailed, err)
	}

	return name, nil
}
