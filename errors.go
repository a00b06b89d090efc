package petpost

import "errors"

var (
	// ErrStoreUnavailable is returned when the item store can't complete a read or write
	// after the client's own retries have been exhausted
	ErrStoreUnavailable = errors.New("item store unavailable")

	// ErrEmptySelection is returned when a selection is attempted on an empty set of
	// items, callers should reset the cycle first
	ErrEmptySelection = errors.New("no items to select from")

	// ErrNoContent is returned when the store holds no records at all, even after a
	// reset. Nothing can be posted this cycle.
	ErrNoContent = errors.New("no content available to post")

	// ErrStaleSelection is returned when a selected item disappears between selection
	// and the detail fetch. Never retried, a retry risks posting twice.
	ErrStaleSelection = errors.New("selected item no longer exists")

	// ErrRetrievalFailed is returned when the submitted URL can't be fetched
	ErrRetrievalFailed = errors.New("unable to retrieve submitted file")

	// ErrUnsupportedContentType is returned when we can't infer a file extension for a
	// submitted file
	ErrUnsupportedContentType = errors.New("unsupported content type")

	// ErrEmptyStagingArea means the staging directory for a submission held no file at
	// upload time, which indicates a bug rather than a user error
	ErrEmptyStagingArea = errors.New("no file in staging area")

	// ErrMultipleStagedFiles means the staging directory for a submission held more than
	// one file at upload time, which indicates a bug rather than a user error
	ErrMultipleStagedFiles = errors.New("more than one file in staging area")

	// ErrBlobUploadFailed is returned when the upload to blob storage fails
	ErrBlobUploadFailed = errors.New("unable to upload image")

	// ErrMetadataWriteFailed is returned when the item record write fails after a
	// successful blob upload
	ErrMetadataWriteFailed = errors.New("unable to write item record")
)
