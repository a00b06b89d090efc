package petpost

import (
	"context"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"path/filepath"
	"time"

	"github.com/h2non/filetype"
	"github.com/nyaruka/gocommon/httpx"
)

const (
	maxFetchBodyBytes = 25 * 1024 * 1024
)

// HTTPFetcher fetches submitted files over HTTP
type HTTPFetcher struct {
	client *http.Client
}

// NewHTTPFetcher creates a new fetcher with its own timeout bounded client
func NewHTTPFetcher() *HTTPFetcher {
	return &HTTPFetcher{
		client: &http.Client{
			Transport: &http.Transport{MaxIdleConns: 10, IdleConnTimeout: 30 * time.Second},
			Timeout:   30 * time.Second,
		},
	}
}

// Fetch pulls down the resource at the given URL and works out what kind of file it is.
// We try the magic bytes of the body first, then the URL extension, then the
// Content-Type header. If none of those give us an extension the submission can't be
// stored and we fail with ErrUnsupportedContentType.
func (f *HTTPFetcher) Fetch(ctx context.Context, fileURL string) (*FetchedFile, error) {
	parsedURL, err := url.Parse(fileURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRetrievalFailed, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fileURL, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRetrievalFailed, err)
	}

	trace, err := httpx.DoTrace(f.client, req, nil, nil, maxFetchBodyBytes)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", ErrRetrievalFailed, err)
	}
	if trace.Response == nil || trace.Response.StatusCode/100 != 2 {
		return nil, fmt.Errorf("%w: got non-200 status fetching %s", ErrRetrievalFailed, fileURL)
	}

	body := trace.ResponseBody
	mimeType := ""
	extension := filepath.Ext(parsedURL.Path)
	if extension != "" {
		extension = extension[1:]
	}

	// first try getting our type from the first bytes of the body
	header := body
	if len(header) > 300 {
		header = header[:300]
	}
	fileType, _ := filetype.Match(header)
	if fileType != filetype.Unknown {
		mimeType = fileType.MIME.Value
		extension = fileType.Extension
	} else {
		// if that didn't work, try from our extension
		fileType = filetype.GetType(extension)
		if fileType != filetype.Unknown {
			mimeType = fileType.MIME.Value
			extension = fileType.Extension
		}
	}

	// still nothing, fall back to the content type header
	if mimeType == "" {
		mimeType, _, _ = mime.ParseMediaType(trace.Response.Header.Get("Content-Type"))
		if extension == "" {
			extensions, err := mime.ExtensionsByType(mimeType)
			if extensions == nil || err != nil {
				extension = ""
			} else {
				extension = extensions[0][1:]
			}
		}
	}

	if extension == "" {
		return nil, fmt.Errorf("%w: unable to infer extension for %s", ErrUnsupportedContentType, fileURL)
	}

	return &FetchedFile{ContentType: mimeType, Extension: extension, Body: body}, nil
}
