package petpost_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nyaruka/petpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFetch(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/dog.png":
			w.Header().Set("Content-Type", "image/png")
			w.Write(testPNG)
		case "/mystery":
			// no magic bytes, no extension, but a usable content type header
			w.Header().Set("Content-Type", "image/jpeg")
			w.Write([]byte("abcdef"))
		case "/opaque":
			w.Header().Set("Content-Type", "application/x-mystery-meat")
			w.Write([]byte("abcdef"))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	}))
	defer server.Close()

	fetcher := petpost.NewHTTPFetcher()

	// magic bytes win
	file, err := fetcher.Fetch(ctx, server.URL+"/dog.png")
	require.NoError(t, err)
	assert.Equal(t, "image/png", file.ContentType)
	assert.Equal(t, "png", file.Extension)
	assert.Equal(t, testPNG, file.Body)

	// content type header as last resort
	file, err = fetcher.Fetch(ctx, server.URL+"/mystery")
	require.NoError(t, err)
	assert.Equal(t, "image/jpeg", file.ContentType)
	assert.NotEqual(t, "", file.Extension)

	// nothing to infer an extension from
	_, err = fetcher.Fetch(ctx, server.URL+"/opaque")
	assert.ErrorIs(t, err, petpost.ErrUnsupportedContentType)

	// remote errors are retrieval failures
	_, err = fetcher.Fetch(ctx, server.URL+"/gone.png")
	assert.ErrorIs(t, err, petpost.ErrRetrievalFailed)
}
