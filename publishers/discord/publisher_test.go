package discord

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nyaruka/null/v3"
	"github.com/nyaruka/petpost"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPublish(t *testing.T) {
	ctx := context.Background()

	var gotPayload string
	var gotImage []byte

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(10*1024*1024))
		gotPayload = r.FormValue("payload_json")

		file, header, err := r.FormFile("files[0]")
		require.NoError(t, err)
		defer file.Close()
		gotImage, err = io.ReadAll(file)
		require.NoError(t, err)
		assert.Equal(t, "1.png", header.Filename)

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"id": "12345", "channel_id": "67890"}`))
	}))
	defer server.Close()

	publisher := NewPublisher(server.URL)
	err := publisher.Publish(ctx, &petpost.Post{
		ImageKey:    "1.png",
		ImageBytes:  []byte("image bytes"),
		ContentType: "image/png",
		Title:       null.String("Rex"),
		Description: null.String("goodest boy"),
		Author:      "u123",
	})
	require.NoError(t, err)

	assert.Contains(t, gotPayload, `"title":"Rex"`)
	assert.Contains(t, gotPayload, `"description":"goodest boy"`)
	assert.Contains(t, gotPayload, `"attachment://1.png"`)
	assert.Contains(t, gotPayload, `"name":"u123"`)
	assert.Equal(t, []byte("image bytes"), gotImage)
}

func TestPublishErrors(t *testing.T) {
	ctx := context.Background()

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		w.Write([]byte(`{"message": "Invalid Webhook Token"}`))
	}))
	defer server.Close()

	publisher := NewPublisher(server.URL)
	err := publisher.Publish(ctx, &petpost.Post{ImageKey: "1.png", ImageBytes: []byte("image bytes")})
	assert.ErrorContains(t, err, "non-200")
}
