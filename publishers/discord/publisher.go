package discord

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/buger/jsonparser"
	"github.com/nyaruka/gocommon/httpx"
	"github.com/nyaruka/gocommon/jsonx"
	"github.com/nyaruka/null/v3"
	"github.com/nyaruka/petpost"
)

const maxResponseBytes = 1024 * 1024

// Publisher delivers posts to a Discord channel through a webhook. The image is
// attached to the message and referenced from an embed so the channel renders it
// inline with the pet's name and note.
type Publisher struct {
	webhookURL string
	client     *http.Client
}

// NewPublisher creates a new publisher posting to the given webhook URL
func NewPublisher(webhookURL string) *Publisher {
	return &Publisher{
		webhookURL: webhookURL,
		client: &http.Client{
			Transport: &http.Transport{MaxIdleConns: 10, IdleConnTimeout: 30 * time.Second},
			Timeout:   30 * time.Second,
		},
	}
}

type embedAuthor struct {
	Name string `json:"name"`
}

type embedImage struct {
	URL string `json:"url"`
}

type embed struct {
	Title       null.String  `json:"title,omitempty"`
	Description null.String  `json:"description,omitempty"`
	Author      *embedAuthor `json:"author,omitempty"`
	Image       embedImage   `json:"image"`
}

type payload struct {
	Embeds []embed `json:"embeds"`
}

// Publish sends the given post to our webhook and confirms the channel accepted it
func (p *Publisher) Publish(ctx context.Context, post *petpost.Post) error {
	body := &bytes.Buffer{}
	form := multipart.NewWriter(body)

	e := embed{
		Title:       post.Title,
		Description: post.Description,
		Image:       embedImage{URL: fmt.Sprintf("attachment://%s", post.ImageKey)},
	}
	if post.Author != "" {
		e.Author = &embedAuthor{Name: post.Author}
	}

	if err := form.WriteField("payload_json", string(jsonx.MustMarshal(payload{Embeds: []embed{e}}))); err != nil {
		return fmt.Errorf("error writing payload field: %w", err)
	}

	part, err := form.CreateFormFile("files[0]", post.ImageKey)
	if err != nil {
		return fmt.Errorf("error creating image part: %w", err)
	}
	if _, err := part.Write(post.ImageBytes); err != nil {
		return fmt.Errorf("error writing image part: %w", err)
	}
	if err := form.Close(); err != nil {
		return fmt.Errorf("error closing form: %w", err)
	}

	// wait=true makes the webhook return the created message so we know it was accepted
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.webhookURL+"?wait=true", body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", form.FormDataContentType())

	trace, err := httpx.DoTrace(p.client, req, nil, nil, maxResponseBytes)
	if err != nil {
		return fmt.Errorf("error calling webhook: %w", err)
	}
	if trace.Response == nil {
		return fmt.Errorf("got no response calling webhook")
	}
	if trace.Response.StatusCode/100 != 2 {
		return fmt.Errorf("got non-200 status %d calling webhook", trace.Response.StatusCode)
	}

	messageID, err := jsonparser.GetString(trace.ResponseBody, "id")
	if err != nil {
		return fmt.Errorf("unable to read message id from webhook response: %w", err)
	}

	slog.Info("post published", "comp", "publisher", "key", post.ImageKey, "message_id", messageID)
	return nil
}
