package aws

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

// PutBlob writes the given image bytes to our bucket under the given key
func (b *backend) PutBlob(ctx context.Context, key string, contentType string, body []byte) error {
	_, err := b.s3.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(b.config.S3Bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(body),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return fmt.Errorf("error putting object %s to s3: %w", key, err)
	}
	return nil
}

// GetBlob reads the image stored under the given key
func (b *backend) GetBlob(ctx context.Context, key string) (string, []byte, error) {
	resp, err := b.s3.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(b.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return "", nil, fmt.Errorf("error getting object %s from s3: %w", key, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", nil, fmt.Errorf("error reading object %s from s3: %w", key, err)
	}

	return aws.ToString(resp.ContentType), body, nil
}

// DeleteBlob removes the image stored under the given key, used to clean up orphans
// when a record write fails after its upload succeeded
func (b *backend) DeleteBlob(ctx context.Context, key string) error {
	_, err := b.s3.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(b.config.S3Bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("error deleting object %s from s3: %w", key, err)
	}
	return nil
}
