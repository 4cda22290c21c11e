package storage

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/apresai/symposium/internal/discussion"
)

// S3API is the subset of the S3 client used by Exporter.
type S3API interface {
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// Exporter uploads finished video scripts to S3 as JSON and Markdown.
type Exporter struct {
	client  S3API
	bucket  string
	baseURL string // e.g. "https://cdn.example.com"; empty means s3://bucket
}

func NewExporter(client S3API, bucket, baseURL string) *Exporter {
	return &Exporter{client: client, bucket: bucket, baseURL: strings.TrimRight(baseURL, "/")}
}

// Export writes scripts/<id>.json and scripts/<id>.md and returns the location of
// the Markdown file.
func (e *Exporter) Export(ctx context.Context, v *VideoScript) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal video script: %w", err)
	}
	jsonKey := "scripts/" + v.ID + ".json"
	if err := e.put(ctx, jsonKey, data, "application/json"); err != nil {
		return "", err
	}

	mdKey := "scripts/" + v.ID + ".md"
	md := []byte(discussion.VideoScriptMarkdown(&v.Script))
	if err := e.put(ctx, mdKey, md, "text/markdown; charset=utf-8"); err != nil {
		return "", err
	}
	return e.url(mdKey), nil
}

func (e *Exporter) put(ctx context.Context, key string, body []byte, contentType string) error {
	_, err := e.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        &e.bucket,
		Key:           &key,
		Body:          bytes.NewReader(body),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(body))),
	})
	if err != nil {
		return fmt.Errorf("upload %s to s3: %w", key, err)
	}
	return nil
}

func (e *Exporter) url(key string) string {
	if e.baseURL == "" {
		return "s3://" + e.bucket + "/" + key
	}
	return e.baseURL + "/" + key
}
