package services

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

// ObjectUploader PUTs raw bytes to a presigned object storage URL.
type ObjectUploader struct {
	httpClient *http.Client
}

func NewObjectUploader(client *http.Client) *ObjectUploader {
	if client == nil {
		client = &http.Client{Timeout: 2 * time.Minute}
	}
	return &ObjectUploader{httpClient: client}
}

func (u *ObjectUploader) Put(ctx context.Context, uploadURL, contentType string, content []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPut, uploadURL, bytes.NewReader(content))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", contentType)
	req.ContentLength = int64(len(content))

	resp, err := u.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("upload: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return fmt.Errorf("upload failed: %s %s", resp.Status, strings.TrimSpace(string(b)))
	}
	return nil
}
