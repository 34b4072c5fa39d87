package services

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

type stubPresigner struct {
	requests []models.PresignRequest
	failFor  map[string]bool
}

func (s *stubPresigner) PresignUpload(ctx context.Context, req models.PresignRequest) (models.PresignResponse, error) {
	s.requests = append(s.requests, req)
	if s.failFor[req.Filename] {
		return models.PresignResponse{}, &APIError{StatusCode: 500, Message: "Failed to get upload URL"}
	}
	return models.PresignResponse{
		UploadURL: "https://bucket/put/" + req.Filename,
		FileURL:   "https://bucket/files/" + req.Filename,
	}, nil
}

type stubUploader struct {
	puts    []string
	failFor map[string]bool
}

func (s *stubUploader) Put(ctx context.Context, url, contentType string, content []byte) error {
	s.puts = append(s.puts, fmt.Sprintf("%s %s %d", url, contentType, len(content)))
	if s.failFor[url] {
		return errors.New("Failed to upload file to S3")
	}
	return nil
}

func attachmentConfig() config.AttachmentConfig {
	return config.AttachmentConfig{
		Enabled:      true,
		MaxBytes:     10 * 1024 * 1024,
		AllowedTypes: []string{"application/pdf", "image/png"},
	}
}

func TestAttachmentPolicy(t *testing.T) {
	p := NewAttachmentPolicy(attachmentConfig())

	if err := p.Check("a.pdf", "application/pdf", 1024); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	err := p.Check("big.pdf", "application/pdf", 10*1024*1024+1)
	if !errors.Is(err, models.ErrFileTooLarge) {
		t.Fatalf("expected ErrFileTooLarge, got %v", err)
	}
	if err.Error() != "File big.pdf is too large. Maximum size is 10 MB." {
		t.Errorf("message = %q", err.Error())
	}

	err = p.Check("run.exe", "application/x-msdownload", 10)
	if !errors.Is(err, models.ErrUnsupportedFileType) {
		t.Fatalf("expected ErrUnsupportedFileType, got %v", err)
	}

	off := NewAttachmentPolicy(config.AttachmentConfig{})
	if err := off.Check("a.pdf", "application/pdf", 1); !errors.Is(err, models.ErrAttachmentsDisabled) {
		t.Fatalf("expected ErrAttachmentsDisabled, got %v", err)
	}
}

func TestAttachmentQueueSequentialWithIsolatedFailure(t *testing.T) {
	presign := &stubPresigner{}
	uploader := &stubUploader{failFor: map[string]bool{"https://bucket/put/two.pdf": true}}
	q := NewAttachmentQueue(NewAttachmentPolicy(attachmentConfig()), presign, uploader, nil)

	for _, name := range []string{"one.pdf", "two.pdf", "three.pdf"} {
		if _, err := q.Add(name, "application/pdf", []byte("data")); err != nil {
			t.Fatal(err)
		}
	}
	q.UploadPending(context.Background())

	if len(uploader.puts) != 3 {
		t.Fatalf("puts = %v", uploader.puts)
	}
	if uploader.puts[0] != "https://bucket/put/one.pdf application/pdf 4" {
		t.Errorf("first put = %q", uploader.puts[0])
	}

	files := q.Files()
	if files[0].State != FileUploaded || files[1].State != FileFailed || files[2].State != FileUploaded {
		t.Fatalf("states = %s %s %s", files[0].State, files[1].State, files[2].State)
	}
	if files[1].Error == "" {
		t.Error("failed file has no error")
	}
	if q.Ready() {
		t.Error("queue with a failed file is not ready")
	}

	got := q.Uploaded()
	if len(got) != 2 || got[0].URL != "https://bucket/files/one.pdf" || got[1].URL != "https://bucket/files/three.pdf" {
		t.Fatalf("uploaded = %+v", got)
	}

	// Retry only re-sends the failed file.
	uploader.failFor = nil
	if err := q.Retry(files[1].ID); err != nil {
		t.Fatal(err)
	}
	q.UploadPending(context.Background())
	if len(uploader.puts) != 4 || !q.Ready() {
		t.Fatalf("retry puts = %v, ready = %v", uploader.puts, q.Ready())
	}
	if got := q.Uploaded(); got[1].Filename != "two.pdf" {
		t.Fatalf("order not kept: %+v", got)
	}
}

func TestAttachmentQueuePresignFailure(t *testing.T) {
	presign := &stubPresigner{failFor: map[string]bool{"a.pdf": true}}
	uploader := &stubUploader{}
	q := NewAttachmentQueue(NewAttachmentPolicy(attachmentConfig()), presign, uploader, nil)
	f, _ := q.Add("a.pdf", "application/pdf", []byte("x"))
	q.UploadPending(context.Background())

	if len(uploader.puts) != 0 {
		t.Fatal("put attempted without a target")
	}
	if q.Files()[0].Error != "Failed to get upload URL" {
		t.Fatalf("error = %q", q.Files()[0].Error)
	}
	if err := q.Remove(f.ID); err != nil {
		t.Fatal(err)
	}
	if !q.Ready() {
		t.Fatal("empty queue must be ready")
	}
	if err := q.Remove(f.ID); !errors.Is(err, models.ErrFileNotFound) {
		t.Fatalf("expected ErrFileNotFound, got %v", err)
	}
}

func TestFormatFileSize(t *testing.T) {
	cases := map[int64]string{
		0:                "0 Bytes",
		500:              "500 Bytes",
		1024:             "1 KB",
		1536:             "1.5 KB",
		10 * 1024 * 1024: "10 MB",
		1234567:          "1.18 MB",
	}
	for in, want := range cases {
		if got := FormatFileSize(in); got != want {
			t.Errorf("FormatFileSize(%d) = %q, want %q", in, got, want)
		}
	}
}
