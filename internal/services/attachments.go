package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strconv"

	"github.com/google/uuid"

	"paydesk/internal/config"
	"paydesk/internal/models"
)

var errUploadTarget = errors.New("Failed to get upload URL")

type FileState string

const (
	FilePending   FileState = "pending"
	FileUploading FileState = "uploading"
	FileUploaded  FileState = "uploaded"
	FileFailed    FileState = "failed"
)

// UploadableFile is an attachment of the payment draft.
type UploadableFile struct {
	ID          string    `json:"id"`
	Filename    string    `json:"filename"`
	ContentType string    `json:"content_type"`
	Size        int64     `json:"size"`
	SizeLabel   string    `json:"size_label"`
	State       FileState `json:"state"`
	URL         string    `json:"url,omitempty"`
	Error       string    `json:"error,omitempty"`

	content []byte
}

// RejectedFileError explains why a file was not added.
type RejectedFileError struct {
	Filename string
	Reason   error
	MaxBytes int64
}

func (e *RejectedFileError) Error() string {
	if e.Reason == models.ErrFileTooLarge {
		return fmt.Sprintf("File %s is too large. Maximum size is %s.", e.Filename, FormatFileSize(e.MaxBytes))
	}
	return fmt.Sprintf("File %s has an unsupported format.", e.Filename)
}

func (e *RejectedFileError) Unwrap() error { return e.Reason }

type AttachmentPolicy struct {
	Enabled  bool
	MaxBytes int64
	allowed  map[string]bool
}

func NewAttachmentPolicy(cfg config.AttachmentConfig) AttachmentPolicy {
	return AttachmentPolicy{Enabled: cfg.Enabled, MaxBytes: cfg.MaxBytes, allowed: toSet(cfg.AllowedTypes)}
}

func (p AttachmentPolicy) Check(filename, contentType string, size int64) error {
	if !p.Enabled {
		return models.ErrAttachmentsDisabled
	}
	if p.MaxBytes > 0 && size > p.MaxBytes {
		return &RejectedFileError{Filename: filename, Reason: models.ErrFileTooLarge, MaxBytes: p.MaxBytes}
	}
	if !p.allowed[contentType] {
		return &RejectedFileError{Filename: filename, Reason: models.ErrUnsupportedFileType}
	}
	return nil
}

type Presigner interface {
	PresignUpload(ctx context.Context, req models.PresignRequest) (models.PresignResponse, error)
}

type Uploader interface {
	Put(ctx context.Context, uploadURL, contentType string, content []byte) error
}

// AttachmentQueue holds the draft's files and uploads them one at a time.
type AttachmentQueue struct {
	policy   AttachmentPolicy
	presign  Presigner
	uploader Uploader
	logger   *slog.Logger
	files    []*UploadableFile
}

func NewAttachmentQueue(policy AttachmentPolicy, presign Presigner, uploader Uploader, logger *slog.Logger) *AttachmentQueue {
	if logger == nil {
		logger = slog.Default()
	}
	return &AttachmentQueue{policy: policy, presign: presign, uploader: uploader, logger: logger}
}

// Add validates the file and queues it as pending.
func (q *AttachmentQueue) Add(filename, contentType string, content []byte) (UploadableFile, error) {
	size := int64(len(content))
	if err := q.policy.Check(filename, contentType, size); err != nil {
		return UploadableFile{}, err
	}
	f := &UploadableFile{
		ID:          uuid.NewString(),
		Filename:    filename,
		ContentType: contentType,
		Size:        size,
		SizeLabel:   FormatFileSize(size),
		State:       FilePending,
		content:     content,
	}
	q.files = append(q.files, f)
	return *f, nil
}

func (q *AttachmentQueue) Remove(id string) error {
	for i, f := range q.files {
		if f.ID == id {
			q.files = append(q.files[:i], q.files[i+1:]...)
			return nil
		}
	}
	return models.ErrFileNotFound
}

// Retry moves a failed file back to pending.
func (q *AttachmentQueue) Retry(id string) error {
	f := q.find(id)
	if f == nil {
		return models.ErrFileNotFound
	}
	if f.State == FileFailed {
		f.State = FilePending
		f.Error = ""
	}
	return nil
}

// UploadPending uploads every file not yet uploaded, strictly in order. A
// failure is recorded on its file and the loop moves on.
func (q *AttachmentQueue) UploadPending(ctx context.Context) {
	for _, f := range q.files {
		if f.State == FileUploaded {
			continue
		}
		f.State = FileUploading
		url, err := q.upload(ctx, f)
		if err != nil {
			f.State = FileFailed
			f.Error = err.Error()
			q.logger.Warn("attachment upload failed", "file", f.Filename, "err", err)
			continue
		}
		f.State = FileUploaded
		f.URL = url
		f.Error = ""
	}
}

func (q *AttachmentQueue) upload(ctx context.Context, f *UploadableFile) (string, error) {
	target, err := q.presign.PresignUpload(ctx, models.PresignRequest{
		Filename: f.Filename,
		Filetype: f.ContentType,
		Filesize: f.Size,
	})
	if err != nil {
		return "", err
	}
	if target.UploadURL == "" {
		return "", errUploadTarget
	}
	if err := q.uploader.Put(ctx, target.UploadURL, f.ContentType, f.content); err != nil {
		return "", err
	}
	return target.FileURL, nil
}

// Ready reports whether every queued file is uploaded.
func (q *AttachmentQueue) Ready() bool {
	for _, f := range q.files {
		if f.State != FileUploaded {
			return false
		}
	}
	return true
}

// Uploaded returns the uploaded files as payment attachments, in queue order.
func (q *AttachmentQueue) Uploaded() []models.Attachment {
	out := []models.Attachment{}
	for _, f := range q.files {
		if f.State == FileUploaded {
			out = append(out, models.Attachment{Filename: f.Filename, URL: f.URL, Size: f.Size, Type: f.ContentType})
		}
	}
	return out
}

func (q *AttachmentQueue) Files() []UploadableFile {
	out := make([]UploadableFile, 0, len(q.files))
	for _, f := range q.files {
		out = append(out, *f)
	}
	return out
}

func (q *AttachmentQueue) Reset() { q.files = nil }

func (q *AttachmentQueue) find(id string) *UploadableFile {
	for _, f := range q.files {
		if f.ID == id {
			return f
		}
	}
	return nil
}

var sizeUnits = []string{"Bytes", "KB", "MB", "GB"}

// FormatFileSize renders a byte count for display, e.g. "1.5 MB".
func FormatFileSize(bytes int64) string {
	if bytes <= 0 {
		return "0 Bytes"
	}
	i := int(math.Floor(math.Log(float64(bytes)) / math.Log(1024)))
	if i >= len(sizeUnits) {
		i = len(sizeUnits) - 1
	}
	v := float64(bytes) / math.Pow(1024, float64(i))
	v = math.Round(v*100) / 100
	return strconv.FormatFloat(v, 'f', -1, 64) + " " + sizeUnits[i]
}
