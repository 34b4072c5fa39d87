package models

import "encoding/json"

// Envelope is the response shape shared by the remote API and the console.
type Envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data,omitempty"`
	Error   *EnvelopeError  `json:"error,omitempty"`
}

type EnvelopeError struct {
	Message string `json:"message"`
}

// ErrorMessage returns the server supplied message or fallback.
func (e Envelope) ErrorMessage(fallback string) string {
	if e.Error != nil && e.Error.Message != "" {
		return e.Error.Message
	}
	return fallback
}

// PresignRequest is the body of POST /upload/presigned-url.
type PresignRequest struct {
	Filename string `json:"filename"`
	Filetype string `json:"filetype"`
	Filesize int64  `json:"filesize"`
}

type PresignResponse struct {
	UploadURL string `json:"uploadUrl"`
	FileURL   string `json:"fileUrl"`
}
