package models

import (
	"errors"
)

var (
	ErrNoRecord            = errors.New("models: no matching record found")
	ErrInvalidCredentials  = errors.New("models: invalid credentials")
	ErrUserNotFound        = errors.New("models: user not found")
	ErrUserNotConfirmed    = errors.New("models: user not confirmed")
	ErrPaymentNotFound     = errors.New("payment not found")
	ErrLeadNotFound        = errors.New("lead or customer not found")
	ErrFileNotFound        = errors.New("file not found")
	ErrAccessDenied        = errors.New("access denied")
	ErrNotAuthenticated    = errors.New("not authenticated")
	ErrInvalidAmount       = errors.New("please enter a valid amount greater than 0")
	ErrInvalidMethod       = errors.New("unsupported payment method")
	ErrEmptyReceipt        = errors.New("official receipt cannot be empty")
	ErrFileTooLarge        = errors.New("file too large")
	ErrUnsupportedFileType = errors.New("unsupported file format")
	ErrAttachmentsNotReady = errors.New("some attachments are not uploaded; retry or remove them before submitting")
	ErrAttachmentsDisabled = errors.New("attachments are disabled")
	ErrNoEditInProgress    = errors.New("no receipt edit in progress")
)
