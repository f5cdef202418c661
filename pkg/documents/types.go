package documents

import (
	"errors"
	"time"
)

// ErrNotFound is returned for absent and soft-deleted rows
var ErrNotFound = errors.New("not found")

// ErrVersionNotFound is returned when a version number does not exist for
// the document
var ErrVersionNotFound = errors.New("version not found")

// OCRStatus tracks the text-extraction state machine of a version:
// PENDING -> PROCESSING -> COMPLETED or FAILED. FAILED is terminal for
// that version; a new upload starts over at PENDING.
type OCRStatus string

const (
	OCRPending    OCRStatus = "PENDING"
	OCRProcessing OCRStatus = "PROCESSING"
	OCRCompleted  OCRStatus = "COMPLETED"
	OCRFailed     OCRStatus = "FAILED"
)

// SupportedMimeTypes are the content types the extraction pipeline can
// pull text from. Anything else completes immediately with no text.
var SupportedMimeTypes = map[string]bool{
	"image/jpeg":      true,
	"image/png":       true,
	"image/gif":       true,
	"image/webp":      true,
	"application/pdf": true,
	"text/plain":      true,
}

// Case is a legal matter owned by an organization. Only the fields the
// permission model needs are carried here; client and hearing details
// belong to the CRUD layer above.
type Case struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	Title          string     `json:"title"`
	CaseNumber     string     `json:"case_number"`
	Status         string     `json:"status"`
	CreatedBy      int64      `json:"created_by"`
	AssignedTo     *int64     `json:"assigned_to,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Document is the stable identity of an uploaded file across versions
type Document struct {
	ID             int64      `json:"id"`
	OrganizationID int64      `json:"organization_id"`
	CaseID         int64      `json:"case_id"`
	Title          string     `json:"title"`
	UploadedBy     int64      `json:"uploaded_by"`
	CurrentVersion int        `json:"current_version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	DeletedAt      *time.Time `json:"deleted_at,omitempty"`
}

// Version is one immutable entry in a document's history. Version numbers
// are strictly increasing per document and never reused.
type Version struct {
	ID            int64     `json:"id"`
	DocumentID    int64     `json:"document_id"`
	VersionNumber int       `json:"version_number"`
	FileName      string    `json:"file_name"`
	MimeType      string    `json:"mime_type"`
	StorageKey    string    `json:"storage_key"`
	FileSize      int64     `json:"file_size"`
	OCRStatus     OCRStatus `json:"ocr_status"`
	OCRText       *string   `json:"ocr_text,omitempty"`
	UploadedBy    int64     `json:"uploaded_by"`
	CreatedAt     time.Time `json:"created_at"`
}

// SearchHit is one full-text match on OCR text
type SearchHit struct {
	DocumentID    int64  `json:"document_id"`
	CaseID        int64  `json:"case_id"`
	Title         string `json:"title"`
	VersionNumber int    `json:"version_number"`
}
