package documents

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/caselane/caselane/pkg/authz"
)

// Store persists cases, documents and document versions in PostgreSQL.
// It also serves as the resource lookup for the permission resolver.
type Store struct {
	db *sql.DB
}

// NewStore creates a document store and ensures its tables exist
func NewStore(db *sql.DB) (*Store, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}

	s := &Store{db: db}
	if err := s.ensureTables(); err != nil {
		return nil, fmt.Errorf("failed to ensure document tables: %w", err)
	}

	return s, nil
}

func (s *Store) ensureTables() error {
	query := `
	CREATE TABLE IF NOT EXISTS cases (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		title VARCHAR(500) NOT NULL,
		case_number VARCHAR(100) NOT NULL,
		status VARCHAR(50) NOT NULL DEFAULT 'open',
		created_by BIGINT NOT NULL,
		assigned_to BIGINT,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS documents (
		id BIGSERIAL PRIMARY KEY,
		organization_id BIGINT NOT NULL,
		case_id BIGINT NOT NULL REFERENCES cases(id),
		title VARCHAR(500) NOT NULL,
		uploaded_by BIGINT NOT NULL,
		current_version INTEGER NOT NULL DEFAULT 0,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		updated_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		deleted_at TIMESTAMP WITH TIME ZONE
	);

	CREATE TABLE IF NOT EXISTS document_versions (
		id BIGSERIAL PRIMARY KEY,
		document_id BIGINT NOT NULL REFERENCES documents(id),
		version_number INTEGER NOT NULL,
		file_name VARCHAR(500) NOT NULL,
		mime_type VARCHAR(100) NOT NULL,
		storage_key VARCHAR(500) NOT NULL,
		file_size BIGINT NOT NULL DEFAULT 0,
		ocr_status VARCHAR(20) NOT NULL DEFAULT 'PENDING',
		ocr_text TEXT,
		uploaded_by BIGINT NOT NULL,
		created_at TIMESTAMP WITH TIME ZONE NOT NULL DEFAULT NOW(),
		UNIQUE (document_id, version_number)
	);

	CREATE INDEX IF NOT EXISTS idx_cases_org ON cases(organization_id);
	CREATE INDEX IF NOT EXISTS idx_documents_case ON documents(case_id);
	CREATE INDEX IF NOT EXISTS idx_documents_org ON documents(organization_id);
	CREATE INDEX IF NOT EXISTS idx_versions_document ON document_versions(document_id, version_number DESC);
	CREATE INDEX IF NOT EXISTS idx_versions_ocr_status ON document_versions(ocr_status);
	`

	_, err := s.db.Exec(query)
	return err
}

// CreateCase inserts a case and fills in its id and timestamps
func (s *Store) CreateCase(ctx context.Context, c *Case) error {
	now := time.Now().UTC()
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO cases (organization_id, title, case_number, status, created_by, assigned_to, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $7)
		RETURNING id`,
		c.OrganizationID, c.Title, c.CaseNumber, c.Status, c.CreatedBy, c.AssignedTo, now,
	).Scan(&c.ID)
	if err != nil {
		return fmt.Errorf("failed to create case: %w", err)
	}
	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

// GetCase loads a case; soft-deleted cases are reported as ErrNotFound
func (s *Store) GetCase(ctx context.Context, id int64) (*Case, error) {
	var c Case
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, title, case_number, status, created_by, assigned_to, created_at, updated_at
		FROM cases WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&c.ID, &c.OrganizationID, &c.Title, &c.CaseNumber, &c.Status, &c.CreatedBy, &c.AssignedTo, &c.CreatedAt, &c.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case: %w", err)
	}
	return &c, nil
}

// CreateDocument inserts a document together with its first version in one
// transaction. The version starts at number 1 with OCR state PENDING.
func (s *Store) CreateDocument(ctx context.Context, doc *Document, version *Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	err = tx.QueryRowContext(ctx, `
		INSERT INTO documents (organization_id, case_id, title, uploaded_by, current_version, created_at, updated_at)
		VALUES ($1, $2, $3, $4, 1, $5, $5)
		RETURNING id`,
		doc.OrganizationID, doc.CaseID, doc.Title, doc.UploadedBy, now,
	).Scan(&doc.ID)
	if err != nil {
		return fmt.Errorf("failed to insert document: %w", err)
	}

	version.DocumentID = doc.ID
	version.VersionNumber = 1
	version.OCRStatus = OCRPending
	version.CreatedAt = now
	err = tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (document_id, version_number, file_name, mime_type, storage_key, file_size, ocr_status, uploaded_by, created_at)
		VALUES ($1, 1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id`,
		doc.ID, version.FileName, version.MimeType, version.StorageKey, version.FileSize, OCRPending, version.UploadedBy, now,
	).Scan(&version.ID)
	if err != nil {
		return fmt.Errorf("failed to insert document version: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit document: %w", err)
	}

	doc.CurrentVersion = 1
	doc.CreatedAt = now
	doc.UpdatedAt = now
	return nil
}

// AddVersion appends a new version and moves the current pointer to it.
// The document row is locked for the duration so version numbers stay
// strictly increasing under concurrent uploads.
func (s *Store) AddVersion(ctx context.Context, documentID int64, version *Version) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	nextNumber, err := s.lockNextVersion(ctx, tx, documentID)
	if err != nil {
		return err
	}

	now := time.Now().UTC()
	version.DocumentID = documentID
	version.VersionNumber = nextNumber
	version.OCRStatus = OCRPending
	version.CreatedAt = now

	err = tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (document_id, version_number, file_name, mime_type, storage_key, file_size, ocr_status, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		documentID, nextNumber, version.FileName, version.MimeType, version.StorageKey, version.FileSize, OCRPending, version.UploadedBy, now,
	).Scan(&version.ID)
	if err != nil {
		return fmt.Errorf("failed to insert document version: %w", err)
	}

	if err := s.setCurrentVersion(ctx, tx, documentID, nextNumber, now); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit version: %w", err)
	}

	return nil
}

// RestoreVersion copies an old version's content into a brand new version
// row and points current_version at it. History is never rewritten. The
// restored version inherits the old version's OCR text and status, so no
// re-extraction happens.
func (s *Store) RestoreVersion(ctx context.Context, documentID int64, versionNumber int, restoredBy int64) (*Version, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	nextNumber, err := s.lockNextVersion(ctx, tx, documentID)
	if err != nil {
		return nil, err
	}

	var old Version
	err = tx.QueryRowContext(ctx, `
		SELECT file_name, mime_type, storage_key, file_size, ocr_status, ocr_text
		FROM document_versions WHERE document_id = $1 AND version_number = $2`,
		documentID, versionNumber,
	).Scan(&old.FileName, &old.MimeType, &old.StorageKey, &old.FileSize, &old.OCRStatus, &old.OCRText)
	if err == sql.ErrNoRows {
		return nil, ErrVersionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load version %d: %w", versionNumber, err)
	}

	now := time.Now().UTC()
	restored := &Version{
		DocumentID:    documentID,
		VersionNumber: nextNumber,
		FileName:      old.FileName,
		MimeType:      old.MimeType,
		StorageKey:    old.StorageKey,
		FileSize:      old.FileSize,
		OCRStatus:     old.OCRStatus,
		OCRText:       old.OCRText,
		UploadedBy:    restoredBy,
		CreatedAt:     now,
	}

	err = tx.QueryRowContext(ctx, `
		INSERT INTO document_versions (document_id, version_number, file_name, mime_type, storage_key, file_size, ocr_status, ocr_text, uploaded_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		RETURNING id`,
		documentID, nextNumber, restored.FileName, restored.MimeType, restored.StorageKey,
		restored.FileSize, restored.OCRStatus, restored.OCRText, restoredBy, now,
	).Scan(&restored.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to insert restored version: %w", err)
	}

	if err := s.setCurrentVersion(ctx, tx, documentID, nextNumber, now); err != nil {
		return nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit restore: %w", err)
	}

	return restored, nil
}

// lockNextVersion locks the document row and returns MAX(version_number)+1
func (s *Store) lockNextVersion(ctx context.Context, tx *sql.Tx, documentID int64) (int, error) {
	var id int64
	err := tx.QueryRowContext(ctx,
		`SELECT id FROM documents WHERE id = $1 AND deleted_at IS NULL FOR UPDATE`,
		documentID,
	).Scan(&id)
	if err == sql.ErrNoRows {
		return 0, ErrNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("failed to lock document %d: %w", documentID, err)
	}

	var maxNumber int
	err = tx.QueryRowContext(ctx,
		`SELECT COALESCE(MAX(version_number), 0) FROM document_versions WHERE document_id = $1`,
		documentID,
	).Scan(&maxNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to read max version: %w", err)
	}

	return maxNumber + 1, nil
}

func (s *Store) setCurrentVersion(ctx context.Context, tx *sql.Tx, documentID int64, number int, now time.Time) error {
	_, err := tx.ExecContext(ctx,
		`UPDATE documents SET current_version = $1, updated_at = $2 WHERE id = $3`,
		number, now, documentID,
	)
	if err != nil {
		return fmt.Errorf("failed to update current version: %w", err)
	}
	return nil
}

// GetDocument loads a document; soft-deleted rows come back as ErrNotFound
func (s *Store) GetDocument(ctx context.Context, id int64) (*Document, error) {
	var doc Document
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, case_id, title, uploaded_by, current_version, created_at, updated_at
		FROM documents WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&doc.ID, &doc.OrganizationID, &doc.CaseID, &doc.Title, &doc.UploadedBy, &doc.CurrentVersion, &doc.CreatedAt, &doc.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document: %w", err)
	}
	return &doc, nil
}

// GetCurrentVersion loads the version current_version points at
func (s *Store) GetCurrentVersion(ctx context.Context, documentID int64) (*Version, error) {
	var v Version
	err := s.db.QueryRowContext(ctx, `
		SELECT v.id, v.document_id, v.version_number, v.file_name, v.mime_type, v.storage_key, v.file_size, v.ocr_status, v.ocr_text, v.uploaded_by, v.created_at
		FROM document_versions v
		JOIN documents d ON d.id = v.document_id AND d.current_version = v.version_number
		WHERE v.document_id = $1 AND d.deleted_at IS NULL`, documentID,
	).Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.FileName, &v.MimeType, &v.StorageKey, &v.FileSize, &v.OCRStatus, &v.OCRText, &v.UploadedBy, &v.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load current version: %w", err)
	}
	return &v, nil
}

// ListVersions returns a document's history, newest first
func (s *Store) ListVersions(ctx context.Context, documentID int64) ([]*Version, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, document_id, version_number, file_name, mime_type, storage_key, file_size, ocr_status, ocr_text, uploaded_by, created_at
		FROM document_versions WHERE document_id = $1 ORDER BY version_number DESC`, documentID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list versions: %w", err)
	}
	defer rows.Close()

	var versions []*Version
	for rows.Next() {
		var v Version
		err := rows.Scan(&v.ID, &v.DocumentID, &v.VersionNumber, &v.FileName, &v.MimeType, &v.StorageKey, &v.FileSize, &v.OCRStatus, &v.OCRText, &v.UploadedBy, &v.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan version: %w", err)
		}
		versions = append(versions, &v)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate versions: %w", err)
	}

	return versions, nil
}

// ListDocumentsByCase returns a case's live documents, newest first
func (s *Store) ListDocumentsByCase(ctx context.Context, caseID int64) ([]*Document, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, organization_id, case_id, title, uploaded_by, current_version, created_at, updated_at
		FROM documents WHERE case_id = $1 AND deleted_at IS NULL ORDER BY created_at DESC`, caseID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list documents: %w", err)
	}
	defer rows.Close()

	documents := make([]*Document, 0)
	for rows.Next() {
		var doc Document
		err := rows.Scan(&doc.ID, &doc.OrganizationID, &doc.CaseID, &doc.Title, &doc.UploadedBy, &doc.CurrentVersion, &doc.CreatedAt, &doc.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan document: %w", err)
		}
		documents = append(documents, &doc)
	}
	return documents, rows.Err()
}

// DeleteDocument soft-deletes a document. Versions are kept; the document
// simply stops resolving.
func (s *Store) DeleteDocument(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx,
		`UPDATE documents SET deleted_at = NOW() WHERE id = $1 AND deleted_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	if affected, _ := result.RowsAffected(); affected == 0 {
		return ErrNotFound
	}
	return nil
}

// SetOCRStatus records an extraction state transition on a version. Text
// is only meaningful for COMPLETED; pass nil otherwise.
func (s *Store) SetOCRStatus(ctx context.Context, versionID int64, status OCRStatus, text *string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE document_versions SET ocr_status = $1, ocr_text = $2 WHERE id = $3`,
		status, text, versionID,
	)
	if err != nil {
		return fmt.Errorf("failed to set OCR status: %w", err)
	}
	return nil
}

// ListStuckOCR returns document ids whose current version has sat in
// PENDING or PROCESSING for longer than the cutoff. Used by the sweeper to
// re-enqueue work lost to a crash between commit and trigger.
func (s *Store) ListStuckOCR(ctx context.Context, olderThan time.Duration) ([]int64, error) {
	cutoff := time.Now().UTC().Add(-olderThan)
	rows, err := s.db.QueryContext(ctx, `
		SELECT v.document_id
		FROM document_versions v
		JOIN documents d ON d.id = v.document_id AND d.current_version = v.version_number
		WHERE v.ocr_status IN ('PENDING', 'PROCESSING')
		  AND v.created_at < $1
		  AND d.deleted_at IS NULL
		ORDER BY v.document_id`, cutoff,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list stuck OCR versions: %w", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan document id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate stuck versions: %w", err)
	}

	return ids, nil
}

// SearchText finds documents in an organization whose current version's
// OCR text matches the query (case-insensitive substring).
func (s *Store) SearchText(ctx context.Context, organizationID int64, query string, limit int) ([]*SearchHit, error) {
	if limit <= 0 {
		limit = 50
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT d.id, d.case_id, d.title, v.version_number
		FROM documents d
		JOIN document_versions v ON v.document_id = d.id AND v.version_number = d.current_version
		WHERE d.organization_id = $1
		  AND d.deleted_at IS NULL
		  AND v.ocr_text ILIKE $2
		ORDER BY d.id
		LIMIT $3`,
		organizationID, "%"+query+"%", limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search documents: %w", err)
	}
	defer rows.Close()

	var hits []*SearchHit
	for rows.Next() {
		var hit SearchHit
		if err := rows.Scan(&hit.DocumentID, &hit.CaseID, &hit.Title, &hit.VersionNumber); err != nil {
			return nil, fmt.Errorf("failed to scan search hit: %w", err)
		}
		hits = append(hits, &hit)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate search hits: %w", err)
	}

	return hits, nil
}

// GetCaseRef loads the ownership shape the permission resolver needs
func (s *Store) GetCaseRef(ctx context.Context, id int64) (*authz.CaseRef, error) {
	var ref authz.CaseRef
	err := s.db.QueryRowContext(ctx, `
		SELECT id, organization_id, created_by, assigned_to
		FROM cases WHERE id = $1 AND deleted_at IS NULL`, id,
	).Scan(&ref.ID, &ref.OrganizationID, &ref.CreatedBy, &ref.AssignedTo)
	if err == sql.ErrNoRows {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load case ref: %w", err)
	}
	return &ref, nil
}

// GetDocumentRef loads a document's ownership shape including the owning
// case's creator and assignee, which drive the VIEW shortcut.
func (s *Store) GetDocumentRef(ctx context.Context, id int64) (*authz.DocumentRef, error) {
	var ref authz.DocumentRef
	err := s.db.QueryRowContext(ctx, `
		SELECT d.id, d.organization_id, d.case_id, d.uploaded_by, c.created_by, c.assigned_to
		FROM documents d
		JOIN cases c ON c.id = d.case_id
		WHERE d.id = $1 AND d.deleted_at IS NULL AND c.deleted_at IS NULL`, id,
	).Scan(&ref.ID, &ref.OrganizationID, &ref.CaseID, &ref.UploadedBy, &ref.CaseCreatedBy, &ref.CaseAssignedTo)
	if err == sql.ErrNoRows {
		return nil, authz.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load document ref: %w", err)
	}
	return &ref, nil
}
