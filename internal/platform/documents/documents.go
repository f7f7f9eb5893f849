// Package documents tracks study documents referenced by submissions:
// protocols, consent forms, and supporting material. Submission readiness
// validation asks the registry whether required document types are present,
// and the compliance monitor asks which documents expire soon.
package documents

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/irbhub/irbhub/internal/platform/db"
)

// Type classifies a study document.
type Type string

const (
	TypeProtocol          Type = "PROTOCOL"
	TypeInformedConsent   Type = "INFORMED_CONSENT"
	TypeInvestigatorBroch Type = "INVESTIGATOR_BROCHURE"
	TypeRecruitment       Type = "RECRUITMENT_MATERIAL"
	TypeQuestionnaire     Type = "QUESTIONNAIRE"
	TypeOther             Type = "OTHER"
)

// Document is a registered study document.
type Document struct {
	ID        uuid.UUID  `json:"id"`
	StudyID   uuid.UUID  `json:"study_id"`
	Name      string     `json:"name"`
	Type      Type       `json:"type"`
	Version   string     `json:"version"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// Registry is the document lookup surface the workflow engine depends on.
type Registry interface {
	Register(ctx context.Context, doc *Document) error
	Get(ctx context.Context, id uuid.UUID) (*Document, error)
	// HasDocumentOfType reports whether any of ids refers to a document of
	// type t. Unknown IDs are ignored.
	HasDocumentOfType(ctx context.Context, ids []uuid.UUID, t Type) (bool, error)
	// ListExpiringWithin returns documents whose expiry falls on or before
	// the given instant and has not yet passed relative to now.
	ListExpiringWithin(ctx context.Context, now, before time.Time) ([]*Document, error)
}

// ---------------------------------------------------------------------------
// Postgres registry
// ---------------------------------------------------------------------------

const documentColumns = `id, study_id, name, type, version, expires_at, created_at`

// PGRegistry stores documents in Postgres, participating in the caller's
// transaction when one is carried on the context.
type PGRegistry struct {
	q db.Queryable
}

// NewPGRegistry creates a Postgres-backed registry.
func NewPGRegistry(q db.Queryable) *PGRegistry {
	return &PGRegistry{q: q}
}

func (r *PGRegistry) conn(ctx context.Context) db.Queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.q
}

func (r *PGRegistry) Register(ctx context.Context, doc *Document) error {
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO study_document (`+documentColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		doc.ID, doc.StudyID, doc.Name, doc.Type, doc.Version, doc.ExpiresAt, doc.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert document: %w", err)
	}
	return nil
}

func (r *PGRegistry) Get(ctx context.Context, id uuid.UUID) (*Document, error) {
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT `+documentColumns+` FROM study_document WHERE id = $1`, id)
	var doc Document
	if err := row.Scan(&doc.ID, &doc.StudyID, &doc.Name, &doc.Type, &doc.Version, &doc.ExpiresAt, &doc.CreatedAt); err != nil {
		return nil, fmt.Errorf("scan document: %w", err)
	}
	return &doc, nil
}

func (r *PGRegistry) HasDocumentOfType(ctx context.Context, ids []uuid.UUID, t Type) (bool, error) {
	if len(ids) == 0 {
		return false, nil
	}
	row := r.conn(ctx).QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM study_document WHERE id = ANY($1) AND type = $2)`, ids, t)
	var exists bool
	if err := row.Scan(&exists); err != nil {
		return false, fmt.Errorf("check document type: %w", err)
	}
	return exists, nil
}

func (r *PGRegistry) ListExpiringWithin(ctx context.Context, now, before time.Time) ([]*Document, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+documentColumns+` FROM study_document
		WHERE expires_at IS NOT NULL AND expires_at >= $1 AND expires_at <= $2
		ORDER BY expires_at`, now, before)
	if err != nil {
		return nil, fmt.Errorf("list expiring documents: %w", err)
	}
	defer rows.Close()

	var docs []*Document
	for rows.Next() {
		var doc Document
		if err := rows.Scan(&doc.ID, &doc.StudyID, &doc.Name, &doc.Type, &doc.Version, &doc.ExpiresAt, &doc.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan document: %w", err)
		}
		docs = append(docs, &doc)
	}
	return docs, rows.Err()
}

// ---------------------------------------------------------------------------
// In-memory registry (dev and tests)
// ---------------------------------------------------------------------------

// MemRegistry is an in-memory Registry.
type MemRegistry struct {
	mu   sync.RWMutex
	docs map[uuid.UUID]*Document
}

// NewMemRegistry creates an empty in-memory registry.
func NewMemRegistry() *MemRegistry {
	return &MemRegistry{docs: make(map[uuid.UUID]*Document)}
}

func (r *MemRegistry) Register(_ context.Context, doc *Document) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if doc.ID == uuid.Nil {
		doc.ID = uuid.New()
	}
	cp := *doc
	r.docs[doc.ID] = &cp
	return nil
}

func (r *MemRegistry) Get(_ context.Context, id uuid.UUID) (*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	doc, ok := r.docs[id]
	if !ok {
		return nil, fmt.Errorf("document %s not found", id)
	}
	cp := *doc
	return &cp, nil
}

func (r *MemRegistry) HasDocumentOfType(_ context.Context, ids []uuid.UUID, t Type) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	for _, id := range ids {
		if doc, ok := r.docs[id]; ok && doc.Type == t {
			return true, nil
		}
	}
	return false, nil
}

func (r *MemRegistry) ListExpiringWithin(_ context.Context, now, before time.Time) ([]*Document, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*Document
	for _, doc := range r.docs {
		if doc.ExpiresAt == nil {
			continue
		}
		if !doc.ExpiresAt.Before(now) && !doc.ExpiresAt.After(before) {
			cp := *doc
			out = append(out, &cp)
		}
	}
	return out, nil
}
