package documents

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestMemRegistry_HasDocumentOfType(t *testing.T) {
	reg := NewMemRegistry()
	ctx := context.Background()

	protocol := &Document{StudyID: uuid.New(), Name: "protocol-v3", Type: TypeProtocol}
	consent := &Document{StudyID: protocol.StudyID, Name: "consent-v2", Type: TypeInformedConsent}
	if err := reg.Register(ctx, protocol); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if err := reg.Register(ctx, consent); err != nil {
		t.Fatalf("Register failed: %v", err)
	}

	ids := []uuid.UUID{protocol.ID, consent.ID}
	for _, tc := range []struct {
		docType Type
		want    bool
	}{
		{TypeProtocol, true},
		{TypeInformedConsent, true},
		{TypeInvestigatorBroch, false},
	} {
		got, err := reg.HasDocumentOfType(ctx, ids, tc.docType)
		if err != nil {
			t.Fatalf("HasDocumentOfType(%s) failed: %v", tc.docType, err)
		}
		if got != tc.want {
			t.Errorf("HasDocumentOfType(%s) = %v, want %v", tc.docType, got, tc.want)
		}
	}

	// Unknown IDs are ignored, not errors.
	got, err := reg.HasDocumentOfType(ctx, []uuid.UUID{uuid.New()}, TypeProtocol)
	if err != nil {
		t.Fatalf("HasDocumentOfType failed: %v", err)
	}
	if got {
		t.Error("expected false for unknown document ID")
	}
}

func TestMemRegistry_ListExpiringWithin(t *testing.T) {
	reg := NewMemRegistry()
	ctx := context.Background()
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	expiresSoon := now.AddDate(0, 0, 20)
	expiresLater := now.AddDate(0, 0, 60)
	alreadyExpired := now.AddDate(0, 0, -5)

	for _, doc := range []*Document{
		{Name: "expiring", Type: TypeInformedConsent, ExpiresAt: &expiresSoon},
		{Name: "distant", Type: TypeProtocol, ExpiresAt: &expiresLater},
		{Name: "expired", Type: TypeProtocol, ExpiresAt: &alreadyExpired},
		{Name: "no-expiry", Type: TypeOther},
	} {
		if err := reg.Register(ctx, doc); err != nil {
			t.Fatalf("Register failed: %v", err)
		}
	}

	docs, err := reg.ListExpiringWithin(ctx, now, now.AddDate(0, 0, 30))
	if err != nil {
		t.Fatalf("ListExpiringWithin failed: %v", err)
	}
	if len(docs) != 1 || docs[0].Name != "expiring" {
		t.Errorf("expected only the expiring document, got %+v", docs)
	}
}

func TestMemRegistry_GetUnknown(t *testing.T) {
	reg := NewMemRegistry()
	if _, err := reg.Get(context.Background(), uuid.New()); err == nil {
		t.Error("expected error for unknown document")
	}
}
