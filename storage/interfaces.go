package storage

import (
	"context"

	"outcode-retriever/models"
)

// PropertyStore is the interface any document-store backend must satisfy.
// Inserts are unconditional: there is no uniqueness constraint, so storing
// the same page twice keeps both copies.
type PropertyStore interface {
	InsertMany(ctx context.Context, kind models.ListingKind, props []*models.Property) ([]string, error)
	Close(ctx context.Context) error
}

// IssueWriter persists classification issues for later inspection.
type IssueWriter interface {
	WriteIssues(outcode models.Outcode, kind models.ListingKind, issues map[string]models.Issue) error
	Close() error
}
