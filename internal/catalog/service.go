package catalog

import (
	"context"

	"github.com/google/uuid"

	"campuslibrary/internal/history"
	"campuslibrary/internal/membership"
)

// Service defines the interface for the catalog service.
type Service interface {
	Search(ctx context.Context, term string) ([]Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	CountAvailable(ctx context.Context) (int, error)
	AddBook(ctx context.Context, principal membership.Principal, in BookInput) (*Book, error)
	UpdateBook(ctx context.Context, principal membership.Principal, id uuid.UUID, in BookInput) (*Book, error)
	RemoveBook(ctx context.Context, principal membership.Principal, id uuid.UUID) error
	History(ctx context.Context, principal membership.Principal, id uuid.UUID) ([]history.Event, error)
}

// Store is the persistence the catalog needs. Every write also appends the
// given journal event in the same transaction.
type Store interface {
	// SearchBooks filters with Matches semantics and orders like SortByTitle.
	SearchBooks(ctx context.Context, term string) ([]Book, error)
	GetBook(ctx context.Context, id uuid.UUID) (*Book, error)
	BooksByIDs(ctx context.Context, ids []uuid.UUID) ([]Book, error)
	CountBooksByStatus(ctx context.Context, status Status) (int, error)
	CreateBook(ctx context.Context, book Book, event history.Event) error
	// UpdateBook rewrites title, author, image and updated_at. Status is untouched.
	UpdateBook(ctx context.Context, book Book, event history.Event) (*Book, error)
	// DeleteBook refuses with apperr.ErrBookInUse while any borrowing record
	// references the book.
	DeleteBook(ctx context.Context, id uuid.UUID, event history.Event) error
	BookHistory(ctx context.Context, id uuid.UUID) ([]history.Event, error)
}
