package circulation

import (
	"context"

	"github.com/google/uuid"

	"campuslibrary/internal/catalog"
	"campuslibrary/internal/history"
	"campuslibrary/internal/membership"
)

// Service defines the interface for the circulation service.
type Service interface {
	Borrow(ctx context.Context, params BorrowParams) (*Receipt, error)
	MyBorrowings(ctx context.Context, principal membership.Principal, limit int) ([]Borrowing, error)
	Dashboard(ctx context.Context, principal membership.Principal) (*Dashboard, error)
	ListRecords(ctx context.Context, principal membership.Principal) ([]EnrichedRecord, error)
	DeleteRecord(ctx context.Context, principal membership.Principal, id uuid.UUID) error
	Consistency(ctx context.Context, principal membership.Principal) (*ConsistencyReport, error)
}

// Store persists borrowing records.
type Store interface {
	// CreateBorrowing moves the book from Available to Borrowed, inserts the
	// record and appends event, all or nothing. A book that is not
	// Available yields apperr.ErrBookUnavailable; a reused receipt number
	// yields apperr.ErrDuplicateReceipt.
	CreateBorrowing(ctx context.Context, record Record, event history.Event) error
	GetBorrowing(ctx context.Context, id uuid.UUID) (*Record, error)
	// ListBorrowings orders by borrow date, then creation time, newest first.
	ListBorrowings(ctx context.Context) ([]Record, error)
	ListBorrowingsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]Record, error)
	CountBorrowingsForUser(ctx context.Context, userID uuid.UUID) (int, error)
	// DeleteBorrowing removes the record. With release set it also returns the
	// book to Available when no other record references it, appending event in
	// that case, and reports whether the book was released.
	DeleteBorrowing(ctx context.Context, record Record, release bool, event history.Event) (bool, error)
	AuditConsistency(ctx context.Context) (*ConsistencyReport, error)
}

// BookLookup is the part of the catalog store the workflow reads.
type BookLookup interface {
	GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error)
	BooksByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Book, error)
	CountBooksByStatus(ctx context.Context, status catalog.Status) (int, error)
}

// UserLookup is the part of the user store the aggregator reads.
type UserLookup interface {
	UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]membership.User, error)
}
