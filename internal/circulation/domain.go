package circulation

import (
	"time"

	"github.com/google/uuid"

	"campuslibrary/internal/membership"
)

// Placeholders shown when a record outlives its user or book.
const (
	UnknownUser   = "Unknown User"
	UnknownBook   = "Unknown Book"
	UnknownAuthor = "Unknown Author"
)

// Record is a borrowing record. It is never updated; while its book is
// Borrowed the record is open.
type Record struct {
	ID         uuid.UUID `json:"id" db:"id"`
	UserID     uuid.UUID `json:"user_id" db:"user_id"`
	BookID     uuid.UUID `json:"book_id" db:"book_id"`
	BorrowDate Date      `json:"borrow_date" db:"borrow_date"`
	PickupDate Date      `json:"pickup_date" db:"pickup_date"`
	ReceiptNo  string    `json:"receipt_no" db:"receipt_no"`
	CreatedAt  time.Time `json:"created_at" db:"created_at"`
}

// Receipt is handed to the student after a successful borrow.
type Receipt struct {
	StudentName string    `json:"student_name"`
	BookTitle   string    `json:"book_title"`
	BorrowDate  Date      `json:"borrow_date"`
	PickupDate  Date      `json:"pickup_date"`
	ReceiptNo   string    `json:"receipt_no"`
	RecordID    uuid.UUID `json:"record_id"`
}

// BorrowParams is the input of Borrow. PickupDate is YYYY-MM-DD.
type BorrowParams struct {
	Principal  membership.Principal
	BookID     uuid.UUID
	PickupDate string
}

// Borrowing is a record as a student sees it.
type Borrowing struct {
	Record
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
}

// EnrichedRecord is a record joined with its user and book for administrators.
type EnrichedRecord struct {
	Record
	UserEmail  string `json:"user_email"`
	BookTitle  string `json:"book_title"`
	BookAuthor string `json:"book_author"`
}

// Dashboard summarises the library for a signed in student.
type Dashboard struct {
	DisplayName    string      `json:"display_name"`
	AvailableBooks int         `json:"available_books"`
	MyBorrowings   int         `json:"my_borrowings"`
	Recent         []Borrowing `json:"recent"`
}

// ConsistencyReport lists violations of the borrowing invariants.
type ConsistencyReport struct {
	MismatchedBooks   []uuid.UUID `json:"mismatched_books"`
	DuplicateReceipts []string    `json:"duplicate_receipts"`
}

// Healthy reports whether the audit found no violations.
func (r ConsistencyReport) Healthy() bool {
	return len(r.MismatchedBooks) == 0 && len(r.DuplicateReceipts) == 0
}
