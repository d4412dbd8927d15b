// Package memory keeps every library table in process. It backs development
// runs started with DATABASE_URL=memory:// and the service tests.
package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/catalog"
	"campuslibrary/internal/circulation"
	"campuslibrary/internal/history"
	"campuslibrary/internal/membership"
)

var (
	_ catalog.Store        = (*Store)(nil)
	_ circulation.Store    = (*Store)(nil)
	_ membership.UserStore = (*Store)(nil)
)

// Store is guarded by a single mutex so that multi-row writes are atomic.
type Store struct {
	mu          sync.RWMutex
	books       map[uuid.UUID]catalog.Book
	records     map[uuid.UUID]circulation.Record
	receipts    map[string]uuid.UUID
	users       map[uuid.UUID]membership.User
	emails      map[string]uuid.UUID
	credentials map[uuid.UUID]membership.Credential
	journal     *history.Log
	now         func() time.Time
}

func NewStore() *Store {
	return &Store{
		books:       make(map[uuid.UUID]catalog.Book),
		records:     make(map[uuid.UUID]circulation.Record),
		receipts:    make(map[string]uuid.UUID),
		users:       make(map[uuid.UUID]membership.User),
		emails:      make(map[string]uuid.UUID),
		credentials: make(map[uuid.UUID]membership.Credential),
		journal:     history.NewLog(),
		now:         time.Now,
	}
}

func (s *Store) Ping(ctx context.Context) error {
	return ctx.Err()
}

// Books

func (s *Store) SearchBooks(ctx context.Context, term string) ([]catalog.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Book, 0, len(s.books))
	for _, b := range s.books {
		if catalog.Matches(b, term) {
			out = append(out, cloneBook(b))
		}
	}
	catalog.SortByTitle(out)
	return out, nil
}

func (s *Store) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	b, ok := s.books[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	b = cloneBook(b)
	return &b, nil
}

func (s *Store) BooksByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]catalog.Book, 0, len(ids))
	for _, id := range dedupe(ids) {
		if b, ok := s.books[id]; ok {
			out = append(out, cloneBook(b))
		}
	}
	return out, nil
}

func (s *Store) CountBooksByStatus(ctx context.Context, status catalog.Status) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, b := range s.books {
		if b.Status == status {
			n++
		}
	}
	return n, nil
}

func (s *Store) CreateBook(ctx context.Context, book catalog.Book, event history.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[book.ID]; ok {
		return apperr.ErrAlreadyExists
	}
	if _, err := s.journal.Append(book.ID, 0, event); err != nil {
		return err
	}
	s.books[book.ID] = cloneBook(book)
	return nil
}

func (s *Store) UpdateBook(ctx context.Context, book catalog.Book, event history.Event) (*catalog.Book, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	current, ok := s.books[book.ID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	if _, err := s.journal.Append(book.ID, history.AnyVersion, event); err != nil {
		return nil, err
	}

	current.Title = book.Title
	current.Author = book.Author
	current.ImageURL = book.ImageURL
	current.UpdatedAt = book.UpdatedAt
	s.books[book.ID] = cloneBook(current)

	out := cloneBook(current)
	return &out, nil
}

func (s *Store) DeleteBook(ctx context.Context, id uuid.UUID, event history.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.books[id]; !ok {
		return apperr.ErrNotFound
	}
	for _, r := range s.records {
		if r.BookID == id {
			return apperr.ErrBookInUse
		}
	}
	if _, err := s.journal.Append(id, history.AnyVersion, event); err != nil {
		return err
	}
	delete(s.books, id)
	return nil
}

func (s *Store) BookHistory(ctx context.Context, id uuid.UUID) ([]history.Event, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.journal.Load(id, 0), nil
}

// Borrowing records

func (s *Store) CreateBorrowing(ctx context.Context, record circulation.Record, event history.Event) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	book, ok := s.books[record.BookID]
	if !ok {
		return apperr.ErrNotFound
	}
	if book.Status != catalog.StatusAvailable {
		return apperr.ErrBookUnavailable
	}
	if _, taken := s.receipts[record.ReceiptNo]; taken {
		return apperr.ErrDuplicateReceipt
	}
	if _, err := s.journal.Append(record.BookID, history.AnyVersion, event); err != nil {
		return err
	}

	book.Status = catalog.StatusBorrowed
	book.UpdatedAt = s.now().UTC()
	s.books[book.ID] = book
	s.records[record.ID] = record
	s.receipts[record.ReceiptNo] = record.ID
	return nil
}

func (s *Store) GetBorrowing(ctx context.Context, id uuid.UUID) (*circulation.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.records[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &r, nil
}

func (s *Store) ListBorrowings(ctx context.Context) ([]circulation.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]circulation.Record, 0, len(s.records))
	for _, r := range s.records {
		out = append(out, r)
	}
	sortRecentFirst(out)
	return out, nil
}

func (s *Store) ListBorrowingsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]circulation.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]circulation.Record, 0)
	for _, r := range s.records {
		if r.UserID == userID {
			out = append(out, r)
		}
	}
	sortRecentFirst(out)
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *Store) CountBorrowingsForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, r := range s.records {
		if r.UserID == userID {
			n++
		}
	}
	return n, nil
}

func (s *Store) DeleteBorrowing(ctx context.Context, record circulation.Record, release bool, event history.Event) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.records[record.ID]
	if !ok {
		return false, apperr.ErrNotFound
	}
	delete(s.records, stored.ID)
	delete(s.receipts, stored.ReceiptNo)

	if !release {
		return false, nil
	}
	book, ok := s.books[stored.BookID]
	if !ok || book.Status != catalog.StatusBorrowed {
		return false, nil
	}
	for _, r := range s.records {
		if r.BookID == stored.BookID {
			return false, nil
		}
	}
	if _, err := s.journal.Append(stored.BookID, history.AnyVersion, event); err != nil {
		s.records[stored.ID] = stored
		s.receipts[stored.ReceiptNo] = stored.ID
		return false, err
	}
	book.Status = catalog.StatusAvailable
	book.UpdatedAt = s.now().UTC()
	s.books[book.ID] = book
	return true, nil
}

func (s *Store) AuditConsistency(ctx context.Context) (*circulation.ConsistencyReport, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	referenced := make(map[uuid.UUID]bool, len(s.records))
	receiptCount := make(map[string]int, len(s.records))
	for _, r := range s.records {
		referenced[r.BookID] = true
		receiptCount[r.ReceiptNo]++
	}

	report := &circulation.ConsistencyReport{
		MismatchedBooks:   []uuid.UUID{},
		DuplicateReceipts: []string{},
	}
	for id, b := range s.books {
		if (b.Status == catalog.StatusBorrowed) != referenced[id] {
			report.MismatchedBooks = append(report.MismatchedBooks, id)
		}
	}
	for receipt, n := range receiptCount {
		if n > 1 {
			report.DuplicateReceipts = append(report.DuplicateReceipts, receipt)
		}
	}
	sort.Slice(report.MismatchedBooks, func(i, j int) bool {
		return report.MismatchedBooks[i].String() < report.MismatchedBooks[j].String()
	})
	sort.Strings(report.DuplicateReceipts)
	return report, nil
}

// Users

func (s *Store) CreateUser(ctx context.Context, user membership.User, credential membership.Credential) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, taken := s.emails[user.Email]; taken {
		return apperr.ErrAlreadyExists
	}
	if _, taken := s.users[user.ID]; taken {
		return apperr.ErrAlreadyExists
	}
	s.users[user.ID] = user
	s.emails[user.Email] = user.ID
	s.credentials[user.ID] = credential
	return nil
}

func (s *Store) GetUser(ctx context.Context, id uuid.UUID) (*membership.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	u, ok := s.users[id]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &u, nil
}

func (s *Store) GetUserByEmail(ctx context.Context, email string) (*membership.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[email]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	u := s.users[id]
	return &u, nil
}

func (s *Store) GetCredential(ctx context.Context, userID uuid.UUID) (*membership.Credential, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.credentials[userID]
	if !ok {
		return nil, apperr.ErrNotFound
	}
	return &c, nil
}

func (s *Store) UsersByIDs(ctx context.Context, ids []uuid.UUID) ([]membership.User, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]membership.User, 0, len(ids))
	for _, id := range dedupe(ids) {
		if u, ok := s.users[id]; ok {
			out = append(out, u)
		}
	}
	return out, nil
}

func (s *Store) DeleteUser(ctx context.Context, id uuid.UUID) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return apperr.ErrNotFound
	}
	delete(s.users, id)
	delete(s.emails, u.Email)
	delete(s.credentials, id)
	return nil
}

func cloneBook(b catalog.Book) catalog.Book {
	if b.ImageURL != nil {
		u := *b.ImageURL
		b.ImageURL = &u
	}
	return b
}

func dedupe(ids []uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(ids))
	out := make([]uuid.UUID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

func sortRecentFirst(records []circulation.Record) {
	sort.SliceStable(records, func(i, j int) bool {
		if records[i].BorrowDate != records[j].BorrowDate {
			return records[i].BorrowDate > records[j].BorrowDate
		}
		if !records[i].CreatedAt.Equal(records[j].CreatedAt) {
			return records[i].CreatedAt.After(records[j].CreatedAt)
		}
		return records[i].ID.String() > records[j].ID.String()
	})
}
