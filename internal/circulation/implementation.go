package circulation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	"go.opentelemetry.io/otel/trace"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/catalog"
	"campuslibrary/internal/history"
	"campuslibrary/internal/logging"
	"campuslibrary/internal/membership"
)

const (
	DefaultRecentLimit = 5
	maxRecentLimit     = 100
)

// Options tunes the circulation service.
type Options struct {
	// Location decides which calendar day "today" is.
	Location *time.Location
	// ReleaseOnDelete returns a book to Available when its record is deleted.
	ReleaseOnDelete bool
	Now             func() time.Time
	Receipts        *ReceiptGenerator
}

// service implements the Service interface.
type service struct {
	store    Store
	books    BookLookup
	users    UserLookup
	logger   logrus.FieldLogger
	tracer   trace.Tracer
	attempts metric.Int64Counter
	receipts *ReceiptGenerator
	loc      *time.Location
	release  bool
	now      func() time.Time
}

// NewService creates a new circulation service instance.
func NewService(store Store, books BookLookup, users UserLookup, logger logrus.FieldLogger, opts Options) Service {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.Location == nil {
		opts.Location = time.UTC
	}
	if opts.Receipts == nil {
		opts.Receipts = NewReceiptGenerator(opts.Now)
	}
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	attempts, err := otel.Meter("campuslibrary/circulation").Int64Counter(
		"circulation.borrow.attempts",
		metric.WithDescription("Borrow attempts by outcome"),
	)
	if err != nil {
		attempts = noop.Int64Counter{}
	}

	return &service{
		store:    store,
		books:    books,
		users:    users,
		logger:   logger,
		tracer:   otel.Tracer("campuslibrary/circulation"),
		attempts: attempts,
		receipts: opts.Receipts,
		loc:      opts.Location,
		release:  opts.ReleaseOnDelete,
		now:      opts.Now,
	}
}

// Borrow lends an available book to a student and issues a receipt.
func (s *service) Borrow(ctx context.Context, params BorrowParams) (receipt *Receipt, err error) {
	ctx, span := s.tracer.Start(ctx, "circulation.borrow",
		trace.WithAttributes(
			attribute.String("book.id", params.BookID.String()),
			attribute.String("user.id", params.Principal.UserID.String()),
		),
	)
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "circulation", "Borrow").WithFields(logrus.Fields{
		"book_id": params.BookID,
		"user_id": params.Principal.UserID,
	})

	defer func() {
		outcome := "success"
		if err != nil {
			outcome = apperr.Kind(err)
			span.RecordError(err)
			logger.WithError(err).WithField("error_kind", outcome).Warn("borrow failed")
		}
		s.attempts.Add(ctx, 1, metric.WithAttributes(attribute.String("outcome", outcome)))
	}()

	// Step 1: Only students borrow
	if err := params.Principal.Authorize(membership.RoleStudent); err != nil {
		return nil, err
	}

	// Step 2: Pickup must be a future day
	now := s.now()
	today := DateOf(now, s.loc)
	pickup, err := ParseDate(params.PickupDate)
	if err != nil {
		vErr := &apperr.ValidationError{}
		vErr.Add("pickup_date", "must be a date in YYYY-MM-DD form")
		return nil, vErr
	}
	if !pickup.After(today) {
		vErr := &apperr.ValidationError{}
		vErr.Add("pickup_date", "must be after today")
		return nil, vErr
	}

	// Step 3: Check availability
	book, err := s.books.GetBook(ctx, params.BookID)
	if err != nil {
		return nil, apperr.Gateway("circulation.get_book", err)
	}
	if book.Status != catalog.StatusAvailable {
		return nil, apperr.ErrBookUnavailable
	}

	// Step 4: Record, status flip and journal entry commit together
	record := Record{
		ID:         uuid.New(),
		UserID:     params.Principal.UserID,
		BookID:     book.ID,
		BorrowDate: today,
		PickupDate: pickup,
		ReceiptNo:  s.receipts.Next(),
		CreatedAt:  now.UTC(),
	}
	event, err := history.NewBookEvent(book.ID, history.EventBookBorrowed, history.BookBorrowed{
		RecordID:   record.ID,
		UserID:     record.UserID,
		ReceiptNo:  record.ReceiptNo,
		PickupDate: record.PickupDate.String(),
	}, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateBorrowing(ctx, record, event); err != nil {
		return nil, apperr.Gateway("circulation.create_borrowing", err)
	}

	span.SetAttributes(attribute.String("receipt.no", record.ReceiptNo))
	logger.WithFields(logrus.Fields{"record_id": record.ID, "receipt_no": record.ReceiptNo}).Info("book borrowed")

	return &Receipt{
		StudentName: params.Principal.DisplayName(),
		BookTitle:   book.Title,
		BorrowDate:  record.BorrowDate,
		PickupDate:  record.PickupDate,
		ReceiptNo:   record.ReceiptNo,
		RecordID:    record.ID,
	}, nil
}

// MyBorrowings returns the caller's most recent records with their books.
func (s *service) MyBorrowings(ctx context.Context, principal membership.Principal, limit int) ([]Borrowing, error) {
	if err := principal.Authorize(membership.RoleStudent); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = DefaultRecentLimit
	}
	if limit > maxRecentLimit {
		limit = maxRecentLimit
	}

	records, err := s.store.ListBorrowingsForUser(ctx, principal.UserID, limit)
	if err != nil {
		return nil, apperr.Gateway("circulation.list_user_borrowings", err)
	}
	return s.withBooks(ctx, records), nil
}

// Dashboard summarises the catalogue and the caller's own borrowing.
func (s *service) Dashboard(ctx context.Context, principal membership.Principal) (*Dashboard, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.dashboard")
	defer span.End()

	recent, err := s.MyBorrowings(ctx, principal, DefaultRecentLimit)
	if err != nil {
		return nil, err
	}

	available, err := s.books.CountBooksByStatus(ctx, catalog.StatusAvailable)
	if err != nil {
		return nil, apperr.Gateway("circulation.count_available", err)
	}
	mine, err := s.store.CountBorrowingsForUser(ctx, principal.UserID)
	if err != nil {
		return nil, apperr.Gateway("circulation.count_user_borrowings", err)
	}

	return &Dashboard{
		DisplayName:    principal.DisplayName(),
		AvailableBooks: available,
		MyBorrowings:   mine,
		Recent:         recent,
	}, nil
}

// ListRecords returns every record joined with its user and book. Failing to
// load users or books degrades to placeholders instead of failing the call.
func (s *service) ListRecords(ctx context.Context, principal membership.Principal) ([]EnrichedRecord, error) {
	ctx, span := s.tracer.Start(ctx, "circulation.list_records")
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "circulation", "ListRecords")

	if err := principal.Authorize(membership.RoleAdmin); err != nil {
		return nil, err
	}

	records, err := s.store.ListBorrowings(ctx)
	if err != nil {
		err = apperr.Gateway("circulation.list_borrowings", err)
		logger.WithError(err).Error("failed to load borrowing records")
		return nil, err
	}
	if len(records) == 0 {
		return []EnrichedRecord{}, nil
	}

	users, err := s.users.UsersByIDs(ctx, distinctIDs(records, func(r Record) uuid.UUID { return r.UserID }))
	if err != nil {
		logger.WithError(err).Warn("failed to load users for borrowing records")
		users = nil
	}
	books, err := s.books.BooksByIDs(ctx, distinctIDs(records, func(r Record) uuid.UUID { return r.BookID }))
	if err != nil {
		logger.WithError(err).Warn("failed to load books for borrowing records")
		books = nil
	}

	span.SetAttributes(attribute.Int("records.count", len(records)))
	return Aggregate(records, users, books), nil
}

// DeleteRecord removes a borrowing record. Whether the book becomes
// available again is decided by Options.ReleaseOnDelete.
func (s *service) DeleteRecord(ctx context.Context, principal membership.Principal, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "circulation.delete_record", trace.WithAttributes(attribute.String("record.id", id.String())))
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "circulation", "DeleteRecord").WithField("record_id", id)

	if err := principal.Authorize(membership.RoleAdmin); err != nil {
		return err
	}

	record, err := s.store.GetBorrowing(ctx, id)
	if err != nil {
		return apperr.Gateway("circulation.get_borrowing", err)
	}

	event, err := history.NewBookEvent(record.BookID, history.EventBookReleased, history.BookReleased{RecordID: record.ID}, s.now())
	if err != nil {
		return err
	}

	released, err := s.store.DeleteBorrowing(ctx, *record, s.release, event)
	if err != nil {
		err = apperr.Gateway("circulation.delete_borrowing", err)
		logger.WithError(err).Error("failed to delete borrowing record")
		return err
	}

	logger.WithFields(logrus.Fields{"book_id": record.BookID, "book_released": released}).Info("borrowing record deleted")
	return nil
}

// Consistency audits book statuses and receipts; administrators only.
func (s *service) Consistency(ctx context.Context, principal membership.Principal) (*ConsistencyReport, error) {
	if err := principal.Authorize(membership.RoleAdmin); err != nil {
		return nil, err
	}
	report, err := s.store.AuditConsistency(ctx)
	if err != nil {
		return nil, apperr.Gateway("circulation.audit_consistency", err)
	}
	if !report.Healthy() {
		logging.ServiceLogger(ctx, s.logger, "circulation", "Consistency").WithFields(logrus.Fields{
			"mismatched_books":   len(report.MismatchedBooks),
			"duplicate_receipts": len(report.DuplicateReceipts),
		}).Warn("borrowing invariants violated")
	}
	return report, nil
}

func (s *service) withBooks(ctx context.Context, records []Record) []Borrowing {
	out := make([]Borrowing, 0, len(records))
	if len(records) == 0 {
		return out
	}

	books, err := s.books.BooksByIDs(ctx, distinctIDs(records, func(r Record) uuid.UUID { return r.BookID }))
	if err != nil {
		logging.ServiceLogger(ctx, s.logger, "circulation", "MyBorrowings").WithError(err).Warn("failed to load books for borrowings")
	}
	for _, e := range Aggregate(records, nil, books) {
		out = append(out, Borrowing{Record: e.Record, BookTitle: e.BookTitle, BookAuthor: e.BookAuthor})
	}
	return out
}
