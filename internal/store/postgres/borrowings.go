package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/circulation"
	"campuslibrary/internal/history"
	"campuslibrary/internal/store/pgerr"
)

const (
	tableBorrowings       = "borrowing_records"
	constraintReceiptUniq = "borrowing_records_receipt_no_key"
)

var borrowingColumns = []any{"id", "user_id", "book_id", "borrow_date", "pickup_date", "receipt_no", "created_at"}

// CreateBorrowing flips the book with a conditional update, so of two
// concurrent borrowers only one sees a row affected.
func (s *Store) CreateBorrowing(ctx context.Context, record circulation.Record, event history.Event) error {
	ctx, span := s.tracer.Start(ctx, "postgres.create_borrowing",
		trace.WithAttributes(
			attribute.String("book.id", record.BookID.String()),
			attribute.String("receipt.no", record.ReceiptNo),
		),
	)
	defer span.End()

	insert, args, err := s.builder.Insert(tableBorrowings).Rows(goqu.Record{
		"id":          record.ID.String(),
		"user_id":     record.UserID.String(),
		"book_id":     record.BookID.String(),
		"borrow_date": record.BorrowDate.String(),
		"pickup_date": record.PickupDate.String(),
		"receipt_no":  record.ReceiptNo,
		"created_at":  record.CreatedAt,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		res, err := tx.ExecContext(ctx, `
			UPDATE books
			SET status = 'Borrowed', updated_at = NOW()
			WHERE id = $1 AND status = 'Available'
		`, record.BookID)
		if err != nil {
			return fmt.Errorf("mark book borrowed: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			span.SetAttributes(attribute.Bool("conflict.detected", true))
			return s.missingOrUnavailable(ctx, tx, record.BookID)
		}

		if _, err := tx.ExecContext(ctx, insert, args...); err != nil {
			if constraint, dup := pgerr.UniqueViolation(err); dup {
				if constraint == constraintReceiptUniq {
					return apperr.ErrDuplicateReceipt
				}
				return apperr.ErrAlreadyExists
			}
			return fmt.Errorf("insert borrowing record: %w", err)
		}

		if _, err := s.journal.Append(ctx, tx, record.BookID, history.AnyVersion, event); err != nil {
			return fmt.Errorf("append book event: %w", err)
		}
		return nil
	})
}

func (s *Store) missingOrUnavailable(ctx context.Context, tx *sqlx.Tx, bookID uuid.UUID) error {
	var exists bool
	if err := tx.GetContext(ctx, &exists, `SELECT EXISTS (SELECT 1 FROM books WHERE id = $1)`, bookID); err != nil {
		return fmt.Errorf("check book: %w", err)
	}
	if !exists {
		return apperr.ErrNotFound
	}
	return apperr.ErrBookUnavailable
}

func (s *Store) GetBorrowing(ctx context.Context, id uuid.UUID) (*circulation.Record, error) {
	query, args, err := s.builder.From(tableBorrowings).
		Select(borrowingColumns...).
		Where(goqu.C("id").Eq(id.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build borrowing query: %w", err)
	}

	var record circulation.Record
	if err := s.db.GetContext(ctx, &record, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get borrowing record: %w", err)
	}
	return &record, nil
}

func (s *Store) recentFirst() *goqu.SelectDataset {
	return s.builder.From(tableBorrowings).
		Select(borrowingColumns...).
		Order(goqu.C("borrow_date").Desc(), goqu.C("created_at").Desc(), goqu.C("id").Desc())
}

func (s *Store) ListBorrowings(ctx context.Context) ([]circulation.Record, error) {
	query, args, err := s.recentFirst().Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build borrowings query: %w", err)
	}

	records := []circulation.Record{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list borrowing records: %w", err)
	}
	return records, nil
}

func (s *Store) ListBorrowingsForUser(ctx context.Context, userID uuid.UUID, limit int) ([]circulation.Record, error) {
	ds := s.recentFirst().Where(goqu.C("user_id").Eq(userID.String()))
	if limit > 0 {
		ds = ds.Limit(uint(limit))
	}
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build borrowings query: %w", err)
	}

	records := []circulation.Record{}
	if err := s.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list user borrowing records: %w", err)
	}
	return records, nil
}

func (s *Store) CountBorrowingsForUser(ctx context.Context, userID uuid.UUID) (int, error) {
	var n int
	if err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM borrowing_records WHERE user_id = $1`, userID); err != nil {
		return 0, fmt.Errorf("count user borrowing records: %w", err)
	}
	return n, nil
}

func (s *Store) DeleteBorrowing(ctx context.Context, record circulation.Record, release bool, event history.Event) (bool, error) {
	var released bool
	err := s.withTx(ctx, func(tx *sqlx.Tx) error {
		var bookID uuid.UUID
		err := tx.GetContext(ctx, &bookID, `DELETE FROM borrowing_records WHERE id = $1 RETURNING book_id`, record.ID)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("delete borrowing record: %w", err)
		}
		if !release {
			return nil
		}

		res, err := tx.ExecContext(ctx, `
			UPDATE books
			SET status = 'Available', updated_at = NOW()
			WHERE id = $1
			  AND status = 'Borrowed'
			  AND NOT EXISTS (SELECT 1 FROM borrowing_records WHERE book_id = $1)
		`, bookID)
		if err != nil {
			return fmt.Errorf("release book: %w", err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return fmt.Errorf("rows affected: %w", err)
		}
		if n == 0 {
			return nil
		}

		if _, err := s.journal.Append(ctx, tx, bookID, history.AnyVersion, event); err != nil {
			return fmt.Errorf("append book event: %w", err)
		}
		released = true
		return nil
	})
	return released, err
}

func (s *Store) AuditConsistency(ctx context.Context) (*circulation.ConsistencyReport, error) {
	report := &circulation.ConsistencyReport{
		MismatchedBooks:   []uuid.UUID{},
		DuplicateReceipts: []string{},
	}

	err := s.db.SelectContext(ctx, &report.MismatchedBooks, `
		SELECT b.id
		FROM books b
		WHERE (b.status = 'Borrowed') <> EXISTS (SELECT 1 FROM borrowing_records r WHERE r.book_id = b.id)
		ORDER BY b.id::text
	`)
	if err != nil {
		return nil, fmt.Errorf("audit book status: %w", err)
	}

	err = s.db.SelectContext(ctx, &report.DuplicateReceipts, `
		SELECT receipt_no
		FROM borrowing_records
		GROUP BY receipt_no
		HAVING COUNT(*) > 1
		ORDER BY receipt_no
	`)
	if err != nil {
		return nil, fmt.Errorf("audit receipts: %w", err)
	}
	return report, nil
}
