package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/doug-martin/goqu/v9"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/catalog"
	"campuslibrary/internal/history"
	"campuslibrary/internal/store/pgerr"
)

const tableBooks = "books"

var bookColumns = []any{"id", "title", "author", "status", "image_url", "created_at", "updated_at"}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// SearchBooks matches title or author with ILIKE; LIKE metacharacters in
// term are taken literally.
func (s *Store) SearchBooks(ctx context.Context, term string) ([]catalog.Book, error) {
	query, args, err := searchBooksQuery(s.builder, term)
	if err != nil {
		return nil, fmt.Errorf("build search query: %w", err)
	}

	books := []catalog.Book{}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("search books: %w", err)
	}
	return books, nil
}

// searchBooksQuery sorts titles by byte order (COLLATE "C") so results match
// catalog.SortByTitle whatever the database collation is.
func searchBooksQuery(builder goqu.DialectWrapper, term string) (string, []any, error) {
	ds := builder.From(tableBooks).Select(bookColumns...)
	if term = strings.TrimSpace(term); term != "" {
		pattern := "%" + likeEscaper.Replace(term) + "%"
		ds = ds.Where(goqu.Or(
			goqu.C("title").ILike(pattern),
			goqu.C("author").ILike(pattern),
		))
	}
	return ds.Order(goqu.L(`"title" COLLATE "C"`).Asc(), goqu.C("id").Asc()).Prepared(true).ToSQL()
}

func (s *Store) GetBook(ctx context.Context, id uuid.UUID) (*catalog.Book, error) {
	return getBook(ctx, s.db, s.builder, id)
}

func getBook(ctx context.Context, q sqlx.QueryerContext, builder goqu.DialectWrapper, id uuid.UUID) (*catalog.Book, error) {
	query, args, err := builder.From(tableBooks).
		Select(bookColumns...).
		Where(goqu.C("id").Eq(id.String())).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build book query: %w", err)
	}

	var book catalog.Book
	if err := sqlx.GetContext(ctx, q, &book, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, apperr.ErrNotFound
		}
		return nil, fmt.Errorf("get book: %w", err)
	}
	return &book, nil
}

func (s *Store) BooksByIDs(ctx context.Context, ids []uuid.UUID) ([]catalog.Book, error) {
	books := []catalog.Book{}
	if len(ids) == 0 {
		return books, nil
	}

	query, args, err := s.builder.From(tableBooks).
		Select(bookColumns...).
		Where(goqu.C("id").In(idStrings(ids))).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build books query: %w", err)
	}
	if err := s.db.SelectContext(ctx, &books, query, args...); err != nil {
		return nil, fmt.Errorf("select books by id: %w", err)
	}
	return books, nil
}

func (s *Store) CountBooksByStatus(ctx context.Context, status catalog.Status) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM books WHERE status = $1`, string(status))
	if err != nil {
		return 0, fmt.Errorf("count books: %w", err)
	}
	return n, nil
}

func (s *Store) CreateBook(ctx context.Context, book catalog.Book, event history.Event) error {
	query, args, err := s.builder.Insert(tableBooks).Rows(goqu.Record{
		"id":         book.ID.String(),
		"title":      book.Title,
		"author":     book.Author,
		"status":     string(book.Status),
		"image_url":  nullableString(book.ImageURL),
		"created_at": book.CreatedAt,
		"updated_at": book.UpdatedAt,
	}).Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("build insert: %w", err)
	}

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			if _, dup := pgerr.UniqueViolation(err); dup {
				return apperr.ErrAlreadyExists
			}
			return fmt.Errorf("insert book: %w", err)
		}
		if _, err := s.journal.Append(ctx, tx, book.ID, 0, event); err != nil {
			return fmt.Errorf("append book event: %w", err)
		}
		return nil
	})
}

func (s *Store) UpdateBook(ctx context.Context, book catalog.Book, event history.Event) (*catalog.Book, error) {
	query, args, err := s.builder.Update(tableBooks).Set(goqu.Record{
		"title":      book.Title,
		"author":     book.Author,
		"image_url":  nullableString(book.ImageURL),
		"updated_at": book.UpdatedAt,
	}).
		Where(goqu.C("id").Eq(book.ID.String())).
		Returning(bookColumns...).
		Prepared(true).
		ToSQL()
	if err != nil {
		return nil, fmt.Errorf("build update: %w", err)
	}

	var updated catalog.Book
	err = s.withTx(ctx, func(tx *sqlx.Tx) error {
		if err := tx.GetContext(ctx, &updated, query, args...); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return apperr.ErrNotFound
			}
			return fmt.Errorf("update book: %w", err)
		}
		if _, err := s.journal.Append(ctx, tx, book.ID, history.AnyVersion, event); err != nil {
			return fmt.Errorf("append book event: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// DeleteBook locks the book row before checking for records so a borrow
// racing the delete either lands first and blocks it or finds no book.
func (s *Store) DeleteBook(ctx context.Context, id uuid.UUID, event history.Event) error {
	ctx, span := s.tracer.Start(ctx, "postgres.delete_book", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()

	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		var locked string
		err := tx.GetContext(ctx, &locked, `SELECT id::text FROM books WHERE id = $1 FOR UPDATE`, id)
		if errors.Is(err, sql.ErrNoRows) {
			return apperr.ErrNotFound
		}
		if err != nil {
			return fmt.Errorf("lock book: %w", err)
		}

		var referenced bool
		if err := tx.GetContext(ctx, &referenced, `SELECT EXISTS (SELECT 1 FROM borrowing_records WHERE book_id = $1)`, id); err != nil {
			return fmt.Errorf("check book references: %w", err)
		}
		if referenced {
			span.SetAttributes(attribute.Bool("book.in_use", true))
			return apperr.ErrBookInUse
		}

		if _, err := tx.ExecContext(ctx, `DELETE FROM books WHERE id = $1`, id); err != nil {
			return fmt.Errorf("delete book: %w", err)
		}
		if _, err := s.journal.Append(ctx, tx, id, history.AnyVersion, event); err != nil {
			return fmt.Errorf("append book event: %w", err)
		}
		return nil
	})
}

func (s *Store) BookHistory(ctx context.Context, id uuid.UUID) ([]history.Event, error) {
	events, err := s.journal.Load(ctx, s.db, id, 0)
	if err != nil {
		return nil, fmt.Errorf("load book history: %w", err)
	}
	return events, nil
}
