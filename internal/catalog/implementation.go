package catalog

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/history"
	"campuslibrary/internal/logging"
	"campuslibrary/internal/membership"
)

// service implements the Service interface.
type service struct {
	store  Store
	logger logrus.FieldLogger
	tracer trace.Tracer
	now    func() time.Time
}

// NewService creates a new catalog service instance.
func NewService(store Store, logger logrus.FieldLogger) Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &service{
		store:  store,
		logger: logger,
		tracer: otel.Tracer("campuslibrary/catalog"),
		now:    time.Now,
	}
}

// Search returns the books whose title or author contains term, ordered by title.
func (s *service) Search(ctx context.Context, term string) ([]Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.search", trace.WithAttributes(attribute.String("search.term", term)))
	defer span.End()

	books, err := s.store.SearchBooks(ctx, term)
	if err != nil {
		err = apperr.Gateway("catalog.search", err)
		logging.ServiceLogger(ctx, s.logger, "catalog", "Search").WithError(err).Error("search failed")
		return nil, err
	}
	span.SetAttributes(attribute.Int("search.results", len(books)))
	return books, nil
}

func (s *service) GetBook(ctx context.Context, id uuid.UUID) (*Book, error) {
	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, apperr.Gateway("catalog.get_book", err)
	}
	return book, nil
}

func (s *service) CountAvailable(ctx context.Context) (int, error) {
	n, err := s.store.CountBooksByStatus(ctx, StatusAvailable)
	if err != nil {
		return 0, apperr.Gateway("catalog.count_available", err)
	}
	return n, nil
}

// AddBook creates a new book in the catalog. New books are always available.
func (s *service) AddBook(ctx context.Context, principal membership.Principal, in BookInput) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.add_book")
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "catalog", "AddBook")

	if err := principal.Authorize(membership.RoleAdmin); err != nil {
		return nil, err
	}
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	now := s.now().UTC()
	book := Book{
		ID:        uuid.New(),
		Title:     in.Title,
		Author:    in.Author,
		Status:    StatusAvailable,
		ImageURL:  in.ImageURL,
		CreatedAt: now,
		UpdatedAt: now,
	}
	event, err := history.NewBookEvent(book.ID, history.EventBookAdded, history.BookAdded{Title: book.Title, Author: book.Author}, now)
	if err != nil {
		return nil, err
	}

	if err := s.store.CreateBook(ctx, book, event); err != nil {
		err = apperr.Gateway("catalog.create_book", err)
		logger.WithError(err).Error("failed to add book")
		return nil, err
	}

	span.SetAttributes(attribute.String("book.id", book.ID.String()))
	logger.WithField("book_id", book.ID).Info("book added")
	return &book, nil
}

// UpdateBook edits the descriptive fields of a book. The status is owned by
// the borrowing workflow and is never changed here.
func (s *service) UpdateBook(ctx context.Context, principal membership.Principal, id uuid.UUID, in BookInput) (*Book, error) {
	ctx, span := s.tracer.Start(ctx, "catalog.update_book", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "catalog", "UpdateBook").WithField("book_id", id)

	if err := principal.Authorize(membership.RoleAdmin); err != nil {
		return nil, err
	}
	in = in.normalize()
	if err := in.Validate(); err != nil {
		return nil, err
	}

	current, err := s.store.GetBook(ctx, id)
	if err != nil {
		return nil, apperr.Gateway("catalog.get_book", err)
	}

	now := s.now().UTC()
	book := *current
	book.Title = in.Title
	book.Author = in.Author
	book.ImageURL = in.ImageURL
	book.UpdatedAt = now

	event, err := history.NewBookEvent(id, history.EventBookUpdated, history.BookUpdated{Title: book.Title, Author: book.Author, ImageURL: book.ImageURL}, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.UpdateBook(ctx, book, event)
	if err != nil {
		err = apperr.Gateway("catalog.update_book", err)
		logger.WithError(err).Error("failed to update book")
		return nil, err
	}

	logger.Info("book updated")
	return updated, nil
}

// RemoveBook deletes a book that no borrowing record references.
func (s *service) RemoveBook(ctx context.Context, principal membership.Principal, id uuid.UUID) error {
	ctx, span := s.tracer.Start(ctx, "catalog.remove_book", trace.WithAttributes(attribute.String("book.id", id.String())))
	defer span.End()
	logger := logging.ServiceLogger(ctx, s.logger, "catalog", "RemoveBook").WithField("book_id", id)

	if err := principal.Authorize(membership.RoleAdmin); err != nil {
		return err
	}

	book, err := s.store.GetBook(ctx, id)
	if err != nil {
		return apperr.Gateway("catalog.get_book", err)
	}

	event, err := history.NewBookEvent(id, history.EventBookRemoved, history.BookRemoved{Title: book.Title}, s.now())
	if err != nil {
		return err
	}

	if err := s.store.DeleteBook(ctx, id, event); err != nil {
		err = apperr.Gateway("catalog.delete_book", err)
		logger.WithError(err).WithField("error_kind", apperr.Kind(err)).Warn("book not removed")
		return err
	}

	logger.Info("book removed")
	return nil
}

// History returns the journal of a book, oldest event first. The journal
// outlives the book, so removed books still have a history.
func (s *service) History(ctx context.Context, principal membership.Principal, id uuid.UUID) ([]history.Event, error) {
	if err := principal.Authorize(membership.RoleAdmin); err != nil {
		return nil, err
	}

	events, err := s.store.BookHistory(ctx, id)
	if err != nil {
		return nil, apperr.Gateway("catalog.book_history", err)
	}
	if len(events) == 0 {
		return nil, apperr.ErrNotFound
	}
	return events, nil
}
