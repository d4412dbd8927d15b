package chaos

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/catalog"
	"campuslibrary/internal/circulation"
	"campuslibrary/internal/clients"
	"campuslibrary/internal/membership"
)

// Target is the set of authenticated clients the experiments act through.
type Target struct {
	Admin    *clients.Client
	Students []*clients.Client
}

// Prepare signs in the admin account and registers count throwaway students.
func Prepare(ctx context.Context, api *clients.Client, adminEmail, adminPassword string, count int) (*Target, error) {
	if count < 2 {
		return nil, errors.New("chaos needs at least two students")
	}

	session, err := api.SignIn(ctx, membership.SignInParams{Email: adminEmail, Password: adminPassword, Portal: membership.RoleAdmin})
	if err != nil {
		return nil, fmt.Errorf("sign in admin: %w", err)
	}
	target := &Target{Admin: api.WithToken(session.Token)}

	run := uuid.NewString()[:8]
	for i := 0; i < count; i++ {
		email := fmt.Sprintf("chaos-%s-%02d@students.chaos", run, i)
		password := uuid.NewString()
		if _, err := api.SignUp(ctx, email, password); err != nil {
			return nil, fmt.Errorf("sign up %s: %w", email, err)
		}
		session, err := api.SignIn(ctx, membership.SignInParams{Email: email, Password: password, Portal: membership.RoleStudent})
		if err != nil {
			return nil, fmt.Errorf("sign in %s: %w", email, err)
		}
		target.Students = append(target.Students, api.WithToken(session.Token))
	}
	return target, nil
}

// RegisterExperiments registers every borrowing experiment against target.
func (e *Engine) RegisterExperiments(target *Target, observe time.Duration) {
	e.Register(ConcurrentBorrowRace(target, observe))
	e.Register(ReceiptBurst(target, observe))
}

// pickupDate is two days out so it is in the future in any library time zone.
func pickupDate() circulation.Date {
	return circulation.DateOf(time.Now(), time.UTC).AddDays(2)
}

func consistencyMetrics(admin *clients.Client) []Metric {
	return []Metric{
		{
			Name: "mismatched_books",
			Query: func(ctx context.Context) (float64, error) {
				report, err := admin.Consistency(ctx)
				if err != nil {
					return 0, err
				}
				return float64(len(report.MismatchedBooks)), nil
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
		{
			Name: "duplicate_receipts",
			Query: func(ctx context.Context) (float64, error) {
				report, err := admin.Consistency(ctx)
				if err != nil {
					return 0, err
				}
				return float64(len(report.DuplicateReceipts)), nil
			},
			Threshold: Threshold{Operator: "==", Value: 0},
		},
	}
}

// ConcurrentBorrowRace has every student borrow the same book at once.
func ConcurrentBorrowRace(target *Target, observe time.Duration) Experiment {
	var (
		bookID uuid.UUID
		wins   atomic.Int64
	)

	metrics := append(consistencyMetrics(target.Admin), Metric{
		Name:      "borrow_winners",
		Query:     func(context.Context) (float64, error) { return float64(wins.Load()), nil },
		Threshold: Threshold{Operator: "<=", Value: 1},
	})

	return Experiment{
		Name:        "concurrent-borrow-race",
		Hypothesis:  "Exactly one of many simultaneous borrowers gets the book and its status stays consistent",
		SteadyState: metrics,
		Method: []Action{
			{
				Type:   "seed-book",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					book, err := target.Admin.AddBook(ctx, catalog.BookInput{Title: "Chaos Race " + uuid.NewString()[:8], Author: "Chaos Monkey"})
					if err != nil {
						return err
					}
					bookID = book.ID
					return nil
				},
			},
			{
				Type:   "concurrent-requests",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					if bookID == uuid.Nil {
						return errors.New("no book seeded")
					}
					errs := borrowAll(ctx, target.Students, func(int) uuid.UUID { return bookID }, &wins)
					return unexpected(errs, lostRace)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "cleanup",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					if bookID == uuid.Nil {
						return nil
					}
					return cleanup(ctx, target.Admin, map[uuid.UUID]bool{bookID: true})
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "borrow_winners",
				Condition: func(v float64) bool { return v == 1 },
				Message:   "exactly one borrower should win the race",
			},
			{
				Metric:    "mismatched_books",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "book status must match its borrowing records",
			},
		},
		Duration:       observe,
		SampleInterval: observe / 4,
	}
}

// ReceiptBurst borrows a distinct book per student at the same instant so
// receipts are generated within the same millisecond.
func ReceiptBurst(target *Target, observe time.Duration) Experiment {
	var (
		books    []uuid.UUID
		borrowed atomic.Int64
	)

	metrics := append(consistencyMetrics(target.Admin), Metric{
		Name:      "receipts_issued",
		Query:     func(context.Context) (float64, error) { return float64(borrowed.Load()), nil },
		Threshold: Threshold{Operator: ">=", Value: 0},
	})

	return Experiment{
		Name:        "receipt-burst",
		Hypothesis:  "Receipts issued in a burst are unique and every borrow succeeds",
		SteadyState: metrics,
		Method: []Action{
			{
				Type:   "seed-books",
				Target: "catalog",
				Execute: func(ctx context.Context) error {
					for range target.Students {
						book, err := target.Admin.AddBook(ctx, catalog.BookInput{Title: "Chaos Burst " + uuid.NewString()[:8], Author: "Chaos Monkey"})
						if err != nil {
							return err
						}
						books = append(books, book.ID)
					}
					return nil
				},
			},
			{
				Type:   "concurrent-requests",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					if len(books) != len(target.Students) {
						return errors.New("books not seeded")
					}
					errs := borrowAll(ctx, target.Students, func(i int) uuid.UUID { return books[i] }, &borrowed)
					return unexpected(errs, nil)
				},
			},
		},
		Rollback: []Action{
			{
				Type:   "cleanup",
				Target: "circulation",
				Execute: func(ctx context.Context) error {
					ids := make(map[uuid.UUID]bool, len(books))
					for _, id := range books {
						ids[id] = true
					}
					return cleanup(ctx, target.Admin, ids)
				},
			},
		},
		Validation: []Assertion{
			{
				Metric:    "duplicate_receipts",
				Condition: func(v float64) bool { return v == 0 },
				Message:   "no receipt number may be issued twice",
			},
			{
				Metric:    "receipts_issued",
				Condition: func(v float64) bool { return int(v) == len(target.Students) },
				Message:   "every student should receive a receipt",
			},
		},
		Duration:       observe,
		SampleInterval: observe / 4,
	}
}

// lostRace reports the rejection a losing borrower is expected to get.
func lostRace(err error) bool {
	return clients.Code(err) == apperr.KindBookUnavailable
}

// borrowAll releases every student at once and counts successes in wins.
func borrowAll(ctx context.Context, students []*clients.Client, book func(int) uuid.UUID, wins *atomic.Int64) []error {
	var (
		wg    sync.WaitGroup
		start = make(chan struct{})
		errs  = make([]error, len(students))
	)
	pickup := pickupDate()
	for i, student := range students {
		wg.Add(1)
		go func(i int, student *clients.Client) {
			defer wg.Done()
			<-start
			if _, err := student.Borrow(ctx, book(i), pickup); err != nil {
				errs[i] = err
				return
			}
			wins.Add(1)
		}(i, student)
	}
	close(start)
	wg.Wait()
	return errs
}

// unexpected joins the errors that expected does not accept.
func unexpected(errs []error, expected func(error) bool) error {
	var out []error
	for _, err := range errs {
		if err == nil || (expected != nil && expected(err)) {
			continue
		}
		out = append(out, err)
	}
	return errors.Join(out...)
}

// cleanup deletes the records and then the books the experiment created.
func cleanup(ctx context.Context, admin *clients.Client, books map[uuid.UUID]bool) error {
	records, err := admin.ListRecords(ctx)
	if err != nil {
		return err
	}
	var errs []error
	for _, record := range records {
		if books[record.BookID] {
			errs = append(errs, admin.DeleteRecord(ctx, record.ID))
		}
	}
	for id := range books {
		errs = append(errs, admin.RemoveBook(ctx, id))
	}
	return errors.Join(errs...)
}
