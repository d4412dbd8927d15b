package catalog_test

import (
	"context"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"campuslibrary/internal/apperr"
	"campuslibrary/internal/catalog"
	"campuslibrary/internal/history"
	"campuslibrary/internal/logging"
	"campuslibrary/internal/membership"
	"campuslibrary/internal/store/memory"
)

var (
	admin   = membership.Principal{UserID: uuid.New(), Email: "librarian@admin.library", Role: membership.RoleAdmin}
	student = membership.Principal{UserID: uuid.New(), Email: "ayu@campus.edu", Role: membership.RoleStudent}
)

func newService(t *testing.T) (catalog.Service, *memory.Store) {
	t.Helper()
	store := memory.NewStore()
	return catalog.NewService(store, logging.Discard()), store
}

func addBook(t *testing.T, svc catalog.Service, title, author string) *catalog.Book {
	t.Helper()
	book, err := svc.AddBook(context.Background(), admin, catalog.BookInput{Title: title, Author: author})
	require.NoError(t, err)
	return book
}

func TestSearch_TitleOrAuthorCaseInsensitive(t *testing.T) {
	svc, _ := newService(t)
	addBook(t, svc, "The Two Towers", "J.R.R. Tolkien")
	addBook(t, svc, "The Hobbit", "J.R.R. Tolkien")
	addBook(t, svc, "Emma", "Jane Austen")
	addBook(t, svc, "Tolkien: A Biography", "Humphrey Carpenter")

	books, err := svc.Search(context.Background(), "  tolkien ")
	require.NoError(t, err)

	titles := make([]string, 0, len(books))
	for _, b := range books {
		titles = append(titles, b.Title)
	}
	assert.Equal(t, []string{"The Hobbit", "The Two Towers", "Tolkien: A Biography"}, titles)

	all, err := svc.Search(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 4)
}

func TestSearch_MatchesFilterProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		store := memory.NewStore()
		svc := catalog.NewService(store, logging.Discard())
		word := rapid.StringMatching(`[a-zA-Z]{1,6}`)

		n := rapid.IntRange(0, 12).Draw(t, "books")
		for i := 0; i < n; i++ {
			_, err := svc.AddBook(context.Background(), admin, catalog.BookInput{
				Title:  word.Draw(t, "title"),
				Author: word.Draw(t, "author"),
			})
			if err != nil {
				t.Fatal(err)
			}
		}
		term := rapid.StringMatching(`[a-zA-Z]{0,2}`).Draw(t, "term")

		all, _ := svc.Search(context.Background(), "")
		got, err := svc.Search(context.Background(), term)
		if err != nil {
			t.Fatal(err)
		}

		want := 0
		for _, b := range all {
			if strings.Contains(strings.ToLower(b.Title), strings.ToLower(term)) ||
				strings.Contains(strings.ToLower(b.Author), strings.ToLower(term)) {
				want++
			}
		}
		if len(got) != want {
			t.Fatalf("search %q returned %d books, want %d", term, len(got), want)
		}
		for i := 1; i < len(got); i++ {
			if got[i-1].Title > got[i].Title {
				t.Fatalf("results not ordered by title: %q before %q", got[i-1].Title, got[i].Title)
			}
		}
	})
}

func TestSortByTitle_ByteOrder(t *testing.T) {
	low, high := uuid.MustParse("00000000-0000-0000-0000-000000000001"), uuid.MustParse("00000000-0000-0000-0000-000000000002")
	books := []catalog.Book{
		{ID: uuid.New(), Title: "apple pie"},
		{ID: high, Title: "Zebra"},
		{ID: low, Title: "Zebra"},
		{ID: uuid.New(), Title: "Emma"},
	}
	catalog.SortByTitle(books)

	titles := make([]string, 0, len(books))
	for _, b := range books {
		titles = append(titles, b.Title)
	}
	assert.Equal(t, []string{"Emma", "Zebra", "Zebra", "apple pie"}, titles)
	assert.Equal(t, low, books[1].ID)
}

func TestAddBook(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	_, err := svc.AddBook(ctx, student, catalog.BookInput{Title: "Dune", Author: "Frank Herbert"})
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)

	_, err = svc.AddBook(ctx, admin, catalog.BookInput{Title: " ", Author: "Frank Herbert"})
	var vErr *apperr.ValidationError
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "title")

	bad := "ftp://example.com/cover.png"
	_, err = svc.AddBook(ctx, admin, catalog.BookInput{Title: "Dune", Author: "Frank Herbert", ImageURL: &bad})
	require.ErrorAs(t, err, &vErr)
	assert.Contains(t, vErr.FieldErrors, "image_url")

	book := addBook(t, svc, "Dune", "Frank Herbert")
	assert.Equal(t, catalog.StatusAvailable, book.Status)

	n, err := svc.CountAvailable(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestUpdateBook_KeepsStatus(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	book := addBook(t, svc, "Dune", "Frank Herbert")

	cover := "https://covers.example.com/dune.jpg"
	updated, err := svc.UpdateBook(ctx, admin, book.ID, catalog.BookInput{Title: "Dune Messiah", Author: "Frank Herbert", ImageURL: &cover})
	require.NoError(t, err)
	assert.Equal(t, "Dune Messiah", updated.Title)
	assert.Equal(t, catalog.StatusAvailable, updated.Status)
	require.NotNil(t, updated.ImageURL)
	assert.Equal(t, cover, *updated.ImageURL)

	_, err = svc.UpdateBook(ctx, admin, uuid.New(), catalog.BookInput{Title: "x", Author: "y"})
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestRemoveBook_AndHistory(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()
	book := addBook(t, svc, "Dune", "Frank Herbert")

	require.NoError(t, svc.RemoveBook(ctx, admin, book.ID))

	books, err := svc.Search(ctx, "dune")
	require.NoError(t, err)
	assert.Empty(t, books)

	events, err := svc.History(ctx, admin, book.ID)
	require.NoError(t, err)
	require.Len(t, events, 2)
	assert.Equal(t, history.EventBookAdded, events[0].EventType)
	assert.Equal(t, history.EventBookRemoved, events[1].EventType)

	assert.ErrorIs(t, svc.RemoveBook(ctx, admin, book.ID), apperr.ErrNotFound)
	_, err = svc.History(ctx, admin, uuid.New())
	assert.ErrorIs(t, err, apperr.ErrNotFound)
	_, err = svc.History(ctx, student, book.ID)
	assert.ErrorIs(t, err, apperr.ErrUnauthorized)
}
