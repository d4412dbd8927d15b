package catalog

import (
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"campuslibrary/internal/apperr"
)

// Status is the availability of a book.
type Status string

const (
	StatusAvailable Status = "Available"
	StatusBorrowed  Status = "Borrowed"
)

// Book is a catalogue entry. Status is Borrowed exactly when an open
// borrowing record references the book.
type Book struct {
	ID        uuid.UUID `json:"id" db:"id"`
	Title     string    `json:"title" db:"title"`
	Author    string    `json:"author" db:"author"`
	Status    Status    `json:"status" db:"status"`
	ImageURL  *string   `json:"image_url,omitempty" db:"image_url"`
	CreatedAt time.Time `json:"created_at" db:"created_at"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// BookInput is the editable part of a book.
type BookInput struct {
	Title    string  `json:"title"`
	Author   string  `json:"author"`
	ImageURL *string `json:"image_url,omitempty"`
}

func (in BookInput) normalize() BookInput {
	out := BookInput{
		Title:  strings.TrimSpace(in.Title),
		Author: strings.TrimSpace(in.Author),
	}
	if in.ImageURL != nil {
		if u := strings.TrimSpace(*in.ImageURL); u != "" {
			out.ImageURL = &u
		}
	}
	return out
}

// Validate expects a normalized input.
func (in BookInput) Validate() error {
	vErr := &apperr.ValidationError{}
	if in.Title == "" {
		vErr.Add("title", "is required")
	}
	if in.Author == "" {
		vErr.Add("author", "is required")
	}
	if in.ImageURL != nil {
		u, err := url.Parse(*in.ImageURL)
		if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
			vErr.Add("image_url", "must be an absolute http(s) URL")
		}
	}
	return vErr.OrNil()
}

// Matches reports whether term occurs in the title or the author, ignoring
// case. An empty term matches every book.
func Matches(book Book, term string) bool {
	term = strings.ToLower(strings.TrimSpace(term))
	if term == "" {
		return true
	}
	return strings.Contains(strings.ToLower(book.Title), term) ||
		strings.Contains(strings.ToLower(book.Author), term)
}

// SortByTitle orders books by title in byte order with the id as tie breaker.
func SortByTitle(books []Book) {
	sort.SliceStable(books, func(i, j int) bool {
		if books[i].Title != books[j].Title {
			return books[i].Title < books[j].Title
		}
		return books[i].ID.String() < books[j].ID.String()
	})
}
