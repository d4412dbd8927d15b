package circulation

import (
	"github.com/google/uuid"

	"campuslibrary/internal/catalog"
	"campuslibrary/internal/membership"
)

// Aggregate joins records with the users and books they reference. Missing
// entities become placeholders; record order is preserved.
func Aggregate(records []Record, users []membership.User, books []catalog.Book) []EnrichedRecord {
	userByID := make(map[uuid.UUID]membership.User, len(users))
	for _, u := range users {
		userByID[u.ID] = u
	}
	bookByID := make(map[uuid.UUID]catalog.Book, len(books))
	for _, b := range books {
		bookByID[b.ID] = b
	}

	out := make([]EnrichedRecord, 0, len(records))
	for _, r := range records {
		enriched := EnrichedRecord{
			Record:     r,
			UserEmail:  UnknownUser,
			BookTitle:  UnknownBook,
			BookAuthor: UnknownAuthor,
		}
		if u, ok := userByID[r.UserID]; ok {
			enriched.UserEmail = u.Email
		}
		if b, ok := bookByID[r.BookID]; ok {
			enriched.BookTitle = b.Title
			enriched.BookAuthor = b.Author
		}
		out = append(out, enriched)
	}
	return out
}

func distinctIDs(records []Record, pick func(Record) uuid.UUID) []uuid.UUID {
	seen := make(map[uuid.UUID]struct{}, len(records))
	ids := make([]uuid.UUID, 0, len(records))
	for _, r := range records {
		id := pick(r)
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	return ids
}
