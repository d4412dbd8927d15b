// Package server assembles the HTTP API.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"campuslibrary/internal/catalog"
	"campuslibrary/internal/circulation"
	"campuslibrary/internal/httpx"
	"campuslibrary/internal/membership"
)

// Pinger is a dependency checked by /healthz.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Deps carries the services and infrastructure the router wires together.
type Deps struct {
	Catalog     catalog.Service
	Circulation circulation.Service
	Membership  membership.Service
	Logger      logrus.FieldLogger
	// APIKey, when set, is required in the apikey header of every request.
	APIKey string
	// Health maps dependency names to their health checks.
	Health map[string]Pinger
}

// NewRouter builds the chi router serving the library API.
func NewRouter(deps Deps) http.Handler {
	if deps.Logger == nil {
		deps.Logger = logrus.StandardLogger()
	}
	responder := httpx.NewResponder(deps.Logger)

	books := catalog.NewHandler(deps.Catalog, responder)
	borrowing := circulation.NewHandler(deps.Circulation, responder)
	accounts := membership.NewHandler(deps.Membership, responder)

	session := membership.RequireSession(deps.Membership, responder)
	students := membership.RequireRole(responder, membership.RoleStudent)
	admins := membership.RequireRole(responder, membership.RoleAdmin)

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(httpx.RequestLogger(deps.Logger))
	r.Use(middleware.Recoverer)

	r.Get("/healthz", health(deps.Health, responder))

	r.Group(func(r chi.Router) {
		r.Use(httpx.RequireAPIKey(deps.APIKey, responder))

		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", accounts.SignUp)
			r.Post("/signin", accounts.SignIn)
			r.With(session).Post("/signout", accounts.SignOut)
			r.With(session).Get("/me", accounts.Me)
		})

		r.Group(func(r chi.Router) {
			r.Use(session)

			r.Get("/books", books.Search)
			r.Get("/books/{id}", books.GetBook)
			r.With(students).Post("/books/{id}/borrow", borrowing.Borrow)

			r.Route("/me", func(r chi.Router) {
				r.Use(students)
				r.Get("/borrowings", borrowing.MyBorrowings)
				r.Get("/dashboard", borrowing.Dashboard)
			})

			r.Route("/admin", func(r chi.Router) {
				r.Use(admins)
				r.Post("/books", books.AddBook)
				r.Put("/books/{id}", books.UpdateBook)
				r.Delete("/books/{id}", books.RemoveBook)
				r.Get("/books/{id}/history", books.History)
				r.Get("/borrowings", borrowing.ListRecords)
				r.Delete("/borrowings/{id}", borrowing.DeleteRecord)
				r.Get("/consistency", borrowing.Consistency)
				r.Delete("/users/{id}", accounts.DeleteUser)
			})
		})
	})

	return r
}

type healthResponse struct {
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

func health(checks map[string]Pinger, responder httpx.Responder) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
		defer cancel()

		resp := healthResponse{Status: "ok", Checks: make(map[string]string, len(checks))}
		status := http.StatusOK
		for name, check := range checks {
			if err := check.Ping(ctx); err != nil {
				resp.Checks[name] = err.Error()
				resp.Status = "degraded"
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		responder.JSON(r.Context(), w, status, resp)
	}
}
