/*
server.go - HTTP router and middleware configuration

PURPOSE:
  Configures the HTTP router (chi), middleware stack, and route definitions.
  This is the wiring layer that connects URLs to handlers.

ROUTER: chi
  Chi was chosen for:
  - Lightweight and fast
  - Context-based
  - Middleware support
  - RESTful route patterns

MIDDLEWARE STACK:
  1. RequestID:  Unique ID per request for tracing
  2. Recoverer:  Panic recovery (500 instead of crash)
  3. Request logging via zap
  4. CORS:       Cross-origin requests for admin tooling

ROUTE GROUPS:
  /api/login            Credential check
  /api/books/*          Catalog management
  /api/members/*        Accounts, loan and reservation history
  /api/loans/*          Issue and return
  /api/reservations/*   Queue management
  /api/reports/*        Overdue and most-borrowed reports

SEE ALSO:
  - handlers.go: Handler implementations
  - cmd/server/main.go: Server startup
*/
package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"
)

// NewRouter creates a new router with all routes configured.
func NewRouter(h *Handler) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(h.Log))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"http://localhost:5173", "http://localhost:8080"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
	}))

	// API routes
	r.Route("/api", func(r chi.Router) {
		r.Post("/login", h.Login)

		// Catalog routes
		r.Route("/books", func(r chi.Router) {
			r.Get("/", h.ListBooks)
			r.Post("/", h.CreateBook)
			r.Get("/{id}", h.GetBook)
			r.Put("/{id}", h.PutBook)
			r.Delete("/{id}", h.DeleteBook)
			r.Get("/{id}/reservations", h.BookReservations)
		})

		// Member routes
		r.Route("/members", func(r chi.Router) {
			r.Get("/", h.ListMembers)
			r.Post("/", h.CreateMember)
			r.Get("/{id}", h.GetMember)
			r.Get("/{id}/loans", h.MemberLoans)
			r.Get("/{id}/reservations", h.MemberReservations)
		})

		// Circulation routes
		r.Route("/loans", func(r chi.Router) {
			r.Post("/", h.IssueBook)
			r.Post("/{txn}/return", h.ReturnBook)
		})
		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", h.ReserveBook)
			r.Post("/{id}/cancel", h.CancelReservation)
		})

		// Report routes
		r.Route("/reports", func(r chi.Router) {
			r.Get("/overdue", h.OverdueReport)
			r.Get("/top-borrowed", h.TopBorrowedReport)
		})
	})

	return r
}

// requestLogger logs one line per completed request.
func requestLogger(log *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			log.Info("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", middleware.GetReqID(r.Context())))
		})
	}
}
