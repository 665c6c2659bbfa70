/*
handlers.go - HTTP API handlers for the circulation system

PURPOSE:
  Exposes the circulation engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Auth:
    POST   /api/login                    Verify credentials

  Books:
    GET    /api/books                    List catalog (optional ?q= search)
    POST   /api/books                    Create or update a book
    GET    /api/books/{id}               Get book details
    PUT    /api/books/{id}               Update a book
    DELETE /api/books/{id}               Remove a book (no copies out)
    GET    /api/books/{id}/reservations  Waiting queue for a book

  Members:
    GET    /api/members                  List members
    POST   /api/members                  Create a user account
    GET    /api/members/{id}             Get member details
    GET    /api/members/{id}/loans       Loan history
    GET    /api/members/{id}/reservations Reservation history

  Circulation:
    POST   /api/loans                    Issue a book
    POST   /api/loans/{txn}/return       Return a book
    POST   /api/reservations             Reserve a book
    POST   /api/reservations/{id}/cancel Cancel a reservation

  Reports:
    GET    /api/reports/overdue          Open loans past due
    GET    /api/reports/top-borrowed     Most borrowed titles

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, invalid input
  - 401: Bad credentials
  - 404: Book, member, or loan not found
  - 409: Conflict (no copies, already returned, borrow limit, queue rules)
  - 500: Internal errors

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
  - circulation/engine.go: the domain logic behind these endpoints
*/
package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/warp/circulation-engine/auth"
	"github.com/warp/circulation-engine/circulation"
	"github.com/warp/circulation-engine/store/sqlite"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Store  *sqlite.Store
	Engine *circulation.Engine
	Auth   *auth.Service
	Log    *zap.Logger
}

// NewHandler creates a new handler.
func NewHandler(store *sqlite.Store, engine *circulation.Engine, authSvc *auth.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Store: store, Engine: engine, Auth: authSvc, Log: log}
}

// =============================================================================
// AUTH HANDLERS
// =============================================================================

// Login verifies credentials and returns the account profile.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	m, err := h.Auth.Login(r.Context(), circulation.MemberID(req.UserID), req.Password)
	if err != nil {
		if errors.Is(err, auth.ErrNotAuthenticated) {
			writeError(w, http.StatusUnauthorized, "Invalid credentials", nil)
			return
		}
		writeError(w, http.StatusInternalServerError, "Login failed", err)
		return
	}

	writeJSON(w, http.StatusOK, LoginResponseDTO{
		UserID:   string(m.ID),
		Name:     m.Name,
		Role:     string(m.Role),
		Category: string(m.Category),
	})
}

// =============================================================================
// BOOK HANDLERS
// =============================================================================

// ListBooks returns the catalog, filtered by ?q= when present.
func (h *Handler) ListBooks(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	q := r.URL.Query().Get("q")

	var (
		books []circulation.Book
		err   error
	)
	if q != "" {
		books, err = h.Store.SearchBooks(ctx, q)
	} else {
		books, err = h.Store.ListBooks(ctx)
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list books", err)
		return
	}

	writeJSON(w, http.StatusOK, toBookDTOs(books))
}

// GetBook returns a single catalog entry.
func (h *Handler) GetBook(w http.ResponseWriter, r *http.Request) {
	id := circulation.BookID(chi.URLParam(r, "id"))

	b, err := h.Store.GetBook(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get book", err)
		return
	}

	writeJSON(w, http.StatusOK, toBookDTO(b))
}

// PutBook creates or updates a catalog entry. Growing or shrinking
// total_copies shifts available copies by the same delta.
func (h *Handler) PutBook(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	var req PutBookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if id == "" {
		writeError(w, http.StatusBadRequest, "Book id is required", nil)
		return
	}
	if req.Title == "" || req.TotalCopies < 0 {
		writeError(w, http.StatusBadRequest, "Title and a non-negative total_copies are required", nil)
		return
	}

	book := circulation.Book{
		ID:          circulation.BookID(id),
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		Year:        req.Year,
		Rack:        req.Rack,
		TotalCopies: req.TotalCopies,
	}

	if err := h.Store.PutBook(r.Context(), book); err != nil {
		h.writeDomainError(w, "Failed to save book", err)
		return
	}

	saved, err := h.Store.GetBook(r.Context(), book.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read back book", err)
		return
	}
	writeJSON(w, http.StatusOK, toBookDTO(saved))
}

// CreateBook creates a catalog entry from the request body.
func (h *Handler) CreateBook(w http.ResponseWriter, r *http.Request) {
	var req struct {
		ID string `json:"id"`
		PutBookRequest
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "Book id and title are required", nil)
		return
	}

	book := circulation.Book{
		ID:          circulation.BookID(req.ID),
		ISBN:        req.ISBN,
		Title:       req.Title,
		Author:      req.Author,
		Publisher:   req.Publisher,
		Year:        req.Year,
		Rack:        req.Rack,
		TotalCopies: req.TotalCopies,
	}

	if err := h.Store.PutBook(r.Context(), book); err != nil {
		h.writeDomainError(w, "Failed to create book", err)
		return
	}

	saved, err := h.Store.GetBook(r.Context(), book.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to read back book", err)
		return
	}
	writeJSON(w, http.StatusCreated, toBookDTO(saved))
}

// DeleteBook removes a catalog entry. Fails while copies are out.
func (h *Handler) DeleteBook(w http.ResponseWriter, r *http.Request) {
	id := circulation.BookID(chi.URLParam(r, "id"))

	if err := h.Store.RemoveBook(r.Context(), id); err != nil {
		h.writeDomainError(w, "Failed to remove book", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "removed"})
}

// BookReservations returns the waiting queue for a book.
func (h *Handler) BookReservations(w http.ResponseWriter, r *http.Request) {
	id := circulation.BookID(chi.URLParam(r, "id"))

	rs, err := h.Store.ReservationsForBook(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reservations", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTOs(rs))
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns borrower accounts.
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	members, err := h.Store.ListMembers(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetMember returns a single member.
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := circulation.MemberID(chi.URLParam(r, "id"))

	m, err := h.Store.GetMember(r.Context(), id)
	if err != nil {
		h.writeDomainError(w, "Failed to get member", err)
		return
	}

	writeJSON(w, http.StatusOK, toMemberDTO(m))
}

// CreateMember registers a user account with credentials.
func (h *Handler) CreateMember(w http.ResponseWriter, r *http.Request) {
	var req CreateMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" || req.Password == "" {
		writeError(w, http.StatusBadRequest, "id, name, and password are required", nil)
		return
	}

	role := circulation.Role(req.Role)
	switch role {
	case circulation.RoleAdmin, circulation.RoleStaff, circulation.RoleMember:
	default:
		writeError(w, http.StatusBadRequest, "role must be admin, staff, or member", nil)
		return
	}

	category := circulation.Category(req.Category)
	if role == circulation.RoleMember {
		if category == "" {
			category = circulation.CategoryStudent
		}
		if !circulation.ValidCategory(category) {
			writeError(w, http.StatusBadRequest, "category must be student, faculty, or staff", nil)
			return
		}
	} else {
		category = ""
	}

	m := circulation.Member{
		ID:       circulation.MemberID(req.ID),
		Name:     req.Name,
		Role:     role,
		Category: category,
	}

	if err := h.Auth.Register(r.Context(), m, req.Password); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to create member", err)
		return
	}

	writeJSON(w, http.StatusCreated, toMemberDTO(m))
}

// MemberLoans returns a member's loan history.
func (h *Handler) MemberLoans(w http.ResponseWriter, r *http.Request) {
	id := circulation.MemberID(chi.URLParam(r, "id"))

	loans, err := h.Store.LoansByMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list loans", err)
		return
	}

	writeJSON(w, http.StatusOK, toLoanDTOs(loans))
}

// MemberReservations returns a member's reservations.
func (h *Handler) MemberReservations(w http.ResponseWriter, r *http.Request) {
	id := circulation.MemberID(chi.URLParam(r, "id"))

	rs, err := h.Store.ReservationsForMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list reservations", err)
		return
	}

	writeJSON(w, http.StatusOK, toReservationDTOs(rs))
}

// =============================================================================
// CIRCULATION HANDLERS
// =============================================================================

// IssueBook lends a book to a member.
func (h *Handler) IssueBook(w http.ResponseWriter, r *http.Request) {
	var req IssueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.BookID == "" || req.MemberID == "" {
		writeError(w, http.StatusBadRequest, "book_id and member_id are required", nil)
		return
	}

	result, err := h.Engine.Issue(r.Context(), circulation.MemberID(req.MemberID), circulation.BookID(req.BookID))
	if err != nil {
		h.writeDomainError(w, "Failed to issue book", err)
		return
	}

	h.Log.Info("book issued",
		zap.String("txn", string(result.TxnID)),
		zap.String("book", req.BookID),
		zap.String("member", req.MemberID))

	writeJSON(w, http.StatusCreated, IssueResponseDTO{
		TxnID: string(result.TxnID),
		Due:   result.Due.Format("2006-01-02"),
	})
}

// ReturnBook closes a loan, computes the fine, and hands the freed copy
// to the head of the reservation queue when one is waiting.
func (h *Handler) ReturnBook(w http.ResponseWriter, r *http.Request) {
	txnID := circulation.TxnID(chi.URLParam(r, "txn"))

	result, err := h.Engine.Return(r.Context(), txnID)
	if err != nil {
		h.writeDomainError(w, "Failed to return book", err)
		return
	}

	h.Log.Info("book returned",
		zap.String("txn", string(result.TxnID)),
		zap.Int("overdue_days", result.OverdueDays),
		zap.String("fine", result.Fine.String()))

	writeJSON(w, http.StatusOK, ReturnResponseDTO{
		TxnID:       string(result.TxnID),
		BookID:      string(result.BookID),
		OverdueDays: result.OverdueDays,
		Fine:        result.Fine.String(),
		Fulfilled:   toFulfillmentDTO(result.Fulfilled),
	})
}

// ReserveBook places a member in a book's waiting queue.
func (h *Handler) ReserveBook(w http.ResponseWriter, r *http.Request) {
	var req ReserveRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.BookID == "" || req.MemberID == "" {
		writeError(w, http.StatusBadRequest, "book_id and member_id are required", nil)
		return
	}

	result, err := h.Engine.Reserve(r.Context(), circulation.MemberID(req.MemberID), circulation.BookID(req.BookID))
	if err != nil {
		h.writeDomainError(w, "Failed to reserve book", err)
		return
	}

	writeJSON(w, http.StatusCreated, ReserveResponseDTO{
		ReservationID: string(result.ReservationID),
		Position:      result.Position,
	})
}

// CancelReservation removes a waiting entry from the queue.
func (h *Handler) CancelReservation(w http.ResponseWriter, r *http.Request) {
	id := circulation.ReservationID(chi.URLParam(r, "id"))

	if err := h.Engine.CancelReservation(r.Context(), id); err != nil {
		if errors.Is(err, circulation.ErrNoReservation) {
			// Unknown id or already in a terminal state.
			writeError(w, http.StatusConflict, "Reservation is not waiting", err)
			return
		}
		h.writeDomainError(w, "Failed to cancel reservation", err)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": "cancelled"})
}

// =============================================================================
// REPORT HANDLERS
// =============================================================================

// OverdueReport lists open loans past their due date with projected fines.
func (h *Handler) OverdueReport(w http.ResponseWriter, r *http.Request) {
	overdue, err := h.Engine.Overdue(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build overdue report", err)
		return
	}

	dtos := make([]OverdueLoanDTO, len(overdue))
	for i, o := range overdue {
		dtos[i] = OverdueLoanDTO{
			Loan:          toLoanDTO(o.Loan),
			OverdueDays:   o.OverdueDays,
			ProjectedFine: o.ProjectedFine.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// TopBorrowedReport lists the most borrowed titles. ?limit= caps the
// result, default 10.
func (h *Handler) TopBorrowedReport(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if s := r.URL.Query().Get("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			writeError(w, http.StatusBadRequest, "limit must be a positive integer", err)
			return
		}
		limit = n
	}

	books, err := h.Store.TopBorrowed(r.Context(), limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to build report", err)
		return
	}

	dtos := make([]TopBorrowedDTO, len(books))
	for i, b := range books {
		dtos[i] = TopBorrowedDTO{
			BookID:        string(b.ID),
			Title:         b.Title,
			BorrowedCount: b.BorrowedCount,
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeDomainError maps sentinel errors onto HTTP status codes.
func (h *Handler) writeDomainError(w http.ResponseWriter, message string, err error) {
	switch {
	case circulation.IsNotFound(err):
		writeError(w, http.StatusNotFound, message, err)
	case circulation.IsConflict(err), circulation.IsPolicyViolation(err):
		writeError(w, http.StatusConflict, message, err)
	default:
		h.Log.Error(message, zap.Error(err))
		writeError(w, http.StatusInternalServerError, message, err)
	}
}
