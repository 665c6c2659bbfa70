/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

TYPES:
  Catalog:
    BookDTO, PutBookRequest

  Membership:
    MemberDTO, CreateMemberRequest

  Circulation:
    IssueRequest, IssueResponseDTO, ReturnRequest, ReturnResponseDTO,
    ReserveRequest, ReserveResponseDTO, LoanDTO, ReservationDTO

  Reports:
    OverdueLoanDTO, TopBorrowedDTO

VALIDATION:
  Validation is done in handlers, not in DTOs. DTOs are pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - circulation/types.go: the domain model these mirror
*/
package api

import (
	"time"

	"github.com/warp/circulation-engine/circulation"
)

// =============================================================================
// REQUEST/RESPONSE TYPES
// =============================================================================

// BookDTO represents a catalog entry in API responses.
type BookDTO struct {
	ID              string `json:"id"`
	ISBN            string `json:"isbn"`
	Title           string `json:"title"`
	Author          string `json:"author"`
	Publisher       string `json:"publisher,omitempty"`
	Year            int    `json:"year,omitempty"`
	Rack            string `json:"rack,omitempty"`
	TotalCopies     int    `json:"total_copies"`
	AvailableCopies int    `json:"available_copies"`
	BorrowedCount   int    `json:"borrowed_count"`
}

// PutBookRequest creates or updates a catalog entry.
type PutBookRequest struct {
	ISBN        string `json:"isbn"`
	Title       string `json:"title"`
	Author      string `json:"author"`
	Publisher   string `json:"publisher,omitempty"`
	Year        int    `json:"year,omitempty"`
	Rack        string `json:"rack,omitempty"`
	TotalCopies int    `json:"total_copies"`
}

// MemberDTO represents a library user in API responses.
type MemberDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Category string `json:"category,omitempty"`
}

// CreateMemberRequest creates a user account.
type CreateMemberRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Category string `json:"category,omitempty"`
	Password string `json:"password"`
}

// LoginRequest authenticates a user.
type LoginRequest struct {
	UserID   string `json:"user_id"`
	Password string `json:"password"`
}

// LoginResponseDTO is returned on successful authentication.
type LoginResponseDTO struct {
	UserID   string `json:"user_id"`
	Name     string `json:"name"`
	Role     string `json:"role"`
	Category string `json:"category,omitempty"`
}

// IssueRequest lends a book to a member.
type IssueRequest struct {
	BookID   string `json:"book_id"`
	MemberID string `json:"member_id"`
}

// IssueResponseDTO is the result of issuing a book.
type IssueResponseDTO struct {
	TxnID string `json:"txn_id"`
	Due   string `json:"due"` // ISO date
}

// ReturnRequest closes an open loan.
type ReturnRequest struct {
	TxnID string `json:"txn_id"`
}

// ReturnResponseDTO is the result of a return, including any
// reservation fulfilled by the freed copy.
type ReturnResponseDTO struct {
	TxnID       string          `json:"txn_id"`
	BookID      string          `json:"book_id"`
	OverdueDays int             `json:"overdue_days"`
	Fine        string          `json:"fine"`
	Fulfilled   *FulfillmentDTO `json:"fulfilled,omitempty"`
}

// FulfillmentDTO describes a reservation converted into a loan.
type FulfillmentDTO struct {
	ReservationID string `json:"reservation_id"`
	MemberID      string `json:"member_id"`
	TxnID         string `json:"txn_id"`
	Due           string `json:"due"`
}

// ReserveRequest places a member in a book's waiting queue.
type ReserveRequest struct {
	BookID   string `json:"book_id"`
	MemberID string `json:"member_id"`
}

// ReserveResponseDTO is the result of a reservation.
type ReserveResponseDTO struct {
	ReservationID string `json:"reservation_id"`
	Position      int    `json:"position"`
}

// LoanDTO represents a circulation transaction.
type LoanDTO struct {
	TxnID        string `json:"txn_id"`
	BookID       string `json:"book_id"`
	MemberID     string `json:"member_id"`
	IssueDate    string `json:"issue_date"`
	DueDate      string `json:"due_date"`
	ReturnedDate string `json:"returned_date,omitempty"`
	Fine         string `json:"fine"`
	Status       string `json:"status"`
}

// ReservationDTO represents a queue entry.
type ReservationDTO struct {
	ID       string `json:"id"`
	BookID   string `json:"book_id"`
	MemberID string `json:"member_id"`
	ResDate  string `json:"res_date"`
	Status   string `json:"status"`
}

// OverdueLoanDTO is a row in the overdue report.
type OverdueLoanDTO struct {
	Loan          LoanDTO `json:"loan"`
	OverdueDays   int     `json:"overdue_days"`
	ProjectedFine string  `json:"projected_fine"`
}

// TopBorrowedDTO is a row in the most-borrowed report.
type TopBorrowedDTO struct {
	BookID        string `json:"book_id"`
	Title         string `json:"title"`
	BorrowedCount int    `json:"borrowed_count"`
}

// ErrorResponse is the standard error response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details any    `json:"details,omitempty"`
}

// =============================================================================
// CONVERSION HELPERS
// =============================================================================

func toBookDTO(b circulation.Book) BookDTO {
	return BookDTO{
		ID:              string(b.ID),
		ISBN:            b.ISBN,
		Title:           b.Title,
		Author:          b.Author,
		Publisher:       b.Publisher,
		Year:            b.Year,
		Rack:            b.Rack,
		TotalCopies:     b.TotalCopies,
		AvailableCopies: b.AvailableCopies,
		BorrowedCount:   b.BorrowedCount,
	}
}

func toBookDTOs(books []circulation.Book) []BookDTO {
	dtos := make([]BookDTO, len(books))
	for i, b := range books {
		dtos[i] = toBookDTO(b)
	}
	return dtos
}

func toMemberDTO(m circulation.Member) MemberDTO {
	return MemberDTO{
		ID:       string(m.ID),
		Name:     m.Name,
		Role:     string(m.Role),
		Category: string(m.Category),
	}
}

func toLoanDTO(l circulation.Loan) LoanDTO {
	dto := LoanDTO{
		TxnID:     string(l.TxnID),
		BookID:    string(l.BookID),
		MemberID:  string(l.MemberID),
		IssueDate: l.IssueDate.Format(time.RFC3339),
		DueDate:   l.DueDate.Format("2006-01-02"),
		Fine:      l.Fine.String(),
		Status:    string(l.Status),
	}
	if !l.ReturnDate.IsZero() {
		dto.ReturnedDate = l.ReturnDate.Format(time.RFC3339)
	}
	return dto
}

func toLoanDTOs(loans []circulation.Loan) []LoanDTO {
	dtos := make([]LoanDTO, len(loans))
	for i, l := range loans {
		dtos[i] = toLoanDTO(l)
	}
	return dtos
}

func toReservationDTO(r circulation.Reservation) ReservationDTO {
	return ReservationDTO{
		ID:       string(r.ID),
		BookID:   string(r.BookID),
		MemberID: string(r.MemberID),
		ResDate:  r.ResDate.Format(time.RFC3339),
		Status:   string(r.Status),
	}
}

func toReservationDTOs(rs []circulation.Reservation) []ReservationDTO {
	dtos := make([]ReservationDTO, len(rs))
	for i, r := range rs {
		dtos[i] = toReservationDTO(r)
	}
	return dtos
}

func toFulfillmentDTO(f *circulation.FulfillmentResult) *FulfillmentDTO {
	if f == nil {
		return nil
	}
	return &FulfillmentDTO{
		ReservationID: string(f.ReservationID),
		MemberID:      string(f.MemberID),
		TxnID:         string(f.TxnID),
		Due:           f.Due.Format("2006-01-02"),
	}
}
