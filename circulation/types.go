/*
Package circulation provides the core circulation and reservation engine.

PURPOSE:
  This package contains the domain types and rules for moving a book copy
  between "available", "borrowed", and "reserved" states: issuing loans,
  computing due dates and fines, and draining FIFO reservation queues when
  copies come back.

KEY CONCEPTS IN THIS FILE (types.go):
  - Book: A title with copy-availability counters
  - Member: A borrower with a category that selects a borrow policy
  - Loan: One borrow-to-return lifecycle, the audit record of circulation
  - Reservation: A waiting claim on a fully-checked-out title

DESIGN PRINCIPLES:
  1. Loans are never deleted - returns close them, the history stays
  2. Precision: fines use decimal.Decimal, never floats
  3. The engine holds no state; all state lives behind Store interfaces
  4. The clock is injected so date arithmetic is deterministic in tests

SEE ALSO:
  - policy.go: Borrow categories (loan duration, concurrent limit)
  - store.go: Persistence interfaces (Catalog, Membership, Ledger, queue)
  - engine.go: Issue / Return / Reserve orchestration
*/
package circulation

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// IDENTIFIERS
// =============================================================================

type BookID string
type MemberID string
type TxnID string
type ReservationID string

// =============================================================================
// BOOK - A title plus copy-availability counters
// =============================================================================

// Book is one catalog entry. TotalCopies counts every lendable copy;
// AvailableCopies counts the un-borrowed ones.
//
// INVARIANT: 0 <= AvailableCopies <= TotalCopies, and
// AvailableCopies + open loans referencing this book == TotalCopies.
type Book struct {
	ID        BookID
	ISBN      string
	Title     string
	Author    string
	Publisher string
	Year      int
	Rack      string

	TotalCopies     int
	AvailableCopies int
	// BorrowedCount only ever grows; it feeds the top-borrowed report.
	BorrowedCount int
}

// Available reports whether at least one copy can be issued right now.
func (b Book) Available() bool { return b.AvailableCopies > 0 }

// =============================================================================
// MEMBER - Users of the system
// =============================================================================

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleStaff  Role = "staff"
	RoleMember Role = "member"
)

// Category classifies a member for borrow-policy purposes.
// It is meaningful only for Role == RoleMember.
type Category string

const (
	CategoryStudent Category = "student"
	CategoryFaculty Category = "faculty"
	CategoryStaff   Category = "staff"
)

// ValidCategory reports whether c is one of the known borrow categories.
func ValidCategory(c Category) bool {
	switch c {
	case CategoryStudent, CategoryFaculty, CategoryStaff:
		return true
	}
	return false
}

// Member is a library user. Admin and staff accounts also use this type;
// Category is empty for them.
type Member struct {
	ID       MemberID
	Name     string
	Role     Role
	Category Category
}

// =============================================================================
// LOAN - Ledger entry for one borrow-to-return lifecycle
// =============================================================================

type LoanStatus string

const (
	LoanBorrowed LoanStatus = "borrowed"
	LoanReturned LoanStatus = "returned"
)

// Loan is one circulation ledger entry. Created with status borrowed and a
// zero fine; closed exactly once with the fine computed at return time.
// Loans are audit records and are never deleted.
type Loan struct {
	TxnID      TxnID
	MemberID   MemberID
	BookID     BookID
	IssueDate  time.Time
	DueDate    time.Time
	ReturnDate time.Time // zero until returned
	Fine       decimal.Decimal
	Status     LoanStatus
}

// Open reports whether the loan is still outstanding.
func (l Loan) Open() bool { return l.Status == LoanBorrowed }

// OverdueDays returns the whole UTC calendar days the loan is past due at
// the given instant. Returning on the due date itself costs nothing.
func (l Loan) OverdueDays(at time.Time) int {
	d := DaysBetween(l.DueDate, at)
	if d < 0 {
		return 0
	}
	return d
}

// =============================================================================
// RESERVATION - A waiting claim on a checked-out title
// =============================================================================

type ReservationStatus string

const (
	ReservationWaiting   ReservationStatus = "waiting"
	ReservationFulfilled ReservationStatus = "fulfilled"
	ReservationCancelled ReservationStatus = "cancelled"
)

// Reservation is one FIFO wait-list entry. Ordering within a book is by
// ResDate, ties broken by insertion order.
type Reservation struct {
	ID       ReservationID
	BookID   BookID
	MemberID MemberID
	ResDate  time.Time
	Status   ReservationStatus
}
