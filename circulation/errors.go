/*
errors.go - Centralized error types for the circulation engine

PURPOSE:
  All expected failure conditions in one place. Callers branch on these
  with errors.Is / errors.As; the CLI and API translate them for display.

ERROR CATEGORIES:
  1. Not found      - member/book/loan/reservation absent
  2. State conflict - already returned, copies outstanding, book available
  3. Policy         - borrow limit reached, no copies available
  4. Invariant      - store counters out of agreement (internal fault)

None of the first three categories is fatal: the engine stays usable for
the next action. Invariant faults abort only the offending transaction.
*/
package circulation

import (
	"errors"
	"fmt"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrBookNotFound is returned when a referenced book does not exist.
	ErrBookNotFound = errors.New("book not found")

	// ErrMemberNotFound is returned when a referenced member does not exist
	// or the user exists but does not have the member role.
	ErrMemberNotFound = errors.New("member not found")

	// ErrUserNotFound is returned when a user account does not exist.
	ErrUserNotFound = errors.New("user not found")

	// ErrLoanNotFound is returned when a transaction id matches no loan.
	ErrLoanNotFound = errors.New("loan not found")

	// ErrNoReservation is returned by queue lookups when no waiting
	// reservation exists. Expected on most returns.
	ErrNoReservation = errors.New("no waiting reservation")

	// ErrNoCopiesAvailable is returned when an issue races or arrives for a
	// fully-checked-out title. Callers should offer a reservation instead.
	ErrNoCopiesAvailable = errors.New("no copies available")

	// ErrAlreadyReturned is returned when closing a loan twice. The second
	// close is a no-op error, never a double charge.
	ErrAlreadyReturned = errors.New("loan already returned")

	// ErrCopiesOutstanding is returned when removing a book that still has
	// borrowed copies.
	ErrCopiesOutstanding = errors.New("copies outstanding")

	// ErrBookAvailable is returned when reserving a title that has a free
	// copy. Reservations exist only for fully-checked-out titles.
	ErrBookAvailable = errors.New("book is available; borrow it instead")

	// ErrBorrowLimit is returned when a member is at their concurrent limit.
	ErrBorrowLimit = errors.New("borrow limit reached")

	// ErrInconsistentState is an internal-consistency fault: the copy
	// counters disagree with the ledger. The offending transaction is
	// rolled back and the store keeps its last valid state.
	ErrInconsistentState = errors.New("system inconsistency: copy counters out of agreement")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// BorrowLimitError reports a refused issue with the limit that applied.
type BorrowLimitError struct {
	MemberID MemberID
	Limit    int
	Open     int
}

func (e *BorrowLimitError) Error() string {
	return fmt.Sprintf("borrow limit reached (%d): member %s has %d open loans", e.Limit, e.MemberID, e.Open)
}

func (e *BorrowLimitError) Unwrap() error { return ErrBorrowLimit }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether err names an absent member/book/loan/reservation.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrBookNotFound) ||
		errors.Is(err, ErrMemberNotFound) ||
		errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrLoanNotFound) ||
		errors.Is(err, ErrNoReservation)
}

// IsConflict reports whether err is a state conflict: the request was
// well-formed but the store is in a state that forbids it.
func IsConflict(err error) bool {
	return errors.Is(err, ErrAlreadyReturned) ||
		errors.Is(err, ErrCopiesOutstanding) ||
		errors.Is(err, ErrBookAvailable)
}

// IsPolicyViolation reports whether err is a borrow-policy refusal.
func IsPolicyViolation(err error) bool {
	return errors.Is(err, ErrBorrowLimit) ||
		errors.Is(err, ErrNoCopiesAvailable)
}

// IsClientError reports whether the caller, not the system, caused err.
func IsClientError(err error) bool {
	return IsNotFound(err) || IsConflict(err) || IsPolicyViolation(err)
}
