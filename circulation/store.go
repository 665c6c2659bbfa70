/*
store.go - Persistence interfaces for the circulation engine

PURPOSE:
  Defines the boundary between domain logic and the database. Four logical
  collections - books, users, loans, reservations - each owned by exactly
  one interface. The engine composes them inside a single transaction per
  action via TxStore.

OWNERSHIP:
  Catalog          owns books (copy counters included)
  Membership       owns users/members
  Ledger           owns loans (the audit trail; rows are never deleted)
  ReservationQueue owns reservations (FIFO per book)

ATOMICITY CONTRACT:
  WithTx(fn) runs fn against a Store whose writes all commit or all roll
  back. Copy-counter updates behave as compare-and-set: when two issues
  race for the last copy, at most one decrement succeeds and the loser
  sees ErrNoCopiesAvailable.

IMPLEMENTATIONS:
  - store/sqlite:          production SQLite
  - circulation/store:     in-memory, for tests and dev
*/
package circulation

import "context"

// =============================================================================
// CATALOG - Book records and copy-availability counters
// =============================================================================

type Catalog interface {
	// GetBook returns the book or ErrBookNotFound.
	GetBook(ctx context.Context, id BookID) (Book, error)

	// PutBook inserts or updates a book. On update, a change to
	// TotalCopies shifts AvailableCopies by the same delta so outstanding
	// loans stay accounted for.
	PutBook(ctx context.Context, b Book) error

	// DecrementAvailable atomically takes one copy: available -1,
	// borrowed_count +1. Returns ErrNoCopiesAvailable when none are left;
	// the counters are untouched in that case.
	DecrementAvailable(ctx context.Context, id BookID) error

	// IncrementAvailable atomically returns one copy. Exceeding
	// TotalCopies is a programming error surfaced as ErrInconsistentState;
	// nothing is written in that case.
	IncrementAvailable(ctx context.Context, id BookID) error

	// RemoveBook deletes a book. Fails with ErrCopiesOutstanding unless
	// every copy is back on the shelf.
	RemoveBook(ctx context.Context, id BookID) error

	// ListBooks returns the whole catalog ordered by id.
	ListBooks(ctx context.Context) ([]Book, error)

	// SearchBooks matches q against title, author and ISBN.
	SearchBooks(ctx context.Context, q string) ([]Book, error)

	// TopBorrowed returns up to n books by descending BorrowedCount.
	TopBorrowed(ctx context.Context, n int) ([]Book, error)
}

// =============================================================================
// MEMBERSHIP - User and member records
// =============================================================================

type Membership interface {
	// GetUser returns any account (admin, staff or member) or ErrUserNotFound.
	GetUser(ctx context.Context, id MemberID) (Member, error)

	// GetMember returns the account only if it has the member role;
	// ErrMemberNotFound otherwise.
	GetMember(ctx context.Context, id MemberID) (Member, error)

	// PutUser inserts or updates an account.
	PutUser(ctx context.Context, m Member) error

	// ListUsers returns every account ordered by id.
	ListUsers(ctx context.Context) ([]Member, error)

	// ListMembers returns accounts with the member role, ordered by id.
	ListMembers(ctx context.Context) ([]Member, error)
}

// =============================================================================
// LEDGER - Loan records (append-then-close, never deleted)
// =============================================================================

type Ledger interface {
	// CreateLoan inserts a loan with status borrowed and a zero fine.
	CreateLoan(ctx context.Context, l Loan) error

	// GetLoan returns the loan or ErrLoanNotFound.
	GetLoan(ctx context.Context, id TxnID) (Loan, error)

	// CloseLoan stamps the return date and fine and flips the status.
	// Closing an already-returned loan fails with ErrAlreadyReturned and
	// charges nothing.
	CloseLoan(ctx context.Context, id TxnID, l Loan) error

	// CountOpenLoans returns the member's loans with status borrowed.
	CountOpenLoans(ctx context.Context, member MemberID) (int, error)

	// LoansByMember returns the member's full history, newest first.
	LoansByMember(ctx context.Context, member MemberID) ([]Loan, error)

	// OpenLoans returns every outstanding loan, oldest first.
	OpenLoans(ctx context.Context) ([]Loan, error)
}

// =============================================================================
// RESERVATION QUEUE - Per-book FIFO wait-lists
// =============================================================================

type ReservationQueue interface {
	// Enqueue appends a waiting reservation.
	Enqueue(ctx context.Context, r Reservation) error

	// PeekHead returns the earliest waiting reservation for the book by
	// ResDate (ties by insertion order), or ErrNoReservation.
	PeekHead(ctx context.Context, book BookID) (Reservation, error)

	// MarkFulfilled moves a waiting reservation to fulfilled.
	MarkFulfilled(ctx context.Context, id ReservationID) error

	// Cancel moves a waiting reservation to cancelled. ErrNoReservation
	// if the id is unknown or no longer waiting.
	Cancel(ctx context.Context, id ReservationID) error

	// CountWaiting returns the queue length for a book.
	CountWaiting(ctx context.Context, book BookID) (int, error)

	// ReservationsForBook returns the book's waiting queue, FIFO order.
	ReservationsForBook(ctx context.Context, book BookID) ([]Reservation, error)

	// ReservationsForMember returns the member's reservation history,
	// terminal states included.
	ReservationsForMember(ctx context.Context, member MemberID) ([]Reservation, error)
}

// =============================================================================
// COMPOSED STORE
// =============================================================================

// Store bundles the four owned collections behind one handle.
type Store interface {
	Catalog
	Membership
	Ledger
	ReservationQueue
}

// TxStore adds transactional composition. Engine actions run their
// multi-collection mutations inside WithTx so no torn intermediate state
// is ever observable.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. fn's error rolls back;
	// nil commits.
	WithTx(ctx context.Context, fn func(Store) error) error
}
