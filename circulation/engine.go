/*
engine.go - The circulation state machine

PURPOSE:
  Orchestrates Catalog, Membership, Ledger and ReservationQueue to issue,
  return and reserve books as atomic actions. Per copy the conceptual
  machine is:

    Available -> Borrowed -> (Returned -> Available | Reserved-then-reissued)

  and per reservation:

    Waiting -> Fulfilled | Cancelled

AUTO-FULFILLMENT:
  A return drains the head of the book's FIFO queue inside the same
  transaction: the freed copy is earmarked for the earliest waiting
  member and re-issued immediately, bypassing the availability and
  borrow-limit checks - the reservation itself is the authorization.

FAILURE SEMANTICS:
  Every failure is a named condition from errors.go. None is retried here
  and none is fatal; the engine stays usable for the next action.
*/
package circulation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// ENGINE
// =============================================================================

// Engine composes the four stores. It holds no circulation state of its
// own; every action is one logical transaction against the store.
type Engine struct {
	store      TxStore
	policies   Policies
	finePerDay decimal.Decimal
	clock      Clock
	ids        IDGenerator
}

// Option configures an Engine.
type Option func(*Engine)

// WithPolicies overrides the per-category borrow policies.
func WithPolicies(p Policies) Option {
	return func(e *Engine) { e.policies = p }
}

// WithFinePerDay overrides the fine rate per overdue day.
func WithFinePerDay(rate decimal.Decimal) Option {
	return func(e *Engine) { e.finePerDay = rate }
}

// WithClock injects the time source.
func WithClock(c Clock) Option {
	return func(e *Engine) { e.clock = c }
}

// WithIDGenerator injects the identifier source.
func WithIDGenerator(g IDGenerator) Option {
	return func(e *Engine) { e.ids = g }
}

// NewEngine creates an engine over the given store with default policies,
// fine rate, system clock and UUID identifiers.
func NewEngine(store TxStore, opts ...Option) *Engine {
	e := &Engine{
		store:      store,
		policies:   DefaultPolicies(),
		finePerDay: DefaultFinePerDay,
		clock:      SystemClock{},
		ids:        UUIDGenerator{},
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Store exposes the underlying store for read-side callers (listings,
// reports). Mutations should go through the engine actions.
func (e *Engine) Store() TxStore { return e.store }

// Policies returns the active policy table.
func (e *Engine) Policies() Policies { return e.policies }

// FinePerDay returns the active fine rate.
func (e *Engine) FinePerDay() decimal.Decimal { return e.finePerDay }

// =============================================================================
// RESULTS
// =============================================================================

// IssueResult reports a successful issue.
type IssueResult struct {
	TxnID TxnID
	Due   time.Time
}

// FulfillmentResult reports a reservation drained by a return.
type FulfillmentResult struct {
	ReservationID ReservationID
	MemberID      MemberID
	TxnID         TxnID
	Due           time.Time
}

// ReturnResult reports a completed return.
type ReturnResult struct {
	TxnID       TxnID
	BookID      BookID
	OverdueDays int
	Fine        decimal.Decimal

	// Fulfilled is non-nil when the freed copy went straight to the head
	// of the reservation queue.
	Fulfilled *FulfillmentResult
}

// ReserveResult reports a queued reservation.
type ReserveResult struct {
	ReservationID ReservationID
	// Position is the 1-based place in the book's wait-list.
	Position int
}

// =============================================================================
// ISSUE
// =============================================================================

// Issue lends one copy of a book to a member.
//
// Checks, in order: member exists (ErrMemberNotFound), book exists
// (ErrBookNotFound), a copy is free (ErrNoCopiesAvailable), member is
// under their concurrent limit (BorrowLimitError). The loan insert and
// the copy decrement commit together or not at all.
func (e *Engine) Issue(ctx context.Context, memberID MemberID, bookID BookID) (IssueResult, error) {
	now := e.clock.Now()

	member, err := e.store.GetMember(ctx, memberID)
	if err != nil {
		return IssueResult{}, err
	}
	book, err := e.store.GetBook(ctx, bookID)
	if err != nil {
		return IssueResult{}, err
	}
	if !book.Available() {
		return IssueResult{}, ErrNoCopiesAvailable
	}

	var result IssueResult
	err = e.store.WithTx(ctx, func(s Store) error {
		open, err := s.CountOpenLoans(ctx, member.ID)
		if err != nil {
			return err
		}
		policy := e.policies.For(member.Category)
		if open >= policy.ConcurrentLimit {
			return &BorrowLimitError{MemberID: member.ID, Limit: policy.ConcurrentLimit, Open: open}
		}

		loan, err := e.createLoan(ctx, s, member, bookID, now)
		if err != nil {
			return err
		}
		result = IssueResult{TxnID: loan.TxnID, Due: loan.DueDate}
		return nil
	})
	if err != nil {
		return IssueResult{}, err
	}
	return result, nil
}

// createLoan inserts the ledger row and takes the copy. Shared by Issue
// and reservation fulfillment; runs inside the caller's transaction.
func (e *Engine) createLoan(ctx context.Context, s Store, member Member, bookID BookID, now time.Time) (Loan, error) {
	policy := e.policies.For(member.Category)
	loan := Loan{
		TxnID:     e.ids.NewTxnID(),
		MemberID:  member.ID,
		BookID:    bookID,
		IssueDate: now,
		DueDate:   DateOf(now).AddDate(0, 0, policy.LoanDays),
		Fine:      decimal.Zero,
		Status:    LoanBorrowed,
	}
	if err := s.CreateLoan(ctx, loan); err != nil {
		return Loan{}, fmt.Errorf("create loan: %w", err)
	}
	if err := s.DecrementAvailable(ctx, bookID); err != nil {
		return Loan{}, err
	}
	return loan, nil
}

// =============================================================================
// RETURN
// =============================================================================

// Return closes a loan, computes the fine, frees the copy, and drains the
// book's reservation queue when a member is waiting. The whole flow runs
// in one transaction.
func (e *Engine) Return(ctx context.Context, txnID TxnID) (ReturnResult, error) {
	now := e.clock.Now()

	var result ReturnResult
	err := e.store.WithTx(ctx, func(s Store) error {
		loan, err := s.GetLoan(ctx, txnID)
		if err != nil {
			return err
		}
		if loan.Status == LoanReturned {
			return ErrAlreadyReturned
		}

		overdue := loan.OverdueDays(now)
		fine := e.finePerDay.Mul(decimal.NewFromInt(int64(overdue)))

		loan.ReturnDate = now
		loan.Fine = fine
		loan.Status = LoanReturned
		if err := s.CloseLoan(ctx, txnID, loan); err != nil {
			return err
		}
		if err := s.IncrementAvailable(ctx, loan.BookID); err != nil {
			return err
		}
		result = ReturnResult{TxnID: txnID, BookID: loan.BookID, OverdueDays: overdue, Fine: fine}

		fulfilled, err := e.fulfillHead(ctx, s, loan.BookID, now)
		if err != nil {
			return err
		}
		result.Fulfilled = fulfilled
		return nil
	})
	if err != nil {
		return ReturnResult{}, err
	}
	return result, nil
}

// fulfillHead re-issues the just-freed copy to the earliest waiting
// reservation, if any. The availability and borrow-limit checks are
// skipped: the copy is earmarked and the reservation authorizes the loan.
func (e *Engine) fulfillHead(ctx context.Context, s Store, bookID BookID, now time.Time) (*FulfillmentResult, error) {
	head, err := s.PeekHead(ctx, bookID)
	if errors.Is(err, ErrNoReservation) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	if err := s.MarkFulfilled(ctx, head.ID); err != nil {
		return nil, err
	}

	// The waiting account may have been deleted or demoted since it
	// queued; fall back to the student policy rather than failing the
	// member's return.
	member, err := s.GetMember(ctx, head.MemberID)
	if err != nil {
		if !IsNotFound(err) {
			return nil, err
		}
		member = Member{ID: head.MemberID, Role: RoleMember, Category: CategoryStudent}
	}

	loan, err := e.createLoan(ctx, s, member, bookID, now)
	if err != nil {
		return nil, err
	}
	return &FulfillmentResult{
		ReservationID: head.ID,
		MemberID:      head.MemberID,
		TxnID:         loan.TxnID,
		Due:           loan.DueDate,
	}, nil
}

// =============================================================================
// RESERVE
// =============================================================================

// Reserve queues a member for a fully-checked-out title. A free copy
// means the caller should issue instead (ErrBookAvailable).
func (e *Engine) Reserve(ctx context.Context, memberID MemberID, bookID BookID) (ReserveResult, error) {
	now := e.clock.Now()

	member, err := e.store.GetMember(ctx, memberID)
	if err != nil {
		return ReserveResult{}, err
	}
	book, err := e.store.GetBook(ctx, bookID)
	if err != nil {
		return ReserveResult{}, err
	}
	if book.Available() {
		return ReserveResult{}, ErrBookAvailable
	}

	var result ReserveResult
	err = e.store.WithTx(ctx, func(s Store) error {
		r := Reservation{
			ID:       e.ids.NewReservationID(),
			BookID:   bookID,
			MemberID: member.ID,
			ResDate:  now,
			Status:   ReservationWaiting,
		}
		if err := s.Enqueue(ctx, r); err != nil {
			return err
		}
		waiting, err := s.CountWaiting(ctx, bookID)
		if err != nil {
			return err
		}
		result = ReserveResult{ReservationID: r.ID, Position: waiting}
		return nil
	})
	if err != nil {
		return ReserveResult{}, err
	}
	return result, nil
}

// CancelReservation moves a waiting reservation to its cancelled terminal
// state.
func (e *Engine) CancelReservation(ctx context.Context, id ReservationID) error {
	return e.store.WithTx(ctx, func(s Store) error {
		return s.Cancel(ctx, id)
	})
}

// =============================================================================
// REPORTS
// =============================================================================

// OverdueLoan is one row of the overdue report, with the fine the loan
// would incur if returned now.
type OverdueLoan struct {
	Loan          Loan
	OverdueDays   int
	ProjectedFine decimal.Decimal
}

// Overdue lists open loans that are past due at the current instant.
func (e *Engine) Overdue(ctx context.Context) ([]OverdueLoan, error) {
	now := e.clock.Now()
	open, err := e.store.OpenLoans(ctx)
	if err != nil {
		return nil, err
	}
	var out []OverdueLoan
	for _, l := range open {
		days := l.OverdueDays(now)
		if days <= 0 {
			continue
		}
		out = append(out, OverdueLoan{
			Loan:          l,
			OverdueDays:   days,
			ProjectedFine: e.finePerDay.Mul(decimal.NewFromInt(int64(days))),
		})
	}
	return out, nil
}
