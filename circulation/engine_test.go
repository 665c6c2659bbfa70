package circulation_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/circulation-engine/circulation"
	"github.com/warp/circulation-engine/circulation/store"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

func jan(day int) time.Time {
	return time.Date(2024, time.January, day, 10, 0, 0, 0, time.UTC)
}

type fixture struct {
	store  *store.Memory
	clock  *circulation.FixedClock
	engine *circulation.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	mem := store.NewMemory()
	clock := &circulation.FixedClock{At: jan(1)}
	engine := circulation.NewEngine(mem,
		circulation.WithClock(clock),
		circulation.WithIDGenerator(&circulation.SequenceGenerator{}),
	)
	return &fixture{store: mem, clock: clock, engine: engine}
}

func (f *fixture) addBook(t *testing.T, id string, copies int) {
	t.Helper()
	err := f.store.PutBook(context.Background(), circulation.Book{
		ID:          circulation.BookID(id),
		Title:       "Title " + id,
		Author:      "Author",
		TotalCopies: copies,
	})
	require.NoError(t, err)
}

func (f *fixture) addMember(t *testing.T, id string, cat circulation.Category) {
	t.Helper()
	err := f.store.PutUser(context.Background(), circulation.Member{
		ID:       circulation.MemberID(id),
		Name:     "Member " + id,
		Role:     circulation.RoleMember,
		Category: cat,
	})
	require.NoError(t, err)
}

func (f *fixture) book(t *testing.T, id string) circulation.Book {
	t.Helper()
	b, err := f.store.GetBook(context.Background(), circulation.BookID(id))
	require.NoError(t, err)
	return b
}

// =============================================================================
// ISSUE TESTS
// =============================================================================

func TestIssue_HappyPath(t *testing.T) {
	// GIVEN: A student member and a book with 3 copies
	// WHEN: The member borrows it on Jan 1
	// THEN: A loan opens due Jan 15 and one copy comes off the shelf

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 3)
	f.addMember(t, "m1", circulation.CategoryStudent)

	result, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	assert.Equal(t, circulation.TxnID("TX0001"), result.TxnID)
	assert.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), result.Due)

	b := f.book(t, "b1")
	assert.Equal(t, 2, b.AvailableCopies)
	assert.Equal(t, 1, b.BorrowedCount)

	loan, err := f.store.GetLoan(ctx, result.TxnID)
	require.NoError(t, err)
	assert.True(t, loan.Open())
	assert.True(t, loan.Fine.IsZero())
}

func TestIssue_FacultyGetsLongerLoan(t *testing.T) {
	// GIVEN: A faculty member
	// WHEN: They borrow on Jan 1
	// THEN: The due date is 30 days out, not 14

	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "prof", circulation.CategoryFaculty)

	result, err := f.engine.Issue(context.Background(), "prof", "b1")
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, time.January, 31, 0, 0, 0, 0, time.UTC), result.Due)
}

func TestIssue_UnknownMember(t *testing.T) {
	f := newFixture(t)
	f.addBook(t, "b1", 1)

	_, err := f.engine.Issue(context.Background(), "ghost", "b1")
	assert.ErrorIs(t, err, circulation.ErrMemberNotFound)
}

func TestIssue_UnknownBook(t *testing.T) {
	f := newFixture(t)
	f.addMember(t, "m1", circulation.CategoryStudent)

	_, err := f.engine.Issue(context.Background(), "m1", "ghost")
	assert.ErrorIs(t, err, circulation.ErrBookNotFound)
}

func TestIssue_NoCopiesAvailable_NothingChanges(t *testing.T) {
	// GIVEN: A single-copy book already checked out
	// WHEN: A second member tries to borrow it
	// THEN: The issue fails and no loan or counter mutation happens

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryStudent)

	_, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	_, err = f.engine.Issue(ctx, "m2", "b1")
	assert.ErrorIs(t, err, circulation.ErrNoCopiesAvailable)

	b := f.book(t, "b1")
	assert.Equal(t, 0, b.AvailableCopies)
	assert.Equal(t, 1, b.BorrowedCount)

	loans, err := f.store.LoansByMember(ctx, "m2")
	require.NoError(t, err)
	assert.Empty(t, loans)
}

func TestIssue_BorrowLimit(t *testing.T) {
	// GIVEN: A student at their concurrent limit of 5 open loans
	// WHEN: They try to borrow a sixth book
	// THEN: The issue fails with the limit details and the shelf is untouched

	ctx := context.Background()
	f := newFixture(t)
	f.addMember(t, "m1", circulation.CategoryStudent)
	for i := 0; i < 6; i++ {
		f.addBook(t, string(rune('a'+i)), 1)
	}
	for i := 0; i < 5; i++ {
		_, err := f.engine.Issue(ctx, "m1", circulation.BookID(rune('a'+i)))
		require.NoError(t, err)
	}

	_, err := f.engine.Issue(ctx, "m1", "f")
	assert.ErrorIs(t, err, circulation.ErrBorrowLimit)

	var limitErr *circulation.BorrowLimitError
	require.ErrorAs(t, err, &limitErr)
	assert.Equal(t, 5, limitErr.Limit)
	assert.Equal(t, 5, limitErr.Open)

	b := f.book(t, "f")
	assert.Equal(t, 1, b.AvailableCopies)
}

func TestIssue_ReturnFreesLimitSlot(t *testing.T) {
	// GIVEN: A student at the limit who returns one book
	// WHEN: They borrow again
	// THEN: The issue succeeds

	ctx := context.Background()
	f := newFixture(t)
	f.addMember(t, "m1", circulation.CategoryStudent)
	for i := 0; i < 6; i++ {
		f.addBook(t, string(rune('a'+i)), 1)
	}
	var first circulation.IssueResult
	for i := 0; i < 5; i++ {
		r, err := f.engine.Issue(ctx, "m1", circulation.BookID(rune('a'+i)))
		require.NoError(t, err)
		if i == 0 {
			first = r
		}
	}

	_, err := f.engine.Return(ctx, first.TxnID)
	require.NoError(t, err)

	_, err = f.engine.Issue(ctx, "m1", "f")
	assert.NoError(t, err)
}

// =============================================================================
// RETURN AND FINE TESTS
// =============================================================================

func TestReturn_OnTime_NoFine(t *testing.T) {
	// GIVEN: A loan due Jan 15
	// WHEN: It comes back on the due date
	// THEN: No fine is charged and the copy is back on the shelf

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)

	issued, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	f.clock.At = jan(15)
	result, err := f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)

	assert.Equal(t, 0, result.OverdueDays)
	assert.True(t, result.Fine.IsZero())
	assert.Nil(t, result.Fulfilled)
	assert.Equal(t, 1, f.book(t, "b1").AvailableCopies)
}

func TestReturn_Late_ChargesPerDay(t *testing.T) {
	// GIVEN: A loan due Jan 10
	// WHEN: It comes back on Jan 13
	// THEN: The fine is 3 days at the default rate of 2 per day

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)

	issued, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)
	require.Equal(t, time.Date(2024, time.January, 15, 0, 0, 0, 0, time.UTC), issued.Due)

	f.clock.At = jan(18)
	result, err := f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)

	assert.Equal(t, 3, result.OverdueDays)
	assert.True(t, result.Fine.Equal(decimal.NewFromInt(6)), "got fine %s", result.Fine)

	loan, err := f.store.GetLoan(ctx, issued.TxnID)
	require.NoError(t, err)
	assert.Equal(t, circulation.LoanReturned, loan.Status)
	assert.True(t, loan.Fine.Equal(decimal.NewFromInt(6)))
}

func TestReturn_CustomFineRate(t *testing.T) {
	// GIVEN: An engine configured with a 0.50 per day rate
	// WHEN: A loan comes back 4 days late
	// THEN: The fine is 2.00

	ctx := context.Background()
	mem := store.NewMemory()
	clock := &circulation.FixedClock{At: jan(1)}
	engine := circulation.NewEngine(mem,
		circulation.WithClock(clock),
		circulation.WithIDGenerator(&circulation.SequenceGenerator{}),
		circulation.WithFinePerDay(decimal.RequireFromString("0.5")),
	)
	require.NoError(t, mem.PutBook(ctx, circulation.Book{ID: "b1", Title: "T", TotalCopies: 1}))
	require.NoError(t, mem.PutUser(ctx, circulation.Member{ID: "m1", Role: circulation.RoleMember, Category: circulation.CategoryStudent}))

	issued, err := engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	clock.At = jan(19)
	result, err := engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)
	assert.True(t, result.Fine.Equal(decimal.NewFromInt(2)), "got fine %s", result.Fine)
}

func TestReturn_Twice_ChargedOnce(t *testing.T) {
	// GIVEN: A returned loan
	// WHEN: The same transaction is returned again
	// THEN: The second call fails and the counters do not move twice

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)

	issued, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	f.clock.At = jan(20)
	first, err := f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)

	_, err = f.engine.Return(ctx, issued.TxnID)
	assert.ErrorIs(t, err, circulation.ErrAlreadyReturned)

	loan, err := f.store.GetLoan(ctx, issued.TxnID)
	require.NoError(t, err)
	assert.True(t, loan.Fine.Equal(first.Fine))
	assert.Equal(t, 1, f.book(t, "b1").AvailableCopies)
}

func TestReturn_UnknownLoan(t *testing.T) {
	f := newFixture(t)
	_, err := f.engine.Return(context.Background(), "TXnope")
	assert.ErrorIs(t, err, circulation.ErrLoanNotFound)
}

// =============================================================================
// RESERVATION TESTS
// =============================================================================

func TestReserve_AvailableBook_Rejected(t *testing.T) {
	// GIVEN: A book with a copy on the shelf
	// WHEN: A member tries to reserve it
	// THEN: The reservation is rejected; they should borrow instead

	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)

	_, err := f.engine.Reserve(context.Background(), "m1", "b1")
	assert.ErrorIs(t, err, circulation.ErrBookAvailable)
}

func TestReserve_QueuePositions(t *testing.T) {
	// GIVEN: A fully checked-out book
	// WHEN: Two members reserve it in turn
	// THEN: They get positions 1 and 2

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryStudent)
	f.addMember(t, "m3", circulation.CategoryStudent)

	_, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	r1, err := f.engine.Reserve(ctx, "m2", "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, r1.Position)

	r2, err := f.engine.Reserve(ctx, "m3", "b1")
	require.NoError(t, err)
	assert.Equal(t, 2, r2.Position)
}

func TestReturn_FulfillsEarliestReservation(t *testing.T) {
	// GIVEN: m2 reserved before m3 on a checked-out book
	// WHEN: The copy comes back
	// THEN: m2 gets it, the copy never touches the shelf, m3 keeps waiting

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryStudent)
	f.addMember(t, "m3", circulation.CategoryStudent)

	issued, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	f.clock.At = jan(2)
	_, err = f.engine.Reserve(ctx, "m2", "b1")
	require.NoError(t, err)
	f.clock.At = jan(3)
	_, err = f.engine.Reserve(ctx, "m3", "b1")
	require.NoError(t, err)

	f.clock.At = jan(5)
	result, err := f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)

	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, circulation.MemberID("m2"), result.Fulfilled.MemberID)
	assert.Equal(t, time.Date(2024, time.January, 19, 0, 0, 0, 0, time.UTC), result.Fulfilled.Due)

	// The freed copy went straight to m2.
	assert.Equal(t, 0, f.book(t, "b1").AvailableCopies)

	m2Loans, err := f.store.LoansByMember(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, m2Loans, 1)
	assert.True(t, m2Loans[0].Open())

	waiting, err := f.store.CountWaiting(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 1, waiting)
}

func TestReturn_FulfillmentBypassesBorrowLimit(t *testing.T) {
	// GIVEN: A reserving member who has since reached their borrow limit
	// WHEN: The reserved copy comes back
	// THEN: The reservation is still honored

	ctx := context.Background()
	f := newFixture(t)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryStudent)
	f.addBook(t, "wanted", 1)
	for i := 0; i < 5; i++ {
		f.addBook(t, string(rune('a'+i)), 1)
	}

	issued, err := f.engine.Issue(ctx, "m1", "wanted")
	require.NoError(t, err)

	_, err = f.engine.Reserve(ctx, "m2", "wanted")
	require.NoError(t, err)

	// m2 fills up their limit while waiting.
	for i := 0; i < 5; i++ {
		_, err := f.engine.Issue(ctx, "m2", circulation.BookID(rune('a'+i)))
		require.NoError(t, err)
	}

	result, err := f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)
	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, circulation.MemberID("m2"), result.Fulfilled.MemberID)

	open, err := f.store.CountOpenLoans(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, 6, open)
}

func TestCancelReservation(t *testing.T) {
	// GIVEN: m2 at the head of the queue and m3 behind
	// WHEN: m2 cancels and the copy comes back
	// THEN: m3 gets it

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryStudent)
	f.addMember(t, "m3", circulation.CategoryStudent)

	issued, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)

	f.clock.At = jan(2)
	r1, err := f.engine.Reserve(ctx, "m2", "b1")
	require.NoError(t, err)
	f.clock.At = jan(3)
	_, err = f.engine.Reserve(ctx, "m3", "b1")
	require.NoError(t, err)

	require.NoError(t, f.engine.CancelReservation(ctx, r1.ReservationID))

	result, err := f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)
	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, circulation.MemberID("m3"), result.Fulfilled.MemberID)
}

func TestCancelReservation_OnlyWaitingEntries(t *testing.T) {
	// GIVEN: A reservation already fulfilled by a return
	// WHEN: Someone tries to cancel it
	// THEN: The cancel fails

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b1", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryStudent)

	issued, err := f.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)
	r, err := f.engine.Reserve(ctx, "m2", "b1")
	require.NoError(t, err)
	_, err = f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)

	err = f.engine.CancelReservation(ctx, r.ReservationID)
	assert.ErrorIs(t, err, circulation.ErrNoReservation)
}

// =============================================================================
// END-TO-END SCENARIO
// =============================================================================

func TestScenario_LateReturnWithWaitingReader(t *testing.T) {
	// GIVEN: The last copy issued Jan 1 (due Jan 15) with a waiting reader
	// WHEN: It comes back Jan 21, six days late
	// THEN: The fine is 12, the waiting reader holds the copy due Feb 4,
	//       and the shelf count stays at zero throughout

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "b3", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryStudent)

	issued, err := f.engine.Issue(ctx, "m1", "b3")
	require.NoError(t, err)

	f.clock.At = jan(4)
	_, err = f.engine.Reserve(ctx, "m2", "b3")
	require.NoError(t, err)

	f.clock.At = jan(21)
	result, err := f.engine.Return(ctx, issued.TxnID)
	require.NoError(t, err)

	assert.Equal(t, 6, result.OverdueDays)
	assert.True(t, result.Fine.Equal(decimal.NewFromInt(12)), "got fine %s", result.Fine)

	require.NotNil(t, result.Fulfilled)
	assert.Equal(t, time.Date(2024, time.February, 4, 0, 0, 0, 0, time.UTC), result.Fulfilled.Due)

	b := f.book(t, "b3")
	assert.Equal(t, 0, b.AvailableCopies)
	assert.Equal(t, 2, b.BorrowedCount)

	waiting, err := f.store.CountWaiting(ctx, "b3")
	require.NoError(t, err)
	assert.Equal(t, 0, waiting)
}

// =============================================================================
// OVERDUE REPORT TESTS
// =============================================================================

func TestOverdue_ListsOnlyLateOpenLoans(t *testing.T) {
	// GIVEN: One overdue loan, one current loan, one returned-late loan
	// WHEN: The overdue report runs
	// THEN: Only the open late loan appears, with its projected fine

	ctx := context.Background()
	f := newFixture(t)
	f.addBook(t, "late", 1)
	f.addBook(t, "current", 1)
	f.addBook(t, "closed", 1)
	f.addMember(t, "m1", circulation.CategoryStudent)
	f.addMember(t, "m2", circulation.CategoryFaculty)

	lateIssue, err := f.engine.Issue(ctx, "m1", "late")
	require.NoError(t, err)
	closedIssue, err := f.engine.Issue(ctx, "m1", "closed")
	require.NoError(t, err)

	f.clock.At = jan(16)
	_, err = f.engine.Return(ctx, closedIssue.TxnID)
	require.NoError(t, err)
	_, err = f.engine.Issue(ctx, "m2", "current")
	require.NoError(t, err)

	f.clock.At = jan(17)
	overdue, err := f.engine.Overdue(ctx)
	require.NoError(t, err)

	require.Len(t, overdue, 1)
	assert.Equal(t, lateIssue.TxnID, overdue[0].Loan.TxnID)
	assert.Equal(t, 2, overdue[0].OverdueDays)
	assert.True(t, overdue[0].ProjectedFine.Equal(decimal.NewFromInt(4)))
}
