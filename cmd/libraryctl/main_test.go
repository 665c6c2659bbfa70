package main

import (
	"bufio"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/circulation-engine/circulation"
	"github.com/warp/circulation-engine/store/sqlite"
)

// newTestApp builds an app over a fresh in-memory database with prompts
// answered from the scripted input.
func newTestApp(t *testing.T, input string) *app {
	t.Helper()
	st, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	return &app{
		store:  st,
		engine: circulation.NewEngine(st),
		in:     bufio.NewReader(strings.NewReader(input)),
	}
}

func seedCheckedOutBook(t *testing.T, a *app) {
	t.Helper()
	ctx := context.Background()
	require.NoError(t, a.store.PutBook(ctx, circulation.Book{ID: "b1", Title: "The Go Programming Language", TotalCopies: 1}))
	require.NoError(t, a.store.PutUser(ctx, circulation.Member{ID: "m1", Name: "Ana", Role: circulation.RoleMember, Category: circulation.CategoryStudent}))
	require.NoError(t, a.store.PutUser(ctx, circulation.Member{ID: "m2", Name: "Ben", Role: circulation.RoleMember, Category: circulation.CategoryStudent}))
	_, err := a.engine.Issue(ctx, "m1", "b1")
	require.NoError(t, err)
}

func TestReserveBook_AtTheDeskForMember(t *testing.T) {
	// GIVEN: the last copy of b1 out with m1 and walk-in member m2
	// WHEN: a librarian reserves the title on m2's behalf
	// THEN: m2 holds the waiting reservation

	ctx := context.Background()
	a := newTestApp(t, "m2\nb1\n")
	seedCheckedOutBook(t, a)

	a.reserveBook(ctx, "")

	rs, err := a.store.ReservationsForMember(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, rs, 1)
	assert.Equal(t, circulation.BookID("b1"), rs[0].BookID)
	assert.Equal(t, circulation.ReservationWaiting, rs[0].Status)
}

func TestReserveBook_UnknownMemberAtTheDesk(t *testing.T) {
	// GIVEN: a librarian typo in the member id
	// WHEN: the reservation is attempted
	// THEN: nothing is queued

	ctx := context.Background()
	a := newTestApp(t, "ghost\nb1\n")
	seedCheckedOutBook(t, a)

	a.reserveBook(ctx, "")

	n, err := a.store.CountWaiting(ctx, "b1")
	require.NoError(t, err)
	assert.Equal(t, 0, n)
}

func TestReserveBook_ForSelf(t *testing.T) {
	// GIVEN: a logged-in member and a checked-out title
	// WHEN: they reserve it without being prompted for a member id
	// THEN: the reservation is theirs

	ctx := context.Background()
	a := newTestApp(t, "b1\n")
	seedCheckedOutBook(t, a)

	a.reserveBook(ctx, "m2")

	rs, err := a.store.ReservationsForMember(ctx, "m2")
	require.NoError(t, err)
	require.Len(t, rs, 1)
}
