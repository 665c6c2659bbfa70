/*
handlers_test.go - HTTP-level tests for the circulation API

Tests exercise the full router with an in-memory SQLite store, so they
cover routing, JSON codecs, status mapping, and the engine together.
*/
package api

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"

	"github.com/warp/circulation-engine/auth"
	"github.com/warp/circulation-engine/circulation"
	"github.com/warp/circulation-engine/store/sqlite"
)

// =============================================================================
// TEST SETUP
// =============================================================================

type testAPI struct {
	router http.Handler
	store  *sqlite.Store
	clock  *circulation.FixedClock
}

func newTestAPI(t *testing.T) *testAPI {
	t.Helper()
	store, err := sqlite.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })

	clock := &circulation.FixedClock{At: time.Date(2024, time.January, 1, 10, 0, 0, 0, time.UTC)}
	engine := circulation.NewEngine(store,
		circulation.WithClock(clock),
		circulation.WithIDGenerator(&circulation.SequenceGenerator{}),
	)
	authSvc := auth.NewService(store, bcrypt.MinCost)
	handler := NewHandler(store, engine, authSvc, zap.NewNop())

	return &testAPI{router: NewRouter(handler), store: store, clock: clock}
}

func (a *testAPI) do(t *testing.T, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&v), "body: %s", rec.Body.String())
	return v
}

func (a *testAPI) seedBook(t *testing.T, id string, copies int) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/books", map[string]any{
		"id": id, "title": "Title " + id, "author": "A", "total_copies": copies,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func (a *testAPI) seedMember(t *testing.T, id, category string) {
	t.Helper()
	rec := a.do(t, http.MethodPost, "/api/members", map[string]any{
		"id": id, "name": "Member " + id, "role": "member", "category": category, "password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

// =============================================================================
// AUTH
// =============================================================================

func TestAPI_Login(t *testing.T) {
	a := newTestAPI(t)
	a.seedMember(t, "m1", "faculty")

	rec := a.do(t, http.MethodPost, "/api/login", map[string]string{"user_id": "m1", "password": "pw"})
	require.Equal(t, http.StatusOK, rec.Code)
	got := decode[LoginResponseDTO](t, rec)
	assert.Equal(t, "m1", got.UserID)
	assert.Equal(t, "member", got.Role)
	assert.Equal(t, "faculty", got.Category)

	rec = a.do(t, http.MethodPost, "/api/login", map[string]string{"user_id": "m1", "password": "nope"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

// =============================================================================
// BOOKS
// =============================================================================

func TestAPI_BookLifecycle(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "b1", 2)

	rec := a.do(t, http.MethodGet, "/api/books/b1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	book := decode[BookDTO](t, rec)
	assert.Equal(t, 2, book.AvailableCopies)

	// Update grows the shelf.
	rec = a.do(t, http.MethodPut, "/api/books/b1", map[string]any{
		"title": "Title b1", "author": "A", "total_copies": 4,
	})
	require.Equal(t, http.StatusOK, rec.Code)
	book = decode[BookDTO](t, rec)
	assert.Equal(t, 4, book.TotalCopies)
	assert.Equal(t, 4, book.AvailableCopies)

	rec = a.do(t, http.MethodDelete, "/api/books/b1", nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/books/b1", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_BookSearch(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "go", 1)
	a.seedBook(t, "py", 1)

	rec := a.do(t, http.MethodGet, "/api/books?q=Title+go", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	books := decode[[]BookDTO](t, rec)
	require.Len(t, books, 1)
	assert.Equal(t, "go", books[0].ID)
}

func TestAPI_DeleteBookWithCopiesOut(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "b1", 1)
	a.seedMember(t, "m1", "student")

	rec := a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "b1", MemberID: "m1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodDelete, "/api/books/b1", nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// CIRCULATION
// =============================================================================

func TestAPI_IssueAndReturn(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "b1", 1)
	a.seedMember(t, "m1", "student")

	rec := a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "b1", MemberID: "m1"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	issued := decode[IssueResponseDTO](t, rec)
	assert.Equal(t, "2024-01-15", issued.Due)

	// Second copy does not exist.
	rec = a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "b1", MemberID: "m1"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	// Three days late at 2 per day.
	a.clock.At = time.Date(2024, time.January, 18, 10, 0, 0, 0, time.UTC)
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%s/return", issued.TxnID), nil)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	ret := decode[ReturnResponseDTO](t, rec)
	assert.Equal(t, 3, ret.OverdueDays)
	assert.Equal(t, "6", ret.Fine)
	assert.Nil(t, ret.Fulfilled)

	// Double return conflicts.
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%s/return", issued.TxnID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/members/m1/loans", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	loans := decode[[]LoanDTO](t, rec)
	require.Len(t, loans, 1)
	assert.Equal(t, "returned", loans[0].Status)
}

func TestAPI_IssueUnknownIDs(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "b1", 1)
	a.seedMember(t, "m1", "student")

	rec := a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "ghost", MemberID: "m1"})
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "b1", MemberID: "ghost"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestAPI_ReservationFlow(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "b1", 1)
	a.seedMember(t, "m1", "student")
	a.seedMember(t, "m2", "student")

	// Reserving a shelved book is rejected.
	rec := a.do(t, http.MethodPost, "/api/reservations", ReserveRequest{BookID: "b1", MemberID: "m2"})
	assert.Equal(t, http.StatusConflict, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "b1", MemberID: "m1"})
	require.Equal(t, http.StatusCreated, rec.Code)
	issued := decode[IssueResponseDTO](t, rec)

	rec = a.do(t, http.MethodPost, "/api/reservations", ReserveRequest{BookID: "b1", MemberID: "m2"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	reserved := decode[ReserveResponseDTO](t, rec)
	assert.Equal(t, 1, reserved.Position)

	// The return hands the copy straight to m2.
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/loans/%s/return", issued.TxnID), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	ret := decode[ReturnResponseDTO](t, rec)
	require.NotNil(t, ret.Fulfilled)
	assert.Equal(t, "m2", ret.Fulfilled.MemberID)
	assert.Equal(t, reserved.ReservationID, ret.Fulfilled.ReservationID)

	rec = a.do(t, http.MethodGet, "/api/books/b1", nil)
	book := decode[BookDTO](t, rec)
	assert.Equal(t, 0, book.AvailableCopies)

	rec = a.do(t, http.MethodGet, "/api/members/m2/reservations", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	rs := decode[[]ReservationDTO](t, rec)
	require.Len(t, rs, 1)
	assert.Equal(t, "fulfilled", rs[0].Status)
}

func TestAPI_CancelReservation(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "b1", 1)
	a.seedMember(t, "m1", "student")
	a.seedMember(t, "m2", "student")

	rec := a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "b1", MemberID: "m1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/reservations", ReserveRequest{BookID: "b1", MemberID: "m2"})
	require.Equal(t, http.StatusCreated, rec.Code)
	reserved := decode[ReserveResponseDTO](t, rec)

	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/reservations/%s/cancel", reserved.ReservationID), nil)
	assert.Equal(t, http.StatusOK, rec.Code)

	// Cancelling twice conflicts.
	rec = a.do(t, http.MethodPost, fmt.Sprintf("/api/reservations/%s/cancel", reserved.ReservationID), nil)
	assert.Equal(t, http.StatusConflict, rec.Code)
}

// =============================================================================
// REPORTS
// =============================================================================

func TestAPI_OverdueReport(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "b1", 1)
	a.seedMember(t, "m1", "student")

	rec := a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "b1", MemberID: "m1"})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/reports/overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, decode[[]OverdueLoanDTO](t, rec))

	a.clock.At = time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	rec = a.do(t, http.MethodGet, "/api/reports/overdue", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	overdue := decode[[]OverdueLoanDTO](t, rec)
	require.Len(t, overdue, 1)
	assert.Equal(t, 17, overdue[0].OverdueDays)
	assert.Equal(t, "34", overdue[0].ProjectedFine)
}

func TestAPI_TopBorrowedReport(t *testing.T) {
	a := newTestAPI(t)
	a.seedBook(t, "hot", 3)
	a.seedBook(t, "cold", 3)
	a.seedMember(t, "m1", "student")
	a.seedMember(t, "m2", "student")

	for _, member := range []string{"m1", "m2"} {
		rec := a.do(t, http.MethodPost, "/api/loans", IssueRequest{BookID: "hot", MemberID: member})
		require.Equal(t, http.StatusCreated, rec.Code)
	}

	rec := a.do(t, http.MethodGet, "/api/reports/top-borrowed?limit=1", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	top := decode[[]TopBorrowedDTO](t, rec)
	require.Len(t, top, 1)
	assert.Equal(t, "hot", top[0].BookID)
	assert.Equal(t, 2, top[0].BorrowedCount)

	rec = a.do(t, http.MethodGet, "/api/reports/top-borrowed?limit=zero", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

// =============================================================================
// MEMBERS
// =============================================================================

func TestAPI_CreateMemberValidation(t *testing.T) {
	a := newTestAPI(t)

	rec := a.do(t, http.MethodPost, "/api/members", map[string]any{
		"id": "x", "name": "X", "role": "wizard", "password": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = a.do(t, http.MethodPost, "/api/members", map[string]any{
		"id": "x", "name": "X", "role": "member", "category": "alumni", "password": "pw",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	// Members default to the student category.
	rec = a.do(t, http.MethodPost, "/api/members", map[string]any{
		"id": "x", "name": "X", "role": "member", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	m := decode[MemberDTO](t, rec)
	assert.Equal(t, "student", m.Category)

	// Staff accounts carry no category.
	rec = a.do(t, http.MethodPost, "/api/members", map[string]any{
		"id": "s1", "name": "S", "role": "staff", "category": "faculty", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	m = decode[MemberDTO](t, rec)
	assert.Empty(t, m.Category)
}

func TestAPI_ListMembersExcludesStaff(t *testing.T) {
	a := newTestAPI(t)
	a.seedMember(t, "m1", "student")
	rec := a.do(t, http.MethodPost, "/api/members", map[string]any{
		"id": "s1", "name": "S", "role": "staff", "password": "pw",
	})
	require.Equal(t, http.StatusCreated, rec.Code)

	rec = a.do(t, http.MethodGet, "/api/members", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	members := decode[[]MemberDTO](t, rec)
	require.Len(t, members, 1)
	assert.Equal(t, "m1", members[0].ID)
}
