// Package store provides Store implementations.
package store

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/warp/circulation-engine/circulation"
)

// =============================================================================
// MEMORY STORE - In-memory implementation (for testing/dev)
// =============================================================================

type Memory struct {
	mu           sync.RWMutex
	books        map[circulation.BookID]circulation.Book
	users        map[circulation.MemberID]circulation.Member
	loans        map[circulation.TxnID]circulation.Loan
	loanOrder    []circulation.TxnID
	reservations map[circulation.ReservationID]circulation.Reservation
	resOrder     []circulation.ReservationID
}

func NewMemory() *Memory {
	return &Memory{
		books:        make(map[circulation.BookID]circulation.Book),
		users:        make(map[circulation.MemberID]circulation.Member),
		loans:        make(map[circulation.TxnID]circulation.Loan),
		reservations: make(map[circulation.ReservationID]circulation.Reservation),
	}
}

// =============================================================================
// CATALOG
// =============================================================================

func (m *Memory) GetBook(_ context.Context, id circulation.BookID) (circulation.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	b, ok := m.books[id]
	if !ok {
		return circulation.Book{}, circulation.ErrBookNotFound
	}
	return b, nil
}

func (m *Memory) PutBook(_ context.Context, b circulation.Book) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if b.AvailableCopies == 0 && b.BorrowedCount == 0 {
		// Fresh entries start with every copy on the shelf.
		b.AvailableCopies = b.TotalCopies
	}
	if prev, ok := m.books[b.ID]; ok {
		// Total-copy changes shift availability by the delta.
		b.AvailableCopies = prev.AvailableCopies + (b.TotalCopies - prev.TotalCopies)
		b.BorrowedCount = prev.BorrowedCount
		if b.AvailableCopies < 0 {
			// Shrinking total below the outstanding loan count would
			// break the counter invariant.
			return circulation.ErrInconsistentState
		}
	}
	m.books[b.ID] = b
	return nil
}

func (m *Memory) DecrementAvailable(_ context.Context, id circulation.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return circulation.ErrBookNotFound
	}
	if b.AvailableCopies <= 0 {
		return circulation.ErrNoCopiesAvailable
	}
	b.AvailableCopies--
	b.BorrowedCount++
	m.books[id] = b
	return nil
}

func (m *Memory) IncrementAvailable(_ context.Context, id circulation.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return circulation.ErrBookNotFound
	}
	if b.AvailableCopies >= b.TotalCopies {
		return circulation.ErrInconsistentState
	}
	b.AvailableCopies++
	m.books[id] = b
	return nil
}

func (m *Memory) RemoveBook(_ context.Context, id circulation.BookID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.books[id]
	if !ok {
		return circulation.ErrBookNotFound
	}
	if b.AvailableCopies != b.TotalCopies {
		return circulation.ErrCopiesOutstanding
	}
	delete(m.books, id)
	return nil
}

func (m *Memory) ListBooks(_ context.Context) ([]circulation.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]circulation.Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) SearchBooks(_ context.Context, q string) ([]circulation.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	q = strings.ToLower(strings.TrimSpace(q))
	var out []circulation.Book
	if q == "" {
		return out, nil
	}
	for _, b := range m.books {
		if strings.Contains(strings.ToLower(b.Title), q) ||
			strings.Contains(strings.ToLower(b.Author), q) ||
			strings.Contains(strings.ToLower(b.ISBN), q) {
			out = append(out, b)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) TopBorrowed(_ context.Context, n int) ([]circulation.Book, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]circulation.Book, 0, len(m.books))
	for _, b := range m.books {
		out = append(out, b)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].BorrowedCount != out[j].BorrowedCount {
			return out[i].BorrowedCount > out[j].BorrowedCount
		}
		return out[i].ID < out[j].ID
	})
	if n > 0 && len(out) > n {
		out = out[:n]
	}
	return out, nil
}

// =============================================================================
// MEMBERSHIP
// =============================================================================

func (m *Memory) GetUser(_ context.Context, id circulation.MemberID) (circulation.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[id]
	if !ok {
		return circulation.Member{}, circulation.ErrUserNotFound
	}
	return u, nil
}

func (m *Memory) GetMember(ctx context.Context, id circulation.MemberID) (circulation.Member, error) {
	u, err := m.GetUser(ctx, id)
	if err != nil || u.Role != circulation.RoleMember {
		return circulation.Member{}, circulation.ErrMemberNotFound
	}
	return u, nil
}

func (m *Memory) PutUser(_ context.Context, u circulation.Member) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.users[u.ID] = u
	return nil
}

func (m *Memory) ListUsers(_ context.Context) ([]circulation.Member, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]circulation.Member, 0, len(m.users))
	for _, u := range m.users {
		out = append(out, u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *Memory) ListMembers(ctx context.Context) ([]circulation.Member, error) {
	users, _ := m.ListUsers(ctx)
	var out []circulation.Member
	for _, u := range users {
		if u.Role == circulation.RoleMember {
			out = append(out, u)
		}
	}
	return out, nil
}

// =============================================================================
// LEDGER
// =============================================================================

func (m *Memory) CreateLoan(_ context.Context, l circulation.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loans[l.TxnID] = l
	m.loanOrder = append(m.loanOrder, l.TxnID)
	return nil
}

func (m *Memory) GetLoan(_ context.Context, id circulation.TxnID) (circulation.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	l, ok := m.loans[id]
	if !ok {
		return circulation.Loan{}, circulation.ErrLoanNotFound
	}
	return l, nil
}

func (m *Memory) CloseLoan(_ context.Context, id circulation.TxnID, l circulation.Loan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	prev, ok := m.loans[id]
	if !ok {
		return circulation.ErrLoanNotFound
	}
	if prev.Status == circulation.LoanReturned {
		return circulation.ErrAlreadyReturned
	}
	l.TxnID = id
	m.loans[id] = l
	return nil
}

func (m *Memory) CountOpenLoans(_ context.Context, member circulation.MemberID) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, l := range m.loans {
		if l.MemberID == member && l.Open() {
			n++
		}
	}
	return n, nil
}

func (m *Memory) LoansByMember(_ context.Context, member circulation.MemberID) ([]circulation.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []circulation.Loan
	for i := len(m.loanOrder) - 1; i >= 0; i-- {
		if l := m.loans[m.loanOrder[i]]; l.MemberID == member {
			out = append(out, l)
		}
	}
	return out, nil
}

func (m *Memory) OpenLoans(_ context.Context) ([]circulation.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []circulation.Loan
	for _, id := range m.loanOrder {
		if l := m.loans[id]; l.Open() {
			out = append(out, l)
		}
	}
	return out, nil
}

// =============================================================================
// RESERVATION QUEUE
// =============================================================================

func (m *Memory) Enqueue(_ context.Context, r circulation.Reservation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.reservations[r.ID] = r
	m.resOrder = append(m.resOrder, r.ID)
	return nil
}

func (m *Memory) PeekHead(_ context.Context, book circulation.BookID) (circulation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var head *circulation.Reservation
	// resOrder preserves insertion order; earliest ResDate wins, ties go
	// to the earlier insertion.
	for _, id := range m.resOrder {
		r := m.reservations[id]
		if r.BookID != book || r.Status != circulation.ReservationWaiting {
			continue
		}
		if head == nil || r.ResDate.Before(head.ResDate) {
			rr := r
			head = &rr
		}
	}
	if head == nil {
		return circulation.Reservation{}, circulation.ErrNoReservation
	}
	return *head, nil
}

func (m *Memory) MarkFulfilled(_ context.Context, id circulation.ReservationID) error {
	return m.setReservationStatus(id, circulation.ReservationFulfilled)
}

func (m *Memory) Cancel(_ context.Context, id circulation.ReservationID) error {
	return m.setReservationStatus(id, circulation.ReservationCancelled)
}

func (m *Memory) setReservationStatus(id circulation.ReservationID, status circulation.ReservationStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.reservations[id]
	if !ok || r.Status != circulation.ReservationWaiting {
		return circulation.ErrNoReservation
	}
	r.Status = status
	m.reservations[id] = r
	return nil
}

func (m *Memory) CountWaiting(ctx context.Context, book circulation.BookID) (int, error) {
	rs, err := m.ReservationsForBook(ctx, book)
	return len(rs), err
}

func (m *Memory) ReservationsForBook(_ context.Context, book circulation.BookID) ([]circulation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []circulation.Reservation
	for _, id := range m.resOrder {
		r := m.reservations[id]
		if r.BookID == book && r.Status == circulation.ReservationWaiting {
			out = append(out, r)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].ResDate.Before(out[j].ResDate) })
	return out, nil
}

func (m *Memory) ReservationsForMember(_ context.Context, member circulation.MemberID) ([]circulation.Reservation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []circulation.Reservation
	for _, id := range m.resOrder {
		r := m.reservations[id]
		if r.MemberID == member {
			out = append(out, r)
		}
	}
	return out, nil
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

// WithTx runs fn against a full snapshot of the store and restores it when
// fn fails, so partial writes never survive. Single-writer semantics match
// the one-action-at-a-time control flow of the CLI.
func (m *Memory) WithTx(_ context.Context, fn func(circulation.Store) error) error {
	m.mu.Lock()
	snap := m.snapshotLocked()
	m.mu.Unlock()

	if err := fn(m); err != nil {
		m.mu.Lock()
		m.restoreLocked(snap)
		m.mu.Unlock()
		return err
	}
	return nil
}

type memSnapshot struct {
	books        map[circulation.BookID]circulation.Book
	users        map[circulation.MemberID]circulation.Member
	loans        map[circulation.TxnID]circulation.Loan
	loanOrder    []circulation.TxnID
	reservations map[circulation.ReservationID]circulation.Reservation
	resOrder     []circulation.ReservationID
}

func (m *Memory) snapshotLocked() memSnapshot {
	s := memSnapshot{
		books:        make(map[circulation.BookID]circulation.Book, len(m.books)),
		users:        make(map[circulation.MemberID]circulation.Member, len(m.users)),
		loans:        make(map[circulation.TxnID]circulation.Loan, len(m.loans)),
		loanOrder:    append([]circulation.TxnID(nil), m.loanOrder...),
		reservations: make(map[circulation.ReservationID]circulation.Reservation, len(m.reservations)),
		resOrder:     append([]circulation.ReservationID(nil), m.resOrder...),
	}
	for k, v := range m.books {
		s.books[k] = v
	}
	for k, v := range m.users {
		s.users[k] = v
	}
	for k, v := range m.loans {
		s.loans[k] = v
	}
	for k, v := range m.reservations {
		s.reservations[k] = v
	}
	return s
}

func (m *Memory) restoreLocked(s memSnapshot) {
	m.books = s.books
	m.users = s.users
	m.loans = s.loans
	m.loanOrder = s.loanOrder
	m.reservations = s.reservations
	m.resOrder = s.resOrder
}
