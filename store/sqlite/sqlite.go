/*
Package sqlite provides the SQLite-backed implementation of the circulation
storage interfaces.

PURPOSE:
  Implements circulation.Store and circulation.TxStore over a single SQLite
  file. The same patterns apply to PostgreSQL - only minor SQL dialect
  differences.

KEY TABLES:
  books:        catalog entries with copy counters
  users:        accounts (admin/staff/member) with bcrypt password hashes
  loans:        the circulation ledger; rows are closed, never deleted
  reservations: per-book FIFO wait-lists

COMPARE-AND-SET COUNTERS:
  Copy counters are updated with conditional UPDATEs
  (available_copies > 0 / available_copies < total_copies) and checked via
  RowsAffected. When two issues race for the last copy, at most one
  decrement succeeds; the loser gets circulation.ErrNoCopiesAvailable.

PARAMETERIZED QUERIES:
  Every statement binds values through placeholders. No SQL is ever built
  by string concatenation.

WAL MODE:
  SQLite is opened with WAL (Write-Ahead Logging) for better concurrency:
  multiple readers don't block and crash recovery improves.

USAGE:
  store, err := sqlite.New("./data/library.db")
  if err != nil {
      log.Fatal(err)
  }
  defer store.Close()

  engine := circulation.NewEngine(store)

SEE ALSO:
  - circulation/store.go: interface definitions
  - circulation/store/memory.go: in-memory implementation for testing
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	"github.com/warp/circulation-engine/circulation"
)

// Store implements circulation.TxStore using SQLite.
type Store struct {
	db *sql.DB
	mu sync.RWMutex
	q  queries
}

// New creates a SQLite store at dbPath. Use ":memory:" for an in-memory
// database.
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on&_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection: every pooled ":memory:" connection would otherwise
	// get its own empty database, and SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	s := &Store{db: db, q: queries{db: db}}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return s, nil
}

// Close closes the database connection.
func (s *Store) Close() error {
	return s.db.Close()
}

// migrate creates the database schema.
func (s *Store) migrate() error {
	schema := `
	-- Accounts: admin, staff and members. Members carry a borrow category.
	CREATE TABLE IF NOT EXISTS users (
		id            TEXT PRIMARY KEY,
		name          TEXT NOT NULL,
		password_hash TEXT NOT NULL DEFAULT '',
		role          TEXT NOT NULL,
		category      TEXT
	);

	-- Catalog with copy counters. The CHECK keeps the counters inside
	-- their invariant even if a bug slips past the conditional updates.
	CREATE TABLE IF NOT EXISTS books (
		book_id          TEXT PRIMARY KEY,
		isbn             TEXT,
		title            TEXT NOT NULL,
		author           TEXT,
		publisher        TEXT,
		year             INTEGER,
		rack             TEXT,
		total_copies     INTEGER NOT NULL DEFAULT 1,
		available_copies INTEGER NOT NULL DEFAULT 1,
		borrowed_count   INTEGER NOT NULL DEFAULT 0,
		CHECK (available_copies >= 0 AND available_copies <= total_copies)
	);

	-- Circulation ledger. Rows are closed by the return flow, never deleted.
	CREATE TABLE IF NOT EXISTS loans (
		txn_id      TEXT PRIMARY KEY,
		member_id   TEXT NOT NULL REFERENCES users(id),
		book_id     TEXT NOT NULL REFERENCES books(book_id),
		issue_date  TEXT NOT NULL,
		due_date    TEXT NOT NULL,
		return_date TEXT,
		fine        TEXT NOT NULL DEFAULT '0',
		status      TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_loans_member_status
		ON loans(member_id, status);
	CREATE INDEX IF NOT EXISTS idx_loans_book_status
		ON loans(book_id, status);
	CREATE INDEX IF NOT EXISTS idx_loans_status
		ON loans(status);

	-- FIFO wait-lists. Head = earliest res_date, ties by rowid
	-- (insertion order).
	CREATE TABLE IF NOT EXISTS reservations (
		res_id    TEXT PRIMARY KEY,
		book_id   TEXT NOT NULL REFERENCES books(book_id),
		member_id TEXT NOT NULL REFERENCES users(id),
		res_date  TEXT NOT NULL,
		status    TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_reservations_book_status
		ON reservations(book_id, status, res_date);
	CREATE INDEX IF NOT EXISTS idx_reservations_member_status
		ON reservations(member_id, status);
	`

	_, err := s.db.Exec(schema)
	return err
}

// =============================================================================
// LOCKED WRAPPERS (circulation.Store interface)
// =============================================================================

func (s *Store) GetBook(ctx context.Context, id circulation.BookID) (circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetBook(ctx, id)
}

func (s *Store) PutBook(ctx context.Context, b circulation.Book) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.PutBook(ctx, b)
}

func (s *Store) DecrementAvailable(ctx context.Context, id circulation.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.DecrementAvailable(ctx, id)
}

func (s *Store) IncrementAvailable(ctx context.Context, id circulation.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.IncrementAvailable(ctx, id)
}

func (s *Store) RemoveBook(ctx context.Context, id circulation.BookID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.RemoveBook(ctx, id)
}

func (s *Store) ListBooks(ctx context.Context) ([]circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListBooks(ctx)
}

func (s *Store) SearchBooks(ctx context.Context, q string) ([]circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.SearchBooks(ctx, q)
}

func (s *Store) TopBorrowed(ctx context.Context, n int) ([]circulation.Book, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.TopBorrowed(ctx, n)
}

func (s *Store) GetUser(ctx context.Context, id circulation.MemberID) (circulation.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetUser(ctx, id)
}

func (s *Store) GetMember(ctx context.Context, id circulation.MemberID) (circulation.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetMember(ctx, id)
}

func (s *Store) PutUser(ctx context.Context, m circulation.Member) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.PutUser(ctx, m)
}

func (s *Store) ListUsers(ctx context.Context) ([]circulation.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListUsers(ctx)
}

func (s *Store) ListMembers(ctx context.Context) ([]circulation.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ListMembers(ctx)
}

func (s *Store) CreateLoan(ctx context.Context, l circulation.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CreateLoan(ctx, l)
}

func (s *Store) GetLoan(ctx context.Context, id circulation.TxnID) (circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.GetLoan(ctx, id)
}

func (s *Store) CloseLoan(ctx context.Context, id circulation.TxnID, l circulation.Loan) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.CloseLoan(ctx, id, l)
}

func (s *Store) CountOpenLoans(ctx context.Context, member circulation.MemberID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.CountOpenLoans(ctx, member)
}

func (s *Store) LoansByMember(ctx context.Context, member circulation.MemberID) ([]circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.LoansByMember(ctx, member)
}

func (s *Store) OpenLoans(ctx context.Context) ([]circulation.Loan, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.OpenLoans(ctx)
}

func (s *Store) Enqueue(ctx context.Context, r circulation.Reservation) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Enqueue(ctx, r)
}

func (s *Store) PeekHead(ctx context.Context, book circulation.BookID) (circulation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.PeekHead(ctx, book)
}

func (s *Store) MarkFulfilled(ctx context.Context, id circulation.ReservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.MarkFulfilled(ctx, id)
}

func (s *Store) Cancel(ctx context.Context, id circulation.ReservationID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.q.Cancel(ctx, id)
}

func (s *Store) CountWaiting(ctx context.Context, book circulation.BookID) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.CountWaiting(ctx, book)
}

func (s *Store) ReservationsForBook(ctx context.Context, book circulation.BookID) ([]circulation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ReservationsForBook(ctx, book)
}

func (s *Store) ReservationsForMember(ctx context.Context, member circulation.MemberID) ([]circulation.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.q.ReservationsForMember(ctx, member)
}

// WithTx executes fn inside a single database transaction. fn's store sees
// the transaction's uncommitted writes; an error rolls everything back.
func (s *Store) WithTx(ctx context.Context, fn func(circulation.Store) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sqlTx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer sqlTx.Rollback()

	if err := fn(queries{db: sqlTx}); err != nil {
		return err
	}
	return sqlTx.Commit()
}

// =============================================================================
// QUERIES - Unlocked statement layer shared by Store and WithTx
// =============================================================================

type dbtx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

type queries struct {
	db dbtx
}

// -------------------------------- Catalog ------------------------------------

const bookColumns = "book_id, isbn, title, author, publisher, year, rack, total_copies, available_copies, borrowed_count"

func (q queries) GetBook(ctx context.Context, id circulation.BookID) (circulation.Book, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+bookColumns+" FROM books WHERE book_id = ?", id)
	return scanBook(row)
}

func (q queries) PutBook(ctx context.Context, b circulation.Book) error {
	if b.AvailableCopies == 0 && b.BorrowedCount == 0 {
		// Fresh entries start with every copy on the shelf.
		b.AvailableCopies = b.TotalCopies
	}
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO books (book_id, isbn, title, author, publisher, year, rack, total_copies, available_copies, borrowed_count)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(book_id) DO UPDATE SET
			isbn = excluded.isbn,
			title = excluded.title,
			author = excluded.author,
			publisher = excluded.publisher,
			year = excluded.year,
			rack = excluded.rack,
			available_copies = books.available_copies + (excluded.total_copies - books.total_copies),
			total_copies = excluded.total_copies
	`, b.ID, b.ISBN, b.Title, b.Author, b.Publisher, b.Year, b.Rack,
		b.TotalCopies, b.AvailableCopies, b.BorrowedCount)
	if isCheckConstraintError(err) {
		// Shrinking total below the outstanding loan count would break
		// the counter invariant.
		return circulation.ErrInconsistentState
	}
	return err
}

func (q queries) DecrementAvailable(ctx context.Context, id circulation.BookID) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies - 1,
		    borrowed_count = borrowed_count + 1
		WHERE book_id = ? AND available_copies > 0
	`, id)
	if err != nil {
		return fmt.Errorf("decrement available: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := q.GetBook(ctx, id); err != nil {
			return err
		}
		return circulation.ErrNoCopiesAvailable
	}
	return nil
}

func (q queries) IncrementAvailable(ctx context.Context, id circulation.BookID) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE books
		SET available_copies = available_copies + 1
		WHERE book_id = ? AND available_copies < total_copies
	`, id)
	if err != nil {
		return fmt.Errorf("increment available: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := q.GetBook(ctx, id); err != nil {
			return err
		}
		return circulation.ErrInconsistentState
	}
	return nil
}

func (q queries) RemoveBook(ctx context.Context, id circulation.BookID) error {
	res, err := q.db.ExecContext(ctx,
		"DELETE FROM books WHERE book_id = ? AND available_copies = total_copies", id)
	if err != nil {
		return fmt.Errorf("remove book: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := q.GetBook(ctx, id); err != nil {
			return err
		}
		return circulation.ErrCopiesOutstanding
	}
	return nil
}

func (q queries) ListBooks(ctx context.Context) ([]circulation.Book, error) {
	return q.queryBooks(ctx,
		"SELECT "+bookColumns+" FROM books ORDER BY book_id")
}

func (q queries) SearchBooks(ctx context.Context, query string) ([]circulation.Book, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, nil
	}
	like := "%" + query + "%"
	return q.queryBooks(ctx, `
		SELECT `+bookColumns+` FROM books
		WHERE title LIKE ? OR author LIKE ? OR isbn LIKE ?
		ORDER BY book_id
	`, like, like, like)
}

func (q queries) TopBorrowed(ctx context.Context, n int) ([]circulation.Book, error) {
	return q.queryBooks(ctx,
		"SELECT "+bookColumns+" FROM books ORDER BY borrowed_count DESC, book_id LIMIT ?", n)
}

func (q queries) queryBooks(ctx context.Context, query string, args ...any) ([]circulation.Book, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query books: %w", err)
	}
	defer rows.Close()

	var books []circulation.Book
	for rows.Next() {
		b, err := scanBook(rows)
		if err != nil {
			return nil, err
		}
		books = append(books, b)
	}
	return books, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanBook(r rowScanner) (circulation.Book, error) {
	var (
		b         circulation.Book
		isbn      sql.NullString
		author    sql.NullString
		publisher sql.NullString
		year      sql.NullInt64
		rack      sql.NullString
	)
	err := r.Scan(&b.ID, &isbn, &b.Title, &author, &publisher, &year, &rack,
		&b.TotalCopies, &b.AvailableCopies, &b.BorrowedCount)
	if err == sql.ErrNoRows {
		return b, circulation.ErrBookNotFound
	}
	if err != nil {
		return b, fmt.Errorf("failed to scan book: %w", err)
	}
	b.ISBN = isbn.String
	b.Author = author.String
	b.Publisher = publisher.String
	b.Year = int(year.Int64)
	b.Rack = rack.String
	return b, nil
}

// ------------------------------- Membership ----------------------------------

func (q queries) GetUser(ctx context.Context, id circulation.MemberID) (circulation.Member, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT id, name, role, category FROM users WHERE id = ?", id)
	return scanUser(row)
}

func (q queries) GetMember(ctx context.Context, id circulation.MemberID) (circulation.Member, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT id, name, role, category FROM users WHERE id = ? AND role = ?",
		id, circulation.RoleMember)
	m, err := scanUser(row)
	if errors.Is(err, circulation.ErrUserNotFound) {
		return m, circulation.ErrMemberNotFound
	}
	return m, err
}

func (q queries) PutUser(ctx context.Context, m circulation.Member) error {
	// password_hash is owned by the auth layer; the empty default keeps
	// a fresh account locked until a password is set.
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO users (id, name, role, category)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name = excluded.name,
			role = excluded.role,
			category = excluded.category
	`, m.ID, m.Name, m.Role, nullCategory(m.Category))
	return err
}

func (q queries) ListUsers(ctx context.Context) ([]circulation.Member, error) {
	return q.queryUsers(ctx,
		"SELECT id, name, role, category FROM users ORDER BY id")
}

func (q queries) ListMembers(ctx context.Context) ([]circulation.Member, error) {
	return q.queryUsers(ctx,
		"SELECT id, name, role, category FROM users WHERE role = ? ORDER BY id",
		circulation.RoleMember)
}

func (q queries) queryUsers(ctx context.Context, query string, args ...any) ([]circulation.Member, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []circulation.Member
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func scanUser(r rowScanner) (circulation.Member, error) {
	var (
		m        circulation.Member
		category sql.NullString
	)
	err := r.Scan(&m.ID, &m.Name, &m.Role, &category)
	if err == sql.ErrNoRows {
		return m, circulation.ErrUserNotFound
	}
	if err != nil {
		return m, fmt.Errorf("failed to scan user: %w", err)
	}
	m.Category = circulation.Category(category.String)
	return m, nil
}

// --------------------------------- Ledger ------------------------------------

const loanColumns = "txn_id, member_id, book_id, issue_date, due_date, return_date, fine, status"

func (q queries) CreateLoan(ctx context.Context, l circulation.Loan) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO loans (txn_id, member_id, book_id, issue_date, due_date, return_date, fine, status)
		VALUES (?, ?, ?, ?, ?, NULL, ?, ?)
	`, l.TxnID, l.MemberID, l.BookID,
		l.IssueDate.UTC().Format(time.RFC3339),
		l.DueDate.UTC().Format(time.RFC3339),
		l.Fine.String(), l.Status)
	if err != nil {
		return fmt.Errorf("failed to insert loan: %w", err)
	}
	return nil
}

func (q queries) GetLoan(ctx context.Context, id circulation.TxnID) (circulation.Loan, error) {
	row := q.db.QueryRowContext(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE txn_id = ?", id)
	return scanLoan(row)
}

func (q queries) CloseLoan(ctx context.Context, id circulation.TxnID, l circulation.Loan) error {
	res, err := q.db.ExecContext(ctx, `
		UPDATE loans
		SET return_date = ?, fine = ?, status = ?
		WHERE txn_id = ? AND status = ?
	`, l.ReturnDate.UTC().Format(time.RFC3339), l.Fine.String(),
		circulation.LoanReturned, id, circulation.LoanBorrowed)
	if err != nil {
		return fmt.Errorf("close loan: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		if _, err := q.GetLoan(ctx, id); err != nil {
			return err
		}
		return circulation.ErrAlreadyReturned
	}
	return nil
}

func (q queries) CountOpenLoans(ctx context.Context, member circulation.MemberID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM loans WHERE member_id = ? AND status = ?",
		member, circulation.LoanBorrowed).Scan(&n)
	return n, err
}

func (q queries) LoansByMember(ctx context.Context, member circulation.MemberID) ([]circulation.Loan, error) {
	return q.queryLoans(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE member_id = ? ORDER BY issue_date DESC, rowid DESC",
		member)
}

func (q queries) OpenLoans(ctx context.Context) ([]circulation.Loan, error) {
	return q.queryLoans(ctx,
		"SELECT "+loanColumns+" FROM loans WHERE status = ? ORDER BY issue_date ASC, rowid ASC",
		circulation.LoanBorrowed)
}

func (q queries) queryLoans(ctx context.Context, query string, args ...any) ([]circulation.Loan, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query loans: %w", err)
	}
	defer rows.Close()

	var loans []circulation.Loan
	for rows.Next() {
		l, err := scanLoan(rows)
		if err != nil {
			return nil, err
		}
		loans = append(loans, l)
	}
	return loans, rows.Err()
}

func scanLoan(r rowScanner) (circulation.Loan, error) {
	var (
		l          circulation.Loan
		issueDate  string
		dueDate    string
		returnDate sql.NullString
		fine       string
	)
	err := r.Scan(&l.TxnID, &l.MemberID, &l.BookID, &issueDate, &dueDate, &returnDate, &fine, &l.Status)
	if err == sql.ErrNoRows {
		return l, circulation.ErrLoanNotFound
	}
	if err != nil {
		return l, fmt.Errorf("failed to scan loan: %w", err)
	}
	l.IssueDate, err = time.Parse(time.RFC3339, issueDate)
	if err != nil {
		return l, fmt.Errorf("failed to parse issue date %q: %w", issueDate, err)
	}
	l.DueDate, err = time.Parse(time.RFC3339, dueDate)
	if err != nil {
		return l, fmt.Errorf("failed to parse due date %q: %w", dueDate, err)
	}
	if returnDate.Valid {
		l.ReturnDate, err = time.Parse(time.RFC3339, returnDate.String)
		if err != nil {
			return l, fmt.Errorf("failed to parse return date %q: %w", returnDate.String, err)
		}
	}
	l.Fine, err = decimal.NewFromString(fine)
	if err != nil {
		return l, fmt.Errorf("failed to parse fine %q: %w", fine, err)
	}
	return l, nil
}

// ---------------------------- Reservation queue ------------------------------

const reservationColumns = "res_id, book_id, member_id, res_date, status"

func (q queries) Enqueue(ctx context.Context, r circulation.Reservation) error {
	_, err := q.db.ExecContext(ctx, `
		INSERT INTO reservations (res_id, book_id, member_id, res_date, status)
		VALUES (?, ?, ?, ?, ?)
	`, r.ID, r.BookID, r.MemberID, r.ResDate.UTC().Format(time.RFC3339), r.Status)
	if err != nil {
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (q queries) PeekHead(ctx context.Context, book circulation.BookID) (circulation.Reservation, error) {
	row := q.db.QueryRowContext(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE book_id = ? AND status = ?
		ORDER BY res_date ASC, rowid ASC
		LIMIT 1
	`, book, circulation.ReservationWaiting)
	return scanReservation(row)
}

func (q queries) MarkFulfilled(ctx context.Context, id circulation.ReservationID) error {
	return q.setReservationStatus(ctx, id, circulation.ReservationFulfilled)
}

func (q queries) Cancel(ctx context.Context, id circulation.ReservationID) error {
	return q.setReservationStatus(ctx, id, circulation.ReservationCancelled)
}

func (q queries) setReservationStatus(ctx context.Context, id circulation.ReservationID, status circulation.ReservationStatus) error {
	res, err := q.db.ExecContext(ctx,
		"UPDATE reservations SET status = ? WHERE res_id = ? AND status = ?",
		status, id, circulation.ReservationWaiting)
	if err != nil {
		return fmt.Errorf("update reservation: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return circulation.ErrNoReservation
	}
	return nil
}

func (q queries) CountWaiting(ctx context.Context, book circulation.BookID) (int, error) {
	var n int
	err := q.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM reservations WHERE book_id = ? AND status = ?",
		book, circulation.ReservationWaiting).Scan(&n)
	return n, err
}

func (q queries) ReservationsForBook(ctx context.Context, book circulation.BookID) ([]circulation.Reservation, error) {
	return q.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE book_id = ? AND status = ?
		ORDER BY res_date ASC, rowid ASC
	`, book, circulation.ReservationWaiting)
}

func (q queries) ReservationsForMember(ctx context.Context, member circulation.MemberID) ([]circulation.Reservation, error) {
	// Full history, terminal states included.
	return q.queryReservations(ctx, `
		SELECT `+reservationColumns+` FROM reservations
		WHERE member_id = ?
		ORDER BY res_date ASC, rowid ASC
	`, member)
}

func (q queries) queryReservations(ctx context.Context, query string, args ...any) ([]circulation.Reservation, error) {
	rows, err := q.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query reservations: %w", err)
	}
	defer rows.Close()

	var reservations []circulation.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, err
		}
		reservations = append(reservations, r)
	}
	return reservations, rows.Err()
}

func scanReservation(r rowScanner) (circulation.Reservation, error) {
	var (
		res     circulation.Reservation
		resDate string
	)
	err := r.Scan(&res.ID, &res.BookID, &res.MemberID, &resDate, &res.Status)
	if err == sql.ErrNoRows {
		return res, circulation.ErrNoReservation
	}
	if err != nil {
		return res, fmt.Errorf("failed to scan reservation: %w", err)
	}
	res.ResDate, err = time.Parse(time.RFC3339, resDate)
	if err != nil {
		return res, fmt.Errorf("failed to parse reservation date %q: %w", resDate, err)
	}
	return res, nil
}

// =============================================================================
// HELPERS
// =============================================================================

func nullCategory(c circulation.Category) any {
	if c == "" {
		return nil
	}
	return string(c)
}

func isCheckConstraintError(err error) bool {
	return err != nil && strings.Contains(err.Error(), "CHECK constraint failed")
}
