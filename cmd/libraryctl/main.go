/*
main.go - Interactive terminal client

PURPOSE:
  Role-gated menu client for librarians and members. Talks to the same
  SQLite database as the HTTP server, so it doubles as an offline admin
  tool.

ROLES:
  admin   Full catalog and account management plus circulation
  staff   Catalog management, member registration, circulation
  member  Search, own loans and reservations, returns

ENVIRONMENT:
  Shares the server's configuration: LIBRARY_DB selects the database,
  FINE_PER_DAY and the *_LOAN_* variables the circulation policies.

USAGE:
  libraryctl            Start the login prompt
*/
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"golang.org/x/term"

	"github.com/warp/circulation-engine/auth"
	"github.com/warp/circulation-engine/circulation"
	"github.com/warp/circulation-engine/config"
	"github.com/warp/circulation-engine/factory"
	"github.com/warp/circulation-engine/store/sqlite"
)

// app bundles everything the menus need.
type app struct {
	store  *sqlite.Store
	engine *circulation.Engine
	auth   *auth.Service
	in     *bufio.Reader
	user   circulation.Member
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		fail("load configuration: %v", err)
	}
	fineRate, err := cfg.FineRate()
	if err != nil {
		fail("%v", err)
	}

	store, err := sqlite.New(cfg.DBPath)
	if err != nil {
		fail("open database: %v", err)
	}
	defer store.Close()

	authSvc := auth.NewService(store, 0)

	ctx := context.Background()
	if seeded, err := factory.Seed(ctx, store, authSvc); err != nil {
		fail("seed database: %v", err)
	} else if seeded {
		fmt.Println("First run: created default accounts (admin1, staff1, m001).")
	}

	a := &app{
		store: store,
		engine: circulation.NewEngine(store,
			circulation.WithPolicies(cfg.Policies()),
			circulation.WithFinePerDay(fineRate)),
		auth: authSvc,
		in:   bufio.NewReader(os.Stdin),
	}

	fmt.Println("Library Circulation")
	for {
		if !a.login(ctx) {
			return
		}
		switch a.user.Role {
		case circulation.RoleAdmin:
			a.adminMenu(ctx)
		case circulation.RoleStaff:
			a.staffMenu(ctx)
		default:
			a.memberMenu(ctx)
		}
	}
}

func fail(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

// =============================================================================
// LOGIN
// =============================================================================

// login prompts for credentials until they verify or the user quits.
// Returns false when the user asked to exit.
func (a *app) login(ctx context.Context) bool {
	for {
		id := a.prompt("User id (blank to exit): ")
		if id == "" {
			return false
		}
		secret, err := a.promptSecret("Password: ")
		if err != nil {
			fmt.Println("read password:", err)
			continue
		}

		user, err := a.auth.Login(ctx, circulation.MemberID(id), secret)
		if err != nil {
			if errors.Is(err, auth.ErrNotAuthenticated) {
				fmt.Println("Invalid credentials.")
				continue
			}
			fmt.Println("login:", err)
			continue
		}
		a.user = user
		fmt.Printf("Welcome, %s (%s).\n", user.Name, user.Role)
		return true
	}
}

func (a *app) prompt(label string) string {
	fmt.Print(label)
	line, _ := a.in.ReadString('\n')
	return strings.TrimSpace(line)
}

// promptSecret reads a password without echo when stdin is a terminal.
func (a *app) promptSecret(label string) (string, error) {
	fmt.Print(label)
	fd := int(os.Stdin.Fd())
	if term.IsTerminal(fd) {
		b, err := term.ReadPassword(fd)
		fmt.Println()
		if err != nil {
			return "", err
		}
		return string(b), nil
	}
	line, err := a.in.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func (a *app) promptInt(label string) (int, bool) {
	s := a.prompt(label)
	n, err := strconv.Atoi(s)
	if err != nil {
		fmt.Println("Not a number:", s)
		return 0, false
	}
	return n, true
}

// =============================================================================
// MENUS
// =============================================================================

func (a *app) adminMenu(ctx context.Context) {
	for {
		fmt.Println(`
-- Admin --
 1. List books          6. Add staff account
 2. Search books        7. Add member
 3. Add/update book     8. List users
 4. Remove book         9. Overdue report
 5. Issue book         10. Top borrowed
11. Return book        12. Reserve for member
13. Change my password  0. Logout`)
		switch a.prompt("> ") {
		case "1":
			a.listBooks(ctx)
		case "2":
			a.searchBooks(ctx)
		case "3":
			a.putBook(ctx)
		case "4":
			a.removeBook(ctx)
		case "5":
			a.issueBook(ctx)
		case "6":
			a.addAccount(ctx, circulation.RoleStaff)
		case "7":
			a.addAccount(ctx, circulation.RoleMember)
		case "8":
			a.listUsers(ctx)
		case "9":
			a.overdueReport(ctx)
		case "10":
			a.topBorrowed(ctx)
		case "11":
			a.returnBook(ctx, "")
		case "12":
			a.reserveBook(ctx, "")
		case "13":
			a.changePassword(ctx)
		case "0":
			return
		default:
			fmt.Println("Unknown option.")
		}
	}
}

func (a *app) staffMenu(ctx context.Context) {
	for {
		fmt.Println(`
-- Staff --
 1. List books          6. Issue book
 2. Search books        7. Return book
 3. Add/update book     8. Reserve for member
 4. List open loans     9. List members
 5. Add member         10. Overdue report
11. Change my password  0. Logout`)
		switch a.prompt("> ") {
		case "1":
			a.listBooks(ctx)
		case "2":
			a.searchBooks(ctx)
		case "3":
			a.putBook(ctx)
		case "4":
			a.openLoans(ctx)
		case "5":
			a.addAccount(ctx, circulation.RoleMember)
		case "6":
			a.issueBook(ctx)
		case "7":
			a.returnBook(ctx, "")
		case "8":
			a.reserveBook(ctx, "")
		case "9":
			a.listMembers(ctx)
		case "10":
			a.overdueReport(ctx)
		case "11":
			a.changePassword(ctx)
		case "0":
			return
		default:
			fmt.Println("Unknown option.")
		}
	}
}

func (a *app) memberMenu(ctx context.Context) {
	for {
		fmt.Println(`
-- Member --
 1. List books          4. My loans
 2. Search books        5. My reservations
 3. Reserve book        6. Return book
 7. Change my password  0. Logout`)
		switch a.prompt("> ") {
		case "1":
			a.listBooks(ctx)
		case "2":
			a.searchBooks(ctx)
		case "3":
			a.reserveBook(ctx, a.user.ID)
		case "4":
			a.myLoans(ctx)
		case "5":
			a.myReservations(ctx)
		case "6":
			a.returnBook(ctx, a.user.ID)
		case "7":
			a.changePassword(ctx)
		case "0":
			return
		default:
			fmt.Println("Unknown option.")
		}
	}
}

// =============================================================================
// CATALOG ACTIONS
// =============================================================================

func (a *app) listBooks(ctx context.Context) {
	books, err := a.store.ListBooks(ctx)
	if err != nil {
		fmt.Println("list books:", err)
		return
	}
	printBooks(books)
}

func (a *app) searchBooks(ctx context.Context) {
	q := a.prompt("Search (title/author/ISBN): ")
	if q == "" {
		return
	}
	books, err := a.store.SearchBooks(ctx, q)
	if err != nil {
		fmt.Println("search:", err)
		return
	}
	if len(books) == 0 {
		fmt.Println("No matches.")
		return
	}
	printBooks(books)
}

func (a *app) putBook(ctx context.Context) {
	id := a.prompt("Book id: ")
	if id == "" {
		fmt.Println("Book id is required.")
		return
	}
	title := a.prompt("Title: ")
	if title == "" {
		fmt.Println("Title is required.")
		return
	}
	author := a.prompt("Author: ")
	isbn := a.prompt("ISBN: ")
	publisher := a.prompt("Publisher: ")
	year, _ := a.promptInt("Year: ")
	rack := a.prompt("Rack: ")
	total, ok := a.promptInt("Total copies: ")
	if !ok || total < 0 {
		fmt.Println("Total copies must be a non-negative number.")
		return
	}

	err := a.store.PutBook(ctx, circulation.Book{
		ID:          circulation.BookID(id),
		ISBN:        isbn,
		Title:       title,
		Author:      author,
		Publisher:   publisher,
		Year:        year,
		Rack:        rack,
		TotalCopies: total,
	})
	switch {
	case errors.Is(err, circulation.ErrInconsistentState):
		fmt.Println("Cannot shrink total below the copies currently on loan.")
	case err != nil:
		fmt.Println("save book:", err)
	default:
		fmt.Println("Saved.")
	}
}

func (a *app) removeBook(ctx context.Context) {
	id := a.prompt("Book id: ")
	err := a.store.RemoveBook(ctx, circulation.BookID(id))
	switch {
	case errors.Is(err, circulation.ErrBookNotFound):
		fmt.Println("No such book.")
	case errors.Is(err, circulation.ErrCopiesOutstanding):
		fmt.Println("Copies are still out on loan.")
	case err != nil:
		fmt.Println("remove book:", err)
	default:
		fmt.Println("Removed.")
	}
}

// =============================================================================
// ACCOUNT ACTIONS
// =============================================================================

func (a *app) addAccount(ctx context.Context, role circulation.Role) {
	id := a.prompt("User id: ")
	name := a.prompt("Name: ")
	if id == "" || name == "" {
		fmt.Println("Id and name are required.")
		return
	}

	category := circulation.Category("")
	if role == circulation.RoleMember {
		c := a.prompt("Category (student/faculty/staff, default student): ")
		if c == "" {
			c = string(circulation.CategoryStudent)
		}
		category = circulation.Category(c)
		if !circulation.ValidCategory(category) {
			fmt.Println("Unknown category:", c)
			return
		}
	}

	secret, err := a.promptSecret("Password: ")
	if err != nil || secret == "" {
		fmt.Println("A password is required.")
		return
	}

	err = a.auth.Register(ctx, circulation.Member{
		ID:       circulation.MemberID(id),
		Name:     name,
		Role:     role,
		Category: category,
	}, secret)
	if err != nil {
		fmt.Println("register:", err)
		return
	}
	fmt.Printf("Created %s account %s.\n", role, id)
}

func (a *app) listUsers(ctx context.Context) {
	users, err := a.store.ListUsers(ctx)
	if err != nil {
		fmt.Println("list users:", err)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tROLE\tCATEGORY")
	for _, u := range users {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", u.ID, u.Name, u.Role, u.Category)
	}
	w.Flush()
}

func (a *app) listMembers(ctx context.Context) {
	members, err := a.store.ListMembers(ctx)
	if err != nil {
		fmt.Println("list members:", err)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tCATEGORY")
	for _, m := range members {
		fmt.Fprintf(w, "%s\t%s\t%s\n", m.ID, m.Name, m.Category)
	}
	w.Flush()
}

func (a *app) changePassword(ctx context.Context) {
	secret, err := a.promptSecret("New password: ")
	if err != nil || secret == "" {
		fmt.Println("A password is required.")
		return
	}
	if err := a.auth.ChangePassword(ctx, a.user.ID, secret); err != nil {
		fmt.Println("change password:", err)
		return
	}
	fmt.Println("Password changed.")
}

// =============================================================================
// CIRCULATION ACTIONS
// =============================================================================

func (a *app) issueBook(ctx context.Context) {
	memberID := a.prompt("Member id: ")
	bookID := a.prompt("Book id: ")

	result, err := a.engine.Issue(ctx, circulation.MemberID(memberID), circulation.BookID(bookID))
	switch {
	case circulation.IsNotFound(err):
		fmt.Println("No such member or book.")
	case errors.Is(err, circulation.ErrNoCopiesAvailable):
		fmt.Println("No copies available. The member can reserve instead.")
	case errors.Is(err, circulation.ErrBorrowLimit):
		var limitErr *circulation.BorrowLimitError
		if errors.As(err, &limitErr) {
			fmt.Printf("Borrow limit reached (%d of %d open).\n", limitErr.Open, limitErr.Limit)
		} else {
			fmt.Println("Borrow limit reached.")
		}
	case err != nil:
		fmt.Println("issue:", err)
	default:
		fmt.Printf("Issued. Txn %s, due %s.\n", result.TxnID, result.Due.Format("2006-01-02"))
	}
}

// returnBook closes a loan. With a non-empty owner only that member's
// loans may be returned.
func (a *app) returnBook(ctx context.Context, owner circulation.MemberID) {
	txn := a.prompt("Transaction id: ")

	if owner != "" {
		loan, err := a.store.GetLoan(ctx, circulation.TxnID(txn))
		if err != nil {
			fmt.Println("No such loan.")
			return
		}
		if loan.MemberID != owner {
			fmt.Println("That loan belongs to another member.")
			return
		}
	}

	result, err := a.engine.Return(ctx, circulation.TxnID(txn))
	switch {
	case errors.Is(err, circulation.ErrLoanNotFound):
		fmt.Println("No such loan.")
	case errors.Is(err, circulation.ErrAlreadyReturned):
		fmt.Println("Already returned.")
	case err != nil:
		fmt.Println("return:", err)
	default:
		if result.OverdueDays > 0 {
			fmt.Printf("Returned %d days late. Fine: %s.\n", result.OverdueDays, result.Fine)
		} else {
			fmt.Println("Returned on time. No fine.")
		}
		if f := result.Fulfilled; f != nil {
			fmt.Printf("Reserved copy handed to %s (txn %s, due %s).\n",
				f.MemberID, f.TxnID, f.Due.Format("2006-01-02"))
		}
	}
}

// reserveBook queues a member for a checked-out title. With a non-empty
// member the reservation is for that account; staff and admin pass ""
// and are prompted for the member id, covering walk-ins at the desk.
func (a *app) reserveBook(ctx context.Context, member circulation.MemberID) {
	if member == "" {
		member = circulation.MemberID(a.prompt("Member id: "))
	}
	bookID := a.prompt("Book id: ")

	result, err := a.engine.Reserve(ctx, member, circulation.BookID(bookID))
	switch {
	case errors.Is(err, circulation.ErrMemberNotFound):
		fmt.Println("No such member.")
	case errors.Is(err, circulation.ErrBookNotFound):
		fmt.Println("No such book.")
	case errors.Is(err, circulation.ErrBookAvailable):
		fmt.Println("Copies are on the shelf. Borrow it instead.")
	case err != nil:
		fmt.Println("reserve:", err)
	default:
		fmt.Printf("Reserved. Position %d in the queue.\n", result.Position)
	}
}

func (a *app) openLoans(ctx context.Context) {
	loans, err := a.store.OpenLoans(ctx)
	if err != nil {
		fmt.Println("list loans:", err)
		return
	}
	printLoans(loans)
}

func (a *app) myLoans(ctx context.Context) {
	loans, err := a.store.LoansByMember(ctx, a.user.ID)
	if err != nil {
		fmt.Println("list loans:", err)
		return
	}
	printLoans(loans)
}

func (a *app) myReservations(ctx context.Context) {
	rs, err := a.store.ReservationsForMember(ctx, a.user.ID)
	if err != nil {
		fmt.Println("list reservations:", err)
		return
	}
	if len(rs) == 0 {
		fmt.Println("No reservations.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tBOOK\tDATE\tSTATUS")
	for _, r := range rs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.BookID, r.ResDate.Format("2006-01-02"), r.Status)
	}
	w.Flush()
}

// =============================================================================
// REPORTS
// =============================================================================

func (a *app) overdueReport(ctx context.Context) {
	overdue, err := a.engine.Overdue(ctx)
	if err != nil {
		fmt.Println("overdue report:", err)
		return
	}
	if len(overdue) == 0 {
		fmt.Println("Nothing overdue.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TXN\tBOOK\tMEMBER\tDUE\tDAYS LATE\tPROJECTED FINE")
	for _, o := range overdue {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			o.Loan.TxnID, o.Loan.BookID, o.Loan.MemberID,
			o.Loan.DueDate.Format("2006-01-02"), o.OverdueDays, o.ProjectedFine)
	}
	w.Flush()
}

func (a *app) topBorrowed(ctx context.Context) {
	books, err := a.store.TopBorrowed(ctx, 10)
	if err != nil {
		fmt.Println("report:", err)
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "BOOK\tTITLE\tTIMES BORROWED")
	for _, b := range books {
		fmt.Fprintf(w, "%s\t%s\t%d\n", b.ID, b.Title, b.BorrowedCount)
	}
	w.Flush()
}

// =============================================================================
// OUTPUT HELPERS
// =============================================================================

func printBooks(books []circulation.Book) {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tTITLE\tAUTHOR\tRACK\tAVAILABLE")
	for _, b := range books {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d/%d\n",
			b.ID, b.Title, b.Author, b.Rack, b.AvailableCopies, b.TotalCopies)
	}
	w.Flush()
}

func printLoans(loans []circulation.Loan) {
	if len(loans) == 0 {
		fmt.Println("No loans.")
		return
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "TXN\tBOOK\tISSUED\tDUE\tSTATUS\tFINE")
	for _, l := range loans {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			l.TxnID, l.BookID,
			l.IssueDate.Format("2006-01-02"), l.DueDate.Format("2006-01-02"),
			l.Status, l.Fine)
	}
	w.Flush()
}
