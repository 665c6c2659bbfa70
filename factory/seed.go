/*
Package factory provides first-run seed data.

PURPOSE:
  A fresh database gets one account per role and a small sample catalog
  so the menus are usable immediately. Seeding only happens when the
  users table is empty; an existing deployment is never touched.

DEFAULT ACCOUNTS (change the passwords after first login):
  admin1 / admin1   library administrator
  staff1 / staff1   librarian
  m001   / m001     sample student member
*/
package factory

import (
	"context"
	"fmt"

	"github.com/warp/circulation-engine/auth"
	"github.com/warp/circulation-engine/circulation"
	"github.com/warp/circulation-engine/store/sqlite"
)

type seedAccount struct {
	member circulation.Member
	secret string
}

var defaultAccounts = []seedAccount{
	{circulation.Member{ID: "admin1", Name: "Library Admin", Role: circulation.RoleAdmin}, "admin1"},
	{circulation.Member{ID: "staff1", Name: "Librarian", Role: circulation.RoleStaff}, "staff1"},
	{circulation.Member{ID: "m001", Name: "Alice Student", Role: circulation.RoleMember, Category: circulation.CategoryStudent}, "m001"},
}

var defaultBooks = []circulation.Book{
	{ID: "b001", ISBN: "9780131103627", Title: "The C Programming Language", Author: "Kernighan & Ritchie", Publisher: "Prentice Hall", Year: 1978, Rack: "R1-01", TotalCopies: 3},
	{ID: "b002", ISBN: "9780132350884", Title: "Clean Code", Author: "Robert C. Martin", Publisher: "Prentice Hall", Year: 2008, Rack: "R2-03", TotalCopies: 2},
	{ID: "b003", ISBN: "9780262033848", Title: "Introduction to Algorithms", Author: "Cormen et al.", Publisher: "MIT Press", Year: 2009, Rack: "R3-05", TotalCopies: 1},
}

// Seed installs the default accounts and catalog when the database is
// empty. Returns true when seeding ran.
func Seed(ctx context.Context, store *sqlite.Store, authSvc *auth.Service) (bool, error) {
	n, err := store.CountUsers(ctx)
	if err != nil {
		return false, fmt.Errorf("count users: %w", err)
	}
	if n > 0 {
		return false, nil
	}

	for _, acc := range defaultAccounts {
		if err := authSvc.Register(ctx, acc.member, acc.secret); err != nil {
			return false, fmt.Errorf("seed account %s: %w", acc.member.ID, err)
		}
	}
	for _, b := range defaultBooks {
		if err := store.PutBook(ctx, b); err != nil {
			return false, fmt.Errorf("seed book %s: %w", b.ID, err)
		}
	}
	return true, nil
}
