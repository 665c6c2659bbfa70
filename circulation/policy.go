/*
policy.go - Borrow categories and their loan policies

PURPOSE:
  A member's category (student, faculty, staff) selects how long a loan
  runs and how many loans may be open at once. Policies are data, not
  code: deployments override them through config without rebuilding.

DEFAULTS:
  student -> 14 days, 5 concurrent loans
  faculty -> 30 days, 10 concurrent loans
  staff   -> 21 days, 7 concurrent loans

Unknown or missing categories fall back to the student policy, the most
restrictive one.
*/
package circulation

import "github.com/shopspring/decimal"

// BorrowPolicy is the per-category loan rule.
type BorrowPolicy struct {
	LoanDays        int
	ConcurrentLimit int
}

// Policies maps categories to their borrow rules.
type Policies map[Category]BorrowPolicy

// DefaultPolicies returns the standard campus policy table.
func DefaultPolicies() Policies {
	return Policies{
		CategoryStudent: {LoanDays: 14, ConcurrentLimit: 5},
		CategoryFaculty: {LoanDays: 30, ConcurrentLimit: 10},
		CategoryStaff:   {LoanDays: 21, ConcurrentLimit: 7},
	}
}

// For resolves the policy for a category. Unknown categories get the
// student policy.
func (p Policies) For(c Category) BorrowPolicy {
	if pol, ok := p[c]; ok {
		return pol
	}
	return p[CategoryStudent]
}

// DefaultFinePerDay is the standard fine rate in whole currency units per
// overdue day. Overridable via config.
var DefaultFinePerDay = decimal.NewFromInt(2)
