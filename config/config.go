/*
Package config loads runtime configuration from the environment.

The circulation constants - fine rate and per-category borrow policies -
are configuration, not code. Deployments override them without rebuilds.
*/
package config

import (
	"fmt"

	"github.com/caarlos0/env/v11"
	"github.com/shopspring/decimal"

	"github.com/warp/circulation-engine/circulation"
)

// Config is the full runtime configuration.
type Config struct {
	Port    int    `env:"PORT" envDefault:"8080"`
	DBPath  string `env:"LIBRARY_DB" envDefault:"library.db"`
	LogMode string `env:"LOG_MODE" envDefault:"dev"`

	// FinePerDay is a decimal string in whole currency units.
	FinePerDay string `env:"FINE_PER_DAY" envDefault:"2"`

	StudentLoanDays  int `env:"STUDENT_LOAN_DAYS" envDefault:"14"`
	StudentLoanLimit int `env:"STUDENT_LOAN_LIMIT" envDefault:"5"`
	FacultyLoanDays  int `env:"FACULTY_LOAN_DAYS" envDefault:"30"`
	FacultyLoanLimit int `env:"FACULTY_LOAN_LIMIT" envDefault:"10"`
	StaffLoanDays    int `env:"STAFF_LOAN_DAYS" envDefault:"21"`
	StaffLoanLimit   int `env:"STAFF_LOAN_LIMIT" envDefault:"7"`
}

// Load parses the environment into a Config.
func Load() (Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return Config{}, fmt.Errorf("parse environment: %w", err)
	}
	return cfg, nil
}

// Policies builds the borrow-policy table from the configured values.
func (c Config) Policies() circulation.Policies {
	return circulation.Policies{
		circulation.CategoryStudent: {LoanDays: c.StudentLoanDays, ConcurrentLimit: c.StudentLoanLimit},
		circulation.CategoryFaculty: {LoanDays: c.FacultyLoanDays, ConcurrentLimit: c.FacultyLoanLimit},
		circulation.CategoryStaff:   {LoanDays: c.StaffLoanDays, ConcurrentLimit: c.StaffLoanLimit},
	}
}

// FineRate parses the configured fine-per-day rate.
func (c Config) FineRate() (decimal.Decimal, error) {
	rate, err := decimal.NewFromString(c.FinePerDay)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("invalid FINE_PER_DAY %q: %w", c.FinePerDay, err)
	}
	if rate.IsNegative() {
		return decimal.Decimal{}, fmt.Errorf("invalid FINE_PER_DAY %q: must not be negative", c.FinePerDay)
	}
	return rate, nil
}
