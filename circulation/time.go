package circulation

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// =============================================================================
// CLOCK - Injected time source
// =============================================================================

// Clock supplies the current instant. The engine never reads the wall clock
// directly, so due dates and fines are deterministic under test.
type Clock interface {
	Now() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. For tests.
type FixedClock struct {
	At time.Time
}

func (c FixedClock) Now() time.Time { return c.At }

// =============================================================================
// CALENDAR-DAY ARITHMETIC
// =============================================================================

// DateOf truncates t to its UTC calendar date. All day counting in the
// engine goes through this, so time-of-day never affects fines.
func DateOf(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// DaysBetween returns the whole calendar days from a to b (negative when b
// is earlier). Partial days never count.
func DaysBetween(a, b time.Time) int {
	return int(DateOf(b).Sub(DateOf(a)).Hours() / 24)
}

// =============================================================================
// IDENTIFIER GENERATION
// =============================================================================

// IDGenerator produces the unique identifiers for loans and reservations.
// Injected so tests can use predictable ids.
type IDGenerator interface {
	NewTxnID() TxnID
	NewReservationID() ReservationID
}

// UUIDGenerator is the production generator. UUIDs keep collision
// probability negligible under concurrent issuance.
type UUIDGenerator struct{}

func (UUIDGenerator) NewTxnID() TxnID {
	return TxnID("TX" + uuid.NewString())
}

func (UUIDGenerator) NewReservationID() ReservationID {
	return ReservationID("RS" + uuid.NewString())
}

// SequenceGenerator hands out numbered ids. For tests.
type SequenceGenerator struct {
	n int
}

func (g *SequenceGenerator) NewTxnID() TxnID {
	g.n++
	return TxnID(fmt.Sprintf("TX%04d", g.n))
}

func (g *SequenceGenerator) NewReservationID() ReservationID {
	g.n++
	return ReservationID(fmt.Sprintf("RS%04d", g.n))
}
