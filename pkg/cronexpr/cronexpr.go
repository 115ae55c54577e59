package cronexpr

import (
	"errors"
	"fmt"
	"hash/fnv"
	"time"
)

// ErrNotUTC is returned when an evaluation bound does not carry UTC semantics.
var ErrNotUTC = errors.New("cronexpr: time must be in UTC")

// ParseError describes why an expression text was rejected.
type ParseError struct {
	Text   string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("cronexpr: invalid expression %q: %s", e.Text, e.Reason)
}

// dowNth is a "d#n" day-of-week constraint: the n-th weekday d of the month.
type dowNth struct {
	weekday int
	nth     int
}

// Expression is a parsed, immutable cron expression.
//
// The zero value is not usable; obtain one via Parse or a Builder.
type Expression struct {
	text string // canonical form

	hasSeconds bool

	seconds uint64
	minutes uint64
	hours   uint64
	months  uint64 // bits 1..12

	dom           uint64 // bits 1..31
	domAny        bool   // field was * or ?
	domLast       bool   // L
	domLastOffset []int  // L-n entries
	domNearest    []int  // nW entries

	dow     uint64 // bits 0..6
	dowAny  bool
	dowNths []dowNth
	dowLast uint64 // weekdays with a trailing L
}

// Parse parses a cron expression (5-field, 6-field or macro form).
func Parse(text string) (*Expression, error) {
	return parse(text)
}

// MustParse is like Parse but panics on error. Intended for expressions
// known valid at compile time.
func MustParse(text string) *Expression {
	e, err := parse(text)
	if err != nil {
		panic(err)
	}
	return e
}

// String returns the canonical text of the expression.
func (e *Expression) String() string { return e.text }

// Seconds reports whether the expression carries an explicit seconds field.
func (e *Expression) Seconds() bool { return e.hasSeconds }

// Equal reports canonical-text equality. Two expressions describing the
// same schedule through different spellings are not equal.
func (e *Expression) Equal(other *Expression) bool {
	if e == nil || other == nil {
		return e == other
	}
	return e.text == other.text
}

// Hash returns a stable 64-bit hash of the canonical text, consistent
// with Equal.
func (e *Expression) Hash() uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(e.text))
	return h.Sum64()
}

// requireUTC rejects timestamps that do not carry UTC semantics.
func requireUTC(t time.Time) error {
	if t.Location() != time.UTC {
		return ErrNotUTC
	}
	return nil
}
