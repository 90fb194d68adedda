// Package codegen formats and allocates the human-readable business codes
// (P000001, D000001, MR000001, APT000001) that identify clinic records
// independently of their numeric ids.
package codegen

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/jwalitptl/clinic-records/internal/repository"
)

// Width is the number of zero-padded digits after the prefix.
const Width = 6

// Kind describes one family of business codes and where it is stored.
type Kind struct {
	Name   string
	Prefix string
	Table  string
	Column string
}

var (
	Patient       = Kind{Name: "patient", Prefix: "P", Table: "patients", Column: "patient_code"}
	Doctor        = Kind{Name: "doctor", Prefix: "D", Table: "doctors", Column: "doctor_code"}
	MedicalRecord = Kind{Name: "medical_record", Prefix: "MR", Table: "medical_records", Column: "record_number"}
	Appointment   = Kind{Name: "appointment", Prefix: "APT", Table: "appointments", Column: "appointment_number"}
)

// Kinds lists every code family.
func Kinds() []Kind {
	return []Kind{Patient, Doctor, MedicalRecord, Appointment}
}

// Strategy selects how sequence values are obtained.
type Strategy string

const (
	// StrategySequence allocates from an atomic per-kind counter inside the
	// inserting transaction.
	StrategySequence Strategy = "sequence"
	// StrategyCount uses the row count plus one. Concurrent writers can
	// collide; the unique index rejects the later commit.
	StrategyCount Strategy = "count"
)

func ParseStrategy(s string) (Strategy, error) {
	switch Strategy(strings.ToLower(s)) {
	case "", StrategySequence:
		return StrategySequence, nil
	case StrategyCount:
		return StrategyCount, nil
	}
	return "", fmt.Errorf("unknown code strategy %q", s)
}

// Format renders n with the kind's prefix.
func (k Kind) Format(n int64) string {
	return fmt.Sprintf("%s%0*d", k.Prefix, Width, n)
}

// Parse returns the sequence number encoded in code.
func (k Kind) Parse(code string) (int64, error) {
	digits, ok := strings.CutPrefix(code, k.Prefix)
	if !ok || len(digits) < Width {
		return 0, fmt.Errorf("%q is not a %s code", code, k.Name)
	}
	n, err := strconv.ParseInt(digits, 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%q is not a %s code", code, k.Name)
	}
	return n, nil
}

// Valid reports whether code matches any known kind.
func Valid(code string) bool {
	for _, k := range Kinds() {
		if _, err := k.Parse(code); err == nil {
			return true
		}
	}
	return false
}

// Counter is satisfied by every repository.
type Counter interface {
	Count(ctx context.Context, p ...repository.Predicate) (int64, error)
}

// NextByCount derives the next code from the current non-deleted row count.
// It is only safe with a single writer per kind.
func NextByCount(ctx context.Context, c Counter, k Kind) (string, error) {
	n, err := c.Count(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to count %s rows: %w", k.Name, err)
	}
	return k.Format(n + 1), nil
}
