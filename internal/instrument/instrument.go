// Package instrument validates and holds the single instrument identity a
// kernel run observes, reduced from the teacher's internal/symbol (a table
// of 30 symbols across 8 sectors) to exactly one instrument, per the
// Non-goal "no multi-instrument runs".
package instrument

import (
	"fmt"
	"regexp"
)

var contractKeyPattern = regexp.MustCompile(`^[A-Z]+\.\d{6}$`)

// Identity is the validated, immutable instrument identity for a run.
type Identity struct {
	Symbol      string
	ContractKey string
	ConID       *int64
	TickSize    float64
}

// New validates and constructs an Identity. A failure here is a
// configuration error, fatal at startup per SPEC_FULL.md §7.
func New(symbol, contractKey string, tickSize float64, conID *int64) (Identity, error) {
	if symbol == "" {
		return Identity{}, fmt.Errorf("instrument: symbol is required")
	}
	if !contractKeyPattern.MatchString(contractKey) {
		return Identity{}, fmt.Errorf("instrument: contract key %q does not match SYMBOL.YYYYMM", contractKey)
	}
	if tickSize <= 0 {
		return Identity{}, fmt.Errorf("instrument: tick size must be > 0, got %v", tickSize)
	}
	return Identity{
		Symbol:      symbol,
		ContractKey: contractKey,
		ConID:       conID,
		TickSize:    tickSize,
	}, nil
}
