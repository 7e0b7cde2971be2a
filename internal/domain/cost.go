package domain

import (
	"errors"
	"time"
)

var (
	// ErrFetch marks transport-level failures while loading a unit page.
	ErrFetch = errors.New("fetch unit page")
	// ErrParse marks unit pages that lack the expected info markup.
	ErrParse = errors.New("parse unit page")
)

// CostRecord is the cached cost snapshot of a single unit.
type CostRecord struct {
	ResearchPoints int64
	PurchaseCost   int64
	FetchedAt      time.Time
}

// Resolution is what the fetch queue hands back to its callers.
// Resolved is false for the fail-soft zero record produced after an error.
type Resolution struct {
	Record   CostRecord
	Resolved bool
}

// Unresolved builds the fail-soft zero record stamped with now.
func Unresolved(now time.Time) Resolution {
	return Resolution{Record: CostRecord{FetchedAt: now}}
}

// RankGroup is one tier of a tech tree with its aggregated costs.
type RankGroup struct {
	Label         string
	MemberUnitIDs []string
	RPSum         int64
	SLSum         int64
}

// Totals sums research points and purchase costs over all ranks.
func Totals(ranks []RankGroup) (rp, sl int64) {
	for _, r := range ranks {
		rp += r.RPSum
		sl += r.SLSum
	}
	return rp, sl
}
