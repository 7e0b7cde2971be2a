package domain

import (
	"fmt"

	"github.com/dustin/go-humanize"
)

// FormatInt renders n with comma digit grouping, e.g. 12,500.
func FormatInt(n int64) string {
	return humanize.Comma(n)
}

// Badge is the per-unit label text shown on tree items.
func Badge(rec CostRecord) string {
	return fmt.Sprintf("RP %s | SL %s", FormatInt(rec.ResearchPoints), FormatInt(rec.PurchaseCost))
}

// RankSummary is the text appended to a rank header label.
func RankSummary(rp, sl int64) string {
	return fmt.Sprintf("— RP %s • SL %s", FormatInt(rp), FormatInt(sl))
}

// TotalSummary is the suffix carrying the sum over every rank.
func TotalSummary(rp, sl int64) string {
	return fmt.Sprintf(" — Total Cost: RP %s • SL %s", FormatInt(rp), FormatInt(sl))
}

// ListCell is the research-only label used in the unit list view.
func ListCell(rec CostRecord) string {
	return "RP " + FormatInt(rec.ResearchPoints)
}
