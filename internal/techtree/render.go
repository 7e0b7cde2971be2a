package techtree

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/domain"
)

var (
	totalSuffixExpr  = regexp.MustCompile(`(?i)\s*—\s*` + regexp.QuoteMeta(totalMarker) + `.*$`)
	inlineSpaceExpr  = regexp.MustCompile(`\s+`)
	positionedExpr   = regexp.MustCompile(`(?i)(^|;)\s*position\s*:\s*(absolute|relative|fixed|sticky)`)
	anchoredExpr     = regexp.MustCompile(`(?i)(^|;)\s*(top|right|bottom|left)\s*:`)
	displayNoneExpr  = regexp.MustCompile(`(?i)(^|;)\s*display\s*:\s*none`)
	pillStyleEntries = []string{
		"width: auto",
		"height: auto",
		"min-width: 0",
		"min-height: 0",
		"line-height: 1.2",
		"writing-mode: horizontal-tb",
	}
)

// EnsureStylesheet injects the badge and summary styles once per document.
func EnsureStylesheet(doc *goquery.Document) {
	if doc.Find("style#"+styleID).Length() > 0 {
		return
	}
	target := doc.Find("head").First()
	if target.Length() == 0 {
		target = doc.Find("body").First()
	}
	target.AppendHtml(`<style id="` + styleID + `">` + stylesheet + `</style>`)
}

// SetBadge writes the cost pill of a tree item, reusing the host page's
// span.br when one exists.
func SetBadge(item *goquery.Selection, rec domain.CostRecord) {
	pill := ensurePill(item)
	pill.SetText(domain.Badge(rec))
}

func ensurePill(item *goquery.Selection) *goquery.Selection {
	pill := item.Find("span." + classBadgeHost).First()
	if pill.Length() == 0 {
		item.AppendHtml(`<span class="` + classBadgeHost + `"></span>`)
		pill = item.ChildrenFiltered("span." + classBadgeHost).Last()
	}
	pill.AddClass(classPill)
	pill.SetAttr("style", pillStyle(pill.AttrOr("style", "")))
	return pill
}

// pillStyle rewrites the inline style of a badge so that the host page's
// vertical BR layout does not squash it.
func pillStyle(existing string) string {
	base := stripPillStyle(existing)

	decls := make([]string, 0, len(pillStyleEntries)+5)
	if base != "" {
		decls = append(decls, base)
	}
	if !positionedExpr.MatchString(base) {
		decls = append(decls, "position: absolute")
	}
	if !anchoredExpr.MatchString(base) {
		decls = append(decls, "top: 10px", "right: 10px")
	}
	decls = append(decls, pillStyleEntries...)
	decls = append(decls, "transform: translate(6px, 8px) !important")
	return strings.Join(decls, "; ")
}

// stripPillStyle drops declarations written by a previous pillStyle call so
// that repeated renders produce the same attribute.
func stripPillStyle(style string) string {
	owned := map[string]bool{"transform": true}
	for _, entry := range pillStyleEntries {
		owned[strings.TrimSpace(strings.SplitN(entry, ":", 2)[0])] = true
	}

	var kept []string
	for _, decl := range strings.Split(style, ";") {
		decl = strings.TrimSpace(decl)
		if decl == "" {
			continue
		}
		prop := strings.ToLower(strings.TrimSpace(strings.SplitN(decl, ":", 2)[0]))
		if owned[prop] {
			continue
		}
		kept = append(kept, decl)
	}
	return strings.Join(kept, "; ")
}

// RenderRankSum writes the per-rank summary span into the header label.
func RenderRankSum(r *Rank) {
	if r == nil || r.LabelEl == nil || r.LabelEl.Length() == 0 {
		return
	}
	span := r.LabelEl.Find("." + classRankSum).First()
	if span.Length() == 0 {
		r.LabelEl.AppendHtml(`<span class="` + classRankSum + `"></span>`)
		span = r.LabelEl.Find("." + classRankSum).First()
	}
	span.SetText(domain.RankSummary(r.RPSum, r.SLSum))
}

// RenderTotal writes the sum over all ranks into the rank-1 summary span.
func RenderTotal(treeRoot *goquery.Selection, ranks []*Rank) {
	headerRow := treeRoot.Find(selTreeHeader).First()
	if headerRow.Length() == 0 {
		return
	}
	if headerRow.Find("."+classTotalSum).Length() == 0 {
		headerRow.AppendHtml(`<div class="` + classTotalSum + `"></div>`)
	}

	groups := make([]domain.RankGroup, 0, len(ranks))
	for _, r := range ranks {
		groups = append(groups, r.RankGroup)
	}
	rp, sl := domain.Totals(groups)

	rank1 := treeRoot.Find(selRank1Summary).First()
	if rank1.Length() == 0 {
		return
	}
	rank1.SetText(WithTotal(rank1.Text(), domain.TotalSummary(rp, sl)))
}

// WithTotal replaces the text after the total marker, or appends the total
// when the marker is absent.
func WithTotal(current, total string) string {
	current = inlineSpaceExpr.ReplaceAllString(current, " ")
	if totalSuffixExpr.MatchString(current) {
		return totalSuffixExpr.ReplaceAllLiteralString(current, total)
	}
	return current + total
}

// SetListCell renders the research cost into a unit-list cell.
func SetListCell(cell *goquery.Selection, rec domain.CostRecord) {
	cell.Empty()
	cell.AppendHtml(`<span class="` + classListRP + `"></span>`)
	cell.Find("." + classListRP).SetText(domain.ListCell(rec))
}

// SetListPending marks a unit-list cell whose cost is being fetched.
func SetListPending(cell *goquery.Selection) {
	cell.SetText(pendingCell)
}

// ListRows returns the unit rows of a list body.
func ListRows(tbody *goquery.Selection) *goquery.Selection {
	return tbody.Find(selListRows)
}

// IsListRow reports whether sel is a unit-list row with an identifier.
func IsListRow(sel *goquery.Selection) bool {
	return sel.Is(selListRows)
}

// ListCell returns the cost cell of a unit-list row.
func ListCell(row *goquery.Selection) *goquery.Selection {
	return row.Find(selListCell).First()
}

// Hidden reports whether an element is hidden through its inline style.
func Hidden(sel *goquery.Selection) bool {
	return displayNoneExpr.MatchString(sel.AttrOr("style", ""))
}

// VisibleTree returns the first tree instance that is not hidden.
func VisibleTree(doc *goquery.Document) *goquery.Selection {
	var visible *goquery.Selection
	doc.Find(SelTree).EachWithBreak(func(_ int, tree *goquery.Selection) bool {
		if Hidden(tree) {
			return true
		}
		visible = tree
		return false
	})
	return visible
}

// VisibleList returns the unit list when it is present and shown.
func VisibleList(doc *goquery.Document) *goquery.Selection {
	list := doc.Find(SelUnitList).First()
	if list.Length() == 0 || Hidden(list) {
		return nil
	}
	return list
}
