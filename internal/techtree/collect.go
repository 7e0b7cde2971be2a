package techtree

import (
	"strings"

	"github.com/PuerkitoBio/goquery"

	"TechTreeCost/internal/domain"
)

// Kind classifies a row of the rendered tree.
type Kind int

const (
	KindOther Kind = iota
	KindHeader
	KindRankRow
)

func (k Kind) String() string {
	switch k {
	case KindHeader:
		return "header"
	case KindRankRow:
		return "rank"
	default:
		return "other"
	}
}

// Classify tells rank headers from rank content rows. Headers win when a row carries both markers.
func Classify(row *goquery.Selection) Kind {
	switch {
	case row.HasClass(classHeader):
		return KindHeader
	case row.HasClass(classRank):
		return KindRankRow
	default:
		return KindOther
	}
}

// Rank is a RankGroup bound to the elements it was collected from.
type Rank struct {
	domain.RankGroup

	LabelEl *goquery.Selection
	Items   []*goquery.Selection
	rows    []*goquery.Selection
}

// CollectRanks walks the tree rows in document order and groups the
// representative unit items of each rank. Rank rows that appear before any
// header are dropped.
func CollectRanks(treeRoot *goquery.Selection) []*Rank {
	var (
		result  []*Rank
		current *Rank
	)

	treeRoot.Find(selTreeRows).Each(func(_ int, row *goquery.Selection) {
		switch Classify(row) {
		case KindHeader:
			labelEl := row.Find(selHeaderLabel).First()
			current = &Rank{
				RankGroup: domain.RankGroup{Label: collapseSpace(labelEl.Text())},
				LabelEl:   labelEl,
			}
			result = append(result, current)
		case KindRankRow:
			if current != nil {
				current.rows = append(current.rows, row)
			}
		}
	})

	for _, r := range result {
		for _, row := range r.rows {
			for _, item := range representativeItems(leftColumn(row)) {
				r.Items = append(r.Items, item)
				if id := UnitID(item); id != "" {
					r.MemberUnitIDs = append(r.MemberUnitIDs, id)
				}
			}
		}
	}

	return result
}

func leftColumn(row *goquery.Selection) *goquery.Selection {
	if left := row.Find(selGridLeft).First(); left.Length() > 0 {
		return left
	}
	if left := row.Find(selTableLeft).First(); left.Length() > 0 {
		return left
	}
	return row
}

// representativeItems keeps only the first item of each collapsed group.
func representativeItems(container *goquery.Selection) []*goquery.Selection {
	var items []*goquery.Selection
	container.Find(selItem).Each(func(_ int, item *goquery.Selection) {
		group := item.Closest(selGroup)
		if group.Length() == 0 {
			items = append(items, item)
			return
		}
		if first := group.Find(selItem).First(); first.Length() > 0 && first.Get(0) == item.Get(0) {
			items = append(items, item)
		}
	})
	return items
}

// UnitID extracts the unit identifier of a tree item, or "" when absent.
func UnitID(item *goquery.Selection) string {
	if id, ok := item.Attr(attrUnitID); ok && id != "" {
		return id
	}
	href, ok := item.Find(selItemLink).First().Attr("href")
	if !ok {
		return ""
	}
	return href[strings.LastIndex(href, "/")+1:]
}

// ListUnitID extracts the unit identifier of a unit-list row.
func ListUnitID(row *goquery.Selection) string {
	return row.AttrOr(attrListUnitID, "")
}

func collapseSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}
