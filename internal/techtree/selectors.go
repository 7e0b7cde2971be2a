// Package techtree understands the wiki's tech-tree and unit-list markup:
// it groups tree items into ranks and writes cost badges and sums back.
package techtree

// Host page structure.
const (
	SelTreesContainer = ".unit-trees_instances"
	SelTree           = ".unit-trees_instances .unit-tree"
	SelUnitList       = "#wt-unit-list"
	SelListBody       = SelUnitList + " tbody"
	SelListRow        = "tr.wt-ulist_unit"

	selTreeRows     = ".wt-tree_instance .wt-tree_row, .wt-tree_instance .wt-tree_rank, .wt-tree_instance .wt-tree_r-header"
	classRow        = "wt-tree_row"
	classRank       = "wt-tree_rank"
	classHeader     = "wt-tree_r-header"
	selHeaderLabel  = ".wt-tree_r-header_label"
	selTreeHeader   = ".wt-tree_header"
	selGridLeft     = `[style*="grid-column: 1 / 3"] .wt-tree_rank-instance`
	selTableLeft    = `td[colspan="2"] .wt-tree_rank-instance`
	selItem         = ".wt-tree_item"
	selGroup        = ".wt-tree_group"
	selItemLink     = ".wt-tree_item-link"
	selRank1Summary = `[style*="grid-column: 1 / 3"] .wt-tree_r-header_label .wt-rank-sum`

	selListRows = SelListRow + "[data-ulist-id]"
	selListCell = ".br"

	attrUnitID     = "data-unit-id"
	attrListUnitID = "data-ulist-id"
)

// Injected markup.
const (
	classBadgeHost = "br"
	classPill      = "wt-rp-pill"
	classRankSum   = "wt-rank-sum"
	classTotalSum  = "wt-total-sum"
	classListRP    = "wt-ulist-rp"
	styleID        = "wt-cost-style"

	totalMarker = "Total Cost:"
	pendingCell = "…"
)

const stylesheet = `
div.wt-rp-pill { position: absolute; right: 10px; top: 10px; font-size: 11px; line-height: 1;
  background: rgba(0,0,0,.65); color: #ffd952; padding: 2px 6px; border-radius: 10px;
  z-index: 3; pointer-events: none; white-space: nowrap; }
.br.wt-rp-pill { display: inline-block; background: rgba(0,0,0,.65); color: #ffd952; padding: 2px 6px;
  border-radius: 10px; white-space: nowrap; width: auto !important; height: auto !important;
  min-width: 0 !important; min-height: 0 !important; line-height: 1.2 !important;
  transform: none !important; writing-mode: horizontal-tb !important; z-index: auto; }
.wt-tree_item { position: relative; }
.wt-rank-sum { font-weight: 600; margin-left: .5em; font-size: .95em; color: #ffd952; white-space: nowrap; }
.wt-total-sum { margin-top: .2em; font-size: .95em; color: #ffd952; }
.wt-ulist-rp { font-weight: 600; }
`
