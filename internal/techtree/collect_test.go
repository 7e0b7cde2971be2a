package techtree

import (
	"os"
	"reflect"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

func loadFixture(t *testing.T) *goquery.Document {
	t.Helper()

	f, err := os.Open("testdata/tree.html")
	if err != nil {
		t.Fatalf("open fixture: %v", err)
	}
	defer f.Close()

	doc, err := goquery.NewDocumentFromReader(f)
	if err != nil {
		t.Fatalf("parse fixture: %v", err)
	}
	return doc
}

func TestClassify(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
	<div class="wt-tree_r-header"></div>
	<div class="wt-tree_rank"></div>
	<div class="wt-tree_row"></div>
	<div class="wt-tree_r-header wt-tree_rank"></div>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	want := []Kind{KindHeader, KindRankRow, KindOther, KindHeader}
	doc.Find("div").Each(func(i int, row *goquery.Selection) {
		if got := Classify(row); got != want[i] {
			t.Fatalf("row %d: got %s, want %s", i, got, want[i])
		}
	})
}

func TestCollectRanks(t *testing.T) {
	t.Parallel()

	doc := loadFixture(t)
	tree := VisibleTree(doc)
	if tree == nil {
		t.Fatalf("expected a visible tree")
	}

	ranks := CollectRanks(tree)
	if len(ranks) != 2 {
		t.Fatalf("expected 2 ranks, got %d", len(ranks))
	}

	if ranks[0].Label != "Rank I" {
		t.Fatalf("unexpected first label: %q", ranks[0].Label)
	}
	wantFirst := []string{"us_m2a4", "us_m3_stuart", "us_m8_hmc"}
	if !reflect.DeepEqual(ranks[0].MemberUnitIDs, wantFirst) {
		t.Fatalf("unexpected rank I members: %v", ranks[0].MemberUnitIDs)
	}
	if len(ranks[0].Items) != 4 {
		t.Fatalf("expected 4 representative items including the one without id, got %d", len(ranks[0].Items))
	}

	if ranks[1].Label != "Rank II" {
		t.Fatalf("unexpected second label: %q", ranks[1].Label)
	}
	if !reflect.DeepEqual(ranks[1].MemberUnitIDs, []string{"us_m4a1"}) {
		t.Fatalf("unexpected rank II members: %v", ranks[1].MemberUnitIDs)
	}
}

func TestCollectRanksWithoutHeader(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
	<div class="wt-tree_instance">
	  <div class="wt-tree_rank"><div class="wt-tree_item" data-unit-id="a"></div></div>
	</div>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	if ranks := CollectRanks(doc.Selection); len(ranks) != 0 {
		t.Fatalf("expected rows without header to be dropped, got %d ranks", len(ranks))
	}
}

func TestCollectRanksTableLayout(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
	<table class="wt-tree_instance"><tbody>
	  <tr class="wt-tree_r-header"><td><div class="wt-tree_r-header_label">Rank III</div></td></tr>
	  <tr class="wt-tree_rank">
	    <td colspan="2"><div class="wt-tree_rank-instance"><div class="wt-tree_item" data-unit-id="left"></div></div></td>
	    <td><div class="wt-tree_rank-instance"><div class="wt-tree_item" data-unit-id="right"></div></div></td>
	  </tr>
	</tbody></table>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	ranks := CollectRanks(doc.Selection)
	if len(ranks) != 1 {
		t.Fatalf("expected 1 rank, got %d", len(ranks))
	}
	if !reflect.DeepEqual(ranks[0].MemberUnitIDs, []string{"left"}) {
		t.Fatalf("expected only the first-column unit, got %v", ranks[0].MemberUnitIDs)
	}
}

func TestUnitID(t *testing.T) {
	t.Parallel()

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(`
	<div class="wt-tree_item" id="attr" data-unit-id="germ_pzkpfw_IV"></div>
	<div class="wt-tree_item" id="link"><a class="wt-tree_item-link" href="https://wiki.warthunder.com/unit/ussr_t_34_1941">T-34</a></div>
	<div class="wt-tree_item" id="slash"><a class="wt-tree_item-link" href="/unit/"></a></div>
	<div class="wt-tree_item" id="none"></div>`))
	if err != nil {
		t.Fatalf("new document: %v", err)
	}

	cases := map[string]string{
		"#attr":  "germ_pzkpfw_IV",
		"#link":  "ussr_t_34_1941",
		"#slash": "",
		"#none":  "",
	}
	for sel, want := range cases {
		if got := UnitID(doc.Find(sel)); got != want {
			t.Fatalf("UnitID(%s) = %q, want %q", sel, got, want)
		}
	}
}
