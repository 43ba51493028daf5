package hierarchy

import (
	"strings"
	"testing"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

func TestExtractFromMarkdownBuildsStableIDs(t *testing.T) {
	markdown := strings.Join([]string{
		"# Intro",
		"Opening text.",
		"## Basics",
		"Basic text.",
		"## Details",
		"Detail text.",
		"# Advanced",
		"## Tuning",
		"Tuning text.",
	}, "\n")

	e := New(logger.NewNop(), 5)
	o := e.Extract(&domain.ParseResult{Markdown: markdown, MethodUsed: domain.MethodStructured})

	nodes := o.Nodes()
	wantIDs := []string{
		"chapter_1",
		"chapter_1_section_1",
		"chapter_1_section_2",
		"chapter_2",
		"chapter_2_section_1",
	}
	if len(nodes) != len(wantIDs) {
		t.Fatalf("node count: want=%d got=%d", len(wantIDs), len(nodes))
	}
	for i, want := range wantIDs {
		if nodes[i].ID != want {
			t.Fatalf("node %d id: want=%q got=%q", i, want, nodes[i].ID)
		}
	}
	if o.Synthetic {
		t.Fatal("markdown outline must not be marked synthetic")
	}
}

func TestExtractPreOrderParentReferences(t *testing.T) {
	markdown := "# A\n## B\n### C\n## D\n"
	e := New(logger.NewNop(), 5)
	o := e.Extract(&domain.ParseResult{Markdown: markdown})

	nodes := o.Nodes()
	seen := map[string]bool{"": true}
	for _, n := range nodes {
		if !seen[n.ParentID] {
			t.Fatalf("node %s references parent %s before it appears", n.ID, n.ParentID)
		}
		seen[n.ID] = true
	}

	byID := map[string]*domain.HierarchyNode{}
	for _, n := range nodes {
		byID[n.ID] = n
	}
	c := byID["chapter_1_section_1_subsection_1"]
	if c == nil {
		t.Fatalf("missing subsection node, got ids: %v", ids(nodes))
	}
	if c.ParentID != "chapter_1_section_1" {
		t.Fatalf("subsection parent: want=chapter_1_section_1 got=%s", c.ParentID)
	}
}

func TestExtractSiblingOrdinalsRestartPerParent(t *testing.T) {
	markdown := "# One\n## A\n## B\n# Two\n## C\n"
	e := New(logger.NewNop(), 5)
	o := e.Extract(&domain.ParseResult{Markdown: markdown})

	byTitle := map[string]string{}
	for _, n := range o.Nodes() {
		byTitle[n.Title] = n.ID
	}
	if byTitle["C"] != "chapter_2_section_1" {
		t.Fatalf("ordinal must restart under a new parent: got %s", byTitle["C"])
	}
}

func TestExtractSegmentsFeedNodeBodies(t *testing.T) {
	markdown := "# One\nalpha beta\n## Sub\ngamma delta\n"
	e := New(logger.NewNop(), 5)
	o := e.Extract(&domain.ParseResult{Markdown: markdown})

	if got := o.Segments["chapter_1"]; got != "alpha beta" {
		t.Fatalf("chapter segment: want=%q got=%q", "alpha beta", got)
	}
	if got := o.Segments["chapter_1_section_1"]; got != "gamma delta" {
		t.Fatalf("section segment: want=%q got=%q", "gamma delta", got)
	}
}

func TestExtractSyntheticFallbackBucketsPages(t *testing.T) {
	e := New(logger.NewNop(), 5)
	o := e.Extract(&domain.ParseResult{
		Text:      strings.Repeat("plain text with no structure. ", 50),
		PageCount: 12,
	})

	if !o.Synthetic {
		t.Fatal("structureless input must produce a synthetic outline")
	}
	nodes := o.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("buckets for 12 pages span 5: want=3 got=%d", len(nodes))
	}
	if nodes[0].ID != "section_1" || nodes[0].Title != "Pages 1-5" {
		t.Fatalf("first bucket: got id=%s title=%q", nodes[0].ID, nodes[0].Title)
	}
	last := nodes[2]
	if last.PageStart != 11 || last.PageEnd != 12 {
		t.Fatalf("last bucket pages: want=11-12 got=%d-%d", last.PageStart, last.PageEnd)
	}
	for _, n := range nodes {
		if o.Segments[n.ID] == "" {
			t.Fatalf("bucket %s has no text segment", n.ID)
		}
	}
}

func TestExtractFromLayoutBlocks(t *testing.T) {
	e := New(logger.NewNop(), 5)
	o := e.Extract(&domain.ParseResult{
		Hint: domain.HierarchyHint{Blocks: []domain.LayoutBlock{
			{Type: "title", Text: "Manual", Page: 1},
			{Type: "section_header", Text: "Setup", Page: 1},
			{Type: "paragraph", Text: "Do the setup.", Page: 1},
			{Type: "section_header", Text: "Usage", Page: 2},
		}},
	})

	nodes := o.Nodes()
	if len(nodes) != 3 {
		t.Fatalf("node count: want=3 got=%d (%v)", len(nodes), ids(nodes))
	}
	if nodes[1].ParentID != nodes[0].ID {
		t.Fatalf("section header must nest under title: parent=%s", nodes[1].ParentID)
	}
	if got := o.Segments[nodes[1].ID]; got != "Do the setup." {
		t.Fatalf("paragraph must feed the open section: got=%q", got)
	}
}

func TestClassifyKindSequential(t *testing.T) {
	cases := []struct {
		title string
		body  string
		want  domain.NodeKind
	}{
		{"Step 3: Install", "", domain.KindSequential},
		{"Phase Two", "", domain.KindSequential},
		{"Overview", "1. mix\n2. bake\nsome prose", domain.KindSequential},
		{"Overview", "plain prose only", domain.KindHierarchical},
		{"Overview", "1. just one ordinal", domain.KindHierarchical},
	}
	for _, tc := range cases {
		if got := classifyKind(tc.title, tc.body); got != tc.want {
			t.Fatalf("classifyKind(%q): want=%v got=%v", tc.title, tc.want, got)
		}
	}
}

func TestChapterOfMapsDescendantsToRoot(t *testing.T) {
	markdown := "# One\n## A\n### Deep\n# Two\n"
	e := New(logger.NewNop(), 5)
	o := e.Extract(&domain.ParseResult{Markdown: markdown})

	chapters := o.ChapterOf()
	if chapters["chapter_1_section_1_subsection_1"] != "chapter_1" {
		t.Fatalf("deep node chapter: got=%s", chapters["chapter_1_section_1_subsection_1"])
	}
	if chapters["chapter_2"] != "chapter_2" {
		t.Fatalf("root maps to itself: got=%s", chapters["chapter_2"])
	}
}

func ids(nodes []*domain.HierarchyNode) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}
