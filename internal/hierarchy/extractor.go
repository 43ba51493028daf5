// Package hierarchy normalizes parser output into a forest of addressable
// structural nodes. Markdown headings are folded with an explicit stack;
// OCR layout blocks get a flatter two-level treatment; documents with no
// detectable structure fall back to synthetic page buckets so downstream
// stages always have at least one node to anchor concepts to.
package hierarchy

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/atlasnotes/conceptmap-backend/internal/domain"
	"github.com/atlasnotes/conceptmap-backend/internal/platform/logger"
)

// Outline is the extractor's result: the node forest plus the text segment
// feeding concept extraction for each node.
type Outline struct {
	Roots     []*domain.HierarchyNode
	Segments  map[string]string
	Synthetic bool
}

// Nodes returns the forest flattened in document (pre-)order.
func (o *Outline) Nodes() []*domain.HierarchyNode {
	var out []*domain.HierarchyNode
	for _, r := range o.Roots {
		r.Walk(func(n *domain.HierarchyNode) { out = append(out, n) })
	}
	return out
}

// ChapterOf maps every node ID to its top-level ancestor's ID.
func (o *Outline) ChapterOf() map[string]string {
	out := map[string]string{}
	for _, r := range o.Roots {
		root := r.ID
		r.Walk(func(n *domain.HierarchyNode) { out[n.ID] = root })
	}
	return out
}

type Extractor struct {
	log      *logger.Logger
	pageSpan int
}

func New(log *logger.Logger, syntheticPageSpan int) *Extractor {
	if syntheticPageSpan <= 0 {
		syntheticPageSpan = 5
	}
	return &Extractor{
		log:      log.With("component", "HierarchyExtractor"),
		pageSpan: syntheticPageSpan,
	}
}

// Extract picks the richest structural evidence available in the parse
// result: markdown headings, then a parser heading list, then OCR layout
// blocks, then the synthetic fallback.
func (e *Extractor) Extract(pr *domain.ParseResult) *Outline {
	if pr == nil {
		return e.synthetic("", 0)
	}

	if strings.TrimSpace(pr.Markdown) != "" {
		if o := e.fromMarkdown(pr.Markdown); o != nil {
			return o
		}
	}
	if len(pr.Hint.Headings) > 0 {
		if o := e.fromHeadings(pr.Hint.Headings, pr.Text); o != nil {
			return o
		}
	}
	if len(pr.Hint.Blocks) > 0 {
		if o := e.fromBlocks(pr.Hint.Blocks); o != nil {
			return o
		}
	}

	e.log.Info("no headings found; synthesizing page buckets", "pages", pr.PageCount)
	return e.synthetic(pr.Text, pr.PageCount)
}

var (
	markdownHeading = regexp.MustCompile(`^(#{1,6})\s+(.+?)\s*#*\s*$`)
	sequentialTitle = regexp.MustCompile(`(?i)^(step|phase|stage)\b`)
	ordinalLine     = regexp.MustCompile(`^\s*\d+[.)]\s+`)
)

// builder keeps the stack of currently-open ancestors plus per-parent child
// counters so sibling ordinals restart under every parent.
type builder struct {
	roots      []*domain.HierarchyNode
	stack      []*domain.HierarchyNode
	childCount map[string]map[int]int // parent id ("" = root scope) -> level -> count
	segments   map[string]*strings.Builder
}

func newBuilder() *builder {
	return &builder{
		childCount: map[string]map[int]int{},
		segments:   map[string]*strings.Builder{},
	}
}

var levelNames = [...]string{"chapter", "section", "subsection", "topic", "subtopic", "detail"}

// open pops every ancestor at the same or deeper level, then attaches a new
// node under the surviving top of stack.
func (b *builder) open(level int, title string, page int) *domain.HierarchyNode {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	for len(b.stack) > 0 && b.stack[len(b.stack)-1].Level >= level {
		b.stack = b.stack[:len(b.stack)-1]
	}

	parentID := ""
	var parent *domain.HierarchyNode
	if len(b.stack) > 0 {
		parent = b.stack[len(b.stack)-1]
		parentID = parent.ID
	}

	if b.childCount[parentID] == nil {
		b.childCount[parentID] = map[int]int{}
	}
	b.childCount[parentID][level]++
	ordinal := b.childCount[parentID][level]

	name := levelNames[level-1]
	id := fmt.Sprintf("%s_%d", name, ordinal)
	if parentID != "" {
		id = fmt.Sprintf("%s_%s_%d", parentID, name, ordinal)
	}

	node := &domain.HierarchyNode{
		ID:        id,
		Level:     level,
		Title:     strings.TrimSpace(title),
		Kind:      domain.KindHierarchical,
		ParentID:  parentID,
		PageStart: page,
		PageEnd:   page,
	}
	if parent != nil {
		parent.Children = append(parent.Children, node)
	} else {
		b.roots = append(b.roots, node)
	}
	b.stack = append(b.stack, node)
	b.segments[id] = &strings.Builder{}
	return node
}

func (b *builder) appendBody(line string) {
	if len(b.stack) == 0 {
		return
	}
	sb := b.segments[b.stack[len(b.stack)-1].ID]
	sb.WriteString(line)
	sb.WriteByte('\n')
}

func (b *builder) finish() *Outline {
	if len(b.roots) == 0 {
		return nil
	}
	segments := make(map[string]string, len(b.segments))
	for id, sb := range b.segments {
		segments[id] = strings.TrimSpace(sb.String())
	}
	o := &Outline{Roots: b.roots, Segments: segments}
	for _, n := range o.Nodes() {
		n.Kind = classifyKind(n.Title, segments[n.ID])
	}
	return o
}

func (e *Extractor) fromMarkdown(markdown string) *Outline {
	b := newBuilder()
	for _, line := range strings.Split(markdown, "\n") {
		if m := markdownHeading.FindStringSubmatch(line); m != nil {
			b.open(len(m[1]), m[2], 0)
			continue
		}
		b.appendBody(line)
	}
	return b.finish()
}

func (e *Extractor) fromHeadings(headings []domain.Heading, text string) *Outline {
	b := newBuilder()
	titles := make([]string, 0, len(headings))
	for _, h := range headings {
		if strings.TrimSpace(h.Text) == "" {
			continue
		}
		b.open(h.Level, h.Text, h.Page)
		titles = append(titles, h.Text)
	}
	o := b.finish()
	if o == nil {
		return nil
	}
	// Best-effort body assignment: slice the flat text at title occurrences,
	// in document order.
	bodies := segmentByTitles(text, titles)
	i := 0
	for _, n := range o.Nodes() {
		if i < len(bodies) {
			o.Segments[n.ID] = bodies[i]
			n.Kind = classifyKind(n.Title, bodies[i])
		}
		i++
	}
	return o
}

// fromBlocks handles OCR layout output: title-like blocks become level-1
// nodes in document order; section headers become children of the most
// recently opened title; paragraphs feed the open node's segment.
func (e *Extractor) fromBlocks(blocks []domain.LayoutBlock) *Outline {
	b := newBuilder()
	for _, blk := range blocks {
		text := strings.TrimSpace(blk.Text)
		if text == "" {
			continue
		}
		switch strings.ToLower(strings.TrimSpace(blk.Type)) {
		case "title":
			b.open(1, text, blk.Page)
		case "section_header":
			if len(b.roots) == 0 {
				b.open(1, text, blk.Page)
				continue
			}
			b.open(2, text, blk.Page)
		default:
			if len(b.roots) == 0 {
				b.open(1, "Document", blk.Page)
			}
			b.appendBody(text)
		}
	}
	return b.finish()
}

// synthetic builds flat page-range buckets when the document exposes no
// structure at all. Page ranges are real; everything else is best effort.
func (e *Extractor) synthetic(text string, pageCount int) *Outline {
	buckets := 1
	if pageCount > e.pageSpan {
		buckets = (pageCount + e.pageSpan - 1) / e.pageSpan
	}

	parts := splitEven(text, buckets)
	roots := make([]*domain.HierarchyNode, 0, buckets)
	segments := make(map[string]string, buckets)
	for i := 0; i < buckets; i++ {
		start, end := 0, 0
		title := "Document"
		if pageCount > 0 {
			start = i*e.pageSpan + 1
			end = start + e.pageSpan - 1
			if end > pageCount {
				end = pageCount
			}
			title = fmt.Sprintf("Pages %d-%d", start, end)
		}
		id := fmt.Sprintf("section_%d", i+1)
		node := &domain.HierarchyNode{
			ID:        id,
			Level:     1,
			Title:     title,
			Kind:      domain.KindHierarchical,
			PageStart: start,
			PageEnd:   end,
		}
		roots = append(roots, node)
		if i < len(parts) {
			segments[id] = parts[i]
		}
	}
	return &Outline{Roots: roots, Segments: segments, Synthetic: true}
}

// classifyKind is a local heuristic, structural metadata rather than ground
// truth: a step/phase title, or a run of ordinal-led lines right after the
// heading, marks the node sequential.
func classifyKind(title, body string) domain.NodeKind {
	if sequentialTitle.MatchString(strings.TrimSpace(title)) {
		return domain.KindSequential
	}
	ordinals := 0
	lines := strings.Split(body, "\n")
	limit := len(lines)
	if limit > 10 {
		limit = 10
	}
	for _, line := range lines[:limit] {
		if ordinalLine.MatchString(line) || sequentialTitle.MatchString(strings.TrimSpace(line)) {
			ordinals++
		}
	}
	if ordinals >= 2 {
		return domain.KindSequential
	}
	return domain.KindHierarchical
}

func segmentByTitles(text string, titles []string) []string {
	out := make([]string, len(titles))
	if strings.TrimSpace(text) == "" || len(titles) == 0 {
		return out
	}
	lower := strings.ToLower(text)
	offsets := make([]int, 0, len(titles))
	cursor := 0
	for _, t := range titles {
		idx := strings.Index(lower[cursor:], strings.ToLower(strings.TrimSpace(t)))
		if idx < 0 {
			offsets = append(offsets, -1)
			continue
		}
		offsets = append(offsets, cursor+idx)
		cursor += idx
	}
	for i := range titles {
		if offsets[i] < 0 {
			continue
		}
		start := offsets[i] + len(titles[i])
		end := len(text)
		for j := i + 1; j < len(titles); j++ {
			if offsets[j] >= 0 {
				end = offsets[j]
				break
			}
		}
		if start > end {
			start = end
		}
		out[i] = strings.TrimSpace(text[start:end])
	}
	return out
}

func splitEven(text string, parts int) []string {
	text = strings.TrimSpace(text)
	if parts <= 1 || text == "" {
		return []string{text}
	}
	r := []rune(text)
	size := (len(r) + parts - 1) / parts
	out := make([]string, 0, parts)
	for start := 0; start < len(r); start += size {
		end := start + size
		if end > len(r) {
			end = len(r)
		}
		out = append(out, strings.TrimSpace(string(r[start:end])))
	}
	return out
}
