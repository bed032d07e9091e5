package models

import (
	"fmt"
	"sort"
	"strings"
)

// BoundingBox locates a block on its page, in points with the origin at
// the top-left corner. A zero box means the position is unknown.
type BoundingBox struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	W float64 `json:"w"`
	H float64 `json:"h"`
}

// Zero reports whether the box carries no position information.
func (b BoundingBox) Zero() bool {
	return b.X == 0 && b.Y == 0 && b.W == 0 && b.H == 0
}

// TextBlock is the extracted text of one page. Pages are 1-based and
// blocks appear in document reading order.
type TextBlock struct {
	Page int    `json:"page"`
	Text string `json:"text"`
}

// ImageBlock is one raster extracted from a document: either an embedded
// figure or, when WholePage is set, a render of the full page produced
// because the page carried no embedded images.
type ImageBlock struct {
	Page      int         `json:"page"`
	Box       BoundingBox `json:"box"`
	Data      []byte      `json:"-"`
	Format    string      `json:"format"` // "png", "jpeg", ...
	WholePage bool        `json:"whole_page,omitempty"`
}

// MIMEType returns the MIME type for the block's raster format.
func (i ImageBlock) MIMEType() string {
	switch strings.ToLower(i.Format) {
	case "jpg", "jpeg":
		return "image/jpeg"
	case "tiff", "tif":
		return "image/tiff"
	case "webp":
		return "image/webp"
	default:
		return "image/png"
	}
}

// TableBlock is a detected tabular region as a rows x cols grid of cell
// strings. Detection is best-effort; cells may be empty.
type TableBlock struct {
	Page  int         `json:"page"`
	Box   BoundingBox `json:"box"`
	Cells [][]string  `json:"cells"`
}

// Rows returns the number of rows in the grid.
func (t TableBlock) Rows() int { return len(t.Cells) }

// Cols returns the number of columns in the grid (0 for an empty table).
func (t TableBlock) Cols() int {
	if len(t.Cells) == 0 {
		return 0
	}
	return len(t.Cells[0])
}

// ContentBundle is the extraction result for one document. TextBlocks
// follow document reading order; Images and Tables may be empty but are
// never nil. Bundles are built once per extraction and not mutated.
type ContentBundle struct {
	TextBlocks []TextBlock  `json:"text_blocks"`
	Images     []ImageBlock `json:"images"`
	Tables     []TableBlock `json:"tables"`
}

// NewContentBundle returns a bundle with non-nil slices.
func NewContentBundle() *ContentBundle {
	return &ContentBundle{
		TextBlocks: []TextBlock{},
		Images:     []ImageBlock{},
		Tables:     []TableBlock{},
	}
}

// HasImages reports whether the bundle carries at least one image block.
func (b *ContentBundle) HasImages() bool {
	return len(b.Images) > 0
}

// Text joins all text blocks in reading order, annotating page breaks.
func (b *ContentBundle) Text() string {
	var sb strings.Builder
	for _, tb := range b.TextBlocks {
		if sb.Len() > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "[Page %d]\n%s", tb.Page, strings.TrimRight(tb.Text, "\n"))
		sb.WriteString("\n")
	}
	return sb.String()
}

// ImagePages returns the sorted, de-duplicated page numbers that carry
// image blocks. Used to describe figures a text-only backend cannot see.
func (b *ContentBundle) ImagePages() []int {
	seen := make(map[int]struct{}, len(b.Images))
	pages := make([]int, 0, len(b.Images))
	for _, img := range b.Images {
		if _, ok := seen[img.Page]; ok {
			continue
		}
		seen[img.Page] = struct{}{}
		pages = append(pages, img.Page)
	}
	sort.Ints(pages)
	return pages
}
