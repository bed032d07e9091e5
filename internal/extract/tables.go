package extract

import (
	"html"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"paperlens/internal/models"
)

// span is one positioned text run from MuPDF's HTML rendering of a page.
// Coordinates are in points, origin top-left.
type span struct {
	x, y float64
	text string
}

var (
	paraRe = regexp.MustCompile(`(?s)<p style="([^"]*)">(.*?)</p>`)
	topRe  = regexp.MustCompile(`top:(-?[0-9.]+)pt`)
	leftRe = regexp.MustCompile(`left:(-?[0-9.]+)pt`)
	tagRe  = regexp.MustCompile(`<[^>]+>`)
)

// parseSpans extracts positioned text spans from a page's HTML form.
func parseSpans(pageHTML string) []span {
	var spans []span
	for _, m := range paraRe.FindAllStringSubmatch(pageHTML, -1) {
		style, body := m[1], m[2]
		top := topRe.FindStringSubmatch(style)
		left := leftRe.FindStringSubmatch(style)
		if top == nil || left == nil {
			continue
		}
		y, errY := strconv.ParseFloat(top[1], 64)
		x, errX := strconv.ParseFloat(left[1], 64)
		if errY != nil || errX != nil {
			continue
		}
		text := strings.TrimSpace(html.UnescapeString(tagRe.ReplaceAllString(body, "")))
		if text == "" {
			continue
		}
		spans = append(spans, span{x: x, y: y, text: text})
	}
	sort.SliceStable(spans, func(i, j int) bool {
		if spans[i].y != spans[j].y {
			return spans[i].y < spans[j].y
		}
		return spans[i].x < spans[j].x
	})
	return spans
}

const (
	rowTolerance = 3.0  // vertical distance for spans on the same line
	colTolerance = 6.0  // horizontal distance for aligned columns
	maxRowGap    = 30.0 // vertical gap that still chains table rows
	minTableRows = 2
	minTableCols = 2
)

// textRow groups spans that share a baseline.
type textRow struct {
	y     float64
	cells []span
}

func groupRows(spans []span) []textRow {
	var rows []textRow
	for _, s := range spans {
		if n := len(rows); n > 0 && s.y-rows[n-1].y < rowTolerance {
			rows[n-1].cells = append(rows[n-1].cells, s)
			continue
		}
		rows = append(rows, textRow{y: s.y, cells: []span{s}})
	}
	return rows
}

// aligned counts x positions the two rows have in common.
func aligned(a, b textRow) int {
	count := 0
	for _, ca := range a.cells {
		for _, cb := range b.cells {
			if diff := ca.x - cb.x; diff < colTolerance && diff > -colTolerance {
				count++
				break
			}
		}
	}
	return count
}

// detectTables finds tabular regions by geometric grid detection: runs of
// vertically adjacent rows whose cells align into at least two shared
// columns. Pages without such alignment yield no tables, which is
// acceptable degraded behavior for narrative-only content.
func detectTables(spans []span) []models.TableBlock {
	rows := groupRows(spans)

	var tables []models.TableBlock
	for i := 0; i < len(rows); {
		if len(rows[i].cells) < minTableCols {
			i++
			continue
		}
		j := i
		for j+1 < len(rows) &&
			len(rows[j+1].cells) >= minTableCols &&
			rows[j+1].y-rows[j].y < maxRowGap &&
			aligned(rows[j], rows[j+1]) >= minTableCols {
			j++
		}
		if j-i+1 >= minTableRows {
			tables = append(tables, buildTable(rows[i:j+1]))
			i = j + 1
			continue
		}
		i++
	}
	return tables
}

// buildTable lays the run of rows onto a shared column grid.
func buildTable(rows []textRow) models.TableBlock {
	// Cluster the x positions of every cell into column starts.
	var xs []float64
	for _, r := range rows {
		for _, c := range r.cells {
			xs = append(xs, c.x)
		}
	}
	sort.Float64s(xs)
	var cols []float64
	for _, x := range xs {
		if len(cols) == 0 || x-cols[len(cols)-1] >= colTolerance {
			cols = append(cols, x)
		}
	}

	grid := make([][]string, len(rows))
	minX, maxX := cols[0], cols[len(cols)-1]
	for ri, r := range rows {
		grid[ri] = make([]string, len(cols))
		for _, c := range r.cells {
			ci := nearestColumn(cols, c.x)
			if grid[ri][ci] != "" {
				grid[ri][ci] += " "
			}
			grid[ri][ci] += c.text
			if c.x > maxX {
				maxX = c.x
			}
		}
	}

	const lineHeight = 12.0
	return models.TableBlock{
		Box: models.BoundingBox{
			X: minX,
			Y: rows[0].y,
			W: maxX - minX,
			H: rows[len(rows)-1].y - rows[0].y + lineHeight,
		},
		Cells: grid,
	}
}

func nearestColumn(cols []float64, x float64) int {
	best, bestDiff := 0, -1.0
	for i, cx := range cols {
		diff := x - cx
		if diff < 0 {
			diff = -diff
		}
		if bestDiff < 0 || diff < bestDiff {
			best, bestDiff = i, diff
		}
	}
	return best
}
