package extract

import (
	"testing"
)

func TestParseSpans(t *testing.T) {
	pageHTML := `<div id="page0" style="position:relative;width:612pt;height:792pt">
<p style="position:absolute;white-space:pre;margin:0;padding:0;top:71pt;left:108pt"><span style="font-size:24pt">A Study of Things</span></p>
<p style="position:absolute;white-space:pre;margin:0;padding:0;top:120.5pt;left:72pt"><span>Method &amp; Results</span></p>
<p style="position:absolute;white-space:pre;margin:0;padding:0;top:130pt;left:72pt"><span></span></p>
</div>`

	spans := parseSpans(pageHTML)
	if len(spans) != 2 {
		t.Fatalf("parseSpans() got %d spans, want 2", len(spans))
	}
	if spans[0].text != "A Study of Things" {
		t.Errorf("spans[0].text = %q", spans[0].text)
	}
	if spans[0].y != 71 || spans[0].x != 108 {
		t.Errorf("spans[0] at (%v, %v), want (108, 71)", spans[0].x, spans[0].y)
	}
	if spans[1].text != "Method & Results" {
		t.Errorf("spans[1].text = %q, want entity unescaped", spans[1].text)
	}
}

func TestDetectTables(t *testing.T) {
	tests := []struct {
		name      string
		spans     []span
		wantCount int
		wantRows  int
		wantCols  int
	}{
		{
			name: "aligned three-row grid",
			spans: []span{
				{x: 72, y: 100, text: "Model"}, {x: 200, y: 100, text: "Accuracy"}, {x: 320, y: 100, text: "F1"},
				{x: 72, y: 114, text: "Baseline"}, {x: 200, y: 114, text: "0.81"}, {x: 320, y: 114, text: "0.78"},
				{x: 72, y: 128, text: "Ours"}, {x: 200, y: 128, text: "0.92"}, {x: 320, y: 128, text: "0.90"},
			},
			wantCount: 1,
			wantRows:  3,
			wantCols:  3,
		},
		{
			name: "narrative text has no grid",
			spans: []span{
				{x: 72, y: 100, text: "This paper presents a novel approach."},
				{x: 72, y: 114, text: "We evaluate on three datasets."},
				{x: 72, y: 128, text: "Results exceed the baseline."},
			},
			wantCount: 0,
		},
		{
			name: "two columns with a row gap breaking the run",
			spans: []span{
				{x: 72, y: 100, text: "Key"}, {x: 250, y: 100, text: "Value"},
				{x: 72, y: 112, text: "Size"}, {x: 250, y: 112, text: "12"},
				// far below, unrelated pair
				{x: 72, y: 400, text: "Figure 2:"}, {x: 250, y: 400, text: "overview"},
			},
			wantCount: 1,
			wantRows:  2,
			wantCols:  2,
		},
		{
			name:      "empty page",
			spans:     nil,
			wantCount: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tables := detectTables(tt.spans)
			if len(tables) != tt.wantCount {
				t.Fatalf("detectTables() got %d tables, want %d", len(tables), tt.wantCount)
			}
			if tt.wantCount == 0 {
				return
			}
			tbl := tables[0]
			if tbl.Rows() != tt.wantRows || tbl.Cols() != tt.wantCols {
				t.Errorf("grid is %dx%d, want %dx%d", tbl.Rows(), tbl.Cols(), tt.wantRows, tt.wantCols)
			}
		})
	}
}

func TestDetectTablesCellContents(t *testing.T) {
	spans := []span{
		{x: 72, y: 100, text: "Dataset"}, {x: 220, y: 100, text: "Samples"},
		{x: 72, y: 113, text: "CIFAR-10"}, {x: 221, y: 113, text: "60000"},
	}

	tables := detectTables(spans)
	if len(tables) != 1 {
		t.Fatalf("got %d tables, want 1", len(tables))
	}
	cells := tables[0].Cells
	if cells[0][0] != "Dataset" || cells[0][1] != "Samples" {
		t.Errorf("header row = %v", cells[0])
	}
	if cells[1][0] != "CIFAR-10" || cells[1][1] != "60000" {
		t.Errorf("data row = %v", cells[1])
	}
	if tables[0].Box.Zero() {
		t.Error("table bounding box should not be zero")
	}
}
