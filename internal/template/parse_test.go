package template

import (
	"testing"
)

func TestParseMarkdownSections(t *testing.T) {
	tpl := Template{Name: "t", UserPrompt: "x", OutputFormat: FormatMarkdown}
	raw := `## Summary

This paper introduces a transformer architecture.
It scales well.

## Key Points

- Attention replaces recurrence
* Parallel training
1. State-of-the-art BLEU

## Methodology

Encoder-decoder with multi-head attention.

## Related Work

Prior sequence models used RNNs.

## Conclusions

Attention suffices for translation.`

	res := tpl.Parse(raw)

	if res.Summary != "This paper introduces a transformer architecture.\nIt scales well." {
		t.Errorf("Summary = %q", res.Summary)
	}
	want := []string{"Attention replaces recurrence", "Parallel training", "State-of-the-art BLEU"}
	if len(res.KeyPoints) != len(want) {
		t.Fatalf("KeyPoints = %v", res.KeyPoints)
	}
	for i, p := range want {
		if res.KeyPoints[i] != p {
			t.Errorf("KeyPoints[%d] = %q, want %q", i, res.KeyPoints[i], p)
		}
	}
	if res.Methodology != "Encoder-decoder with multi-head attention." {
		t.Errorf("Methodology = %q", res.Methodology)
	}
	if res.Conclusions != "Attention suffices for translation." {
		t.Errorf("Conclusions = %q", res.Conclusions)
	}
	// Unrecognized headings populate no field but stay in the formatted output.
	if res.Formatted != raw {
		t.Error("Formatted should preserve the raw output verbatim")
	}
}

func TestParseMarkdownWithoutHeadings(t *testing.T) {
	tpl := Template{Name: "t", UserPrompt: "x", OutputFormat: FormatMarkdown}

	res := tpl.Parse("just a flat answer with no structure")

	if res.Structured() {
		t.Errorf("unstructured output should leave fields empty: %+v", res)
	}
	if res.Formatted != "just a flat answer with no structure" {
		t.Errorf("Formatted = %q", res.Formatted)
	}
}

func TestParseJSON(t *testing.T) {
	tpl := Template{Name: "t", UserPrompt: "x", OutputFormat: FormatJSON}
	raw := `{"summary":"s","key_points":["a","b"],"methodology":"m","conclusions":"c"}`

	res := tpl.Parse(raw)

	if res.Summary != "s" || res.Methodology != "m" || res.Conclusions != "c" {
		t.Errorf("fields = %+v", res)
	}
	if len(res.KeyPoints) != 2 {
		t.Errorf("KeyPoints = %v", res.KeyPoints)
	}
}

func TestParseJSONInCodeFence(t *testing.T) {
	tpl := Template{Name: "t", UserPrompt: "x", OutputFormat: FormatJSON}
	raw := "```json\n{\"summary\":\"fenced\"}\n```"

	res := tpl.Parse(raw)

	if res.Summary != "fenced" {
		t.Errorf("Summary = %q", res.Summary)
	}
}

func TestParseJSONFallsBackToRaw(t *testing.T) {
	tpl := Template{Name: "t", UserPrompt: "x", OutputFormat: FormatJSON}
	raw := "Sorry, I cannot produce JSON today."

	res := tpl.Parse(raw)

	if res.Structured() {
		t.Errorf("broken JSON should leave structured fields empty: %+v", res)
	}
	if res.Formatted != raw || res.RawOutput != raw {
		t.Error("raw text must be preserved for manual review")
	}
}
