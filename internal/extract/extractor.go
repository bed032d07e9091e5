// Package extract turns PDF payloads into normalized content bundles:
// per-page text blocks, image blocks and best-effort table grids.
package extract

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"paperlens/internal/models"
)

// ExtractionError signals a malformed, empty or otherwise unreadable
// document payload.
type ExtractionError struct {
	Reason string
	Err    error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("extraction: %s", e.Reason)
}

func (e *ExtractionError) Unwrap() error { return e.Err }

// Options controls which block kinds an extraction produces.
type Options struct {
	// Images extracts embedded rasters per page.
	Images bool
	// RenderFallback renders a page as one whole-page image block when
	// image extraction is requested but the page has no embedded images.
	// Fallback blocks are flagged so consumers can tell "figure" from
	// "whole page".
	RenderFallback bool
	// Tables runs geometric grid detection over positioned text spans.
	Tables bool
}

const renderDPI = 120

// Extractor produces ContentBundles from PDF payloads. Extraction of the
// same payload with the same options yields byte-identical text blocks.
type Extractor struct {
	log *slog.Logger
}

// New creates an Extractor. A nil logger falls back to slog.Default.
func New(log *slog.Logger) *Extractor {
	if log == nil {
		log = slog.Default()
	}
	return &Extractor{log: log}
}

// Extract parses the payload into a ContentBundle. Page numbers are
// 1-based. Table detection is best-effort: a page without visible grid
// alignment yields zero tables, which is normal output, not a failure.
func (e *Extractor) Extract(ctx context.Context, payload []byte, opts Options) (*models.ContentBundle, error) {
	if len(payload) == 0 {
		return nil, &ExtractionError{Reason: "empty payload"}
	}
	if err := api.Validate(bytes.NewReader(payload), nil); err != nil {
		return nil, &ExtractionError{Reason: "not a well-formed PDF", Err: err}
	}

	doc, err := fitz.NewFromMemory(payload)
	if err != nil {
		return nil, &ExtractionError{Reason: "open document", Err: err}
	}
	defer doc.Close()

	pageCount := doc.NumPage()
	if pageCount == 0 {
		return nil, &ExtractionError{Reason: "document has no pages"}
	}

	var embedded map[int][]models.ImageBlock
	if opts.Images {
		embedded, err = embeddedImages(payload)
		if err != nil {
			// Degrade to page renders rather than failing the document.
			e.log.Warn("embedded image extraction failed", "error", err)
			embedded = map[int][]models.ImageBlock{}
		}
	}

	bundle := models.NewContentBundle()
	for i := 0; i < pageCount; i++ {
		// Extraction of large documents yields between pages.
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		default:
		}
		page := i + 1

		text, err := doc.Text(i)
		if err != nil {
			return nil, &ExtractionError{Reason: fmt.Sprintf("read text of page %d", page), Err: err}
		}
		bundle.TextBlocks = append(bundle.TextBlocks, models.TextBlock{Page: page, Text: text})

		if opts.Images {
			if imgs := embedded[page]; len(imgs) > 0 {
				bundle.Images = append(bundle.Images, imgs...)
			} else if opts.RenderFallback {
				block, err := renderPage(doc, i)
				if err != nil {
					e.log.Warn("page render fallback failed", "page", page, "error", err)
				} else {
					bundle.Images = append(bundle.Images, block)
				}
			}
		}

		if opts.Tables {
			html, err := doc.HTML(i, false)
			if err != nil {
				e.log.Warn("positioned text unavailable, skipping table detection", "page", page, "error", err)
				continue
			}
			for _, tbl := range detectTables(parseSpans(html)) {
				tbl.Page = page
				bundle.Tables = append(bundle.Tables, tbl)
			}
		}
	}

	return bundle, nil
}
