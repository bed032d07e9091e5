package extract

import (
	"bytes"
	"image/png"
	"io"
	"sort"

	"github.com/gen2brain/go-fitz"
	"github.com/pdfcpu/pdfcpu/pkg/api"

	"paperlens/internal/models"
)

// embeddedImages pulls the rasters embedded in the PDF, keyed by 1-based
// page number. pdfcpu reports no placement for image XObjects, so embedded
// blocks carry a zero bounding box.
func embeddedImages(payload []byte) (map[int][]models.ImageBlock, error) {
	pages, err := api.ExtractImagesRaw(bytes.NewReader(payload), nil, nil)
	if err != nil {
		return nil, err
	}

	type numbered struct {
		objNr int
		block models.ImageBlock
	}
	byPage := make(map[int][]numbered)
	for _, pageImgs := range pages {
		for _, img := range pageImgs {
			data, err := io.ReadAll(img)
			if err != nil {
				return nil, err
			}
			byPage[img.PageNr] = append(byPage[img.PageNr], numbered{
				objNr: img.ObjNr,
				block: models.ImageBlock{
					Page:   img.PageNr,
					Data:   data,
					Format: img.FileType,
				},
			})
		}
	}

	// pdfcpu hands images back in object-table order; sort by object
	// number so repeated extractions stay order-stable.
	blocks := make(map[int][]models.ImageBlock, len(byPage))
	for page, imgs := range byPage {
		sort.Slice(imgs, func(i, j int) bool { return imgs[i].objNr < imgs[j].objNr })
		out := make([]models.ImageBlock, len(imgs))
		for i, n := range imgs {
			out[i] = n.block
		}
		blocks[page] = out
	}
	return blocks, nil
}

// renderPage rasterizes one page as a PNG whole-page image block.
func renderPage(doc *fitz.Document, pageIdx int) (models.ImageBlock, error) {
	img, err := doc.ImageDPI(pageIdx, renderDPI)
	if err != nil {
		return models.ImageBlock{}, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return models.ImageBlock{}, err
	}

	bounds := img.Bounds()
	// Pixel dims back to points at the render DPI.
	scale := 72.0 / renderDPI
	return models.ImageBlock{
		Page: pageIdx + 1,
		Box: models.BoundingBox{
			W: float64(bounds.Dx()) * scale,
			H: float64(bounds.Dy()) * scale,
		},
		Data:      buf.Bytes(),
		Format:    "png",
		WholePage: true,
	}, nil
}
