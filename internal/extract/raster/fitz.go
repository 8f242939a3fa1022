// Package raster adapts MuPDF to the extract.Rasterizer port.
package raster

import (
	"bytes"
	"fmt"
	"image/png"

	"github.com/gen2brain/go-fitz"
)

// Fitz renders PDF pages to PNG images at a fixed resolution. Every page is
// rendered; sampling would let a hidden page slip through.
type Fitz struct {
	dpi float64
}

// New builds a Fitz rasterizer.
func New(dpi int) *Fitz {
	if dpi <= 0 {
		dpi = 200
	}
	return &Fitz{dpi: float64(dpi)}
}

// Pages renders the document page by page. A single failing page is skipped;
// the remaining pages still reach OCR.
func (f *Fitz) Pages(data []byte) ([][]byte, error) {
	doc, err := fitz.NewFromMemory(data)
	if err != nil {
		return nil, fmt.Errorf("open document: %w", err)
	}
	defer func() {
		_ = doc.Close()
	}()

	var pages [][]byte
	for i := 0; i < doc.NumPage(); i++ {
		img, err := doc.ImageDPI(i, f.dpi)
		if err != nil {
			continue
		}
		var buf bytes.Buffer
		if err := png.Encode(&buf, img); err != nil {
			continue
		}
		pages = append(pages, buf.Bytes())
	}
	return pages, nil
}
