// Package extract decodes attachment bytes into the two text channels the
// scorer works on: the logical (machine-encoded) layer and the visual
// (rendered + OCR) layer. Extraction never fails past this boundary; partial
// failures degrade into alerts.
package extract

import (
	"bytes"
	"context"

	"go.uber.org/zap"
)

// Content is the dual-channel extraction result for one attachment.
type Content struct {
	Logical string
	Visual  string
	Alerts  []string
	// Locked marks an encrypted document that resisted the empty-password
	// attempt; no text channels are populated in that case.
	Locked bool
}

// OCREngine recognizes text lines on a raster image. Implementations are
// expected to be slow and occasionally fail per image; callers skip a failing
// image and keep going. The engine is constructed once at startup and shared
// read-only by every worker.
type OCREngine interface {
	Recognize(ctx context.Context, image []byte) ([]string, error)
}

// Rasterizer renders a document to one raster image per page.
type Rasterizer interface {
	Pages(data []byte) ([][]byte, error)
}

// Extractor dispatches on the declared extension.
type Extractor struct {
	ocr    OCREngine
	raster Rasterizer
	logger *zap.Logger
}

// New builds an Extractor around the shared OCR engine and rasterizer.
func New(ocr OCREngine, raster Rasterizer, logger *zap.Logger) *Extractor {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Extractor{ocr: ocr, raster: raster, logger: logger}
}

// Extract decodes one attachment into its text channels.
func (e *Extractor) Extract(ctx context.Context, data []byte, ext string) Content {
	switch ext {
	case "pdf":
		return e.extractPDF(ctx, data)
	case "docx", "doc":
		return e.extractDocx(ctx, data)
	case "xlsx", "xls":
		return e.extractXlsx(data)
	default:
		return e.extractPlain(data)
	}
}

// extractPlain best-effort decodes raw bytes as UTF-8 text; invalid byte
// sequences are dropped, not fatal. No visual channel.
func (e *Extractor) extractPlain(data []byte) Content {
	return Content{Logical: string(bytes.ToValidUTF8(data, nil))}
}

// ocrImages runs the engine over a batch of page/embedded images. A single
// failing image is skipped so one bad render cannot hide the rest of a
// document.
func (e *Extractor) ocrImages(ctx context.Context, images [][]byte) (string, []string) {
	var (
		text   bytes.Buffer
		alerts []string
	)
	for i, img := range images {
		lines, err := e.ocr.Recognize(ctx, img)
		if err != nil {
			e.logger.Debug("ocr failed for image", zap.Int("index", i), zap.Error(err))
			alerts = append(alerts, "OCR pominal obraz")
			continue
		}
		for _, line := range lines {
			text.WriteString(line)
			text.WriteString(" ")
		}
	}
	return text.String(), alerts
}
