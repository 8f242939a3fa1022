package extract

import (
	"bytes"
	"context"
	"errors"
	"strings"

	"github.com/ledongthuc/pdf"
	"go.uber.org/zap"
)

// LockedAlert is the alert recorded for an encrypted document that the
// empty-password attempt could not open.
const LockedAlert = "🔒 ZABLOKOWANY DOKUMENT (haslo)"

// extractPDF populates both channels: the logical layer from the embedded
// text objects and the visual layer from OCR over every rendered page. All
// pages are rendered, never a sample — a hidden page anywhere must not be
// missed.
func (e *Extractor) extractPDF(ctx context.Context, data []byte) Content {
	var content Content

	logical, locked, logicalAlerts := pdfText(data)
	content.Alerts = append(content.Alerts, logicalAlerts...)
	if locked {
		content.Locked = true
		content.Alerts = append(content.Alerts, LockedAlert)
		return content
	}
	content.Logical = logical

	pages, err := e.raster.Pages(data)
	if err != nil {
		e.logger.Debug("pdf render failed", zap.Error(err))
		content.Alerts = append(content.Alerts, "PDF Render Error: "+err.Error())
		return content
	}
	visual, ocrAlerts := e.ocrImages(ctx, pages)
	content.Visual = visual
	content.Alerts = append(content.Alerts, ocrAlerts...)
	return content
}

// pdfText reads the machine-encoded text layer. The underlying reader panics
// on some malformed files, and extraction must never raise past this
// boundary, so the whole read is guarded.
func pdfText(data []byte) (text string, locked bool, alerts []string) {
	defer func() {
		if r := recover(); r != nil {
			text = ""
			alerts = append(alerts, "PDF Parse Error")
		}
	}()

	reader, err := pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), emptyPassword)
	if err != nil {
		if errors.Is(err, pdf.ErrInvalidPassword) {
			return "", true, alerts
		}
		return "", false, append(alerts, "PDF Parse Error: "+err.Error())
	}

	var b strings.Builder
	for i := 1; i <= reader.NumPage(); i++ {
		page := reader.Page(i)
		if page.V.IsNull() {
			continue
		}
		pageText, err := page.GetPlainText(nil)
		if err != nil {
			alerts = append(alerts, "PDF Page Error")
			continue
		}
		b.WriteString(pageText)
		b.WriteString(" ")
	}
	return b.String(), false, alerts
}

func emptyPassword() string {
	return ""
}
