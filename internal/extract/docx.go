package extract

import (
	"archive/zip"
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/antchfx/xmlquery"
)

// ScannedImageAlert flags a word-processor document carrying raster images
// that OCR could read — text smuggled in as a scan.
const ScannedImageAlert = "[SKAN W WORDZIE]"

// extractDocx reads the logical channel from paragraph and table-cell text in
// document order, and the visual channel from OCR over every raster image
// embedded in the package.
func (e *Extractor) extractDocx(ctx context.Context, data []byte) Content {
	var content Content

	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		content.Alerts = append(content.Alerts, "DOCX Error: "+err.Error())
		return content
	}

	logical, err := docxBodyText(reader)
	if err != nil {
		content.Alerts = append(content.Alerts, "DOCX Error: "+err.Error())
	}
	content.Logical = logical

	images := docxMediaImages(reader)
	if len(images) == 0 {
		return content
	}
	visual, ocrAlerts := e.ocrImages(ctx, images)
	content.Alerts = append(content.Alerts, ocrAlerts...)
	if strings.TrimSpace(visual) != "" {
		content.Visual = visual
		content.Alerts = append(content.Alerts, ScannedImageAlert)
	}
	return content
}

// docxBodyText concatenates body paragraphs, then table cells, in document
// order within each group.
func docxBodyText(reader *zip.Reader) (string, error) {
	doc, err := docxPart(reader, "word/document.xml")
	if err != nil {
		return "", err
	}

	// Word namespaces every element (w:body, w:p, ...); matching on
	// local-name() keeps the queries independent of the prefix in use.
	var b strings.Builder
	for _, p := range xmlquery.Find(doc, "//*[local-name()='body']/*[local-name()='p']") {
		for _, t := range xmlquery.Find(p, ".//*[local-name()='t']") {
			b.WriteString(t.InnerText())
		}
		b.WriteString(" ")
	}
	for _, cell := range xmlquery.Find(doc, "//*[local-name()='tbl']//*[local-name()='tc']") {
		for _, t := range xmlquery.Find(cell, ".//*[local-name()='t']") {
			b.WriteString(t.InnerText())
		}
		b.WriteString(" ")
	}
	return b.String(), nil
}

// docxMediaImages returns the bytes of every file under word/media/, in
// package order.
func docxMediaImages(reader *zip.Reader) [][]byte {
	var images [][]byte
	for _, f := range reader.File {
		if !strings.HasPrefix(f.Name, "word/media/") || f.FileInfo().IsDir() {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			continue
		}
		data, err := io.ReadAll(rc)
		_ = rc.Close()
		if err != nil {
			continue
		}
		images = append(images, data)
	}
	return images
}

func docxPart(reader *zip.Reader, name string) (*xmlquery.Node, error) {
	for _, f := range reader.File {
		if f.Name != name {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("open %s: %w", name, err)
		}
		defer func() {
			_ = rc.Close()
		}()
		doc, err := xmlquery.Parse(rc)
		if err != nil {
			return nil, fmt.Errorf("parse %s: %w", name, err)
		}
		return doc, nil
	}
	return nil, fmt.Errorf("%s not found in package", name)
}
