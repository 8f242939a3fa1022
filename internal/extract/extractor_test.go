package extract_test

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/sejmwatch/sejmaudit/internal/extract"
)

// fakeOCR recognizes a fixed line per image and can fail on demand.
type fakeOCR struct {
	lines  []string
	failAt int // 1-based image index that errors; 0 = never
	calls  int
}

func (f *fakeOCR) Recognize(_ context.Context, _ []byte) ([]string, error) {
	f.calls++
	if f.failAt != 0 && f.calls == f.failAt {
		return nil, errors.New("unreadable image")
	}
	return f.lines, nil
}

type fakeRaster struct {
	pages [][]byte
	err   error
}

func (f *fakeRaster) Pages(_ []byte) ([][]byte, error) {
	return f.pages, f.err
}

func buildDocx(t *testing.T, documentXML string, media map[string][]byte, coreXML string) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)

	fw, err := w.Create("word/document.xml")
	require.NoError(t, err)
	_, err = fw.Write([]byte(documentXML))
	require.NoError(t, err)

	for name, data := range media {
		fw, err := w.Create("word/media/" + name)
		require.NoError(t, err)
		_, err = fw.Write(data)
		require.NoError(t, err)
	}

	if coreXML != "" {
		fw, err := w.Create("docProps/core.xml")
		require.NoError(t, err)
		_, err = fw.Write([]byte(coreXML))
		require.NoError(t, err)
	}

	require.NoError(t, w.Close())
	return buf.Bytes()
}

const sampleDocumentXML = `<?xml version="1.0"?>
<w:document xmlns:w="http://schemas.openxmlformats.org/wordprocessingml/2006/main">
  <w:body>
    <w:p><w:r><w:t>Pierwszy akapit</w:t></w:r></w:p>
    <w:p><w:r><w:t>Drugi akapit</w:t></w:r></w:p>
    <w:tbl>
      <w:tr>
        <w:tc><w:p><w:r><w:t>komorka jeden</w:t></w:r></w:p></w:tc>
        <w:tc><w:p><w:r><w:t>komorka dwa</w:t></w:r></w:p></w:tc>
      </w:tr>
    </w:tbl>
  </w:body>
</w:document>`

func TestExtractPlain(t *testing.T) {
	e := extract.New(&fakeOCR{}, &fakeRaster{}, nil)
	content := e.Extract(context.Background(), []byte("zwykly tekst \xff\xfe obok"), "txt")
	assert.Contains(t, content.Logical, "zwykly tekst")
	assert.Contains(t, content.Logical, "obok")
	assert.Empty(t, content.Visual)
	assert.False(t, content.Locked)
}

func TestExtractDocxParagraphsAndTables(t *testing.T) {
	data := buildDocx(t, sampleDocumentXML, nil, "")
	e := extract.New(&fakeOCR{}, &fakeRaster{}, nil)

	content := e.Extract(context.Background(), data, "docx")
	assert.Contains(t, content.Logical, "Pierwszy akapit")
	assert.Contains(t, content.Logical, "Drugi akapit")
	assert.Contains(t, content.Logical, "komorka jeden")
	assert.Contains(t, content.Logical, "komorka dwa")
	assert.Empty(t, content.Visual)
	assert.NotContains(t, content.Alerts, extract.ScannedImageAlert)
}

func TestExtractDocxEmbeddedImageTriggersScanAlert(t *testing.T) {
	data := buildDocx(t, sampleDocumentXML, map[string][]byte{"image1.png": {1, 2, 3}}, "")
	ocr := &fakeOCR{lines: []string{"ukryty tekst"}}
	e := extract.New(ocr, &fakeRaster{}, nil)

	content := e.Extract(context.Background(), data, "docx")
	assert.Contains(t, content.Visual, "ukryty tekst")
	assert.Contains(t, content.Alerts, extract.ScannedImageAlert)
}

func TestExtractDocxOCRFailureIsSkipped(t *testing.T) {
	data := buildDocx(t, sampleDocumentXML, map[string][]byte{
		"a.png": {1},
		"b.png": {2},
	}, "")
	ocr := &fakeOCR{lines: []string{"czytelny"}, failAt: 1}
	e := extract.New(ocr, &fakeRaster{}, nil)

	content := e.Extract(context.Background(), data, "docx")
	// One image failed, the other still produced text.
	assert.Contains(t, content.Visual, "czytelny")
	assert.Equal(t, 2, ocr.calls)
}

func TestExtractDocxCorrupt(t *testing.T) {
	e := extract.New(&fakeOCR{}, &fakeRaster{}, nil)
	content := e.Extract(context.Background(), []byte("not a docx"), "docx")
	assert.Empty(t, content.Logical)
	assert.NotEmpty(t, content.Alerts)
}

func TestExtractXlsx(t *testing.T) {
	f := excelize.NewFile()
	require.NoError(t, f.SetCellValue("Sheet1", "A1", "budzet"))
	require.NoError(t, f.SetCellValue("Sheet1", "B2", 1234))
	var buf bytes.Buffer
	require.NoError(t, f.Write(&buf))

	e := extract.New(&fakeOCR{}, &fakeRaster{}, nil)
	content := e.Extract(context.Background(), buf.Bytes(), "xlsx")
	assert.Contains(t, content.Logical, "Sheet1")
	assert.Contains(t, content.Logical, "budzet")
	assert.Contains(t, content.Logical, "1234")
	assert.Empty(t, content.Visual)
}

func TestExtractXlsxCorrupt(t *testing.T) {
	e := extract.New(&fakeOCR{}, &fakeRaster{}, nil)
	content := e.Extract(context.Background(), []byte("junk"), "xlsx")
	assert.NotEmpty(t, content.Alerts)
}

func TestExtractPDFCorruptNeverPanics(t *testing.T) {
	e := extract.New(&fakeOCR{}, &fakeRaster{err: errors.New("no pages")}, nil)
	content := e.Extract(context.Background(), []byte("%PDF-1.7 garbage"), "pdf")
	assert.False(t, content.Locked)
	assert.NotEmpty(t, content.Alerts)
}

func TestExtractPDFVisualFromRenderedPages(t *testing.T) {
	raster := &fakeRaster{pages: [][]byte{{1}, {2}, {3}}}
	ocr := &fakeOCR{lines: []string{"strona"}}
	e := extract.New(ocr, raster, nil)

	// Text-layer parsing of this non-PDF fails into an alert, but the visual
	// channel still comes from OCR over every rendered page.
	content := e.Extract(context.Background(), []byte("%PDF-1.7 garbage"), "pdf")
	assert.Equal(t, 3, ocr.calls)
	assert.Contains(t, content.Visual, "strona")
}

func TestMetaDocx(t *testing.T) {
	core := `<?xml version="1.0"?>
<cp:coreProperties xmlns:cp="http://schemas.openxmlformats.org/package/2006/metadata/core-properties"
  xmlns:dc="http://purl.org/dc/elements/1.1/"
  xmlns:dcterms="http://purl.org/dc/terms/">
  <dc:creator>Jan Kowalski</dc:creator>
  <dcterms:created>2024-03-01T10:00:00Z</dcterms:created>
</cp:coreProperties>`
	data := buildDocx(t, sampleDocumentXML, nil, core)

	meta := extract.Meta(data, "docx")
	assert.Equal(t, "Jan Kowalski", meta.Author)
	assert.Equal(t, "2024-03-01T10:00:00Z", meta.Created)
}

func TestMetaUnknownFallback(t *testing.T) {
	meta := extract.Meta([]byte("junk"), "pdf")
	assert.Equal(t, extract.UnknownMeta, meta.Author)
	assert.Equal(t, extract.UnknownMeta, meta.Created)

	meta = extract.Meta([]byte("junk"), "bin")
	assert.Equal(t, extract.UnknownMeta, meta.Author)
}
