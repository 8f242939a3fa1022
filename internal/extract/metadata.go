package extract

import (
	"archive/zip"
	"bytes"
	"strings"

	"github.com/antchfx/xmlquery"
	"github.com/ledongthuc/pdf"
)

// UnknownMeta is the sentinel for metadata that could not be read.
const UnknownMeta = "?"

// Metadata is the best-effort author/creation-date pair recorded per
// attachment.
type Metadata struct {
	Author  string
	Created string
}

// Meta reads author and creation date where the format carries them. Any
// failure yields the sentinel pair; metadata is advisory, never fatal.
func Meta(data []byte, ext string) Metadata {
	meta := Metadata{Author: UnknownMeta, Created: UnknownMeta}
	switch ext {
	case "pdf":
		pdfMeta(data, &meta)
	case "docx", "doc":
		docxMeta(data, &meta)
	}
	if meta.Author == "" {
		meta.Author = UnknownMeta
	}
	if meta.Created == "" {
		meta.Created = UnknownMeta
	}
	return meta
}

// pdfMeta reads the Info dictionary. Guarded: the reader panics on some
// malformed trailers.
func pdfMeta(data []byte, meta *Metadata) {
	defer func() {
		_ = recover()
	}()

	reader, err := pdf.NewReaderEncrypted(bytes.NewReader(data), int64(len(data)), emptyPassword)
	if err != nil {
		return
	}
	info := reader.Trailer().Key("Info")
	if info.IsNull() {
		return
	}
	if author := info.Key("Author"); author.Kind() == pdf.String {
		meta.Author = author.RawString()
	}
	if created := info.Key("CreationDate"); created.Kind() == pdf.String {
		// Raw form is D:YYYYMMDDHHmmSS+TZ; keep the timestamp part.
		value := strings.TrimPrefix(created.RawString(), "D:")
		if idx := strings.IndexAny(value, "+-Z"); idx > 0 {
			value = value[:idx]
		}
		meta.Created = value
	}
}

func docxMeta(data []byte, meta *Metadata) {
	reader, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return
	}
	core, err := docxPart(reader, "docProps/core.xml")
	if err != nil {
		return
	}
	// core.xml uses the dc:/dcterms: namespaces; match on local-name() so
	// the prefix does not defeat the lookup.
	if node := xmlquery.FindOne(core, "//*[local-name()='creator']"); node != nil {
		meta.Author = strings.TrimSpace(node.InnerText())
	}
	if node := xmlquery.FindOne(core, "//*[local-name()='created']"); node != nil {
		meta.Created = strings.TrimSpace(node.InnerText())
	}
}
