package extract

import (
	"bytes"
	"strings"

	"github.com/xuri/excelize/v2"
)

// extractXlsx renders every sheet's cell grid as text, with the sheet name
// as a delimiter so matches can be attributed. Spreadsheets have no visual
// channel.
func (e *Extractor) extractXlsx(data []byte) Content {
	var content Content

	f, err := excelize.OpenReader(bytes.NewReader(data))
	if err != nil {
		content.Alerts = append(content.Alerts, "XLSX Error: "+err.Error())
		return content
	}
	defer func() {
		_ = f.Close()
	}()

	var b strings.Builder
	for _, sheet := range f.GetSheetList() {
		rows, err := f.GetRows(sheet)
		if err != nil {
			content.Alerts = append(content.Alerts, "XLSX Sheet Error: "+sheet)
			continue
		}
		b.WriteString("== ")
		b.WriteString(sheet)
		b.WriteString(" == ")
		for _, row := range rows {
			b.WriteString(strings.Join(row, " "))
			b.WriteString(" ")
		}
	}
	content.Logical = b.String()
	return content
}
