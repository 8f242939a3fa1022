// Package results persists audit findings as checkpointed CSV segments.
// Segments are written incrementally during a run so a crash loses at most
// one flush window, and concatenate cleanly into one report.
package results

import (
	"strconv"
	"strings"
)

// Header lists the report columns in output order.
var Header = []string{
	"TREE_ID",
	"DRZEWO STRUKTURY",
	"Nazwa Pliku",
	"Link",
	"RYZYKO",
	"Alerty",
	"Autor",
	"Data Pliku",
	"Słowa",
}

// TreeRow is one report line: a process header, a print header, or an
// attachment finding. The TreeID encodes the position in the document
// hierarchy.
type TreeRow struct {
	TreeID   string
	Display  string
	Filename string
	Link     string
	Risk     int
	Alerts   []string
	Author   string
	FileDate string
	Words    []string
}

// Record renders the row for the CSV encoder. Process and print rows carry
// no filename and no scan, so their risk column stays empty rather than
// claiming a zero-risk result.
func (r TreeRow) Record() []string {
	risk := ""
	if r.Filename != "" {
		risk = strconv.Itoa(r.Risk)
	}
	return []string{
		r.TreeID,
		r.Display,
		r.Filename,
		r.Link,
		risk,
		strings.Join(r.Alerts, " | "),
		r.Author,
		r.FileDate,
		strings.Join(r.Words, ", "),
	}
}
