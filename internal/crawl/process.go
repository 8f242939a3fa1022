package crawl

import (
	"context"
	"fmt"
	"strconv"

	"go.uber.org/zap"

	"github.com/sejmwatch/sejmaudit/internal/archive"
	"github.com/sejmwatch/sejmaudit/internal/extract"
	"github.com/sejmwatch/sejmaudit/internal/notify"
	"github.com/sejmwatch/sejmaudit/internal/progress"
	"github.com/sejmwatch/sejmaudit/internal/results"
	"github.com/sejmwatch/sejmaudit/internal/sejm"
	"github.com/sejmwatch/sejmaudit/internal/treeid"
)

// auditProcess turns one legislative process into report rows. A panic
// anywhere below is caught here: one malformed document must never take the
// whole run down, so the process degrades into an error row instead.
func (r *Runner) auditProcess(ctx context.Context, t task, id string) (rows []results.TreeRow, failed error) {
	defer func() {
		if rec := recover(); rec != nil {
			r.opts.Logger.Error("process audit panicked",
				zap.String("tree_id", id),
				zap.Any("panic", rec),
			)
			failed = fmt.Errorf("audit panicked: %v", rec)
			// Partial rows from before the panic are discarded; the process
			// collapses to a single error row so its tree id stays unique.
			rows = []results.TreeRow{{
				TreeID:   id,
				Display:  treeid.ProcessDisplay(t.process.Number, t.process.Title),
				Link:     r.opts.API.ProcessURL(t.term, t.process.Number),
				Alerts:   []string{"BLAD KRYTYCZNY AUDYTU PROCESU"},
				Author:   sejm.Unknown,
				FileDate: sejm.Unknown,
			}}
		}
	}()

	// The process header row is always present, even when the process has no
	// prints at all.
	rows = append(rows, results.TreeRow{
		TreeID:   id,
		Display:  treeid.ProcessDisplay(t.process.Number, t.process.Title),
		Link:     r.opts.API.ProcessURL(t.term, t.process.Number),
		Author:   sejm.Unknown,
		FileDate: sejm.Unknown,
	})

	for j, printNumber := range t.process.Prints {
		printID := treeid.Child(id, strconv.Itoa(j+1))
		p, err := r.opts.API.Print(ctx, t.term, printNumber)
		if err != nil {
			rows = append(rows, results.TreeRow{
				TreeID:   printID,
				Display:  treeid.PrintDisplay(printNumber),
				Alerts:   []string{"BLAD POBIERANIA METADANYCH DRUKU: " + err.Error()},
				Author:   sejm.Unknown,
				FileDate: sejm.Unknown,
			})
			continue
		}
		rows = append(rows, results.TreeRow{
			TreeID:   printID,
			Display:  treeid.PrintDisplay(p.Number),
			Author:   sejm.Unknown,
			FileDate: p.DocumentDate,
		})
		for k, filename := range p.Attachments {
			attID := treeid.Child(printID, treeid.Letter(k))
			rows = append(rows, r.auditAttachment(ctx, t.term, p, attID, filename)...)
		}
	}
	return rows, nil
}

// auditAttachment downloads one declared attachment and scans every document
// inside it; an archive contributes one row per nested file.
func (r *Runner) auditAttachment(ctx context.Context, term int, p sejm.Print, id, filename string) []results.TreeRow {
	link := r.opts.API.AttachmentURL(term, p.Number, filename)
	display := treeid.AttachmentDisplay(filename)

	data, err := r.opts.API.Attachment(ctx, term, p.Number, filename)
	if err != nil {
		return []results.TreeRow{{
			TreeID:   id,
			Display:  display,
			Filename: filename,
			Link:     link,
			Alerts:   []string{"BLAD POBIERANIA PLIKU: " + err.Error()},
			Author:   sejm.Unknown,
			FileDate: p.DocumentDate,
		}}
	}

	var rows []results.TreeRow
	for _, entry := range archive.Expand(data, filename, id, display) {
		rows = append(rows, r.scanEntry(ctx, p, entry, link))
	}
	return rows
}

// scanEntry scores one concrete document and emits its progress and alert
// side effects.
func (r *Runner) scanEntry(ctx context.Context, p sejm.Print, entry archive.Entry, link string) results.TreeRow {
	row := results.TreeRow{
		TreeID:   entry.ID,
		Display:  entry.Display,
		Filename: entry.Name,
		Link:     link,
		Author:   sejm.Unknown,
		FileDate: p.DocumentDate,
	}
	if entry.Corrupt {
		row.Alerts = []string{"USZKODZONY PLIK LUB ARCHIWUM"}
		return row
	}

	ext := archive.Ext(entry.Name)
	content := r.opts.Extractor.Extract(ctx, entry.Data, ext)
	row.Alerts = append(row.Alerts, content.Alerts...)

	if content.Locked {
		// No text to score; the lock itself is the signal.
		row.Risk = r.opts.LockedRisk
	} else {
		res := r.opts.Scorer.Score(content.Logical, content.Visual, ext)
		row.Risk = res.Risk
		row.Words = res.Vectors
		row.Alerts = append(row.Alerts, res.Alerts...)
	}

	meta := extract.Meta(entry.Data, ext)
	row.Author = meta.Author
	if meta.Created != extract.UnknownMeta {
		row.FileDate = meta.Created
	}

	r.attachmentsScanned.Add(1)
	r.emit(progress.Event{
		Stage:    progress.StageScan,
		TreeID:   entry.ID,
		Filename: entry.Name,
		Risk:     row.Risk,
		Bytes:    int64(len(entry.Data)),
	})

	if row.Risk >= r.opts.NotifyMinRisk {
		r.highRisk.Add(1)
		finding := notify.Finding{
			TreeID:   row.TreeID,
			Filename: row.Filename,
			Link:     row.Link,
			Risk:     row.Risk,
			Alerts:   row.Alerts,
			Words:    row.Words,
		}
		if err := r.opts.Notifier.Notify(ctx, finding); err != nil {
			r.opts.Logger.Warn("high-risk notification failed",
				zap.String("tree_id", row.TreeID),
				zap.Error(err),
			)
		}
	}
	return row
}
